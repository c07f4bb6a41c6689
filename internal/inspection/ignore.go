package inspection

import (
	"strings"

	"github.com/jward/mallard/internal/syntax"
)

// isSuppressed reports whether r is silenced by an '@IgnoreModule
// annotation in its module header or an '@Ignore annotation attached to a
// statement enclosing its node.
func isSuppressed(r Result, s *Snapshot) bool {
	if s.Trees != nil {
		if tree, ok := s.Trees.ParseTree(r.Module); ok {
			for _, a := range syntax.ModuleAnnotations(tree.Root) {
				if strings.EqualFold(a.Value, "IgnoreModule") && (len(a.Args) == 0 || names(a.Args, r.Inspection)) {
					return true
				}
			}
		}
	}
	for n := r.Node; n != nil; n = n.Parent {
		if n.Parent == nil || !n.Parent.Kind.IsContainer() || n.Kind == syntax.KindEndOfStatement {
			continue
		}
		for _, sep := range syntax.AttachedAnnotations(n) {
			a := syntax.SeparatorComment(sep)
			if strings.EqualFold(a.Value, "Ignore") && names(a.Args, r.Inspection) {
				return true
			}
		}
	}
	return false
}

func names(args []string, name string) bool {
	for _, a := range args {
		if strings.EqualFold(strings.TrimSpace(a), name) {
			return true
		}
	}
	return false
}
