package syntax

import (
	"slices"
	"strings"
	"unicode"
)

// parseAnnotation splits an annotation comment such as
// '@Description("Returns the thing") or '@Ignore ProcedureNotUsed, X into
// its name and arguments.
func parseAnnotation(text string) (string, []string) {
	body := strings.TrimPrefix(text, "'@")
	end := strings.IndexFunc(body, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	if end < 0 {
		return body, nil
	}
	name, rest := body[:end], strings.TrimSpace(body[end:])
	if strings.HasPrefix(rest, "(") {
		if closing := matchingParen(rest); closing > 0 {
			rest = rest[1:closing]
		} else {
			rest = rest[1:]
		}
	}
	return name, splitArgs(rest)
}

func matchingParen(s string) int {
	depth, quoted := 0, false
	for i, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var args []string
	var cur strings.Builder
	quoted := false
	flush := func() {
		arg := strings.TrimSpace(cur.String())
		if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
			arg = strings.ReplaceAll(arg[1:len(arg)-1], `""`, `"`)
		}
		args = append(args, arg)
		cur.Reset()
	}
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case r == ',' && !quoted:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return args
}

// moduleScoped lists annotations that apply to the whole module and are
// never attached to a member.
var moduleScoped = map[string]bool{
	"folder":            true,
	"moduledescription": true,
	"predeclaredid":     true,
	"exposed":           true,
	"ignoremodule":      true,
	"moduleattribute":   true,
	"testmodule":        true,
	"interface":         true,
}

// IsModuleScopedAnnotation reports whether the annotation called name
// applies to its module rather than the next member.
func IsModuleScopedAnnotation(name string) bool {
	return moduleScoped[strings.ToLower(name)]
}

// AttachedAnnotations returns the separators of the contiguous annotation
// block directly above stmt: annotation lines at the end of the preceding
// end-of-statement, stopping at the first blank line, plain comment or
// module-scoped annotation. A separator on the preceding statement's own
// line is never included.
func AttachedAnnotations(stmt *Node) []*Node {
	eos := PrecedingEOS(stmt)
	if eos == nil {
		return nil
	}
	seps := Separators(eos)
	first := 1
	if StartsOnOwnLine(eos) {
		first = 0
	}
	var out []*Node
	for i := len(seps) - 1; i >= first; i-- {
		c := SeparatorComment(seps[i])
		if c == nil || c.Kind != KindAnnotation || IsModuleScopedAnnotation(c.Value) {
			break
		}
		out = append(out, seps[i])
	}
	slices.Reverse(out)
	return out
}

// ModuleAnnotations returns the module-scoped annotations found before the
// first procedure of the module.
func ModuleAnnotations(root *Node) []*Node {
	var out []*Node
	for _, c := range root.Children {
		if c.Kind.IsProcedure() {
			break
		}
		if c.Kind != KindEndOfStatement {
			continue
		}
		for _, sep := range Separators(c) {
			if a := SeparatorComment(sep); a != nil && a.Kind == KindAnnotation && IsModuleScopedAnnotation(a.Value) {
				out = append(out, a)
			}
		}
	}
	return out
}
