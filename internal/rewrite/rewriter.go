// Package rewrite queues token-range edits against parse trees and renders
// the edited module text. Edits are never applied to the trees themselves.
package rewrite

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jward/mallard/internal/syntax"
)

var (
	// ErrInvalidRange is returned for token ranges outside the module.
	ErrInvalidRange = errors.New("invalid token range")
	// ErrOverlappingEdit is returned when an edit partially overlaps an
	// earlier one.
	ErrOverlappingEdit = errors.New("overlapping edit")
)

type replacement struct {
	start, stop int
	text        string
}

// ModuleRewriter accumulates edits for one module. A replacement that
// covers earlier edits supersedes them; one that partially overlaps an
// earlier replacement is rejected. It is not safe for concurrent use.
type ModuleRewriter struct {
	tree     *syntax.Tree
	replaces []replacement
	inserts  map[int][]string
}

// NewModuleRewriter returns a rewriter with no edits.
func NewModuleRewriter(tree *syntax.Tree) *ModuleRewriter {
	return &ModuleRewriter{tree: tree, inserts: make(map[int][]string)}
}

// Tree returns the tree being rewritten.
func (r *ModuleRewriter) Tree() *syntax.Tree {
	return r.tree
}

// last is the index of the final non-EOF token.
func (r *ModuleRewriter) last() int {
	return len(r.tree.Tokens) - 2
}

// Replace replaces the inclusive token range [start, stop] with text.
func (r *ModuleRewriter) Replace(start, stop int, text string) error {
	if start < 0 || stop < start || stop > r.last() {
		return fmt.Errorf("rewrite: replace [%d, %d]: %w", start, stop, ErrInvalidRange)
	}
	kept := r.replaces[:0:0]
	for _, op := range r.replaces {
		switch {
		case op.stop < start || op.start > stop:
			kept = append(kept, op)
		case op.start >= start && op.stop <= stop:
			// superseded
		default:
			return fmt.Errorf("rewrite: replace [%d, %d] overlaps [%d, %d]: %w", start, stop, op.start, op.stop, ErrOverlappingEdit)
		}
	}
	for i := range r.inserts {
		if i > start && i <= stop {
			delete(r.inserts, i)
		}
	}
	kept = append(kept, replacement{start: start, stop: stop, text: text})
	slices.SortFunc(kept, func(a, b replacement) int { return a.start - b.start })
	r.replaces = kept
	return nil
}

// Remove deletes the inclusive token range [start, stop].
func (r *ModuleRewriter) Remove(start, stop int) error {
	return r.Replace(start, stop, "")
}

// ReplaceNode replaces the tokens spanned by n.
func (r *ModuleRewriter) ReplaceNode(n *syntax.Node, text string) error {
	if n == nil || n.IsEmpty() {
		return fmt.Errorf("rewrite: replace empty node: %w", ErrInvalidRange)
	}
	return r.Replace(n.Start, n.Stop, text)
}

// RemoveNode deletes the tokens spanned by n.
func (r *ModuleRewriter) RemoveNode(n *syntax.Node) error {
	return r.ReplaceNode(n, "")
}

// InsertBefore inserts text before the token at index. Index may be the EOF
// token to append to the module.
func (r *ModuleRewriter) InsertBefore(index int, text string) error {
	if index < 0 || index > r.last()+1 {
		return fmt.Errorf("rewrite: insert at %d: %w", index, ErrInvalidRange)
	}
	for _, op := range r.replaces {
		if index > op.start && index <= op.stop {
			return fmt.Errorf("rewrite: insert at %d inside [%d, %d]: %w", index, op.start, op.stop, ErrOverlappingEdit)
		}
	}
	r.inserts[index] = append(r.inserts[index], text)
	return nil
}

// Checkpoint is a copy of a rewriter's queued edits.
type Checkpoint struct {
	replaces []replacement
	inserts  map[int][]string
}

// Checkpoint records the queued edits so a failed multi-step edit can be
// undone with Rollback.
func (r *ModuleRewriter) Checkpoint() Checkpoint {
	inserts := maps.Clone(r.inserts)
	for i, texts := range inserts {
		inserts[i] = slices.Clone(texts)
	}
	return Checkpoint{replaces: slices.Clone(r.replaces), inserts: inserts}
}

// Rollback discards every edit queued after c was taken.
func (r *ModuleRewriter) Rollback(c Checkpoint) {
	r.replaces = c.replaces
	r.inserts = c.inserts
	if r.inserts == nil {
		r.inserts = make(map[int][]string)
	}
}

// IsDirty reports whether any edit is queued.
func (r *ModuleRewriter) IsDirty() bool {
	return len(r.replaces) > 0 || len(r.inserts) > 0
}

// Text renders the edited text of the inclusive token range [start, stop].
// An empty range (stop == start-1) renders as "". It reports false if the
// range lies outside the module.
func (r *ModuleRewriter) Text(start, stop int) (string, bool) {
	if start < 0 || stop < start-1 || stop > r.last()+1 {
		return "", false
	}
	return r.render(start, stop), true
}

// Render returns the full edited module text.
func (r *ModuleRewriter) Render() string {
	return r.render(0, r.last()+1)
}

func (r *ModuleRewriter) render(start, stop int) string {
	var b strings.Builder
	ops := r.replaces
	for i := start; i <= stop; {
		for _, text := range r.inserts[i] {
			b.WriteString(text)
		}
		covered := false
		for _, op := range ops {
			if op.start == i {
				b.WriteString(op.text)
				i = op.stop + 1
				covered = true
				break
			}
			if op.start < i && i <= op.stop {
				i = op.stop + 1
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		b.WriteString(r.tree.Tokens[i].Text)
		i++
	}
	return b.String()
}
