// Package syntax reads VBA module source into a token stream and a parse
// tree whose nodes span token ranges. Every source byte belongs to exactly
// one token, so rendering the tokens reproduces the source.
package syntax

import (
	"slices"
	"strings"
	"sync"

	"github.com/jward/mallard/internal/project"
)

// Span is a 1-based source range. EndCol is exclusive.
type Span struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Tree is the parse result for one module.
type Tree struct {
	Module project.ModuleName
	Type   project.ComponentType
	Tokens []Token
	Root   *Node
}

// Parse reads src into a Tree. Parsing is tolerant: constructs it does not
// understand become KindOtherStmt nodes.
func Parse(module project.ModuleName, ctype project.ComponentType, src string) *Tree {
	toks := Lex(src)
	p := &parser{toks: toks, last: -1}
	return &Tree{Module: module, Type: ctype, Tokens: toks, Root: p.parseModule()}
}

// TextRange returns the original text of the inclusive token range.
func (t *Tree) TextRange(start, stop int) string {
	if start < 0 {
		start = 0
	}
	if stop >= len(t.Tokens) {
		stop = len(t.Tokens) - 1
	}
	var b strings.Builder
	for i := start; i <= stop; i++ {
		b.WriteString(t.Tokens[i].Text)
	}
	return b.String()
}

// Text returns the original text of n, or "" for a nil or empty node.
func (t *Tree) Text(n *Node) string {
	if n == nil || n.IsEmpty() {
		return ""
	}
	return t.TextRange(n.Start, n.Stop)
}

// Source returns the full module text.
func (t *Tree) Source() string {
	return t.TextRange(0, len(t.Tokens)-1)
}

// Span returns the source range covered by n.
func (t *Tree) Span(n *Node) Span {
	if n == nil || len(t.Tokens) == 0 {
		return Span{}
	}
	start := t.Tokens[min(max(n.Start, 0), len(t.Tokens)-1)]
	if n.IsEmpty() {
		return Span{StartLine: start.Line, StartCol: start.Col, EndLine: start.Line, EndCol: start.Col}
	}
	stop := t.Tokens[min(n.Stop, len(t.Tokens)-1)]
	return Span{
		StartLine: start.Line,
		StartCol:  start.Col,
		EndLine:   stop.Line,
		EndCol:    stop.Col + len(stop.Text),
	}
}

// Newline returns the line terminator used by the module, defaulting to
// "\r\n" as the VBE writes it.
func (t *Tree) Newline() string {
	for _, tok := range t.Tokens {
		if tok.Kind == TokenNewline {
			return tok.Text
		}
	}
	return "\r\n"
}

// Store holds the current parse tree of every module. It is safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	trees map[project.ModuleName]*Tree
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{trees: make(map[project.ModuleName]*Tree)}
}

// Put stores tree, replacing any previous tree for its module.
func (s *Store) Put(tree *Tree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[tree.Module] = tree
}

// ParseTree returns the tree for module.
func (s *Store) ParseTree(module project.ModuleName) (*Tree, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trees[module]
	return t, ok
}

// Remove drops the tree for module.
func (s *Store) Remove(module project.ModuleName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trees, module)
}

// Modules returns every stored module, sorted.
func (s *Store) Modules() []project.ModuleName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]project.ModuleName, 0, len(s.trees))
	for m := range s.trees {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b project.ModuleName) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return out
}
