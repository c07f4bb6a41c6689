package rewrite

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/jward/mallard/internal/project"
	"github.com/jward/mallard/internal/syntax"
)

// ErrUnknownModule is returned for modules without a parse tree.
var ErrUnknownModule = errors.New("unknown module")

// TreeSource supplies parse trees by module.
type TreeSource interface {
	ParseTree(module project.ModuleName) (*syntax.Tree, bool)
}

// Session groups the rewriters of one refactoring: one ModuleRewriter per
// module, created on first use. It is not safe for concurrent use.
type Session struct {
	id        uuid.UUID
	trees     TreeSource
	rewriters map[project.ModuleName]*ModuleRewriter
	logger    *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession starts a rewrite session over trees.
func NewSession(trees TreeSource, opts ...Option) *Session {
	s := &Session{
		id:        uuid.New(),
		trees:     trees,
		rewriters: make(map[project.ModuleName]*ModuleRewriter),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id.String())
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Rewriter returns the rewriter for module.
func (s *Session) Rewriter(module project.ModuleName) (*ModuleRewriter, error) {
	if r, ok := s.rewriters[module]; ok {
		return r, nil
	}
	tree, ok := s.trees.ParseTree(module)
	if !ok {
		return nil, fmt.Errorf("rewrite: %s: %w", module, ErrUnknownModule)
	}
	r := NewModuleRewriter(tree)
	s.rewriters[module] = r
	s.logger.Debug("rewriter opened", "module", module.String())
	return r, nil
}

// Modules returns the modules with queued edits, sorted.
func (s *Session) Modules() []project.ModuleName {
	var out []project.ModuleName
	for m, r := range s.rewriters {
		if r.IsDirty() {
			out = append(out, m)
		}
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

// Render returns the edited text of module, or its original text if the
// session has not touched it.
func (s *Session) Render(module project.ModuleName) (string, error) {
	r, err := s.Rewriter(module)
	if err != nil {
		return "", err
	}
	return r.Render(), nil
}

// Commit hands the rendered text of every edited module to apply, in module
// order, and stops at the first error.
func (s *Session) Commit(apply func(module project.ModuleName, text string) error) error {
	modules := s.Modules()
	for _, m := range modules {
		if err := apply(m, s.rewriters[m].Render()); err != nil {
			return fmt.Errorf("rewrite: commit %s: %w", m, err)
		}
	}
	s.logger.Info("rewrite committed", "modules", len(modules))
	return nil
}
