// Package parsestate tracks the per-module parse and resolution state of a
// project and derives the aggregate state observers wait on.
package parsestate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/jward/mallard/internal/project"
)

// State is the lifecycle state of a module. Non-error states are ordered;
// a module only moves forward through them within one cycle.
type State int

const (
	Pending State = iota
	Parsing
	Parsed
	ResolvingDeclarations
	ResolvedDeclarations
	ResolvingReferences
	Ready
	ParserError
	ResolverError
)

var stateNames = [...]string{
	Pending:               "Pending",
	Parsing:               "Parsing",
	Parsed:                "Parsed",
	ResolvingDeclarations: "ResolvingDeclarations",
	ResolvedDeclarations:  "ResolvedDeclarations",
	ResolvingReferences:   "ResolvingReferences",
	Ready:                 "Ready",
	ParserError:           "ParserError",
	ResolverError:         "ResolverError",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IsError reports whether s is ParserError or ResolverError.
func (s State) IsError() bool {
	return s == ParserError || s == ResolverError
}

var (
	// ErrInvalidTransition is returned when a module would move backwards or
	// leave an error state without a reset.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotErrorState is returned when a non-error state is forced.
	ErrNotErrorState = errors.New("not an error state")
)

// Event describes one applied transition.
type Event struct {
	Modules   []project.ModuleName
	State     State
	Aggregate State
	// Source names the component that forced an error state, if any.
	Source string
	// Seq numbers events in commit order, starting at 1. Subscribers
	// receive them in that order.
	Seq uint64
}

// Manager owns module states. All methods are safe for concurrent use;
// transitions are applied atomically and observed in a single order.
type Manager struct {
	mu        sync.RWMutex
	modules   map[project.ModuleName]State
	forced    State
	hasForced bool
	status    State
	changed   chan struct{}
	seq       uint64

	// fireMu guards delivered; fireCond orders delivery by Seq.
	fireMu    sync.Mutex
	fireCond  *sync.Cond
	delivered uint64

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int

	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for transition tracing.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager with no modules.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		modules: make(map[project.ModuleName]State),
		changed: make(chan struct{}),
		subs:    make(map[int]func(Event)),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	m.fireCond = sync.NewCond(&m.fireMu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetModuleStates moves every module in modules to state. Either all
// transitions apply or none do. A cancelled ctx makes no transition.
func (m *Manager) SetModuleStates(ctx context.Context, modules []project.ModuleName, state State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(modules) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, mod := range modules {
		from := m.modules[mod]
		if !validTransition(from, state) {
			m.mu.Unlock()
			return fmt.Errorf("parsestate: %s %s -> %s: %w", mod, from, state, ErrInvalidTransition)
		}
	}
	for _, mod := range modules {
		m.modules[mod] = state
	}
	ev := m.commitLocked(modules, state, "")
	m.mu.Unlock()

	m.fire(ev)
	return nil
}

// SetStatusAndFireStateChanged forces the aggregate into an error state on
// behalf of source. It is the single entry point for resolution failures.
func (m *Manager) SetStatusAndFireStateChanged(ctx context.Context, source string, state State) error {
	if !state.IsError() {
		return fmt.Errorf("parsestate: force %s: %w", state, ErrNotErrorState)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.forced, m.hasForced = state, true
	ev := m.commitLocked(nil, state, source)
	m.mu.Unlock()

	m.logger.Warn("state forced", "source", source, "state", state.String())
	m.fire(ev)
	return nil
}

// ResetModules returns modules to Pending for a new parse cycle and clears
// any forced error. This is the only way out of an error state.
func (m *Manager) ResetModules(ctx context.Context, modules []project.ModuleName) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	for _, mod := range modules {
		m.modules[mod] = Pending
	}
	m.hasForced = false
	ev := m.commitLocked(modules, Pending, "")
	m.mu.Unlock()

	m.fire(ev)
	return nil
}

// RemoveModules forgets modules entirely.
func (m *Manager) RemoveModules(modules []project.ModuleName) {
	if len(modules) == 0 {
		return
	}
	m.mu.Lock()
	for _, mod := range modules {
		delete(m.modules, mod)
	}
	ev := m.commitLocked(modules, m.status, "")
	m.mu.Unlock()

	m.fire(ev)
}

// Status returns the aggregate state.
func (m *Manager) Status() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ModuleState returns the state of one module.
func (m *Manager) ModuleState(mod project.ModuleName) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.modules[mod]
	return s, ok
}

// Modules returns every tracked module, sorted.
func (m *Manager) Modules() []project.ModuleName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.SortedFunc(maps.Keys(m.modules), compareModules)
}

// Subscribe registers fn to receive every event. The returned function
// unregisters it. fn runs on the goroutine that made the transition and
// must not call back into the Manager's mutating methods.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subs, id)
	}
}

// WaitForState blocks until the aggregate reaches target or any error
// state, and returns the aggregate observed. It returns ctx.Err() if ctx is
// done first.
func (m *Manager) WaitForState(ctx context.Context, target State) (State, error) {
	for {
		m.mu.RLock()
		status, changed := m.status, m.changed
		m.mu.RUnlock()

		if status == target || status.IsError() || (!target.IsError() && status > target) {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-changed:
		}
	}
}

// commitLocked recomputes the aggregate and wakes waiters. m.mu must be held
// for writing.
func (m *Manager) commitLocked(modules []project.ModuleName, state State, source string) Event {
	m.status = m.aggregateLocked()
	m.seq++
	close(m.changed)
	m.changed = make(chan struct{})
	m.logger.Debug("state changed",
		"modules", len(modules), "state", state.String(), "aggregate", m.status.String())
	return Event{
		Modules:   slices.Clone(modules),
		State:     state,
		Aggregate: m.status,
		Source:    source,
		Seq:       m.seq,
	}
}

func (m *Manager) aggregateLocked() State {
	if m.hasForced {
		return m.forced
	}
	if len(m.modules) == 0 {
		return Pending
	}
	lowest := Ready
	var parserErr, resolverErr bool
	for _, s := range m.modules {
		switch {
		case s == ParserError:
			parserErr = true
		case s == ResolverError:
			resolverErr = true
		case s < lowest:
			lowest = s
		}
	}
	switch {
	case parserErr:
		return ParserError
	case resolverErr:
		return ResolverError
	}
	return lowest
}

// fire delivers ev once every earlier event has been delivered, so
// subscribers see events in commit order even when transitions race.
func (m *Manager) fire(ev Event) {
	m.fireMu.Lock()
	defer m.fireMu.Unlock()
	for m.delivered+1 != ev.Seq {
		m.fireCond.Wait()
	}
	defer func() {
		m.delivered = ev.Seq
		m.fireCond.Broadcast()
	}()

	m.subMu.Lock()
	subs := make([]func(Event), 0, len(m.subs))
	for _, id := range slices.Sorted(maps.Keys(m.subs)) {
		subs = append(subs, m.subs[id])
	}
	m.subMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func validTransition(from, to State) bool {
	if to.IsError() {
		return true
	}
	if from.IsError() {
		return false
	}
	return to >= from
}

func compareModules(a, b project.ModuleName) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
