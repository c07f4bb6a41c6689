package parsestate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/mallard/internal/project"
)

var (
	modA = project.NewModuleName("P", "A")
	modB = project.NewModuleName("P", "B")
)

func TestManager_EmptyIsPending(t *testing.T) {
	t.Parallel()
	m := NewManager()
	assert.Equal(t, Pending, m.Status())
	require.NoError(t, m.SetModuleStates(context.Background(), nil, Ready))
	assert.Equal(t, Pending, m.Status())
}

func TestManager_AggregateIsMinimum(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()

	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA, modB}, Parsed))
	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA}, Ready))
	assert.Equal(t, Parsed, m.Status())

	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modB}, ResolvedDeclarations))
	assert.Equal(t, ResolvedDeclarations, m.Status())

	s, ok := m.ModuleState(modA)
	require.True(t, ok)
	assert.Equal(t, Ready, s)
	assert.Equal(t, []project.ModuleName{modA, modB}, m.Modules())
}

func TestManager_RejectsBackwardTransition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()

	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA}, ResolvedDeclarations))
	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modB}, Parsed))

	err := m.SetModuleStates(ctx, []project.ModuleName{modB, modA}, ResolvingDeclarations)
	require.ErrorIs(t, err, ErrInvalidTransition)

	// All-or-nothing: modB did not move either.
	s, _ := m.ModuleState(modB)
	assert.Equal(t, Parsed, s)
}

func TestManager_ErrorStates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()
	mods := []project.ModuleName{modA, modB}

	require.NoError(t, m.SetModuleStates(ctx, mods, Parsed))
	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA}, ResolverError))
	assert.Equal(t, ResolverError, m.Status())

	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modB}, ParserError))
	assert.Equal(t, ParserError, m.Status(), "parser errors win over resolver errors")

	err := m.SetModuleStates(ctx, []project.ModuleName{modA}, Ready)
	require.ErrorIs(t, err, ErrInvalidTransition, "leaving an error state needs a reset")

	require.NoError(t, m.ResetModules(ctx, mods))
	assert.Equal(t, Pending, m.Status())
	require.NoError(t, m.SetModuleStates(ctx, mods, Ready))
	assert.Equal(t, Ready, m.Status())
}

func TestManager_ForcedStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA}, Ready))

	err := m.SetStatusAndFireStateChanged(ctx, "test", Ready)
	require.ErrorIs(t, err, ErrNotErrorState)

	require.NoError(t, m.SetStatusAndFireStateChanged(ctx, "resolver", ResolverError))
	assert.Equal(t, ResolverError, m.Status())

	require.NoError(t, m.ResetModules(ctx, []project.ModuleName{modA}))
	assert.Equal(t, Pending, m.Status())
}

func TestManager_CancelledContextMakesNoTransition(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewManager()

	err := m.SetModuleStates(ctx, []project.ModuleName{modA}, Parsed)
	require.ErrorIs(t, err, context.Canceled)
	_, ok := m.ModuleState(modA)
	assert.False(t, ok)
}

func TestManager_OneEventPerCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()

	var mu sync.Mutex
	var events []Event
	unsubscribe := m.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA, modB}, Parsing))
	require.NoError(t, m.SetStatusAndFireStateChanged(ctx, "resolver", ResolverError))
	unsubscribe()
	require.NoError(t, m.ResetModules(ctx, []project.ModuleName{modA}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, Parsing, events[0].State)
	assert.Equal(t, Parsing, events[0].Aggregate)
	assert.Len(t, events[0].Modules, 2)
	assert.Equal(t, "resolver", events[1].Source)
	assert.Equal(t, ResolverError, events[1].Aggregate)
}

func TestManager_EventsDeliveredInCommitOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()

	var modules []project.ModuleName
	for i := range 16 {
		modules = append(modules, project.NewModuleName("P", fmt.Sprintf("M%d", i)))
	}
	require.NoError(t, m.SetModuleStates(ctx, modules, Parsed))

	var events []Event
	m.Subscribe(func(ev Event) {
		// Delivery is serialized, so no lock is needed here.
		events = append(events, ev)
	})

	var wg sync.WaitGroup
	for _, mod := range modules {
		wg.Go(func() {
			for _, s := range []State{ResolvingDeclarations, ResolvedDeclarations, ResolvingReferences, Ready} {
				assert.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{mod}, s))
			}
		})
	}
	wg.Wait()

	require.Len(t, events, len(modules)*4)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
		assert.GreaterOrEqual(t, events[i].Aggregate, events[i-1].Aggregate, "aggregate never moves backwards")
	}
	assert.Equal(t, Ready, events[len(events)-1].Aggregate)
}

func TestManager_WaitForState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()
	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA}, Parsed))

	done := make(chan State, 1)
	go func() {
		s, err := m.WaitForState(ctx, Ready)
		if err == nil {
			done <- s
		}
	}()

	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA}, ResolvedDeclarations))
	require.NoError(t, m.SetModuleStates(ctx, []project.ModuleName{modA}, Ready))

	select {
	case s := <-done:
		assert.Equal(t, Ready, s)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForState did not return")
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.NoError(t, m.ResetModules(ctx, []project.ModuleName{modA}))
	_, err := m.WaitForState(cctx, Ready)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_ConcurrentTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewManager()

	var mods []project.ModuleName
	for i := range 50 {
		mods = append(mods, project.NewModuleName("P", string(rune('A'+i%26))+string(rune('a'+i/26))))
	}
	require.NoError(t, m.SetModuleStates(ctx, mods, Parsed))

	var wg sync.WaitGroup
	for _, mod := range mods {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.SetModuleStates(ctx, []project.ModuleName{mod}, ResolvingDeclarations)
			_ = m.SetModuleStates(ctx, []project.ModuleName{mod}, ResolvedDeclarations)
			_ = m.Status()
		}()
	}
	wg.Wait()
	assert.Equal(t, ResolvedDeclarations, m.Status())
}
