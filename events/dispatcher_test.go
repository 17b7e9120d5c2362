package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindCategories(t *testing.T) {
	cases := map[Kind]Category{
		KindStartupBegin:       CategoryStartup,
		KindModulesReady:       CategoryStartup,
		KindModuleInitialized:  CategoryModule,
		KindHealthCheckFailed:  CategoryHealth,
		KindShutdownComplete:   CategoryShutdown,
		KindRestartScheduled:   CategoryRestart,
		KindDegradationChanged: CategoryPolicy,
		KindHandlerFailed:      CategoryBus,
		KindCriticalError:      CategoryProcess,
		KindUnknown:            CategoryUnknown,
	}
	for k, want := range cases {
		assert.Equal(t, want, k.Category(), k.String())
	}
	assert.Equal(t, "module:initialized", KindModuleInitialized.String())
	assert.Equal(t, "degradation-changed", KindDegradationChanged.String())
	assert.Equal(t, "unknown", Kind(999).String())
}

func TestDispatcherObserve(t *testing.T) {
	d := NewDispatcher(nil)

	var got []Kind
	require.NoError(t, d.Observe("all", func(e Event) { got = append(got, e.Kind()) }))

	var filtered []Kind
	require.NoError(t, d.Observe("filtered", func(e Event) { filtered = append(filtered, e.Kind()) }, KindModuleError))

	e := d.Emit("test", ModuleInitialized{ID: "a"})
	d.Emit("test", ModuleError{ID: "b", Err: errors.New("boom")})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "test", e.Source)
	assert.False(t, e.Time.IsZero())
	assert.Equal(t, []Kind{KindModuleInitialized, KindModuleError}, got)
	assert.Equal(t, []Kind{KindModuleError}, filtered)
}

func TestDispatcherObserveErrors(t *testing.T) {
	d := NewDispatcher(nil)

	assert.ErrorIs(t, d.Observe("", func(Event) {}), ErrObserverIDEmpty)
	assert.ErrorIs(t, d.Observe("x", nil), ErrObserverNil)
	require.NoError(t, d.Observe("x", func(Event) {}))
	assert.ErrorIs(t, d.Observe("x", func(Event) {}), ErrObserverExists)

	d.Unobserve("x")
	require.NoError(t, d.Observe("x", func(Event) {}))

	d.Close()
	assert.ErrorIs(t, d.Observe("y", func(Event) {}), ErrDispatcherClosed)
}

func TestDispatcherObserverOrderAndPanic(t *testing.T) {
	d := NewDispatcher(nil)

	var order []string
	require.NoError(t, d.Observe("first", func(Event) { order = append(order, "first") }))
	require.NoError(t, d.Observe("panics", func(Event) { panic("observer failure") }))
	require.NoError(t, d.Observe("last", func(Event) { order = append(order, "last") }))

	assert.NotPanics(t, func() { d.Emit("test", ShutdownBegin{Components: 1}) })
	assert.Equal(t, []string{"first", "last"}, order)
}

func TestDispatcherNilPayload(t *testing.T) {
	d := NewDispatcher(nil)
	called := false
	require.NoError(t, d.Observe("x", func(Event) { called = true }))

	e := d.Emit("test", nil)
	assert.Empty(t, e.ID)
	assert.False(t, called)
}

func TestSubscriptionCategories(t *testing.T) {
	d := NewDispatcher(nil)
	sub := d.Subscribe(4, CategoryShutdown)
	defer sub.Close()

	d.Emit("test", StartupBegin{Components: 2, Attempt: 1})
	d.Emit("test", ShutdownBegin{Components: 2})

	select {
	case e := <-sub.C:
		assert.Equal(t, KindShutdownBegin, e.Kind())
	default:
		t.Fatal("expected a shutdown event")
	}
	assert.Empty(t, sub.C)
}

func TestSubscriptionDropsWhenFull(t *testing.T) {
	d := NewDispatcher(nil)
	sub := d.Subscribe(1)

	d.Emit("test", ModulesReady{Ready: 1})
	d.Emit("test", ModulesReady{Ready: 2})
	d.Emit("test", ModulesReady{Ready: 3})

	assert.Equal(t, uint64(2), sub.Dropped())
	e := <-sub.C
	assert.Equal(t, ModulesReady{Ready: 1}, e.Payload)

	sub.Close()
	sub.Close()
	_, open := <-sub.C
	assert.False(t, open)
}

func TestDispatcherClose(t *testing.T) {
	d := NewDispatcher(nil)
	sub := d.Subscribe(0)
	d.Close()

	_, open := <-sub.C
	assert.False(t, open)

	late := d.Subscribe(0)
	_, open = <-late.C
	assert.False(t, open)

	assert.NotPanics(t, func() { d.Emit("test", ModulesReady{}) })
	d.Close()
}

func TestDispatcherConcurrentEmit(t *testing.T) {
	d := NewDispatcher(nil)

	var mu sync.Mutex
	count := 0
	require.NoError(t, d.Observe("count", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))
	sub := d.Subscribe(1000)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				d.Emit("test", ErrorRecorded{Key: "k", Count: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, count)
	assert.Len(t, sub.C, 500)
}
