package conductor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/conductor/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures messages handled by one component.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) received() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func newTestBus(t *testing.T) (*Bus, *events.Dispatcher, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	dispatcher := events.NewDispatcher(nil)
	t.Cleanup(dispatcher.Close)
	return NewBus(WithBusLogger(logger), WithBusEmitter(dispatcher)), dispatcher, logger
}

func TestBusRegister(t *testing.T) {
	bus, dispatcher, logger := newTestBus(t)
	sub := dispatcher.Subscribe(16, events.CategoryModule)

	require.NoError(t, bus.Register("db", Capabilities{Shutdown: func(context.Context) error { return nil }}, RegisterOptions{Priority: 2}))
	rec, ok := bus.Record("db")
	require.True(t, ok)
	assert.Equal(t, ComponentRegistered, rec.State)
	assert.Equal(t, 2, rec.Priority)
	assert.Equal(t, Hooks{Shutdown: true}, rec.Hooks)
	assert.False(t, rec.RegisteredAt.IsZero())

	e := <-sub.C
	assert.Equal(t, events.ModuleRegistered{ID: "db"}, e.Payload)

	require.NoError(t, bus.Register("db", Capabilities{}, RegisterOptions{}))
	e = <-sub.C
	assert.Equal(t, events.ModuleRegistered{ID: "db", Replaced: true}, e.Payload)
	assert.True(t, logger.has("WARN", "Component re-registered, previous registration replaced"))
	assert.Len(t, bus.Records(), 1)

	assert.ErrorIs(t, bus.Register("", Capabilities{}, RegisterOptions{}), ErrComponentIDEmpty)
}

func TestBusReRegisterDropsOldSubscriptions(t *testing.T) {
	bus, _, _ := newTestBus(t)
	var r recorder

	require.NoError(t, bus.Register("a", Capabilities{HandleMessage: r.handle}, RegisterOptions{Channels: map[string]string{"old": ""}}))
	require.NoError(t, bus.Register("a", Capabilities{HandleMessage: r.handle}, RegisterOptions{Channels: map[string]string{"new": "fresh"}}))

	assert.Empty(t, bus.Subscribers("old"))
	assert.Equal(t, []string{"a"}, bus.Subscribers("new"))
}

func TestBusReRegisterKeepsDeliveryPosition(t *testing.T) {
	bus, _, _ := newTestBus(t)
	var got recorder

	require.NoError(t, bus.Register("a", Capabilities{HandleMessage: got.handle}, RegisterOptions{Channels: map[string]string{"news": "v1", "old": ""}}))
	require.NoError(t, bus.Register("b", Capabilities{HandleMessage: got.handle}, RegisterOptions{Channels: map[string]string{"news": ""}}))
	require.NoError(t, bus.Register("a", Capabilities{HandleMessage: got.handle}, RegisterOptions{Channels: map[string]string{"news": "v2"}}))

	assert.Equal(t, []string{"a", "b"}, bus.Subscribers("news"))
	assert.Empty(t, bus.Subscribers("old"))

	assert.Equal(t, 2, bus.Broadcast(context.Background(), "news", nil, "x"))
	msgs := got.received()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Target)
	assert.Equal(t, "v2", msgs[0].Event)
	assert.Equal(t, "b", msgs[1].Target)
}

func TestBusLoadOrder(t *testing.T) {
	bus, _, _ := newTestBus(t)
	require.NoError(t, bus.Register("api", Capabilities{}, RegisterOptions{Dependencies: []string{"db"}}))

	_, err := bus.LoadOrder()
	assert.ErrorIs(t, err, ErrDependencyNotFound)

	require.NoError(t, bus.Register("db", Capabilities{}, RegisterOptions{}))
	order, err := bus.LoadOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "api"}, order)
}

func TestBusBroadcast(t *testing.T) {
	bus, _, _ := newTestBus(t)
	var a, b, c recorder

	require.NoError(t, bus.Register("a", Capabilities{HandleMessage: a.handle}, RegisterOptions{Channels: map[string]string{"news": "headline"}}))
	require.NoError(t, bus.Register("b", Capabilities{HandleMessage: b.handle}, RegisterOptions{Channels: map[string]string{"news": ""}}))
	require.NoError(t, bus.Register("c", Capabilities{HandleMessage: c.handle}, RegisterOptions{}))
	require.NoError(t, bus.Register("silent", Capabilities{}, RegisterOptions{Channels: map[string]string{"news": ""}}))

	assert.Equal(t, []string{"a", "b", "silent"}, bus.Subscribers("news"))

	delivered := bus.Broadcast(context.Background(), "news", "hello", "a")
	assert.Equal(t, 1, delivered)
	assert.Empty(t, a.received(), "sender must not receive its own broadcast")
	assert.Empty(t, c.received(), "non-subscriber must not receive")

	got := b.received()
	require.Len(t, got, 1)
	assert.Equal(t, "news", got[0].Channel)
	assert.Equal(t, "news", got[0].Event)
	assert.Equal(t, "hello", got[0].Payload)
	assert.Equal(t, "a", got[0].Sender)
	assert.Equal(t, "b", got[0].Target)

	assert.Equal(t, 2, bus.Broadcast(context.Background(), "news", "again", "c"))
	assert.Equal(t, "headline", a.received()[0].Event)

	assert.Zero(t, bus.Broadcast(context.Background(), "nobody", "x", "a"))
}

func TestBusBroadcastSubscriptionOrder(t *testing.T) {
	bus, _, _ := newTestBus(t)

	var mu sync.Mutex
	var order []string
	handler := func(id string) MessageHandler {
		return func(context.Context, Message) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}
	for _, id := range []string{"z", "y", "x"} {
		require.NoError(t, bus.Register(id, Capabilities{HandleMessage: handler(id)}, RegisterOptions{}))
		require.NoError(t, bus.Subscribe(id, "topic", ""))
	}
	require.NoError(t, bus.Subscribe("z", "topic", "relabelled"))

	bus.Broadcast(context.Background(), "topic", nil, "")
	assert.Equal(t, []string{"z", "y", "x"}, order)

	assert.ErrorIs(t, bus.Subscribe("ghost", "topic", ""), ErrComponentNotFound)
}

func TestBusBroadcastContainsFailures(t *testing.T) {
	bus, dispatcher, logger := newTestBus(t)
	sub := dispatcher.Subscribe(8, events.CategoryBus)
	var ok recorder

	boom := errors.New("boom")
	require.NoError(t, bus.Register("fails", Capabilities{HandleMessage: func(context.Context, Message) error { return boom }}, RegisterOptions{Channels: map[string]string{"ch": ""}}))
	require.NoError(t, bus.Register("panics", Capabilities{HandleMessage: func(context.Context, Message) error { panic("bad handler") }}, RegisterOptions{Channels: map[string]string{"ch": ""}}))
	require.NoError(t, bus.Register("ok", Capabilities{HandleMessage: ok.handle}, RegisterOptions{Channels: map[string]string{"ch": ""}}))

	var delivered int
	require.NotPanics(t, func() { delivered = bus.Broadcast(context.Background(), "ch", 1, "") })
	assert.Equal(t, 1, delivered)
	assert.Len(t, ok.received(), 1)
	assert.Len(t, logger.messages("ERROR"), 2)

	first := (<-sub.C).Payload.(events.HandlerFailed)
	assert.Equal(t, "fails", first.Subscriber)
	var herr *HandlerError
	require.ErrorAs(t, first.Err, &herr)
	assert.ErrorIs(t, herr, boom)
	assert.ErrorIs(t, herr, ErrHandlerFailure)

	second := (<-sub.C).Payload.(events.HandlerFailed)
	assert.Equal(t, "panics", second.Subscriber)
	assert.ErrorIs(t, second.Err, ErrHookPanicked)
}

func TestBusSendDirect(t *testing.T) {
	bus, _, _ := newTestBus(t)
	var r recorder
	boom := errors.New("rejected")

	require.NoError(t, bus.Register("target", Capabilities{HandleMessage: r.handle}, RegisterOptions{}))
	require.NoError(t, bus.Register("mute", Capabilities{}, RegisterOptions{}))
	require.NoError(t, bus.Register("angry", Capabilities{HandleMessage: func(context.Context, Message) error { return boom }}, RegisterOptions{}))

	require.NoError(t, bus.SendDirect(context.Background(), "target", "ping", 42, "me"))
	got := r.received()
	require.Len(t, got, 1)
	assert.Equal(t, Message{Event: "ping", Payload: 42, Sender: "me", Target: "target", SentAt: got[0].SentAt}, got[0])

	assert.ErrorIs(t, bus.SendDirect(context.Background(), "ghost", "ping", nil, "me"), ErrComponentNotFound)
	assert.ErrorIs(t, bus.SendDirect(context.Background(), "mute", "ping", nil, "me"), ErrNoMessageHandler)

	err := bus.SendDirect(context.Background(), "angry", "ping", nil, "me")
	assert.ErrorIs(t, err, boom)
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "angry", herr.Component)
}

func TestBusSharedData(t *testing.T) {
	bus, _, _ := newTestBus(t)
	var owner, watcher recorder

	require.NoError(t, bus.Register("owner", Capabilities{HandleMessage: owner.handle}, RegisterOptions{Channels: map[string]string{SharedDataChannel: ""}}))
	require.NoError(t, bus.Register("watcher", Capabilities{HandleMessage: watcher.handle}, RegisterOptions{Channels: map[string]string{SharedDataChannel: ""}}))

	_, ok := bus.GetShared("theme")
	assert.False(t, ok)

	delivered := bus.SetShared(context.Background(), "theme", "dark", "owner")
	assert.Equal(t, 1, delivered)

	entry, ok := bus.GetShared("theme")
	require.True(t, ok)
	assert.Equal(t, "dark", entry.Value)
	assert.Equal(t, "owner", entry.OwnerID)

	require.Len(t, watcher.received(), 1)
	assert.Equal(t, entry, watcher.received()[0].Payload)
	assert.Empty(t, owner.received())

	bus.SetShared(context.Background(), "theme", "light", "watcher")
	entry, _ = bus.GetShared("theme")
	assert.Equal(t, "light", entry.Value)
	assert.Equal(t, "watcher", entry.OwnerID)
	assert.Len(t, owner.received(), 1)

	bus.SetShared(context.Background(), "accent", "blue", "owner")
	assert.Equal(t, []string{"accent", "theme"}, bus.SharedKeys())
}

func TestBusInitializeAndShutdownOrder(t *testing.T) {
	bus, _, _ := newTestBus(t)

	var mu sync.Mutex
	var calls []string
	track := func(s string) {
		mu.Lock()
		calls = append(calls, s)
		mu.Unlock()
	}
	caps := func(id string) Capabilities {
		return Capabilities{
			Initialize: func(context.Context, *Bus) error { track("init " + id); return nil },
			Shutdown:   func(context.Context) error { track("stop " + id); return nil },
		}
	}

	require.NoError(t, bus.Register("C", caps("C"), RegisterOptions{Dependencies: []string{"B"}}))
	require.NoError(t, bus.Register("B", caps("B"), RegisterOptions{Dependencies: []string{"A"}}))
	require.NoError(t, bus.Register("A", caps("A"), RegisterOptions{}))

	report, err := bus.InitializeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, report.Initialized)
	assert.Empty(t, report.Failed)
	assert.True(t, bus.Ready())
	assert.Equal(t, []string{"A", "B", "C"}, bus.Started())
	assert.Len(t, bus.Probes(), 3)

	require.NoError(t, bus.ShutdownAll(context.Background()))
	assert.Equal(t, []string{"init A", "init B", "init C", "stop C", "stop B", "stop A"}, calls)
	assert.Empty(t, bus.Started())

	rec, _ := bus.Record("A")
	assert.Equal(t, ComponentShutdown, rec.State)
}

func TestBusFailedDependencySkipsDependents(t *testing.T) {
	bus, dispatcher, _ := newTestBus(t)
	sub := dispatcher.Subscribe(32, events.CategoryModule)

	boom := errors.New("db unreachable")
	initialized := map[string]bool{}
	require.NoError(t, bus.Register("db", Capabilities{Initialize: func(context.Context, *Bus) error { return boom }}, RegisterOptions{}))
	require.NoError(t, bus.Register("api", Capabilities{Initialize: func(context.Context, *Bus) error { initialized["api"] = true; return nil }}, RegisterOptions{Dependencies: []string{"db"}}))
	require.NoError(t, bus.Register("metrics", Capabilities{Initialize: func(context.Context, *Bus) error { initialized["metrics"] = true; return nil }}, RegisterOptions{}))

	report, err := bus.InitializeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"metrics"}, report.Initialized)
	assert.ElementsMatch(t, []string{"db", "api"}, report.Failed)
	assert.ErrorIs(t, report.Errors["db"], boom)
	assert.ErrorIs(t, report.Errors["api"], ErrDependencyFailed)
	assert.False(t, initialized["api"])
	assert.True(t, initialized["metrics"])
	assert.True(t, bus.Ready())

	rec, _ := bus.Record("api")
	assert.Equal(t, ComponentError, rec.State)
	assert.ErrorIs(t, rec.LastError, ErrDependencyFailed)

	var skipped *events.ModuleError
	for len(sub.C) > 0 {
		if me, ok := (<-sub.C).Payload.(events.ModuleError); ok && me.Skipped {
			skipped = &me
		}
	}
	require.NotNil(t, skipped)
	assert.Equal(t, "api", skipped.ID)
}

func TestBusInitializeTimeout(t *testing.T) {
	logger := &mockLogger{}
	bus := NewBus(WithBusLogger(logger), WithComponentTimeouts(20*time.Millisecond, 20*time.Millisecond))

	require.NoError(t, bus.Register("slow", Capabilities{Initialize: func(ctx context.Context, _ *Bus) error {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return ctx.Err()
	}}, RegisterOptions{}))
	require.NoError(t, bus.Register("stuck", Capabilities{Initialize: func(context.Context, *Bus) error {
		select {}
	}}, RegisterOptions{Priority: 1}))

	start := time.Now()
	report, err := bus.InitializeAll(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"slow", "stuck"}, report.Failed)

	var terr *TimeoutError
	require.ErrorAs(t, report.Errors["stuck"], &terr)
	assert.Equal(t, "initialize", terr.Op)
	assert.ErrorIs(t, report.Errors["stuck"], ErrInitializationTimeout)
}

func TestBusInitializeCancelled(t *testing.T) {
	bus, dispatcher, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, dispatcher.Observe("cancel", func(events.Event) { cancel() }, events.KindModuleInitialized))

	require.NoError(t, bus.Register("a", Capabilities{}, RegisterOptions{}))
	require.NoError(t, bus.Register("b", Capabilities{}, RegisterOptions{Dependencies: []string{"a"}}))

	report, err := bus.InitializeAll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, report.Initialized)
}

func TestBusInitializeUnresolvable(t *testing.T) {
	bus, _, _ := newTestBus(t)
	require.NoError(t, bus.Register("a", Capabilities{}, RegisterOptions{Dependencies: []string{"b"}}))
	require.NoError(t, bus.Register("b", Capabilities{}, RegisterOptions{Dependencies: []string{"a"}}))

	_, err := bus.InitializeAll(context.Background())
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestBusShutdownContinuesAfterErrors(t *testing.T) {
	bus := NewBus(WithComponentTimeouts(0, 20*time.Millisecond))
	boom := errors.New("close failed")
	var stopped []string

	require.NoError(t, bus.Register("a", Capabilities{Shutdown: func(context.Context) error { stopped = append(stopped, "a"); return nil }}, RegisterOptions{}))
	require.NoError(t, bus.Register("b", Capabilities{Shutdown: func(context.Context) error { return boom }}, RegisterOptions{Dependencies: []string{"a"}}))
	require.NoError(t, bus.Register("c", Capabilities{Shutdown: func(context.Context) error { select {} }}, RegisterOptions{Dependencies: []string{"b"}}))

	_, err := bus.InitializeAll(context.Background())
	require.NoError(t, err)

	err = bus.ShutdownAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Equal(t, []string{"a"}, stopped)

	rec, _ := bus.Record("b")
	assert.Equal(t, ComponentError, rec.State)
}

func TestBusReset(t *testing.T) {
	bus, _, _ := newTestBus(t)
	require.NoError(t, bus.Register("a", Capabilities{}, RegisterOptions{Channels: map[string]string{"x": ""}}))
	bus.SetShared(context.Background(), "k", 1, "a")

	bus.Reset()
	assert.Empty(t, bus.Records())
	assert.Empty(t, bus.Subscribers("x"))
	assert.Empty(t, bus.SharedKeys())
	order, err := bus.LoadOrder()
	assert.NoError(t, err)
	assert.Empty(t, order)
}
