package modlink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modlink/descriptor"
)

// testModule declares a cell and a channel and records lifecycle calls.
type testModule struct {
	name    string
	deps    []string
	log     *callLog
	initErr error
	stopErr error

	score *Cell[int]
}

func (m *testModule) Name() string           { return m.name }
func (m *testModule) Dependencies() []string { return m.deps }

func (m *testModule) Init(app Application) error {
	m.log.add("init:" + m.name)
	if m.initErr != nil {
		return m.initErr
	}
	var err error
	m.score, err = DeclareCell(app.Exchange(), m.name+".Score", 0, OwnedBy(m.name))
	return err
}

func (m *testModule) Start(context.Context) error {
	m.log.add("start:" + m.name)
	return nil
}

func (m *testModule) Stop(context.Context) error {
	m.log.add("stop:" + m.name)
	return m.stopErr
}

type describedModule struct{ testModule }

func (m *describedModule) Describe() *descriptor.Descriptor {
	return &descriptor.Descriptor{ModuleID: m.name, Assembly: descriptor.Assembly{Name: "custom"}}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (r *eventRecorder) observer(id string) Observer {
	return NewFunctionalObserver(id, func(_ context.Context, e cloudevents.Event) error {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
		return nil
	})
}

func (r *eventRecorder) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type() == eventType {
			return true
		}
	}
	return false
}

func TestHostLifecycleOrder(t *testing.T) {
	log := &callLog{}
	host := NewHost(nil, nil)
	require.NoError(t, host.RegisterModule(&testModule{name: "hud", deps: []string{"inventory"}, log: log}))
	require.NoError(t, host.RegisterModule(&testModule{name: "inventory", log: log}))
	require.NoError(t, host.RegisterModule(&testModule{name: "audio", log: log}))

	assert.Equal(t, []string{"hud", "inventory", "audio"}, host.Modules())
	require.NoError(t, host.Start())
	assert.Equal(t, []string{"inventory", "hud", "audio"}, host.Modules())
	require.NoError(t, host.Stop())

	assert.Equal(t, []string{
		"init:inventory", "init:hud", "init:audio",
		"start:inventory", "start:hud", "start:audio",
		"stop:audio", "stop:hud", "stop:inventory",
	}, log.get())
}

func TestHostStartEntersNewScope(t *testing.T) {
	m := &testModule{name: "scoring", log: &callLog{}}
	host := NewHost(nil, nil)
	require.NoError(t, host.RegisterModule(m))

	require.NoError(t, host.Start())
	assert.Equal(t, uint64(1), host.Coordinator().Session())
	m.score.Set(50)
	require.NoError(t, host.Stop())
	assert.Equal(t, 50, m.score.Get(), "stop leaves the final state inspectable")

	require.NoError(t, host.Start())
	assert.Equal(t, 0, m.score.Get(), "the next session starts from the initial value")
	assert.Equal(t, uint64(2), host.Coordinator().Session())

	m.score.Set(9)
	session, err := host.NewSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), session)
	assert.Equal(t, 0, m.score.Get())
	require.NoError(t, host.Stop())

	_, err = host.NewSession(context.Background())
	assert.ErrorIs(t, err, ErrHostNotStarted)
}

func TestHostErrors(t *testing.T) {
	log := &callLog{}

	host := NewHost(nil, nil)
	assert.ErrorIs(t, host.RegisterModule(nil), ErrModuleNil)
	require.NoError(t, host.RegisterModule(&testModule{name: "a", log: log}))
	assert.ErrorIs(t, host.RegisterModule(&testModule{name: "a", log: log}), ErrModuleAlreadyRegistered)
	assert.ErrorIs(t, host.Stop(), ErrHostNotStarted)

	cyclic := NewHost(nil, nil)
	require.NoError(t, cyclic.RegisterModule(&testModule{name: "a", deps: []string{"b"}, log: log}))
	require.NoError(t, cyclic.RegisterModule(&testModule{name: "b", deps: []string{"a"}, log: log}))
	err := cyclic.Init()
	assert.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "a -> b -> a")

	missing := NewHost(nil, nil)
	require.NoError(t, missing.RegisterModule(&testModule{name: "a", deps: []string{"ghost"}, log: log}))
	assert.ErrorIs(t, missing.Init(), ErrModuleDependencyMissing)

	boom := errors.New("boom")
	failing := NewHost(nil, nil)
	require.NoError(t, failing.RegisterModule(&testModule{name: "a", initErr: boom, log: log}))
	assert.ErrorIs(t, failing.Start(), boom)

	started := NewHost(nil, nil)
	require.NoError(t, started.Start())
	assert.ErrorIs(t, started.Start(), ErrHostAlreadyStarted)
	require.NoError(t, started.Stop())
}

func TestHostStopCollectsErrors(t *testing.T) {
	log := &callLog{}
	boom := errors.New("boom")
	host := NewHost(nil, nil)
	require.NoError(t, host.RegisterModule(&testModule{name: "a", log: log, stopErr: boom}))
	require.NoError(t, host.RegisterModule(&testModule{name: "b", log: log}))

	require.NoError(t, host.Start())
	err := host.Stop()
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, log.get(), "stop:a")
	assert.Contains(t, log.get(), "stop:b")
}

func TestHostReportsHandlerFailuresToObservers(t *testing.T) {
	rec := &eventRecorder{}
	host := NewHost(nil, nil)
	require.NoError(t, host.RegisterObserver(rec.observer("rec"), EventTypeHandlerFailed))

	ch, err := DeclareChannel[int](host.Exchange(), "Damage")
	require.NoError(t, err)
	_, err = ch.SubscribeFunc("fragile", func(context.Context, int) error { return errors.New("cannot") })
	require.NoError(t, err)

	ch.Publish(context.Background(), 5)
	assert.Eventually(t, func() bool { return rec.has(EventTypeHandlerFailed) }, time.Second, 5*time.Millisecond)
}

func TestHostLifecycleEvents(t *testing.T) {
	rec := &eventRecorder{}
	host := NewHost(nil, nil)
	require.NoError(t, host.RegisterObserver(rec.observer("rec")))
	require.NoError(t, host.RegisterModule(&testModule{name: "a", log: &callLog{}}))

	require.NoError(t, host.Start())
	require.NoError(t, host.Stop())

	for _, eventType := range []string{
		EventTypeModuleRegistered, EventTypeScopeEntered, EventTypeModuleStarted,
		EventTypeHostStarted, EventTypeModuleStopped, EventTypeScopeExited, EventTypeHostStopped,
	} {
		assert.Eventually(t, func() bool { return rec.has(eventType) }, time.Second, 5*time.Millisecond, eventType)
	}

	infos := host.GetObservers()
	require.Len(t, infos, 1)
	assert.Equal(t, "rec", infos[0].ID)
	require.NoError(t, host.UnregisterObserver(rec.observer("rec")))
	assert.Empty(t, host.GetObservers())
	assert.ErrorIs(t, host.RegisterObserver(nil), ErrObserverNil)
}

func TestHostDescriptorsAndTeardown(t *testing.T) {
	log := &callLog{}
	host := NewHost(nil, nil)
	require.NoError(t, host.RegisterModule(&testModule{name: "plain", log: log}))
	require.NoError(t, host.RegisterModule(&describedModule{testModule{name: "fancy", log: log}}))
	require.NoError(t, host.Init())

	ds := host.Descriptors()
	require.Len(t, ds, 2)
	assert.Equal(t, []descriptor.CellEntry{{Name: "plain.Score", Type: "int"}}, ds[0].Cells)
	assert.Equal(t, "custom", ds[1].Assembly.Name)

	assert.Len(t, host.Exchange().Artifacts(), 2)
	host.Teardown()
	assert.Empty(t, host.Exchange().Artifacts())
	assert.Equal(t, 0, host.Coordinator().Len())
}

func TestHostRunContext(t *testing.T) {
	host := NewHost(nil, nil)
	require.NoError(t, host.RegisterModule(&testModule{name: "a", log: &callLog{}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- host.RunContext(ctx) }()

	assert.Eventually(t, func() bool { return host.Coordinator().Session() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunContext did not return")
	}
	assert.Empty(t, host.Exchange().Artifacts())
}

func TestHostSessionSchedule(t *testing.T) {
	host := NewHost(&Config{SessionSchedule: "not a schedule"}, nil)
	assert.ErrorIs(t, host.Start(), ErrInvalidSessionSchedule)

	rotating := NewHost(&Config{SessionSchedule: "@every 1s"}, nil)
	require.NoError(t, rotating.Start())
	assert.Eventually(t, func() bool { return rotating.Coordinator().Session() >= 2 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, rotating.Stop())
}
