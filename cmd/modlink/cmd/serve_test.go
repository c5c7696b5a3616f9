package cmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modlink"
	"github.com/GoCodeAlone/modlink/descriptor"
)

// fakeCorpus hands the watch callback to the test and blocks until cancelled.
type fakeCorpus struct {
	initial  []*descriptor.Descriptor
	callback chan func([]*descriptor.Descriptor, error)
}

func (f *fakeCorpus) Dir() string { return "fake" }

func (f *fakeCorpus) Read(context.Context) ([]*descriptor.Descriptor, error) {
	return f.initial, nil
}

func (f *fakeCorpus) Watch(ctx context.Context, onChange func([]*descriptor.Descriptor, error)) error {
	f.callback <- onChange
	<-ctx.Done()
	return nil
}

func TestCorpusWatcherTracksModuleCount(t *testing.T) {
	corpus := &fakeCorpus{
		initial:  []*descriptor.Descriptor{{ModuleID: "inventory"}},
		callback: make(chan func([]*descriptor.Descriptor, error), 1),
	}

	var (
		mu     sync.Mutex
		events []cloudevents.Event
	)
	host := modlink.NewHost(nil, nil)
	require.NoError(t, host.RegisterObserver(modlink.NewFunctionalObserver("rec", func(_ context.Context, e cloudevents.Event) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		return nil
	}), modlink.EventTypeCorpusChanged))
	require.NoError(t, host.RegisterModule(newCorpusWatcher(corpus)))
	require.NoError(t, host.Start())

	count, err := modlink.LookupCell[int](host.Exchange(), "CorpusModules")
	require.NoError(t, err)
	assert.Equal(t, 1, count.Get())

	var onChange func([]*descriptor.Descriptor, error)
	select {
	case onChange = <-corpus.callback:
	case <-time.After(5 * time.Second):
		t.Fatal("watch was not started")
	}

	onChange([]*descriptor.Descriptor{{ModuleID: "inventory"}, {ModuleID: "hud"}}, nil)
	assert.Equal(t, 2, count.Get())

	onChange(nil, errors.New("unreadable"))
	assert.Equal(t, 2, count.Get(), "a failed read keeps the last count")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, host.Stop())
}

func TestCorpusWatcherCountSurvivesNewSession(t *testing.T) {
	corpus := &fakeCorpus{
		initial:  []*descriptor.Descriptor{{ModuleID: "inventory"}},
		callback: make(chan func([]*descriptor.Descriptor, error), 1),
	}
	host := modlink.NewHost(nil, nil)
	require.NoError(t, host.RegisterModule(newCorpusWatcher(corpus)))
	require.NoError(t, host.Start())

	state, err := host.Exchange().Inspect("CorpusModules")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current)

	onChange := <-corpus.callback
	onChange([]*descriptor.Descriptor{{ModuleID: "inventory"}, {ModuleID: "hud"}}, nil)

	_, err = host.NewSession(context.Background())
	require.NoError(t, err)
	state, err = host.Exchange().Inspect("CorpusModules")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Current, "a new session keeps the corpus count")

	require.NoError(t, host.Stop())
	assert.NotContains(t, host.Coordinator().CellIDs(), "CorpusModules.reseed")

	require.NoError(t, host.Start())
	state, err = host.Exchange().Inspect("CorpusModules")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Current, "a restart reads the corpus again")
	require.NoError(t, host.Stop())
}

func TestCorpusWatcherStopBeforeStart(t *testing.T) {
	w := newCorpusWatcher(&fakeCorpus{})
	assert.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, "modlink.corpus", w.Name())
}
