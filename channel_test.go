package modlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callLog records handler invocations in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	l.calls = append(l.calls, s)
	l.mu.Unlock()
}

func (l *callLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func recordingHandler[T any](log *callLog, id string) func(context.Context, T) error {
	return func(context.Context, T) error {
		log.add(id)
		return nil
	}
}

type failureSink struct {
	mu       sync.Mutex
	failures []HandlerFailure
}

func (s *failureSink) ReportFailure(_ context.Context, f HandlerFailure) {
	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
}

func TestPublishReverseSubscriptionOrder(t *testing.T) {
	c := NewSignal("C")
	log := &callLog{}
	for _, id := range []string{"H1", "H2", "H3"} {
		_, err := c.SubscribeFunc(id, recordingHandler[Signal](log, id))
		require.NoError(t, err)
	}

	c.Publish(context.Background(), Signal{})
	assert.Equal(t, []string{"H3", "H2", "H1"}, log.get())
}

func TestUnsubscribeSelfDuringPublish(t *testing.T) {
	c := NewSignal("C")
	log := &callLog{}

	_, err := c.SubscribeFunc("H1", recordingHandler[Signal](log, "H1"))
	require.NoError(t, err)
	var h2 Token
	h2, err = c.SubscribeFunc("H2", func(context.Context, Signal) error {
		log.add("H2")
		c.Unsubscribe(h2)
		return nil
	})
	require.NoError(t, err)
	_, err = c.SubscribeFunc("H3", recordingHandler[Signal](log, "H3"))
	require.NoError(t, err)

	c.Publish(context.Background(), Signal{})
	assert.Equal(t, []string{"H3", "H2", "H1"}, log.get())

	c.Publish(context.Background(), Signal{})
	assert.Equal(t, []string{"H3", "H2", "H1", "H3", "H1"}, log.get())
	assert.Equal(t, 2, c.Len())
}

func TestUnsubscribePeerNotYetInvoked(t *testing.T) {
	c := NewChannel[int]("C")
	log := &callLog{}

	h1, err := c.SubscribeFunc("H1", recordingHandler[int](log, "H1"))
	require.NoError(t, err)
	_, err = c.SubscribeFunc("H2", func(context.Context, int) error {
		log.add("H2")
		c.Unsubscribe(h1)
		return nil
	})
	require.NoError(t, err)

	c.Publish(context.Background(), 1)
	assert.Equal(t, []string{"H2"}, log.get(), "H1 unsubscribed before its turn is skipped")
}

func TestSubscribeDuringPublishWaitsForNextPublish(t *testing.T) {
	c := NewChannel[int]("C")
	log := &callLog{}

	_, err := c.SubscribeFunc("H1", func(context.Context, int) error {
		log.add("H1")
		_, err := c.SubscribeFunc("late", recordingHandler[int](log, "late"))
		return err
	})
	require.NoError(t, err)

	c.Publish(context.Background(), 1)
	assert.Equal(t, []string{"H1"}, log.get())

	c.Publish(context.Background(), 2)
	assert.Equal(t, []string{"H1", "late", "H1"}, log.get())
}

func TestInterleavedSubscribeUnsubscribePublish(t *testing.T) {
	c := NewChannel[int]("C")
	counts := make(map[string]int)
	tokens := make(map[string]Token)
	subscribe := func(id string) {
		tok, err := c.SubscribeFunc(id, func(context.Context, int) error {
			counts[id]++
			return nil
		})
		require.NoError(t, err)
		tokens[id] = tok
	}

	subscribe("a")
	subscribe("b")
	c.Publish(context.Background(), 0)
	c.Unsubscribe(tokens["a"])
	subscribe("c")
	c.Publish(context.Background(), 0)
	c.Unsubscribe(tokens["b"])
	c.Unsubscribe(tokens["b"])
	c.Publish(context.Background(), 0)

	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 2}, counts)
}

func TestDuplicateSubscribeIsDeduplicated(t *testing.T) {
	c := NewSignal("C")
	log := &callLog{}
	first, err := c.SubscribeFunc("H", recordingHandler[Signal](log, "H"))
	require.NoError(t, err)
	second, err := c.SubscribeFunc("H", recordingHandler[Signal](log, "H-again"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Len())
	c.Publish(context.Background(), Signal{})
	assert.Equal(t, []string{"H"}, log.get())
}

// recordingLogger keeps log entries by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries map[string][]string
}

func (l *recordingLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.entries = make(map[string][]string)
	}
	l.entries[level] = append(l.entries[level], msg)
}

func (l *recordingLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l *recordingLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }

func (l *recordingLogger) get(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries[level]...)
}

type namedSubscriber struct {
	id  string
	log *callLog
}

func (s *namedSubscriber) SubscriberID() string { return s.id }

func (s *namedSubscriber) OnPublish(context.Context, Signal) error {
	s.log.add(s.id)
	return nil
}

func TestDuplicateSubscribeWithDifferentHandlerWarns(t *testing.T) {
	logger := &recordingLogger{}
	c := NewSignal("C", WithChannelLogger(logger))
	log := &callLog{}
	first := &namedSubscriber{id: "H", log: log}

	tok, err := c.Subscribe(first)
	require.NoError(t, err)
	again, err := c.Subscribe(first)
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Empty(t, logger.get("warn"), "the same subscriber again is a quiet no-op")

	other, err := c.Subscribe(&namedSubscriber{id: "H", log: &callLog{}})
	require.NoError(t, err)
	assert.Equal(t, tok, other)
	assert.Len(t, logger.get("warn"), 1)

	c.Publish(context.Background(), Signal{})
	assert.Equal(t, []string{"H"}, log.get(), "the first subscriber keeps the id")
}

func TestSubscribeValidation(t *testing.T) {
	c := NewSignal("C")
	_, err := c.Subscribe(nil)
	assert.ErrorIs(t, err, ErrSubscriberNil)
	_, err = c.SubscribeFunc("", recordingHandler[Signal](&callLog{}, ""))
	assert.ErrorIs(t, err, ErrSubscriberIDEmpty)
	_, err = c.SubscribeFunc("x", nil)
	assert.ErrorIs(t, err, ErrSubscriberNil)

	c.Unsubscribe("unknown")
	assert.Equal(t, 0, c.Len())
}

func TestHandlerFailureIsContained(t *testing.T) {
	sink := &failureSink{}
	c := NewChannel[string]("C", WithFailureReporter(sink))
	log := &callLog{}
	boom := errors.New("boom")

	_, err := c.SubscribeFunc("H1", recordingHandler[string](log, "H1"))
	require.NoError(t, err)
	_, err = c.SubscribeFunc("failing", func(context.Context, string) error { return boom })
	require.NoError(t, err)
	_, err = c.SubscribeFunc("panicking", func(context.Context, string) error { panic("kaboom") })
	require.NoError(t, err)
	_, err = c.SubscribeFunc("H4", recordingHandler[string](log, "H4"))
	require.NoError(t, err)

	assert.NotPanics(t, func() { c.Publish(context.Background(), "x") })
	assert.Equal(t, []string{"H4", "H1"}, log.get())

	require.Len(t, sink.failures, 2)
	assert.Equal(t, "panicking", sink.failures[0].SubscriberID)
	assert.True(t, sink.failures[0].Panicked)
	assert.Contains(t, sink.failures[0].Error(), "kaboom")
	assert.Equal(t, "failing", sink.failures[1].SubscriberID)
	assert.ErrorIs(t, sink.failures[1], boom)
	assert.Equal(t, "C", sink.failures[1].ChannelID)
}

type inventory struct{ items []string }

func TestMutablePayloadObservedByLaterSubscribers(t *testing.T) {
	c := NewChannel[*inventory]("Loot")
	var seen []string

	_, err := c.SubscribeFunc("reader", func(_ context.Context, inv *inventory) error {
		seen = append(seen, inv.items...)
		return nil
	})
	require.NoError(t, err)
	_, err = c.SubscribeFunc("enricher", func(_ context.Context, inv *inventory) error {
		inv.items = append(inv.items, "bonus")
		return nil
	})
	require.NoError(t, err)

	c.Publish(context.Background(), &inventory{items: []string{"coin"}})
	assert.Equal(t, []string{"coin", "bonus"}, seen)
}

func TestReentrantPublishIsQueuedAndDrainedFIFO(t *testing.T) {
	c := NewChannel[int]("C")
	log := &callLog{}

	_, err := c.SubscribeFunc("H1", func(_ context.Context, v int) error {
		log.add(fmt.Sprintf("H1:%d", v))
		return nil
	})
	require.NoError(t, err)
	_, err = c.SubscribeFunc("H2", func(ctx context.Context, v int) error {
		log.add(fmt.Sprintf("H2:%d", v))
		if v == 0 {
			c.Publish(ctx, 1)
			c.Publish(ctx, 2)
			log.add("H2:returned")
		}
		return nil
	})
	require.NoError(t, err)

	c.Publish(context.Background(), 0)
	assert.Equal(t, []string{
		"H2:0", "H2:returned", "H1:0",
		"H2:1", "H1:1",
		"H2:2", "H1:2",
	}, log.get())
}

func TestPublishWithRetainedHandlerContextIsDelivered(t *testing.T) {
	c := NewChannel[int]("C")
	var (
		mu   sync.Mutex
		seen []int
		wg   sync.WaitGroup
	)

	_, err := c.SubscribeFunc("H1", func(ctx context.Context, v int) error {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
		if v == 1 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Publish(ctx, 2)
			}()
		}
		return nil
	})
	require.NoError(t, err)

	c.Publish(context.Background(), 1)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{1, 2}, seen)
}

func TestPublishWithContextOfFinishedDispatch(t *testing.T) {
	c := NewChannel[int]("C")
	log := &callLog{}
	var kept context.Context

	_, err := c.SubscribeFunc("H1", func(ctx context.Context, v int) error {
		log.add(fmt.Sprintf("H1:%d", v))
		if kept == nil {
			kept = ctx
		}
		return nil
	})
	require.NoError(t, err)

	c.Publish(context.Background(), 1)
	require.NotNil(t, kept)
	c.Publish(kept, 2)
	c.Publish(kept, 3)

	assert.Equal(t, []string{"H1:1", "H1:2", "H1:3"}, log.get())
}

func TestReentrantPublishUsesSnapshotOfNestedCall(t *testing.T) {
	c := NewChannel[int]("C")
	log := &callLog{}

	_, err := c.SubscribeFunc("H1", func(ctx context.Context, v int) error {
		log.add(fmt.Sprintf("H1:%d", v))
		if v == 0 {
			_, err := c.SubscribeFunc("late", func(_ context.Context, v int) error {
				log.add(fmt.Sprintf("late:%d", v))
				return nil
			})
			if err != nil {
				return err
			}
			c.Publish(ctx, 1)
		}
		return nil
	})
	require.NoError(t, err)

	c.Publish(context.Background(), 0)
	assert.Equal(t, []string{"H1:0", "late:1", "H1:1"}, log.get())
}

func TestPublishOnOtherChannelFromHandlerIsImmediate(t *testing.T) {
	a := NewChannel[int]("A")
	b := NewChannel[int]("B")
	log := &callLog{}

	_, err := b.SubscribeFunc("B1", func(_ context.Context, v int) error {
		log.add(fmt.Sprintf("B1:%d", v))
		return nil
	})
	require.NoError(t, err)
	_, err = a.SubscribeFunc("A1", func(ctx context.Context, v int) error {
		b.Publish(ctx, v*10)
		log.add(fmt.Sprintf("A1:%d", v))
		return nil
	})
	require.NoError(t, err)

	a.Publish(context.Background(), 1)
	assert.Equal(t, []string{"B1:10", "A1:1"}, log.get())
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	c := NewChannel[int]("C")
	var mu sync.Mutex
	total := 0
	_, err := c.SubscribeFunc("counter", func(_ context.Context, v int) error {
		mu.Lock()
		total += v
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Publish(context.Background(), 1)
		}()
		go func() {
			defer wg.Done()
			tok, err := c.SubscribeFunc(fmt.Sprintf("tmp-%d", i), func(context.Context, int) error { return nil })
			if err == nil {
				c.Unsubscribe(tok)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, total)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "counter", c.Subscribers()[0].ID)
}

func TestMultiReporterAndLogReporter(t *testing.T) {
	first, second := &failureSink{}, &failureSink{}
	r := MultiReporter{first, nil, LogReporter{}, second}
	r.ReportFailure(context.Background(), HandlerFailure{ChannelID: "C", SubscriberID: "S", Err: errors.New("x")})

	assert.Len(t, first.failures, 1)
	assert.Len(t, second.failures, 1)
	assert.Equal(t, "subscriber S on channel C failed: x", first.failures[0].Error())
}
