package modlink

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Token identifies one subscription on one channel.
type Token string

// Signal is the payload type of channels that carry no data.
type Signal = struct{}

// Subscriber receives payloads published on a Channel.
type Subscriber[T any] interface {
	// OnPublish handles one payload. A returned error (or a panic) is reported
	// to the channel's FailureReporter and does not stop the fan-out.
	OnPublish(ctx context.Context, payload T) error

	// SubscriberID identifies the subscriber. A channel holds each ID at most once.
	SubscriberID() string
}

type funcSubscriber[T any] struct {
	id string
	fn func(ctx context.Context, payload T) error
}

func (f *funcSubscriber[T]) OnPublish(ctx context.Context, payload T) error {
	return f.fn(ctx, payload)
}

func (f *funcSubscriber[T]) SubscriberID() string { return f.id }

// NewFuncSubscriber adapts a function to the Subscriber interface.
func NewFuncSubscriber[T any](id string, fn func(ctx context.Context, payload T) error) Subscriber[T] {
	return &funcSubscriber[T]{id: id, fn: fn}
}

// SubscriberInfo describes a live subscription.
type SubscriberInfo struct {
	ID           string    `json:"id"`
	Token        Token     `json:"token"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

type subscription[T any] struct {
	token        Token
	sub          Subscriber[T]
	subscribedAt time.Time
	active       atomic.Bool
}

// ChannelOption configures a Channel at construction.
type ChannelOption func(*channelOptions)

type channelOptions struct {
	reporter FailureReporter
	logger   Logger
}

// WithFailureReporter sets the sink for contained subscriber failures.
// The default reports through the channel logger.
func WithFailureReporter(r FailureReporter) ChannelOption {
	return func(o *channelOptions) { o.reporter = r }
}

// WithChannelLogger sets the channel logger.
func WithChannelLogger(l Logger) ChannelOption {
	return func(o *channelOptions) { o.logger = l }
}

// Channel is a named, typed publish/subscribe endpoint with fully
// synchronous fan-out.
//
// Publish invokes the subscribers present when it was called, most recently
// subscribed first. The subscriber list is copy-on-write, so subscribing or
// unsubscribing from inside a handler never disturbs a dispatch in progress:
// new subscribers wait for the next Publish, and unsubscribed ones that have
// not run yet are skipped.
//
// Payloads are passed as-is. When T is a mutable structure (a pointer, map or
// slice) later subscribers see every mutation made by earlier ones in the same
// fan-out. That is allowed on purpose for cheap chained transforms, and it
// makes subscription order part of the contract: callers relying on it must
// subscribe in a known order.
type Channel[T any] struct {
	id       string
	reporter FailureReporter
	logger   Logger

	mu      sync.Mutex
	subs    []*subscription[T] // never mutated in place
	byID    map[string]*subscription[T]
	byToken map[Token]*subscription[T]
}

// NewChannel creates a channel with no subscribers.
func NewChannel[T any](id string, opts ...ChannelOption) *Channel[T] {
	o := channelOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := loggerOrNop(o.logger)
	reporter := o.reporter
	if reporter == nil {
		reporter = LogReporter{Logger: logger}
	}
	return &Channel[T]{
		id:       id,
		reporter: reporter,
		logger:   logger,
		byID:     make(map[string]*subscription[T]),
		byToken:  make(map[Token]*subscription[T]),
	}
}

// NewSignal creates a payload-less channel.
func NewSignal(id string, opts ...ChannelOption) *Channel[Signal] {
	return NewChannel[Signal](id, opts...)
}

// ID returns the channel name.
func (c *Channel[T]) ID() string { return c.id }

// Subscribe appends sub to the subscriber list. Subscribing an ID that is
// already present is deduplicated: the existing token is returned and the
// original position is kept. The first subscriber registered under an ID
// stays in place; a different subscriber reusing the ID is not added and a
// warning is logged.
func (c *Channel[T]) Subscribe(sub Subscriber[T]) (Token, error) {
	if sub == nil {
		return "", ErrSubscriberNil
	}
	id := sub.SubscriberID()
	if id == "" {
		return "", ErrSubscriberIDEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[id]; ok {
		if sameSubscriber(existing.sub, sub) {
			c.logger.Debug("Duplicate subscribe ignored", "channel", c.id, "subscriber", id)
		} else {
			c.logger.Warn("Subscriber ID already taken, keeping the first subscriber",
				"channel", c.id, "subscriber", id, "token", existing.token)
		}
		return existing.token, nil
	}

	s := &subscription[T]{
		token:        Token(uuid.NewString()),
		sub:          sub,
		subscribedAt: time.Now(),
	}
	s.active.Store(true)

	next := make([]*subscription[T], len(c.subs), len(c.subs)+1)
	copy(next, c.subs)
	c.subs = append(next, s)
	c.byID[id] = s
	c.byToken[s.token] = s

	c.logger.Debug("Subscribed", "channel", c.id, "subscriber", id, "token", s.token)
	return s.token, nil
}

// SubscribeFunc subscribes a function under the given subscriber id.
func (c *Channel[T]) SubscribeFunc(id string, fn func(ctx context.Context, payload T) error) (Token, error) {
	if fn == nil {
		return "", ErrSubscriberNil
	}
	return c.Subscribe(NewFuncSubscriber(id, fn))
}

// Unsubscribe removes the subscription identified by token. Unknown or
// already removed tokens are ignored. Once Unsubscribe returns, the handler
// is not invoked again, including by a Publish already in progress on the
// same goroutine.
func (c *Channel[T]) Unsubscribe(token Token) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.byToken[token]
	if !ok {
		return
	}
	s.active.Store(false)
	delete(c.byToken, token)
	delete(c.byID, s.sub.SubscriberID())
	c.subs = slices.DeleteFunc(slices.Clone(c.subs), func(v *subscription[T]) bool { return v == s })

	c.logger.Debug("Unsubscribed", "channel", c.id, "subscriber", s.sub.SubscriberID(), "token", token)
}

// Len returns the number of live subscriptions.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Subscribers lists live subscriptions in subscription order.
func (c *Channel[T]) Subscribers() []SubscriberInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	infos := make([]SubscriberInfo, 0, len(c.subs))
	for _, s := range c.subs {
		infos = append(infos, SubscriberInfo{
			ID:           s.sub.SubscriberID(),
			Token:        s.token,
			SubscribedAt: s.subscribedAt,
		})
	}
	return infos
}

// sameSubscriber compares without panicking on non-comparable dynamic types.
func sameSubscriber[T any](a, b Subscriber[T]) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	return ta == tb && ta.Comparable() && a == b
}

func (c *Channel[T]) snapshot() []*subscription[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs
}

// dispatchKey marks a context as being inside a dispatch of one channel.
type dispatchKey[T any] struct{ ch *Channel[T] }

type pendingPublish[T any] struct {
	payload  T
	snapshot []*subscription[T]
}

// dispatchFrame queues publishes made from inside handlers of the same
// channel. A frame closes when its drain finds the queue empty; handlers may
// keep the ctx past that point, so a push on a closed frame is refused.
type dispatchFrame[T any] struct {
	mu     sync.Mutex
	queue  []pendingPublish[T]
	closed bool
}

func (f *dispatchFrame[T]) push(p pendingPublish[T]) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, false
	}
	f.queue = append(f.queue, p)
	return len(f.queue), true
}

func (f *dispatchFrame[T]) pop() (pendingPublish[T], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		f.closed = true
		return pendingPublish[T]{}, false
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	return p, true
}

// Publish delivers payload to every subscriber registered at call time, in
// reverse subscription order, and returns when all of them have run.
//
// A handler that publishes on the same channel with the context it was given
// does not recurse: the nested payload is queued with a snapshot taken at the
// nested call, and the outermost Publish drains the queue in FIFO order after
// its own fan-out, before returning. Publishing with an unrelated context, or
// with a handler context retained after its dispatch finished draining,
// starts an independent dispatch.
func (c *Channel[T]) Publish(ctx context.Context, payload T) {
	if ctx == nil {
		ctx = context.Background()
	}
	snap := c.snapshot()

	if frame, ok := ctx.Value(dispatchKey[T]{c}).(*dispatchFrame[T]); ok {
		if depth, queued := frame.push(pendingPublish[T]{payload: payload, snapshot: snap}); queued {
			c.logger.Debug("Reentrant publish queued", "channel", c.id, "queued", depth)
			return
		}
	}

	frame := &dispatchFrame[T]{}
	dctx := context.WithValue(ctx, dispatchKey[T]{c}, frame)

	c.dispatch(dctx, payload, snap)
	for {
		next, ok := frame.pop()
		if !ok {
			return
		}
		c.dispatch(dctx, next.payload, next.snapshot)
	}
}

func (c *Channel[T]) dispatch(ctx context.Context, payload T, snap []*subscription[T]) {
	for i := len(snap) - 1; i >= 0; i-- {
		s := snap[i]
		if !s.active.Load() {
			continue
		}
		c.invoke(ctx, s, payload)
	}
}

func (c *Channel[T]) invoke(ctx context.Context, s *subscription[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			c.report(ctx, s, err, true)
		}
	}()

	if err := s.sub.OnPublish(ctx, payload); err != nil {
		c.report(ctx, s, err, false)
	}
}

func (c *Channel[T]) report(ctx context.Context, s *subscription[T], err error, panicked bool) {
	c.reporter.ReportFailure(ctx, HandlerFailure{
		ChannelID:    c.id,
		SubscriberID: s.sub.SubscriberID(),
		Token:        s.token,
		Err:          err,
		Panicked:     panicked,
	})
}

func (c *Channel[T]) lenAny() int { return c.Len() }
