// Package orch owns the single active call and drives it through signaling,
// negotiation and teardown. All call state is mutated on one event loop.
package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultRingTimeout = 60 * time.Second

var ErrStopped = errors.New("orchestrator stopped")

type Option func(*Orchestrator)

// WithClock replaces the wall clock used for timeouts and the call timer.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithRingTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.ringTimeout = d
		}
	}
}

type Orchestrator struct {
	self     domain.UserRef
	signal   core.SignalChannel
	media    core.MediaAdapter
	presence core.Presence

	clock       clock.Clock
	ringTimeout time.Duration

	ops     chan func()
	done    chan struct{}
	stopped bool

	// closed and posting let shutdown drain every post that reported success.
	postMu  sync.RWMutex
	closed  bool
	posting sync.WaitGroup

	// cur is owned by the loop goroutine.
	cur *call

	subMu   sync.RWMutex
	subs    map[int]func(Update)
	nextSub int

	snapMu sync.RWMutex
	snap   Snapshot
}

func New(self domain.UserRef, sig core.SignalChannel, media core.MediaAdapter, presence core.Presence, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		self:        self,
		signal:      sig,
		media:       media,
		presence:    presence,
		clock:       clock.New(),
		ringTimeout: DefaultRingTimeout,
		ops:         make(chan func(), 256),
		done:        make(chan struct{}),
		subs:        make(map[int]func(Update)),
		snap:        idleSnapshot(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes events until ctx is done. On exit the active call is ended
// and its resources are released.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("module", "orch").Str("self", string(o.self.ID)).Msg("call loop started")
	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()
		case fn := <-o.ops:
			fn()
		}
	}
}

func (o *Orchestrator) shutdown() {
	o.stopped = true
	if c := o.cur; c != nil {
		o.send(core.EventCallEnd, core.ReasonPayload{CallID: c.id, Reason: domain.EndReasonUserEnded})
		o.teardown(c, domain.EndReasonUserEnded, nil)
	}
	o.postMu.Lock()
	o.closed = true
	o.postMu.Unlock()
	close(o.done)

	// Late results belong to a dead call and only release resources. Keep
	// draining until no post is in flight, then take what they queued.
	idle := make(chan struct{})
	go func() {
		o.posting.Wait()
		close(idle)
	}()
	for {
		select {
		case fn := <-o.ops:
			fn()
		case <-idle:
			for {
				select {
				case fn := <-o.ops:
					fn()
				default:
					log.Info().Str("module", "orch").Msg("call loop stopped")
					return
				}
			}
		}
	}
}

// post schedules fn on the loop. It reports false once the loop has stopped,
// and fn is then guaranteed never to run.
func (o *Orchestrator) post(fn func()) bool {
	o.postMu.RLock()
	if o.closed {
		o.postMu.RUnlock()
		return false
	}
	o.posting.Add(1)
	o.postMu.RUnlock()
	defer o.posting.Done()

	select {
	case o.ops <- fn:
		return true
	case <-o.done:
		return false
	}
}

// exec runs fn on the loop and waits for its result.
func (o *Orchestrator) exec(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !o.post(func() { res <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrStopped
	}
}

// Subscribe registers fn for every state change and alert. fn runs on the
// loop goroutine and must not block.
func (o *Orchestrator) Subscribe(fn func(Update)) (cancel func()) {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subMu.Unlock()
	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

// Snapshot returns the last published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

func (o *Orchestrator) Capability() core.Capability {
	return o.media.CheckCapability()
}

func (o *Orchestrator) Self() domain.UserRef { return o.self }

func (o *Orchestrator) publish(alert *core.Alert) {
	snap := idleSnapshot()
	if o.cur != nil {
		snap = o.cur.snapshot(o.self.ID)
	}
	o.snapMu.Lock()
	o.snap = snap
	o.snapMu.Unlock()

	o.subMu.RLock()
	handlers := make([]func(Update), 0, len(o.subs))
	for _, fn := range o.subs {
		handlers = append(handlers, fn)
	}
	o.subMu.RUnlock()

	u := Update{Snapshot: snap, Alert: alert}
	for _, fn := range handlers {
		fn(u)
	}
}

// send is best effort: failures are logged and never retried.
func (o *Orchestrator) send(event string, payload any) error {
	if err := o.signal.Send(event, payload); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("event", event).Msg("signal send failed")
		return err
	}
	return nil
}
