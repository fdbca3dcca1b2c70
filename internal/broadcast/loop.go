// Periodic state distribution from one engine to many observers
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"counterdrone-sim/internal/telemetry"
)

// Observer receives messages from the loop. Send must honor ctx; Close is
// called once after the observer is unregistered.
type Observer interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Named observers report a label used in logs.
type Named interface {
	Name() string
}

// Source is the loop's only access to simulation state.
type Source interface {
	Tick() (telemetry.Snapshot, error)
	Snapshot() telemetry.Snapshot
	DrainAlerts() []telemetry.Alert
	TickInterval() time.Duration
	SetAlertNotifier(fn func())
}

// Options tune delivery.
type Options struct {
	// QueueSize bounds the messages buffered per observer.
	QueueSize      int
	SendTimeout    time.Duration
	MaxMissedSends int
	Logger         *slog.Logger
}

// DefaultOptions returns the stock delivery settings.
func DefaultOptions() Options {
	return Options{
		QueueSize:      64,
		SendTimeout:    2 * time.Second,
		MaxMissedSends: 3,
	}
}

// Stats are counters describing the loop.
type Stats struct {
	Running   bool   `json:"running"`
	Ticks     uint64 `json:"ticks"`
	Faults    uint64 `json:"faults"`
	Observers int    `json:"observers"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Removed   uint64 `json:"removed_observers"`
}

// Loop ticks the source at its configured interval and fans every snapshot
// and alert out to the registered observers. Only the publisher goroutine
// enqueues after registration, so each observer sees snapshots in tick
// order and alerts in generation order.
type Loop struct {
	src  Source
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	subs     map[string]*subscriber
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	wake       chan struct{}
	sendCtx    context.Context
	cancelSend context.CancelFunc
	wg         sync.WaitGroup

	ticks     atomic.Uint64
	faults    atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
	removed   atomic.Uint64
}

type subscriber struct {
	id     string
	name   string
	obs    Observer
	queue  chan Message
	quit   chan struct{}
	once   sync.Once
	missed int
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.quit) })
}

// New creates a loop over src. Zero option fields take their defaults.
func New(src Source, opts Options) *Loop {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	if opts.MaxMissedSends <= 0 {
		opts.MaxMissedSends = def.MaxMissedSends
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	sendCtx, cancel := context.WithCancel(context.Background())
	return &Loop{
		src:        src,
		opts:       opts,
		log:        log,
		subs:       make(map[string]*subscriber),
		wake:       make(chan struct{}, 1),
		sendCtx:    sendCtx,
		cancelSend: cancel,
	}
}

// Start launches the publisher goroutine. It runs until ctx is cancelled or
// Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.started = true
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.mu.Unlock()

	l.src.SetAlertNotifier(l.notify)
	go l.publish(ctx)
	l.log.Info("broadcast loop started", "interval", l.src.TickInterval())
	return nil
}

// Stop halts ticking, then unregisters and closes every observer and waits
// for in-flight sends. Calling Stop more than once is a no-op.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		cancel, done := l.cancel, l.done
		subs := l.subs
		l.subs = make(map[string]*subscriber)
		l.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
			l.src.SetAlertNotifier(nil)
		}
		for _, s := range subs {
			s.stop()
		}
		l.cancelSend()
		l.wg.Wait()
		l.log.Info("broadcast loop stopped", "ticks", l.ticks.Load())
	})
}

// Register adds an observer and immediately queues the current snapshot for
// it. The returned id is used with Unregister.
func (l *Loop) Register(obs Observer) (string, error) {
	s := &subscriber{
		id:    uuid.New().String(),
		obs:   obs,
		queue: make(chan Message, l.opts.QueueSize),
		quit:  make(chan struct{}),
	}
	s.name = s.id
	if n, ok := obs.(Named); ok {
		s.name = fmt.Sprintf("%s/%s", n.Name(), s.id[:8])
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		obs.Close()
		return "", ErrStopped
	}
	s.queue <- SnapshotMessage(l.src.Snapshot())
	l.subs[s.id] = s
	l.wg.Add(1)
	l.mu.Unlock()

	go l.deliver(s)
	l.log.Debug("observer registered", "observer", s.name)
	return s.id, nil
}

// Unregister removes an observer and closes it once its in-flight send
// returns. It reports whether id was registered.
func (l *Loop) Unregister(id string) bool {
	l.mu.Lock()
	s, ok := l.subs[id]
	delete(l.subs, id)
	l.mu.Unlock()
	if !ok {
		return false
	}
	s.stop()
	return true
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	running := l.started && !l.stopped
	n := len(l.subs)
	l.mu.Unlock()
	return Stats{
		Running:   running,
		Ticks:     l.ticks.Load(),
		Faults:    l.faults.Load(),
		Observers: n,
		Published: l.published.Load(),
		Dropped:   l.dropped.Load(),
		Removed:   l.removed.Load(),
	}
}

// notify is installed as the engine alert notifier. It runs under the engine
// lock, so it only nudges the publisher.
func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) publish(ctx context.Context) {
	defer close(l.done)
	interval := l.src.TickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			l.flushAlerts()
		case <-ticker.C:
			l.cycle()
			if next := l.src.TickInterval(); next > 0 && next != interval {
				interval = next
				ticker.Reset(next)
				l.log.Info("tick interval changed", "interval", next)
			}
		}
	}
}

// cycle runs one tick and publishes its alerts before its snapshot.
func (l *Loop) cycle() {
	snap, err := l.safeTick()
	if err != nil {
		l.faults.Add(1)
		var fault *EngineFault
		if errors.As(err, &fault) && fault.Stack != nil {
			l.log.Error("engine tick panicked", "tick", fault.Tick, "err", fault.Err, "stack", string(fault.Stack))
		} else {
			l.log.Error("engine tick failed", "err", err)
		}
		l.flushAlerts()
		return
	}
	l.ticks.Add(1)
	l.flushAlerts()
	l.broadcast(SnapshotMessage(snap))
}

func (l *Loop) safeTick() (snap telemetry.Snapshot, err error) {
	next := l.ticks.Load() + 1
	defer func() {
		if r := recover(); r != nil {
			err = &EngineFault{Tick: next, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()
	snap, err = l.src.Tick()
	if err != nil {
		return snap, &EngineFault{Tick: next, Err: err}
	}
	return snap, nil
}

func (l *Loop) flushAlerts() {
	for _, a := range l.src.DrainAlerts() {
		l.broadcast(AlertMessage(a))
	}
}

func (l *Loop) broadcast(msg Message) {
	var full []*subscriber
	l.mu.Lock()
	for _, s := range l.subs {
		select {
		case s.queue <- msg:
		default:
			full = append(full, s)
		}
	}
	l.mu.Unlock()
	l.published.Add(1)
	for _, s := range full {
		l.drop(s, ErrQueueFull)
	}
}

// deliver owns the observer: it is the only goroutine calling Send and it
// closes the observer on exit.
func (l *Loop) deliver(s *subscriber) {
	defer l.wg.Done()
	defer func() {
		if err := s.obs.Close(); err != nil {
			l.log.Warn("observer close failed", "observer", s.name, "err", err)
		}
	}()
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		select {
		case <-s.quit:
			return
		case msg := <-s.queue:
			ctx, cancel := context.WithTimeout(l.sendCtx, l.opts.SendTimeout)
			err := s.obs.Send(ctx, msg)
			timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
			cancel()
			switch {
			case err == nil:
				s.missed = 0
			case timedOut || errors.Is(err, context.DeadlineExceeded):
				l.dropped.Add(1)
				s.missed++
				l.log.Warn("observer send timed out", "observer", s.name, "missed", s.missed)
				if s.missed >= l.opts.MaxMissedSends {
					l.drop(s, ErrTooManyMisses)
					return
				}
			case l.sendCtx.Err() != nil:
				return
			default:
				l.drop(s, err)
				return
			}
		}
	}
}

func (l *Loop) drop(s *subscriber, cause error) {
	l.mu.Lock()
	cur, ok := l.subs[s.id]
	if ok && cur == s {
		delete(l.subs, s.id)
	}
	l.mu.Unlock()
	s.stop()
	if ok {
		l.removed.Add(1)
		l.log.Warn("observer dropped", "observer", s.name, "err", &DeliveryError{Observer: s.name, Err: cause})
	}
}
