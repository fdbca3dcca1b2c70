package broadcast

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"counterdrone-sim/internal/sim"
	"counterdrone-sim/internal/telemetry"
)

type fakeSource struct {
	mu       sync.Mutex
	tick     uint64
	calls    int
	panicAt  int
	alerts   bool
	interval time.Duration
	pending  []telemetry.Alert
	notify   func()
}

func (f *fakeSource) Tick() (telemetry.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.panicAt {
		panic("boom")
	}
	f.tick++
	if f.alerts {
		f.pending = append(f.pending, telemetry.Alert{ID: fmt.Sprintf("a%d", f.tick), DroneID: "d1"})
	}
	return telemetry.Snapshot{Tick: f.tick, Drones: []telemetry.Drone{{ID: "d1"}}}, nil
}

func (f *fakeSource) Snapshot() telemetry.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return telemetry.Snapshot{Tick: f.tick, Drones: []telemetry.Drone{{ID: "d1"}}}
}

func (f *fakeSource) DrainAlerts() []telemetry.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

func (f *fakeSource) TickInterval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interval
}

func (f *fakeSource) SetAlertNotifier(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = fn
}

type recorder struct {
	mu     sync.Mutex
	msgs   []Message
	closed bool
}

func (r *recorder) Send(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) snapshots() []Message {
	var out []Message
	for _, m := range r.messages() {
		if m.Type == TypeDrones {
			out = append(out, m)
		}
	}
	return out
}

// stuckObserver never completes a send before the deadline.
type stuckObserver struct{ recorder }

func (s *stuckObserver) Send(ctx context.Context, _ Message) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingObserver struct{ recorder }

func (f *failingObserver) Send(context.Context, Message) error {
	return errors.New("connection reset")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRegisterQueuesCurrentSnapshot(t *testing.T) {
	src := &fakeSource{tick: 7, interval: time.Hour}
	l := New(src, Options{})
	defer l.Stop()
	r := &recorder{}
	if _, err := l.Register(r); err != nil {
		t.Fatalf("Register: %v", err)
	}
	waitFor(t, "initial snapshot", func() bool { return len(r.messages()) == 1 })
	if m := r.messages()[0]; m.Type != TypeDrones || m.Tick != 7 || len(m.Drones) != 1 {
		t.Fatalf("unexpected first message %+v", m)
	}
}

func TestTwoObserversSeeIdenticalSnapshots(t *testing.T) {
	e := sim.New(sim.WithRand(rand.New(rand.NewSource(5))))
	s := sim.DefaultSettings()
	s.TickInterval = 10 * time.Millisecond
	if err := e.Initialize(s); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	l := New(e, Options{})
	a, b := &recorder{}, &recorder{}
	l.Register(a)
	l.Register(b)
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ticks", func() bool { return len(a.snapshots()) >= 5 && len(b.snapshots()) >= 5 })
	l.Stop()

	byTick := make(map[uint64]Message)
	var last uint64
	for _, m := range a.snapshots() {
		if m.Tick < last {
			t.Fatalf("snapshots out of order: %d after %d", m.Tick, last)
		}
		last = m.Tick
		byTick[m.Tick] = m
	}
	shared := 0
	for _, m := range b.snapshots() {
		other, ok := byTick[m.Tick]
		if !ok || m.Tick == 0 {
			continue
		}
		shared++
		if !reflect.DeepEqual(m.Drones, other.Drones) {
			t.Fatalf("observers disagree on tick %d", m.Tick)
		}
	}
	if shared == 0 {
		t.Fatalf("no common ticks observed")
	}
	if !a.isClosed() || !b.isClosed() {
		t.Fatalf("Stop must close observers")
	}
}

func TestAlertsPublishedBeforeSnapshot(t *testing.T) {
	src := &fakeSource{interval: 5 * time.Millisecond, alerts: true}
	l := New(src, Options{})
	r := &recorder{}
	l.Register(r)
	l.Start(context.Background())
	waitFor(t, "snapshots", func() bool { return len(r.snapshots()) >= 4 })
	l.Stop()

	seen := make(map[string]bool)
	for _, m := range r.messages() {
		switch m.Type {
		case TypeAlert:
			seen[m.Alert.ID] = true
		case TypeDrones:
			if m.Tick > 0 && !seen[fmt.Sprintf("a%d", m.Tick)] {
				t.Fatalf("snapshot %d delivered before its alert", m.Tick)
			}
		}
	}
}

func TestMutationAlertPublishedBetweenTicks(t *testing.T) {
	e := sim.New(sim.WithRand(rand.New(rand.NewSource(9))))
	s := sim.DefaultSettings()
	s.TickInterval = time.Hour
	if err := e.Initialize(s); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	l := New(e, Options{})
	defer l.Stop()
	r := &recorder{}
	l.Register(r)
	l.Start(context.Background())

	d, err := e.AddDrone()
	if err != nil {
		t.Fatalf("AddDrone: %v", err)
	}
	waitFor(t, "alert", func() bool {
		for _, m := range r.messages() {
			if m.Type == TypeAlert && m.Alert.DroneID == d.ID && m.Alert.AlertType == telemetry.AlertNewDetection {
				return true
			}
		}
		return false
	})
}

func TestStuckObserverDropped(t *testing.T) {
	src := &fakeSource{interval: 5 * time.Millisecond}
	l := New(src, Options{SendTimeout: 10 * time.Millisecond, MaxMissedSends: 2})
	defer l.Stop()
	stuck := &stuckObserver{}
	healthy := &recorder{}
	l.Register(stuck)
	l.Register(healthy)
	l.Start(context.Background())

	waitFor(t, "stuck observer removal", func() bool { return stuck.isClosed() })
	if got := l.Stats().Observers; got != 1 {
		t.Fatalf("expected 1 observer left, got %d", got)
	}
	n := len(healthy.snapshots())
	waitFor(t, "healthy observer progress", func() bool { return len(healthy.snapshots()) > n })
	if st := l.Stats(); st.Dropped < 2 || st.Removed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestFailingObserverDropped(t *testing.T) {
	src := &fakeSource{interval: time.Hour}
	l := New(src, Options{})
	defer l.Stop()
	f := &failingObserver{}
	l.Register(f)
	waitFor(t, "failing observer removal", func() bool { return f.isClosed() })
	if got := l.Stats().Observers; got != 0 {
		t.Fatalf("expected no observers, got %d", got)
	}
}

func TestEnginePanicRecovered(t *testing.T) {
	src := &fakeSource{interval: 5 * time.Millisecond, panicAt: 1}
	l := New(src, Options{})
	r := &recorder{}
	l.Register(r)
	l.Start(context.Background())
	waitFor(t, "ticks after panic", func() bool { return l.Stats().Ticks >= 2 })
	l.Stop()
	if st := l.Stats(); st.Faults != 1 {
		t.Fatalf("expected 1 fault, got %d", st.Faults)
	}
	if len(r.snapshots()) < 2 {
		t.Fatalf("observer should keep receiving after a fault")
	}
}

func TestTickIntervalChangePickedUp(t *testing.T) {
	src := &fakeSource{interval: 5 * time.Millisecond}
	l := New(src, Options{})
	defer l.Stop()
	l.Start(context.Background())
	waitFor(t, "first tick", func() bool { return l.Stats().Ticks >= 1 })
	src.mu.Lock()
	src.interval = time.Hour
	src.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	before := l.Stats().Ticks
	time.Sleep(60 * time.Millisecond)
	if got := l.Stats().Ticks; got != before {
		t.Fatalf("ticks kept the old interval: %d -> %d", before, got)
	}
}

func TestLifecycle(t *testing.T) {
	src := &fakeSource{interval: time.Hour}
	l := New(src, Options{})
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := l.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	r := &recorder{}
	id, _ := l.Register(r)
	if !l.Unregister(id) || l.Unregister(id) {
		t.Fatalf("Unregister should succeed exactly once")
	}
	waitFor(t, "close after unregister", r.isClosed)

	l.Stop()
	l.Stop()
	if l.Stats().Running {
		t.Fatalf("loop still running after Stop")
	}
	late := &recorder{}
	if _, err := l.Register(late); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if !late.isClosed() {
		t.Fatalf("rejected observer must be closed")
	}
	if err := l.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.notify != nil {
		t.Fatalf("Stop must clear the alert notifier")
	}
}
