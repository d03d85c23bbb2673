package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tunerelay/internal/logger"
)

type countingObserver struct {
	started  atomic.Int32
	finished atomic.Int32

	mu       sync.Mutex
	inflight int
	lowest   int
}

func (o *countingObserver) JobStarted() {
	o.started.Add(1)
	o.mu.Lock()
	o.inflight++
	o.mu.Unlock()
}

func (o *countingObserver) JobFinished() {
	o.finished.Add(1)
	o.mu.Lock()
	o.inflight--
	if o.inflight < o.lowest {
		o.lowest = o.inflight
	}
	o.mu.Unlock()
}

func newTestDispatcher(t *testing.T, cfg DispatcherConfig, observer JobObserver) *Dispatcher {
	t.Helper()
	d := NewDispatcher(cfg, logger.Discard(), observer)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		d.Shutdown(ctx)
	})
	return d
}

func TestDispatcherKeepsChatOrder(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 16}, nil)

	var (
		mu    sync.Mutex
		order []int64
		wg    sync.WaitGroup
	)
	for i := int64(1); i <= 5; i++ {
		id := i
		wg.Add(1)
		err := d.Submit(Job{UpdateID: id, ChatID: 7, Run: func(context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}})
		if err != nil {
			t.Fatalf("submit %d: %v", id, err)
		}
	}
	wg.Wait()

	for i, id := range order {
		if id != int64(i+1) {
			t.Fatalf("jobs out of order: %v", order)
		}
	}
}

func TestDispatcherRunsChatsConcurrently(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 0, MaxWorkers: 2, QueueSize: 4}, nil)

	barrier := make(chan struct{})
	var arrived atomic.Int32
	var wg sync.WaitGroup
	for chat := int64(1); chat <= 2; chat++ {
		wg.Add(1)
		err := d.Submit(Job{UpdateID: chat, ChatID: chat, Run: func(context.Context) {
			defer wg.Done()
			if arrived.Add(1) == 2 {
				close(barrier)
			}
			select {
			case <-barrier:
			case <-time.After(2 * time.Second):
				t.Errorf("jobs for different chats did not overlap")
			}
		}})
		if err != nil {
			t.Fatalf("submit chat %d: %v", chat, err)
		}
	}
	wg.Wait()

	if running, _ := d.Workers(); running != 2 {
		t.Fatalf("expected 2 workers, got %d", running)
	}
}

func TestDispatcherReportsBusy(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, nil)

	block := make(chan struct{})
	defer close(block)

	var busy bool
	for i := int64(1); i <= 10; i++ {
		err := d.Submit(Job{UpdateID: i, ChatID: i, Run: func(context.Context) { <-block }})
		if errors.Is(err, ErrDispatcherBusy) {
			busy = true
			break
		}
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !busy {
		t.Fatalf("expected dispatcher to report busy")
	}
}

func TestDispatcherShutdownWaitsForJobs(t *testing.T) {
	observer := &countingObserver{}
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4}, logger.Discard(), observer)

	var done atomic.Bool
	if err := d.Submit(Job{UpdateID: 1, ChatID: 1, Run: func(context.Context) {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !done.Load() {
		t.Fatalf("shutdown returned before the job finished")
	}
	if observer.started.Load() != 1 || observer.finished.Load() != 1 {
		t.Fatalf("observer mismatch: started=%d finished=%d", observer.started.Load(), observer.finished.Load())
	}

	err := d.Submit(Job{UpdateID: 2, ChatID: 1, Run: func(context.Context) {}})
	if !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("expected ErrDispatcherClosed, got %v", err)
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestDispatcherShutdownDeadlineCancelsJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, logger.Discard(), nil)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	if err := d.Submit(Job{UpdateID: 1, ChatID: 1, Run: func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("running job was not cancelled")
	}
}

func TestDispatcherShutdownDoesNotWaitPastDeadline(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, logger.Discard(), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	if err := d.Submit(Job{UpdateID: 1, ChatID: 1, Run: func(context.Context) {
		close(started)
		<-release // ignores cancellation
	}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	begin := time.Now()
	if err := d.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("shutdown blocked on a stuck job for %s", elapsed)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	observer := &countingObserver{}
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4}, observer)

	if err := d.Submit(Job{UpdateID: 1, ChatID: 1, Run: func(context.Context) { panic("boom") }}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	ran := make(chan struct{})
	if err := d.Submit(Job{UpdateID: 2, ChatID: 1, Run: func(context.Context) { close(ran) }}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("job after panic never ran")
	}
	if observer.started.Load() != 2 {
		t.Fatalf("expected 2 started jobs, got %d", observer.started.Load())
	}
}

func TestDispatcherRejectsNilRun(t *testing.T) {
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, nil)
	if err := d.Submit(Job{UpdateID: 1}); err == nil {
		t.Fatalf("expected error for job without run func")
	}
}

func TestPoolRetiresIdleWorkersAboveMin(t *testing.T) {
	p := newJobChannelPool(1, 3, 20*time.Millisecond, func(Job) {})
	defer p.close()
	for i := 0; i < 3; i++ {
		p.spawnWorker()
	}
	if running, _ := p.size(); running != 3 {
		t.Fatalf("expected 3 workers, got %d", running)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if running, _ := p.size(); running == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	running, _ := p.size()
	t.Fatalf("expected idle workers to shrink to 1, got %d", running)
}

func TestDispatcherInflightNeverNegative(t *testing.T) {
	observer := &countingObserver{}
	d := NewDispatcher(DispatcherConfig{MinWorkers: 4, MaxWorkers: 4, QueueSize: 64}, logger.Discard(), observer)

	for i := int64(1); i <= 200; i++ {
		for {
			err := d.Submit(Job{UpdateID: i, ChatID: i % 8, Run: func(context.Context) {}})
			if err == nil {
				break
			}
			if !errors.Is(err, ErrDispatcherBusy) {
				t.Fatalf("submit %d: %v", i, err)
			}
			time.Sleep(time.Millisecond)
		}
	}
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if observer.lowest < 0 {
		t.Fatalf("inflight dropped to %d", observer.lowest)
	}
	if observer.inflight != 0 {
		t.Fatalf("inflight should settle at 0, got %d", observer.inflight)
	}
}

func TestDispatcherBusyRejectionIsNotCounted(t *testing.T) {
	observer := &countingObserver{}
	d := newTestDispatcher(t, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, observer)

	block := make(chan struct{})
	defer close(block)
	var accepted int32
	for i := int64(1); i <= 10; i++ {
		err := d.Submit(Job{UpdateID: i, ChatID: i, Run: func(context.Context) { <-block }})
		if errors.Is(err, ErrDispatcherBusy) {
			break
		}
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		accepted++
		time.Sleep(10 * time.Millisecond)
	}

	observer.mu.Lock()
	inflight := observer.inflight
	observer.mu.Unlock()
	if int32(inflight) != accepted {
		t.Fatalf("inflight %d does not match %d accepted jobs", inflight, accepted)
	}
}
