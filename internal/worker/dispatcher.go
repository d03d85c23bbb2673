package worker

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tunerelay/internal/logger"
)

var (
	ErrDispatcherBusy   = errors.New("dispatcher busy")
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// JobObserver tracks accepted jobs until they finish.
type JobObserver interface {
	JobStarted()
	JobFinished()
}

type chatQueue struct {
	jobs     []Job
	enqueued bool
}

type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	log      logger.Logger
	observer JobObserver

	baseCtx  context.Context
	cancel   context.CancelFunc
	quit     chan struct{}
	inflight sync.WaitGroup
	submitMu sync.RWMutex
	closed   bool

	mu        sync.Mutex
	queues    map[int64]*chatQueue // job queue for each chat
	ready     *list.List           // LRU queue storing chat IDs
	positions map[int64]*list.Element
}

func NewDispatcher(cfg DispatcherConfig, log logger.Logger, observer JobObserver) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		JobQueue:  make(chan Job, queueSize),
		log:       log,
		observer:  observer,
		baseCtx:   ctx,
		cancel:    cancel,
		quit:      make(chan struct{}),
		queues:    make(map[int64]*chatQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
	}
	d.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout, d.execute)

	// Warm up workers so the first relays don't pay for spawning.
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit hands a job to the dispatcher without blocking. It fails with
// ErrDispatcherBusy when the intake queue is full.
func (d *Dispatcher) Submit(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("submit job for update %d: nil run func", job.UpdateID)
	}
	job.Type = Relay
	d.submitMu.RLock()
	defer d.submitMu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.inflight.Add(1)
	// counted before the send so a fast worker never finishes it first
	if d.observer != nil {
		d.observer.JobStarted()
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		if d.observer != nil {
			d.observer.JobFinished()
		}
		d.inflight.Done()
		return ErrDispatcherBusy
	}
}

// Shutdown stops intake and waits for accepted jobs. When ctx ends first,
// running jobs see their context cancelled and Shutdown returns ctx.Err()
// without waiting for them; their workers exit once the jobs return.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.submitMu.Lock()
	if d.closed {
		d.submitMu.Unlock()
		return nil
	}
	d.closed = true
	d.submitMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	d.cancel()
	close(d.quit)
	d.pool.close()
	return err
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of chat in the front of LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue: // force congestion
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		// if we have a new job, enqueue it and its chat
		select {
		case job := <-d.JobQueue: // non-congestion
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) execute(job Job) {
	defer d.inflight.Done()
	defer func() {
		if d.observer != nil {
			d.observer.JobFinished()
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("job panicked", "update_id", job.UpdateID, "chat_id", job.ChatID, "panic", r)
		}
	}()
	job.Run(d.baseCtx)
}

func (d *Dispatcher) enqueueJob(job Job) {
	chatID := job.ChatID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[chatID]
	if q == nil {
		q = &chatQueue{}
		d.queues[chatID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// chat already enqueue, skip
		return
	}
	// new chat, enqueue
	q.enqueued = true
	elem := d.ready.PushBack(chatID)
	d.positions[chatID] = elem
}

// dispatchOne get first chat in LRU and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	chatID := elem.Value.(int64)
	q := d.queues[chatID]
	// get job from the first chat
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// chat only have one job, it'll be handled, chat needs to quit queue
		d.ready.Remove(elem)
		delete(d.positions, chatID)
		delete(d.queues, chatID)
	} else {
		// get to the back of queue
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	d.log.Debug("assign job", "type", job.Type, "update_id", job.UpdateID, "chat_id", chatID, "worker", d.pool.workerID(workerChan))
	workerChan <- job
	return true
}

// Workers reports how many workers exist and how many of them are idle.
func (d *Dispatcher) Workers() (running, idle int) {
	return d.pool.size()
}
