package worker

import (
	"context"
	"fmt"
)

type JobType int

const (
	Relay JobType = iota
	Stop
)

func (t JobType) String() string {
	switch t {
	case Relay:
		return "relay"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("job(%d)", int(t))
	}
}

// Job is one unit of work. Jobs for the same chat are dispatched in arrival order;
// jobs for different chats share workers fairly.
type Job struct {
	Type     JobType
	UpdateID int64
	ChatID   int64
	Run      func(ctx context.Context)
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.pool.exec(job)
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}
