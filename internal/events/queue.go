package events

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"course-push-backend/internal/metrics"
)

// ErrQueueFull is returned when the event buffer has no free slot.
var ErrQueueFull = errors.New("event queue is full")

// Queue runs domain events through the Mapper on a fixed pool of workers.
type Queue struct {
	size   int
	jobs   chan Job
	mapper *Mapper
	log    *zap.Logger
}

// NewQueue creates a queue with size workers and room for capacity pending jobs.
func NewQueue(size, capacity int, mapper *Mapper, log *zap.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if capacity <= 0 {
		capacity = size
	}
	return &Queue{
		size:   size,
		jobs:   make(chan Job, capacity),
		mapper: mapper,
		log:    log,
	}
}

// Start launches the worker goroutines. They exit when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.size; i++ {
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	log := q.log.With(zap.Int("worker", id))
	log.Debug("event worker started")
	for {
		select {
		case job := <-q.jobs:
			metrics.EventQueueDepth.Dec()
			q.process(ctx, log, job)
		case <-ctx.Done():
			log.Debug("event worker shutting down")
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, log *zap.Logger, job Job) {
	res, err := q.mapper.Notify(ctx, job.Target, job.Type, job.Data)
	if err != nil {
		log.Error("event dispatch failed", zap.String("type", string(job.Type)), zap.Error(err))
		return
	}
	if res != nil {
		log.Debug("event dispatched",
			zap.String("type", string(job.Type)),
			zap.Int("total", res.Total),
			zap.Int("successful", res.Successful))
	}
}

// Enqueue adds a job without blocking.
func (q *Queue) Enqueue(job Job) error {
	if err := job.Target.Validate(); err != nil {
		return err
	}
	metrics.EventQueueDepth.Inc()
	select {
	case q.jobs <- job:
		return nil
	default:
		metrics.EventQueueDepth.Dec()
		return ErrQueueFull
	}
}

// Jobs returns the jobs channel for testing.
func (q *Queue) Jobs() chan Job {
	return q.jobs
}
