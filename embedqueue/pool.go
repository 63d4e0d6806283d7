// Package embedqueue drains the asynchronous $embed job queue entity.Store
// enqueues, calls an external embeddings model, and writes the resulting
// vector back via a follow-up UPDATE — the consumer side of the producer
// entity.RedisEmbedQueue implements.
package embedqueue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evalgo-chronicle/chronicle/entity"
)

// Dequeuer is the subset of entity.RedisEmbedQueue a Pool needs to drain
// pending $embed jobs.
type Dequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*entity.EmbedJob, error)
}

// Computer is the external embeddings service: it turns source text into a
// fixed-size vector. The model itself is out of scope here; Pool only
// drains the queue and calls through this collaborator interface.
type Computer interface {
	Compute(ctx context.Context, sourceText, model string) ([]float64, error)
}

// Updater is the subset of entity.Store a Pool needs to write a computed
// vector back onto its entity.
type Updater interface {
	Update(ctx context.Context, namespace, localID string, spec entity.UpdateSpec, actor string) (entity.Entity, error)
}

// Pool drains a Dequeuer with N concurrent workers, generalized from
// worker/pool.go's goroutine-plus-stopChan coordination, narrowed from a
// generic job queue to EmbedJob.
type Pool struct {
	queue   Dequeuer
	compute Computer
	store   Updater
	log     *logrus.Entry

	pollTimeout time.Duration
	workers     int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPool builds a Pool with n concurrent workers, each idle-polling queue
// at the given timeout so Stop is never blocked more than one poll cycle.
func NewPool(queue Dequeuer, compute Computer, store Updater, log *logrus.Entry, workers int, pollTimeout time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Pool{
		queue:       queue,
		compute:     compute,
		store:       store,
		log:         log,
		workers:     workers,
		pollTimeout: pollTimeout,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the worker goroutines. Call once per Pool.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Stop signals every worker to exit after its current poll and waits for
// them to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			p.log.WithError(err).Error("embed queue dequeue failed")
			continue
		}
		if job == nil {
			continue
		}
		p.process(ctx, *job)
	}
}

func (p *Pool) process(ctx context.Context, job entity.EmbedJob) {
	vector, err := p.compute.Compute(ctx, job.SourceText, job.Model)
	if err != nil {
		p.log.WithError(err).WithField("entityId", job.EntityID).Error("embedding computation failed")
		return
	}

	spec := entity.UpdateSpec{"$set": map[string]any{job.Field: vector}}
	if _, err := p.store.Update(ctx, job.EntityID.Namespace(), job.EntityID.LocalID(), spec, "embedqueue"); err != nil {
		p.log.WithError(err).WithField("entityId", job.EntityID).Error("writing embedding result failed")
	}
}
