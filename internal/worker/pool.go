package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dotbassa/highway-inventory-backend/internal/logger"
)

// Pool runs detached units of work on a fixed set of goroutines. Report
// generation submits here so the HTTP request that admitted the task never
// blocks on the build.
type Pool struct {
	workerCount int
	jobChan     chan func(context.Context)
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewPool(workerCount int) *Pool {
	return &Pool{
		workerCount: workerCount,
		jobChan:     make(chan func(context.Context), workerCount*2),
		log:         logger.For("worker_pool"),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("worker_count", p.workerCount).Msg("Starting worker pool")

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

func (p *Pool) Stop() {
	p.log.Info().Msg("Stopping worker pool")
	close(p.jobChan)
	p.wg.Wait()
	p.log.Info().Msg("Worker pool stopped")
}

// Submit hands a job to the pool. It reports false when the queue is full so
// the caller can record a terminal failure instead of leaving the task
// pending until the sweep reclaims it.
func (p *Pool) Submit(job func(context.Context)) bool {
	select {
	case p.jobChan <- job:
		return true
	default:
		p.log.Warn().Msg("Worker pool queue full, job rejected")
		return false
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-p.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}
			job(ctx)
		}
	}
}
