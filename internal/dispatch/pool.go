package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantagecrm/hookd/internal/metrics"
	"github.com/vantagecrm/hookd/internal/storage"
)

// Pool polls for due pending attempts and hands them to a bounded set of
// worker goroutines. Retries surface here as future-scheduled rows, so no
// worker is ever parked waiting out a retry delay.
type Pool struct {
	store    storage.Storage
	worker   *Worker
	workers  int
	pollRate time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewPool(store storage.Storage, worker *Worker, workers int, pollRate time.Duration, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 10
	}
	if pollRate <= 0 {
		pollRate = time.Second
	}
	return &Pool{
		store:    store,
		worker:   worker,
		workers:  workers,
		pollRate: pollRate,
		log:      log,
		stop:     make(chan struct{}),
		inflight: make(map[string]struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("starting dispatch worker pool")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollLoop(ctx)
	}()
}

func (p *Pool) Stop() {
	p.log.Info().Msg("stopping dispatch worker pool")
	close(p.stop)
	p.wg.Wait()
	p.log.Info().Msg("dispatch worker pool stopped")
}

func (p *Pool) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollRate)
	defer ticker.Stop()

	sem := make(chan struct{}, p.workers)

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			attempts, err := p.store.ListDueAttempts(ctx, time.Now().UTC(), p.workers*2)
			if err != nil {
				p.log.Error().Err(err).Msg("failed to fetch due attempts")
				continue
			}

			for _, a := range attempts {
				a := a
				if !p.claim(a.ID) {
					continue
				}
				sem <- struct{}{}
				p.wg.Add(1)
				go func() {
					defer p.wg.Done()
					defer func() { <-sem }()
					defer p.release(a.ID)
					metrics.ActiveWorkers.Inc()
					defer metrics.ActiveWorkers.Dec()
					p.worker.Process(ctx, a)
				}()
			}
		}
	}
}

// claim marks an attempt as in flight so a slow delivery is not picked up
// again by the next poll tick. Cross-process duplication is tolerated:
// delivery is at-least-once.
func (p *Pool) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Pool) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}
