// Package scheduler runs the background health-check loop: it polls the
// store for due services on a fixed cadence and dispatches checks under a
// bounded concurrency budget. The same execution path serves manual
// "check now" requests.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"servicepulse/internal/checker"
	"servicepulse/internal/events"
	"servicepulse/internal/health"
	"servicepulse/internal/models"
	"servicepulse/internal/snapshot"
	"servicepulse/internal/store"
)

// ErrServiceInactive is returned by RunCheckNow for a paused service.
var ErrServiceInactive = errors.New("service is not active")

const (
	// DefaultPollInterval is how often the loop scans for due services,
	// independent of any individual service's interval.
	DefaultPollInterval = 10 * time.Second

	// DefaultMaxConcurrent caps the number of in-flight checks.
	DefaultMaxConcurrent = 50

	pruneEvery = time.Hour
)

// CheckerFactory builds a checker for a service type; swapped out in tests.
type CheckerFactory func(t models.ServiceType, timeout time.Duration) (checker.Checker, error)

// Options tune the scheduler. Zero values fall back to defaults.
type Options struct {
	PollInterval  time.Duration
	MaxConcurrent int64

	// ResultRetention prunes check results older than this; zero disables
	// pruning.
	ResultRetention time.Duration
}

// Scheduler owns the poll loop and the concurrency pool.
type Scheduler struct {
	store      store.Store
	publisher  events.Publisher
	uptime     *health.UptimeCalculator
	newChecker CheckerFactory
	board      *snapshot.Board

	pollInterval time.Duration
	retention    time.Duration
	sem          *semaphore.Weighted
	now          func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	inFlightMu sync.Mutex
	inFlight   map[uuid.UUID]struct{}

	checksWG sync.WaitGroup
}

// New wires a scheduler. The board is optional; pass nil to skip snapshot
// publishing.
func New(st store.Store, pub events.Publisher, board *snapshot.Board, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if pub == nil {
		pub = events.LogPublisher{}
	}
	return &Scheduler{
		store:        st,
		publisher:    pub,
		uptime:       health.NewUptimeCalculator(st),
		newChecker:   checker.New,
		board:        board,
		pollInterval: opts.PollInterval,
		retention:    opts.ResultRetention,
		sem:          semaphore.NewWeighted(opts.MaxConcurrent),
		now:          time.Now,
		inFlight:     make(map[uuid.UUID]struct{}),
	}
}

// Start launches the poll loop. Calling Start on a running scheduler is a
// no-op with a warning.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Printf("[WARN] scheduler already running; ignoring Start")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.runLoop(loopCtx)
	log.Printf("scheduler started poll_interval=%s", s.pollInterval)
}

// Stop cancels the poll loop and waits for it to exit. In-flight checks
// are left to run to completion; they carry their own timeouts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	log.Printf("scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	lastPrune := s.now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)

			if s.retention > 0 && s.now().Sub(lastPrune) >= pruneEvery {
				lastPrune = s.now()
				s.prune(ctx)
			}
		}
	}
}

// tick runs one poll phase: collect due services and dispatch each one
// without blocking on check completion. Any error is logged and the loop
// carries on; nothing here is fatal.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due, err := s.store.ListDueServices(ctx, now)
	if err != nil {
		log.Printf("[WARN] scheduler: list due services: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	for _, svc := range due {
		if !s.markInFlight(svc.ID) {
			// Still outstanding from a prior tick; skip instead of piling up.
			continue
		}
		if !s.sem.TryAcquire(1) {
			// Pool exhausted; the service stays due and the next tick
			// picks it up.
			s.clearInFlight(svc.ID)
			log.Printf("[WARN] scheduler: concurrency pool full, deferring service=%s", svc.Name)
			continue
		}

		id := svc.ID
		s.checksWG.Add(1)
		go func() {
			defer s.checksWG.Done()
			defer s.sem.Release(1)
			defer s.clearInFlight(id)

			// Detach from the poll loop's cancellation so Stop does not
			// abort a check mid-write; the checker's own timeout bounds it.
			if _, err := s.executeCheck(context.WithoutCancel(ctx), id); err != nil {
				log.Printf("[WARN] scheduler: check failed service_id=%s: %v", id, err)
			}
		}()
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.store.PruneCheckResults(ctx, cutoff)
	if err != nil {
		log.Printf("[WARN] scheduler: prune check results: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("pruned %d check results older than %s", deleted, s.retention)
	}
}

func (s *Scheduler) markInFlight(id uuid.UUID) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if _, exists := s.inFlight[id]; exists {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) clearInFlight(id uuid.UUID) {
	s.inFlightMu.Lock()
	delete(s.inFlight, id)
	s.inFlightMu.Unlock()
}
