/*
scheduler.go - Automated inventory commit for auto-approved applications

PURPOSE:
  Applications with approval method "auto" reach auto_approved without a
  customer decision. The scheduler periodically commits them to inventory
  so staff don't have to.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Lists auto_approved applications and commits each one in its own unit
  - A failed commit is logged and retried on the next tick
  - Records the last runs in memory for the admin endpoint

CONFIGURATION:
  - CheckInterval: How often to check (default: 5 minutes)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAutoCommitScheduler(buybackService, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - buyback/intake.go: CommitToInventory
  - handlers: ListAutoCommitRuns, TriggerAutoCommit
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/console-buyback/buyback"
	"github.com/warp/console-buyback/core"
)

// SchedulerActor is recorded as the actor on scheduled commits.
const SchedulerActor = "auto-commit"

const maxRuns = 50

// AutoCommitRun is one pass of the scheduler.
type AutoCommitRun struct {
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Committed   []string  `json:"committed"`
	Failed      []string  `json:"failed,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// AutoCommitScheduler commits auto-approved applications on a ticker.
type AutoCommitScheduler struct {
	Buyback       *buyback.Service
	CheckInterval time.Duration
	Enabled       bool

	logger *zap.Logger
	clock  core.Clock

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.Mutex
	runs   []AutoCommitRun // newest first
}

// NewAutoCommitScheduler creates a new scheduler.
func NewAutoCommitScheduler(svc *buyback.Service, logger *zap.Logger) *AutoCommitScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoCommitScheduler{
		Buyback:       svc,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		logger:        logger.Named("scheduler"),
		clock:         core.SystemClock,
	}
}

// Start begins the scheduler.
func (s *AutoCommitScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.logger.Info("started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for a pass in progress.
func (s *AutoCommitScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("stopped")
	}
}

func (s *AutoCommitScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow commits every auto_approved application and records the run.
func (s *AutoCommitScheduler) RunNow(ctx context.Context) AutoCommitRun {
	run := AutoCommitRun{StartedAt: s.clock.Now(), Committed: []string{}}

	apps, err := s.Buyback.List(ctx, core.BuybackFilter{Status: core.BuybackAutoApproved})
	if err != nil {
		s.logger.Error("failed to list auto-approved applications", zap.Error(err))
		run.Error = err.Error()
	}
	for _, app := range apps {
		if _, err := s.Buyback.CommitToInventory(ctx, app.Number, SchedulerActor); err != nil {
			s.logger.Error("auto commit failed",
				zap.String("application", string(app.Number)),
				zap.Error(err),
			)
			run.Failed = append(run.Failed, string(app.Number))
			continue
		}
		run.Committed = append(run.Committed, string(app.Number))
	}
	run.CompletedAt = s.clock.Now()

	if len(run.Committed) > 0 || len(run.Failed) > 0 {
		s.logger.Info("auto commit completed",
			zap.Int("committed", len(run.Committed)),
			zap.Int("failed", len(run.Failed)),
		)
	}

	s.runsMu.Lock()
	s.runs = append([]AutoCommitRun{run}, s.runs...)
	if len(s.runs) > maxRuns {
		s.runs = s.runs[:maxRuns]
	}
	s.runsMu.Unlock()
	return run
}

// Runs returns recorded runs, newest first.
func (s *AutoCommitScheduler) Runs() []AutoCommitRun {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	return append([]AutoCommitRun(nil), s.runs...)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListAutoCommitRuns returns the scheduler's run history.
func (h *Handler) ListAutoCommitRuns(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, []AutoCommitRun{})
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Runs())
}

// TriggerAutoCommit runs one pass immediately.
func (h *Handler) TriggerAutoCommit(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.RunNow(r.Context()))
}
