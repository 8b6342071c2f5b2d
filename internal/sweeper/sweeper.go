// Package sweeper periodically expires group purchases whose deadline has passed.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mmynk/sambatan/internal/metrics"
	"github.com/mmynk/sambatan/internal/models"
)

const (
	defaultInterval  = time.Minute
	defaultBatchSize = 100
)

// Expirer is the part of the ledger the sweeper drives. Expire must share the
// ledger's per-record exclusivity with joins.
type Expirer interface {
	ListExpired(ctx context.Context, limit int) ([]string, error)
	Expire(ctx context.Context, groupPurchaseID string) (*models.GroupPurchase, bool, error)
}

// Options configures a Sweeper. Zero values use defaults.
type Options struct {
	Interval  time.Duration
	BatchSize int
	Metrics   *metrics.Metrics
}

// Result summarizes one sweep.
type Result struct {
	Examined    int
	Transitions map[models.Status]int
}

// Sweeper runs expiration sweeps on a schedule.
type Sweeper struct {
	expirer Expirer
	opts    Options

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// New creates a Sweeper. Call Start to begin scheduled sweeps.
func New(expirer Expirer, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Sweeper{expirer: expirer, opts: opts}
}

// Start schedules a sweep every interval until ctx is done or Stop is called.
// A sweep still running when the next one is due causes that run to be skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	schedule := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := c.AddFunc(schedule, func() {
		if _, err := s.RunOnce(runCtx); err != nil {
			slog.Error("Expiration sweep failed", "error", err)
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule sweep %q: %w", schedule, err)
	}

	c.Start()
	s.cron, s.cancel = c, cancel
	slog.Info("Expiration sweeper started", "interval", s.opts.Interval, "batch_size", s.opts.BatchSize)

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
	return nil
}

// Stop cancels scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	slog.Info("Expiration sweeper stopped")
}

// RunOnce expires every open purchase past its deadline, in batches. A
// failure on one purchase is logged and counted but does not stop the
// sweep; all failures are returned joined.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	result := Result{Transitions: make(map[models.Status]int)}
	failed := make(map[string]bool)
	var errs []error

	for {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(append(errs, err)...)
		}

		// Purchases that failed stay listed, so widen the window past them.
		limit := s.opts.BatchSize + len(failed)
		ids, err := s.expirer.ListExpired(ctx, limit)
		if err != nil {
			return result, errors.Join(append(errs, fmt.Errorf("failed to list expired group purchases: %w", err))...)
		}

		fresh := 0
		for _, id := range ids {
			if failed[id] {
				continue
			}
			fresh++
			result.Examined++

			gp, changed, err := s.expirer.Expire(ctx, id)
			if err != nil {
				slog.Warn("Failed to expire group purchase", "group_purchase_id", id, "error", err)
				failed[id] = true
				errs = append(errs, err)
				continue
			}
			if changed {
				result.Transitions[gp.Status]++
				s.opts.Metrics.SweepTransition(string(gp.Status))
			}
		}

		if len(ids) < limit || fresh == 0 {
			break
		}
	}

	if result.Examined > 0 {
		slog.Info("Expiration sweep finished",
			"examined", result.Examined,
			"closed", result.Transitions[models.StatusClosed],
			"completed", result.Transitions[models.StatusCompleted],
			"failed", len(failed),
		)
	}
	return result, errors.Join(errs...)
}

// cronLogger routes scheduler logs to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
