package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tutorlink/tutorlink-api/pkg/jobs"
)

type overdueCompleter interface {
	CompleteOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// CompletionService is the only place a booking reaches the completed
// state: a periodic sweep marks active bookings whose end date has passed.
// It is disabled unless enabled by config.
type CompletionService struct {
	repo     overdueCompleter
	logger   *zap.Logger
	metrics  *MetricsService
	interval time.Duration

	queue  *jobs.Queue
	cancel context.CancelFunc
}

// NewCompletionService constructs the sweep around a jobs.Queue worker.
func NewCompletionService(repo overdueCompleter, interval time.Duration, logger *zap.Logger, metrics *MetricsService) *CompletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	s := &CompletionService{repo: repo, logger: logger, metrics: metrics, interval: interval}
	s.queue = jobs.NewQueue("booking-completion", s.handle, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
		Logger:     logger,
	})
	return s
}

// Start launches the worker and the ticker that feeds it. One sweep is
// enqueued immediately so a long interval does not delay startup catch-up.
func (s *CompletionService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.queue.Start(ctx)
	s.enqueueSweep(time.Now().UTC())

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.enqueueSweep(now.UTC())
			}
		}
	}()
}

// Stop halts the ticker and waits for in-flight sweeps.
func (s *CompletionService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Stop()
}

// Sweep runs one pass directly, marking overdue active bookings completed.
func (s *CompletionService) Sweep(ctx context.Context, asOf time.Time) (int64, error) {
	started := time.Now()
	count, err := s.repo.CompleteOverdue(ctx, asOf)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("bookings_complete_overdue", time.Since(started))
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLifecycleTransition("booking", "complete", "error")
		}
		return 0, err
	}
	if count > 0 {
		s.logger.Info("completed overdue bookings",
			zap.Int64("count", count),
			zap.Time("as_of", asOf))
	}
	if s.metrics != nil && count > 0 {
		s.metrics.RecordLifecycleTransition("booking", "complete", "ok")
	}
	return count, nil
}

func (s *CompletionService) enqueueSweep(asOf time.Time) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "completion-sweep",
		Payload: asOf,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue completion sweep", zap.Error(err))
	}
}

func (s *CompletionService) handle(ctx context.Context, job jobs.Job) error {
	asOf, ok := job.Payload.(time.Time)
	if !ok {
		asOf = time.Now().UTC()
	}
	_, err := s.Sweep(ctx, asOf)
	return err
}
