package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler triggers the reconciler on a cron expression with a leading
// seconds field, e.g. "0 0/5 * * * ?".
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func New(schedule string, reconciler *Reconciler, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, reconciler: reconciler, logger: logger, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(schedule, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	s.reconciler.RunOnce(s.ctx)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", zap.Time("next_run", s.cron.Entries()[0].Next))
}

// Stop stops scheduling and waits for a running pass until ctx is done, at
// which point the pass is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		done := s.cron.Stop()
		select {
		case <-done.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		s.cancel()
		s.logger.Info("Scheduler stopped")
	})
	return err
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
