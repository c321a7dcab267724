// Package scheduler runs reconciliation passes on a cron schedule.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunFunc performs one pass. Each call receives its own deadline-bound context.
type RunFunc func(ctx context.Context) error

// Scheduler triggers RunFunc on a cron expression, never running two passes at once.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	entry   cron.EntryID
	ctx     context.Context
	timeout time.Duration
	run     RunFunc
	logger  *zap.Logger
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// New creates a scheduler. spec accepts standard five-field expressions and descriptors
// such as "@hourly" or "@every 30m". Passes run under the context given to Run.
func New(spec string, timeout time.Duration, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("scheduler")
	cl := cronLogger{sugar: logger.Sugar()}

	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		spec:    spec,
		timeout: timeout,
		run:     run,
		logger:  logger,
	}

	id, err := s.cron.AddFunc(spec, func() { s.tick(s.ctx) })
	if err != nil {
		return nil, err
	}
	s.entry = id
	return s, nil
}

// Run executes one pass immediately, then on every tick until ctx is cancelled. It returns
// after the pass in flight, if any, has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.ctx = ctx

	s.tick(ctx)
	s.cron.Start()
	s.logger.Info("Scheduler started",
		zap.String("schedule", s.spec),
		zap.Time("next_run", s.cron.Entry(s.entry).Next),
	)

	<-ctx.Done()
	s.logger.Info("Scheduler stopping, waiting for the running pass")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick(parent context.Context) {
	if parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if err := s.run(ctx); err != nil {
		// The next tick recomputes from current backend state.
		s.logger.Warn("Scheduled pass failed", zap.Error(err))
	}
}
