// Package jobs runs the periodic background work: monthly supplier scoring
// and alerting, outbox delivery and housekeeping.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/diewo77/go-procurement/internal/config"
	"github.com/diewo77/go-procurement/internal/mailer"
	"github.com/diewo77/go-procurement/internal/models"
	"github.com/diewo77/go-procurement/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Scorer interface {
	RunPeriod(ctx context.Context, period string) (*services.ScoringRun, error)
}

type AlertEvaluator interface {
	Evaluate(ctx context.Context, period string, threshold, drop int) ([]models.SupplierAlert, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, batch int) (mailer.DispatchReport, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type Cleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Deps are the services the jobs drive. Nil members disable their job.
type Deps struct {
	Scoring  Scorer
	Alerts   AlertEvaluator
	Outbox   Dispatcher
	Cleaners []Cleaner
}

const (
	outboxBatch     = 50
	sentEmailMaxAge = 30 * 24 * time.Hour
	jobTimeout      = 10 * time.Minute
)

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron *cron.Cron
	cfg  config.JobsConfig
	deps Deps
	log  zerolog.Logger
	Now  func() time.Time
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// New registers every job whose spec and dependency are set. An invalid spec
// is an error.
func New(cfg config.JobsConfig, deps Deps, log zerolog.Logger) (*Scheduler, error) {
	log = log.With().Str("component", "jobs").Logger()
	cl := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cfg:  cfg,
		deps: deps,
		log:  log,
	}

	jobs := []struct {
		name    string
		spec    string
		enabled bool
		run     func(context.Context) error
	}{
		{"scoring", cfg.ScoringSpec, deps.Scoring != nil, s.RunScoring},
		{"alerts", cfg.AlertsSpec, deps.Alerts != nil, s.RunAlerts},
		{"outbox", cfg.OutboxSpec, deps.Outbox != nil, s.RunOutbox},
		{"cleanup", cfg.CleanupSpec, true, s.RunCleanup},
	}
	for _, j := range jobs {
		if j.spec == "" || !j.enabled {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.run)); err != nil {
			return nil, fmt.Errorf("job %s: invalid spec %q: %w", j.name, j.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		start := time.Now()
		if err := run(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("job done")
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

func (s *Scheduler) Start() {
	s.log.Info().Int("jobs", s.Entries()).Msg("scheduler starting")
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastPeriod is the month before the one containing t.
func LastPeriod(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return services.PeriodOf(first.AddDate(0, -1, 0))
}

// RunScoring scores all suppliers for the last complete month.
func (s *Scheduler) RunScoring(ctx context.Context) error {
	if s.deps.Scoring == nil {
		return nil
	}
	_, err := s.deps.Scoring.RunPeriod(ctx, LastPeriod(s.now()))
	return err
}

// RunAlerts evaluates alerts for the last complete month.
func (s *Scheduler) RunAlerts(ctx context.Context) error {
	if s.deps.Alerts == nil {
		return nil
	}
	threshold, drop := s.cfg.AlertThreshold, s.cfg.AlertDrop
	if threshold <= 0 {
		threshold = services.DefaultAlertThreshold
	}
	if drop <= 0 {
		drop = services.DefaultAlertDrop
	}
	period := LastPeriod(s.now())
	alerts, err := s.deps.Alerts.Evaluate(ctx, period, threshold, drop)
	if err != nil {
		return err
	}
	s.log.Info().Str("period", period).Int("alerts", len(alerts)).Msg("supplier alerts evaluated")
	return nil
}

// RunOutbox delivers due emails.
func (s *Scheduler) RunOutbox(ctx context.Context) error {
	if s.deps.Outbox == nil {
		return nil
	}
	_, err := s.deps.Outbox.Dispatch(ctx, outboxBatch)
	return err
}

// RunCleanup drops expired rate limit buckets, stale profile cache entries
// and old sent emails.
func (s *Scheduler) RunCleanup(ctx context.Context) error {
	for _, l := range s.deps.Cleaners {
		if _, err := l.Cleanup(ctx); err != nil {
			return err
		}
	}
	if s.deps.Outbox != nil {
		if _, err := s.deps.Outbox.Purge(ctx, s.now().Add(-sentEmailMaxAge)); err != nil {
			return err
		}
	}
	return nil
}
