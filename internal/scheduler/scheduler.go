// Package scheduler runs the periodic lifecycle and settlement jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/templui/goalstake/internal/config"
	"github.com/templui/goalstake/internal/metrics"
	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/service"
)

const (
	JobSweep  = "sweep"
	JobSettle = "settle"
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (*service.SweepReport, error)
}

type Settler interface {
	SettleCohort(ctx context.Context, cohort model.CohortDate) (*service.SettlementReport, error)
}

type Config struct {
	SweepSchedule  string
	SettleSchedule string
	// LookbackDays is how many past cohorts every settle run revisits.
	LookbackDays int
	GracePeriod  time.Duration
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SweepSchedule:  cfg.SweepSchedule,
		SettleSchedule: cfg.SettleSchedule,
		LookbackDays:   cfg.SettleLookbackDays,
		GracePeriod:    cfg.DeadlineGracePeriod,
	}
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	settler Settler
	cfg     Config
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(sweeper Sweeper, settler Settler, cfg Config) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sweeper: sweeper,
		settler: settler,
		cfg:     cfg,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	if _, err := s.cron.AddFunc(cfg.SweepSchedule, func() { _ = s.Sweep(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	if _, err := s.cron.AddFunc(cfg.SettleSchedule, func() { _, _ = s.SettleDue(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid settle schedule %q: %w", cfg.SettleSchedule, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	slog.Info("scheduler started", "sweep", s.cfg.SweepSchedule, "settle", s.cfg.SettleSchedule)
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
// Running jobs see their context cancelled once ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("scheduler jobs still running at shutdown")
	}
	s.cancel()
}

// Sweep fails active goals whose deadline grace period has passed.
func (s *Scheduler) Sweep(ctx context.Context) error {
	_, err := s.sweeper.SweepExpired(ctx)
	metrics.RecordJob(JobSweep, err == nil)
	if err != nil {
		slog.Error("sweep failed", "error", err)
	}
	return err
}

// SettleDue settles every cohort of the lookback window whose deadline day
// and grace period are over. Cohorts that still have active goals are
// retried on the next run. The cohort that just left the window gets a last
// attempt and is reported as an error if it is still not settled.
func (s *Scheduler) SettleDue(ctx context.Context) ([]*service.SettlementReport, error) {
	var reports []*service.SettlementReport
	var errs []error

	now := s.now()
	leaving := LeavingCohort(now, s.cfg.LookbackDays)
	cohorts := append([]model.CohortDate{leaving}, DueCohorts(now, s.cfg.LookbackDays, s.cfg.GracePeriod)...)

	for _, cohort := range cohorts {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		last := cohort == leaving
		report, err := s.settler.SettleCohort(ctx, cohort)
		switch {
		case last && service.IsKind(err, service.KindCohortNotFinal):
			slog.Error("cohort left the settlement window unsettled", "cohort", cohort, "error", err)
			errs = append(errs, fmt.Errorf("cohort %s left the settlement window unsettled: %w", cohort, err))
		case service.IsKind(err, service.KindCohortNotFinal):
			slog.Info("cohort not final yet", "cohort", cohort)
		case service.IsKind(err, service.KindSettlementInProgress):
			slog.Info("cohort settlement already running", "cohort", cohort)
		case err != nil:
			slog.Error("cohort settlement failed", "cohort", cohort, "error", err)
			errs = append(errs, fmt.Errorf("cohort %s: %w", cohort, err))
		case last && !report.Complete():
			slog.Error("cohort left the settlement window with failed payouts", "cohort", cohort, "failures", len(report.Failures))
			errs = append(errs, fmt.Errorf("cohort %s left the settlement window with %d failed payouts", cohort, len(report.Failures)))
			reports = append(reports, report)
		default:
			if !report.Complete() {
				slog.Warn("cohort settlement incomplete", "cohort", cohort, "failures", len(report.Failures))
			}
			reports = append(reports, report)
		}
	}

	err := errors.Join(errs...)
	metrics.RecordJob(JobSettle, err == nil)
	return reports, err
}

// LeavingCohort is the cohort one day older than the lookback window. Runs
// after today no longer visit it.
func LeavingCohort(now time.Time, lookbackDays int) model.CohortDate {
	start, _ := model.CohortOf(now).Bounds()
	return model.CohortOf(start.AddDate(0, 0, -(lookbackDays + 1)))
}

// DueCohorts lists the cohorts of the last lookbackDays days, oldest first,
// whose day ended at least grace before now.
func DueCohorts(now time.Time, lookbackDays int, grace time.Duration) []model.CohortDate {
	today := model.CohortOf(now)
	start, _ := today.Bounds()

	var due []model.CohortDate
	for i := lookbackDays; i >= 0; i-- {
		cohort := model.CohortOf(start.AddDate(0, 0, -i))
		_, end := cohort.Bounds()
		if !now.Before(end.Add(grace)) {
			due = append(due, cohort)
		}
	}
	return due
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
