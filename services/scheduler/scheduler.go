// Package schedulersvc runs the periodic export jobs.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/export"
)

// Schedules maps every export job to its cron spec, evaluated in the configured time zone.
var Schedules = map[string]string{
	export.JobSupplierList:            "0 0 * * 2",  // Tuesdays
	export.JobPickList:                "0 0 * * 2",  // Tuesdays
	export.JobSEPA:                    "0 0 15 * *", // 15th of the month
	export.JobHarvestShareSubscribers: "0 0 * * 1",  // Mondays
}

type (
	// Runner runs an export job by name.
	Runner interface {
		Run(ctx context.Context, job string) (export.File, error)
	}

	Metrics struct {
		runs     *prometheus.CounterVec
		duration *prometheus.HistogramVec
	}

	Scheduler struct {
		cron    *cron.Cron
		runner  Runner
		logger  core.Logger
		metrics *Metrics
		timeout time.Duration
	}
)

// NewMetrics creates the job metrics & registers them with `reg`.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapir",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Number of export job runs by job & status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tapir",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of the export job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration)
	}
	return m
}

func NewScheduler(runner Runner, conf *core.Config, logger core.Logger, metrics *Metrics) (*Scheduler, error) {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(conf.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		logger:  logger,
		metrics: metrics,
		timeout: 10 * time.Minute,
	}

	for _, job := range export.Jobs() {
		job := job
		if _, err := s.cron.AddFunc(Schedules[job], func() { _ = s.RunJob(context.Background(), job) }); err != nil {
			return nil, errors.Wrapf(err, "scheduling %s", job)
		}
	}
	return s, nil
}

// RunJob runs one job now, recording its outcome.
func (s *Scheduler) RunJob(ctx context.Context, job string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	timer := prometheus.NewTimer(s.metrics.duration.WithLabelValues(job))
	defer timer.ObserveDuration()

	f, err := s.runner.Run(ctx, job)
	if err != nil {
		status := "error"
		if errors.Cause(err) == export.ErrNothingDue {
			status = "empty"
			s.logger.Info(fmt.Sprintf("export %s: %v", job, err))
		} else {
			s.logger.Error(fmt.Sprintf("export %s failed", job), err)
		}
		s.metrics.runs.WithLabelValues(job, status).Inc()
		return err
	}
	s.metrics.runs.WithLabelValues(job, "success").Inc()
	s.logger.Info(fmt.Sprintf("export %s done: %s", job, f.Filename()))
	return nil
}

// Entries returns the next run of every job.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler & waits for the running jobs to finish, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{err}, keysAndValues...)...)
}
