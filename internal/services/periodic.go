package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irfndi/celebrum-arb-monitor/internal/telemetry"
)

// JobStats holds run counters of a periodic job
type JobStats struct {
	Runs     int64 `json:"runs"`
	Failures int64 `json:"failures"`
}

// periodicJob runs a function once on start and then on every tick until
// stopped. Each run gets its own span. A zero interval runs once.
type periodicJob struct {
	name     string
	interval time.Duration
	run      func(context.Context) error
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	runs     atomic.Int64
	failures atomic.Int64
}

func newPeriodicJob(name string, interval time.Duration, run func(context.Context) error, logger *logrus.Logger) *periodicJob {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &periodicJob{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (j *periodicJob) start() {
	j.once.Do(func() {
		j.logger.WithFields(logrus.Fields{
			"job":      j.name,
			"interval": j.interval.String(),
		}).Info("Starting periodic job")

		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			// A job already run by hand, e.g. a warm-up, waits for the first tick
			if j.runs.Load() == 0 {
				j.runOnce(j.ctx)
			}

			if j.interval <= 0 {
				return
			}
			ticker := time.NewTicker(j.interval)
			defer ticker.Stop()
			for {
				select {
				case <-j.ctx.Done():
					return
				case <-ticker.C:
					j.runOnce(j.ctx)
				}
			}
		}()
	})
}

func (j *periodicJob) stop() {
	j.logger.WithField("job", j.name).Info("Stopping periodic job")
	j.cancel()
	j.wg.Wait()
}

// runOnce executes the job and records its outcome
func (j *periodicJob) runOnce(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.GetJobTracer(), "job."+j.name,
		attribute.String("job.name", j.name))
	defer span.End()

	j.runs.Add(1)
	err := j.run(ctx)
	if err != nil {
		j.failures.Add(1)
		telemetry.RecordError(span, err)
		j.logger.WithField("job", j.name).WithError(err).Warn("Periodic job failed")
	}
	return err
}

func (j *periodicJob) stats() JobStats {
	return JobStats{Runs: j.runs.Load(), Failures: j.failures.Load()}
}
