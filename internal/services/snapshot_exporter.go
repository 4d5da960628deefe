package services

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// OpportunitySource yields the current cached opportunities
type OpportunitySource interface {
	GetAll() iter.Seq[models.Opportunity]
}

// SnapshotWriter publishes a full opportunity snapshot
type SnapshotWriter interface {
	Write(ctx context.Context, opportunities []models.Opportunity, now time.Time) error
}

// SnapshotExporter periodically publishes the cache contents so external
// consumers can read them without calling the API.
type SnapshotExporter struct {
	source OpportunitySource
	writer SnapshotWriter
	logger *logrus.Logger
	now    func() time.Time
	job    *periodicJob
}

// NewSnapshotExporter creates a new snapshot exporter
func NewSnapshotExporter(source OpportunitySource, writer SnapshotWriter, interval time.Duration, logger *logrus.Logger) *SnapshotExporter {
	if logger == nil {
		logger = logrus.New()
	}
	e := &SnapshotExporter{
		source: source,
		writer: writer,
		logger: logger,
		now:    time.Now,
	}
	e.job = newPeriodicJob("opportunity_snapshot", interval, e.Export, logger)
	return e
}

// Start begins periodic exports
func (e *SnapshotExporter) Start() {
	e.job.start()
}

// Stop stops the export loop
func (e *SnapshotExporter) Stop() {
	e.job.stop()
}

// Export writes one snapshot of the cache
func (e *SnapshotExporter) Export(ctx context.Context) error {
	opportunities := slices.Collect(e.source.GetAll())
	if err := e.writer.Write(ctx, opportunities, e.now()); err != nil {
		return err
	}
	e.logger.WithField("count", len(opportunities)).Debug("Exported opportunity snapshot")
	return nil
}

// GetStats returns run counters
func (e *SnapshotExporter) GetStats() JobStats {
	return e.job.stats()
}
