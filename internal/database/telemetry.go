package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/celebrum-arb-monitor/internal/telemetry"
)

// Querier is the read surface shared by pgxpool.Pool, pgx.Conn and pgxmock
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TracedDB wraps a Querier and records one span per query
type TracedDB struct {
	querier Querier
	tracer  trace.Tracer
}

// NewTracedDB creates a traced querier
func NewTracedDB(querier Querier) *TracedDB {
	return &TracedDB{
		querier: querier,
		tracer:  telemetry.GetTracer(telemetry.ServiceName + "/database"),
	}
}

// Query executes a query inside a span
func (db *TracedDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := telemetry.StartSpan(ctx, db.tracer, "db.query",
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", sql),
	)
	defer span.End()

	rows, err := db.querier.Query(ctx, sql, args...)
	telemetry.RecordError(span, err)
	return rows, err
}
