package ingestion

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bjpl/inteljobs/internal/job"
)

// Database runs a read query against Postgres and returns the rows as
// records keyed by column name.
//
// Params:
//
//	query     string — required
//	args      []any — optional positional arguments
//	max_rows  int — optional result cap, default 10000
type Database struct {
	pool *pgxpool.Pool
}

// NewDatabase creates a Database executor over an existing pool.
func NewDatabase(pool *pgxpool.Pool) *Database {
	return &Database{pool: pool}
}

const defaultMaxRows = 10000

func (d *Database) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	ctx, span := otel.Tracer("jobs").Start(ctx, "ingestion.database")
	defer span.End()

	query, err := stringParam(params, "query")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing 'query' param")
		return nil, err
	}
	args, _ := params["args"].([]any)
	maxRows := intParam(params, "max_rows", defaultMaxRows)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("ingestion query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var records []map[string]any
	for rows.Next() {
		if len(records) >= maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("read ingestion row: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			rec[col] = values[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "row iteration failed")
		return nil, fmt.Errorf("ingestion rows: %w", err)
	}

	span.SetAttributes(attribute.Int("ingestion.records", len(records)))
	return job.Data{"records": records, "count": len(records)}, nil
}
