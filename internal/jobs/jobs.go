// Package jobs wires the concrete executor catalog into a registry.
package jobs

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bjpl/inteljobs/internal/job"
	"github.com/bjpl/inteljobs/internal/jobs/analysis"
	"github.com/bjpl/inteljobs/internal/jobs/ingestion"
	"github.com/bjpl/inteljobs/internal/jobs/processing"
	"github.com/bjpl/inteljobs/internal/registry"
)

// Job type names as enqueued and scheduled.
const (
	TypeAPIIngestion        = "api_ingestion"
	TypeFileIngestion       = "file_ingestion"
	TypeDatabaseIngestion   = "database_ingestion"
	TypeStatisticalAnalysis = "statistical_analysis"
	TypeReportGeneration    = "report_generation"
	TypeDataTransform       = "data_transform"
	TypeDataAggregation     = "data_aggregation"
	TypeDataValidation      = "data_validation"
)

// Deps carries the external resources some executors need. Nil members
// disable the executors that require them.
type Deps struct {
	HTTPClient *http.Client
	Pool       *pgxpool.Pool
}

// RegisterAll registers every available executor. The defaults slice
// (usually config.JobOptions()) applies to all types; per-type overrides
// are appended after it and therefore win.
func RegisterAll(reg *registry.Registry, deps Deps, defaults ...job.Option) {
	withDefaults := func(overrides ...job.Option) []job.Option {
		return append(append([]job.Option(nil), defaults...), overrides...)
	}

	// Ingestion talks to external systems: give it a longer leash.
	reg.Register(TypeAPIIngestion, registry.FactoryFor(
		TypeAPIIngestion,
		ingestion.NewAPI(deps.HTTPClient),
		withDefaults(job.WithMaxRetries(5), job.WithTimeout(2*time.Minute))...,
	))
	reg.Register(TypeFileIngestion, registry.FactoryFor(
		TypeFileIngestion,
		ingestion.File{},
		withDefaults(job.WithTimeout(time.Minute))...,
	))
	if deps.Pool != nil {
		reg.Register(TypeDatabaseIngestion, registry.FactoryFor(
			TypeDatabaseIngestion,
			ingestion.NewDatabase(deps.Pool),
			withDefaults(job.WithMaxRetries(5), job.WithTimeout(2*time.Minute))...,
		))
	}

	// Pure computation never benefits from retries.
	reg.Register(TypeStatisticalAnalysis, registry.FactoryFor(
		TypeStatisticalAnalysis,
		analysis.Statistical{},
		withDefaults(job.WithMaxRetries(0))...,
	))
	reg.Register(TypeReportGeneration, registry.FactoryFor(
		TypeReportGeneration,
		analysis.Report{},
		withDefaults()...,
	))
	reg.Register(TypeDataTransform, registry.FactoryFor(
		TypeDataTransform,
		processing.Transform{},
		withDefaults(job.WithMaxRetries(0))...,
	))
	reg.Register(TypeDataAggregation, registry.FactoryFor(
		TypeDataAggregation,
		processing.Aggregate{},
		withDefaults(job.WithMaxRetries(0))...,
	))
	reg.Register(TypeDataValidation, registry.FactoryFor(
		TypeDataValidation,
		processing.Validate{},
		withDefaults(job.WithMaxRetries(0))...,
	))
}
