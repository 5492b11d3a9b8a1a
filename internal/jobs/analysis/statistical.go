package analysis

import (
	"context"
	"math"
	"sort"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

// Statistical computes descriptive statistics per numeric field over a
// record batch.
//
// Params:
//
//	records []map — required
//	fields  []string — optional, defaults to every field with at least one
//	        numeric value
type Statistical struct{}

// FieldStats is the per-field output shape.
type FieldStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

func (Statistical) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	records, err := recordsParam(params)
	if err != nil {
		return nil, err
	}

	fields := fieldsParam(params)
	series := make(map[string][]float64)
	for _, rec := range records {
		for k, v := range rec {
			n, ok := toFloat(v)
			if !ok {
				continue
			}
			series[k] = append(series[k], n)
		}
	}

	if len(fields) == 0 {
		for k := range series {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}

	stats := make(map[string]FieldStats, len(fields))
	for _, f := range fields {
		vals, ok := series[f]
		if !ok || len(vals) == 0 {
			return nil, &domain.MissingParamError{Param: "fields"}
		}
		stats[f] = describe(vals)
	}

	return job.Data{"stats": stats, "record_count": len(records)}, nil
}

func describe(vals []float64) FieldStats {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range sorted {
		d := v - mean
		sq += d * d
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return FieldStats{
		Count:  n,
		Mean:   mean,
		Median: median,
		StdDev: math.Sqrt(sq / float64(n)),
		Min:    sorted[0],
		Max:    sorted[n-1],
	}
}

func fieldsParam(params job.Params) []string {
	switch v := params["fields"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
