package processing

import (
	"context"
	"fmt"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

// Aggregate groups a record batch by one field and folds numeric fields per
// group.
//
// Params:
//
//	records    []map — required
//	group_by   string — required, records missing the field land in ""
//	operations map field→op — required, op ∈ sum|avg|count|min|max
type Aggregate struct{}

func (Aggregate) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	records, err := recordsParam(params)
	if err != nil {
		return nil, err
	}
	groupBy, err := stringParam(params, "group_by")
	if err != nil {
		return nil, err
	}
	ops := stringMapParam(params, "operations")
	if len(ops) == 0 {
		return nil, &domain.MissingParamError{Param: "operations"}
	}
	for field, op := range ops {
		switch op {
		case "sum", "avg", "count", "min", "max":
		default:
			return nil, fmt.Errorf("unsupported operation %q for field %q", op, field)
		}
	}

	type bucket struct {
		count int
		sums  map[string]float64
		mins  map[string]float64
		maxs  map[string]float64
		seen  map[string]int
	}
	buckets := make(map[string]*bucket)

	for _, rec := range records {
		key, _ := rec[groupBy].(string)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				sums: make(map[string]float64),
				mins: make(map[string]float64),
				maxs: make(map[string]float64),
				seen: make(map[string]int),
			}
			buckets[key] = b
		}
		b.count++
		for field := range ops {
			v, ok := toFloat(rec[field])
			if !ok {
				continue
			}
			if b.seen[field] == 0 || v < b.mins[field] {
				b.mins[field] = v
			}
			if b.seen[field] == 0 || v > b.maxs[field] {
				b.maxs[field] = v
			}
			b.sums[field] += v
			b.seen[field]++
		}
	}

	groups := make(map[string]map[string]any, len(buckets))
	for key, b := range buckets {
		row := make(map[string]any, len(ops))
		for field, op := range ops {
			switch op {
			case "count":
				row[field] = b.count
			case "sum":
				row[field] = b.sums[field]
			case "avg":
				if b.seen[field] > 0 {
					row[field] = b.sums[field] / float64(b.seen[field])
				} else {
					row[field] = 0.0
				}
			case "min":
				row[field] = b.mins[field]
			case "max":
				row[field] = b.maxs[field]
			}
		}
		groups[key] = row
	}

	return job.Data{"groups": groups, "group_count": len(groups)}, nil
}
