package processing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

func records(rs ...map[string]any) []map[string]any { return rs }

func TestTransform_RenameDropDefaults(t *testing.T) {
	data, err := Transform{}.Execute(context.Background(), job.Params{
		"records": records(
			map[string]any{"amt": 10.0, "internal_id": "x", "region": "emea"},
			map[string]any{"amt": 20.0},
		),
		"rename":   map[string]any{"amt": "amount"},
		"drop":     []string{"internal_id"},
		"defaults": map[string]any{"region": "unknown"},
	})
	require.NoError(t, err)

	out := data["records"].([]map[string]any)
	require.Len(t, out, 2)
	assert.Equal(t, 10.0, out[0]["amount"])
	assert.NotContains(t, out[0], "amt")
	assert.NotContains(t, out[0], "internal_id")
	assert.Equal(t, "emea", out[0]["region"])
	assert.Equal(t, "unknown", out[1]["region"])
	assert.Equal(t, 2, data["count"])
}

func TestTransform_MissingRecords(t *testing.T) {
	_, err := Transform{}.Execute(context.Background(), job.Params{})
	var merr *domain.MissingParamError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "records", merr.Param)
}

func TestAggregate_GroupedFolds(t *testing.T) {
	data, err := Aggregate{}.Execute(context.Background(), job.Params{
		"records": records(
			map[string]any{"region": "emea", "revenue": 100.0},
			map[string]any{"region": "emea", "revenue": 300.0},
			map[string]any{"region": "apac", "revenue": 50.0},
		),
		"group_by":   "region",
		"operations": map[string]any{"revenue": "sum"},
	})
	require.NoError(t, err)

	groups := data["groups"].(map[string]map[string]any)
	assert.Equal(t, 400.0, groups["emea"]["revenue"])
	assert.Equal(t, 50.0, groups["apac"]["revenue"])
	assert.Equal(t, 2, data["group_count"])
}

func TestAggregate_AvgMinMaxCount(t *testing.T) {
	in := job.Params{
		"records": records(
			map[string]any{"region": "emea", "revenue": 100.0},
			map[string]any{"region": "emea", "revenue": 300.0},
		),
		"group_by": "region",
	}

	for op, want := range map[string]any{
		"avg":   200.0,
		"min":   100.0,
		"max":   300.0,
		"count": 2,
	} {
		in["operations"] = map[string]any{"revenue": op}
		data, err := Aggregate{}.Execute(context.Background(), in)
		require.NoError(t, err, op)
		groups := data["groups"].(map[string]map[string]any)
		assert.Equal(t, want, groups["emea"]["revenue"], op)
	}
}

func TestAggregate_UnsupportedOperation(t *testing.T) {
	_, err := Aggregate{}.Execute(context.Background(), job.Params{
		"records":    records(map[string]any{"region": "emea"}),
		"group_by":   "region",
		"operations": map[string]any{"revenue": "median"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "median")
}

func TestValidate_ReportsViolations(t *testing.T) {
	data, err := Validate{}.Execute(context.Background(), job.Params{
		"records": records(
			map[string]any{"name": "ok", "score": 50.0},
			map[string]any{"score": 200.0},
			map[string]any{"name": "bad-type", "score": "high"},
		),
		"rules": []map[string]any{
			{"field": "name", "required": true, "type": "string"},
			{"field": "score", "type": "number", "min": 0, "max": 100},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, data["valid"])
	assert.Equal(t, 2, data["invalid"])
	assert.False(t, data["passed"].(bool))
	violations := data["violations"].([]string)
	assert.Len(t, violations, 3)
}

func TestValidate_AllPass(t *testing.T) {
	data, err := Validate{}.Execute(context.Background(), job.Params{
		"records": records(map[string]any{"name": "ok"}),
		"rules":   []map[string]any{{"field": "name", "required": true}},
	})
	require.NoError(t, err)
	assert.True(t, data["passed"].(bool))
	assert.Equal(t, 0, data["invalid"])
}

func TestValidate_MalformedRulesFailJob(t *testing.T) {
	_, err := Validate{}.Execute(context.Background(), job.Params{
		"records": records(map[string]any{"name": "ok"}),
		"rules":   []map[string]any{{"required": true}}, // no field
	})
	var merr *domain.MissingParamError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "rules", merr.Param)
}
