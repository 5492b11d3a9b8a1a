package processing

import (
	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

// recordsParam pulls the "records" slice out of the params, accepting both
// the decoded-JSON shape ([]any) and the native one ([]map[string]any).
func recordsParam(params job.Params) ([]map[string]any, error) {
	switch v := params["records"].(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, &domain.MissingParamError{Param: "records"}
			}
			out = append(out, rec)
		}
		return out, nil
	default:
		return nil, &domain.MissingParamError{Param: "records"}
	}
}

func stringParam(params job.Params, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", &domain.MissingParamError{Param: key}
	}
	return v, nil
}

// toFloat coerces the numeric types that survive JSON decoding and native
// construction.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
