package analysis

import (
	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

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
