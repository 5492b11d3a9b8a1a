package ingestion

import (
	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

func stringParam(params job.Params, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", &domain.MissingParamError{Param: key}
	}
	return v, nil
}

func intParam(params job.Params, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
