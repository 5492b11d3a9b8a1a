package processing

import (
	"context"

	"github.com/bjpl/inteljobs/internal/job"
)

// Transform reshapes a record batch: rename fields, drop fields, fill
// defaults for absent ones. Drops win over renames when both name a field.
//
// Params:
//
//	records  []map — required
//	rename   map old→new — optional
//	drop     []string — optional
//	defaults map field→value — optional, applied only when the field is absent
type Transform struct{}

func (Transform) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	records, err := recordsParam(params)
	if err != nil {
		return nil, err
	}

	rename := stringMapParam(params, "rename")
	defaults, _ := params["defaults"].(map[string]any)
	drop := make(map[string]bool)
	if raw, ok := params["drop"].([]any); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				drop[s] = true
			}
		}
	} else if raw, ok := params["drop"].([]string); ok {
		for _, s := range raw {
			drop[s] = true
		}
	}

	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		next := make(map[string]any, len(rec))
		for k, v := range rec {
			if drop[k] {
				continue
			}
			if renamed, ok := rename[k]; ok {
				k = renamed
			}
			next[k] = v
		}
		for k, v := range defaults {
			if _, present := next[k]; !present {
				next[k] = v
			}
		}
		out = append(out, next)
	}

	return job.Data{"records": out, "count": len(out)}, nil
}

func stringMapParam(params job.Params, key string) map[string]string {
	out := make(map[string]string)
	switch m := params[key].(type) {
	case map[string]string:
		return m
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}
