package processing

import (
	"context"
	"fmt"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

// Validate checks a record batch against a rule list and reports violations
// without failing the job; a malformed rule list is a job failure.
//
// Params:
//
//	records []map — required
//	rules   []map — required; each rule: field (required), plus any of
//	        required (bool), type ("string"|"number"|"bool"), min/max (numeric)
type Validate struct{}

type rule struct {
	field    string
	required bool
	typeName string
	min, max *float64
}

func (Validate) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	records, err := recordsParam(params)
	if err != nil {
		return nil, err
	}
	rules, err := parseRules(params)
	if err != nil {
		return nil, err
	}

	var violations []string
	invalid := make(map[int]bool)
	for i, rec := range records {
		for _, r := range rules {
			if msg := r.check(rec); msg != "" {
				violations = append(violations, fmt.Sprintf("record %d: %s", i, msg))
				invalid[i] = true
			}
		}
	}

	return job.Data{
		"valid":      len(records) - len(invalid),
		"invalid":    len(invalid),
		"violations": violations,
		"passed":     len(invalid) == 0,
	}, nil
}

func (r rule) check(rec map[string]any) string {
	v, present := rec[r.field]
	if !present {
		if r.required {
			return fmt.Sprintf("missing required field %q", r.field)
		}
		return ""
	}
	switch r.typeName {
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Sprintf("field %q is not a string", r.field)
		}
	case "bool":
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("field %q is not a bool", r.field)
		}
	case "number":
		if _, ok := toFloat(v); !ok {
			return fmt.Sprintf("field %q is not a number", r.field)
		}
	}
	if r.min != nil || r.max != nil {
		n, ok := toFloat(v)
		if !ok {
			return fmt.Sprintf("field %q is not numeric, cannot range-check", r.field)
		}
		if r.min != nil && n < *r.min {
			return fmt.Sprintf("field %q below minimum %v", r.field, *r.min)
		}
		if r.max != nil && n > *r.max {
			return fmt.Sprintf("field %q above maximum %v", r.field, *r.max)
		}
	}
	return ""
}

func parseRules(params job.Params) ([]rule, error) {
	raw, ok := params["rules"].([]any)
	if !ok {
		if native, ok := params["rules"].([]map[string]any); ok {
			raw = make([]any, len(native))
			for i, m := range native {
				raw[i] = m
			}
		} else {
			return nil, &domain.MissingParamError{Param: "rules"}
		}
	}
	if len(raw) == 0 {
		return nil, &domain.MissingParamError{Param: "rules"}
	}

	rules := make([]rule, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &domain.MissingParamError{Param: "rules"}
		}
		field, _ := m["field"].(string)
		if field == "" {
			return nil, &domain.MissingParamError{Param: "rules"}
		}
		r := rule{field: field}
		r.required, _ = m["required"].(bool)
		r.typeName, _ = m["type"].(string)
		if v, ok := toFloat(m["min"]); ok {
			r.min = &v
		}
		if v, ok := toFloat(m["max"]); ok {
			r.max = &v
		}
		rules = append(rules, r)
	}
	return rules, nil
}
