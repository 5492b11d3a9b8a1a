package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bjpl/inteljobs/internal/job"
)

// Report renders a summary document from a title and key/value sections.
//
// Params:
//
//	title    string — required
//	sections map section→map key→value — optional
//	format   "markdown" (default) | "text"
type Report struct {
	// Now is swappable for deterministic rendering in tests.
	Now func() time.Time
}

func (r Report) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	title, err := stringParam(params, "title")
	if err != nil {
		return nil, err
	}
	format, _ := params["format"].(string)
	if format == "" {
		format = "markdown"
	}
	if format != "markdown" && format != "text" {
		return nil, fmt.Errorf("unsupported report format %q", format)
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	sections := sectionsParam(params)
	var names []string
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	if format == "markdown" {
		fmt.Fprintf(&b, "# %s\n\n", title)
		fmt.Fprintf(&b, "Generated: %s\n", now().UTC().Format(time.RFC3339))
		for _, name := range names {
			fmt.Fprintf(&b, "\n## %s\n\n", name)
			for _, k := range sortedKeys(sections[name]) {
				fmt.Fprintf(&b, "- **%s**: %v\n", k, sections[name][k])
			}
		}
	} else {
		fmt.Fprintf(&b, "%s\n%s\n", title, strings.Repeat("=", len(title)))
		fmt.Fprintf(&b, "Generated: %s\n", now().UTC().Format(time.RFC3339))
		for _, name := range names {
			fmt.Fprintf(&b, "\n%s\n%s\n", name, strings.Repeat("-", len(name)))
			for _, k := range sortedKeys(sections[name]) {
				fmt.Fprintf(&b, "%s: %v\n", k, sections[name][k])
			}
		}
	}

	return job.Data{
		"report":        b.String(),
		"format":        format,
		"section_count": len(sections),
	}, nil
}

func sectionsParam(params job.Params) map[string]map[string]any {
	out := make(map[string]map[string]any)
	raw, ok := params["sections"].(map[string]any)
	if !ok {
		if native, ok := params["sections"].(map[string]map[string]any); ok {
			return native
		}
		return out
	}
	for name, v := range raw {
		if m, ok := v.(map[string]any); ok {
			out[name] = m
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
