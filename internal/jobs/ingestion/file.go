package ingestion

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bjpl/inteljobs/internal/job"
)

// File loads records from a local CSV or JSON file. CSV rows become maps
// keyed by header, with numeric-looking cells coerced to float64.
//
// Params:
//
//	path   string — required
//	format "csv" | "json" — optional, inferred from the extension otherwise
type File struct{}

func (File) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	path, err := stringParam(params, "path")
	if err != nil {
		return nil, err
	}
	format, _ := params["format"].(string)
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	var records []map[string]any
	switch format {
	case "csv":
		records, err = readCSV(path)
	case "json":
		records, err = readJSON(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q", format)
	}
	if err != nil {
		return nil, err
	}

	return job.Data{
		"records": records,
		"count":   len(records),
		"source":  path,
	}, nil
}

func readCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			if n, err := strconv.ParseFloat(row[i], 64); err == nil {
				rec[col] = n
			} else {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func readJSON(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open json: %w", err)
	}
	defer f.Close()

	var records []map[string]any
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode json %s: %w", path, err)
	}
	return records, nil
}
