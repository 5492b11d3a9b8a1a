package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bjpl/inteljobs/internal/job"
)

// API pulls records from a paginated JSON endpoint. Each page must return
// either a bare JSON array or an object with a "records" array; an empty
// page ends pagination early.
//
// Params:
//
//	url        string — required
//	pages      int — optional page cap, default 1
//	page_param string — query parameter name, default "page"
//	headers    map — optional request headers
type API struct {
	client *http.Client
}

// NewAPI creates an API executor. A nil client gets a 30s-timeout default.
func NewAPI(client *http.Client) *API {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{client: client}
}

func (a *API) Execute(ctx context.Context, params job.Params) (job.Data, error) {
	ctx, span := otel.Tracer("jobs").Start(ctx, "ingestion.api")
	defer span.End()

	endpoint, err := stringParam(params, "url")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing 'url' param")
		return nil, err
	}
	pages := intParam(params, "pages", 1)
	pageParam, _ := params["page_param"].(string)
	if pageParam == "" {
		pageParam = "page"
	}

	span.SetAttributes(
		attribute.String("ingestion.url", endpoint),
		attribute.Int("ingestion.pages", pages),
	)

	var all []map[string]any
	fetched := 0
	for page := 1; page <= pages; page++ {
		batch, err := a.fetchPage(ctx, endpoint, pageParam, page, params)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "page fetch failed")
			return nil, err
		}
		fetched++
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}

	span.SetAttributes(attribute.Int("ingestion.records", len(all)))
	return job.Data{
		"records":       all,
		"count":         len(all),
		"pages_fetched": fetched,
	}, nil
}

func (a *API) fetchPage(ctx context.Context, endpoint, pageParam string, page int, params job.Params) ([]map[string]any, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse ingestion url: %w", err)
	}
	q := u.Query()
	q.Set(pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build ingestion request: %w", err)
	}
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ingestion call to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("ingestion endpoint %s returned status %d", u, resp.StatusCode)
	}

	return decodePage(resp.Body)
}

func decodePage(r io.Reader) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode ingestion page: %w", err)
	}

	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}

	var wrapper struct {
		Records []map[string]any `json:"records"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("decode ingestion page: %w", err)
	}
	return wrapper.Records, nil
}
