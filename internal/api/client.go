package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leadboard/internal/core"
	"leadboard/internal/log"
	"leadboard/internal/middleware/trace"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// Client calls the /api/v1 endpoints. It implements explorer.DataSource.
type Client struct {
	base   string
	h      *http.Client
	logger *log.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.h = h }
}

func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l.WithComponent(log.ComponentAPIClient) }
}

// NewClient returns a client for the API rooted at base, e.g.
// "http://localhost:8081/api/v1".
func NewClient(base string, opts ...ClientOption) *Client {
	c := &Client{
		base:   strings.TrimRight(base, "/"),
		h:      &http.Client{Timeout: 10 * time.Second},
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListWeeks(ctx context.Context) ([]core.Week, error) {
	var out []core.Week
	err := c.do(ctx, http.MethodGet, "/weeks/", nil, nil, &out)
	return out, err
}

func (c *Client) ListSources(ctx context.Context) ([]core.Source, error) {
	var out []core.Source
	err := c.do(ctx, http.MethodGet, "/sources/", nil, nil, &out)
	return out, err
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var out []core.Category
	err := c.do(ctx, http.MethodGet, "/categories/", nil, nil, &out)
	return out, err
}

// ListLeadMetrics returns the records of exactly one (week, source, category) triple.
func (c *Client) ListLeadMetrics(ctx context.Context, weekID, sourceID, categoryID int64) ([]core.LeadMetric, error) {
	q := url.Values{}
	q.Set("week_id", strconv.FormatInt(weekID, 10))
	q.Set("source_id", strconv.FormatInt(sourceID, 10))
	q.Set("category_id", strconv.FormatInt(categoryID, 10))

	var out []core.LeadMetric
	err := c.do(ctx, http.MethodGet, "/lead_metrics/", q, nil, &out)
	return out, err
}

func (c *Client) CreateLeadMetric(ctx context.Context, in core.LeadMetricInput) (core.LeadMetric, error) {
	var out core.LeadMetric
	err := c.do(ctx, http.MethodPost, "/lead_metrics/", nil, in, &out)
	return out, err
}

func (c *Client) UpdateLeadMetric(ctx context.Context, id int64, in core.LeadMetricInput) (core.LeadMetric, error) {
	var out core.LeadMetric
	err := c.do(ctx, http.MethodPut, "/lead_metrics/"+strconv.FormatInt(id, 10), nil, in, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := trace.GetRequestID(ctx); id != "" {
		req.Header.Set(trace.HeaderRequestID, id)
	}

	start := time.Now()
	resp, err := c.h.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	c.logger.DebugContext(ctx, "API call completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldStatusCode, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	var env Envelope[json.RawMessage]
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || (decodeErr == nil && env.Status != StatusOK) {
		apiErr := &Error{StatusCode: resp.StatusCode, Method: method, Path: path}
		if decodeErr == nil {
			apiErr.Message = env.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, decodeErr)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}
