// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies of the API, query filters and the explorer's form posts.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"leadboard/internal/core"
	"leadboard/internal/services"
)

const maxBodyBytes = 1 << 20

// errMalformed marks a body or query that could not be decoded at all.
var errMalformed = errors.New("malformed request")

// decodeJSON reads a JSON body into v. Any decode failure is errMalformed.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// weekBody carries dates as text so a bad date is reported per field.
type weekBody struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (b weekBody) input() (core.WeekInput, error) {
	start, err := core.ParseDate(b.StartDate)
	if err != nil {
		return core.WeekInput{}, &services.ValidationError{Field: "start_date", Err: err}
	}
	end, err := core.ParseDate(b.EndDate)
	if err != nil {
		return core.WeekInput{}, &services.ValidationError{Field: "end_date", Err: err}
	}
	return core.WeekInput{StartDate: start, EndDate: end}, nil
}

// ParseMetricFilter reads the optional week_id, source_id and category_id
// query parameters.
func ParseMetricFilter(query url.Values) (core.LeadMetricFilter, error) {
	var f core.LeadMetricFilter
	for _, p := range []struct {
		name string
		dst  **int64
	}{
		{"week_id", &f.WeekID},
		{"source_id", &f.SourceID},
		{"category_id", &f.CategoryID},
	} {
		v := strings.TrimSpace(query.Get(p.name))
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.LeadMetricFilter{}, &services.ValidationError{Field: p.name, Err: fmt.Errorf("not an integer: %q", v)}
		}
		*p.dst = &id
	}
	return f, nil
}

// ParseDateRange reads the optional from_date and to_date query parameters.
func ParseDateRange(query url.Values) (core.DateRange, error) {
	var rng core.DateRange
	for _, p := range []struct {
		name string
		dst  *core.Date
	}{
		{"from_date", &rng.From},
		{"to_date", &rng.To},
	} {
		v := strings.TrimSpace(query.Get(p.name))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return core.DateRange{}, &services.ValidationError{Field: p.name, Err: err}
		}
		*p.dst = d
	}
	return rng, nil
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// Int64 parses key as a positive id. Missing or invalid values are a field
// validation error.
func (p *RequestBodyParser) Int64(key string) (int64, error) {
	v := p.Get(key)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, &services.ValidationError{Field: key, Err: core.ErrInvalidReference}
	}
	return id, nil
}

// LeadForm reads a lead metric form: the triple plus amount and leads_count.
func (p *RequestBodyParser) LeadForm() (core.LeadMetricInput, error) {
	var in core.LeadMetricInput
	var err error
	if in.WeekID, err = p.Int64("week_id"); err != nil {
		return in, err
	}
	if in.SourceID, err = p.Int64("source_id"); err != nil {
		return in, err
	}
	if in.CategoryID, err = p.Int64("category_id"); err != nil {
		return in, err
	}
	if in.Amount, err = core.ParseAmount(p.Get("amount")); err != nil {
		return in, &services.ValidationError{Field: "amount", Err: err}
	}
	if in.LeadsCount, err = core.ParseLeadsCount(p.Get("leads_count")); err != nil {
		return in, &services.ValidationError{Field: "leads_count", Err: err}
	}
	return in, nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
