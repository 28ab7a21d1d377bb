package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"leadboard/internal/core"
	"leadboard/internal/services"
)

func TestParseMetricFilter(t *testing.T) {
	tests := []struct {
		name      string
		query     url.Values
		wantWeek  int64
		wantSrc   int64
		wantCat   int64
		wantField string
	}{
		{name: "no filters", query: url.Values{}},
		{name: "all filters", query: url.Values{"week_id": {"1"}, "source_id": {"2"}, "category_id": {"3"}}, wantWeek: 1, wantSrc: 2, wantCat: 3},
		{name: "blank is ignored", query: url.Values{"week_id": {" "}, "source_id": {"5"}}, wantSrc: 5},
		{name: "not a number", query: url.Values{"category_id": {"abc"}}, wantField: "category_id"},
	}

	deref := func(p *int64) int64 {
		if p == nil {
			return 0
		}
		return *p
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseMetricFilter(tt.query)
			if tt.wantField != "" {
				var ve *services.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Fatalf("error = %v, want validation error on %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMetricFilter() error = %v", err)
			}
			if deref(f.WeekID) != tt.wantWeek || deref(f.SourceID) != tt.wantSrc || deref(f.CategoryID) != tt.wantCat {
				t.Errorf("filter = %d/%d/%d, want %d/%d/%d",
					deref(f.WeekID), deref(f.SourceID), deref(f.CategoryID), tt.wantWeek, tt.wantSrc, tt.wantCat)
			}
		})
	}
}

func TestParseDateRange(t *testing.T) {
	rng, err := ParseDateRange(url.Values{"from_date": {"2024-01-01"}, "to_date": {"2024-03-31"}})
	if err != nil {
		t.Fatal(err)
	}
	if rng.From != core.NewDate(2024, 1, 1) || rng.To != core.NewDate(2024, 3, 31) {
		t.Errorf("range = %v..%v", rng.From, rng.To)
	}

	rng, err = ParseDateRange(url.Values{})
	if err != nil || !rng.From.IsZero() || !rng.To.IsZero() {
		t.Errorf("empty range = %+v, %v", rng, err)
	}

	_, err = ParseDateRange(url.Values{"to_date": {"31.03.2024"}})
	var ve *services.ValidationError
	if !errors.As(err, &ve) || ve.Field != "to_date" || !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("bad date error = %v", err)
	}
}

func TestWeekBody(t *testing.T) {
	in, err := weekBody{StartDate: "2024-01-29", EndDate: "2024-02-04"}.input()
	if err != nil {
		t.Fatal(err)
	}
	if in.StartDate != core.NewDate(2024, 1, 29) || in.EndDate != core.NewDate(2024, 2, 4) {
		t.Errorf("input = %+v", in)
	}

	_, err = weekBody{StartDate: "2024-01-29", EndDate: "soon"}.input()
	var ve *services.ValidationError
	if !errors.As(err, &ve) || ve.Field != "end_date" {
		t.Errorf("error = %v, want end_date validation error", err)
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	var v nameBody
	if err := decodeJSON(req, &v); !errors.Is(err, errMalformed) {
		t.Errorf("error = %v, want errMalformed", err)
	}
}

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"id": "123", "name": "test", "amount": 42.5}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	if id := parser.Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}

	if name := parser.Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}

	if amount := parser.Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "id=456&name=form+test&value=100"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	if id := parser.Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}

	if name := parser.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_LeadForm(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      core.LeadMetricInput
		wantField string
	}{
		{
			name: "valid form with grouped amount",
			body: "week_id=1&source_id=2&category_id=3&amount=1+500&leads_count=4",
			want: core.LeadMetricInput{WeekID: 1, SourceID: 2, CategoryID: 3, Amount: 1500, LeadsCount: 4},
		},
		{
			name: "valid json",
			body: `{"week_id":1,"source_id":2,"category_id":3,"amount":"1000","leads_count":0}`,
			want: core.LeadMetricInput{WeekID: 1, SourceID: 2, CategoryID: 3, Amount: 1000},
		},
		{name: "missing week", body: "source_id=2&category_id=3&amount=1&leads_count=1", wantField: "week_id"},
		{name: "zero category", body: "week_id=1&source_id=2&category_id=0&amount=1&leads_count=1", wantField: "category_id"},
		{name: "negative amount", body: "week_id=1&source_id=2&category_id=3&amount=-5&leads_count=1", wantField: "amount"},
		{name: "decimal leads", body: "week_id=1&source_id=2&category_id=3&amount=5&leads_count=1.5", wantField: "leads_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			p := NewRequestBodyParser(req)
			if err := p.Parse(); err != nil {
				t.Fatal(err)
			}
			got, err := p.LeadForm()
			if tt.wantField != "" {
				var ve *services.ValidationError
				if !errors.As(err, &ve) || ve.Field != tt.wantField {
					t.Fatalf("error = %v, want validation error on %s", err, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("LeadForm() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("LeadForm() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  Goo\x00gle\t "); got != "Google" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}

func TestNodeID(t *testing.T) {
	tests := []struct {
		w, s, c int64
		want    string
	}{
		{1, 0, 0, "node-w1"},
		{1, 2, 0, "node-w1-s2"},
		{1, 2, 3, "node-w1-s2-c3"},
	}
	for _, tt := range tests {
		if got := nodeID(tt.w, tt.s, tt.c); got != tt.want {
			t.Errorf("nodeID(%d, %d, %d) = %q, want %q", tt.w, tt.s, tt.c, got, tt.want)
		}
	}
}
