package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"leadboard/internal/api"
	"leadboard/internal/core"
	"leadboard/internal/log"
	"leadboard/internal/services"
	"leadboard/internal/storage"
)

func (s *Server) registerAPI(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()

	collection(v1, "/weeks", s.listWeeks, s.createWeek)
	item(v1, "/weeks/{id:[0-9]+}", s.getWeek, s.updateWeek, s.deleteWeek)
	v1.HandleFunc("/weeks/{id:[0-9]+}/sources", s.listWeekSources).Methods(http.MethodGet)
	v1.HandleFunc("/weeks/{id:[0-9]+}/sources/{source_id:[0-9]+}/categories", s.listWeekSourceCategories).Methods(http.MethodGet)

	collection(v1, "/sources", s.listSources, s.createSource)
	item(v1, "/sources/{id:[0-9]+}", s.getSource, s.updateSource, s.deleteSource)

	collection(v1, "/categories", s.listCategories, s.createCategory)
	item(v1, "/categories/{id:[0-9]+}", s.getCategory, s.updateCategory, s.deleteCategory)

	collection(v1, "/lead_metrics", s.listLeadMetrics, s.createLeadMetric)
	item(v1, "/lead_metrics/{id:[0-9]+}", s.getLeadMetric, s.updateLeadMetric, s.deleteLeadMetric)

	v1.HandleFunc("/dashboard/lead_overview", s.leadOverview).Methods(http.MethodGet)
	v1.HandleFunc("/dashboard/lead_metrics_by_weeks", s.leadMetricsByWeeks).Methods(http.MethodGet)
	v1.HandleFunc("/dashboard/category/{id:[0-9]+}", s.categoryStats).Methods(http.MethodGet)
	v1.HandleFunc("/dashboard/source/{id:[0-9]+}", s.sourceStats).Methods(http.MethodGet)
}

// collection registers list and create with and without the trailing slash.
func collection(r *mux.Router, path string, list, create http.HandlerFunc) {
	for _, p := range []string{path, path + "/"} {
		r.HandleFunc(p, list).Methods(http.MethodGet)
		r.HandleFunc(p, create).Methods(http.MethodPost)
	}
}

func item(r *mux.Router, path string, get, update, del http.HandlerFunc) {
	r.HandleFunc(path, get).Methods(http.MethodGet)
	r.HandleFunc(path, update).Methods(http.MethodPut)
	r.HandleFunc(path, del).Methods(http.MethodDelete)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK[T any](w http.ResponseWriter, status int, data T, message string) {
	env := api.OK(data)
	env.Message = message
	writeJSON(w, status, env)
}

// writeError maps service and storage errors onto API status codes. what
// names the entity in not-found messages.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, what string, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, api.Fail("Validation failed",
			api.FieldError{Field: ve.Field, Message: ve.Err.Error()}))
	case errors.Is(err, errMalformed):
		writeJSON(w, http.StatusBadRequest, api.Fail("Malformed request body"))
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, api.Fail(what+" not found"))
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, api.Fail(what+" with this name already exists"))
	case errors.Is(err, storage.ErrMissingReference):
		writeJSON(w, http.StatusUnprocessableEntity, api.Fail(storage.ErrMissingReference.Error()))
	default:
		ctx := r.Context()
		fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent())
		log.NewStructuredLogger(log.FromContext(ctx)).
			LogError(ctx, "API request failed", err, log.ComponentHTTP, methodOp(r.Method), fields)
		writeJSON(w, http.StatusInternalServerError, api.Fail("Internal server error"))
	}
}

func methodOp(method string) string {
	switch method {
	case http.MethodPost:
		return log.OpCreate
	case http.MethodPut:
		return log.OpUpdate
	case http.MethodDelete:
		return log.OpDelete
	}
	return log.OpRead
}

// idOr404 parses the {id} variable; the route regex makes failure an
// overflow, which is reported as not found.
func (s *Server) idOr404(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, what, storage.ErrNotFound)
		return 0, false
	}
	return id, true
}

// Weeks

func (s *Server) listWeeks(w http.ResponseWriter, r *http.Request) {
	weeks, err := s.svc.ListWeeks(r.Context())
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	writeOK(w, http.StatusOK, weeks, "List all weeks")
}

func (s *Server) getWeek(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Week")
	if !ok {
		return
	}
	week, err := s.svc.GetWeek(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	writeOK(w, http.StatusOK, week, "Week found")
}

func (s *Server) createWeek(w http.ResponseWriter, r *http.Request) {
	in, err := readWeek(r)
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	week, err := s.svc.CreateWeek(r.Context(), in)
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	writeOK(w, http.StatusCreated, week, "Week created")
}

func (s *Server) updateWeek(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Week")
	if !ok {
		return
	}
	in, err := readWeek(r)
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	week, err := s.svc.UpdateWeek(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	writeOK(w, http.StatusOK, week, "Week updated")
}

func (s *Server) deleteWeek(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Week")
	if !ok {
		return
	}
	if err := s.svc.DeleteWeek(r.Context(), id); err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	writeOK[any](w, http.StatusOK, nil, "Week deleted")
}

func readWeek(r *http.Request) (core.WeekInput, error) {
	var body weekBody
	if err := decodeJSON(r, &body); err != nil {
		return core.WeekInput{}, err
	}
	return body.input()
}

// listWeekSources returns the sources having at least one record in the week.
func (s *Server) listWeekSources(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Week")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.svc.GetWeek(ctx, id); err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	metrics, err := s.svc.ListLeadMetrics(ctx, core.LeadMetricFilter{WeekID: &id})
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	sources, err := s.svc.ListSources(ctx)
	if err != nil {
		s.writeError(w, r, "Source", err)
		return
	}

	used := make(map[int64]bool, len(metrics))
	for _, m := range metrics {
		used[m.SourceID] = true
	}
	out := make([]core.Source, 0, len(used))
	for _, src := range sources {
		if used[src.ID] {
			out = append(out, src)
		}
	}
	writeOK(w, http.StatusOK, out, "")
}

// weekSourceCategory is one record of a week and source, labelled with its
// category.
type weekSourceCategory struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Amount     int64  `json:"amount"`
	LeadsCount int64  `json:"leads_count"`
}

func (s *Server) listWeekSourceCategories(w http.ResponseWriter, r *http.Request) {
	weekID, ok := s.idOr404(w, r, "Week")
	if !ok {
		return
	}
	sourceID, err := pathID(r, "source_id")
	if err != nil {
		s.writeError(w, r, "Source", storage.ErrNotFound)
		return
	}
	ctx := r.Context()
	metrics, err := s.svc.ListLeadMetrics(ctx, core.LeadMetricFilter{WeekID: &weekID, SourceID: &sourceID})
	if err != nil {
		s.writeError(w, r, "Week", err)
		return
	}
	categories, err := s.svc.ListCategories(ctx)
	if err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	names := make(map[int64]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	out := make([]weekSourceCategory, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, weekSourceCategory{ID: m.CategoryID, Name: names[m.CategoryID], Amount: m.Amount, LeadsCount: m.LeadsCount})
	}
	slices.SortStableFunc(out, func(a, b weekSourceCategory) int { return strings.Compare(a.Name, b.Name) })
	writeOK(w, http.StatusOK, out, "")
}

// Sources and categories

type nameBody struct {
	Name string `json:"name"`
}

func readName(r *http.Request) (string, error) {
	var body nameBody
	if err := decodeJSON(r, &body); err != nil {
		return "", err
	}
	return sanitizeInput(body.Name), nil
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.ListSources(r.Context())
	if err != nil {
		s.writeError(w, r, "Source", err)
		return
	}
	writeOK(w, http.StatusOK, sources, "List all sources")
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Source")
	if !ok {
		return
	}
	src, err := s.svc.GetSource(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Source", err)
		return
	}
	writeOK(w, http.StatusOK, src, "Source found")
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	name, err := readName(r)
	if err != nil {
		s.writeError(w, r, "Source", err)
		return
	}
	src, err := s.svc.CreateSource(r.Context(), name)
	if err != nil {
		s.writeError(w, r, "Source", err)
		return
	}
	writeOK(w, http.StatusCreated, src, "Source created")
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Source")
	if !ok {
		return
	}
	name, err := readName(r)
	if err != nil {
		s.writeError(w, r, "Source", err)
		return
	}
	src, err := s.svc.UpdateSource(r.Context(), id, name)
	if err != nil {
		s.writeError(w, r, "Source", err)
		return
	}
	writeOK(w, http.StatusOK, src, "Source updated")
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Source")
	if !ok {
		return
	}
	if err := s.svc.DeleteSource(r.Context(), id); err != nil {
		s.writeError(w, r, "Source", err)
		return
	}
	writeOK[any](w, http.StatusOK, nil, "Source deleted")
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	writeOK(w, http.StatusOK, categories, "List all categories")
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Category")
	if !ok {
		return
	}
	c, err := s.svc.GetCategory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	writeOK(w, http.StatusOK, c, "Category found")
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	name, err := readName(r)
	if err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	c, err := s.svc.CreateCategory(r.Context(), name)
	if err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	writeOK(w, http.StatusCreated, c, "Category created")
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Category")
	if !ok {
		return
	}
	name, err := readName(r)
	if err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	c, err := s.svc.UpdateCategory(r.Context(), id, name)
	if err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	writeOK(w, http.StatusOK, c, "Category updated")
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Category")
	if !ok {
		return
	}
	if err := s.svc.DeleteCategory(r.Context(), id); err != nil {
		s.writeError(w, r, "Category", err)
		return
	}
	writeOK[any](w, http.StatusOK, nil, "Category deleted")
}

// Lead metrics

func (s *Server) listLeadMetrics(w http.ResponseWriter, r *http.Request) {
	f, err := ParseMetricFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	metrics, err := s.svc.ListLeadMetrics(r.Context(), f)
	if err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	writeOK(w, http.StatusOK, metrics, "List all lead metrics")
}

func (s *Server) getLeadMetric(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Metric")
	if !ok {
		return
	}
	m, err := s.svc.GetLeadMetric(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	writeOK(w, http.StatusOK, m, "Metric found")
}

func (s *Server) createLeadMetric(w http.ResponseWriter, r *http.Request) {
	var in core.LeadMetricInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	m, err := s.svc.CreateLeadMetric(r.Context(), in)
	if err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	writeOK(w, http.StatusCreated, m, "Metric created")
}

func (s *Server) updateLeadMetric(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Metric")
	if !ok {
		return
	}
	var in core.LeadMetricInput
	if err := decodeJSON(r, &in); err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	m, err := s.svc.UpdateLeadMetric(r.Context(), id, in)
	if err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	writeOK(w, http.StatusOK, m, "Metric updated")
}

func (s *Server) deleteLeadMetric(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idOr404(w, r, "Metric")
	if !ok {
		return
	}
	if err := s.svc.DeleteLeadMetric(r.Context(), id); err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	writeOK[any](w, http.StatusOK, nil, "Metric deleted")
}

// Dashboard

func (s *Server) leadOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.svc.LeadOverview(r.Context())
	if err != nil {
		s.writeError(w, r, "Overview", err)
		return
	}
	writeOK(w, http.StatusOK, ov, "Lead overview")
}

func (s *Server) leadMetricsByWeeks(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.LeadMetricsByWeek(r.Context())
	if err != nil {
		s.writeError(w, r, "Metric", err)
		return
	}
	writeOK(w, http.StatusOK, groups, "Metrics by week successfully fetched")
}

func (s *Server) categoryStats(w http.ResponseWriter, r *http.Request) {
	s.stats(w, r, "Category", s.svc.CategoryStats)
}

func (s *Server) sourceStats(w http.ResponseWriter, r *http.Request) {
	s.stats(w, r, "Source", s.svc.SourceStats)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request, what string,
	fn func(ctx context.Context, id int64, rng core.DateRange) (core.StatsSummary, error)) {
	id, ok := s.idOr404(w, r, what)
	if !ok {
		return
	}
	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		s.writeError(w, r, what, err)
		return
	}
	summary, err := fn(r.Context(), id, rng)
	if err != nil {
		s.writeError(w, r, what, err)
		return
	}
	writeOK(w, http.StatusOK, summary, what+" stats")
}
