package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"leadboard/internal/api"
	"leadboard/internal/core"
	"leadboard/internal/explorer"
	"leadboard/internal/log"
	"leadboard/internal/services"
)

const sessionCookie = "leadboard_session"

func (s *Server) registerExplorer(r *mux.Router) {
	r.HandleFunc("/explorer", s.handleExplorerPage).Methods(http.MethodGet)
	r.HandleFunc("/explorer/reload", s.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/explorer/weeks/{week:[0-9]+}/toggle", s.handleToggleWeek).Methods(http.MethodPost)
	r.HandleFunc("/explorer/weeks/{week:[0-9]+}/sources/{source:[0-9]+}/toggle", s.handleToggleSource).Methods(http.MethodPost)
	r.HandleFunc("/explorer/weeks/{week:[0-9]+}/sources/{source:[0-9]+}/categories/{category:[0-9]+}/toggle", s.handleToggleCategory).Methods(http.MethodPost)
	r.HandleFunc("/explorer/leads", s.handleCreateLead).Methods(http.MethodPost)
	r.HandleFunc("/explorer/leads/{id:[0-9]+}", s.handleEditLead).Methods(http.MethodPost)
}

// session returns the caller's explorer, creating the session and its
// cookie when missing or expired.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*explorer.Explorer, context.Context) {
	id := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	if id == "" {
		id = explorer.NewSessionID()
	}
	ex, created := s.sessions.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   r.TLS != nil,
		})
	}
	logger := log.FromContext(r.Context()).With(log.FieldSessionID, id)
	return ex, log.WithLogger(r.Context(), logger)
}

// loadedSession is session plus the initial load when it has not succeeded yet.
func (s *Server) loadedSession(w http.ResponseWriter, r *http.Request) (*explorer.Explorer, context.Context, error) {
	ex, ctx := s.session(w, r)
	if ex.Loaded() {
		return ex, ctx, nil
	}
	err := ex.Load(ctx)
	if errors.Is(err, explorer.ErrStale) {
		// an invalidation overtook the load; its lists are already out of date
		err = ex.Load(ctx)
	}
	return ex, ctx, err
}

func (s *Server) render(ctx context.Context, w http.ResponseWriter, status int, name string, data any, b *HTMXResponseBuilder) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Template render failed",
			"template", name, log.FieldOperation, log.OpRender, log.FieldError, err)
		InternalServerError("Could not render the page").Write(w)
		return
	}
	if b == nil {
		b = NewHTMXResponse()
	}
	b.Status(status).BodyHTML(buf.String()).Write(w)
}

func loadErrorMessage(err error) string {
	return "Could not load the explorer: " + api.Message(err)
}

func (s *Server) handleExplorerPage(w http.ResponseWriter, r *http.Request) {
	ex, ctx, err := s.loadedSession(w, r)
	status, msg := http.StatusOK, ""
	if err != nil {
		status, msg = http.StatusBadGateway, loadErrorMessage(err)
	}
	s.render(ctx, w, status, "explorer.html", buildPage(ex, msg), nil)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ex, ctx := s.session(w, r)
	ex.Reset()
	b := NewHTMXResponse()
	msg := ""
	if err := ex.Load(ctx); err != nil {
		msg = loadErrorMessage(err)
		b.TriggerErrorNotification(msg)
	} else {
		b.TriggerExplorerReloaded()
	}
	// htmx only swaps 2xx bodies; the tree carries the error banner
	s.render(ctx, w, http.StatusOK, "tree", buildPage(ex, msg), b)
}

// notLoaded answers a partial request whose session could not be loaded.
func notLoaded(w http.ResponseWriter, err error) {
	ErrorResponse(http.StatusBadGateway, loadErrorMessage(err)).Write(w)
}

func (s *Server) handleToggleWeek(w http.ResponseWriter, r *http.Request) {
	ex, ctx, err := s.loadedSession(w, r)
	if err != nil {
		notLoaded(w, err)
		return
	}
	weekID, _ := pathID(r, "week")
	week, ok := ex.Week(weekID)
	if !ok {
		NotFoundError("Week not found").Write(w)
		return
	}
	ex.ToggleWeek(weekID)
	s.render(ctx, w, http.StatusOK, "week", buildWeek(ex, week), nil)
}

func (s *Server) handleToggleSource(w http.ResponseWriter, r *http.Request) {
	ex, ctx, err := s.loadedSession(w, r)
	if err != nil {
		notLoaded(w, err)
		return
	}
	weekID, _ := pathID(r, "week")
	sourceID, _ := pathID(r, "source")
	_, okWeek := ex.Week(weekID)
	src, okSource := ex.Source(sourceID)
	if !okWeek || !okSource {
		NotFoundError("Source not found").Write(w)
		return
	}
	ex.ToggleSource(weekID, sourceID)
	s.render(ctx, w, http.StatusOK, "source", buildSource(ex, weekID, src), nil)
}

func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	ex, ctx, err := s.loadedSession(w, r)
	if err != nil {
		notLoaded(w, err)
		return
	}
	weekID, _ := pathID(r, "week")
	sourceID, _ := pathID(r, "source")
	categoryID, _ := pathID(r, "category")
	_, okWeek := ex.Week(weekID)
	_, okSource := ex.Source(sourceID)
	cat, okCategory := ex.Category(categoryID)
	if !okWeek || !okSource || !okCategory {
		NotFoundError("Category not found").Write(w)
		return
	}

	b := NewHTMXResponse()
	msg := ""
	if _, err := ex.ToggleCategory(ctx, weekID, sourceID, categoryID); err != nil {
		// the leaf stays open and empty; the user retries by toggling again
		msg = "Could not load leads: " + api.Message(err)
		b.TriggerErrorNotification(msg)
	}
	s.render(ctx, w, http.StatusOK, "leaf", buildLeaf(ex, weekID, sourceID, cat, msg), b)
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	ex, ctx, err := s.loadedSession(w, r)
	if err != nil {
		notLoaded(w, err)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Malformed form").Write(w)
		return
	}
	in, err := p.LeadForm()
	if err != nil {
		s.mutationError(ctx, w, err)
		return
	}
	cat, ok := s.checkTriple(ex, in)
	if !ok {
		NotFoundError("Week, source or category not found").Write(w)
		return
	}

	created, err := ex.Create(ctx, in)
	if err != nil {
		s.mutationError(ctx, w, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Lead created from explorer",
		log.NewFields().
			WithMetric(created.ID, created.Amount, created.LeadsCount).
			WithTriple(created.WeekID, created.SourceID, created.CategoryID).
			ToSlice()...)

	// the form may live outside the leaf; point the swap at the leaf node
	b := NewHTMXResponse().
		Header("HX-Retarget", "#"+nodeID(in.WeekID, in.SourceID, in.CategoryID)).
		Header("HX-Reswap", "outerHTML").
		TriggerLeadSaved("create", created.WeekID, created.SourceID, created.CategoryID, created.ID).
		TriggerSuccessNotification("Lead saved").
		TriggerFormReset()
	s.render(ctx, w, http.StatusOK, "leaf", buildLeaf(ex, in.WeekID, in.SourceID, cat, ""), b)
}

func (s *Server) handleEditLead(w http.ResponseWriter, r *http.Request) {
	ex, ctx, err := s.loadedSession(w, r)
	if err != nil {
		notLoaded(w, err)
		return
	}
	id, _ := pathID(r, "id")
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Malformed form").Write(w)
		return
	}
	in, err := p.LeadForm()
	if err != nil {
		s.mutationError(ctx, w, err)
		return
	}
	cat, ok := s.checkTriple(ex, in)
	if !ok {
		NotFoundError("Week, source or category not found").Write(w)
		return
	}

	// only records visible in a loaded bucket can be edited
	var original core.LeadMetric
	found := false
	bucket, _ := ex.Bucket(in.WeekID, in.SourceID, in.CategoryID)
	for _, m := range bucket {
		if m.ID == id {
			original, found = m, true
			break
		}
	}
	if !found {
		NotFoundError("Lead not found").Write(w)
		return
	}

	updated, err := ex.Edit(ctx, original, in.Amount, in.LeadsCount)
	if err != nil {
		s.mutationError(ctx, w, err)
		return
	}
	log.FromContext(ctx).InfoContext(ctx, "Lead updated from explorer",
		log.NewFields().
			WithMetric(updated.ID, updated.Amount, updated.LeadsCount).
			WithTriple(original.WeekID, original.SourceID, original.CategoryID).
			ToSlice()...)

	b := NewHTMXResponse().
		TriggerLeadSaved("edit", original.WeekID, original.SourceID, original.CategoryID, updated.ID).
		TriggerSuccessNotification("Lead updated")
	s.render(ctx, w, http.StatusOK, "leaf", buildLeaf(ex, in.WeekID, in.SourceID, cat, ""), b)
}

// checkTriple resolves the triple against the loaded lists.
func (s *Server) checkTriple(ex *explorer.Explorer, in core.LeadMetricInput) (core.Category, bool) {
	_, okWeek := ex.Week(in.WeekID)
	_, okSource := ex.Source(in.SourceID)
	cat, okCategory := ex.Category(in.CategoryID)
	return cat, okWeek && okSource && okCategory
}

// mutationError reports a failed create or edit as a toast. The cache was
// not touched, so resubmitting is safe.
func (s *Server) mutationError(ctx context.Context, w http.ResponseWriter, err error) {
	var ve *services.ValidationError
	if errors.As(err, &ve) {
		UnprocessableEntityError("Invalid " + ve.Field + ": " + ve.Err.Error()).Write(w)
		return
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		ErrorResponse(apiErr.StatusCode, "Could not save lead: "+api.Message(err)).Write(w)
		return
	}
	log.FromContext(ctx).WarnContext(ctx, "Lead mutation failed", log.FieldError, err)
	ErrorResponse(http.StatusBadGateway, "Could not save lead: "+api.Message(err)).Write(w)
}
