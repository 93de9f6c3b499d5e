package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/activity"
	"github.com/OancaAdrian/CRM/internal/caen"
	"github.com/OancaAdrian/CRM/internal/importer"
	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/resilience"
	"github.com/OancaAdrian/CRM/internal/store"
)

const maxUploadBytes = 20 << 20

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]string{"error": msg})
}

// fail maps service errors onto HTTP statuses.
func fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, activity.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case dbUnavailable(err):
		zap.L().Warn("database unavailable", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
	default:
		zap.L().Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// dbUnavailable spots connectivity failures so they surface as 503
// rather than 500. Closed handles come back as plain strings from
// database/sql, hence the message check.
func dbUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if strings.Contains(err.Error(), "database is closed") {
		return true
	}
	return resilience.IsTransient(err)
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("health check failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearchFirms(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	rows, err := s.firms.Search(r.Context(), q, queryInt(r, "limit"))
	if err != nil {
		fail(w, err)
		return
	}
	if rows == nil {
		rows = []model.FirmSearchRow{}
	}
	respond(w, http.StatusOK, rows)
}

func (s *Server) handleGetFirm(w http.ResponseWriter, r *http.Request) {
	detail, err := s.firms.Get(r.Context(), chi.URLParam(r, "cui"))
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, detail)
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	acts, err := s.activities.ListForFirm(r.Context(), chi.URLParam(r, "cui"), queryInt(r, "limit"))
	if err != nil {
		fail(w, err)
		return
	}
	if acts == nil {
		acts = []model.Activity{}
	}
	respond(w, http.StatusOK, acts)
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	var in activity.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	res, err := s.activities.CreateOrUpdate(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	// A duplicate returns the existing row with 409 so clients notice
	// the repeat without losing the payload.
	if res.Updated {
		respond(w, http.StatusConflict, res.Activity)
		return
	}
	respond(w, http.StatusCreated, res.Activity)
}

func (s *Server) handleCompleteActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid activity id")
		return
	}
	if err := s.activities.Complete(r.Context(), id); err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"id": id, "completed": true})
}

func (s *Server) handleAgenda(w http.ResponseWriter, r *http.Request) {
	day := model.Today()
	if raw := r.URL.Query().Get("data"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "data must be YYYY-MM-DD")
			return
		}
		day = d
	}
	ag, err := s.agenda.Get(r.Context(), day)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, ag)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	sugs, err := s.ranker.TakeNext(r.Context(), queryInt(r, "n"))
	if err != nil {
		fail(w, err)
		return
	}
	if sugs == nil {
		sugs = []model.Suggestion{}
	}
	respond(w, http.StatusOK, sugs)
}

func (s *Server) handleRebuildSuggestions(w http.ResponseWriter, r *http.Request) {
	n, err := s.ranker.Rebuild(r.Context())
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int64{"rows": n})
}

func (s *Server) handleMarkSuggestionsUsed(w http.ResponseWriter, r *http.Request) {
	var in struct {
		CUIs []string `json:"cuis"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(in.CUIs) == 0 {
		respondError(w, http.StatusBadRequest, "cuis is required")
		return
	}
	n, err := s.ranker.MarkUsed(r.Context(), in.CUIs)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int64{"marked": n})
}

func (s *Server) handleImportCAEN(w http.ResponseWriter, r *http.Request) {
	file, _, err := formFile(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	n, err := caen.Import(r.Context(), s.store, file)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]int64{"rows": n})
}

func (s *Server) handleImportActivities(w http.ResponseWriter, r *http.Request) {
	file, form, err := formFile(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	mapping := importer.ActivityMapping{
		TypeColumn:    form("type_column"),
		CommentColumn: form("comment_column"),
		ScoreColumn:   form("score_column"),
		DateColumn:    form("date_column"),
		DateFormat:    form("date_format"),
	}
	if d := form("delimiter"); d != "" {
		mapping.Delimiter = rune(d[0])
	}

	report, err := importer.ImportActivities(r.Context(), s.store, chi.URLParam(r, "cui"), file, mapping)
	if err != nil {
		fail(w, err)
		return
	}
	respond(w, http.StatusOK, report)
}

// formFile pulls the uploaded "file" part plus an accessor for the
// remaining form values.
func formFile(r *http.Request) (multipart.File, func(string) string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, errors.New("expected multipart form with a file field")
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New("file field is required")
	}
	return file, func(name string) string { return r.FormValue(name) }, nil
}
