package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OancaAdrian/CRM/internal/config"
	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
)

func intPtr(v int) *int { return &v }

func newTestServer(t *testing.T, cfg config.Config) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	_, err = st.UpsertFirms(ctx, []model.Firm{
		{CUI: "123456", Name: "ARABESQUE SRL", County: "GALATI", Licenses: intPtr(5)},
		{CUI: "654321", Name: "CONSTRUCT SA", County: "GALATI", Licenses: intPtr(2)},
	})
	require.NoError(t, err)

	if cfg.Suggest.Limit == 0 {
		cfg.Suggest.Limit = 20
	}
	ts := httptest.NewServer(New(cfg, st).Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any, out any) int {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	var body map[string]string
	code := getJSON(t, ts, "/health", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestSearchFirms(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	var rows []model.FirmSearchRow
	code := getJSON(t, ts, "/api/firme?q=RO123456", &rows)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, rows, 1)
	assert.Equal(t, "ARABESQUE SRL", rows[0].Name)

	code = getJSON(t, ts, "/api/firme?q=", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	rows = nil
	code = getJSON(t, ts, "/api/firme?q=nimic", &rows)
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, rows)
}

func TestGetFirm_NotFound(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})
	code := getJSON(t, ts, "/api/firme/000000", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateActivity_ThenDuplicateConflicts(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	in := map[string]any{"firm_id": "123456", "comment": "oferta trimisa", "score": 2}

	var first model.Activity
	code := postJSON(t, ts, "/api/activitati", in, &first)
	require.Equal(t, http.StatusCreated, code)
	assert.NotZero(t, first.ID)
	require.NotNil(t, first.ScheduledDate)

	var second model.Activity
	code = postJSON(t, ts, "/api/activitati", in, &second)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateActivity_Validation(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	code := postJSON(t, ts, "/api/activitati", map[string]any{"firm_id": "123456"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = postJSON(t, ts, "/api/activitati",
		map[string]any{"firm_id": "123456", "comment": "x", "scheduled_date": "maine"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCompleteActivity(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	var a model.Activity
	code := postJSON(t, ts, "/api/activitati",
		map[string]any{"firm_id": "123456", "comment": "de sunat", "score": 1}, &a)
	require.Equal(t, http.StatusCreated, code)

	code = postJSON(t, ts, fmt.Sprintf("/api/activitati/%d/complete", a.ID), map[string]any{}, nil)
	assert.Equal(t, http.StatusOK, code)

	code = postJSON(t, ts, "/api/activitati/9999/complete", map[string]any{}, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code = postJSON(t, ts, "/api/activitati/abc/complete", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAgenda(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	code := postJSON(t, ts, "/api/activitati",
		map[string]any{"firm_id": "123456", "comment": "follow up", "score": 1}, nil)
	require.Equal(t, http.StatusCreated, code)

	day := model.Today().AddDays(1)
	var ag model.Agenda
	code = getJSON(t, ts, "/api/agenda?data="+day.String(), &ag)
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, ag.Due, 1)
	assert.Equal(t, "follow up", ag.Due[0].Comment)

	code = getJSON(t, ts, "/api/agenda?data=ieri", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSuggestionsFlow(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	var rebuilt map[string]int64
	code := postJSON(t, ts, "/api/sugestii/rebuild", map[string]any{}, &rebuilt)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(2), rebuilt["rows"])

	var sugs []model.Suggestion
	code = getJSON(t, ts, "/api/sugestii?n=10", &sugs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sugs, 2)
	assert.Equal(t, "123456", sugs[0].CUI)

	var marked map[string]int64
	code = postJSON(t, ts, "/api/sugestii/folosite", map[string]any{"cuis": []string{"123456"}}, &marked)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), marked["marked"])

	sugs = nil
	code = getJSON(t, ts, "/api/sugestii?n=10", &sugs)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, sugs, 1)
	assert.Equal(t, "654321", sugs[0].CUI)

	code = postJSON(t, ts, "/api/sugestii/folosite", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestImportCAEN(t *testing.T) {
	ts, st := newTestServer(t, config.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "caen.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("GRUPA;DENUMIRE\n494;Transporturi rutiere de marfuri\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/import/caen", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	code, err := st.LookupCAEN(context.Background(), "494")
	require.NoError(t, err)
	assert.Equal(t, "Transporturi rutiere de marfuri", code.Name)
}

func TestImportActivities(t *testing.T) {
	ts, st := newTestServer(t, config.Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("delimiter", ";"))
	fw, err := mw.CreateFormFile("file", "activitati.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("tip;comment;score\ntelefon;sunat client;3\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/import/activitati/123456", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		Created int `json:"created"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 1, report.Created)

	acts, err := st.ListActivities(context.Background(), "123456", 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "telefon", acts[0].TypeName)
}

func TestAPIKeyGuard(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{
		Server: config.ServerConfig{APIKey: "secret"},
	})

	code := getJSON(t, ts, "/api/firme?q=123456", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// Health stays open for probes.
	code = getJSON(t, ts, "/health", nil)
	assert.Equal(t, http.StatusOK, code)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/firme?q=123456", nil)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{
		Server: config.ServerConfig{RateLimit: 1, RateBurst: 2},
	})

	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		codes[getJSON(t, ts, "/health", nil)]++
	}
	assert.Positive(t, codes[http.StatusOK])
	assert.Positive(t, codes[http.StatusTooManyRequests])
}

func TestRequestIDHeader(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "abc-123")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-Id"))
}

func TestDBDownReturns503(t *testing.T) {
	ts, st := newTestServer(t, config.Config{})
	require.NoError(t, st.Close())

	code := getJSON(t, ts, "/api/firme?q=123456", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	var body map[string]string
	code = getJSON(t, ts, "/health", &body)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "database unavailable", body["error"])
}

func TestErrorEnvelope(t *testing.T) {
	ts, _ := newTestServer(t, config.Config{})

	resp, err := http.Get(ts.URL + "/api/firme/000000")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not found", body["error"])
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json"))
}
