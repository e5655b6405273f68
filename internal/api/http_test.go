package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/runsvc"
	"github.com/antonkrylov/saprunner/internal/sap"
)

func postRun(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sap/run", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestRunSuccess(t *testing.T) {
	svc := newFakeService()
	h := NewHTTPServer(svc, nil)

	rec := postRun(t, h, `{"start_date":"2026-01-01","end_date":"31/01/2026"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(logging.RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
	var resp RunResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" || resp.RunID != "run-1" || resp.NotesCount != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Iw59ExportFile == nil || *resp.Iw59ExportFile != `C:\exports\brs_sap_gov_sp_1.XLSX` {
		t.Fatalf("iw59 file = %v", resp.Iw59ExportFile)
	}
	want := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	if len(svc.commands) != 1 || !svc.commands[0].EndDate.Equal(want) {
		t.Fatalf("commands = %+v", svc.commands)
	}
}

func TestRunWithoutSecondExportReturnsNull(t *testing.T) {
	svc := newFakeService()
	svc.record.Iw59Export = ""
	rec := postRun(t, NewHTTPServer(svc, nil), `{"start_date":"01.01.2026","end_date":"02.01.2026"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"iw59_export_file":null`) {
		t.Fatalf("expected explicit null, got %s", rec.Body.String())
	}
}

func TestRunEchoesInboundRequestID(t *testing.T) {
	svc := newFakeService()
	h := NewHTTPServer(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sap/run", strings.NewReader(`{"start_date":"2026-01-01","end_date":"2026-01-02"}`))
	req.Header.Set(logging.RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(logging.RequestIDHeader); got != "abc-123" {
		t.Fatalf("request id = %q", got)
	}
	if svc.requestID != "abc-123" {
		t.Fatalf("context request id = %q", svc.requestID)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"bad json":   `{`,
		"bad date":   `{"start_date":"2026-13-01","end_date":"2026-01-02"}`,
		"missing":    `{"end_date":"2026-01-02"}`,
		"end before": `{"start_date":"2026-01-02","end_date":"2026-01-01"}`,
	}
	for name, body := range cases {
		svc := newFakeService()
		rec := postRun(t, NewHTTPServer(svc, nil), body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", name, rec.Code)
		}
		if len(svc.commands) != 0 {
			t.Fatalf("%s: run should not start", name)
		}
	}
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"config", &sap.Error{Kind: sap.KindConfig, Msg: "missing sap credentials: SAP_PASSWORD"}, http.StatusInternalServerError, "missing sap credentials: SAP_PASSWORD"},
		{"automation", &sap.Error{Kind: sap.KindAutomation, Msg: "control not found"}, http.StatusInternalServerError, "control not found"},
		{"timeout", &sap.Error{Kind: sap.KindExportTimeout, Msg: "no export"}, http.StatusInternalServerError, "no export"},
		{"extraction", &sap.Error{Kind: sap.KindExtraction, Msg: "no notes"}, http.StatusInternalServerError, "no notes"},
		{"unexpected", errors.New("nil pointer somewhere"), http.StatusInternalServerError, unexpectedMessage},
		{"validation", &sap.Error{Kind: sap.KindValidation, Msg: "bad range"}, http.StatusBadRequest, "bad range"},
	}
	for _, tc := range cases {
		svc := newFakeService()
		svc.runErr = tc.err
		rec := postRun(t, NewHTTPServer(svc, nil), `{"start_date":"2026-01-01","end_date":"2026-01-02"}`)
		if rec.Code != tc.status {
			t.Fatalf("%s: status = %d", tc.name, rec.Code)
		}
		resp := decodeError(t, rec)
		if resp.Detail != tc.detail || resp.RunID != "run-1" {
			t.Fatalf("%s: unexpected body %+v", tc.name, resp)
		}
	}
}

func TestRunBusy(t *testing.T) {
	svc := newFakeService()
	svc.busy = true
	rec := postRun(t, NewHTTPServer(svc, nil), `{"start_date":"2026-01-01","end_date":"2026-01-02"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRunAfterShutdown(t *testing.T) {
	svc := newFakeService()
	svc.runErr = runsvc.ErrClosed
	rec := postRun(t, NewHTTPServer(svc, nil), `{"start_date":"2026-01-01","end_date":"2026-01-02"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Detail != runsvc.ErrClosed.Error() {
		t.Fatalf("detail = %q", resp.Detail)
	}
}

func TestRunsEndpoints(t *testing.T) {
	h := NewHTTPServer(newFakeService(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sap/runs/run-1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"run-1"`) {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sap/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sap/runs?limit=5", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"runs"`) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sap/runs?limit=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPServer(newFakeService(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(logging.RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2026-03-09", "09/03/2026", "09.03.2026", " 2026-03-09 "} {
		got, err := ParseDate(raw)
		if err != nil || !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v, %v", raw, got, err)
		}
	}
	for _, raw := range []string{"", "03/09/26", "2026/03/09", "31.02.2026"} {
		if _, err := ParseDate(raw); err == nil {
			t.Fatalf("ParseDate(%q) should fail", raw)
		}
	}
}
