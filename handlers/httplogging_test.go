package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	t.Run("response passes through and is logged", func(t *testing.T) {
		logOutput := new(bytes.Buffer)
		log := slog.New(slog.NewJSONHandler(logOutput, nil))
		h := NewLogger(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			w.Write([]byte("short and stout"))
		}))

		r := httptest.NewRequest(http.MethodGet, "/simple/", nil)
		r.Header.Set("User-Agent", "pip/24.0")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		if w.Code != http.StatusTeapot {
			t.Fatalf("expected status code %d, got %d", http.StatusTeapot, w.Code)
		}
		if w.Body.String() != "short and stout" {
			t.Errorf("unexpected body %q", w.Body.String())
		}
		if !strings.Contains(logOutput.String(), `"status":418`) {
			t.Errorf("expected status in log output, got:\n%s", logOutput.String())
		}
		if !strings.Contains(logOutput.String(), `"userAgent":"pip/24.0"`) {
			t.Errorf("expected user agent in log output, got:\n%s", logOutput.String())
		}
	})
	t.Run("panics are recovered and return 500", func(t *testing.T) {
		logOutput := new(bytes.Buffer)
		log := slog.New(slog.NewJSONHandler(logOutput, nil))
		h := NewLogger(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		r := httptest.NewRequest(http.MethodGet, "/simple/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status code %d, got %d", http.StatusInternalServerError, w.Code)
		}
		if !strings.Contains(logOutput.String(), "boom") {
			t.Errorf("expected panic value in log output, got:\n%s", logOutput.String())
		}
	})
}
