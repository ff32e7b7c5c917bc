package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/diewo77/go-procurement/internal/policy"
	"github.com/diewo77/go-procurement/internal/ratelimit"
	"github.com/rs/zerolog"
)

func TestRecoverPanicsAnswersServerError(t *testing.T) {
	var logs bytes.Buffer
	a := &App{
		routerCfg: &policy.RouterConfig{ClientIP: ratelimit.ClientIP},
		log:       zerolog.New(&logs),
	}
	h := a.withLogging(a.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rfq/1", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v (body %s)", err, rr.Body.String())
	}
	if body.Error != "server_error" {
		t.Fatalf("error = %q, want server_error", body.Error)
	}
	if strings.Contains(rr.Body.String(), "nil map") {
		t.Fatalf("panic value leaked: %s", rr.Body.String())
	}
	out := logs.String()
	if !strings.Contains(out, "handler panicked") || !strings.Contains(out, `"status":500`) {
		t.Fatalf("expected panic and access log lines, got %s", out)
	}
}

func TestRecoverPanicsPassesThrough(t *testing.T) {
	a := &App{log: zerolog.Nop()}
	h := a.recoverPanics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
}
