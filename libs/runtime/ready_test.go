package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestReadyzReportsFailures(t *testing.T) {
	probes := NewProbes(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("dial refused") }},
	)
	mux := NewBaseMux(probes)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kafka: dial refused") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestReadyzDraining(t *testing.T) {
	probes := NewProbes()
	mux := NewBaseMux(probes)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 before drain, got %d", rec.Code)
	}

	probes.Drain()
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after drain, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz should stay up while draining, got %d", rec.Code)
	}
}

func TestShutdownJoinsErrors(t *testing.T) {
	var ran []string
	err := Shutdown(time.Second,
		func(context.Context) error { ran = append(ran, "http"); return errors.New("http busy") },
		nil,
		func(context.Context) error { ran = append(ran, "otel"); return nil },
	)
	if err == nil || !strings.Contains(err.Error(), "http busy") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ran) != 2 {
		t.Fatalf("expected both steps to run, got %v", ran)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"debug": "DEBUG", "WARN": "WARN", "": "INFO", "bogus": "INFO", "error": "ERROR"}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
