package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hrmprivacy/internal/platform/config"
)

func memoryConfig(t *testing.T) config.Config {
	return config.Config{
		Environment:           "test",
		StorageDriver:         config.StorageMemory,
		JWTSecret:             "secret",
		ExportDir:             t.TempDir(),
		ExportExpiryDays:      30,
		RetentionBatchSize:    50,
		RetentionSchedule:     "0 2 * * *",
		ExportCleanupSchedule: "off",
		MetricsEnabled:        true,
		MaxBodyBytes:          4096,
		RateLimitPerMinute:    100,
	}
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestNewServesProbesAndMetrics(t *testing.T) {
	app, err := New(context.Background(), memoryConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer app.Close()

	if code, body := get(t, app.Router, "/healthz"); code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz: %d %q", code, body)
	}
	if code, body := get(t, app.Router, "/readyz"); code != http.StatusOK || body != "ready" {
		t.Fatalf("readyz: %d %q", code, body)
	}
	code, body := get(t, app.Router, "/metrics")
	if code != http.StatusOK || !strings.Contains(body, "hrmprivacy_http_requests_total") {
		t.Fatalf("metrics: %d missing request counter", code)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.StorageDriver = "oracle"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected invalid storage driver error")
	}
}

func TestNewSeedsPoliciesFromFile(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.RetentionPolicyFile = "../../../configs/retention_policies.yaml"
	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer app.Close()

	policies, err := app.Privacy.ListPolicies(context.Background(), false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(policies) != 5 {
		t.Fatalf("expected 5 seeded policies, got %d", len(policies))
	}
}

func TestStartBackgroundSchedulesSweep(t *testing.T) {
	app, err := New(context.Background(), memoryConfig(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := app.StartBackground(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if app.Jobs.NextRun("retention_sweep") == nil {
		t.Fatal("expected retention sweep to be scheduled")
	}
}
