package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetHealthAggregatesComponents(t *testing.T) {
	resetHealth()

	RegisterComponent("database", true, "")
	RegisterComponent("events", true, "")

	health := GetHealth()
	if health.Status != "healthy" {
		t.Errorf("GetHealth().Status = %q, want healthy", health.Status)
	}

	UpdateComponent("database", false, "connection refused")
	health = GetHealth()
	if health.Status != "unhealthy" {
		t.Errorf("GetHealth().Status = %q, want unhealthy", health.Status)
	}
	if health.Components["database"] != "unhealthy: connection refused" {
		t.Errorf("unexpected component detail: %q", health.Components["database"])
	}
}

func TestGetReadinessRequiresCriticalComponents(t *testing.T) {
	resetHealth()

	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("GetReadiness().Status = %q, want not_ready before registration", readiness.Status)
	}

	RegisterComponent("database", true, "")
	RegisterComponent("events", true, "")

	readiness = GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("GetReadiness().Status = %q, want ready", readiness.Status)
	}
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	resetHealth()
	RegisterComponent("database", true, "")
	RegisterComponent("events", true, "")

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status code = %d, want 200", rec.Code)
	}

	UpdateComponent("events", false, "stopped")
	rec = httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status code = %d, want 503", rec.Code)
	}

	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("body status = %q, want unhealthy", body.Status)
	}
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest("GET", "/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness status code = %d, want 200", rec.Code)
	}
}
