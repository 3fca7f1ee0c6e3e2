package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus is the JSON body served by the health and readiness endpoints.
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth tracks the health of a single component.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

type healthTracker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
}

var tracker = &healthTracker{
	components: make(map[string]ComponentHealth),
	startTime:  time.Now(),
}

// Readiness gates on these; they must be registered and healthy.
var criticalComponents = []string{"database", "events"}

// SetVersion sets the version string reported by health responses.
func SetVersion(version string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.version = version
}

// RegisterComponent records the health of a named component.
func RegisterComponent(name string, healthy bool, message string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	tracker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent updates the health status of a component.
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// GetHealth returns the overall health, unhealthy when any component is.
func GetHealth() HealthStatus {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string)

	for name, comp := range tracker.components {
		if !comp.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.Message
		} else {
			components[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    tracker.version,
		Uptime:     time.Since(tracker.startTime).String(),
	}
}

// GetReadiness reports whether the critical components are up.
func GetReadiness() HealthStatus {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string)

	for _, name := range criticalComponents {
		comp, exists := tracker.components[name]
		switch {
		case !exists:
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
		case !comp.Healthy:
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + comp.Message
		default:
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    tracker.version,
		Uptime:     time.Since(tracker.startTime).String(),
	}
}

// HealthHandler serves the /health endpoint.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler serves the /ready endpoint.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")
		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler serves /live; it answers 200 whenever the process runs.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(tracker.startTime).String(),
		})
	}
}

// resetHealth is a test hook.
func resetHealth() {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.components = make(map[string]ComponentHealth)
}
