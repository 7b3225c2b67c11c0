package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"storion-modbus-bridge/pkg/health"
	"storion-modbus-bridge/pkg/recovery"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status          string    `json:"status"` // "healthy" or "unhealthy"
	Timestamp       time.Time `json:"timestamp"`
	Uptime          string    `json:"uptime"`
	LastValidFrame  string    `json:"last_valid_frame"`
	FramesSeen      uint64    `json:"frames_seen"`
	WatchdogTimeout float64   `json:"watchdog_timeout_seconds"`
	QueueDepth      int       `json:"queue_depth"`
	PortCircuit     string    `json:"port_circuit,omitempty"`
	PortFailures    int       `json:"port_open_failures,omitempty"`
	Version         string    `json:"version,omitempty"`
}

// HealthChecker provides the watchdog view of the bus
type HealthChecker interface {
	Status() health.Status
}

// QueueLength reports how many requests wait for the bus
type QueueLength interface {
	Len() int
}

// PortGuard is the circuit breaker around opening the serial port
type PortGuard interface {
	GetState() recovery.CircuitState
	GetFailures() int
}

// HealthHandler provides HTTP health check endpoint
type HealthHandler struct {
	startTime     time.Time
	healthChecker HealthChecker
	queue         QueueLength
	port          PortGuard
	version       string
	now           func() time.Time
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(healthChecker HealthChecker, queue QueueLength, version string) *HealthHandler {
	return &HealthHandler{
		startTime:     time.Now(),
		healthChecker: healthChecker,
		queue:         queue,
		version:       version,
		now:           time.Now,
	}
}

// WithPortGuard adds the serial port breaker state to the health response
func (hh *HealthHandler) WithPortGuard(g PortGuard) *HealthHandler {
	hh.port = g
	return hh
}

// ServeHTTP implements http.Handler for /health. A stale bus answers 503.
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := hh.getHealthStatus()

	statusCode := http.StatusOK
	if status.Status != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, status, statusCode)
}

func (hh *HealthHandler) getHealthStatus() HealthStatus {
	now := hh.now()
	s := hh.healthChecker.Status()

	lastFrame := "never"
	if s.FramesSeen > 0 {
		lastFrame = formatDuration(time.Duration(s.SecondsSilent*float64(time.Second))) + " ago"
	}

	status := "healthy"
	if !s.Healthy {
		status = "unhealthy"
	}

	depth := 0
	if hh.queue != nil {
		depth = hh.queue.Len()
	}

	result := HealthStatus{
		Status:          status,
		Timestamp:       now,
		Uptime:          formatDuration(now.Sub(hh.startTime)),
		LastValidFrame:  lastFrame,
		FramesSeen:      s.FramesSeen,
		WatchdogTimeout: s.TimeoutSeconds,
		QueueDepth:      depth,
		Version:         hh.version,
	}
	if hh.port != nil {
		result.PortCircuit = hh.port.GetState().String()
		result.PortFailures = hh.port.GetFailures()
	}
	return result
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%d hours %d minutes", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%d days %d hours", int(d.Hours())/24, int(d.Hours())%24)
}

func writeJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}
