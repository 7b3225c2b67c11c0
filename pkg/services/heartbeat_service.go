package services

import (
	"context"
	"fmt"
	"time"

	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/health"
	"storion-modbus-bridge/pkg/logger"
)

// StatusProvider returns the current bus health
type StatusProvider interface {
	Status() health.Status
}

// HeartbeatService manages periodic status heartbeats
// Single Responsibility: tell the supervisor the bridge is alive while the bus is healthy
type HeartbeatService struct {
	reporter bridgeerrors.HealthReporter
	status   StatusProvider
	interval time.Duration
}

// NewHeartbeatService creates a new heartbeat service
func NewHeartbeatService(
	reporter bridgeerrors.HealthReporter,
	status StatusProvider,
	interval time.Duration,
) *HeartbeatService {
	return &HeartbeatService{
		reporter: reporter,
		status:   status,
		interval: interval,
	}
}

// Start begins the heartbeat loop
func (s *HeartbeatService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.LogInfo("💓 Heartbeat service started with interval: %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("🔇 Heartbeat service stopped")
			return
		case <-ticker.C:
			s.sendHeartbeat(ctx)
		}
	}
}

// sendHeartbeat reports OK if the bus is healthy. A stale bus is left to the
// watchdog, which has already reported it.
func (s *HeartbeatService) sendHeartbeat(ctx context.Context) bool {
	st := s.status.Status()
	if !st.Healthy {
		logger.LogDebug("💔 Skipping heartbeat - bus silent for %.0fs", st.SecondsSilent)
		return false
	}

	msg := fmt.Sprintf("Bridge running, %d frames, last %.0fs ago", st.FramesSeen, st.SecondsSilent)
	if err := s.reporter.Report(ctx, false, bridgeerrors.ActionNone, msg); err != nil {
		logger.LogError("⚠️ Heartbeat failed: %v", err)
		return false
	}

	logger.LogDebug("💓 Heartbeat sent")
	return true
}

// SendImmediateHeartbeat sends a heartbeat immediately (useful for startup)
func (s *HeartbeatService) SendImmediateHeartbeat(ctx context.Context) error {
	if !s.sendHeartbeat(ctx) {
		return fmt.Errorf("heartbeat not sent")
	}
	return nil
}
