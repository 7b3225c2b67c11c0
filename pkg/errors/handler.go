package errors

import (
	"context"
	"fmt"
	"storion-modbus-bridge/pkg/logger"
)

// Action is the recommendation sent along with a health report
type Action int

const (
	ActionNone Action = iota
	ActionRestart
)

func (a Action) String() string {
	if a == ActionRestart {
		return "RESTART"
	}
	return "NONE"
}

// HealthReporter publishes health reports to the external supervisor
type HealthReporter interface {
	Report(ctx context.Context, failed bool, action Action, message string) error
}

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	reporter HealthReporter
	log      logger.ILogger
}

// NewErrorHandler creates a new error handler. reporter may be nil.
func NewErrorHandler(reporter HealthReporter, log logger.ILogger) *ErrorHandler {
	if log == nil {
		log = logger.NewStandardLogger()
	}
	return &ErrorHandler{
		reporter: reporter,
		log:      log,
	}
}

// Handle logs err and escalates the kinds that need an external restart decision.
// Frame-level kinds are only logged; the next scheduled poll is their retry.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	kind := KindOf(err)
	switch kind {
	case KindLengthMismatch, KindCrcMismatch, KindException:
		h.log.LogWarn("⚠️ Frame dropped: %v", err)
		return
	case KindUnknownFrameLength:
		h.log.LogWarn("⚠️ Unknown frame discarded: %v", err)
		return
	case KindPortOpenFailure, KindWatchdogTimeout, KindDeviceIO:
		h.log.LogError("🔴 %s: %v", kind, err)
		h.report(ctx, true, ActionRestart, fmt.Sprintf("%s: %v", kind, err))
	case KindPublish:
		h.log.LogWarn("⚠️ Publish failed: %v", err)
	default:
		h.log.LogError("❌ Untyped Error: %v", err)
	}
}

// Recovered sends an all-clear report after an escalated condition ended
func (h *ErrorHandler) Recovered(ctx context.Context, message string) {
	h.log.LogInfo("🟢 %s", message)
	h.report(ctx, false, ActionNone, message)
}

func (h *ErrorHandler) report(ctx context.Context, failed bool, action Action, message string) {
	if h.reporter == nil {
		return
	}
	if err := h.reporter.Report(ctx, failed, action, message); err != nil {
		h.log.LogDebug("Failed to publish health report: %v", err)
	}
}
