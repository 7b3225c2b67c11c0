package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/health"
	"storion-modbus-bridge/pkg/logger"
)

// Action codes understood by the supervisor listening on the report topic
const (
	actionNothing = 0
	actionRestart = 1
)

// HealthReport is the body of the report topic
type HealthReport struct {
	CheckFail   bool   `json:"checkFail"`
	CheckAction int    `json:"checkAction"`
	CheckMsg    string `json:"checkMsg"`
}

func newHealthReport(failed bool, action int, message string) HealthReport {
	return HealthReport{CheckFail: failed, CheckAction: action, CheckMsg: message}
}

func actionCode(a bridgeerrors.Action) int {
	if a == bridgeerrors.ActionRestart {
		return actionRestart
	}
	return actionNothing
}

// HealthReporter publishes health reports for the external supervisor
type HealthReporter struct {
	transport Transport
	topic     string
}

// NewHealthReporter creates a reporter for the report topic
func NewHealthReporter(transport Transport, topic string) *HealthReporter {
	return &HealthReporter{transport: transport, topic: topic}
}

// Report implements errors.HealthReporter
func (r *HealthReporter) Report(ctx context.Context, failed bool, action bridgeerrors.Action, message string) error {
	data, err := json.Marshal(newHealthReport(failed, actionCode(action), message))
	if err != nil {
		return err
	}
	if err := r.transport.Publish(ctx, r.topic, false, data); err != nil {
		return fmt.Errorf("publish health report: %w", err)
	}
	logger.LogDebug("🩺 Health report sent: fail=%v action=%s msg=%q", failed, action, message)
	return nil
}

// StatusProvider returns the current bus health
type StatusProvider interface {
	Status() health.Status
}

// CheckResponder answers health check requests with a report of the current status
type CheckResponder struct {
	status   StatusProvider
	reporter bridgeerrors.HealthReporter
}

// NewCheckResponder creates a responder
func NewCheckResponder(status StatusProvider, reporter bridgeerrors.HealthReporter) *CheckResponder {
	return &CheckResponder{status: status, reporter: reporter}
}

// HandleMessage is subscribed to the check topic; the payload is ignored
func (c *CheckResponder) HandleMessage(ctx context.Context, topic string, payload []byte) {
	s := c.status.Status()
	var err error
	if s.Healthy {
		err = c.reporter.Report(ctx, false, bridgeerrors.ActionNone,
			fmt.Sprintf("OK, %d frames, last %.0fs ago", s.FramesSeen, s.SecondsSilent))
	} else {
		err = c.reporter.Report(ctx, true, bridgeerrors.ActionRestart,
			fmt.Sprintf("No valid frame for %.0f seconds", s.SecondsSilent))
	}
	if err != nil {
		logger.LogWarn("⚠️ Failed to answer health check: %v", err)
	}
}

var _ bridgeerrors.HealthReporter = (*HealthReporter)(nil)
