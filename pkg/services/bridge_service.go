package services

import (
	"context"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/decode"
	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"
	"storion-modbus-bridge/pkg/metrics"
)

// SnapshotPublisher publishes decoded readings
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap decode.Snapshot) error
}

// TemperatureStore receives the inverter temperature from every inverter snapshot
type TemperatureStore interface {
	Set(celsius float64)
}

// RejectObserver is told about validated frames the dispatcher could not decode
type RejectObserver interface {
	ObserveRejected(reason string)
}

// BridgeService turns validated bus frames into published readings
// Single Responsibility: decode, cache and publish, nothing else
type BridgeService struct {
	dispatcher   *decode.Dispatcher
	publisher    SnapshotPublisher
	temperatures TemperatureStore
	errors       *bridgeerrors.ErrorHandler
	metrics      metrics.MetricsCollector
	rejects      []RejectObserver
}

// NewBridgeService creates the frame handler for the bus driver
func NewBridgeService(
	dispatcher *decode.Dispatcher,
	publisher SnapshotPublisher,
	temperatures TemperatureStore,
	errs *bridgeerrors.ErrorHandler,
	m metrics.MetricsCollector,
) *BridgeService {
	if errs == nil {
		errs = bridgeerrors.NewErrorHandler(nil, nil)
	}
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	return &BridgeService{
		dispatcher:   dispatcher,
		publisher:    publisher,
		temperatures: temperatures,
		errors:       errs,
		metrics:      m,
	}
}

// AddRejectObserver registers o to be notified of every undecodable frame
func (s *BridgeService) AddRejectObserver(o RejectObserver) {
	s.rejects = append(s.rejects, o)
}

// HandleFrame implements bus.FrameHandler. It runs on the bus goroutine, so
// the publish is bounded by the MQTT client's own timeout.
func (s *BridgeService) HandleFrame(ctx context.Context, req bus.Request, f frame.Frame) {
	snap, err := s.dispatcher.Dispatch(f)
	if err != nil {
		reason := bridgeerrors.KindOf(err).String()
		s.metrics.IncrementFramesDropped(reason)
		for _, o := range s.rejects {
			o.ObserveRejected(reason)
		}
		s.errors.Handle(ctx, err)
		return
	}

	if snap.Kind() != req.Kind {
		logger.LogDebug("Reply decoded as %s while a %s read was pending", snap.Kind(), req.Kind)
	}

	if inv, ok := snap.(decode.InverterSnapshot); ok && s.temperatures != nil {
		s.temperatures.Set(inv.TemperatureC)
	}

	s.metrics.IncrementSnapshots(snap.Kind().String())
	if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
		s.errors.Handle(ctx, err)
	}
}

var _ bus.FrameHandler = (*BridgeService)(nil)
