package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/logger"
	"storion-modbus-bridge/pkg/metrics"
)

// Status is a point-in-time view of bus health
type Status struct {
	Healthy        bool      `json:"healthy"`
	LastFrameAt    time.Time `json:"last_frame_at"`
	SecondsSilent  float64   `json:"seconds_silent"`
	TimeoutSeconds float64   `json:"timeout_seconds"`
	FramesSeen     uint64    `json:"frames_seen"`
	Reported       bool      `json:"reported"`
}

// Watchdog detects a silent bus. A stale episode is reported once when it
// starts and once more when valid frames resume; checks in between stay quiet.
type Watchdog struct {
	timeout time.Duration
	errors  *bridgeerrors.ErrorHandler
	metrics metrics.MetricsCollector
	now     func() time.Time

	lastFrame  atomic.Int64 // unix nanoseconds
	framesSeen atomic.Uint64

	mu             sync.Mutex
	reported       bool
	reportedFrames uint64 // framesSeen when the episode was reported
}

// NewWatchdog creates a watchdog. The startup time counts as the last frame,
// so a bus that never answers is reported one timeout after start.
func NewWatchdog(timeout time.Duration, errs *bridgeerrors.ErrorHandler, m metrics.MetricsCollector) *Watchdog {
	if errs == nil {
		errs = bridgeerrors.NewErrorHandler(nil, nil)
	}
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	w := &Watchdog{
		timeout: timeout,
		errors:  errs,
		metrics: m,
		now:     time.Now,
	}
	w.lastFrame.Store(w.now().UnixNano())
	return w
}

// ObserveFrame records that a valid frame just arrived. Safe to call from the bus goroutine.
func (w *Watchdog) ObserveFrame() {
	w.lastFrame.Store(w.now().UnixNano())
	w.framesSeen.Add(1)
}

func (w *Watchdog) silentFor() time.Duration {
	return w.now().Sub(time.Unix(0, w.lastFrame.Load()))
}

// Check compares the time since the last valid frame with the timeout and
// reports on the edges only. Any frame observed since the failure report ends
// that episode, even if the bus went silent again before this check.
// Returns true while the bus is stale.
func (w *Watchdog) Check(ctx context.Context) bool {
	silent := w.silentFor()
	stale := silent > w.timeout
	seen := w.framesSeen.Load()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.reported && seen > w.reportedFrames {
		w.reported = false
		w.metrics.SetBusStale(false)
		w.errors.Recovered(ctx, "Valid frames received again")
	}

	switch {
	case stale && !w.reported:
		w.reported = true
		w.reportedFrames = seen
		w.metrics.SetBusStale(true)
		err := bridgeerrors.New(bridgeerrors.KindWatchdogTimeout, "watchdog",
			fmt.Errorf("no valid frame for %.0f seconds", silent.Seconds()))
		w.errors.Handle(ctx, err)
	case !stale && w.reported:
		w.reported = false
		w.metrics.SetBusStale(false)
		w.errors.Recovered(ctx, "Valid frames received again")
	}
	return stale
}

// Status returns the current health view
func (w *Watchdog) Status() Status {
	last := time.Unix(0, w.lastFrame.Load())
	silent := w.now().Sub(last)

	w.mu.Lock()
	reported := w.reported
	w.mu.Unlock()

	return Status{
		Healthy:        silent <= w.timeout,
		LastFrameAt:    last.UTC(),
		SecondsSilent:  silent.Seconds(),
		TimeoutSeconds: w.timeout.Seconds(),
		FramesSeen:     w.framesSeen.Load(),
		Reported:       reported,
	}
}

// Start runs Check every interval until ctx is cancelled
func (w *Watchdog) Start(ctx context.Context, interval time.Duration) {
	logger.LogInfo("🐕 Watchdog started (timeout %v, check every %v)", w.timeout, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.LogInfo("🐕 Watchdog stopped")
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}
