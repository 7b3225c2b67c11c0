package health

import (
	"context"
	"sync"
	"testing"
	"time"

	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/logger"
)

type report struct {
	failed  bool
	action  bridgeerrors.Action
	message string
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []report
}

func (r *fakeReporter) Report(ctx context.Context, failed bool, action bridgeerrors.Action, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{failed, action, message})
	return nil
}

func (r *fakeReporter) all() []report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report(nil), r.reports...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestWatchdog(timeout time.Duration) (*Watchdog, *fakeReporter, *fakeClock) {
	reporter := &fakeReporter{}
	clock := &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	w := NewWatchdog(timeout, bridgeerrors.NewErrorHandler(reporter, logger.NewMockLogger()), nil)
	w.now = clock.Now
	w.lastFrame.Store(clock.Now().UnixNano())
	return w, reporter, clock
}

func TestWatchdogReportsOncePerEpisode(t *testing.T) {
	w, reporter, clock := newTestWatchdog(300 * time.Second)
	ctx := context.Background()

	clock.Advance(299 * time.Second)
	if w.Check(ctx) {
		t.Error("Expected healthy before timeout")
	}
	if n := len(reporter.all()); n != 0 {
		t.Fatalf("Expected no report before timeout, got %d", n)
	}

	clock.Advance(2 * time.Second)
	if !w.Check(ctx) {
		t.Error("Expected stale after timeout")
	}

	// Further checks in the same episode stay quiet
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		w.Check(ctx)
	}

	reports := reporter.all()
	if len(reports) != 1 {
		t.Fatalf("Expected exactly 1 report, got %d", len(reports))
	}
	if !reports[0].failed || reports[0].action != bridgeerrors.ActionRestart {
		t.Errorf("Expected failed report with RESTART, got %+v", reports[0])
	}
}

func TestWatchdogRecoveryReport(t *testing.T) {
	w, reporter, clock := newTestWatchdog(time.Minute)
	ctx := context.Background()

	clock.Advance(2 * time.Minute)
	w.Check(ctx)

	w.ObserveFrame()
	if w.Check(ctx) {
		t.Error("Expected healthy after a valid frame")
	}
	w.Check(ctx)

	reports := reporter.all()
	if len(reports) != 2 {
		t.Fatalf("Expected timeout and recovery reports, got %d", len(reports))
	}
	if reports[1].failed || reports[1].action != bridgeerrors.ActionNone {
		t.Errorf("Expected recovery report with NONE, got %+v", reports[1])
	}

	// A second episode is reported again
	clock.Advance(2 * time.Minute)
	w.Check(ctx)
	if n := len(reporter.all()); n != 3 {
		t.Errorf("Expected new episode to be reported, got %d reports", n)
	}
}

func TestWatchdogFrameBetweenChecksStartsNewEpisode(t *testing.T) {
	w, reporter, clock := newTestWatchdog(time.Minute)
	ctx := context.Background()

	clock.Advance(2 * time.Minute)
	w.Check(ctx)

	// One frame, then silence again before the next check
	w.ObserveFrame()
	clock.Advance(2 * time.Minute)
	if !w.Check(ctx) {
		t.Error("Expected stale after the second silence")
	}

	reports := reporter.all()
	if len(reports) != 3 {
		t.Fatalf("Expected timeout, recovery and timeout reports, got %d: %+v", len(reports), reports)
	}
	if !reports[0].failed || reports[1].failed || !reports[2].failed {
		t.Errorf("Expected failed/ok/failed sequence, got %+v", reports)
	}
	if reports[2].action != bridgeerrors.ActionRestart {
		t.Errorf("Expected RESTART for the second episode, got %v", reports[2].action)
	}

	// The second episode is still reported only once
	clock.Advance(time.Minute)
	w.Check(ctx)
	if n := len(reporter.all()); n != 3 {
		t.Errorf("Expected no further reports, got %d", n)
	}
}

func TestWatchdogFramesKeepItQuiet(t *testing.T) {
	w, reporter, clock := newTestWatchdog(30 * time.Second)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		clock.Advance(20 * time.Second)
		w.ObserveFrame()
		if w.Check(ctx) {
			t.Fatalf("Check %d: expected healthy", i)
		}
	}
	if n := len(reporter.all()); n != 0 {
		t.Errorf("Expected no reports, got %d", n)
	}
}

func TestWatchdogStatus(t *testing.T) {
	w, _, clock := newTestWatchdog(time.Minute)

	w.ObserveFrame()
	w.ObserveFrame()
	clock.Advance(30 * time.Second)

	s := w.Status()
	if !s.Healthy {
		t.Error("Expected healthy status")
	}
	if s.FramesSeen != 2 {
		t.Errorf("Expected 2 frames, got %d", s.FramesSeen)
	}
	if s.SecondsSilent != 30 {
		t.Errorf("Expected 30 seconds silent, got %v", s.SecondsSilent)
	}

	clock.Advance(time.Minute)
	if w.Status().Healthy {
		t.Error("Expected unhealthy status after timeout")
	}
}

func TestWatchdogStartStopsOnCancel(t *testing.T) {
	w, _, _ := newTestWatchdog(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not stop")
	}
}
