package metrics

import (
	"sort"
	"sync"
	"time"

	"storion-modbus-bridge/pkg/logger"
)

// FrameTracker keeps rolling counts of received frames for the periodic log summary
type FrameTracker struct {
	valid           int
	dropped         map[string]int
	lastSummaryTime time.Time
	summaryInterval time.Duration
	now             func() time.Time
	mu              sync.Mutex
}

// FrameStats represents frame statistics since the last summary
type FrameStats struct {
	Valid       int
	Dropped     map[string]int
	SuccessRate float64
}

// NewFrameTracker creates a tracker that summarizes every interval
func NewFrameTracker(summaryInterval time.Duration) *FrameTracker {
	return &FrameTracker{
		dropped:         make(map[string]int),
		lastSummaryTime: time.Now(),
		summaryInterval: summaryInterval,
		now:             time.Now,
	}
}

// RecordValid records a frame that passed validation
func (ft *FrameTracker) RecordValid() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.valid++
}

// RecordDropped records a discarded frame
func (ft *FrameTracker) RecordDropped(reason string) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.dropped[reason]++
}

// ObserveFrame lets the tracker listen to the bus driver directly
func (ft *FrameTracker) ObserveFrame() {
	ft.RecordValid()
	ft.SummarizeIfDue()
}

// ObserveDrop is the drop counterpart of ObserveFrame
func (ft *FrameTracker) ObserveDrop(reason string) {
	ft.RecordDropped(reason)
	ft.SummarizeIfDue()
}

// ObserveRejected moves a frame the driver already counted as valid to the
// dropped counts, for replies that passed the CRC but could not be decoded
func (ft *FrameTracker) ObserveRejected(reason string) {
	ft.mu.Lock()
	if ft.valid > 0 {
		ft.valid--
	}
	ft.dropped[reason]++
	ft.mu.Unlock()
	ft.SummarizeIfDue()
}

// Stats returns the counts since the last summary
func (ft *FrameTracker) Stats() FrameStats {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.statsLocked()
}

func (ft *FrameTracker) statsLocked() FrameStats {
	dropped := make(map[string]int, len(ft.dropped))
	total := ft.valid
	for k, v := range ft.dropped {
		dropped[k] = v
		total += v
	}
	var rate float64
	if total > 0 {
		rate = float64(ft.valid) / float64(total) * 100.0
	}
	return FrameStats{Valid: ft.valid, Dropped: dropped, SuccessRate: rate}
}

// SummarizeIfDue logs and resets the counts once the interval has passed.
// Returns true when a summary was written.
func (ft *FrameTracker) SummarizeIfDue() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.now().Sub(ft.lastSummaryTime) < ft.summaryInterval {
		return false
	}

	stats := ft.statsLocked()
	reasons := make([]string, 0, len(stats.Dropped))
	for k := range stats.Dropped {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	droppedTotal := 0
	for _, r := range reasons {
		droppedTotal += stats.Dropped[r]
	}

	logger.LogInfo("📊 Summary - Valid frames: %d, Dropped: %d (%.1f%% ok), Last %v",
		stats.Valid, droppedTotal, stats.SuccessRate, ft.summaryInterval)
	for _, r := range reasons {
		logger.LogDebug("   %s: %d", r, stats.Dropped[r])
	}

	ft.lastSummaryTime = ft.now()
	ft.valid = 0
	ft.dropped = make(map[string]int)
	return true
}
