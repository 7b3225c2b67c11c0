package scheduler

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"
)

// Enqueuer accepts requests for the bus driver. A periodic read that is
// still pending is not queued twice, so a slow bus cannot grow the queue.
type Enqueuer interface {
	EnqueueUnique(r bus.Request) bool
}

// TemperaturePublisher publishes the slow-cadence inverter temperature
type TemperaturePublisher interface {
	PublishTemperature(ctx context.Context, celsius float64) error
}

// TemperatureCache holds the most recent inverter temperature. It is written
// by the publish path on every inverter snapshot and read by the scheduler.
type TemperatureCache struct {
	bits atomic.Uint64
	set  atomic.Bool
}

// Set stores a new reading
func (c *TemperatureCache) Set(celsius float64) {
	c.bits.Store(math.Float64bits(celsius))
	c.set.Store(true)
}

// Get returns the cached reading, false when nothing was decoded yet
func (c *TemperatureCache) Get() (float64, bool) {
	if !c.set.Load() {
		return 0, false
	}
	return math.Float64frombits(c.bits.Load()), true
}

// entry is one periodic job. Bus entries enqueue a read, the temperature
// entry republishes the cached value.
type entry struct {
	name        string
	kind        frame.Kind
	interval    int
	ticks       int
	temperature bool
}

// PollScheduler counts ticks per entry and fires each one when its interval
// is reached. Entries are independent: one firing never resets another.
type PollScheduler struct {
	mu        sync.Mutex
	entries   []*entry
	address   byte
	tick      time.Duration
	queue     Enqueuer
	cache     *TemperatureCache
	publisher TemperaturePublisher
	now       func() time.Time
}

// NewPollScheduler creates the scheduler for the inverter, meter and battery
// reads plus the temperature republish.
func NewPollScheduler(settings config.ScheduleSettings, address byte, queue Enqueuer,
	cache *TemperatureCache, publisher TemperaturePublisher) *PollScheduler {
	s := &PollScheduler{
		address:   address,
		tick:      settings.Tick,
		queue:     queue,
		cache:     cache,
		publisher: publisher,
		now:       time.Now,
		entries: []*entry{
			{name: "inverter", kind: frame.KindInverter, interval: settings.InverterTicks},
			{name: "meter", kind: frame.KindMeter, interval: settings.MeterTicks},
			{name: "battery", kind: frame.KindBattery, interval: settings.BatteryTicks},
			{name: "temperature", interval: settings.TemperatureTicks, temperature: true},
		},
	}

	for _, e := range s.entries {
		logger.LogInfo("📅 Scheduled '%s' every %d ticks (%v)", e.name, e.interval, time.Duration(e.interval)*s.tick)
	}
	return s
}

// Tick advances every entry by one tick and fires those that are due
func (s *PollScheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	due := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		e.ticks++
		if e.ticks >= e.interval {
			e.ticks = 0
			due = append(due, *e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if e.temperature {
			s.publishTemperature(ctx)
			continue
		}
		req, ok := bus.NewRequest(s.address, e.kind, s.now())
		if !ok {
			logger.LogError("❌ No request template for '%s'", e.name)
			continue
		}
		if !s.queue.EnqueueUnique(req) {
			logger.LogDebug("⏳ Previous %s read still pending, skipping", e.name)
			continue
		}
		logger.LogTrace("⏰ Queued %s read", e.name)
	}
}

func (s *PollScheduler) publishTemperature(ctx context.Context) {
	celsius, ok := s.cache.Get()
	if !ok {
		logger.LogDebug("No inverter temperature cached yet, skipping publish")
		return
	}
	if err := s.publisher.PublishTemperature(ctx, celsius); err != nil {
		logger.LogWarn("⚠️ Failed to publish inverter temperature: %v", err)
	}
}

// Start runs Tick on a ticker until ctx is cancelled
func (s *PollScheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	logger.LogInfo("🔄 Poll scheduler started (tick: %v)", s.tick)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("🔄 Poll scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
