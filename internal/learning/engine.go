package learning

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/hearth-core/internal/zone"
)

const (
	// MinEventDuration is the shortest heating event worth learning
	// from. Shorter bursts are dominated by sensor lag.
	MinEventDuration = 5 * time.Minute

	// MinTempDelta is the smallest temperature rise worth learning
	// from, in °C.
	MinTempDelta = 0.1

	// MinSamples is the number of recorded events required before
	// predictions are offered.
	MinSamples = 20
)

// Registry is the subset of the zone registry the engine needs.
type Registry interface {
	Get(id string) (*zone.Zone, error)
	UpdateLearningStats(ctx context.Context, id string, stats zone.LearningStats) (*zone.Zone, error)
}

// Recorder receives recorded heating rates for time-series export.
type Recorder interface {
	WriteHeatingRate(zoneID string, ratePerHour, durationMin float64)
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// event is an in-flight heating run for one zone.
type event struct {
	startTime   time.Time
	startTemp   float64
	outdoorTemp *float64
}

// Engine records heating events and maintains per-zone rate
// aggregates. Safe for concurrent use.
type Engine struct {
	registry Registry
	recorder Recorder
	logger   Logger

	mu   sync.Mutex
	open map[string]*event

	now func() time.Time
}

// NewEngine creates a learning engine over the given registry.
func NewEngine(registry Registry) *Engine {
	return &Engine{
		registry: registry,
		logger:   noopLogger{},
		open:     make(map[string]*event),
		now:      time.Now,
	}
}

// SetLogger sets the logger used for learning events.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetRecorder sets an optional time-series recorder for heating rates.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// StartEvent opens a heating event for a zone. An already-open event
// is discarded and replaced, so a missed stop transition can never
// poison the aggregate with a multi-day "event".
func (e *Engine) StartEvent(zoneID string, startTemp float64, outdoorTemp *float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.open[zoneID]; exists {
		e.logger.Warn("replacing unterminated heating event", "zone_id", zoneID)
	}
	e.open[zoneID] = &event{
		startTime:   e.now(),
		startTemp:   startTemp,
		outdoorTemp: outdoorTemp,
	}
	e.logger.Debug("heating event started", "zone_id", zoneID, "start_temp", startTemp)
}

// CancelEvent drops an open event without recording it. Used when a
// heating run ends for a reason that says nothing about the zone's
// heating rate, such as an opened window.
func (e *Engine) CancelEvent(zoneID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.open, zoneID)
}

// EndEvent closes a zone's open event and, if it passes the noise
// gates, folds the observed rate into the zone's rolling aggregate.
// Returns true when a sample was recorded. A zone without an open
// event is a no-op.
func (e *Engine) EndEvent(ctx context.Context, zoneID string, endTemp float64) (bool, error) {
	e.mu.Lock()
	ev, ok := e.open[zoneID]
	if ok {
		delete(e.open, zoneID)
	}
	now := e.now()
	e.mu.Unlock()

	if !ok {
		return false, nil
	}

	duration := now.Sub(ev.startTime)
	delta := endTemp - ev.startTemp

	if duration < MinEventDuration {
		e.logger.Debug("heating event too short, discarded",
			"zone_id", zoneID, "duration", duration.Round(time.Second))
		return false, nil
	}
	// The gate is signed on purpose. A run that ends colder than it
	// started would fold a negative rate into the mean, so cooling
	// episodes are discarded along with the small ones.
	if delta < MinTempDelta {
		e.logger.Debug("heating event temperature change too small, discarded",
			"zone_id", zoneID, "delta", delta)
		return false, nil
	}

	rate := delta / duration.Hours()

	z, err := e.registry.Get(zoneID)
	if err != nil {
		return false, err
	}

	stats := fold(z.Learning, rate)
	if _, err := e.registry.UpdateLearningStats(ctx, zoneID, stats); err != nil {
		return false, err
	}

	if e.recorder != nil {
		e.recorder.WriteHeatingRate(zoneID, rate, duration.Minutes())
	}

	e.logger.Info("heating rate recorded",
		"zone_id", zoneID,
		"rate_per_hour", rate,
		"samples", stats.Count,
		"mean_rate", stats.MeanRate)
	return true, nil
}

// HasOpenEvent reports whether a heating event is in flight for the
// zone.
func (e *Engine) HasOpenEvent(zoneID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.open[zoneID]
	return ok
}

// PredictMinutes estimates how long heating the zone from one
// temperature to another will take. Returns false until the zone has
// MinSamples recorded events, when no heating is needed, or when the
// learned mean rate is not positive.
func (e *Engine) PredictMinutes(zoneID string, from, to float64, outdoorTemp *float64) (int, bool) {
	z, err := e.registry.Get(zoneID)
	if err != nil {
		return 0, false
	}

	stats := z.Learning
	if stats.Count < MinSamples || stats.MeanRate <= 0 {
		return 0, false
	}

	delta := to - from
	if delta <= 0 {
		return 0, false
	}

	rate := stats.MeanRate * outdoorMultiplier(outdoorTemp)
	minutes := delta / rate * 60

	return int(minutes + 0.5), true
}

// fold merges one rate sample into the rolling aggregate.
func fold(stats zone.LearningStats, rate float64) zone.LearningStats {
	stats.Count++
	stats.MeanRate += (rate - stats.MeanRate) / float64(stats.Count)

	if stats.Count == 1 {
		stats.MinRate = rate
		stats.MaxRate = rate
		return stats
	}
	if rate < stats.MinRate {
		stats.MinRate = rate
	}
	if rate > stats.MaxRate {
		stats.MaxRate = rate
	}
	return stats
}

// outdoorMultiplier scales the learned rate by outdoor conditions:
// mild weather heats faster than the recorded mean, freezing weather
// slower. An unknown outdoor temperature leaves the rate untouched.
func outdoorMultiplier(outdoor *float64) float64 {
	if outdoor == nil {
		return 1.0
	}
	switch t := *outdoor; {
	case t >= 15:
		return 1.1
	case t >= 5:
		return 1.0
	case t >= 0:
		return 0.9
	default:
		return 0.8
	}
}
