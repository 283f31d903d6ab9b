package ingest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"guardian/metrics"

	"go.uber.org/zap"
)

// ErrInvalidRateConfig is returned when the rate controller config is invalid
var ErrInvalidRateConfig = errors.New("invalid rate controller configuration")

// RateConfig holds the tuning knobs for the adaptive rate controller
type RateConfig struct {
	// MinInterval is the shortest normal re-scan interval
	MinInterval time.Duration
	// MaxInterval is the longest re-scan interval when the system is quiet
	MaxInterval time.Duration
	// ThrottledInterval is the pinned interval while shedding load; it may
	// sit outside [MinInterval, MaxInterval]
	ThrottledInterval time.Duration
	// LowThreshold is the events-per-minute rate at or below which the
	// controller settles on MaxInterval
	LowThreshold float64
	// HighThreshold is the events-per-minute rate at or above which the
	// controller settles on MinInterval
	HighThreshold float64
	// BurstThreshold is the ingestion count within BurstWindow that trips
	// throttling
	BurstThreshold int
	// BurstWindow is the lookback for burst detection
	BurstWindow time.Duration
	// Cooldown is how long throttling stays in force once tripped
	Cooldown time.Duration
	// ActivityWindow is the lookback for the events-per-minute computation
	ActivityWindow time.Duration
}

// DefaultRateConfig returns the tuning used in production
func DefaultRateConfig() RateConfig {
	return RateConfig{
		MinInterval:       1 * time.Second,
		MaxInterval:       20 * time.Second,
		ThrottledInterval: 30 * time.Second,
		LowThreshold:      5,
		HighThreshold:     50,
		BurstThreshold:    200,
		BurstWindow:       3 * time.Second,
		Cooldown:          60 * time.Second,
		ActivityWindow:    60 * time.Second,
	}
}

// Validate checks the configuration for values the controller cannot run with
func (c *RateConfig) Validate() error {
	if c.MinInterval <= 0 {
		return errors.New("MinInterval must be greater than 0")
	}
	if c.MaxInterval < c.MinInterval {
		return errors.New("MaxInterval must not be below MinInterval")
	}
	if c.ThrottledInterval <= 0 {
		return errors.New("ThrottledInterval must be greater than 0")
	}
	if c.HighThreshold <= c.LowThreshold {
		return errors.New("HighThreshold must exceed LowThreshold")
	}
	if c.BurstThreshold <= 0 {
		return errors.New("BurstThreshold must be greater than 0")
	}
	if c.BurstWindow <= 0 || c.Cooldown <= 0 || c.ActivityWindow <= 0 {
		return errors.New("BurstWindow, Cooldown and ActivityWindow must be greater than 0")
	}
	return nil
}

// RateState is an observable snapshot of the controller
type RateState struct {
	LastInterval      time.Duration `json:"last_interval"`
	ThrottledUntil    time.Time     `json:"throttled_until,omitempty"`
	Throttled         bool          `json:"throttled"`
	ActivityPerMinute float64       `json:"activity_per_minute"`
}

// RateController translates recent ingestion volume into the adapter's next
// re-scan interval and sheds load under event storms. It keeps a sliding
// window of ingestion timestamps; state is recomputed on every evaluation
// and never persisted across restarts.
type RateController struct {
	cfg           RateConfig
	timestamps    []time.Time
	throttleUntil time.Time
	lastInterval  time.Duration

	now    func() time.Time
	logger *zap.SugaredLogger
	mu     sync.Mutex
}

// NewRateController creates a rate controller with the given tuning
func NewRateController(cfg RateConfig, logger *zap.SugaredLogger) (*RateController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRateConfig, err)
	}
	return &RateController{
		cfg:          cfg,
		lastInterval: cfg.MaxInterval,
		now:          time.Now,
		logger:       logger,
	}, nil
}

// RecordIngestion accounts for n events ingested now. Notification-triggered
// scans call this too, so burst detection sees the full volume even though
// the notification path is not gated by NextInterval.
func (rc *RateController) RecordIngestion(n int) {
	if n <= 0 {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.now()
	for i := 0; i < n; i++ {
		rc.timestamps = append(rc.timestamps, now)
	}
	rc.prune(now)
}

// NextInterval computes the interval to wait before the next fallback
// re-scan.
//
// An active throttle takes priority over everything else: once tripped, the
// controller stays pinned to ThrottledInterval for the full cooldown window
// even if activity drops to zero in the meantime.
func (rc *RateController) NextInterval() time.Duration {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.now()
	rc.prune(now)

	if now.Before(rc.throttleUntil) {
		rc.lastInterval = rc.cfg.ThrottledInterval
		return rc.cfg.ThrottledInterval
	}

	burst := rc.countSince(now.Add(-rc.cfg.BurstWindow))
	if burst >= rc.cfg.BurstThreshold {
		rc.throttleUntil = now.Add(rc.cfg.Cooldown)
		rc.lastInterval = rc.cfg.ThrottledInterval
		metrics.ThrottleActivations.Inc()
		if rc.logger != nil {
			rc.logger.Warnw("Ingestion burst detected, throttling re-scans",
				"burst", burst,
				"threshold", rc.cfg.BurstThreshold,
				"cooldown", rc.cfg.Cooldown)
		}
		return rc.cfg.ThrottledInterval
	}

	if len(rc.timestamps) == 0 {
		// Quiet source, idle at the slow end.
		rc.lastInterval = rc.cfg.MaxInterval
		return rc.cfg.MaxInterval
	}

	activity := rc.activityPerMinute()
	switch {
	case activity >= rc.cfg.HighThreshold:
		rc.lastInterval = rc.cfg.MinInterval
	case activity <= rc.cfg.LowThreshold:
		rc.lastInterval = rc.cfg.MaxInterval
	default:
		// Linear interpolation: higher activity means a shorter interval.
		span := rc.cfg.HighThreshold - rc.cfg.LowThreshold
		frac := (activity - rc.cfg.LowThreshold) / span
		scaled := float64(rc.cfg.MaxInterval-rc.cfg.MinInterval) * frac
		rc.lastInterval = rc.cfg.MaxInterval - time.Duration(scaled)
	}
	return rc.lastInterval
}

// State returns an observable snapshot of the controller
func (rc *RateController) State() RateState {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now := rc.now()
	rc.prune(now)
	return RateState{
		LastInterval:      rc.lastInterval,
		ThrottledUntil:    rc.throttleUntil,
		Throttled:         now.Before(rc.throttleUntil),
		ActivityPerMinute: rc.activityPerMinute(),
	}
}

// prune drops timestamps older than the activity window. Caller holds mu.
func (rc *RateController) prune(now time.Time) {
	cutoff := now.Add(-rc.cfg.ActivityWindow)
	i := 0
	for i < len(rc.timestamps) && rc.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		rc.timestamps = append(rc.timestamps[:0], rc.timestamps[i:]...)
	}
}

// countSince counts timestamps at or after the cutoff. Caller holds mu.
func (rc *RateController) countSince(cutoff time.Time) int {
	count := 0
	for _, ts := range rc.timestamps {
		if !ts.Before(cutoff) {
			count++
		}
	}
	return count
}

// activityPerMinute scales the window count to events per minute. Caller
// holds mu and has pruned.
func (rc *RateController) activityPerMinute() float64 {
	if len(rc.timestamps) == 0 {
		return 0
	}
	return float64(len(rc.timestamps)) * 60 / rc.cfg.ActivityWindow.Seconds()
}
