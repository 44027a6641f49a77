package channels

import (
	"sync"
	"time"

	"github.com/openclaw/openclaw/pkg/models"
)

// HealthState is the coarse adapter condition.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
	HealthOffline  HealthState = "offline"
)

// OfflineThreshold is the consecutive-failure count at which an adapter
// is considered offline.
const OfflineThreshold = 3

// HealthSnapshot is a value copy of one adapter's health.
type HealthSnapshot struct {
	Channel             models.ChannelID `json:"channel"`
	State               HealthState      `json:"state"`
	ConsecutiveFailures int              `json:"consecutiveFailures"`
	LastError           string           `json:"lastError,omitempty"`
	LastSuccessAt       time.Time        `json:"lastSuccessAt,omitempty"`
	LastFailureAt       time.Time        `json:"lastFailureAt,omitempty"`
}

// healthTracker counts consecutive delivery failures per adapter.
// 0 failures is healthy, 1..OfflineThreshold-1 degraded, beyond that
// offline. Any success resets to healthy.
type healthTracker struct {
	mu       sync.Mutex
	channel  models.ChannelID
	failures int
	lastErr  string
	lastOK   time.Time
	lastFail time.Time
	now      func() time.Time
}

func newHealthTracker(channel models.ChannelID) *healthTracker {
	return &healthTracker{channel: channel, now: time.Now}
}

func (h *healthTracker) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastErr = ""
	h.lastOK = h.now()
}

func (h *healthTracker) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	if err != nil {
		h.lastErr = err.Error()
	}
	h.lastFail = h.now()
}

func (h *healthTracker) snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := HealthHealthy
	switch {
	case h.failures >= OfflineThreshold:
		state = HealthOffline
	case h.failures > 0:
		state = HealthDegraded
	}
	return HealthSnapshot{
		Channel:             h.channel,
		State:               state,
		ConsecutiveFailures: h.failures,
		LastError:           h.lastErr,
		LastSuccessAt:       h.lastOK,
		LastFailureAt:       h.lastFail,
	}
}
