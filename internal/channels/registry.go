package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/openclaw/openclaw/internal/backoff"
	"github.com/openclaw/openclaw/internal/diagnostics"
	"github.com/openclaw/openclaw/pkg/models"
)

// RetryPolicy bounds delivery retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries per message.
	MaxAttempts int
	// Backoff shapes the delay between tries.
	Backoff backoff.Policy
}

// DefaultRetryPolicy retries three times with the default backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: backoff.Default()}
}

// ThrottleConfig rate-limits outbound sends per channel.
type ThrottleConfig struct {
	// MinInterval is the minimum gap between sends on one channel.
	MinInterval time.Duration
	// DropIfOverflow drops messages arriving inside the gap instead of
	// delaying them.
	DropIfOverflow bool
}

// ErrMessageDropped is returned when the throttle drops a message.
var ErrMessageDropped = errors.New("message dropped by throttle")

// Registry owns the adapters and the outbound delivery path.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.ChannelID]Adapter
	health   map[models.ChannelID]*healthTracker
	throttle map[models.ChannelID]*throttleState

	retry    RetryPolicy
	throttleConfig ThrottleConfig
	diag     *diagnostics.Pipeline
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

type throttleState struct {
	mu       sync.Mutex
	lastSend time.Time
}

// NewRegistry creates a registry with the given retry and throttle
// policy. diag may be nil.
func NewRegistry(retry RetryPolicy, throttle ThrottleConfig, diag *diagnostics.Pipeline, logger *slog.Logger) *Registry {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default().With("component", "channels")
	}
	return &Registry{
		adapters:       map[models.ChannelID]Adapter{},
		health:         map[models.ChannelID]*healthTracker{},
		throttle:       map[models.ChannelID]*throttleState{},
		retry:          retry,
		throttleConfig: throttle,
		diag:           diag,
		logger:         logger,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register adds an adapter. A duplicate channel ID is an error.
func (r *Registry) Register(adapter Adapter) error {
	id := adapter.ID()
	if id == "" {
		return ErrInvalidInput("channel ID is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return ErrInvalidInput(fmt.Sprintf("channel %q already registered", id), nil)
	}
	r.adapters[id] = adapter
	r.health[id] = newHealthTracker(id)
	r.throttle[id] = &throttleState{}
	return nil
}

// Adapter returns a registered adapter.
func (r *Registry) Adapter(id models.ChannelID) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// ChannelIDs returns the registered channel IDs, sorted.
func (r *Registry) ChannelIDs() []models.ChannelID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]models.ChannelID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// StartAll starts every adapter; the first failure aborts and is
// returned.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, id := range r.ChannelIDs() {
		adapter, _ := r.Adapter(id)
		if err := adapter.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", id, err)
		}
		r.logger.Info("channel started", "channel", id)
	}
	return nil
}

// StopAll stops every adapter, logging failures instead of aborting.
func (r *Registry) StopAll(ctx context.Context) {
	for _, id := range r.ChannelIDs() {
		adapter, _ := r.Adapter(id)
		if err := adapter.Stop(ctx); err != nil {
			r.logger.Warn("channel stop failed", "channel", id, "error", err)
		}
	}
}

// Send delivers a message through its channel's adapter, applying the
// throttle and the retry policy, recording health and delivery events.
func (r *Registry) Send(ctx context.Context, msg models.OutboundMessage) error {
	adapter, ok := r.Adapter(msg.Channel)
	if !ok {
		err := ErrNotFound(fmt.Sprintf("channel %q not registered", msg.Channel), nil)
		r.emitDelivery(diagnostics.EventOutboundFailed, msg.Channel, 0, err)
		return err
	}

	if err := r.applyThrottle(ctx, msg.Channel); err != nil {
		if errors.Is(err, ErrMessageDropped) {
			r.emit(diagnostics.EventOverflowDropped, msg.Channel, nil)
			r.logger.Warn("outbound message dropped", "channel", msg.Channel)
		}
		return err
	}

	tracker := r.trackerFor(msg.Channel)
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		attempts = attempt
		err := adapter.Send(ctx, msg)
		if err == nil {
			tracker.recordSuccess()
			r.emitDelivery(diagnostics.EventOutboundSent, msg.Channel, attempt, nil)
			return nil
		}
		lastErr = err
		tracker.recordFailure(err)
		r.logger.Warn("delivery attempt failed", "channel", msg.Channel, "attempt", attempt, "error", err)

		if !isRetryable(err) || attempt == r.retry.MaxAttempts {
			break
		}
		if err := r.sleep(ctx, backoff.Delay(r.retry.Backoff, attempt)); err != nil {
			lastErr = err
			break
		}
	}
	r.emitDelivery(diagnostics.EventOutboundFailed, msg.Channel, attempts, lastErr)
	return lastErr
}

// isRetryable treats structured channel errors per their code and
// unknown errors as transient.
func isRetryable(err error) bool {
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.IsRetryable()
	}
	return true
}

func (r *Registry) applyThrottle(ctx context.Context, id models.ChannelID) error {
	if r.throttleConfig.MinInterval <= 0 {
		return nil
	}
	r.mu.RLock()
	state := r.throttle[id]
	r.mu.RUnlock()
	if state == nil {
		return nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	now := time.Now()
	wait := r.throttleConfig.MinInterval - now.Sub(state.lastSend)
	if wait > 0 {
		if r.throttleConfig.DropIfOverflow {
			return ErrMessageDropped
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
	state.lastSend = time.Now()
	return nil
}

func (r *Registry) trackerFor(id models.ChannelID) *healthTracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health[id]
}

// HealthSnapshotFor returns one adapter's health.
func (r *Registry) HealthSnapshotFor(id models.ChannelID) (HealthSnapshot, bool) {
	tracker := r.trackerFor(id)
	if tracker == nil {
		return HealthSnapshot{}, false
	}
	return tracker.snapshot(), true
}

// AllHealthSnapshots returns every adapter's health, sorted by channel.
func (r *Registry) AllHealthSnapshots() []HealthSnapshot {
	ids := r.ChannelIDs()
	out := make([]HealthSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := r.HealthSnapshotFor(id); ok {
			out = append(out, snap)
		}
	}
	return out
}

func (r *Registry) emitDelivery(name string, channel models.ChannelID, attempts int, err error) {
	metadata := map[string]string{
		"channel":  string(channel),
		"attempts": strconv.Itoa(attempts),
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	r.emit(name, channel, metadata)
}

func (r *Registry) emit(name string, channel models.ChannelID, metadata map[string]string) {
	if r.diag == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]string{"channel": string(channel)}
	}
	r.diag.Record(diagnostics.Event{
		Subsystem: diagnostics.SubsystemChannel,
		Name:      name,
		Metadata:  metadata,
	})
}
