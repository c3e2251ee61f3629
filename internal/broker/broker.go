// Package broker defines the exchange adapter contract and a resilient
// wrapper that adds reconnect-with-backoff, heartbeat supervision, and
// subscription replay on top of any Adapter. Grounded on
// original_source/broker/src/{protocol,lifecycle}.rs.
package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ligl/struxis/internal/logger"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structerr"
)

// Adapter is the contract every exchange integration implements. Connect,
// SubscribeSymbol, Heartbeat, and PollBar all take a context so the
// resilient wrapper (and callers above it) can bound a stalled network call.
type Adapter interface {
	Venue() string
	Connect(ctx context.Context) error
	SubscribeSymbol(ctx context.Context, symbol string) error
	Heartbeat(ctx context.Context) error
	PollBar(ctx context.Context) (*model.SBar, error)
}

// ReconnectPolicy controls the exponential backoff used between reconnect
// attempts. Backoff doubles each attempt starting from InitialDelay,
// capped at MaxDelay.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxRetries   int
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{InitialDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second, MaxRetries: 8}
}

// LifecycleConfig tunes the resilient wrapper's heartbeat and reconnect
// behavior.
type LifecycleConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Reconnect         ReconnectPolicy
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		HeartbeatInterval: 2 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		Reconnect:         DefaultReconnectPolicy(),
	}
}

// LifecycleStats accumulates resilient-wrapper counters for metrics export.
type LifecycleStats struct {
	ReconnectTotal       uint64
	ConnectFailures      uint64
	HeartbeatFailures    uint64
	SubscriptionReplays  uint64
}

// ResilientAdapter wraps an Adapter with reconnect backoff, heartbeat
// supervision, and subscription replay. Not safe for concurrent use from
// multiple goroutines (the structural pipeline above it assumes a single
// polling loop per adapter, matching single-writer discipline elsewhere in
// this system).
type ResilientAdapter struct {
	adapter Adapter
	config  LifecycleConfig
	log     *slog.Logger

	connected     bool
	lastSeen      time.Time
	subscriptions []string
	seen          map[string]bool

	stats LifecycleStats
}

// New wraps adapter with DefaultLifecycleConfig.
func New(adapter Adapter, log *slog.Logger) *ResilientAdapter {
	return NewWithConfig(adapter, DefaultLifecycleConfig(), log)
}

// NewWithConfig wraps adapter with an explicit lifecycle configuration.
func NewWithConfig(adapter Adapter, cfg LifecycleConfig, log *slog.Logger) *ResilientAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &ResilientAdapter{adapter: adapter, config: cfg, log: log, seen: make(map[string]bool)}
}

// SubscribeSymbol is idempotent: it records symbol in the replay list, and
// forwards to the adapter immediately if already connected.
func (r *ResilientAdapter) SubscribeSymbol(ctx context.Context, symbol string) error {
	if !r.seen[symbol] {
		r.seen[symbol] = true
		r.subscriptions = append(r.subscriptions, symbol)
	}
	if r.connected {
		return r.adapter.SubscribeSymbol(ctx, symbol)
	}
	return nil
}

// Connect performs an initial reconnect-with-backoff cycle.
func (r *ResilientAdapter) Connect(ctx context.Context) error {
	return r.reconnectWithBackoff(ctx)
}

// IsConnected reports the wrapper's current connection state.
func (r *ResilientAdapter) IsConnected() bool { return r.connected }

// Stats returns a snapshot of lifecycle counters.
func (r *ResilientAdapter) Stats() LifecycleStats { return r.stats }

// PollBar ensures liveness (reconnecting or probing a heartbeat as needed)
// and then polls the wrapped adapter for the next bar, transparently
// reconnecting once on a poll failure before giving up.
func (r *ResilientAdapter) PollBar(ctx context.Context) (*model.SBar, error) {
	if err := r.ensureLive(ctx); err != nil {
		return nil, err
	}

	bar, err := r.adapter.PollBar(ctx)
	if err == nil {
		r.lastSeen = time.Now()
		return bar, nil
	}

	r.connected = false
	r.stats.ConnectFailures++
	if err := r.reconnectWithBackoff(ctx); err != nil {
		return nil, err
	}
	bar, err = r.adapter.PollBar(ctx)
	if err != nil {
		return nil, err
	}
	r.lastSeen = time.Now()
	return bar, nil
}

func (r *ResilientAdapter) ensureLive(ctx context.Context) error {
	if !r.connected {
		return r.reconnectWithBackoff(ctx)
	}

	elapsed := time.Since(r.lastSeen)
	if elapsed >= r.config.HeartbeatTimeout {
		r.connected = false
		r.stats.HeartbeatFailures++
		return r.reconnectWithBackoff(ctx)
	}

	if elapsed >= r.config.HeartbeatInterval {
		if err := r.adapter.Heartbeat(ctx); err != nil {
			r.connected = false
			r.stats.HeartbeatFailures++
			return r.reconnectWithBackoff(ctx)
		}
		r.lastSeen = time.Now()
	}
	return nil
}

func (r *ResilientAdapter) reconnectWithBackoff(ctx context.Context) error {
	traceID := logger.NewReconnectTraceID()
	retries := r.config.Reconnect.MaxRetries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			backoff := computeBackoff(r.config.Reconnect, attempt)
			if backoff > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
			}
		}

		if err := r.adapter.Connect(ctx); err == nil {
			r.connected = true
			r.lastSeen = time.Now()
			r.stats.ReconnectTotal++
			r.log.Info("broker reconnected", "venue", r.adapter.Venue(), "trace_id", traceID, "attempt", attempt+1)
			if err := r.replaySubscriptions(ctx); err != nil {
				return err
			}
			return nil
		} else {
			lastErr = err
			r.stats.ConnectFailures++
			r.log.Warn("broker connect attempt failed", "venue", r.adapter.Venue(), "trace_id", traceID, "attempt", attempt+1, "err", err)
		}
	}

	return &structerr.ConnectionFailedError{Venue: r.adapter.Venue(), Message: "reconnect retries exhausted", Cause: lastErr}
}

func (r *ResilientAdapter) replaySubscriptions(ctx context.Context) error {
	for _, symbol := range r.subscriptions {
		if err := r.adapter.SubscribeSymbol(ctx, symbol); err != nil {
			return err
		}
		r.stats.SubscriptionReplays++
	}
	return nil
}

func computeBackoff(policy ReconnectPolicy, attempt int) time.Duration {
	shift := attempt - 1
	if shift > 10 {
		shift = 10
	}
	if shift < 0 {
		shift = 0
	}
	scaled := policy.InitialDelay * time.Duration(uint64(1)<<uint(shift))
	max := policy.MaxDelay
	if max < policy.InitialDelay {
		max = policy.InitialDelay
	}
	if scaled > max {
		return max
	}
	return scaled
}
