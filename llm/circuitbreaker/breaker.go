// Package circuitbreaker implements a per-physical-model circuit
// breaker so a failing route does not disable its sibling (§4.4).
package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes a single breaker.
type Config struct {
	// Threshold is the consecutive-failure count that trips the breaker.
	Threshold int
	// QuotaThreshold is a lower threshold used when failures are
	// QuotaExhausted, per spec §7 ("flips the circuit breaker toward
	// open faster than generic failures").
	QuotaThreshold int
	// ResetTimeout is the cooldown before Open -> HalfOpen.
	ResetTimeout time.Duration
	// RingSize bounds the latency ring kept for percentile reporting.
	RingSize int
	// OnStateChange is an optional state-transition callback.
	OnStateChange func(model string, from, to State)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:      5,
		QuotaThreshold: 2,
		ResetTimeout:   60 * time.Second,
		RingSize:       128,
	}
}

// breaker is the per-model state machine.
type breaker struct {
	mu                sync.Mutex
	state             State
	consecutiveFail   int
	lastFailureTime   time.Time
	halfOpenProbeSent bool
	latencies         []time.Duration
	latencyHead       int
	successCount      int64
	failureCount      int64
}

// Registry owns one breaker per physical model, created lazily on
// first use, matching §4.4's "tracked per physical model, not per
// logical model" requirement.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      Config
	logger   *zap.Logger
}

// NewRegistry creates a breaker registry.
func NewRegistry(cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.QuotaThreshold <= 0 {
		cfg.QuotaThreshold = DefaultConfig().QuotaThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = DefaultConfig().RingSize
	}
	return &Registry{
		breakers: make(map[string]*breaker),
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *Registry) get(model string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[model]
	if !ok {
		b = &breaker{state: StateClosed}
		r.breakers[model] = b
	}
	return b
}

// CanCall reports whether model currently accepts calls, transitioning
// Open -> HalfOpen when the cooldown has elapsed.
func (r *Registry) CanCall(model string) bool {
	b := r.get(model)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) > r.cfg.ResetTimeout {
			r.transition(model, b, StateHalfOpen)
			b.halfOpenProbeSent = true
			return true
		}
		return false
	case StateHalfOpen:
		// Exactly one probe call allowed per cooldown.
		if b.halfOpenProbeSent {
			return false
		}
		b.halfOpenProbeSent = true
		return true
	default:
		return false
	}
}

// Record reports the outcome of a call against model. quotaExhausted
// marks a failure as quota-exhausted so it trips the breaker faster.
func (r *Registry) Record(model string, success bool, duration time.Duration, quotaExhausted bool) {
	b := r.get(model)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recordLatency(duration, r.cfg.RingSize)

	if success {
		b.successCount++
		switch b.state {
		case StateClosed:
			b.consecutiveFail = 0
		case StateHalfOpen:
			r.transition(model, b, StateClosed)
			b.consecutiveFail = 0
		}
		return
	}

	b.failureCount++
	b.consecutiveFail++
	b.lastFailureTime = time.Now()

	threshold := r.cfg.Threshold
	if quotaExhausted {
		threshold = r.cfg.QuotaThreshold
	}

	switch b.state {
	case StateClosed:
		if b.consecutiveFail >= threshold {
			r.transition(model, b, StateOpen)
		}
	case StateHalfOpen:
		r.transition(model, b, StateOpen)
	}
}

func (b *breaker) recordLatency(d time.Duration, ringSize int) {
	if len(b.latencies) < ringSize {
		b.latencies = append(b.latencies, d)
		return
	}
	b.latencies[b.latencyHead] = d
	b.latencyHead = (b.latencyHead + 1) % ringSize
}

func (r *Registry) transition(model string, b *breaker, to State) {
	from := b.state
	b.state = to
	if from == to {
		return
	}
	r.logger.Info("circuit breaker state change",
		zap.String("model", model),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if r.cfg.OnStateChange != nil {
		go r.cfg.OnStateChange(model, from, to)
	}
}

// IsOpen peeks whether model's breaker currently blocks calls, without
// mutating state the way CanCall does (CanCall's Open->HalfOpen
// transition consumes the single half-open probe slot). Used by
// llm.Core to exclude open candidates before balancer selection so a request
// routes to a healthy sibling instead of surfacing ErrCircuitOpen
// (§4.5 step 2).
func (r *Registry) IsOpen(model string) bool {
	b := r.get(model)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return false
	}
	return time.Since(b.lastFailureTime) <= r.cfg.ResetTimeout
}

// State returns the current state of model's breaker.
func (r *Registry) State(model string) State {
	b := r.get(model)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset manually closes model's breaker.
func (r *Registry) Reset(model string) {
	b := r.get(model)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFail = 0
	b.halfOpenProbeSent = false
}

// Percentiles reports p50/p95/p99 latency for model from its bounded
// ring buffer. Returns zero values if no samples have been recorded.
func (r *Registry) Percentiles(model string) (p50, p95, p99 time.Duration) {
	b := r.get(model)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.latencies) == 0 {
		return 0, 0, 0
	}
	sorted := append([]time.Duration(nil), b.latencies...)
	insertionSort(sorted)
	at := func(pct float64) time.Duration {
		idx := int(pct * float64(len(sorted)-1))
		return sorted[idx]
	}
	return at(0.50), at(0.95), at(0.99)
}

// Counts returns the success/failure counters for model.
func (r *Registry) Counts(model string) (success, failure int64) {
	b := r.get(model)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.successCount, b.failureCount
}

func insertionSort(d []time.Duration) {
	for i := 1; i < len(d); i++ {
		v := d[i]
		j := i - 1
		for j >= 0 && d[j] > v {
			d[j+1] = d[j]
			j--
		}
		d[j+1] = v
	}
}
