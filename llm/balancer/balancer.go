// Package balancer resolves a logical model name to one of its
// candidate physical models, per spec §4.5. The candidate table is
// fixed at construction time; selection within a logical model's
// candidates follows a configurable Policy.
package balancer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Policy is the selection strategy applied across a logical model's
// candidate physical models.
type Policy string

const (
	PolicyRoundRobin Policy = "round_robin"
	PolicyWeighted   Policy = "weighted"
	PolicyRandom     Policy = "random"
)

// ErrNoCandidates is returned when a logical model has no registered
// candidates, or every candidate is excluded by the caller.
var ErrNoCandidates = errors.New("balancer: no available candidates for logical model")

// Candidate is one physical-model route for a logical model.
type Candidate struct {
	Physical string
	Weight   int
}

// SaturationSource reports whether a physical model's rate-limit scope
// is currently saturated, used by RateLimitAware selection. Satisfied
// directly by *ratelimit.Registry.
type SaturationSource interface {
	Saturated(ctx context.Context, scope string) bool
}

// Balancer resolves logical model names to a physical model using a
// fixed candidate table, in the idiom of the teacher's APIKeyPool:
// a mutex-guarded round-robin index plus a seeded rand.Rand for
// weighted/random modes.
type Balancer struct {
	mu         sync.Mutex
	table      map[string][]Candidate
	policy     Policy
	roundRobin map[string]int
	rng        *rand.Rand
	logger     *zap.Logger

	// RateLimitAware, when true and sat is non-nil, deprioritizes
	// saturated candidates by down-weighting them instead of excluding
	// them outright (§4.5).
	RateLimitAware bool
	sat            SaturationSource
}

// New builds a Balancer from a fixed logical -> candidates table.
func New(table map[string][]Candidate, policy Policy, sat SaturationSource, logger *zap.Logger) *Balancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = PolicyWeighted
	}
	return &Balancer{
		table:      table,
		policy:     policy,
		roundRobin: make(map[string]int),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     logger,
		sat:        sat,
	}
}

// Select resolves logical to a physical model name, applying
// RateLimitAware down-weighting if enabled. excluded lists physical
// model names to skip (e.g. already tried and failed this request).
func (b *Balancer) Select(ctx context.Context, logical string, excluded map[string]bool) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	candidates, ok := b.table[logical]
	if !ok || len(candidates) == 0 {
		return "", ErrNoCandidates
	}

	available := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if excluded != nil && excluded[c.Physical] {
			continue
		}
		available = append(available, c)
	}
	if len(available) == 0 {
		return "", ErrNoCandidates
	}
	if len(available) == 1 {
		return available[0].Physical, nil
	}

	if b.RateLimitAware && b.sat != nil {
		available = b.downweightSaturated(ctx, available)
	}

	switch b.policy {
	case PolicyRoundRobin:
		return b.selectRoundRobin(logical, available), nil
	case PolicyRandom:
		return available[b.rng.Intn(len(available))].Physical, nil
	default:
		return b.selectWeighted(available), nil
	}
}

// downweightSaturated halves the effective weight of any candidate
// whose rate-limit scope is currently saturated, floored at 1 so a
// fully-saturated candidate set still yields a usable distribution
// rather than becoming uniformly zero.
func (b *Balancer) downweightSaturated(ctx context.Context, candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		out[i] = c
		if b.sat.Saturated(ctx, c.Physical) {
			w := c.Weight / 2
			if w < 1 {
				w = 1
			}
			out[i].Weight = w
		}
	}
	return out
}

func (b *Balancer) selectRoundRobin(logical string, candidates []Candidate) string {
	idx := b.roundRobin[logical] % len(candidates)
	b.roundRobin[logical]++
	return candidates[idx].Physical
}

func (b *Balancer) selectWeighted(candidates []Candidate) string {
	total := 0
	for _, c := range candidates {
		total += c.Weight
	}
	if total <= 0 {
		return candidates[0].Physical
	}
	target := b.rng.Intn(total)
	cumulative := 0
	for _, c := range candidates {
		cumulative += c.Weight
		if cumulative > target {
			return c.Physical
		}
	}
	return candidates[0].Physical
}

// Candidates returns the full candidate set for a logical model,
// unfiltered, for health/introspection endpoints.
func (b *Balancer) Candidates(logical string) []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Candidate(nil), b.table[logical]...)
}

// DefaultTable returns the fixed logical -> physical routing table
// per spec §4.5.
func DefaultTable() map[string][]Candidate {
	return map[string][]Candidate{
		"qwen":   {{Physical: "qwen", Weight: 1}},
		"kimi":   {{Physical: "ark-kimi", Weight: 1}},
		"doubao": {{Physical: "ark-doubao", Weight: 1}},
		"deepseek": {
			{Physical: "deepseek", Weight: 1},
			{Physical: "ark-deepseek", Weight: 1},
		},
	}
}
