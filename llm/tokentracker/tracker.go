package tokentracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lycosa9527/MindGraph-sub001/internal/database"
	"github.com/lycosa9527/MindGraph-sub001/internal/pool"
)

// Config tunes the batching behavior. Defaults mirror the production
// values named in §4.7, not the lighter values used in the original
// project's own local-dev defaults.
type Config struct {
	BatchSize     int
	BatchInterval time.Duration
	MaxQueueSize  int
}

// DefaultConfig returns the production batching defaults: flush every
// 1000 records or 300 seconds, whichever comes first, with a queue
// large enough that ordinary request bursts don't get dropped.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		BatchInterval: 300 * time.Second,
		MaxQueueSize:  10000,
	}
}

// Usage is the caller-facing shape for a single recorded call. Unlike
// UsageRecord it has no storage concerns (ID, TableName).
type Usage struct {
	UserID         *uint
	OrganizationID *uint
	SessionID      string
	ConversationID string
	ModelAlias     string
	InputTokens    int
	OutputTokens   int
	RequestType    string
	DiagramType    string
	EndpointPath   string
	Success        bool
	ResponseTime   time.Duration
}

// Tracker queues usage records and flushes them to storage in batches
// from a single background goroutine, so LLM response latency is never
// affected by a database write (§4.7).
type Tracker struct {
	pm      *database.PoolManager
	logger  *zap.Logger
	cfg     Config
	pricing map[string]Pricing

	queue chan UsageRecord

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// New creates a Tracker and starts its background flush worker. Close
// must be called to drain the final batch on shutdown.
func New(pm *database.PoolManager, cfg Config, pricing map[string]Pricing, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultConfig().BatchInterval
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = DefaultConfig().MaxQueueSize
	}
	if pricing == nil {
		pricing = DefaultPricingTable()
	}

	t := &Tracker{
		pm:      pm,
		logger:  logger.With(zap.String("component", "token_tracker")),
		cfg:     cfg,
		pricing: pricing,
		queue:   make(chan UsageRecord, cfg.MaxQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go t.batchWorker()
	return t
}

// Track records one call's usage. It is non-blocking: if the queue is
// full, the record is dropped and logged rather than blocking the
// caller's response path.
func (t *Tracker) Track(u Usage) {
	pricing := t.priceFor(u.ModelAlias)
	inputCost, outputCost, totalCost := computeCost(pricing, u.InputTokens, u.OutputTokens)

	rec := UsageRecord{
		UserID:         u.UserID,
		OrganizationID: u.OrganizationID,
		SessionID:      u.SessionID,
		ConversationID: u.ConversationID,
		ModelProvider:  pricing.Provider,
		ModelName:      pricing.ModelName,
		ModelAlias:     u.ModelAlias,
		InputTokens:    u.InputTokens,
		OutputTokens:   u.OutputTokens,
		TotalTokens:    u.InputTokens + u.OutputTokens,
		InputCost:      inputCost,
		OutputCost:     outputCost,
		TotalCost:      totalCost,
		RequestType:    u.RequestType,
		DiagramType:    u.DiagramType,
		EndpointPath:   u.EndpointPath,
		Success:        u.Success,
		ResponseTimeMs: u.ResponseTime.Milliseconds(),
		CreatedAt:      time.Now(),
	}

	select {
	case t.queue <- rec:
	default:
		t.logger.Warn("token usage queue full, dropping record",
			zap.String("model_alias", u.ModelAlias),
			zap.Int("queue_size", t.cfg.MaxQueueSize),
		)
	}
}

// Close stops the background worker after flushing any buffered
// records. Safe to call more than once.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		<-t.stopped
	})
}

func (t *Tracker) batchWorker() {
	defer close(t.stopped)

	bufPool := pool.NewSlicePool[UsageRecord](t.cfg.BatchSize)
	buffer := bufPool.Get()
	ticker := time.NewTicker(t.cfg.BatchInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		t.flushBatch(buffer)
		bufPool.Put(buffer)
		buffer = bufPool.Get()
	}

	for {
		select {
		case rec := <-t.queue:
			buffer = append(buffer, rec)
			if len(buffer) >= t.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-t.done:
			// Drain whatever is already queued, then flush and exit.
			for {
				select {
				case rec := <-t.queue:
					buffer = append(buffer, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (t *Tracker) flushBatch(records []UsageRecord) {
	batch := append([]UsageRecord(nil), records...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := t.pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.CreateInBatches(batch, len(batch)).Error
	})
	if err != nil {
		t.logger.Error("token usage batch write failed",
			zap.Int("records", len(batch)),
			zap.Error(err),
		)
		return
	}

	total := 0
	for _, r := range batch {
		total += r.TotalTokens
	}
	t.logger.Debug("token usage batch written",
		zap.Int("records", len(batch)),
		zap.Int("total_tokens", total),
	)
}
