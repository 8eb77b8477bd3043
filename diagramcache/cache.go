package diagramcache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lycosa9527/MindGraph-sub001/internal/cache"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

// entry is the Redis-resident JSON shape for one diagram, distinct
// from the gorm Diagram model so the wire format stays stable even if
// the storage schema changes underneath it.
type entry struct {
	ID          string    `json:"id"`
	UserID      uint      `json:"user_id"`
	DiagramType string    `json:"diagram_type"`
	Title       string    `json:"title"`
	Spec        string    `json:"spec"`
	Language    string    `json:"language"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	IsPinned    bool      `json:"is_pinned"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Cache is a Redis-first diagram store with background reconciliation
// to a gorm-backed durable store (§4.8).
type Cache struct {
	redisCache *cache.Manager
	db         *gorm.DB
	cfg        Config
	logger     *zap.Logger

	stopReconcile chan struct{}
	stopped       chan struct{}
}

// New builds a Cache and starts its background reconciliation worker.
func New(redisCache *cache.Manager, db *gorm.DB, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultConfig().CacheTTL
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultConfig().SyncInterval
	}
	if cfg.SyncBatchSize <= 0 {
		cfg.SyncBatchSize = DefaultConfig().SyncBatchSize
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = DefaultConfig().MaxPerUser
	}
	if cfg.MaxSpecSizeKB <= 0 {
		cfg.MaxSpecSizeKB = DefaultConfig().MaxSpecSizeKB
	}

	c := &Cache{
		redisCache:    redisCache,
		db:            db,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "diagram_cache")),
		stopReconcile: make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go c.reconcileLoop()
	return c
}

// Close stops the background reconciliation worker after a final sync.
func (c *Cache) Close() {
	close(c.stopReconcile)
	<-c.stopped
}

func (c *Cache) redis() *redis.Client { return c.redisCache.Raw() }

// CountUserDiagrams returns the number of non-deleted diagrams owned
// by userID, read from the Redis metadata sorted set, with a SQL
// fallback when the Redis call fails.
func (c *Cache) CountUserDiagrams(ctx context.Context, userID uint) (int, error) {
	count, err := c.redis().ZCard(ctx, userMetaKey(userID)).Result()
	if err == nil {
		return int(count), nil
	}
	if err != redis.Nil {
		c.logger.Warn("redis count failed, falling back to db", zap.Error(err))
	}

	var dbCount int64
	if dbErr := c.db.WithContext(ctx).Model(&Diagram{}).
		Where("user_id = ? AND is_deleted = ?", userID, false).
		Count(&dbCount).Error; dbErr != nil {
		return 0, dbErr
	}
	return int(dbCount), nil
}

// Save creates or updates a diagram, applying it to Redis immediately
// and queueing it for durable-store reconciliation. New diagrams
// (diagramID == "") are subject to the per-user quota; both new and
// existing diagrams are subject to the max spec size (§4.8).
func (c *Cache) Save(ctx context.Context, userID uint, diagramID, diagramType, title, spec, language string) (string, error) {
	specSizeKB := float64(len(spec)) / 1024
	if specSizeKB > float64(c.cfg.MaxSpecSizeKB) {
		return "", types.NewError(types.ErrSpecTooLarge, fmt.Sprintf("diagram spec too large (%.1fKB > %dKB)", specSizeKB, c.cfg.MaxSpecSizeKB))
	}

	isNew := diagramID == ""
	if isNew {
		count, err := c.CountUserDiagrams(ctx, userID)
		if err != nil {
			return "", err
		}
		if count >= c.cfg.MaxPerUser {
			return "", types.NewError(types.ErrQuotaExceededCache, fmt.Sprintf("diagram limit reached (%d max)", c.cfg.MaxPerUser))
		}
		diagramID = uuid.NewString()
	}

	existing, _ := c.getEntry(ctx, userID, diagramID)

	now := time.Now()
	e := entry{
		ID:          diagramID,
		UserID:      userID,
		DiagramType: diagramType,
		Title:       title,
		Spec:        spec,
		Language:    language,
		IsPinned:    existing != nil && existing.IsPinned,
		IsDeleted:   false,
		UpdatedAt:   now,
	}
	if existing != nil {
		e.CreatedAt = existing.CreatedAt
		e.Thumbnail = existing.Thumbnail
	} else {
		e.CreatedAt = now
	}

	if err := c.putEntry(ctx, e); err != nil {
		c.logger.Warn("redis unavailable for save, writing directly to durable store", zap.Error(err))
		if dbErr := c.writeDurable(ctx, e); dbErr != nil {
			return "", dbErr
		}
		return diagramID, nil
	}

	pipe := c.redis().TxPipeline()
	pipe.ZAdd(ctx, userMetaKey(userID), redis.Z{Score: float64(now.Unix()), Member: diagramID})
	pipe.Del(ctx, userListKey(userID)) // invalidate cached list, order/content changed
	if isNew {
		pipe.SAdd(ctx, pendingCreateKey, dirtyMember(userID, diagramID))
	} else {
		pipe.SAdd(ctx, dirtySetKey, dirtyMember(userID, diagramID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("redis unavailable for save metadata, writing directly to durable store", zap.Error(err))
		if dbErr := c.writeDurable(ctx, e); dbErr != nil {
			return "", dbErr
		}
		return diagramID, nil
	}

	return diagramID, nil
}

// writeDurable upserts e directly into the durable store, bypassing
// Redis and the dirty-set bookkeeping entirely. Used when Redis is
// unreachable, so a write is never lost just because the cache tier
// is down (§4.8: "If Redis is unreachable, fall back to writing
// directly to the durable store and skip the dirty tracking").
func (c *Cache) writeDurable(ctx context.Context, e entry) error {
	d := Diagram{
		ID: e.ID, UserID: e.UserID, DiagramType: e.DiagramType,
		Title: e.Title, Spec: e.Spec, Language: e.Language, Thumbnail: e.Thumbnail,
		IsPinned: e.IsPinned, IsDeleted: e.IsDeleted,
		CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
	}
	return c.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&d).Error
}

func (c *Cache) getEntry(ctx context.Context, userID uint, diagramID string) (*entry, error) {
	var e entry
	if err := c.redisCache.GetJSON(ctx, diagramKey(userID, diagramID), &e); err == nil {
		return &e, nil
	} else if !cache.IsCacheMiss(err) {
		c.logger.Warn("redis get failed", zap.Error(err))
	}

	var d Diagram
	if err := c.db.WithContext(ctx).Where("id = ? AND user_id = ?", diagramID, userID).First(&d).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.NewError(types.ErrDiagramNotFound, "diagram not found")
		}
		return nil, err
	}
	loaded := entryFromModel(d)
	_ = c.putEntry(ctx, loaded) // warm the cache; best-effort
	return &loaded, nil
}

func (c *Cache) putEntry(ctx context.Context, e entry) error {
	return c.redisCache.SetJSON(ctx, diagramKey(e.UserID, e.ID), e, c.cfg.CacheTTL)
}

func entryFromModel(d Diagram) entry {
	return entry{
		ID: d.ID, UserID: d.UserID, DiagramType: d.DiagramType, Title: d.Title,
		Spec: d.Spec, Language: d.Language, Thumbnail: d.Thumbnail,
		IsPinned: d.IsPinned, IsDeleted: d.IsDeleted,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// Get retrieves a diagram's full content, including its spec.
func (c *Cache) Get(ctx context.Context, userID uint, diagramID string) (*entry, error) {
	e, err := c.getEntry(ctx, userID, diagramID)
	if err != nil {
		return nil, err
	}
	if e.IsDeleted {
		return nil, types.NewError(types.ErrDiagramNotFound, "diagram not found")
	}
	return e, nil
}

// Delete soft-deletes a diagram (Redis-first, reconciled to the
// durable store in the background).
func (c *Cache) Delete(ctx context.Context, userID uint, diagramID string) error {
	e, err := c.getEntry(ctx, userID, diagramID)
	if err != nil {
		return err
	}
	e.IsDeleted = true
	e.UpdatedAt = time.Now()
	if err := c.putEntry(ctx, *e); err != nil {
		c.logger.Warn("redis unavailable for delete, writing directly to durable store", zap.Error(err))
		return c.writeDurable(ctx, *e)
	}

	pipe := c.redis().TxPipeline()
	pipe.ZRem(ctx, userMetaKey(userID), diagramID)
	pipe.Del(ctx, userListKey(userID))
	pipe.SRem(ctx, pendingCreateKey, dirtyMember(userID, diagramID))
	pipe.SAdd(ctx, dirtySetKey, dirtyMember(userID, diagramID))
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("redis unavailable for delete metadata, writing directly to durable store", zap.Error(err))
		return c.writeDurable(ctx, *e)
	}
	return nil
}

// Pin sets or clears a diagram's pinned flag. Pin state affects list
// ordering (pinned diagrams sort first), so the per-user list cache is
// invalidated.
func (c *Cache) Pin(ctx context.Context, userID uint, diagramID string, pinned bool) error {
	e, err := c.getEntry(ctx, userID, diagramID)
	if err != nil {
		return err
	}
	e.IsPinned = pinned
	e.UpdatedAt = time.Now()
	if err := c.putEntry(ctx, *e); err != nil {
		c.logger.Warn("redis unavailable for pin, writing directly to durable store", zap.Error(err))
		return c.writeDurable(ctx, *e)
	}
	pipe := c.redis().TxPipeline()
	pipe.Del(ctx, userListKey(userID))
	pipe.SAdd(ctx, dirtySetKey, dirtyMember(userID, diagramID))
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("redis unavailable for pin metadata, writing directly to durable store", zap.Error(err))
		return c.writeDurable(ctx, *e)
	}
	return nil
}

// Duplicate clones an existing diagram under a new ID, subject to the
// same per-user quota as a fresh Save.
func (c *Cache) Duplicate(ctx context.Context, userID uint, diagramID string) (string, error) {
	src, err := c.Get(ctx, userID, diagramID)
	if err != nil {
		return "", err
	}
	return c.Save(ctx, userID, "", src.DiagramType, src.Title+" (copy)", src.Spec, src.Language)
}
