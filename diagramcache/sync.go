package diagramcache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// reconcileLoop periodically flushes the pending-create and dirty sets
// to the durable store. Mirrors the original's background sync worker:
// a fixed-interval ticker rather than per-write synchronous commits, so
// a burst of edits collapses into one write per diagram per interval.
func (c *Cache) reconcileLoop() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.syncOnce(context.Background())
		case <-c.stopReconcile:
			c.syncOnce(context.Background())
			return
		}
	}
}

// Flush forces an immediate sync of all pending changes, for use at
// shutdown or in tests.
func (c *Cache) Flush(ctx context.Context) {
	c.syncOnce(ctx)
}

func (c *Cache) syncOnce(ctx context.Context) {
	c.syncPendingCreates(ctx)
	c.syncDirty(ctx)
}

func (c *Cache) syncPendingCreates(ctx context.Context) {
	members, err := c.redis().SMembers(ctx, pendingCreateKey).Result()
	if err != nil {
		c.logger.Warn("failed to read pending-create set", zap.Error(err))
		return
	}
	if len(members) == 0 {
		return
	}

	for start := 0; start < len(members); start += c.cfg.SyncBatchSize {
		end := start + c.cfg.SyncBatchSize
		if end > len(members) {
			end = len(members)
		}
		batch := members[start:end]

		rows := make([]Diagram, 0, len(batch))
		synced := make([]string, 0, len(batch))
		for _, m := range batch {
			userID, diagramID, ok := splitDirtyMember(m)
			if !ok {
				synced = append(synced, m)
				continue
			}
			e, err := c.getEntry(ctx, userID, diagramID)
			if err != nil {
				// the diagram is in neither Redis nor the durable store
				// (e.g. its cache entry expired); drop the pending-create marker.
				synced = append(synced, m)
				continue
			}
			rows = append(rows, Diagram{
				ID: e.ID, UserID: e.UserID, DiagramType: e.DiagramType,
				Title: e.Title, Spec: e.Spec, Language: e.Language, Thumbnail: e.Thumbnail,
				IsPinned:  e.IsPinned,
				IsDeleted: e.IsDeleted, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt,
			})
			synced = append(synced, m)
		}

		if len(rows) > 0 {
			if err := c.db.WithContext(ctx).CreateInBatches(rows, len(rows)).Error; err != nil {
				c.logger.Error("failed to persist pending-create batch", zap.Error(err), zap.Int("count", len(rows)))
				continue // leave this batch's members in the set, retry next cycle
			}
		}
		if len(synced) > 0 {
			members := make([]interface{}, len(synced))
			for i, s := range synced {
				members[i] = s
			}
			if err := c.redis().SRem(ctx, pendingCreateKey, members...).Err(); err != nil {
				c.logger.Warn("failed to clear synced pending-create members", zap.Error(err))
			}
		}
	}
}

func (c *Cache) syncDirty(ctx context.Context) {
	members, err := c.redis().SMembers(ctx, dirtySetKey).Result()
	if err != nil {
		c.logger.Warn("failed to read dirty set", zap.Error(err))
		return
	}
	if len(members) == 0 {
		return
	}

	for start := 0; start < len(members); start += c.cfg.SyncBatchSize {
		end := start + c.cfg.SyncBatchSize
		if end > len(members) {
			end = len(members)
		}
		batch := members[start:end]
		synced := make([]interface{}, 0, len(batch))

		for _, m := range batch {
			userID, diagramID, ok := splitDirtyMember(m)
			if !ok {
				synced = append(synced, m)
				continue
			}
			e, err := c.getEntry(ctx, userID, diagramID)
			if err != nil {
				synced = append(synced, m)
				continue
			}
			err = c.db.WithContext(ctx).Model(&Diagram{}).Where("id = ? AND user_id = ?", diagramID, userID).
				Updates(map[string]interface{}{
					"title":        e.Title,
					"spec":         e.Spec,
					"language":     e.Language,
					"thumbnail":    e.Thumbnail,
					"diagram_type": e.DiagramType,
					"is_pinned":    e.IsPinned,
					"is_deleted":   e.IsDeleted,
					"updated_at":   e.UpdatedAt,
				}).Error
			if err != nil {
				c.logger.Error("failed to persist dirty diagram", zap.Error(err), zap.String("diagram_id", diagramID))
				continue // retry next cycle
			}
			synced = append(synced, m)
		}

		if len(synced) > 0 {
			if err := c.redis().SRem(ctx, dirtySetKey, synced...).Err(); err != nil {
				c.logger.Warn("failed to clear synced dirty members", zap.Error(err))
			}
		}
	}
}

func splitDirtyMember(m string) (userID uint, diagramID string, ok bool) {
	idx := strings.IndexByte(m, ':')
	if idx < 0 {
		return 0, "", false
	}
	var id uint64
	for _, r := range m[:idx] {
		if r < '0' || r > '9' {
			return 0, "", false
		}
		id = id*10 + uint64(r-'0')
	}
	return uint(id), m[idx+1:], true
}
