package diagramcache

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/lycosa9527/MindGraph-sub001/internal/cache"
)

// List returns a user's diagrams, pinned-first then most-recently
// updated, paginated by offset/limit (§4.8). The full list is cached
// as one JSON blob per user and invalidated on any mutation.
func (c *Cache) List(ctx context.Context, userID uint, offset, limit int) ([]Summary, int, error) {
	all, err := c.listAll(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].IsPinned != all[j].IsPinned {
			return all[i].IsPinned
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	total := len(all)
	if offset >= total {
		return []Summary{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (c *Cache) listAll(ctx context.Context, userID uint) ([]Summary, error) {
	var cached []Summary
	if err := c.redisCache.GetJSON(ctx, userListKey(userID), &cached); err == nil {
		return cached, nil
	} else if !cache.IsCacheMiss(err) {
		c.logger.Warn("redis list get failed, rebuilding", zap.Error(err))
	}

	ids, err := c.redis().ZRevRange(ctx, userMetaKey(userID), 0, -1).Result()
	summaries := make([]Summary, 0, len(ids))
	if err == nil && len(ids) > 0 {
		for _, id := range ids {
			e, getErr := c.getEntry(ctx, userID, id)
			if getErr != nil || e.IsDeleted {
				continue
			}
			summaries = append(summaries, summaryFromEntry(*e))
		}
	} else {
		var rows []Diagram
		if dbErr := c.db.WithContext(ctx).
			Where("user_id = ? AND is_deleted = ?", userID, false).
			Find(&rows).Error; dbErr != nil {
			return nil, dbErr
		}
		for _, d := range rows {
			summaries = append(summaries, summaryFromEntry(entryFromModel(d)))
		}
	}

	if setErr := c.redisCache.SetJSON(ctx, userListKey(userID), summaries, c.cfg.CacheTTL); setErr != nil {
		c.logger.Warn("failed to cache diagram list", zap.Error(setErr))
	}
	return summaries, nil
}

func summaryFromEntry(e entry) Summary {
	return Summary{
		ID:          e.ID,
		UserID:      e.UserID,
		DiagramType: e.DiagramType,
		Title:       e.Title,
		Language:    e.Language,
		Thumbnail:   e.Thumbnail,
		IsPinned:    e.IsPinned,
		UpdatedAt:   e.UpdatedAt,
	}
}
