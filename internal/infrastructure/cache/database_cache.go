package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"patchtriage/internal/errs"
	"patchtriage/internal/infrastructure/persistence/gormdb/model"
	"patchtriage/internal/ports"
)

// DatabaseCache stores cache entries in the triage_kv table. Expired rows are
// treated as missing and removed lazily.
type DatabaseCache struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.Cache = (*DatabaseCache)(nil)

func NewDatabaseCache(db *gorm.DB) *DatabaseCache {
	return &DatabaseCache{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func checkKey(ctx context.Context, key string) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return "", errs.Wrap(err, "check context")
	}

	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", errors.New("key is required")
	}
	return trimmed, nil
}

func (c *DatabaseCache) Get(ctx context.Context, key string) (string, bool, error) {
	key, err := checkKey(ctx, key)
	if err != nil {
		return "", false, err
	}

	var row model.KV
	if err := c.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errs.Wrap(err, "query cache by key")
	}

	if row.ExpiresAt != nil && !row.ExpiresAt.After(c.now()) {
		_ = c.db.WithContext(ctx).Where("key = ? AND expires_at <= ?", key, c.now()).Delete(&model.KV{}).Error
		return "", false, nil
	}
	return row.Value, true, nil
}

func (c *DatabaseCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	key, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	now := c.now()
	row := model.KV{
		Key:       key,
		Value:     value,
		UpdatedAt: now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		row.ExpiresAt = &expires
	}

	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"expires_at": nullableTime(row.ExpiresAt),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert cache key")
	}
	return nil
}

func (c *DatabaseCache) Delete(ctx context.Context, key string) error {
	key, err := checkKey(ctx, key)
	if err != nil {
		return err
	}

	if err := c.db.WithContext(ctx).Where("key = ?", key).Delete(&model.KV{}).Error; err != nil {
		return errs.Wrap(err, "delete cache key")
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
