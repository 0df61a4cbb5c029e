package implementation

import (
	"context"
	"errors"
	"time"

	"servicelines-be/internal/model"
	"servicelines-be/internal/repository/contract"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormKVRepository struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewGormKVRepository(db *gorm.DB, ttl time.Duration) contract.KVRepository {
	return &GormKVRepository{db: db, ttl: ttl, now: time.Now}
}

func (r *GormKVRepository) Get(ctx context.Context, sessionID, key string) ([]byte, bool, error) {
	var m model.KVEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND key = ?", sessionID, key).
		Where("expires_at IS NULL OR expires_at > ?", r.now()).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(m.Value), true, nil
}

func (r *GormKVRepository) Set(ctx context.Context, sessionID, key string, value []byte) error {
	m := &model.KVEntry{
		SessionID: sessionID,
		Key:       key,
		Value:     datatypes.JSON(value),
	}
	if r.ttl > 0 {
		expires := r.now().Add(r.ttl)
		m.ExpiresAt = &expires
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(m).Error
}

func (r *GormKVRepository) Delete(ctx context.Context, sessionID, key string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ? AND key = ?", sessionID, key).
		Delete(&model.KVEntry{}).Error
}

func (r *GormKVRepository) Clear(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&model.KVEntry{}).Error
}

// PurgeExpired removes entries whose TTL has elapsed.
func (r *GormKVRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", r.now()).
		Delete(&model.KVEntry{})
	return res.RowsAffected, res.Error
}
