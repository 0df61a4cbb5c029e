package model

import (
	"time"

	"gorm.io/datatypes"
)

// KVEntry is one persisted workflow document of a browser session.
type KVEntry struct {
	SessionID string         `gorm:"type:varchar(64);primaryKey"`
	Key       string         `gorm:"type:varchar(64);primaryKey"`
	Value     datatypes.JSON `gorm:"type:jsonb;not null"`
	ExpiresAt *time.Time     `gorm:"index"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
