package entity

import (
	"time"

	"gorm.io/datatypes"
)

// WatcherState is the durable cursor of one watcher over one tenant.
type WatcherState struct {
	WatcherName string         `gorm:"primaryKey" json:"watcher_name"`
	Tenant      string         `gorm:"primaryKey" json:"tenant"`
	LastSeenID  int64          `gorm:"not null" json:"last_seen_id"`
	LastRunAt   *time.Time     `json:"last_run_at,omitempty"`
	LastResult  datatypes.JSON `json:"last_result,omitempty"`
}

func (WatcherState) TableName() string {
	return "watcher_state"
}
