package entity

import (
	"time"

	"gorm.io/datatypes"
)

type OutboxStatus string

const (
	OutboxStatusNew        OutboxStatus = "NEW"
	OutboxStatusDispatched OutboxStatus = "DISPATCHED"
	OutboxStatusError      OutboxStatus = "ERROR"
)

func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusNew, OutboxStatusDispatched, OutboxStatusError:
		return true
	}
	return false
}

// CanTransitionTo reports whether an entry may move from s to next.
// ERROR entries may still be delivered by a later sweep.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxStatusNew:
		return next == OutboxStatusDispatched || next == OutboxStatusError
	case OutboxStatusError:
		return next == OutboxStatusDispatched
	}
	return false
}

// StatusesBefore lists the statuses an entry may leave to reach next.
func StatusesBefore(next OutboxStatus) []OutboxStatus {
	var out []OutboxStatus
	for _, s := range []OutboxStatus{OutboxStatusNew, OutboxStatusDispatched, OutboxStatusError} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

type OutboxEvent struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	EventID      string         `gorm:"not null;uniqueIndex:uq_event_outbox_event_id" json:"event_id"`
	EventType    string         `gorm:"not null" json:"event_type"`
	Tenant       string         `gorm:"not null;index:idx_event_outbox_tenant_status,priority:1" json:"tenant"`
	SourceRowID  int64          `gorm:"not null" json:"source_row_id"`
	Payload      datatypes.JSON `gorm:"not null" json:"payload"`
	Status       OutboxStatus   `gorm:"not null;index:idx_event_outbox_tenant_status,priority:2" json:"status"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	DispatchedAt *time.Time     `json:"dispatched_at,omitempty"`
	LastError    *string        `json:"last_error,omitempty"`
}

func (OutboxEvent) TableName() string {
	return "event_outbox"
}
