package entity

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AuditActionRunStart    = "RUN_START"
	AuditActionObserveNone = "OBSERVE_NONE"
	AuditActionDispatch    = "DISPATCH"
	AuditActionRunEnd      = "RUN_END"
	AuditActionRunSkipped  = "RUN_SKIPPED"

	AuditStatusOK    = "OK"
	AuditStatusError = "ERROR"
)

// AgentLog is one append-only audit row. Optional columns are empty when
// the action does not concern a single event.
type AgentLog struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	TS          time.Time      `gorm:"column:ts;not null;index"`
	AgentName   string         `gorm:"not null"`
	Env         string         `gorm:""`
	RequestID   string         `gorm:"index"`
	EventType   string         `gorm:""`
	EventID     string         `gorm:""`
	Tenant      string         `gorm:"index"`
	SourceRowID *int64         `gorm:""`
	Action      string         `gorm:"not null"`
	Status      string         `gorm:"not null"`
	Detail      datatypes.JSON `gorm:""`
	Error       *string        `gorm:""`
}

func (AgentLog) TableName() string {
	return "agent_log"
}
