package types

import (
	"time"

	"github.com/google/uuid"
)

type PollRunKind string

const (
	PollRunKindDiscover PollRunKind = "discover"
	PollRunKindPoll     PollRunKind = "poll"
	PollRunKindGeoPoll  PollRunKind = "geo_poll"
	PollRunKindTrend    PollRunKind = "trend"
)

type PollRunStatus string

const (
	PollRunStatusRunning   PollRunStatus = "running"
	PollRunStatusSucceeded PollRunStatus = "succeeded"
	PollRunStatusFailed    PollRunStatus = "failed"
)

// PollRun is one scheduler task execution, kept for auditing the tracker's
// discover/poll/trend cadence.
type PollRun struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        PollRunKind   `gorm:"column:kind;type:varchar(32);not null;index" json:"kind"`
	Status      PollRunStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	Petitions   int           `gorm:"column:petitions;not null;default:0" json:"petitions"`
	Succeeded   int           `gorm:"column:succeeded;not null;default:0" json:"succeeded"`
	Failed      int           `gorm:"column:failed;not null;default:0" json:"failed"`
	Error       string        `gorm:"column:error" json:"error,omitempty"`
	StartedAt   time.Time     `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt  *time.Time    `gorm:"column:finished_at" json:"finished_at,omitempty"`
	DbCreatedAt time.Time     `gorm:"column:db_created_at;not null;autoCreateTime" json:"db_created_at"`
}

func (PollRun) TableName() string { return "poll_run" }
