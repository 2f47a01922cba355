package types

import (
	"time"

	"gorm.io/datatypes"
)

type PetitionState string

const (
	PetitionStateOpen     PetitionState = "open"
	PetitionStateClosed   PetitionState = "closed"
	PetitionStateRejected PetitionState = "rejected"
)

// Petition is a tracked remote petition. The primary key is assigned by the
// remote source, never generated locally.
type Petition struct {
	ID                int64          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	State             PetitionState  `gorm:"column:state;type:varchar(16);not null;index" json:"state"`
	Archived          bool           `gorm:"column:archived;not null;default:false;index" json:"archived"`
	Action            string         `gorm:"column:action;size:512;index" json:"action"`
	URL               string         `gorm:"column:url;size:2048" json:"url"`
	Background        string         `gorm:"column:background" json:"background"`
	AdditionalDetails string         `gorm:"column:additional_details" json:"additional_details"`
	Signatures        int            `gorm:"column:signatures;not null;default:0" json:"signatures"`
	GrowthRate        float64        `gorm:"column:growth_rate;not null;default:0" json:"growth_rate"`
	TrendIndex        *int           `gorm:"column:trend_index;index" json:"trend_index,omitempty"`
	PolledAt          *time.Time     `gorm:"column:polled_at" json:"polled_at,omitempty"`

	PtCreatedAt                  *time.Time `gorm:"column:pt_created_at" json:"pt_created_at,omitempty"`
	PtUpdatedAt                  *time.Time `gorm:"column:pt_updated_at" json:"pt_updated_at,omitempty"`
	PtRejectedAt                 *time.Time `gorm:"column:pt_rejected_at" json:"pt_rejected_at,omitempty"`
	PtClosedAt                   *time.Time `gorm:"column:pt_closed_at" json:"pt_closed_at,omitempty"`
	ModerationThresholdReachedAt *time.Time `gorm:"column:moderation_threshold_reached_at" json:"moderation_threshold_reached_at,omitempty"`
	ResponseThresholdReachedAt   *time.Time `gorm:"column:response_threshold_reached_at" json:"response_threshold_reached_at,omitempty"`
	GovernmentResponseAt         *time.Time `gorm:"column:government_response_at" json:"government_response_at,omitempty"`
	DebateThresholdReachedAt     *time.Time `gorm:"column:debate_threshold_reached_at" json:"debate_threshold_reached_at,omitempty"`
	DebateOutcomeAt              *time.Time `gorm:"column:debate_outcome_at" json:"debate_outcome_at,omitempty"`

	InitialData datatypes.JSON `gorm:"column:initial_data;type:jsonb" json:"initial_data,omitempty"`
	LatestData  datatypes.JSON `gorm:"column:latest_data;type:jsonb" json:"latest_data,omitempty"`

	Records []*Record `gorm:"constraint:OnDelete:CASCADE;foreignKey:PetitionID;references:ID" json:"records,omitempty"`

	DbCreatedAt time.Time `gorm:"column:db_created_at;not null;autoCreateTime" json:"db_created_at"`
	DbUpdatedAt time.Time `gorm:"column:db_updated_at;not null;autoUpdateTime" json:"db_updated_at"`
}

func (Petition) TableName() string { return "petition" }
