package types

import (
	"time"
)

// Record is an append-only snapshot of a petition's signature totals at a
// point in time. Timestamp is the capture time reported by the poll, not the
// insert time. Geographic records own per-locale breakdown rows; base records
// never do.
type Record struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PetitionID  int64     `gorm:"column:petition_id;not null;index:idx_record_petition_ts" json:"petition_id"`
	Timestamp   time.Time `gorm:"column:timestamp;not null;index:idx_record_petition_ts,priority:2" json:"timestamp"`
	Signatures  int       `gorm:"column:signatures;not null" json:"signatures"`
	Geographic  bool      `gorm:"column:geographic;not null;default:false;index" json:"geographic"`
	DbCreatedAt time.Time `gorm:"column:db_created_at;not null;autoCreateTime" json:"db_created_at"`

	SignaturesByCountry      []*SignaturesByCountry      `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"signatures_by_country,omitempty"`
	SignaturesByRegion       []*SignaturesByRegion       `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"signatures_by_region,omitempty"`
	SignaturesByConstituency []*SignaturesByConstituency `gorm:"constraint:OnDelete:CASCADE;foreignKey:RecordID;references:ID" json:"signatures_by_constituency,omitempty"`
}

func (Record) TableName() string { return "record" }

type SignaturesByCountry struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordID int64  `gorm:"column:record_id;not null;uniqueIndex:uniq_sig_country_for_record" json:"record_id"`
	IsoCode  string `gorm:"column:iso_code;size:3;not null;uniqueIndex:uniq_sig_country_for_record,priority:2" json:"code"`
	Count    int    `gorm:"column:count;not null;default:0" json:"count"`
}

func (SignaturesByCountry) TableName() string { return "signatures_by_country" }

type SignaturesByRegion struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordID int64  `gorm:"column:record_id;not null;uniqueIndex:uniq_sig_region_for_record" json:"record_id"`
	OnsCode  string `gorm:"column:ons_code;size:3;not null;uniqueIndex:uniq_sig_region_for_record,priority:2" json:"code"`
	Count    int    `gorm:"column:count;not null;default:0" json:"count"`
}

func (SignaturesByRegion) TableName() string { return "signatures_by_region" }

type SignaturesByConstituency struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	RecordID int64  `gorm:"column:record_id;not null;uniqueIndex:uniq_sig_constituency_for_record" json:"record_id"`
	OnsCode  string `gorm:"column:ons_code;size:9;not null;uniqueIndex:uniq_sig_constituency_for_record,priority:2" json:"code"`
	Count    int    `gorm:"column:count;not null;default:0" json:"count"`
}

func (SignaturesByConstituency) TableName() string { return "signatures_by_constituency" }
