package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/petitionwatch/backend/internal/types"
	"gorm.io/gorm"
)

func SeedPetition(tb testing.TB, ctx context.Context, tx *gorm.DB, id int64, state types.PetitionState, archived bool) *types.Petition {
	tb.Helper()
	p := &types.Petition{
		ID:       id,
		State:    state,
		Archived: archived,
		Action:   "do something about something",
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed petition %d: %v", id, err)
	}
	return p
}

func SeedRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, petitionID int64, ts time.Time, signatures int, geographic bool) *types.Record {
	tb.Helper()
	r := &types.Record{
		PetitionID: petitionID,
		Timestamp:  ts,
		Signatures: signatures,
		Geographic: geographic,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed record for petition %d: %v", petitionID, err)
	}
	return r
}
