package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/petitionwatch/backend/internal/clients/wpets"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/repos/testutil"
	"github.com/petitionwatch/backend/internal/types"
)

func TestSync(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	payload := openPayload(t, 123, 500)
	raw, _ := json.Marshal(payload)

	petition := &types.Petition{ID: 123}
	Sync(petition, payload, raw, now)

	if petition.State != types.PetitionStateOpen || petition.Archived {
		t.Fatalf("state=%s archived=%v", petition.State, petition.Archived)
	}
	if petition.Signatures != 500 || petition.Action != "action for 123" {
		t.Fatalf("signatures=%d action=%q", petition.Signatures, petition.Action)
	}
	if petition.URL != "https://petition.parliament.uk/petitions/123" {
		t.Fatalf("url=%q", petition.URL)
	}
	if petition.PolledAt == nil || !petition.PolledAt.Equal(now) {
		t.Fatalf("polled_at=%v", petition.PolledAt)
	}
	if petition.PtCreatedAt == nil {
		t.Fatalf("pt_created_at not copied")
	}
	if len(petition.LatestData) == 0 {
		t.Fatalf("latest_data not set")
	}

	// Applying the same payload again only moves PolledAt.
	petition.GrowthRate = 2.5
	index := 4
	petition.TrendIndex = &index
	later := now.Add(time.Minute)
	Sync(petition, payload, raw, later)
	if petition.Signatures != 500 || petition.GrowthRate != 2.5 || *petition.TrendIndex != 4 {
		t.Fatalf("second sync changed ranked state: %+v", petition)
	}
	if !petition.PolledAt.Equal(later) {
		t.Fatalf("polled_at=%v", petition.PolledAt)
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in   string
		want types.PetitionState
	}{
		{"open", types.PetitionStateOpen},
		{"Open", types.PetitionStateOpen},
		{"rejected", types.PetitionStateRejected},
		{"closed", types.PetitionStateClosed},
		{"debated", types.PetitionStateClosed},
		{"awaiting_response", types.PetitionStateClosed},
	}
	for _, tt := range tests {
		if got := parseState(tt.in); got != tt.want {
			t.Fatalf("parseState(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPollerPoll(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.add(openPayload(t, 600001, 150))
	remote.add(openPayload(t, 600002, 75))

	petitionRepo := repos.NewPetitionRepo(tx, log)
	recordRepo := repos.NewRecordRepo(tx, log)
	poller := NewPoller(tx, log, petitionRepo, recordRepo, remote)

	testutil.SeedPetition(t, ctx, tx, 600001, types.PetitionStateOpen, false)
	testutil.SeedPetition(t, ctx, tx, 600002, types.PetitionStateOpen, false)
	testutil.SeedPetition(t, ctx, tx, 600003, types.PetitionStateClosed, false)

	result, err := poller.Poll(ctx, PollInput{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	// Default selection is open and unarchived, so 600003 stays untouched.
	if len(result.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(result.Records))
	}
	if result.Selected != 2 || result.Failed != 0 {
		t.Fatalf("selected=%d failed=%d", result.Selected, result.Failed)
	}
	for _, record := range result.Records {
		if record.ID == 0 || record.Geographic {
			t.Fatalf("record not staged as base: %+v", record)
		}
		if !record.Timestamp.Equal(now) {
			t.Fatalf("record timestamp = %v", record.Timestamp)
		}
	}

	updated, err := petitionRepo.Get(ctx, tx, 600001)
	if err != nil || updated.Signatures != 150 {
		t.Fatalf("petition readback: err=%v signatures=%d", err, updated.Signatures)
	}
	if updated.PolledAt == nil {
		t.Fatalf("polled_at not persisted")
	}

	history, err := recordRepo.GetByPetition(ctx, tx, 600003, repos.OrderLatest, 0)
	if err != nil || len(history) != 0 {
		t.Fatalf("closed petition polled: err=%v records=%d", err, len(history))
	}
}

func TestPollerPollGeographic(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.add(withBreakdowns(openPayload(t, 610001, 100)))

	petitionRepo := repos.NewPetitionRepo(tx, log)
	recordRepo := repos.NewRecordRepo(tx, log)
	poller := NewPoller(tx, log, petitionRepo, recordRepo, remote)

	testutil.SeedPetition(t, ctx, tx, 610001, types.PetitionStateOpen, false)

	result, err := poller.Poll(ctx, PollInput{Geographic: true})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	records := result.Records
	if len(records) != 1 || !records[0].Geographic {
		t.Fatalf("records = %+v", records)
	}

	var countries []*types.SignaturesByCountry
	if err := tx.Where("record_id = ?", records[0].ID).Find(&countries).Error; err != nil || len(countries) != 2 {
		t.Fatalf("country rows: err=%v len=%d", err, len(countries))
	}
	var regions []*types.SignaturesByRegion
	if err := tx.Where("record_id = ?", records[0].ID).Find(&regions).Error; err != nil || len(regions) != 1 {
		t.Fatalf("region rows: err=%v len=%d", err, len(regions))
	}
	if regions[0].OnsCode != "H" || regions[0].Count != 40 {
		t.Fatalf("region row: %+v", regions[0])
	}
	var constituencies []*types.SignaturesByConstituency
	if err := tx.Where("record_id = ?", records[0].ID).Find(&constituencies).Error; err != nil || len(constituencies) != 1 {
		t.Fatalf("constituency rows: err=%v len=%d", err, len(constituencies))
	}

	persisted, err := recordRepo.GetByPetition(ctx, tx, 610001, repos.OrderLatest, 1)
	if err != nil || !persisted[0].Geographic {
		t.Fatalf("geographic flag not persisted: err=%v record=%+v", err, persisted[0])
	}
}

func TestPollerPollEmptySelection(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	remote := newFakeRemote(time.Now().UTC())
	poller := NewPoller(tx, log, repos.NewPetitionRepo(tx, log), repos.NewRecordRepo(tx, log), remote)

	result, err := poller.Poll(context.Background(), PollInput{})
	if err != nil || len(result.Records) != 0 {
		t.Fatalf("Poll empty: err=%v records=%d", err, len(result.Records))
	}
}

func TestPollerPollNegativeMinGrowth(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)

	remote := newFakeRemote(time.Now().UTC())
	poller := NewPoller(tx, log, repos.NewPetitionRepo(tx, log), repos.NewRecordRepo(tx, log), remote)

	if _, err := poller.Poll(context.Background(), PollInput{MinGrowth: -0.5}); err == nil {
		t.Fatalf("negative min_growth accepted")
	}
}

func TestPollerPollAllFetchesFail(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	remote := newFakeRemote(time.Now().UTC())
	poller := NewPoller(tx, log, repos.NewPetitionRepo(tx, log), repos.NewRecordRepo(tx, log), remote)

	testutil.SeedPetition(t, ctx, tx, 620001, types.PetitionStateOpen, false)

	_, err := poller.Poll(ctx, PollInput{})
	var terr *wpets.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}

func TestPollerPollPartialFailure(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.add(openPayload(t, 630001, 10))
	// 630002 has no payload, so its fetch fails permanently.

	recordRepo := repos.NewRecordRepo(tx, log)
	poller := NewPoller(tx, log, repos.NewPetitionRepo(tx, log), recordRepo, remote)

	testutil.SeedPetition(t, ctx, tx, 630001, types.PetitionStateOpen, false)
	testutil.SeedPetition(t, ctx, tx, 630002, types.PetitionStateOpen, false)

	result, err := poller.Poll(ctx, PollInput{})
	if err != nil || len(result.Records) != 1 {
		t.Fatalf("Poll: err=%v records=%d", err, len(result.Records))
	}
	if result.Records[0].PetitionID != 630001 {
		t.Fatalf("record petition = %d", result.Records[0].PetitionID)
	}
	if result.Selected != 2 || result.Failed != 1 {
		t.Fatalf("selected=%d failed=%d", result.Selected, result.Failed)
	}
}
