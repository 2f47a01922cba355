package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petitionwatch/backend/internal/clients/wpets"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/repos/testutil"
	"github.com/petitionwatch/backend/internal/types"
)

func TestReconcilerDiscover(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	remote := newFakeRemote(time.Now().UTC())
	for id := int64(700001); id <= 700005; id++ {
		remote.listIDs[id] = struct{}{}
	}

	reconciler := NewReconciler(tx, log, repos.NewPetitionRepo(tx, log), remote)

	testutil.SeedPetition(t, ctx, tx, 700001, types.PetitionStateOpen, false)
	testutil.SeedPetition(t, ctx, tx, 700002, types.PetitionStateOpen, false)

	discovered, err := reconciler.Discover(ctx, "open", false)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(discovered) != 3 {
		t.Fatalf("discovered = %v, want 3", discovered)
	}
	for _, want := range []int64{700003, 700004, 700005} {
		if _, ok := discovered[want]; !ok {
			t.Fatalf("discovered missing %d: %v", want, discovered)
		}
	}

	// Discovery is idempotent against local state: nothing new, nothing found.
	remote.listIDs = map[int64]struct{}{700001: {}, 700002: {}}
	discovered, err = reconciler.Discover(ctx, "open", false)
	if err != nil || len(discovered) != 0 {
		t.Fatalf("rediscover: err=%v discovered=%v", err, discovered)
	}
}

func TestReconcilerDiscoverStateScoping(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	remote := newFakeRemote(time.Now().UTC())
	remote.listIDs[710001] = struct{}{}

	reconciler := NewReconciler(tx, log, repos.NewPetitionRepo(tx, log), remote)

	// Known locally, but as closed. An "open" discovery compares against
	// stored open petitions only, so the id counts as new.
	testutil.SeedPetition(t, ctx, tx, 710001, types.PetitionStateClosed, false)

	discovered, err := reconciler.Discover(ctx, "open", false)
	if err != nil || len(discovered) != 1 {
		t.Fatalf("Discover: err=%v discovered=%v", err, discovered)
	}

	// A listing state with no stored counterpart compares against everything.
	discovered, err = reconciler.Discover(ctx, "all", false)
	if err != nil || len(discovered) != 0 {
		t.Fatalf("Discover all: err=%v discovered=%v", err, discovered)
	}
}

func TestReconcilerPopulate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.add(openPayload(t, 720003, 30))
	remote.add(openPayload(t, 720004, 40))
	remote.add(openPayload(t, 720005, 50))

	petitionRepo := repos.NewPetitionRepo(tx, log)
	reconciler := NewReconciler(tx, log, petitionRepo, remote)

	// Two already tracked.
	testutil.SeedPetition(t, ctx, tx, 720001, types.PetitionStateOpen, false)
	testutil.SeedPetition(t, ctx, tx, 720002, types.PetitionStateOpen, false)

	result, err := reconciler.Populate(ctx, PopulateInput{IDs: []int64{720003, 720004, 720005}})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	onboarded := result.Onboarded
	if len(onboarded) != 3 {
		t.Fatalf("onboarded = %v", idsOf(onboarded))
	}
	if result.Requested != 3 || result.Failed != 0 {
		t.Fatalf("requested=%d failed=%d", result.Requested, result.Failed)
	}

	// All newcomers share the provisional rank after every established
	// petition: 2 existing + 3 onboarded + 1.
	for _, petition := range onboarded {
		if petition.TrendIndex == nil || *petition.TrendIndex != 6 {
			t.Fatalf("petition %d: trend index = %v, want 6", petition.ID, petition.TrendIndex)
		}
		if len(petition.InitialData) == 0 || len(petition.LatestData) == 0 {
			t.Fatalf("petition %d: payload snapshots not stored", petition.ID)
		}
		if petition.PolledAt == nil {
			t.Fatalf("petition %d: polled_at not set", petition.ID)
		}
	}

	got, err := petitionRepo.Get(ctx, tx, 720004)
	if err != nil || got == nil || got.Signatures != 40 {
		t.Fatalf("readback: err=%v got=%+v", err, got)
	}
}

func TestReconcilerPopulateViaDiscovery(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.listIDs[730001] = struct{}{}
	remote.add(openPayload(t, 730001, 9))

	reconciler := NewReconciler(tx, log, repos.NewPetitionRepo(tx, log), remote)

	result, err := reconciler.Populate(ctx, PopulateInput{State: "open"})
	if err != nil || len(result.Onboarded) != 1 || result.Onboarded[0].ID != 730001 {
		t.Fatalf("Populate: err=%v onboarded=%v", err, idsOf(result.Onboarded))
	}

	// Nothing left to discover, so a second run onboards nothing.
	result, err = reconciler.Populate(ctx, PopulateInput{State: "open"})
	if err != nil || len(result.Onboarded) != 0 {
		t.Fatalf("repopulate: err=%v onboarded=%v", err, idsOf(result.Onboarded))
	}
}

func TestReconcilerPopulatePartialFailure(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.add(openPayload(t, 740001, 10))
	remote.add(openPayload(t, 740002, 20))
	remote.fail[740003] = errors.New("remote hiccup")

	reconciler := NewReconciler(tx, log, repos.NewPetitionRepo(tx, log), remote)

	result, err := reconciler.Populate(ctx, PopulateInput{IDs: []int64{740001, 740002, 740003}})
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if len(result.Onboarded) != 2 {
		t.Fatalf("onboarded = %v, want 2", idsOf(result.Onboarded))
	}
	if result.Requested != 3 || result.Failed != 1 {
		t.Fatalf("requested=%d failed=%d", result.Requested, result.Failed)
	}
}

func TestReconcilerPopulateAllFail(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	remote := newFakeRemote(time.Now().UTC())
	remote.fail[750001] = errors.New("remote down")
	remote.fail[750002] = errors.New("remote down")

	reconciler := NewReconciler(tx, log, repos.NewPetitionRepo(tx, log), remote)

	_, err := reconciler.Populate(ctx, PopulateInput{IDs: []int64{750001, 750002}})
	var terr *wpets.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
}
