package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/repos/testutil"
	"github.com/petitionwatch/backend/internal/types"
)

func newTracker(t *testing.T, tx *gorm.DB, remote *fakeRemote, now time.Time) (TrackerService, repos.PollRunRepo) {
	t.Helper()
	log := testutil.Logger(t)
	petitionRepo := repos.NewPetitionRepo(tx, log)
	recordRepo := repos.NewRecordRepo(tx, log)
	pollRunRepo := repos.NewPollRunRepo(tx, log)

	poller := NewPoller(tx, log, petitionRepo, recordRepo, remote)
	reconciler := NewReconciler(tx, log, petitionRepo, remote)
	ranker := NewTrendRanker(tx, log, petitionRepo, recordRepo)
	ranker.(*trendRanker).now = func() time.Time { return now }

	tracker := NewTrackerService(tx, log, poller, reconciler, ranker, petitionRepo, pollRunRepo, nil, TrackerConfig{
		TrendSince:    time.Hour,
		TrendMargin:   5 * time.Minute,
		HandleMissing: HandleMissingReindex,
	})
	return tracker, pollRunRepo
}

func lastRun(t *testing.T, runs repos.PollRunRepo, kind types.PollRunKind) *types.PollRun {
	t.Helper()
	rows, err := runs.Recent(context.Background(), nil, kind, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("runs for %s = %d, want 1", kind, len(rows))
	}
	return rows[0]
}

func TestTrackerRunPollWritesRun(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.add(openPayload(t, 800001, 30))
	// 800002 has no payload, so its fetch fails permanently.

	testutil.SeedPetition(t, ctx, tx, 800001, types.PetitionStateOpen, false)
	testutil.SeedPetition(t, ctx, tx, 800002, types.PetitionStateOpen, false)

	tracker, runs := newTracker(t, tx, remote, now)

	run, err := tracker.RunPoll(ctx, false)
	if err != nil {
		t.Fatalf("RunPoll: %v", err)
	}
	if run.Kind != types.PollRunKindPoll || run.Status != types.PollRunStatusSucceeded {
		t.Fatalf("run = %+v", run)
	}
	if run.Petitions != 2 || run.Succeeded != 1 || run.Failed != 1 {
		t.Fatalf("counts: petitions=%d succeeded=%d failed=%d", run.Petitions, run.Succeeded, run.Failed)
	}

	stored := lastRun(t, runs, types.PollRunKindPoll)
	if stored.ID != run.ID || stored.Status != types.PollRunStatusSucceeded {
		t.Fatalf("stored run: %+v", stored)
	}
	if stored.Petitions != 2 || stored.Succeeded != 1 || stored.Failed != 1 {
		t.Fatalf("stored counts: %+v", stored)
	}
	if stored.FinishedAt == nil || stored.Error != "" {
		t.Fatalf("stored run not finished cleanly: %+v", stored)
	}
}

func TestTrackerRunDiscoveryWritesRun(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	remote.listIDs[810001] = struct{}{}
	remote.add(openPayload(t, 810001, 12))

	tracker, runs := newTracker(t, tx, remote, now)

	run, err := tracker.RunDiscovery(ctx, "open")
	if err != nil {
		t.Fatalf("RunDiscovery: %v", err)
	}
	if run.Kind != types.PollRunKindDiscover || run.Status != types.PollRunStatusSucceeded {
		t.Fatalf("run = %+v", run)
	}
	if run.Petitions != 1 || run.Succeeded != 1 || run.Failed != 0 {
		t.Fatalf("counts: %+v", run)
	}

	stored := lastRun(t, runs, types.PollRunKindDiscover)
	if stored.Succeeded != 1 || stored.FinishedAt == nil {
		t.Fatalf("stored run: %+v", stored)
	}
}

func TestTrackerRunTrendUpdateWritesRun(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	seedGrowthScenario(t, ctx, tx, now, map[int64]int{820001: 60, 820002: 15})

	tracker, runs := newTracker(t, tx, newFakeRemote(now), now)

	run, err := tracker.RunTrendUpdate(ctx)
	if err != nil {
		t.Fatalf("RunTrendUpdate: %v", err)
	}
	if run.Kind != types.PollRunKindTrend || run.Status != types.PollRunStatusSucceeded {
		t.Fatalf("run = %+v", run)
	}
	if run.Petitions != 2 || run.Succeeded != 2 || run.Failed != 0 {
		t.Fatalf("counts: %+v", run)
	}

	stored := lastRun(t, runs, types.PollRunKindTrend)
	if stored.Succeeded != 2 || stored.FinishedAt == nil {
		t.Fatalf("stored run: %+v", stored)
	}
}

func TestTrackerRunFailureRecorded(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	remote := newFakeRemote(now)
	// The one selected petition has no payload, so every fetch fails.

	testutil.SeedPetition(t, ctx, tx, 830001, types.PetitionStateOpen, false)

	tracker, runs := newTracker(t, tx, remote, now)

	run, err := tracker.RunPoll(ctx, false)
	if err == nil {
		t.Fatalf("RunPoll succeeded against a dead remote")
	}
	if run == nil || run.Status != types.PollRunStatusFailed {
		t.Fatalf("run = %+v", run)
	}
	if run.Error == "" {
		t.Fatalf("run error not recorded")
	}

	stored := lastRun(t, runs, types.PollRunKindPoll)
	if stored.Status != types.PollRunStatusFailed || stored.FinishedAt == nil {
		t.Fatalf("stored run: %+v", stored)
	}
	if !strings.Contains(stored.Error, "all 1 fetches failed") {
		t.Fatalf("stored error = %q", stored.Error)
	}
}
