package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/types"
)

// HandleMissingPolicy decides what happens to active petitions with no anchor
// record in the window. Compared by value; never by identity.
type HandleMissingPolicy string

const (
	// HandleMissingReindex ranks found and missing petitions together,
	// missing ones competing on their last-known growth rate.
	HandleMissingReindex HandleMissingPolicy = "reindex"
	// HandleMissingConcat ranks found petitions first, then missing ones,
	// each bucket sorted separately.
	HandleMissingConcat HandleMissingPolicy = "concat"
	// HandleMissingStrict errors if any petition is missing.
	HandleMissingStrict HandleMissingPolicy = ""
)

type TrendInput struct {
	// Since positions the anchor at now-Since; Margin widens it into the
	// half-open window [anchor-Margin, anchor+Margin).
	Since         time.Duration
	Margin        time.Duration
	HandleMissing HandleMissingPolicy
}

// TrendResult reports both buckets independent of the final combined order.
type TrendResult struct {
	Found   []*types.Petition
	Missing []*types.Petition
}

type TrendRanker interface {
	UpdateTrendIndexes(ctx context.Context, input TrendInput) (*TrendResult, error)
}

type trendRanker struct {
	db        *gorm.DB
	log       *logger.Logger
	petitions repos.PetitionRepo
	records   repos.RecordRepo

	now func() time.Time
}

func NewTrendRanker(db *gorm.DB, baseLog *logger.Logger, petitions repos.PetitionRepo, records repos.RecordRepo) TrendRanker {
	return &trendRanker{
		db:        db,
		log:       baseLog.With("service", "TrendRanker"),
		petitions: petitions,
		records:   records,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UpdateTrendIndexes recomputes growth rates from the anchor snapshots and
// assigns a dense 1-based ranking over every active petition.
func (t *trendRanker) UpdateTrendIndexes(ctx context.Context, input TrendInput) (*TrendResult, error) {
	anchor := t.now().Add(-input.Since)
	windowFrom := anchor.Add(-input.Margin)
	windowUntil := anchor.Add(input.Margin)

	open := types.PetitionStateOpen
	unarchived := false
	geographic := false

	anchors, err := t.records.DistinctLatest(ctx, nil, repos.DistinctQuery{
		State:      &open,
		Archived:   &unarchived,
		Geographic: &geographic,
		Window:     repos.Window{From: &windowFrom, Until: &windowUntil},
		Order:      repos.OrderLatest,
	})
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, &RecordsNotFoundError{FoundIDs: []int64{}}
	}

	anchorByPetition := make(map[int64]*types.Record, len(anchors))
	foundIDs := make([]int64, 0, len(anchors))
	for _, record := range anchors {
		anchorByPetition[record.PetitionID] = record
		foundIDs = append(foundIDs, record.PetitionID)
	}

	found, err := t.petitions.GetByIDs(ctx, nil, foundIDs)
	if err != nil {
		return nil, err
	}
	for _, petition := range found {
		petition.GrowthRate = growthRate(petition, anchorByPetition[petition.ID])
	}

	active, err := t.petitions.Filter(ctx, nil, repos.PetitionFilter{State: &open, Archived: &unarchived})
	if err != nil {
		return nil, err
	}
	missing := make([]*types.Petition, 0)
	for _, petition := range active {
		if _, ok := anchorByPetition[petition.ID]; !ok {
			missing = append(missing, petition)
		}
	}
	sortByGrowth(missing)

	ordered, err := combine(found, missing, input.HandleMissing)
	if err != nil {
		return nil, err
	}

	if err := t.petitions.UpdateTrendIndexes(ctx, nil, ordered); err != nil {
		return nil, fmt.Errorf("trend index update failed: %w", err)
	}

	t.log.Info("trend indexes updated",
		"found", len(found), "missing", len(missing),
		"policy", string(input.HandleMissing), "window_from", windowFrom, "window_until", windowUntil)
	return &TrendResult{Found: found, Missing: missing}, nil
}

// growthRate is signed signatures-per-minute between the anchor snapshot and
// the petition's current state, rounded to 3 decimal places.
func growthRate(petition *types.Petition, anchor *types.Record) float64 {
	if petition.PolledAt == nil {
		return 0
	}
	minutes := petition.PolledAt.Sub(anchor.Timestamp).Seconds() / 60.0
	if minutes == 0 {
		return 0
	}
	rate := float64(petition.Signatures-anchor.Signatures) / minutes
	return math.Round(rate*1000) / 1000
}

// sortByGrowth orders by growth rate descending; ties break on petition id
// ascending so rankings are reproducible.
func sortByGrowth(petitions []*types.Petition) {
	sort.SliceStable(petitions, func(i, j int) bool {
		if petitions[i].GrowthRate != petitions[j].GrowthRate {
			return petitions[i].GrowthRate > petitions[j].GrowthRate
		}
		return petitions[i].ID < petitions[j].ID
	})
}

func combine(found, missing []*types.Petition, policy HandleMissingPolicy) ([]*types.Petition, error) {
	switch policy {
	case HandleMissingReindex:
		union := make([]*types.Petition, 0, len(found)+len(missing))
		union = append(union, found...)
		union = append(union, missing...)
		sortByGrowth(union)
		return union, nil
	case HandleMissingConcat:
		foundSorted := append([]*types.Petition(nil), found...)
		missingSorted := append([]*types.Petition(nil), missing...)
		sortByGrowth(foundSorted)
		sortByGrowth(missingSorted)
		return append(foundSorted, missingSorted...), nil
	case HandleMissingStrict:
		if len(missing) > 0 {
			return nil, &PetitionsNotFoundError{
				MissingIDs: petitionIDs(missing),
				FoundIDs:   petitionIDs(found),
			}
		}
		ordered := append([]*types.Petition(nil), found...)
		sortByGrowth(ordered)
		return ordered, nil
	default:
		return nil, fmt.Errorf("unknown handle_missing policy: %q", policy)
	}
}

func petitionIDs(petitions []*types.Petition) []int64 {
	ids := make([]int64, 0, len(petitions))
	for _, petition := range petitions {
		ids = append(ids, petition.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
