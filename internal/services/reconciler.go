package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/petitionwatch/backend/internal/clients/wpets"
	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/types"
)

// PopulateInput either names the ids to onboard explicitly or gives a listing
// state to discover against.
type PopulateInput struct {
	State    string
	IDs      []int64
	Archived bool

	MaxRetries int
	Backoff    time.Duration
}

// PopulateResult reports one onboarding pass: the petitions inserted, the
// number of ids attempted, and how many fetches failed permanently.
type PopulateResult struct {
	Onboarded []*types.Petition
	Requested int
	Failed    int
}

type Reconciler interface {
	Discover(ctx context.Context, state string, archived bool) (map[int64]struct{}, error)
	Populate(ctx context.Context, input PopulateInput) (*PopulateResult, error)
}

type reconciler struct {
	db        *gorm.DB
	log       *logger.Logger
	petitions repos.PetitionRepo
	remote    wpets.Client
}

func NewReconciler(db *gorm.DB, baseLog *logger.Logger, petitions repos.PetitionRepo, remote wpets.Client) Reconciler {
	return &reconciler{
		db:        db,
		log:       baseLog.With("service", "Reconciler"),
		petitions: petitions,
		remote:    remote,
	}
}

// Discover returns the remote ids not yet known locally. An empty result is
// normal; a remote query with zero successful pages is not.
func (r *reconciler) Discover(ctx context.Context, state string, archived bool) (map[int64]struct{}, error) {
	remoteIDs, err := r.remote.ListIDs(ctx, wpets.ListQuery{State: state, Archived: archived}, wpets.BulkOptions{MaxRetries: 3, Backoff: 3 * time.Second})
	if err != nil {
		return nil, err
	}

	localIDs, err := r.petitions.ExistingIDs(ctx, nil, localStateFor(state), nil)
	if err != nil {
		return nil, err
	}

	discovered := make(map[int64]struct{})
	for id := range remoteIDs {
		if _, known := localIDs[id]; !known {
			discovered[id] = struct{}{}
		}
	}

	r.log.Info("discovery completed",
		"state", state, "remote", len(remoteIDs), "known", len(localIDs), "discovered", len(discovered))
	return discovered, nil
}

// localStateFor maps a remote listing state onto the stored state enum.
// Listing states with no stored counterpart (awaiting_response, all, ...)
// compare against every local petition.
func localStateFor(state string) *types.PetitionState {
	switch state {
	case "open":
		s := types.PetitionStateOpen
		return &s
	case "closed":
		s := types.PetitionStateClosed
		return &s
	case "rejected":
		s := types.PetitionStateRejected
		return &s
	}
	return nil
}

// Populate onboards petitions: explicit ids, or whatever Discover turns up.
// New petitions are provisionally ranked last so they never compete with
// established ones before the next trend pass.
func (r *reconciler) Populate(ctx context.Context, input PopulateInput) (*PopulateResult, error) {
	ids := input.IDs
	if len(ids) == 0 {
		discovered, err := r.Discover(ctx, input.State, input.Archived)
		if err != nil {
			return nil, err
		}
		for id := range discovered {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return &PopulateResult{Onboarded: []*types.Petition{}}, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	reqs := make([]wpets.FetchRequest, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, wpets.FetchRequest{ID: id, Archived: input.Archived})
	}

	bulk := r.remote.FetchMany(ctx, reqs, wpets.BulkOptions{MaxRetries: input.MaxRetries, Backoff: input.Backoff})
	if len(bulk.Success) == 0 {
		return nil, &wpets.TransportError{
			Op:  "populate petitions",
			Err: fmt.Errorf("all %d fetches failed", len(ids)),
		}
	}
	for _, failed := range bulk.Failed {
		r.log.Warn("petition onboarding fetch failed permanently", "id", failed.ID, "error", failed.Err)
	}

	total, err := r.petitions.Count(ctx, nil, repos.PetitionFilter{})
	if err != nil {
		return nil, err
	}
	provisionalIndex := int(total) + len(bulk.Success) + 1

	onboarded := make([]*types.Petition, 0, len(bulk.Success))
	insertedIDs := make([]int64, 0, len(bulk.Success))
	for _, result := range bulk.Success {
		r.log.Info("onboarding petition", "id", result.Payload.Data.ID)
		petition := &types.Petition{ID: result.Payload.Data.ID}
		Sync(petition, result.Payload, result.Raw, result.Timestamp)

		index := provisionalIndex
		petition.TrendIndex = &index
		petition.InitialData = append(petition.InitialData[:0:0], result.Raw...)

		onboarded = append(onboarded, petition)
		insertedIDs = append(insertedIDs, petition.ID)
	}

	if _, err := r.petitions.Create(ctx, nil, onboarded); err != nil {
		return nil, fmt.Errorf("populate insert failed: %w", err)
	}

	// re-read so callers observe database-assigned defaults
	inserted, err := r.petitions.GetByIDs(ctx, nil, insertedIDs)
	if err != nil {
		return nil, err
	}

	r.log.Info("populate completed", "onboarded", len(inserted), "failed", len(bulk.Failed))
	return &PopulateResult{Onboarded: inserted, Requested: len(ids), Failed: len(bulk.Failed)}, nil
}
