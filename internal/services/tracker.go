package services

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	rediscache "github.com/petitionwatch/backend/internal/clients/redis"
	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/types"
)

// TrackerConfig carries the scheduler-facing knobs, loaded from env by the
// caller.
type TrackerConfig struct {
	MaxRetries    int
	Backoff       time.Duration
	TrendSince    time.Duration
	TrendMargin   time.Duration
	HandleMissing HandleMissingPolicy
	TrendCacheTTL time.Duration
	TrendingSize  int
}

// TrackerService is the orchestration surface the scheduler and the API call
// into. Each Run* acquires a per-kind lock (when a cache is wired) and writes
// one PollRun audit row.
type TrackerService interface {
	RunPoll(ctx context.Context, geographic bool) (*types.PollRun, error)
	RunDiscovery(ctx context.Context, state string) (*types.PollRun, error)
	RunTrendUpdate(ctx context.Context) (*types.PollRun, error)
	Trending(ctx context.Context, limit int) ([]*types.Petition, error)
}

type trackerService struct {
	db         *gorm.DB
	log        *logger.Logger
	poller     Poller
	reconciler Reconciler
	ranker     TrendRanker
	petitions  repos.PetitionRepo
	pollRuns   repos.PollRunRepo
	cache      rediscache.TrackerCache
	cfg        TrackerConfig
}

func NewTrackerService(
	db *gorm.DB,
	baseLog *logger.Logger,
	poller Poller,
	reconciler Reconciler,
	ranker TrendRanker,
	petitions repos.PetitionRepo,
	pollRuns repos.PollRunRepo,
	cache rediscache.TrackerCache,
	cfg TrackerConfig,
) TrackerService {
	if cfg.TrendingSize <= 0 {
		cfg.TrendingSize = 50
	}
	if cfg.TrendCacheTTL <= 0 {
		cfg.TrendCacheTTL = 5 * time.Minute
	}
	return &trackerService{
		db:         db,
		log:        baseLog.With("service", "TrackerService"),
		poller:     poller,
		reconciler: reconciler,
		ranker:     ranker,
		petitions:  petitions,
		pollRuns:   pollRuns,
		cache:      cache,
		cfg:        cfg,
	}
}

func (t *trackerService) RunPoll(ctx context.Context, geographic bool) (*types.PollRun, error) {
	kind := types.PollRunKindPoll
	if geographic {
		kind = types.PollRunKindGeoPoll
	}
	return t.run(ctx, kind, func(ctx context.Context) (runStats, error) {
		result, err := t.poller.Poll(ctx, PollInput{
			Geographic: geographic,
			MaxRetries: t.cfg.MaxRetries,
			Backoff:    t.cfg.Backoff,
		})
		if err != nil {
			return runStats{}, err
		}
		return runStats{petitions: result.Selected, succeeded: len(result.Records), failed: result.Failed}, nil
	})
}

func (t *trackerService) RunDiscovery(ctx context.Context, state string) (*types.PollRun, error) {
	return t.run(ctx, types.PollRunKindDiscover, func(ctx context.Context) (runStats, error) {
		result, err := t.reconciler.Populate(ctx, PopulateInput{
			State:      state,
			MaxRetries: t.cfg.MaxRetries,
			Backoff:    t.cfg.Backoff,
		})
		if err != nil {
			return runStats{}, err
		}
		return runStats{petitions: result.Requested, succeeded: len(result.Onboarded), failed: result.Failed}, nil
	})
}

func (t *trackerService) RunTrendUpdate(ctx context.Context) (*types.PollRun, error) {
	return t.run(ctx, types.PollRunKindTrend, func(ctx context.Context) (runStats, error) {
		result, err := t.ranker.UpdateTrendIndexes(ctx, TrendInput{
			Since:         t.cfg.TrendSince,
			Margin:        t.cfg.TrendMargin,
			HandleMissing: t.cfg.HandleMissing,
		})
		if err != nil {
			return runStats{}, err
		}
		t.refreshTrendingCache(ctx)
		return runStats{
			petitions: len(result.Found) + len(result.Missing),
			succeeded: len(result.Found),
			failed:    len(result.Missing),
		}, nil
	})
}

// runStats is what an operation reports back for its PollRun row.
type runStats struct {
	petitions int
	succeeded int
	failed    int
}

func (t *trackerService) run(ctx context.Context, kind types.PollRunKind, op func(context.Context) (runStats, error)) (*types.PollRun, error) {
	if t.cache != nil {
		release, ok, err := t.cache.AcquireRunLock(ctx, string(kind), 30*time.Minute)
		if err != nil {
			return nil, err
		}
		if !ok {
			t.log.Warn("tracker run already in flight, skipping", "kind", kind)
			return nil, nil
		}
		defer release()
	}

	run, err := t.pollRuns.Create(ctx, nil, &types.PollRun{Kind: kind})
	if err != nil {
		return nil, err
	}

	stats, opErr := op(ctx)
	updates := map[string]interface{}{
		"status":    types.PollRunStatusSucceeded,
		"petitions": stats.petitions,
		"succeeded": stats.succeeded,
		"failed":    stats.failed,
	}
	if opErr != nil {
		updates["status"] = types.PollRunStatusFailed
		updates["error"] = opErr.Error()
	}
	if err := t.pollRuns.Finish(ctx, nil, run.ID, updates); err != nil {
		t.log.Error("could not finish poll run", "kind", kind, "error", err)
	}
	run.Status = updates["status"].(types.PollRunStatus)
	run.Petitions = stats.petitions
	run.Succeeded = stats.succeeded
	run.Failed = stats.failed
	if opErr != nil {
		run.Error = opErr.Error()
		return run, opErr
	}
	return run, nil
}

// Trending serves the ranked list, preferring the cache.
func (t *trackerService) Trending(ctx context.Context, limit int) ([]*types.Petition, error) {
	if limit <= 0 || limit > t.cfg.TrendingSize {
		limit = t.cfg.TrendingSize
	}

	if t.cache != nil {
		cached, err := t.cache.Trending(ctx)
		if err != nil {
			t.log.Warn("trending cache read failed", "error", err)
		} else if cached != nil {
			if len(cached) > limit {
				cached = cached[:limit]
			}
			return cached, nil
		}
	}

	petitions, err := t.rankedPetitions(ctx)
	if err != nil {
		return nil, err
	}
	if len(petitions) > limit {
		petitions = petitions[:limit]
	}
	return petitions, nil
}

func (t *trackerService) rankedPetitions(ctx context.Context) ([]*types.Petition, error) {
	open := types.PetitionStateOpen
	unarchived := false
	petitions, err := t.petitions.Filter(ctx, nil, repos.PetitionFilter{State: &open, Archived: &unarchived})
	if err != nil {
		return nil, err
	}

	ranked := make([]*types.Petition, 0, len(petitions))
	for _, petition := range petitions {
		if petition.TrendIndex != nil {
			ranked = append(ranked, petition)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return *ranked[i].TrendIndex < *ranked[j].TrendIndex })
	return ranked, nil
}

func (t *trackerService) refreshTrendingCache(ctx context.Context) {
	if t.cache == nil {
		return
	}
	ranked, err := t.rankedPetitions(ctx)
	if err != nil {
		t.log.Warn("trending cache refresh failed", "error", err)
		return
	}
	if len(ranked) > t.cfg.TrendingSize {
		ranked = ranked[:t.cfg.TrendingSize]
	}
	if err := t.cache.CacheTrending(ctx, ranked, t.cfg.TrendCacheTTL); err != nil {
		t.log.Warn("trending cache write failed", "error", err)
	}
}
