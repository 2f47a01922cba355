package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/petitionwatch/backend/internal/clients/wpets"
	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/types"
)

// PollInput selects the petitions to refresh. Petitions wins over Filter;
// with both empty the default selection is every open, non-archived petition.
type PollInput struct {
	Petitions  []*types.Petition
	Filter     *repos.PetitionFilter
	Geographic bool
	// MinGrowth is accepted for call-site compatibility but does not filter
	// the output yet; product intent is unresolved. Negative values are
	// rejected, positive ones only warn.
	MinGrowth float64

	MaxRetries int
	Backoff    time.Duration
}

// PollResult reports one poll pass: the records appended, the size of the
// selection, and how many fetches failed permanently.
type PollResult struct {
	Records  []*types.Record
	Selected int
	Failed   int
}

type Poller interface {
	Poll(ctx context.Context, input PollInput) (*PollResult, error)
}

type poller struct {
	db        *gorm.DB
	log       *logger.Logger
	petitions repos.PetitionRepo
	records   repos.RecordRepo
	remote    wpets.Client
}

func NewPoller(db *gorm.DB, baseLog *logger.Logger, petitions repos.PetitionRepo, records repos.RecordRepo, remote wpets.Client) Poller {
	return &poller{
		db:        db,
		log:       baseLog.With("service", "Poller"),
		petitions: petitions,
		records:   records,
		remote:    remote,
	}
}

// Sync copies remote attributes onto a petition. It never touches TrendIndex
// or GrowthRate, and applying the same payload twice changes nothing beyond
// PolledAt.
func Sync(petition *types.Petition, payload *wpets.Payload, raw json.RawMessage, timestamp time.Time) {
	attrs := payload.Data.Attributes

	petition.State = parseState(attrs.State)
	petition.Archived = payload.Data.Archived()
	petition.Signatures = attrs.SignatureCount
	petition.Action = attrs.Action
	petition.Background = attrs.Background
	petition.AdditionalDetails = attrs.AdditionalDetails
	if payload.Links.Self != nil {
		petition.URL = strings.TrimSuffix(*payload.Links.Self, ".json")
	}

	petition.PtCreatedAt = attrs.CreatedAt
	petition.PtUpdatedAt = attrs.UpdatedAt
	petition.PtRejectedAt = attrs.RejectedAt
	petition.PtClosedAt = attrs.ClosedAt
	petition.ModerationThresholdReachedAt = attrs.ModerationThresholdReachedAt
	petition.ResponseThresholdReachedAt = attrs.ResponseThresholdReachedAt
	petition.GovernmentResponseAt = attrs.GovernmentResponseAt
	petition.DebateThresholdReachedAt = attrs.DebateThresholdReachedAt
	petition.DebateOutcomeAt = attrs.DebateOutcomeAt

	ts := timestamp
	petition.PolledAt = &ts
	if len(raw) > 0 {
		petition.LatestData = append(petition.LatestData[:0:0], raw...)
	}
}

// parseState folds the remote's richer listing states down to the three
// stored petition states.
func parseState(state string) types.PetitionState {
	switch strings.ToLower(state) {
	case "rejected":
		return types.PetitionStateRejected
	case "open":
		return types.PetitionStateOpen
	default:
		return types.PetitionStateClosed
	}
}

// Poll fetches fresh remote state for the selection and appends one record
// per successful fetch. The whole save sequence runs in one transaction; for
// geographic polls the locale rows are inserted in a second pass once record
// ids are assigned.
func (p *poller) Poll(ctx context.Context, input PollInput) (*PollResult, error) {
	if input.MinGrowth < 0 {
		return nil, fmt.Errorf("min_growth must be non-negative, got %v", input.MinGrowth)
	}
	if input.MinGrowth > 0 {
		p.log.Warn("min_growth is not applied to poll output", "min_growth", input.MinGrowth)
	}

	petitions, err := p.resolveSelection(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(petitions) == 0 {
		p.log.Info("poll selection empty, nothing to do")
		return &PollResult{Records: []*types.Record{}}, nil
	}

	reqs := make([]wpets.FetchRequest, 0, len(petitions))
	for _, petition := range petitions {
		reqs = append(reqs, wpets.FetchRequest{ID: petition.ID, Archived: petition.Archived, Petition: petition})
	}

	bulk := p.remote.FetchMany(ctx, reqs, wpets.BulkOptions{MaxRetries: input.MaxRetries, Backoff: input.Backoff})
	if len(bulk.Success) == 0 {
		return nil, &wpets.TransportError{
			Op:  "poll petitions",
			Err: fmt.Errorf("all %d fetches failed", len(petitions)),
		}
	}
	for _, failed := range bulk.Failed {
		p.log.Warn("petition poll fetch failed permanently", "id", failed.ID, "error", failed.Err)
	}

	synced := make([]*types.Petition, 0, len(bulk.Success))
	staged := make([]*types.Record, 0, len(bulk.Success))
	for _, result := range bulk.Success {
		petition := result.Petition
		Sync(petition, result.Payload, result.Raw, result.Timestamp)
		synced = append(synced, petition)
		staged = append(staged, &types.Record{
			PetitionID: petition.ID,
			Timestamp:  result.Timestamp,
			Signatures: petition.Signatures,
		})
	}

	err = p.db.Transaction(func(tx *gorm.DB) error {
		if err := p.petitions.Save(ctx, tx, synced); err != nil {
			return err
		}
		if _, err := p.records.Create(ctx, tx, staged); err != nil {
			return err
		}
		if !input.Geographic {
			return nil
		}

		batch, recordIDs := buildLocaleBatch(staged, bulk.Success)
		if err := p.records.CreateLocaleSignatures(ctx, tx, batch); err != nil {
			return err
		}
		if err := p.records.MarkGeographic(ctx, tx, recordIDs); err != nil {
			return err
		}
		for _, record := range staged {
			record.Geographic = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("poll save failed: %w", err)
	}

	p.log.Info("poll completed",
		"petitions", len(petitions), "records", len(staged),
		"failed", len(bulk.Failed), "geographic", input.Geographic)
	return &PollResult{Records: staged, Selected: len(petitions), Failed: len(bulk.Failed)}, nil
}

func (p *poller) resolveSelection(ctx context.Context, input PollInput) ([]*types.Petition, error) {
	if len(input.Petitions) > 0 {
		return input.Petitions, nil
	}
	filter := input.Filter
	if filter == nil {
		open := types.PetitionStateOpen
		unarchived := false
		filter = &repos.PetitionFilter{State: &open, Archived: &unarchived}
	}
	return p.petitions.Filter(ctx, nil, *filter)
}

// buildLocaleBatch turns each success payload's three breakdown lists into
// locale rows for the matching staged record. staged and successes are
// parallel slices from the poll loop.
func buildLocaleBatch(staged []*types.Record, successes []*wpets.FetchResult) (*repos.LocaleSignatureBatch, []int64) {
	batch := &repos.LocaleSignatureBatch{}
	recordIDs := make([]int64, 0, len(staged))

	for i, record := range staged {
		attrs := successes[i].Payload.Data.Attributes
		recordIDs = append(recordIDs, record.ID)

		for _, geography := range types.Geographies() {
			for _, locale := range attrs.Breakdown(geography) {
				switch geography {
				case types.GeographyCountry:
					batch.Countries = append(batch.Countries, &types.SignaturesByCountry{
						RecordID: record.ID,
						IsoCode:  locale.LocaleCode(),
						Count:    locale.SignatureCount,
					})
				case types.GeographyRegion:
					batch.Regions = append(batch.Regions, &types.SignaturesByRegion{
						RecordID: record.ID,
						OnsCode:  locale.LocaleCode(),
						Count:    locale.SignatureCount,
					})
				case types.GeographyConstituency:
					batch.Constituencies = append(batch.Constituencies, &types.SignaturesByConstituency{
						RecordID: record.ID,
						OnsCode:  locale.LocaleCode(),
						Count:    locale.SignatureCount,
					})
				}
			}
		}
	}
	return batch, recordIDs
}
