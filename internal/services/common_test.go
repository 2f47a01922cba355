package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/petitionwatch/backend/internal/clients/wpets"
	"github.com/petitionwatch/backend/internal/types"
)

// fakeRemote is an in-memory wpets.Client. fail marks ids as permanently
// failing; everything else resolves from payloads.
type fakeRemote struct {
	now      time.Time
	payloads map[int64]*wpets.Payload
	fail     map[int64]error
	listIDs  map[int64]struct{}
	listErr  error
}

func newFakeRemote(now time.Time) *fakeRemote {
	return &fakeRemote{
		now:      now,
		payloads: map[int64]*wpets.Payload{},
		fail:     map[int64]error{},
		listIDs:  map[int64]struct{}{},
	}
}

func (f *fakeRemote) add(payload *wpets.Payload) {
	f.payloads[payload.Data.ID] = payload
}

func (f *fakeRemote) Fetch(ctx context.Context, id int64, opts wpets.FetchOptions) (*wpets.FetchResult, error) {
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	payload, ok := f.payloads[id]
	if !ok {
		if opts.Raise404 {
			return nil, fmt.Errorf("fetch petition ID %d: %w", id, wpets.ErrNotFound)
		}
		return nil, nil
	}
	raw, _ := json.Marshal(payload)
	return &wpets.FetchResult{ID: id, Payload: payload, Raw: raw, Timestamp: f.now}, nil
}

func (f *fakeRemote) FetchMany(ctx context.Context, reqs []wpets.FetchRequest, opts wpets.BulkOptions) *wpets.BulkResult {
	bulk := &wpets.BulkResult{}
	for _, req := range reqs {
		if err, ok := f.fail[req.ID]; ok {
			bulk.Failed = append(bulk.Failed, &wpets.FetchResult{ID: req.ID, Petition: req.Petition, Err: err})
			continue
		}
		payload, ok := f.payloads[req.ID]
		if !ok {
			bulk.Failed = append(bulk.Failed, &wpets.FetchResult{
				ID: req.ID, Petition: req.Petition,
				Err: fmt.Errorf("bulk fetch petition ID %d: %w", req.ID, wpets.ErrNotFound),
			})
			continue
		}
		raw, _ := json.Marshal(payload)
		bulk.Success = append(bulk.Success, &wpets.FetchResult{
			ID: req.ID, Petition: req.Petition, Payload: payload, Raw: raw, Timestamp: f.now,
		})
	}
	return bulk
}

func (f *fakeRemote) FetchPage(ctx context.Context, index int, query wpets.ListQuery) (*wpets.PageResult, error) {
	return &wpets.PageResult{Index: index, Timestamp: f.now}, nil
}

func (f *fakeRemote) QueryPages(ctx context.Context, query wpets.ListQuery, opts wpets.BulkOptions) (*wpets.PageBulkResult, error) {
	page, _ := f.FetchPage(ctx, 1, query)
	return &wpets.PageBulkResult{Success: []*wpets.PageResult{page}}, nil
}

func (f *fakeRemote) ListIDs(ctx context.Context, query wpets.ListQuery, opts wpets.BulkOptions) (map[int64]struct{}, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make(map[int64]struct{}, len(f.listIDs))
	for id := range f.listIDs {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func openPayload(t *testing.T, id int64, signatures int) *wpets.Payload {
	t.Helper()
	self := fmt.Sprintf("https://petition.parliament.uk/petitions/%d.json", id)
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &wpets.Payload{
		Data: wpets.PetitionData{
			ID:   id,
			Type: wpets.TypePetition,
			Attributes: wpets.Attributes{
				State:          "open",
				Action:         fmt.Sprintf("action for %d", id),
				Background:     "background",
				SignatureCount: signatures,
				CreatedAt:      &created,
			},
		},
		Links: wpets.Links{Self: &self},
	}
}

func withBreakdowns(payload *wpets.Payload) *wpets.Payload {
	payload.Data.Attributes.SignaturesByCountry = []wpets.LocaleCount{
		{Code: "GB", Name: "United Kingdom", SignatureCount: payload.Data.Attributes.SignatureCount - 2},
		{Code: "FR", Name: "France", SignatureCount: 2},
	}
	payload.Data.Attributes.SignaturesByRegion = []wpets.LocaleCount{
		{OnsCode: "H", Name: "London", SignatureCount: 40},
	}
	payload.Data.Attributes.SignaturesByConstituency = []wpets.LocaleCount{
		{OnsCode: "E14000539", Name: "Barking", SignatureCount: 12},
	}
	return payload
}

func idsOf(petitions []*types.Petition) []int64 {
	ids := make([]int64, 0, len(petitions))
	for _, p := range petitions {
		ids = append(ids, p.ID)
	}
	return ids
}
