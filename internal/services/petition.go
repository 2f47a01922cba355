package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/petitionwatch/backend/internal/geographies"
	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/types"
)

// LocaleBreakdown is one locale slice of a geographic record, with the code
// resolved to a display name where seed data covers it.
type LocaleBreakdown struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// BreakdownResult is the per-locale view of a petition's most recent
// geographic record.
type BreakdownResult struct {
	PetitionID int64             `json:"petition_id"`
	Geography  types.Geography   `json:"geography"`
	RecordID   int64             `json:"record_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Locales    []LocaleBreakdown `json:"locales"`
}

// PetitionService is the read surface behind the API handlers.
type PetitionService interface {
	GetPetition(ctx context.Context, id int64) (*types.Petition, error)
	ListPetitions(ctx context.Context, state string, archived *bool, page, perPage int) ([]*types.Petition, error)
	PetitionRecords(ctx context.Context, id int64, limit int) ([]*types.Record, error)
	PetitionBreakdown(ctx context.Context, id int64, geography types.Geography) (*BreakdownResult, error)
}

type petitionService struct {
	db        *gorm.DB
	log       *logger.Logger
	petitions repos.PetitionRepo
	records   repos.RecordRepo
}

func NewPetitionService(db *gorm.DB, baseLog *logger.Logger, petitions repos.PetitionRepo, records repos.RecordRepo) PetitionService {
	return &petitionService{
		db:        db,
		log:       baseLog.With("service", "PetitionService"),
		petitions: petitions,
		records:   records,
	}
}

func (s *petitionService) GetPetition(ctx context.Context, id int64) (*types.Petition, error) {
	return s.petitions.Get(ctx, nil, id)
}

func (s *petitionService) ListPetitions(ctx context.Context, state string, archived *bool, page, perPage int) ([]*types.Petition, error) {
	filter := repos.PetitionFilter{Archived: archived}
	if st := localStateFor(state); st != nil {
		filter.State = st
	}

	petitions, err := s.petitions.Filter(ctx, nil, filter)
	if err != nil {
		return nil, err
	}

	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(petitions) {
		return []*types.Petition{}, nil
	}
	end := start + perPage
	if end > len(petitions) {
		end = len(petitions)
	}
	return petitions[start:end], nil
}

func (s *petitionService) PetitionRecords(ctx context.Context, id int64, limit int) ([]*types.Record, error) {
	return s.records.GetByPetition(ctx, nil, id, repos.OrderLatest, limit)
}

// PetitionBreakdown reads the locale rows of the petition's most recent
// geographic record. A petition that was never polled geographically yields an
// empty breakdown, not an error.
func (s *petitionService) PetitionBreakdown(ctx context.Context, id int64, geography types.Geography) (*BreakdownResult, error) {
	handler, ok := geography.Handler()
	if !ok {
		return nil, fmt.Errorf("unknown geography: %q", geography)
	}

	history, err := s.records.GetByPetition(ctx, nil, id, repos.OrderLatest, 0)
	if err != nil {
		return nil, err
	}
	result := &BreakdownResult{PetitionID: id, Geography: geography, Locales: []LocaleBreakdown{}}
	var latest *types.Record
	for _, record := range history {
		if record.Geographic {
			latest = record
			break
		}
	}
	if latest == nil {
		return result, nil
	}
	result.RecordID = latest.ID
	result.Timestamp = latest.Timestamp

	var rows []struct {
		Code  string
		Count int
	}
	if err := s.db.WithContext(ctx).
		Table(handler.TableName).
		Select(handler.CodeColumn+" AS code, count").
		Where("record_id = ?", latest.ID).
		Order(handler.CodeColumn + " ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		result.Locales = append(result.Locales, LocaleBreakdown{
			Code:  row.Code,
			Name:  geographies.Name(geography, row.Code),
			Count: row.Count,
		})
	}
	return result, nil
}
