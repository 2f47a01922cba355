package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/repos"
	"github.com/petitionwatch/backend/internal/types"
)

// RunHistoryService exposes the tracker audit trail.
type RunHistoryService interface {
	Recent(ctx context.Context, kind types.PollRunKind, limit int) ([]*types.PollRun, error)
}

type runHistoryService struct {
	db       *gorm.DB
	log      *logger.Logger
	pollRuns repos.PollRunRepo
}

func NewRunHistoryService(db *gorm.DB, baseLog *logger.Logger, pollRuns repos.PollRunRepo) RunHistoryService {
	return &runHistoryService{
		db:       db,
		log:      baseLog.With("service", "RunHistoryService"),
		pollRuns: pollRuns,
	}
}

func (s *runHistoryService) Recent(ctx context.Context, kind types.PollRunKind, limit int) ([]*types.PollRun, error) {
	return s.pollRuns.Recent(ctx, nil, kind, limit)
}
