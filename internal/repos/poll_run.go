package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/petitionwatch/backend/internal/logger"
  "github.com/petitionwatch/backend/internal/types"
)

type PollRunRepo interface {
  Create(ctx context.Context, tx *gorm.DB, run *types.PollRun) (*types.PollRun, error)
  Finish(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
  Recent(ctx context.Context, tx *gorm.DB, kind types.PollRunKind, limit int) ([]*types.PollRun, error)
}

type pollRunRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPollRunRepo(db *gorm.DB, baseLog *logger.Logger) PollRunRepo {
  return &pollRunRepo{db: db, log: baseLog.With("repo", "PollRunRepo")}
}

func (r *pollRunRepo) Create(ctx context.Context, tx *gorm.DB, run *types.PollRun) (*types.PollRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if run.ID == uuid.Nil {
    run.ID = uuid.New()
  }
  if run.StartedAt.IsZero() {
    run.StartedAt = time.Now().UTC()
  }
  if run.Status == "" {
    run.Status = types.PollRunStatusRunning
  }

  if err := transaction.WithContext(ctx).Create(run).Error; err != nil {
    return nil, err
  }
  return run, nil
}

func (r *pollRunRepo) Finish(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if updates == nil {
    updates = map[string]interface{}{}
  }
  if _, ok := updates["finished_at"]; !ok {
    updates["finished_at"] = time.Now().UTC()
  }

  return transaction.WithContext(ctx).
    Model(&types.PollRun{}).
    Where("id = ?", id).
    Updates(updates).Error
}

func (r *pollRunRepo) Recent(ctx context.Context, tx *gorm.DB, kind types.PollRunKind, limit int) ([]*types.PollRun, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  q := transaction.WithContext(ctx).Model(&types.PollRun{})
  if kind != "" {
    q = q.Where("kind = ?", kind)
  }
  if limit <= 0 {
    limit = 20
  }

  var results []*types.PollRun
  if err := q.Order("started_at DESC").Limit(limit).Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
