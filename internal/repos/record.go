package repos

import (
  "context"
  "time"
  "gorm.io/gorm"
  "github.com/petitionwatch/backend/internal/logger"
  "github.com/petitionwatch/backend/internal/types"
)

type Order string

const (
  OrderLatest   Order = "latest"
  OrderEarliest Order = "earliest"
)

// Window is a half-open timestamp interval [From, Until): timestamp >= From
// and timestamp < Until. Either bound may be nil.
type Window struct {
  From  *time.Time
  Until *time.Time
}

// DistinctQuery filters the one-record-per-petition query.
type DistinctQuery struct {
  State      *types.PetitionState
  Archived   *bool
  Geographic *bool
  Window     Window
  Order      Order
}

// LocaleSignatureBatch is the second insert pass of a geographic poll, one
// slice per geography dimension.
type LocaleSignatureBatch struct {
  Countries      []*types.SignaturesByCountry
  Regions        []*types.SignaturesByRegion
  Constituencies []*types.SignaturesByConstituency
}

func (b *LocaleSignatureBatch) Empty() bool {
  return len(b.Countries) == 0 && len(b.Regions) == 0 && len(b.Constituencies) == 0
}

type RecordRepo interface {
  Create(ctx context.Context, tx *gorm.DB, records []*types.Record) ([]*types.Record, error)
  CreateLocaleSignatures(ctx context.Context, tx *gorm.DB, batch *LocaleSignatureBatch) error
  MarkGeographic(ctx context.Context, tx *gorm.DB, recordIDs []int64) error
  GetByPetition(ctx context.Context, tx *gorm.DB, petitionID int64, order Order, limit int) ([]*types.Record, error)
  DistinctLatest(ctx context.Context, tx *gorm.DB, query DistinctQuery) ([]*types.Record, error)
}

type recordRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewRecordRepo(db *gorm.DB, baseLog *logger.Logger) RecordRepo {
  return &recordRepo{db: db, log: baseLog.With("repo", "RecordRepo")}
}

func (r *recordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.Record) ([]*types.Record, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(records) == 0 {
    return []*types.Record{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&records).Error; err != nil {
    return nil, err
  }
  return records, nil
}

func (r *recordRepo) CreateLocaleSignatures(ctx context.Context, tx *gorm.DB, batch *LocaleSignatureBatch) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if batch == nil || batch.Empty() {
    return nil
  }

  if len(batch.Countries) > 0 {
    if err := transaction.WithContext(ctx).Create(&batch.Countries).Error; err != nil {
      return err
    }
  }
  if len(batch.Regions) > 0 {
    if err := transaction.WithContext(ctx).Create(&batch.Regions).Error; err != nil {
      return err
    }
  }
  if len(batch.Constituencies) > 0 {
    if err := transaction.WithContext(ctx).Create(&batch.Constituencies).Error; err != nil {
      return err
    }
  }
  return nil
}

func (r *recordRepo) MarkGeographic(ctx context.Context, tx *gorm.DB, recordIDs []int64) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(recordIDs) == 0 {
    return nil
  }

  return transaction.WithContext(ctx).
    Model(&types.Record{}).
    Where("id IN ?", recordIDs).
    Update("geographic", true).Error
}

func (r *recordRepo) GetByPetition(ctx context.Context, tx *gorm.DB, petitionID int64, order Order, limit int) ([]*types.Record, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  direction := "DESC"
  if order == OrderEarliest {
    direction = "ASC"
  }

  q := transaction.WithContext(ctx).
    Where("petition_id = ?", petitionID).
    Order("timestamp " + direction)
  if limit > 0 {
    q = q.Limit(limit)
  }

  var results []*types.Record
  if err := q.Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

// DistinctLatest returns at most one record per owning petition: the one with
// the max (or min, for OrderEarliest) timestamp inside the window. Petitions
// with no qualifying record are simply absent.
func (r *recordRepo) DistinctLatest(ctx context.Context, tx *gorm.DB, query DistinctQuery) ([]*types.Record, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  agg := "MAX(record.timestamp)"
  if query.Order == OrderEarliest {
    agg = "MIN(record.timestamp)"
  }

  recordScope := func(q *gorm.DB) *gorm.DB {
    if query.Geographic != nil {
      q = q.Where("record.geographic = ?", *query.Geographic)
    }
    if query.Window.From != nil {
      q = q.Where("record.timestamp >= ?", *query.Window.From)
    }
    if query.Window.Until != nil {
      q = q.Where("record.timestamp < ?", *query.Window.Until)
    }
    return q
  }

  sub := transaction.Model(&types.Record{}).
    Select("record.petition_id AS petition_id, " + agg + " AS ts").
    Joins("JOIN petition ON petition.id = record.petition_id").
    Group("record.petition_id")
  if query.State != nil {
    sub = sub.Where("petition.state = ?", *query.State)
  }
  if query.Archived != nil {
    sub = sub.Where("petition.archived = ?", *query.Archived)
  }
  sub = recordScope(sub)

  outer := transaction.WithContext(ctx).
    Model(&types.Record{}).
    Joins("JOIN (?) pick ON pick.petition_id = record.petition_id AND pick.ts = record.timestamp", sub).
    // Records can share the picked timestamp; keep the newest insert.
    Where("record.id = (SELECT MAX(r.id) FROM record r WHERE r.petition_id = record.petition_id AND r.timestamp = record.timestamp)")
  outer = recordScope(outer)

  var results []*types.Record
  if err := outer.Order("record.petition_id ASC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
