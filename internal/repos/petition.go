package repos

import (
  "context"
  "fmt"
  "gorm.io/gorm"
  "github.com/petitionwatch/backend/internal/logger"
  "github.com/petitionwatch/backend/internal/types"
)

// QueryOp is the comparison operator allow-list for query expressions.
type QueryOp string

const (
  OpLt QueryOp = "lt"
  OpGt QueryOp = "gt"
  OpLe QueryOp = "le"
  OpGe QueryOp = "ge"
  OpEq QueryOp = "eq"
)

var sqlOps = map[QueryOp]string{
  OpLt: "<",
  OpGt: ">",
  OpLe: "<=",
  OpGe: ">=",
  OpEq: "=",
}

// filterableColumns is the allow-list for QueryExpr columns. Anything else
// is rejected before a query is built.
var filterableColumns = map[string]bool{
  "signatures":    true,
  "growth_rate":   true,
  "trend_index":   true,
  "polled_at":     true,
  "pt_created_at": true,
  "pt_updated_at": true,
}

// QueryExpr is one column comparison, built from an allow-list rather than a
// free-form query language.
type QueryExpr struct {
  Column  string
  Op      QueryOp
  Operand interface{}
}

type PetitionFilter struct {
  State    *types.PetitionState
  Archived *bool
  Expr     []QueryExpr
}

type PetitionRepo interface {
  Get(ctx context.Context, tx *gorm.DB, id int64) (*types.Petition, error)
  GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Petition, error)
  Filter(ctx context.Context, tx *gorm.DB, filter PetitionFilter) ([]*types.Petition, error)
  Count(ctx context.Context, tx *gorm.DB, filter PetitionFilter) (int64, error)
  ExistingIDs(ctx context.Context, tx *gorm.DB, state *types.PetitionState, archived *bool) (map[int64]struct{}, error)
  Create(ctx context.Context, tx *gorm.DB, petitions []*types.Petition) ([]*types.Petition, error)
  Save(ctx context.Context, tx *gorm.DB, petitions []*types.Petition) error
  UpdateTrendIndexes(ctx context.Context, tx *gorm.DB, ordered []*types.Petition) error
}

type petitionRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPetitionRepo(db *gorm.DB, baseLog *logger.Logger) PetitionRepo {
  return &petitionRepo{db: db, log: baseLog.With("repo", "PetitionRepo")}
}

func (r *petitionRepo) Get(ctx context.Context, tx *gorm.DB, id int64) (*types.Petition, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Petition
  if err := transaction.WithContext(ctx).
    Where("id = ?", id).
    Limit(1).
    Find(&results).Error; err != nil {
    return nil, err
  }
  if len(results) == 0 {
    return nil, nil
  }
  return results[0], nil
}

func (r *petitionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []int64) ([]*types.Petition, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  var results []*types.Petition
  if len(ids) == 0 {
    return results, nil
  }

  if err := transaction.WithContext(ctx).
    Where("id IN ?", ids).
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func applyFilter(q *gorm.DB, filter PetitionFilter) (*gorm.DB, error) {
  if filter.State != nil {
    q = q.Where("state = ?", *filter.State)
  }
  if filter.Archived != nil {
    q = q.Where("archived = ?", *filter.Archived)
  }
  for _, expr := range filter.Expr {
    if !filterableColumns[expr.Column] {
      return nil, fmt.Errorf("unfilterable column: %q", expr.Column)
    }
    op, ok := sqlOps[expr.Op]
    if !ok {
      return nil, fmt.Errorf("unknown query operator: %q", expr.Op)
    }
    q = q.Where(fmt.Sprintf("%s %s ?", expr.Column, op), expr.Operand)
  }
  return q, nil
}

func (r *petitionRepo) Filter(ctx context.Context, tx *gorm.DB, filter PetitionFilter) ([]*types.Petition, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  q, err := applyFilter(transaction.WithContext(ctx).Model(&types.Petition{}), filter)
  if err != nil {
    return nil, err
  }

  var results []*types.Petition
  if err := q.Order("id ASC").Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (r *petitionRepo) Count(ctx context.Context, tx *gorm.DB, filter PetitionFilter) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  q, err := applyFilter(transaction.WithContext(ctx).Model(&types.Petition{}), filter)
  if err != nil {
    return 0, err
  }

  var count int64
  if err := q.Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

func (r *petitionRepo) ExistingIDs(ctx context.Context, tx *gorm.DB, state *types.PetitionState, archived *bool) (map[int64]struct{}, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  q := transaction.WithContext(ctx).Model(&types.Petition{})
  if state != nil {
    q = q.Where("state = ?", *state)
  }
  if archived != nil {
    q = q.Where("archived = ?", *archived)
  }

  var ids []int64
  if err := q.Pluck("id", &ids).Error; err != nil {
    return nil, err
  }

  set := make(map[int64]struct{}, len(ids))
  for _, id := range ids {
    set[id] = struct{}{}
  }
  return set, nil
}

func (r *petitionRepo) Create(ctx context.Context, tx *gorm.DB, petitions []*types.Petition) ([]*types.Petition, error) {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  if len(petitions) == 0 {
    return []*types.Petition{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&petitions).Error; err != nil {
    return nil, err
  }
  return petitions, nil
}

func (r *petitionRepo) Save(ctx context.Context, tx *gorm.DB, petitions []*types.Petition) error {
  transaction := tx
  if transaction == nil {
    transaction = r.db
  }

  for _, petition := range petitions {
    if err := transaction.WithContext(ctx).Save(petition).Error; err != nil {
      return err
    }
  }
  return nil
}

// UpdateTrendIndexes persists 1-based trend positions and growth rates in the
// order given. Runs in a single transaction when tx is nil.
func (r *petitionRepo) UpdateTrendIndexes(ctx context.Context, tx *gorm.DB, ordered []*types.Petition) error {
  apply := func(transaction *gorm.DB) error {
    for position, petition := range ordered {
      index := position + 1
      petition.TrendIndex = &index
      updates := map[string]interface{}{
        "trend_index": index,
        "growth_rate": petition.GrowthRate,
      }
      if err := transaction.WithContext(ctx).
        Model(&types.Petition{}).
        Where("id = ?", petition.ID).
        Updates(updates).Error; err != nil {
        return err
      }
    }
    return nil
  }

  if tx != nil {
    return apply(tx)
  }
  return r.db.Transaction(func(transaction *gorm.DB) error {
    return apply(transaction)
  })
}
