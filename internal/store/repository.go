package store

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"gorm.io/gorm"
)

const (
	columnID         = "id"
	columnUserID     = "user_id"
	columnNotebookID = "notebook_id"
	columnPageID     = "page_id"
	queryID          = columnID + " = ?"
	orderIDAsc       = columnID + " ASC"
)

// Repository is the per-kind persistence contract used by the service layer.
type Repository[T any] interface {
	Create(ctx context.Context, record *T) error
	Get(ctx context.Context, id int64) (T, error)
	Update(ctx context.Context, record *T) error
	Delete(ctx context.Context, id int64) error
	ListByParent(ctx context.Context, parentID int64) ([]T, error)
}

type gormRepository[T any] struct {
	db           *gorm.DB
	kind         model.EntityKind
	parentColumn string
}

func newGormRepository[T any](db *gorm.DB, kind model.EntityKind, parentColumn string) *gormRepository[T] {
	return &gormRepository[T]{db: db, kind: kind, parentColumn: parentColumn}
}

func (r *gormRepository[T]) Create(ctx context.Context, record *T) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Get returns a NotFoundError when no row carries the identifier.
func (r *gormRepository[T]) Get(ctx context.Context, id int64) (T, error) {
	var record T
	err := r.db.WithContext(ctx).Where(queryID, id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record, model.NewNotFoundError(r.kind, id)
	}
	return record, err
}

// Update rewrites every column of an existing row and returns a NotFoundError when
// the row is gone. It never inserts.
func (r *gormRepository[T]) Update(ctx context.Context, record *T) error {
	result := r.db.WithContext(ctx).Model(record).Select("*").Updates(record)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.NewNotFoundError(r.kind, primaryKeyOf(result.Statement))
	}
	return nil
}

func primaryKeyOf(statement *gorm.Statement) int64 {
	if statement == nil || statement.Schema == nil || statement.Schema.PrioritizedPrimaryField == nil {
		return 0
	}
	value, zero := statement.Schema.PrioritizedPrimaryField.ValueOf(statement.Context, statement.ReflectValue)
	id, ok := value.(int64)
	if zero || !ok {
		return 0
	}
	return id
}

// Delete returns a NotFoundError when nothing was removed.
func (r *gormRepository[T]) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where(queryID, id).Delete(new(T))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.NewNotFoundError(r.kind, id)
	}
	return nil
}

func (r *gormRepository[T]) ListByParent(ctx context.Context, parentID int64) ([]T, error) {
	records := make([]T, 0)
	err := r.db.WithContext(ctx).
		Where(r.parentColumn+" = ?", parentID).
		Order(orderIDAsc).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
