// Package store persists notebook entities in flat per-kind tables keyed by id.
// Records carry only parent ids; child listings are rebuilt with ListByParent.
package store

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("store: database handle is required")

// Stores bundles the repositories that share one database handle or transaction.
type Stores struct {
	db        *gorm.DB
	Notebooks Repository[model.Notebook]
	Pages     Repository[model.Page]
	Tables    Repository[model.Table]
	Graphs    Repository[model.Graph]
	Images    Repository[model.Image]
}

// New binds repositories for every entity kind to the database handle.
func New(db *gorm.DB) (*Stores, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return bind(db), nil
}

func bind(db *gorm.DB) *Stores {
	return &Stores{
		db:        db,
		Notebooks: newGormRepository[model.Notebook](db, model.EntityKindNotebook, columnUserID),
		Pages:     newGormRepository[model.Page](db, model.EntityKindPage, columnNotebookID),
		Tables:    newGormRepository[model.Table](db, model.EntityKindTable, columnPageID),
		Graphs:    newGormRepository[model.Graph](db, model.EntityKindGraph, columnPageID),
		Images:    newGormRepository[model.Image](db, model.EntityKindImage, columnPageID),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
func (s *Stores) Transaction(ctx context.Context, fn func(tx *Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bind(tx))
	})
}

// DetachTable clears the table reference of every graph that points at tableID.
func (s *Stores) DetachTable(ctx context.Context, tableID int64) error {
	return s.db.WithContext(ctx).
		Model(&model.Graph{}).
		Where("table_id = ?", tableID).
		Update("table_id", nil).Error
}

// AutoMigrate creates or updates the schema for every entity kind.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Notebook{}, &model.Page{}, &model.Table{}, &model.Graph{}, &model.Image{})
}
