package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/tablecodec"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeGraphKinds  = "2026-09-14_normalize_graph_kinds"
	migrationBackfillTablePayload = "2026-09-21_backfill_empty_table_payloads"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeGraphKinds, apply: normalizeGraphKinds},
		{name: migrationBackfillTablePayload, apply: backfillEmptyTablePayloads},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		}); err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeGraphKinds rewrites graph kinds stored in mixed case to the canonical upper-case form.
func normalizeGraphKinds(db *gorm.DB) error {
	return db.Model(&model.Graph{}).
		Where("kind <> UPPER(TRIM(kind))").
		Update("kind", gorm.Expr("UPPER(TRIM(kind))")).Error
}

// backfillEmptyTablePayloads stores the encoded default grid for tables saved without a payload.
func backfillEmptyTablePayloads(db *gorm.DB) error {
	return db.Model(&model.Table{}).
		Where("TRIM(table_data) = ''").
		Update("table_data", tablecodec.Encode(tablecodec.DefaultGrid())).Error
}
