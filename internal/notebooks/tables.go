package notebooks

import (
	"context"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"go.uber.org/zap"
)

const (
	opCreateTable = "notebooks.create_table"
	opListTables  = "notebooks.list_tables"
	opGetTable    = "notebooks.get_table"
	opUpdateTable = "notebooks.update_table"
	opDeleteTable = "notebooks.delete_table"
)

// TableView is a stored table with its payload decoded. Recovered is non-nil when
// the payload was malformed and Grid holds the default grid instead.
type TableView struct {
	Table     model.Table
	Grid      [][]string
	Recovered error
}

func (s *Service) tableView(table model.Table) TableView {
	result := s.codec.Decode(table.Payload)
	return TableView{Table: table, Grid: result.Grid, Recovered: result.Recovered}
}

func (s *Service) tableViews(tables []model.Table) []TableView {
	views := make([]TableView, 0, len(tables))
	for _, table := range tables {
		views = append(views, s.tableView(table))
	}
	return views
}

// CreateTable attaches a table to the page and appends its marker to the page
// content in the same transaction.
func (s *Service) CreateTable(ctx context.Context, userID, pageID int64, grid [][]string) (TableView, error) {
	if err := s.ready(opCreateTable); err != nil {
		return TableView{}, err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return TableView{}, s.fail(opCreateTable, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}

	table := model.Table{PageID: pageID, Payload: s.codec.Encode(grid), CreatedAt: s.now()}
	err := s.stores.Transaction(ctx, func(tx *store.Stores) error {
		if err := tx.Tables.Create(ctx, &table); err != nil {
			return err
		}
		_, _, err := reconcilePage(ctx, tx, pageID)
		return err
	})
	if err != nil {
		return TableView{}, s.fail(opCreateTable, reasonInsert, err, zap.Int64("page_id", pageID))
	}
	s.notify(userID, pageID)
	return s.tableView(table), nil
}

func (s *Service) ListTables(ctx context.Context, userID, pageID int64) ([]TableView, error) {
	if err := s.ready(opListTables); err != nil {
		return nil, err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return nil, s.fail(opListTables, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}
	tables, err := s.stores.Tables.ListByParent(ctx, pageID)
	if err != nil {
		return nil, s.fail(opListTables, reasonQueryFailed, err, zap.Int64("page_id", pageID))
	}
	return s.tableViews(tables), nil
}

func (s *Service) GetTable(ctx context.Context, userID, tableID int64) (TableView, error) {
	if err := s.ready(opGetTable); err != nil {
		return TableView{}, err
	}
	table, _, err := s.validator.Table(ctx, tableID, userID)
	if err != nil {
		return TableView{}, s.fail(opGetTable, reasonAuthorize, err, zap.Int64("table_id", tableID))
	}
	return s.tableView(table), nil
}

// UpdateTable replaces the table's grid.
func (s *Service) UpdateTable(ctx context.Context, userID, tableID int64, grid [][]string) (TableView, error) {
	if err := s.ready(opUpdateTable); err != nil {
		return TableView{}, err
	}
	table, _, err := s.validator.Table(ctx, tableID, userID)
	if err != nil {
		return TableView{}, s.fail(opUpdateTable, reasonAuthorize, err, zap.Int64("table_id", tableID))
	}

	table.Payload = s.codec.Encode(grid)
	if err := s.stores.Tables.Update(ctx, &table); err != nil {
		return TableView{}, s.fail(opUpdateTable, reasonUpdate, err, zap.Int64("table_id", tableID))
	}
	s.notify(userID, table.PageID)
	return s.tableView(table), nil
}

// DeleteTable removes the table and clears it from graphs that referenced it.
// The page's marker line is left in place and resolves as a missing reference.
func (s *Service) DeleteTable(ctx context.Context, userID, tableID int64) error {
	if err := s.ready(opDeleteTable); err != nil {
		return err
	}
	table, _, err := s.validator.Table(ctx, tableID, userID)
	if err != nil {
		return s.fail(opDeleteTable, reasonAuthorize, err, zap.Int64("table_id", tableID))
	}

	err = s.stores.Transaction(ctx, func(tx *store.Stores) error {
		if err := tx.DetachTable(ctx, tableID); err != nil {
			return err
		}
		return tx.Tables.Delete(ctx, tableID)
	})
	if err != nil {
		return s.fail(opDeleteTable, reasonDelete, err, zap.Int64("table_id", tableID))
	}
	s.notify(userID, table.PageID)
	return nil
}
