package notebooks

import (
	"context"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"go.uber.org/zap"
)

const (
	opCreateNotebook = "notebooks.create_notebook"
	opListNotebooks  = "notebooks.list_notebooks"
	opGetNotebook    = "notebooks.get_notebook"
	opRenameNotebook = "notebooks.rename_notebook"
	opDeleteNotebook = "notebooks.delete_notebook"
)

// CreateNotebook creates a notebook owned by the acting user.
func (s *Service) CreateNotebook(ctx context.Context, userID int64, title string) (model.Notebook, error) {
	if err := s.ready(opCreateNotebook); err != nil {
		return model.Notebook{}, err
	}
	normalized, err := normalizeTitle(model.EntityKindNotebook, title)
	if err != nil {
		return model.Notebook{}, err
	}

	notebook := model.Notebook{UserID: userID, Title: normalized, CreatedAt: s.now()}
	if err := s.stores.Notebooks.Create(ctx, &notebook); err != nil {
		return model.Notebook{}, s.fail(opCreateNotebook, reasonInsert, err, zap.Int64("user_id", userID))
	}
	return notebook, nil
}

// ListNotebooks returns the acting user's notebooks in creation order.
func (s *Service) ListNotebooks(ctx context.Context, userID int64) ([]model.Notebook, error) {
	if err := s.ready(opListNotebooks); err != nil {
		return nil, err
	}
	notebooks, err := s.stores.Notebooks.ListByParent(ctx, userID)
	if err != nil {
		return nil, s.fail(opListNotebooks, reasonQueryFailed, err, zap.Int64("user_id", userID))
	}
	return notebooks, nil
}

func (s *Service) GetNotebook(ctx context.Context, userID, notebookID int64) (model.Notebook, error) {
	if err := s.ready(opGetNotebook); err != nil {
		return model.Notebook{}, err
	}
	notebook, err := s.validator.Notebook(ctx, notebookID, userID)
	if err != nil {
		return model.Notebook{}, s.fail(opGetNotebook, reasonAuthorize, err, zap.Int64("notebook_id", notebookID))
	}
	return notebook, nil
}

func (s *Service) RenameNotebook(ctx context.Context, userID, notebookID int64, title string) (model.Notebook, error) {
	if err := s.ready(opRenameNotebook); err != nil {
		return model.Notebook{}, err
	}
	notebook, err := s.validator.Notebook(ctx, notebookID, userID)
	if err != nil {
		return model.Notebook{}, s.fail(opRenameNotebook, reasonAuthorize, err, zap.Int64("notebook_id", notebookID))
	}
	normalized, err := normalizeTitle(model.EntityKindNotebook, title)
	if err != nil {
		return model.Notebook{}, err
	}

	notebook.Title = normalized
	if err := s.stores.Notebooks.Update(ctx, &notebook); err != nil {
		return model.Notebook{}, s.fail(opRenameNotebook, reasonUpdate, err, zap.Int64("notebook_id", notebookID))
	}
	return notebook, nil
}

// DeleteNotebook removes the notebook with all of its pages and their attachments.
func (s *Service) DeleteNotebook(ctx context.Context, userID, notebookID int64) error {
	if err := s.ready(opDeleteNotebook); err != nil {
		return err
	}
	if _, err := s.validator.Notebook(ctx, notebookID, userID); err != nil {
		return s.fail(opDeleteNotebook, reasonAuthorize, err, zap.Int64("notebook_id", notebookID))
	}

	var removedPages []int64
	err := s.stores.Transaction(ctx, func(tx *store.Stores) error {
		pages, err := tx.Pages.ListByParent(ctx, notebookID)
		if err != nil {
			return err
		}
		for _, page := range pages {
			if err := deletePageTree(ctx, tx, page.ID); err != nil {
				return err
			}
			removedPages = append(removedPages, page.ID)
		}
		return tx.Notebooks.Delete(ctx, notebookID)
	})
	if err != nil {
		return s.fail(opDeleteNotebook, reasonDelete, err, zap.Int64("notebook_id", notebookID))
	}
	s.notify(userID, removedPages...)
	return nil
}

// deletePageTree removes a page and every attachment recorded against it.
func deletePageTree(ctx context.Context, tx *store.Stores, pageID int64) error {
	graphs, err := tx.Graphs.ListByParent(ctx, pageID)
	if err != nil {
		return err
	}
	for _, graph := range graphs {
		if err := tx.Graphs.Delete(ctx, graph.ID); err != nil {
			return err
		}
	}

	tables, err := tx.Tables.ListByParent(ctx, pageID)
	if err != nil {
		return err
	}
	for _, table := range tables {
		if err := tx.DetachTable(ctx, table.ID); err != nil {
			return err
		}
		if err := tx.Tables.Delete(ctx, table.ID); err != nil {
			return err
		}
	}

	images, err := tx.Images.ListByParent(ctx, pageID)
	if err != nil {
		return err
	}
	for _, image := range images {
		if err := tx.Images.Delete(ctx, image.ID); err != nil {
			return err
		}
	}

	return tx.Pages.Delete(ctx, pageID)
}
