package notebooks

import (
	"context"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/markers"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"go.uber.org/zap"
)

const (
	opCreatePage      = "notebooks.create_page"
	opListPages       = "notebooks.list_pages"
	opGetPage         = "notebooks.get_page"
	opUpdatePage      = "notebooks.update_page"
	opDeletePage      = "notebooks.delete_page"
	opReconcilePage   = "notebooks.reconcile_page"
	opMaterializePage = "notebooks.materialize_page"
)

// PageUpdate carries optional replacements for a page. Nil fields keep their value.
type PageUpdate struct {
	Title   *string
	Content *string
}

// PageDocument is a page prepared for rendering or export: its content split into
// segments with markers resolved, plus every attachment recorded against the page.
type PageDocument struct {
	Page       model.Page
	Notebook   model.Notebook
	Segments   []markers.Segment
	Tables     []TableView
	Graphs     []model.Graph
	Images     []model.Image
	Reconciled bool
}

// CreatePage adds a page to a notebook owned by the acting user.
func (s *Service) CreatePage(ctx context.Context, userID, notebookID int64, title, content string) (model.Page, error) {
	if err := s.ready(opCreatePage); err != nil {
		return model.Page{}, err
	}
	if _, err := s.validator.Notebook(ctx, notebookID, userID); err != nil {
		return model.Page{}, s.fail(opCreatePage, reasonAuthorize, err, zap.Int64("notebook_id", notebookID))
	}
	normalized, err := normalizeTitle(model.EntityKindPage, title)
	if err != nil {
		return model.Page{}, err
	}

	page := model.Page{NotebookID: notebookID, Title: normalized, Content: content, CreatedAt: s.now()}
	if err := s.stores.Pages.Create(ctx, &page); err != nil {
		return model.Page{}, s.fail(opCreatePage, reasonInsert, err, zap.Int64("notebook_id", notebookID))
	}
	s.notify(userID, page.ID)
	return page, nil
}

func (s *Service) ListPages(ctx context.Context, userID, notebookID int64) ([]model.Page, error) {
	if err := s.ready(opListPages); err != nil {
		return nil, err
	}
	if _, err := s.validator.Notebook(ctx, notebookID, userID); err != nil {
		return nil, s.fail(opListPages, reasonAuthorize, err, zap.Int64("notebook_id", notebookID))
	}
	pages, err := s.stores.Pages.ListByParent(ctx, notebookID)
	if err != nil {
		return nil, s.fail(opListPages, reasonQueryFailed, err, zap.Int64("notebook_id", notebookID))
	}
	return pages, nil
}

func (s *Service) GetPage(ctx context.Context, userID, pageID int64) (model.Page, error) {
	if err := s.ready(opGetPage); err != nil {
		return model.Page{}, err
	}
	page, _, err := s.validator.Page(ctx, pageID, userID)
	if err != nil {
		return model.Page{}, s.fail(opGetPage, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}
	return page, nil
}

// UpdatePage replaces the title and/or content. Concurrent writers are not
// detected; the last update wins.
func (s *Service) UpdatePage(ctx context.Context, userID, pageID int64, update PageUpdate) (model.Page, error) {
	if err := s.ready(opUpdatePage); err != nil {
		return model.Page{}, err
	}
	page, _, err := s.validator.Page(ctx, pageID, userID)
	if err != nil {
		return model.Page{}, s.fail(opUpdatePage, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}

	if update.Title != nil {
		normalized, err := normalizeTitle(model.EntityKindPage, *update.Title)
		if err != nil {
			return model.Page{}, err
		}
		page.Title = normalized
	}
	if update.Content != nil {
		page.Content = *update.Content
	}

	if err := s.stores.Pages.Update(ctx, &page); err != nil {
		return model.Page{}, s.fail(opUpdatePage, reasonUpdate, err, zap.Int64("page_id", pageID))
	}
	s.notify(userID, page.ID)
	return page, nil
}

// DeletePage removes the page together with its tables, graphs and images.
func (s *Service) DeletePage(ctx context.Context, userID, pageID int64) error {
	if err := s.ready(opDeletePage); err != nil {
		return err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return s.fail(opDeletePage, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}

	err := s.stores.Transaction(ctx, func(tx *store.Stores) error {
		return deletePageTree(ctx, tx, pageID)
	})
	if err != nil {
		return s.fail(opDeletePage, reasonDelete, err, zap.Int64("page_id", pageID))
	}
	s.notify(userID, pageID)
	return nil
}

// ReconcilePage appends markers for attachments missing from the page content and
// persists the result when it changed.
func (s *Service) ReconcilePage(ctx context.Context, userID, pageID int64) (model.Page, error) {
	if err := s.ready(opReconcilePage); err != nil {
		return model.Page{}, err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return model.Page{}, s.fail(opReconcilePage, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}

	page, changed, err := s.reconcileInTransaction(ctx, pageID)
	if err != nil {
		return model.Page{}, s.fail(opReconcilePage, reasonReconcile, err, zap.Int64("page_id", pageID))
	}
	if changed {
		s.notify(userID, pageID)
	}
	return page, nil
}

// MaterializePage reconciles the page, then resolves every marker line against the
// store. Broken markers come back as segments carrying a ResolutionError.
func (s *Service) MaterializePage(ctx context.Context, userID, pageID int64) (PageDocument, error) {
	if err := s.ready(opMaterializePage); err != nil {
		return PageDocument{}, err
	}
	_, notebook, err := s.validator.Page(ctx, pageID, userID)
	if err != nil {
		return PageDocument{}, s.fail(opMaterializePage, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}

	page, changed, err := s.reconcileInTransaction(ctx, pageID)
	if err != nil {
		return PageDocument{}, s.fail(opMaterializePage, reasonReconcile, err, zap.Int64("page_id", pageID))
	}
	if changed {
		s.notify(userID, pageID)
	}

	segments, err := s.resolver.Resolve(ctx, pageID, page.Content)
	if err != nil {
		return PageDocument{}, s.fail(opMaterializePage, reasonResolve, err, zap.Int64("page_id", pageID))
	}

	tables, err := s.stores.Tables.ListByParent(ctx, pageID)
	if err != nil {
		return PageDocument{}, s.fail(opMaterializePage, reasonQueryFailed, err, zap.Int64("page_id", pageID))
	}
	graphs, err := s.stores.Graphs.ListByParent(ctx, pageID)
	if err != nil {
		return PageDocument{}, s.fail(opMaterializePage, reasonQueryFailed, err, zap.Int64("page_id", pageID))
	}
	images, err := s.stores.Images.ListByParent(ctx, pageID)
	if err != nil {
		return PageDocument{}, s.fail(opMaterializePage, reasonQueryFailed, err, zap.Int64("page_id", pageID))
	}

	return PageDocument{
		Page:       page,
		Notebook:   notebook,
		Segments:   segments,
		Tables:     s.tableViews(tables),
		Graphs:     graphs,
		Images:     images,
		Reconciled: changed,
	}, nil
}

// reconcileInTransaction must be called after authorization; the database
// allows a single connection, so nothing may query outside tx while it runs.
func (s *Service) reconcileInTransaction(ctx context.Context, pageID int64) (model.Page, bool, error) {
	var (
		page    model.Page
		changed bool
	)
	err := s.stores.Transaction(ctx, func(tx *store.Stores) error {
		var err error
		page, changed, err = reconcilePage(ctx, tx, pageID)
		return err
	})
	return page, changed, err
}

func reconcilePage(ctx context.Context, tx *store.Stores, pageID int64) (model.Page, bool, error) {
	page, err := tx.Pages.Get(ctx, pageID)
	if err != nil {
		return model.Page{}, false, err
	}
	tables, err := tx.Tables.ListByParent(ctx, pageID)
	if err != nil {
		return model.Page{}, false, err
	}
	images, err := tx.Images.ListByParent(ctx, pageID)
	if err != nil {
		return model.Page{}, false, err
	}

	reconciled := markers.Reconcile(page.Content, tables, images)
	if reconciled == page.Content {
		return page, false, nil
	}
	page.Content = reconciled
	if err := tx.Pages.Update(ctx, &page); err != nil {
		return model.Page{}, false, err
	}
	return page, true, nil
}
