// Package access authorizes entity access by walking each entity's parent chain
// to the owning notebook and comparing its owner with the acting user.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"go.uber.org/zap"
)

var errMissingStores = errors.New("access: stores are required")

// Chain is an authorized entity together with the ancestors walked to reach its owner.
// Page is nil when the entity is a notebook.
type Chain struct {
	Kind     model.EntityKind
	ID       int64
	Entity   any
	Page     *model.Page
	Notebook model.Notebook
}

// OwnerID returns the user that owns the chain.
func (c Chain) OwnerID() int64 {
	return c.Notebook.UserID
}

// Validator performs the ownership walk. It holds no identity of its own;
// the acting user is supplied on every call.
type Validator struct {
	stores *store.Stores
	logger *zap.Logger
}

// NewValidator constructs a Validator over the provided repositories.
func NewValidator(stores *store.Stores, logger *zap.Logger) (*Validator, error) {
	if stores == nil {
		return nil, errMissingStores
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{stores: stores, logger: logger}, nil
}

// Authorize resolves any entity kind and checks that actingUserID owns it.
// It fails with a NotFoundError when the entity or an ancestor is absent and
// with a ForbiddenError when the chain ends at another user.
func (v *Validator) Authorize(ctx context.Context, kind model.EntityKind, id int64, actingUserID int64) (Chain, error) {
	switch kind {
	case model.EntityKindNotebook:
		notebook, err := v.Notebook(ctx, id, actingUserID)
		if err != nil {
			return Chain{}, err
		}
		return Chain{Kind: kind, ID: id, Entity: notebook, Notebook: notebook}, nil
	case model.EntityKindPage:
		page, notebook, err := v.Page(ctx, id, actingUserID)
		if err != nil {
			return Chain{}, err
		}
		return Chain{Kind: kind, ID: id, Entity: page, Page: &page, Notebook: notebook}, nil
	case model.EntityKindTable:
		table, err := v.stores.Tables.Get(ctx, id)
		if err != nil {
			return Chain{}, err
		}
		return v.attachmentChain(ctx, kind, id, table, table.PageID, actingUserID)
	case model.EntityKindGraph:
		graph, err := v.stores.Graphs.Get(ctx, id)
		if err != nil {
			return Chain{}, err
		}
		return v.attachmentChain(ctx, kind, id, graph, graph.PageID, actingUserID)
	case model.EntityKindImage:
		image, err := v.stores.Images.Get(ctx, id)
		if err != nil {
			return Chain{}, err
		}
		return v.attachmentChain(ctx, kind, id, image, image.PageID, actingUserID)
	default:
		return Chain{}, model.NewValidationError(fmt.Sprintf("unknown entity kind %q", kind))
	}
}

// Notebook loads the notebook and checks its owner.
func (v *Validator) Notebook(ctx context.Context, id int64, actingUserID int64) (model.Notebook, error) {
	notebook, err := v.stores.Notebooks.Get(ctx, id)
	if err != nil {
		return model.Notebook{}, err
	}
	if notebook.UserID != actingUserID {
		v.deny(model.EntityKindNotebook, id, actingUserID)
		return model.Notebook{}, model.NewForbiddenError(model.EntityKindNotebook, id, actingUserID)
	}
	return notebook, nil
}

// Page loads the page, walks to its notebook and checks the owner.
func (v *Validator) Page(ctx context.Context, id int64, actingUserID int64) (model.Page, model.Notebook, error) {
	page, err := v.stores.Pages.Get(ctx, id)
	if err != nil {
		return model.Page{}, model.Notebook{}, err
	}
	notebook, err := v.owningNotebook(ctx, model.EntityKindPage, id, page.NotebookID, actingUserID)
	if err != nil {
		return model.Page{}, model.Notebook{}, err
	}
	return page, notebook, nil
}

// Table authorizes a table and returns it with its page.
func (v *Validator) Table(ctx context.Context, id int64, actingUserID int64) (model.Table, model.Page, error) {
	chain, err := v.Authorize(ctx, model.EntityKindTable, id, actingUserID)
	if err != nil {
		return model.Table{}, model.Page{}, err
	}
	return chain.Entity.(model.Table), *chain.Page, nil
}

// Graph authorizes a graph and returns it with its page.
func (v *Validator) Graph(ctx context.Context, id int64, actingUserID int64) (model.Graph, model.Page, error) {
	chain, err := v.Authorize(ctx, model.EntityKindGraph, id, actingUserID)
	if err != nil {
		return model.Graph{}, model.Page{}, err
	}
	return chain.Entity.(model.Graph), *chain.Page, nil
}

// Image authorizes an image and returns it with its page.
func (v *Validator) Image(ctx context.Context, id int64, actingUserID int64) (model.Image, model.Page, error) {
	chain, err := v.Authorize(ctx, model.EntityKindImage, id, actingUserID)
	if err != nil {
		return model.Image{}, model.Page{}, err
	}
	return chain.Entity.(model.Image), *chain.Page, nil
}

func (v *Validator) attachmentChain(ctx context.Context, kind model.EntityKind, id int64, entity any, pageID int64, actingUserID int64) (Chain, error) {
	page, err := v.stores.Pages.Get(ctx, pageID)
	if err != nil {
		return Chain{}, err
	}
	notebook, err := v.owningNotebook(ctx, kind, id, page.NotebookID, actingUserID)
	if err != nil {
		return Chain{}, err
	}
	return Chain{Kind: kind, ID: id, Entity: entity, Page: &page, Notebook: notebook}, nil
}

// owningNotebook reports a ForbiddenError against the requested entity rather than its notebook.
func (v *Validator) owningNotebook(ctx context.Context, kind model.EntityKind, id int64, notebookID int64, actingUserID int64) (model.Notebook, error) {
	notebook, err := v.stores.Notebooks.Get(ctx, notebookID)
	if err != nil {
		return model.Notebook{}, err
	}
	if notebook.UserID != actingUserID {
		v.deny(kind, id, actingUserID)
		return model.Notebook{}, model.NewForbiddenError(kind, id, actingUserID)
	}
	return notebook, nil
}

func (v *Validator) deny(kind model.EntityKind, id int64, actingUserID int64) {
	v.logger.Info("access denied",
		zap.String("kind", kind.String()),
		zap.Int64("entity_id", id),
		zap.Int64("user_id", actingUserID))
}
