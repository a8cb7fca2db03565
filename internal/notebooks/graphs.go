package notebooks

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"go.uber.org/zap"
)

const (
	opCreateGraph = "notebooks.create_graph"
	opListGraphs  = "notebooks.list_graphs"
	opGetGraph    = "notebooks.get_graph"
	opUpdateGraph = "notebooks.update_graph"
	opDeleteGraph = "notebooks.delete_graph"
)

// GraphInput describes a graph to create or the replacement values for an update.
// On update a nil TableID keeps the graph's current table reference.
type GraphInput struct {
	Kind    string
	TableID *int64
	Config  model.GraphConfig
}

func (input GraphInput) validate() (model.GraphKind, error) {
	kind, err := model.ParseGraphKind(input.Kind)
	if err != nil {
		return "", err
	}
	if err := input.Config.ValidateFor(kind); err != nil {
		return "", err
	}
	return kind, nil
}

// CreateGraph attaches a graph to the page. A referenced table must live on the same page.
func (s *Service) CreateGraph(ctx context.Context, userID, pageID int64, input GraphInput) (model.Graph, error) {
	if err := s.ready(opCreateGraph); err != nil {
		return model.Graph{}, err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return model.Graph{}, s.fail(opCreateGraph, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}
	kind, err := input.validate()
	if err != nil {
		return model.Graph{}, err
	}
	if input.TableID != nil {
		if err := s.requireTableOnPage(ctx, *input.TableID, pageID); err != nil {
			return model.Graph{}, s.fail(opCreateGraph, reasonQueryFailed, err, zap.Int64("page_id", pageID))
		}
	}

	graph := model.Graph{
		PageID:    pageID,
		Kind:      kind,
		TableID:   input.TableID,
		Config:    input.Config,
		CreatedAt: s.now(),
	}
	if err := s.stores.Graphs.Create(ctx, &graph); err != nil {
		return model.Graph{}, s.fail(opCreateGraph, reasonInsert, err, zap.Int64("page_id", pageID))
	}
	s.notify(userID, pageID)
	return graph, nil
}

func (s *Service) ListGraphs(ctx context.Context, userID, pageID int64) ([]model.Graph, error) {
	if err := s.ready(opListGraphs); err != nil {
		return nil, err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return nil, s.fail(opListGraphs, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}
	graphs, err := s.stores.Graphs.ListByParent(ctx, pageID)
	if err != nil {
		return nil, s.fail(opListGraphs, reasonQueryFailed, err, zap.Int64("page_id", pageID))
	}
	return graphs, nil
}

func (s *Service) GetGraph(ctx context.Context, userID, graphID int64) (model.Graph, error) {
	if err := s.ready(opGetGraph); err != nil {
		return model.Graph{}, err
	}
	graph, _, err := s.validator.Graph(ctx, graphID, userID)
	if err != nil {
		return model.Graph{}, s.fail(opGetGraph, reasonAuthorize, err, zap.Int64("graph_id", graphID))
	}
	return graph, nil
}

// UpdateGraph replaces kind and config, and the table reference when one is given.
func (s *Service) UpdateGraph(ctx context.Context, userID, graphID int64, input GraphInput) (model.Graph, error) {
	if err := s.ready(opUpdateGraph); err != nil {
		return model.Graph{}, err
	}
	graph, _, err := s.validator.Graph(ctx, graphID, userID)
	if err != nil {
		return model.Graph{}, s.fail(opUpdateGraph, reasonAuthorize, err, zap.Int64("graph_id", graphID))
	}
	kind, err := input.validate()
	if err != nil {
		return model.Graph{}, err
	}
	if input.TableID != nil {
		if err := s.requireTableOnPage(ctx, *input.TableID, graph.PageID); err != nil {
			return model.Graph{}, s.fail(opUpdateGraph, reasonQueryFailed, err, zap.Int64("graph_id", graphID))
		}
		graph.TableID = input.TableID
	}

	graph.Kind = kind
	graph.Config = input.Config
	if err := s.stores.Graphs.Update(ctx, &graph); err != nil {
		return model.Graph{}, s.fail(opUpdateGraph, reasonUpdate, err, zap.Int64("graph_id", graphID))
	}
	s.notify(userID, graph.PageID)
	return graph, nil
}

func (s *Service) DeleteGraph(ctx context.Context, userID, graphID int64) error {
	if err := s.ready(opDeleteGraph); err != nil {
		return err
	}
	graph, _, err := s.validator.Graph(ctx, graphID, userID)
	if err != nil {
		return s.fail(opDeleteGraph, reasonAuthorize, err, zap.Int64("graph_id", graphID))
	}
	if err := s.stores.Graphs.Delete(ctx, graphID); err != nil {
		return s.fail(opDeleteGraph, reasonDelete, err, zap.Int64("graph_id", graphID))
	}
	s.notify(userID, graph.PageID)
	return nil
}

// requireTableOnPage rejects table references that cross page boundaries.
// An absent table is reported as a validation failure of the graph input.
func (s *Service) requireTableOnPage(ctx context.Context, tableID, pageID int64) error {
	table, err := s.stores.Tables.Get(ctx, tableID)
	if errors.Is(err, model.ErrNotFound) {
		return model.NewValidationError(fmt.Sprintf("graph references unknown table %d", tableID))
	}
	if err != nil {
		return err
	}
	if table.PageID != pageID {
		return model.NewValidationError(fmt.Sprintf("table %d belongs to a different page than the graph", tableID))
	}
	return nil
}
