package server

import (
	"time"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/markers"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/notebooks"
)

type notebookPayload struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type pagePayload struct {
	ID         int64     `json:"id"`
	NotebookID int64     `json:"notebook_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type tablePayload struct {
	ID        int64      `json:"id"`
	PageID    int64      `json:"page_id"`
	Rows      [][]string `json:"rows"`
	Recovered bool       `json:"recovered,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type graphPayload struct {
	ID        int64             `json:"id"`
	PageID    int64             `json:"page_id"`
	Kind      model.GraphKind   `json:"kind"`
	TableID   *int64            `json:"table_id"`
	Config    model.GraphConfig `json:"config"`
	CreatedAt time.Time         `json:"created_at"`
}

type imagePayload struct {
	ID          int64     `json:"id"`
	PageID      int64     `json:"page_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

type segmentPayload struct {
	Position int                  `json:"position"`
	Type     markers.SegmentType  `json:"type"`
	Text     string               `json:"text"`
	EntityID int64                `json:"entity_id,omitempty"`
	Resolved bool                 `json:"resolved"`
	Error    *segmentErrorPayload `json:"error,omitempty"`
}

type segmentErrorPayload struct {
	Reason markers.Reason `json:"reason"`
	Detail string         `json:"detail"`
}

type documentPayload struct {
	Page       pagePayload      `json:"page"`
	Notebook   notebookPayload  `json:"notebook"`
	Segments   []segmentPayload `json:"segments"`
	Tables     []tablePayload   `json:"tables"`
	Graphs     []graphPayload   `json:"graphs"`
	Images     []imagePayload   `json:"images"`
	Reconciled bool             `json:"reconciled"`
}

type titlePayload struct {
	Title string `json:"title"`
}

type createPageRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updatePageRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type tableRequest struct {
	Rows [][]string `json:"rows"`
}

type graphRequest struct {
	Kind    string            `json:"kind"`
	TableID *int64            `json:"table_id"`
	Config  model.GraphConfig `json:"config"`
}

func toNotebookPayload(notebook model.Notebook) notebookPayload {
	return notebookPayload{ID: notebook.ID, Title: notebook.Title, CreatedAt: notebook.CreatedAt}
}

func toPagePayload(page model.Page) pagePayload {
	return pagePayload{
		ID:         page.ID,
		NotebookID: page.NotebookID,
		Title:      page.Title,
		Content:    page.Content,
		CreatedAt:  page.CreatedAt,
	}
}

func toTablePayload(view notebooks.TableView) tablePayload {
	return tablePayload{
		ID:        view.Table.ID,
		PageID:    view.Table.PageID,
		Rows:      view.Grid,
		Recovered: view.Recovered != nil,
		CreatedAt: view.Table.CreatedAt,
	}
}

func toGraphPayload(graph model.Graph) graphPayload {
	return graphPayload{
		ID:        graph.ID,
		PageID:    graph.PageID,
		Kind:      graph.Kind,
		TableID:   graph.TableID,
		Config:    graph.Config,
		CreatedAt: graph.CreatedAt,
	}
}

func toImagePayload(image model.Image) imagePayload {
	return imagePayload{
		ID:          image.ID,
		PageID:      image.PageID,
		FileName:    image.FileName,
		ContentType: image.ContentType,
		Size:        len(image.Data),
		CreatedAt:   image.CreatedAt,
	}
}

func toSegmentPayload(segment markers.Segment) segmentPayload {
	payload := segmentPayload{
		Position: segment.Position,
		Type:     segment.Type,
		Text:     segment.Text,
		EntityID: segment.EntityID,
		Resolved: segment.Resolved(),
	}
	if segment.Err != nil {
		payload.Error = &segmentErrorPayload{Reason: segment.Err.Reason, Detail: segment.Err.Error()}
	}
	return payload
}

func toDocumentPayload(document notebooks.PageDocument) documentPayload {
	payload := documentPayload{
		Page:       toPagePayload(document.Page),
		Notebook:   toNotebookPayload(document.Notebook),
		Segments:   make([]segmentPayload, 0, len(document.Segments)),
		Tables:     make([]tablePayload, 0, len(document.Tables)),
		Graphs:     make([]graphPayload, 0, len(document.Graphs)),
		Images:     make([]imagePayload, 0, len(document.Images)),
		Reconciled: document.Reconciled,
	}
	for _, segment := range document.Segments {
		payload.Segments = append(payload.Segments, toSegmentPayload(segment))
	}
	for _, table := range document.Tables {
		payload.Tables = append(payload.Tables, toTablePayload(table))
	}
	for _, graph := range document.Graphs {
		payload.Graphs = append(payload.Graphs, toGraphPayload(graph))
	}
	for _, image := range document.Images {
		payload.Images = append(payload.Images, toImagePayload(image))
	}
	return payload
}
