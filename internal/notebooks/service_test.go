package notebooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/markers"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/tablecodec"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	ownerUserID    int64 = 1
	intruderUserID int64 = 2
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes map[int64][]int64
}

func (n *recordingNotifier) PageChanged(userID int64, pageIDs ...int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.changes == nil {
		n.changes = make(map[int64][]int64)
	}
	n.changes[userID] = append(n.changes[userID], pageIDs...)
}

func (n *recordingNotifier) pagesFor(userID int64) []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.changes[userID]...)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingNotifier) {
	t.Helper()

	dsn := fmt.Sprintf("file:notebooks_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	notifier := &recordingNotifier{}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000600, 0).UTC() },
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("failed to construct notebooks service: %v", err)
	}
	return service, db, notifier
}

func mustPage(t *testing.T, service *Service, userID int64, content string) model.Page {
	t.Helper()
	notebook, err := service.CreateNotebook(context.Background(), userID, "Lab notes")
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	page, err := service.CreatePage(context.Background(), userID, notebook.ID, "Day 1", content)
	if err != nil {
		t.Fatalf("create page: %v", err)
	}
	return page
}

func TestNewServiceRequiresDatabase(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %v", err)
	}
	if serviceErr.Code() != "notebooks.service.new.missing_database" {
		t.Fatalf("unexpected code %q", serviceErr.Code())
	}
}

func TestCreateNotebookRejectsBlankTitle(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.CreateNotebook(context.Background(), ownerUserID, "   ")
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListNotebooksReturnsOnlyOwnedNotebooks(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	for _, title := range []string{"First", "Second"} {
		if _, err := service.CreateNotebook(ctx, ownerUserID, title); err != nil {
			t.Fatalf("create notebook: %v", err)
		}
	}
	if _, err := service.CreateNotebook(ctx, intruderUserID, "Other"); err != nil {
		t.Fatalf("create notebook: %v", err)
	}

	notebooks, err := service.ListNotebooks(ctx, ownerUserID)
	if err != nil {
		t.Fatalf("list notebooks: %v", err)
	}
	if len(notebooks) != 2 || notebooks[0].Title != "First" || notebooks[1].Title != "Second" {
		t.Fatalf("unexpected notebooks %#v", notebooks)
	}
}

func TestGetPageDeniesOtherUser(t *testing.T) {
	service, _, _ := newTestService(t)
	page := mustPage(t, service, ownerUserID, "")

	_, err := service.GetPage(context.Background(), intruderUserID, page.ID)
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden error, got %v", err)
	}
}

func TestAttachmentOperationsDenyOtherUser(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "")
	table, err := service.CreateTable(ctx, ownerUserID, page.ID, [][]string{{"a"}})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	if _, err := service.GetTable(ctx, intruderUserID, table.Table.ID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden on get, got %v", err)
	}
	if _, err := service.UpdateTable(ctx, intruderUserID, table.Table.ID, [][]string{{"x"}}); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden on update, got %v", err)
	}
	if err := service.DeleteTable(ctx, intruderUserID, table.Table.ID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden on delete, got %v", err)
	}
	if _, err := service.CreateTable(ctx, intruderUserID, page.ID, nil); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden on create under foreign page, got %v", err)
	}

	stored, err := service.GetTable(ctx, ownerUserID, table.Table.ID)
	if err != nil {
		t.Fatalf("owner get table: %v", err)
	}
	if stored.Grid[0][0] != "a" {
		t.Fatalf("expected table to be untouched, got %#v", stored.Grid)
	}
}

func TestMissingEntityIsNotFound(t *testing.T) {
	service, _, _ := newTestService(t)
	_, err := service.GetGraph(context.Background(), ownerUserID, 4040)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateTableAppendsMarkerToPage(t *testing.T) {
	service, _, notifier := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "notes only")

	table, err := service.CreateTable(ctx, ownerUserID, page.ID, [][]string{{"x", "y"}, {"1", "2"}})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	stored, err := service.GetPage(ctx, ownerUserID, page.ID)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	expected := "notes only\n" + markers.TableMarker(table.Table.ID) + "\n"
	if stored.Content != expected {
		t.Fatalf("expected content %q, got %q", expected, stored.Content)
	}
	if pages := notifier.pagesFor(ownerUserID); len(pages) == 0 || pages[len(pages)-1] != page.ID {
		t.Fatalf("expected page change notification, got %v", pages)
	}
}

func TestSaveImageDetectsContentTypeAndAppendsMarker(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

	image, err := service.SaveImage(ctx, ownerUserID, page.ID, ImageUpload{Data: png, FileName: "../../plot.png"})
	if err != nil {
		t.Fatalf("save image: %v", err)
	}
	if image.ContentType != "image/png" {
		t.Fatalf("expected detected image/png, got %q", image.ContentType)
	}
	if image.FileName != "plot.png" {
		t.Fatalf("expected base file name, got %q", image.FileName)
	}

	stored, err := service.GetPage(ctx, ownerUserID, page.ID)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if stored.Content != markers.ImageMarker(image.ID)+"\n" {
		t.Fatalf("unexpected content %q", stored.Content)
	}
}

func TestSaveImageRejectsEmptyContent(t *testing.T) {
	service, _, _ := newTestService(t)
	page := mustPage(t, service, ownerUserID, "")
	_, err := service.SaveImage(context.Background(), ownerUserID, page.ID, ImageUpload{})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateGraphRejectsTableFromAnotherPage(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	notebook, err := service.CreateNotebook(ctx, ownerUserID, "Notebook")
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	first, err := service.CreatePage(ctx, ownerUserID, notebook.ID, "First", "")
	if err != nil {
		t.Fatalf("create page: %v", err)
	}
	second, err := service.CreatePage(ctx, ownerUserID, notebook.ID, "Second", "")
	if err != nil {
		t.Fatalf("create page: %v", err)
	}
	table, err := service.CreateTable(ctx, ownerUserID, first.ID, [][]string{{"1", "2"}})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	input := GraphInput{
		Kind:    "line",
		TableID: &table.Table.ID,
		Config:  model.GraphConfig{XColumn: 0, YColumns: []int{1}},
	}
	if _, err := service.CreateGraph(ctx, ownerUserID, second.ID, input); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	graph, err := service.CreateGraph(ctx, ownerUserID, first.ID, input)
	if err != nil {
		t.Fatalf("create graph on same page: %v", err)
	}
	if graph.Kind != model.GraphKindLine || graph.TableID == nil || *graph.TableID != table.Table.ID {
		t.Fatalf("unexpected graph %#v", graph)
	}
}

func TestUpdateGraphKeepsTableWhenNotProvided(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "")
	table, err := service.CreateTable(ctx, ownerUserID, page.ID, [][]string{{"label", "1"}})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	graph, err := service.CreateGraph(ctx, ownerUserID, page.ID, GraphInput{
		Kind:    "BAR",
		TableID: &table.Table.ID,
		Config:  model.GraphConfig{YColumns: []int{1}},
	})
	if err != nil {
		t.Fatalf("create graph: %v", err)
	}

	updated, err := service.UpdateGraph(ctx, ownerUserID, graph.ID, GraphInput{
		Kind:   "PIE",
		Config: model.GraphConfig{Title: "Share", LabelColumn: 0, ValueColumn: 1},
	})
	if err != nil {
		t.Fatalf("update graph: %v", err)
	}
	if updated.Kind != model.GraphKindPie || updated.Config.Title != "Share" {
		t.Fatalf("unexpected graph %#v", updated)
	}
	if updated.TableID == nil || *updated.TableID != table.Table.ID {
		t.Fatalf("expected table reference to be kept, got %v", updated.TableID)
	}
}

func TestCreateGraphRejectsUnknownKind(t *testing.T) {
	service, _, _ := newTestService(t)
	page := mustPage(t, service, ownerUserID, "")
	_, err := service.CreateGraph(context.Background(), ownerUserID, page.ID, GraphInput{Kind: "scatter"})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteTableDetachesGraphsAndLeavesOrphanMarker(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "")
	table, err := service.CreateTable(ctx, ownerUserID, page.ID, [][]string{{"1"}})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	graph, err := service.CreateGraph(ctx, ownerUserID, page.ID, GraphInput{
		Kind:    "LINE",
		TableID: &table.Table.ID,
		Config:  model.GraphConfig{YColumns: []int{0}},
	})
	if err != nil {
		t.Fatalf("create graph: %v", err)
	}

	if err := service.DeleteTable(ctx, ownerUserID, table.Table.ID); err != nil {
		t.Fatalf("delete table: %v", err)
	}

	detached, err := service.GetGraph(ctx, ownerUserID, graph.ID)
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if detached.TableID != nil {
		t.Fatalf("expected graph to be detached, got %v", *detached.TableID)
	}

	document, err := service.MaterializePage(ctx, ownerUserID, page.ID)
	if err != nil {
		t.Fatalf("materialize page: %v", err)
	}
	var found bool
	for _, segment := range document.Segments {
		if segment.Type == markers.SegmentTable && segment.EntityID == table.Table.ID {
			found = true
			if segment.Err == nil || segment.Err.Reason != markers.ReasonMissingReference {
				t.Fatalf("expected missing reference, got %#v", segment.Err)
			}
		}
	}
	if !found {
		t.Fatalf("expected orphan marker segment in %#v", document.Segments)
	}
}

func TestDeleteNotebookCascades(t *testing.T) {
	service, db, _ := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "")
	if _, err := service.CreateTable(ctx, ownerUserID, page.ID, nil); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := service.CreateGraph(ctx, ownerUserID, page.ID, GraphInput{Kind: "bar", Config: model.GraphConfig{YColumns: []int{0}}}); err != nil {
		t.Fatalf("create graph: %v", err)
	}
	if _, err := service.SaveImage(ctx, ownerUserID, page.ID, ImageUpload{Data: []byte("GIF89a"), ContentType: "image/gif"}); err != nil {
		t.Fatalf("save image: %v", err)
	}

	if err := service.DeleteNotebook(ctx, intruderUserID, page.NotebookID); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := service.DeleteNotebook(ctx, ownerUserID, page.NotebookID); err != nil {
		t.Fatalf("delete notebook: %v", err)
	}

	for _, record := range []any{&model.Notebook{}, &model.Page{}, &model.Table{}, &model.Graph{}, &model.Image{}} {
		var count int64
		if err := db.Model(record).Count(&count).Error; err != nil {
			t.Fatalf("count rows: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected no rows left for %T, got %d", record, count)
		}
	}
}

func TestMaterializePageFlagsForeignPageMarker(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	first := mustPage(t, service, ownerUserID, "")
	table, err := service.CreateTable(ctx, ownerUserID, first.ID, [][]string{{"secret"}})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	content := "intro\n" + markers.TableMarker(table.Table.ID)
	second, err := service.CreatePage(ctx, ownerUserID, first.NotebookID, "Second", content)
	if err != nil {
		t.Fatalf("create page: %v", err)
	}

	document, err := service.MaterializePage(ctx, ownerUserID, second.ID)
	if err != nil {
		t.Fatalf("materialize page: %v", err)
	}
	if document.Reconciled {
		t.Fatalf("expected no reconciliation for a page without attachments")
	}
	if len(document.Segments) != 2 {
		t.Fatalf("expected two segments, got %#v", document.Segments)
	}
	marker := document.Segments[1]
	if marker.Err == nil || marker.Err.Reason != markers.ReasonForeignPageReference {
		t.Fatalf("expected foreign page reference, got %#v", marker.Err)
	}
	if marker.Table != nil {
		t.Fatalf("expected foreign table content to be withheld")
	}
}

func TestMaterializePageReconcilesAndDecodesTables(t *testing.T) {
	service, db, _ := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "heading")

	broken := model.Table{PageID: page.ID, Payload: `[["unterminated`, CreatedAt: time.Unix(1700000000, 0).UTC()}
	if err := db.Create(&broken).Error; err != nil {
		t.Fatalf("insert table directly: %v", err)
	}

	document, err := service.MaterializePage(ctx, ownerUserID, page.ID)
	if err != nil {
		t.Fatalf("materialize page: %v", err)
	}
	if !document.Reconciled {
		t.Fatalf("expected reconciliation to append the missing marker")
	}
	if !strings.HasSuffix(document.Page.Content, markers.TableMarker(broken.ID)+"\n") {
		t.Fatalf("unexpected content %q", document.Page.Content)
	}
	if len(document.Tables) != 1 {
		t.Fatalf("expected one table view, got %d", len(document.Tables))
	}
	view := document.Tables[0]
	if !errors.Is(view.Recovered, tablecodec.ErrMalformedPayload) {
		t.Fatalf("expected recovered codec error, got %v", view.Recovered)
	}
	if len(view.Grid) != 1 || len(view.Grid[0]) != 1 || view.Grid[0][0] != "" {
		t.Fatalf("expected default grid, got %#v", view.Grid)
	}
	last := document.Segments[len(document.Segments)-2]
	if !last.Resolved() || last.Table.ID != broken.ID {
		t.Fatalf("expected resolved table marker, got %#v", last)
	}

	again, err := service.ReconcilePage(ctx, ownerUserID, page.ID)
	if err != nil {
		t.Fatalf("reconcile page: %v", err)
	}
	if again.Content != document.Page.Content {
		t.Fatalf("expected reconcile to be idempotent, got %q", again.Content)
	}
}

func TestUpdatePageLastWriterWins(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	page := mustPage(t, service, ownerUserID, "original")

	first := "first edit"
	second := "second edit"
	if _, err := service.UpdatePage(ctx, ownerUserID, page.ID, PageUpdate{Content: &first}); err != nil {
		t.Fatalf("first update: %v", err)
	}
	updated, err := service.UpdatePage(ctx, ownerUserID, page.ID, PageUpdate{Content: &second})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if updated.Content != second || updated.Title != "Day 1" {
		t.Fatalf("unexpected page %#v", updated)
	}
}
