package server

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func createNotebookAndPage(t *testing.T, api *testAPI, token string, content string) (notebookPayload, pagePayload) {
	t.Helper()
	recorder := api.do(t, http.MethodPost, "/notebooks", token, map[string]string{"title": "Research"})
	expectStatus(t, recorder, http.StatusCreated)
	var notebook notebookPayload
	decodeBody(t, recorder, &notebook)

	recorder = api.do(t, http.MethodPost, fmt.Sprintf("/notebooks/%d/pages", notebook.ID), token, map[string]string{
		"title":   "Results",
		"content": content,
	})
	expectStatus(t, recorder, http.StatusCreated)
	var page pagePayload
	decodeBody(t, recorder, &page)
	return notebook, page
}

func TestNotebookAndPageLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "owner")
	notebook, page := createNotebookAndPage(t, api, token, "first line")

	recorder := api.do(t, http.MethodGet, "/notebooks", token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var list struct {
		Notebooks []notebookPayload `json:"notebooks"`
	}
	decodeBody(t, recorder, &list)
	if len(list.Notebooks) != 1 || list.Notebooks[0].ID != notebook.ID {
		t.Fatalf("unexpected notebook list %#v", list)
	}

	recorder = api.do(t, http.MethodPut, fmt.Sprintf("/notebooks/%d", notebook.ID), token, map[string]string{"title": "Renamed"})
	expectStatus(t, recorder, http.StatusOK)

	recorder = api.do(t, http.MethodPut, fmt.Sprintf("/pages/%d", page.ID), token, map[string]string{"content": "edited"})
	expectStatus(t, recorder, http.StatusOK)
	var updated pagePayload
	decodeBody(t, recorder, &updated)
	if updated.Content != "edited" || updated.Title != "Results" {
		t.Fatalf("unexpected page %#v", updated)
	}

	recorder = api.do(t, http.MethodGet, fmt.Sprintf("/notebooks/%d/pages", notebook.ID), token, nil)
	expectStatus(t, recorder, http.StatusOK)

	expectStatus(t, api.do(t, http.MethodDelete, fmt.Sprintf("/notebooks/%d", notebook.ID), token, nil), http.StatusNoContent)
	expectStatus(t, api.do(t, http.MethodGet, fmt.Sprintf("/pages/%d", page.ID), token, nil), http.StatusNotFound)
}

func TestOtherUserIsForbidden(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := api.register(t, "owner")
	otherToken := api.register(t, "intruder")
	notebook, page := createNotebookAndPage(t, api, ownerToken, "")

	recorder := api.do(t, http.MethodPost, fmt.Sprintf("/pages/%d/tables", page.ID), ownerToken, map[string]any{
		"rows": [][]string{{"a", "b"}},
	})
	expectStatus(t, recorder, http.StatusCreated)
	var table tablePayload
	decodeBody(t, recorder, &table)

	paths := []string{
		fmt.Sprintf("/notebooks/%d", notebook.ID),
		fmt.Sprintf("/notebooks/%d/pages", notebook.ID),
		fmt.Sprintf("/pages/%d", page.ID),
		fmt.Sprintf("/pages/%d/document", page.ID),
		fmt.Sprintf("/tables/%d", table.ID),
	}
	for _, path := range paths {
		recorder := api.do(t, http.MethodGet, path, otherToken, nil)
		expectStatus(t, recorder, http.StatusForbidden)
		if !strings.Contains(recorder.Body.String(), `"error":"forbidden"`) {
			t.Fatalf("unexpected forbidden body for %s: %s", path, recorder.Body.String())
		}
	}

	recorder = api.do(t, http.MethodPut, fmt.Sprintf("/tables/%d", table.ID), otherToken, map[string]any{"rows": [][]string{{"x"}}})
	expectStatus(t, recorder, http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodDelete, fmt.Sprintf("/pages/%d", page.ID), otherToken, nil), http.StatusForbidden)

	recorder = api.do(t, http.MethodGet, fmt.Sprintf("/tables/%d", table.ID), ownerToken, nil)
	expectStatus(t, recorder, http.StatusOK)
	var stored tablePayload
	decodeBody(t, recorder, &stored)
	if stored.Rows[0][0] != "a" {
		t.Fatalf("expected table to be untouched, got %#v", stored.Rows)
	}
}

func TestInvalidAndMissingIdentifiers(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "owner")

	recorder := api.do(t, http.MethodGet, "/pages/abc", token, nil)
	expectStatus(t, recorder, http.StatusBadRequest)

	recorder = api.do(t, http.MethodGet, "/graphs/999", token, nil)
	expectStatus(t, recorder, http.StatusNotFound)
	expected := `{"code":"graph.not_found","error":"not_found"}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestTableAttachUpdatesDocument(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "owner")
	_, page := createNotebookAndPage(t, api, token, "notes only")

	recorder := api.do(t, http.MethodPost, fmt.Sprintf("/pages/%d/tables", page.ID), token, map[string]any{
		"rows": [][]string{{"x", "y"}, {"1", `say "hi", [ok]`}, {}},
	})
	expectStatus(t, recorder, http.StatusCreated)
	var table tablePayload
	decodeBody(t, recorder, &table)

	recorder = api.do(t, http.MethodGet, fmt.Sprintf("/pages/%d/document", page.ID), token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var document documentPayload
	decodeBody(t, recorder, &document)

	expectedContent := fmt.Sprintf("notes only\n[TABLE_%d]\n", table.ID)
	if document.Page.Content != expectedContent {
		t.Fatalf("expected content %q, got %q", expectedContent, document.Page.Content)
	}
	if len(document.Segments) != 3 {
		t.Fatalf("expected three segments, got %#v", document.Segments)
	}
	marker := document.Segments[1]
	if marker.Type != "table" || !marker.Resolved || marker.EntityID != table.ID {
		t.Fatalf("unexpected marker segment %#v", marker)
	}
	if len(document.Tables) != 1 || document.Tables[0].Rows[1][1] != `say "hi", [ok]` || len(document.Tables[0].Rows[2]) != 0 {
		t.Fatalf("unexpected decoded tables %#v", document.Tables)
	}
}

func TestGraphRejectsTableFromAnotherPage(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "owner")
	notebook, first := createNotebookAndPage(t, api, token, "")

	recorder := api.do(t, http.MethodPost, fmt.Sprintf("/notebooks/%d/pages", notebook.ID), token, map[string]string{"title": "Other"})
	expectStatus(t, recorder, http.StatusCreated)
	var second pagePayload
	decodeBody(t, recorder, &second)

	recorder = api.do(t, http.MethodPost, fmt.Sprintf("/pages/%d/tables", first.ID), token, map[string]any{"rows": [][]string{{"1"}}})
	expectStatus(t, recorder, http.StatusCreated)
	var table tablePayload
	decodeBody(t, recorder, &table)

	graph := map[string]any{
		"kind":     "line",
		"table_id": table.ID,
		"config":   map[string]any{"x_column": 0, "y_columns": []int{0}},
	}
	recorder = api.do(t, http.MethodPost, fmt.Sprintf("/pages/%d/graphs", second.ID), token, graph)
	expectStatus(t, recorder, http.StatusBadRequest)
	if !strings.Contains(recorder.Body.String(), "validation.invalid") {
		t.Fatalf("unexpected body %s", recorder.Body.String())
	}

	recorder = api.do(t, http.MethodPost, fmt.Sprintf("/pages/%d/graphs", first.ID), token, graph)
	expectStatus(t, recorder, http.StatusCreated)
	var created graphPayload
	decodeBody(t, recorder, &created)
	if created.Kind != "LINE" || created.TableID == nil || *created.TableID != table.ID {
		t.Fatalf("unexpected graph %#v", created)
	}

	expectStatus(t, api.do(t, http.MethodDelete, fmt.Sprintf("/tables/%d", table.ID), token, nil), http.StatusNoContent)
	recorder = api.do(t, http.MethodGet, fmt.Sprintf("/graphs/%d", created.ID), token, nil)
	expectStatus(t, recorder, http.StatusOK)
	var detached graphPayload
	decodeBody(t, recorder, &detached)
	if detached.TableID != nil {
		t.Fatalf("expected graph to be detached after table deletion")
	}
}
