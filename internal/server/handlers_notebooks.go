package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/notebooks"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListNotebooks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	list, err := h.notebooks.ListNotebooks(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "notebooks.list", err)
		return
	}
	response := make([]notebookPayload, 0, len(list))
	for _, notebook := range list {
		response = append(response, toNotebookPayload(notebook))
	}
	c.JSON(http.StatusOK, gin.H{"notebooks": response})
}

func (h *httpHandler) handleCreateNotebook(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var request titlePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	notebook, err := h.notebooks.CreateNotebook(c.Request.Context(), userID, request.Title)
	if err != nil {
		h.respondError(c, "notebooks.create", err)
		return
	}
	c.JSON(http.StatusCreated, toNotebookPayload(notebook))
}

func (h *httpHandler) handleGetNotebook(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	notebookID, ok := pathID(c, model.EntityKindNotebook)
	if !ok {
		return
	}
	notebook, err := h.notebooks.GetNotebook(c.Request.Context(), userID, notebookID)
	if err != nil {
		h.respondError(c, "notebooks.get", err)
		return
	}
	c.JSON(http.StatusOK, toNotebookPayload(notebook))
}

func (h *httpHandler) handleRenameNotebook(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	notebookID, ok := pathID(c, model.EntityKindNotebook)
	if !ok {
		return
	}
	var request titlePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	notebook, err := h.notebooks.RenameNotebook(c.Request.Context(), userID, notebookID, request.Title)
	if err != nil {
		h.respondError(c, "notebooks.rename", err)
		return
	}
	c.JSON(http.StatusOK, toNotebookPayload(notebook))
}

func (h *httpHandler) handleDeleteNotebook(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	notebookID, ok := pathID(c, model.EntityKindNotebook)
	if !ok {
		return
	}
	if err := h.notebooks.DeleteNotebook(c.Request.Context(), userID, notebookID); err != nil {
		h.respondError(c, "notebooks.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListPages(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	notebookID, ok := pathID(c, model.EntityKindNotebook)
	if !ok {
		return
	}
	pages, err := h.notebooks.ListPages(c.Request.Context(), userID, notebookID)
	if err != nil {
		h.respondError(c, "pages.list", err)
		return
	}
	response := make([]pagePayload, 0, len(pages))
	for _, page := range pages {
		response = append(response, toPagePayload(page))
	}
	c.JSON(http.StatusOK, gin.H{"pages": response})
}

func (h *httpHandler) handleCreatePage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	notebookID, ok := pathID(c, model.EntityKindNotebook)
	if !ok {
		return
	}
	var request createPageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	page, err := h.notebooks.CreatePage(c.Request.Context(), userID, notebookID, request.Title, request.Content)
	if err != nil {
		h.respondError(c, "pages.create", err)
		return
	}
	c.JSON(http.StatusCreated, toPagePayload(page))
}

func (h *httpHandler) handleGetPage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	page, err := h.notebooks.GetPage(c.Request.Context(), userID, pageID)
	if err != nil {
		h.respondError(c, "pages.get", err)
		return
	}
	c.JSON(http.StatusOK, toPagePayload(page))
}

func (h *httpHandler) handleUpdatePage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	var request updatePageRequest
	if err := c.ShouldBindJSON(&request); err != nil || (request.Title == nil && request.Content == nil) {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	page, err := h.notebooks.UpdatePage(c.Request.Context(), userID, pageID, notebooks.PageUpdate{
		Title:   request.Title,
		Content: request.Content,
	})
	if err != nil {
		h.respondError(c, "pages.update", err)
		return
	}
	c.JSON(http.StatusOK, toPagePayload(page))
}

func (h *httpHandler) handleDeletePage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	if err := h.notebooks.DeletePage(c.Request.Context(), userID, pageID); err != nil {
		h.respondError(c, "pages.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMaterializePage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	document, err := h.notebooks.MaterializePage(c.Request.Context(), userID, pageID)
	if err != nil {
		h.respondError(c, "pages.document", err)
		return
	}
	c.JSON(http.StatusOK, toDocumentPayload(document))
}

func (h *httpHandler) handleReconcilePage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	page, err := h.notebooks.ReconcilePage(c.Request.Context(), userID, pageID)
	if err != nil {
		h.respondError(c, "pages.reconcile", err)
		return
	}
	c.JSON(http.StatusOK, toPagePayload(page))
}
