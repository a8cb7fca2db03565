package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/notebooks"
	"github.com/gin-gonic/gin"
)

const (
	imageFormField      = "file"
	maxImageBytes       = 10 << 20
	fallbackContentType = "application/octet-stream"
)

func (h *httpHandler) handleListTables(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	views, err := h.notebooks.ListTables(c.Request.Context(), userID, pageID)
	if err != nil {
		h.respondError(c, "tables.list", err)
		return
	}
	response := make([]tablePayload, 0, len(views))
	for _, view := range views {
		response = append(response, toTablePayload(view))
	}
	c.JSON(http.StatusOK, gin.H{"tables": response})
}

func (h *httpHandler) handleCreateTable(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	var request tableRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	view, err := h.notebooks.CreateTable(c.Request.Context(), userID, pageID, request.Rows)
	if err != nil {
		h.respondError(c, "tables.create", err)
		return
	}
	c.JSON(http.StatusCreated, toTablePayload(view))
}

func (h *httpHandler) handleGetTable(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, model.EntityKindTable)
	if !ok {
		return
	}
	view, err := h.notebooks.GetTable(c.Request.Context(), userID, tableID)
	if err != nil {
		h.respondError(c, "tables.get", err)
		return
	}
	c.JSON(http.StatusOK, toTablePayload(view))
}

func (h *httpHandler) handleUpdateTable(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, model.EntityKindTable)
	if !ok {
		return
	}
	var request tableRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	view, err := h.notebooks.UpdateTable(c.Request.Context(), userID, tableID, request.Rows)
	if err != nil {
		h.respondError(c, "tables.update", err)
		return
	}
	c.JSON(http.StatusOK, toTablePayload(view))
}

func (h *httpHandler) handleDeleteTable(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	tableID, ok := pathID(c, model.EntityKindTable)
	if !ok {
		return
	}
	if err := h.notebooks.DeleteTable(c.Request.Context(), userID, tableID); err != nil {
		h.respondError(c, "tables.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListGraphs(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	graphs, err := h.notebooks.ListGraphs(c.Request.Context(), userID, pageID)
	if err != nil {
		h.respondError(c, "graphs.list", err)
		return
	}
	response := make([]graphPayload, 0, len(graphs))
	for _, graph := range graphs {
		response = append(response, toGraphPayload(graph))
	}
	c.JSON(http.StatusOK, gin.H{"graphs": response})
}

func (h *httpHandler) handleCreateGraph(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	var request graphRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	graph, err := h.notebooks.CreateGraph(c.Request.Context(), userID, pageID, notebooks.GraphInput{
		Kind:    request.Kind,
		TableID: request.TableID,
		Config:  request.Config,
	})
	if err != nil {
		h.respondError(c, "graphs.create", err)
		return
	}
	c.JSON(http.StatusCreated, toGraphPayload(graph))
}

func (h *httpHandler) handleGetGraph(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	graphID, ok := pathID(c, model.EntityKindGraph)
	if !ok {
		return
	}
	graph, err := h.notebooks.GetGraph(c.Request.Context(), userID, graphID)
	if err != nil {
		h.respondError(c, "graphs.get", err)
		return
	}
	c.JSON(http.StatusOK, toGraphPayload(graph))
}

func (h *httpHandler) handleUpdateGraph(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	graphID, ok := pathID(c, model.EntityKindGraph)
	if !ok {
		return
	}
	var request graphRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "invalid_request")
		return
	}
	graph, err := h.notebooks.UpdateGraph(c.Request.Context(), userID, graphID, notebooks.GraphInput{
		Kind:    request.Kind,
		TableID: request.TableID,
		Config:  request.Config,
	})
	if err != nil {
		h.respondError(c, "graphs.update", err)
		return
	}
	c.JSON(http.StatusOK, toGraphPayload(graph))
}

func (h *httpHandler) handleDeleteGraph(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	graphID, ok := pathID(c, model.EntityKindGraph)
	if !ok {
		return
	}
	if err := h.notebooks.DeleteGraph(c.Request.Context(), userID, graphID); err != nil {
		h.respondError(c, "graphs.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListImages(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}
	images, err := h.notebooks.ListImages(c.Request.Context(), userID, pageID)
	if err != nil {
		h.respondError(c, "images.list", err)
		return
	}
	response := make([]imagePayload, 0, len(images))
	for _, image := range images {
		response = append(response, toImagePayload(image))
	}
	c.JSON(http.StatusOK, gin.H{"images": response})
}

func (h *httpHandler) handleUploadImage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	pageID, ok := pathID(c, model.EntityKindPage)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes+(1<<20))
	header, err := c.FormFile(imageFormField)
	if err != nil {
		respondInvalidRequest(c, "missing_file")
		return
	}
	if header.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image_too_large", "code": "images.too_large"})
		return
	}
	file, err := header.Open()
	if err != nil {
		respondInvalidRequest(c, "unreadable_file")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		respondInvalidRequest(c, "unreadable_file")
		return
	}

	image, err := h.notebooks.SaveImage(c.Request.Context(), userID, pageID, notebooks.ImageUpload{
		Data:        data,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		h.respondError(c, "images.upload", err)
		return
	}
	c.JSON(http.StatusCreated, toImagePayload(image))
}

func (h *httpHandler) handleGetImage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	imageID, ok := pathID(c, model.EntityKindImage)
	if !ok {
		return
	}
	image, err := h.notebooks.GetImage(c.Request.Context(), userID, imageID)
	if err != nil {
		h.respondError(c, "images.get", err)
		return
	}
	c.JSON(http.StatusOK, toImagePayload(image))
}

func (h *httpHandler) handleImageContent(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	imageID, ok := pathID(c, model.EntityKindImage)
	if !ok {
		return
	}
	image, err := h.notebooks.GetImage(c.Request.Context(), userID, imageID)
	if err != nil {
		h.respondError(c, "images.content", err)
		return
	}
	contentType := image.ContentType
	if contentType == "" {
		contentType = fallbackContentType
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Disposition", contentDisposition(contentType, image.FileName))
	c.Data(http.StatusOK, contentType, image.Data)
}

// contentDisposition renders raster images inline and forces a download for
// everything else, SVG included.
func contentDisposition(contentType, fileName string) string {
	disposition := "attachment"
	if isInlineImage(contentType) {
		disposition = "inline"
	}
	if fileName == "" {
		return disposition
	}
	return fmt.Sprintf("%s; filename=%q", disposition, fileName)
}

func isInlineImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

func (h *httpHandler) handleDeleteImage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	imageID, ok := pathID(c, model.EntityKindImage)
	if !ok {
		return
	}
	if err := h.notebooks.DeleteImage(c.Request.Context(), userID, imageID); err != nil {
		h.respondError(c, "images.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}
