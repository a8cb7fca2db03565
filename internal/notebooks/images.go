package notebooks

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

const (
	opSaveImage   = "notebooks.save_image"
	opListImages  = "notebooks.list_images"
	opGetImage    = "notebooks.get_image"
	opDeleteImage = "notebooks.delete_image"
)

// ImageUpload is the raw content of an uploaded image. An empty ContentType is
// detected from the bytes.
type ImageUpload struct {
	Data        []byte
	FileName    string
	ContentType string
}

// SaveImage attaches an image to the page and appends its marker to the page
// content in the same transaction.
func (s *Service) SaveImage(ctx context.Context, userID, pageID int64, upload ImageUpload) (model.Image, error) {
	if err := s.ready(opSaveImage); err != nil {
		return model.Image{}, err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return model.Image{}, s.fail(opSaveImage, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}
	if len(upload.Data) == 0 {
		return model.Image{}, model.NewValidationError("image content is required")
	}

	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(upload.Data).String()
	}
	fileName := strings.TrimSpace(upload.FileName)
	if fileName != "" {
		fileName = filepath.Base(fileName)
	}

	image := model.Image{
		PageID:      pageID,
		Data:        upload.Data,
		FileName:    fileName,
		ContentType: contentType,
		CreatedAt:   s.now(),
	}
	err := s.stores.Transaction(ctx, func(tx *store.Stores) error {
		if err := tx.Images.Create(ctx, &image); err != nil {
			return err
		}
		_, _, err := reconcilePage(ctx, tx, pageID)
		return err
	})
	if err != nil {
		return model.Image{}, s.fail(opSaveImage, reasonInsert, err, zap.Int64("page_id", pageID))
	}
	s.notify(userID, pageID)
	return image, nil
}

func (s *Service) ListImages(ctx context.Context, userID, pageID int64) ([]model.Image, error) {
	if err := s.ready(opListImages); err != nil {
		return nil, err
	}
	if _, _, err := s.validator.Page(ctx, pageID, userID); err != nil {
		return nil, s.fail(opListImages, reasonAuthorize, err, zap.Int64("page_id", pageID))
	}
	images, err := s.stores.Images.ListByParent(ctx, pageID)
	if err != nil {
		return nil, s.fail(opListImages, reasonQueryFailed, err, zap.Int64("page_id", pageID))
	}
	return images, nil
}

func (s *Service) GetImage(ctx context.Context, userID, imageID int64) (model.Image, error) {
	if err := s.ready(opGetImage); err != nil {
		return model.Image{}, err
	}
	image, _, err := s.validator.Image(ctx, imageID, userID)
	if err != nil {
		return model.Image{}, s.fail(opGetImage, reasonAuthorize, err, zap.Int64("image_id", imageID))
	}
	return image, nil
}

// DeleteImage removes the image. Its marker stays in the page content and resolves
// as a missing reference.
func (s *Service) DeleteImage(ctx context.Context, userID, imageID int64) error {
	if err := s.ready(opDeleteImage); err != nil {
		return err
	}
	image, _, err := s.validator.Image(ctx, imageID, userID)
	if err != nil {
		return s.fail(opDeleteImage, reasonAuthorize, err, zap.Int64("image_id", imageID))
	}
	if err := s.stores.Images.Delete(ctx, imageID); err != nil {
		return s.fail(opDeleteImage, reasonDelete, err, zap.Int64("image_id", imageID))
	}
	s.notify(userID, image.PageID)
	return nil
}
