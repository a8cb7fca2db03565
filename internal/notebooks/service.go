// Package notebooks implements entity-level operations on notebooks, pages and page
// attachments. Every operation authorizes the acting user through the ownership
// chain before it touches the store; creation authorizes the parent instead.
package notebooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/access"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/markers"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/store"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/tablecodec"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError wraps unexpected failures with a dotted operation.reason code.
// Ownership and validation failures are returned as the model error types instead.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "notebooks.service.new"
	reasonAuthorize   = "authorize_failed"
	reasonQueryFailed = "query_failed"
	reasonInsert      = "insert_failed"
	reasonUpdate      = "update_failed"
	reasonDelete      = "delete_failed"
	reasonReconcile   = "reconcile_failed"
	reasonResolve     = "resolve_failed"
	maxTitleLength    = 512
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ChangeNotifier is told which pages of a user changed content or attachments.
type ChangeNotifier interface {
	PageChanged(userID int64, pageIDs ...int64)
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	Notifier ChangeNotifier
}

type Service struct {
	stores    *store.Stores
	validator *access.Validator
	codec     *tablecodec.Codec
	resolver  *markers.Resolver
	clock     func() time.Time
	logger    *zap.Logger
	notifier  ChangeNotifier
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	stores, err := store.New(cfg.Database)
	if err != nil {
		return nil, newServiceError(opServiceNew, "missing_stores", err)
	}
	validator, err := access.NewValidator(stores, logger)
	if err != nil {
		return nil, newServiceError(opServiceNew, "missing_validator", err)
	}
	resolver, err := markers.NewResolver(storeLookup{stores: stores}, logger)
	if err != nil {
		return nil, newServiceError(opServiceNew, "missing_resolver", err)
	}

	return &Service{
		stores:    stores,
		validator: validator,
		codec:     tablecodec.NewCodec(logger),
		resolver:  resolver,
		clock:     clock,
		logger:    logger,
		notifier:  cfg.Notifier,
	}, nil
}

// Validator exposes the ownership validator used by every operation.
func (s *Service) Validator() *access.Validator {
	return s.validator
}

func (s *Service) ready(operation string) error {
	if s == nil || s.stores == nil || s.validator == nil {
		s.logError(operation, "missing_database", errMissingDatabase)
		return newServiceError(operation, "missing_database", errMissingDatabase)
	}
	return nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// fail passes ownership and validation errors through and wraps everything else.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	if isDomainError(err) {
		return err
	}
	s.logError(operation, reason, err, fields...)
	return newServiceError(operation, reason, err)
}

func isDomainError(err error) bool {
	return errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrForbidden) ||
		errors.Is(err, model.ErrValidation)
}

func (s *Service) notify(userID int64, pageIDs ...int64) {
	if s.notifier == nil || len(pageIDs) == 0 {
		return
	}
	s.notifier.PageChanged(userID, pageIDs...)
}

func normalizeTitle(kind model.EntityKind, title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", model.NewValidationError(fmt.Sprintf("%s title is required", kind))
	}
	if len(trimmed) > maxTitleLength {
		return "", model.NewValidationError(fmt.Sprintf("%s title exceeds %d characters", kind, maxTitleLength))
	}
	return trimmed, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notebooks service error", attrs...)
}

type storeLookup struct {
	stores *store.Stores
}

func (l storeLookup) Table(ctx context.Context, id int64) (model.Table, error) {
	return l.stores.Tables.Get(ctx, id)
}

func (l storeLookup) Image(ctx context.Context, id int64) (model.Image, error) {
	return l.stores.Images.Get(ctx, id)
}
