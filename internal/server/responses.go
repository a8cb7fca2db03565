package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/model"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/notebooks"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInvalidRequest = "request.invalid"
	codeInternal       = "internal_error"
)

// respondError maps service failures onto HTTP statuses. Unexpected failures are
// logged with their service code and reported without detail.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	var (
		notFound   *model.NotFoundError
		forbidden  *model.ForbiddenError
		validation *model.ValidationError
		serviceErr *notebooks.ServiceError
	)
	switch {
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": forbidden.Kind.String() + ".forbidden"})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error(), "code": "validation.invalid"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "code": notFound.Kind.String() + ".not_found"})
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials", "code": "auth.invalid_credentials"})
	case errors.Is(err, users.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username_taken", "code": "auth.username_taken"})
	case errors.Is(err, users.ErrInvalidAccount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "auth.invalid_account"})
	case errors.As(err, &serviceErr):
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", serviceErr.Code()),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": codeInternal, "code": serviceErr.Code()})
	default:
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": codeInternal, "code": codeInternal})
	}
}

func respondInvalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message, "code": codeInvalidRequest})
}

// pathID parses the :id route parameter for the given entity kind.
func pathID(c *gin.Context, kind model.EntityKind) (int64, bool) {
	id, err := model.ParseEntityID(kind, c.Param("id"))
	if err != nil {
		respondInvalidRequest(c, err.Error())
		return 0, false
	}
	return id, true
}

func requireUser(c *gin.Context) (int64, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "auth.unauthenticated"})
		return 0, false
	}
	return userID, true
}
