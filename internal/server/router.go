package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/notebooks"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	userIDContextKey    = "notebook_user_id"
	requestIDContextKey = "notebook_request_id"
	requestIDHeader     = "X-Request-ID"
	tokenTypeBearer     = "Bearer"
)

var (
	errMissingIdentity         = errors.New("identity provider dependency required")
	errMissingNotebooksService = errors.New("notebooks service dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingTokenManager     = errors.New("token manager dependency required")
)

// TokenManager issues access tokens after a successful login or registration.
type TokenManager interface {
	IssueToken(ctx context.Context, userID int64) (string, int64, error)
}

type Dependencies struct {
	Identity  auth.IdentityProvider
	Tokens    TokenManager
	Users     *users.Service
	Notebooks *notebooks.Service
	Realtime  *RealtimeDispatcher
	Logger    *zap.Logger
	// CookieName, when set, also delivers issued tokens as an HTTP-only cookie.
	CookieName string
	// AuthDisabled skips the account endpoints when a static identity is in use.
	AuthDisabled bool
	// AllowedOrigins lists browser origins trusted with credentialed requests.
	// An empty list admits every origin without credentials.
	AllowedOrigins []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Identity == nil {
		return nil, errMissingIdentity
	}
	if deps.Notebooks == nil {
		return nil, errMissingNotebooksService
	}
	if !deps.AuthDisabled {
		if deps.Users == nil {
			return nil, errMissingUsersService
		}
		if deps.Tokens == nil {
			return nil, errMissingTokenManager
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		identity:   deps.Identity,
		tokens:     deps.Tokens,
		users:      deps.Users,
		notebooks:  deps.Notebooks,
		realtime:   deps.Realtime,
		cookieName: strings.TrimSpace(deps.CookieName),
		logger:     logger,
	}

	if !deps.AuthDisabled {
		router.POST("/auth/register", handler.handleRegister)
		router.POST("/auth/login", handler.handleLogin)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	if handler.realtime != nil {
		protected.GET("/events", handler.handleRealtimeStream)
	}

	protected.GET("/notebooks", handler.handleListNotebooks)
	protected.POST("/notebooks", handler.handleCreateNotebook)
	protected.GET("/notebooks/:id", handler.handleGetNotebook)
	protected.PUT("/notebooks/:id", handler.handleRenameNotebook)
	protected.DELETE("/notebooks/:id", handler.handleDeleteNotebook)

	protected.GET("/notebooks/:id/pages", handler.handleListPages)
	protected.POST("/notebooks/:id/pages", handler.handleCreatePage)
	protected.GET("/pages/:id", handler.handleGetPage)
	protected.PUT("/pages/:id", handler.handleUpdatePage)
	protected.DELETE("/pages/:id", handler.handleDeletePage)
	protected.GET("/pages/:id/document", handler.handleMaterializePage)
	protected.POST("/pages/:id/reconcile", handler.handleReconcilePage)

	protected.GET("/pages/:id/tables", handler.handleListTables)
	protected.POST("/pages/:id/tables", handler.handleCreateTable)
	protected.GET("/tables/:id", handler.handleGetTable)
	protected.PUT("/tables/:id", handler.handleUpdateTable)
	protected.DELETE("/tables/:id", handler.handleDeleteTable)

	protected.GET("/pages/:id/graphs", handler.handleListGraphs)
	protected.POST("/pages/:id/graphs", handler.handleCreateGraph)
	protected.GET("/graphs/:id", handler.handleGetGraph)
	protected.PUT("/graphs/:id", handler.handleUpdateGraph)
	protected.DELETE("/graphs/:id", handler.handleDeleteGraph)

	protected.GET("/pages/:id/images", handler.handleListImages)
	protected.POST("/pages/:id/images", handler.handleUploadImage)
	protected.GET("/images/:id", handler.handleGetImage)
	protected.GET("/images/:id/content", handler.handleImageContent)
	protected.DELETE("/images/:id", handler.handleDeleteImage)

	return router, nil
}

type httpHandler struct {
	identity   auth.IdentityProvider
	tokens     TokenManager
	users      *users.Service
	notebooks  *notebooks.Service
	realtime   *RealtimeDispatcher
	cookieName string
	logger     *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

// requestIDMiddleware propagates a caller supplied request id or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			if generated, err := uuid.NewV7(); err == nil {
				requestID = generated.String()
			}
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	userID, err := h.identity.CurrentUser(c.Request)
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.String("request_id", c.GetString(requestIDContextKey))}
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", fields...)
		} else {
			h.logger.Warn("token validation failed", fields...)
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "auth.unauthenticated"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func currentUserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := value.(int64)
	return userID, ok && userID > 0
}
