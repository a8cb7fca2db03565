package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		respondInvalidRequest(c, "invalid_request")
		return
	}

	user, err := h.users.Register(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.respondError(c, "auth.register", err)
		return
	}
	h.respondWithToken(c, http.StatusCreated, user.ID, user.Username)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		respondInvalidRequest(c, "invalid_request")
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.logger.Info("login rejected", zap.String("username", request.Username), zap.Error(err))
		h.respondError(c, "auth.login", err)
		return
	}
	h.respondWithToken(c, http.StatusOK, user.ID, user.Username)
}

func (h *httpHandler) respondWithToken(c *gin.Context, status int, userID int64, username string) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed", "code": "auth.token_issue_failed"})
		return
	}
	if h.cookieName != "" {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(h.cookieName, token, int(expiresIn), "/", "", false, true)
	}
	c.JSON(status, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   tokenTypeBearer,
		UserID:      userID,
		Username:    username,
	})
}
