package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notebook/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/database"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/notebooks"
	"github.com/MarcoPoloResearchLab/notebook/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testSigningSecret = "server-test-signing-secret"
	testCookieName    = "notebook_session"
	jsonContentType   = "application/json"
)

type testAPI struct {
	handler    http.Handler
	db         *gorm.DB
	issuer     *auth.TokenIssuer
	users      *users.Service
	notebooks  *notebooks.Service
	dispatcher *RealtimeDispatcher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	userService, err := users.NewService(users.ServiceConfig{Database: db, HashCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	notebookService, err := notebooks.NewService(notebooks.ServiceConfig{Database: db, Notifier: dispatcher})
	if err != nil {
		t.Fatalf("failed to build notebooks service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	identity, err := auth.NewBearerIdentity(issuer, testCookieName)
	if err != nil {
		t.Fatalf("failed to build identity: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Identity:   identity,
		Tokens:     issuer,
		Users:      userService,
		Notebooks:  notebookService,
		Realtime:   dispatcher,
		Logger:     zap.NewNop(),
		CookieName: testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &testAPI{
		handler:    handler,
		db:         db,
		issuer:     issuer,
		users:      userService,
		notebooks:  notebookService,
		dispatcher: dispatcher,
	}
}

// register creates an account through the API and returns its access token.
func (api *testAPI) register(t *testing.T, username string) string {
	t.Helper()
	recorder := api.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"password": "correct horse battery",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register %s: unexpected status %d: %s", username, recorder.Code, recorder.Body.String())
	}
	var response authResponsePayload
	decodeBody(t, recorder, &response)
	if response.AccessToken == "" {
		t.Fatalf("register %s: expected access token", username)
	}
	return response.AccessToken
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	api.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}
