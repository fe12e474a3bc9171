package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/yapp/internal/auth"
	"github.com/MarcoPoloResearchLab/yapp/internal/metrics"
	"github.com/MarcoPoloResearchLab/yapp/internal/posts"
	"github.com/MarcoPoloResearchLab/yapp/internal/users"
)

const testSigningSecret = "test-signing-secret"

type testServer struct {
	server     *httptest.Server
	issuer     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
	metrics    *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:yapp_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(append(posts.Models(), &users.Profile{})...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	postsService, err := posts.NewService(posts.ServiceConfig{
		Database:   db,
		IDProvider: posts.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct posts service: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        auth.DefaultIssuer,
		Audience:      auth.DefaultAudience,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}

	collectors := metrics.New()
	dispatcher := NewRealtimeDispatcherWithHooks(RealtimeHooks{
		OnJoin:  collectors.SubscriberJoined,
		OnLeave: collectors.SubscriberLeft,
		OnDrop:  collectors.FrameDropped,
	})
	handler, err := NewHTTPHandler(Dependencies{
		Validator:    validator,
		PostsService: postsService,
		UsersService: usersService,
		Realtime:     dispatcher,
		Metrics:      collectors,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testServer{server: server, issuer: issuer, dispatcher: dispatcher, metrics: collectors}
}

func (s *testServer) token(t *testing.T, email, name string) string {
	t.Helper()
	token, _, err := s.issuer.IssueToken(context.Background(), auth.Profile{Email: email, DisplayName: name})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response.StatusCode, payload
}
