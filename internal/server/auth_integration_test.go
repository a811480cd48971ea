package server

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	rec := performRequest(t, router, http.MethodGet, "/health", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeJSONMap(t, rec)
	if got, _ := body["service"].(string); got != "carebloom-api" {
		t.Fatalf("unexpected service name %q", got)
	}
}

func TestAuthMiddlewareRejections(t *testing.T) {
	resetDatabase(t)
	router := newTestRouter(t)

	rec := performRequest(t, router, http.MethodGet, "/api/v1/care-plans/me", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec = performRequest(t, router, http.MethodGet, "/api/v1/care-plans/me", "not-a-jwt", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token, got %d", rec.Code)
	}

	// Valid signature, but the subject does not exist and auto-create is off.
	token := signToken(t, testID(), nil)
	rec = performRequest(t, router, http.MethodGet, "/api/v1/care-plans/me", token, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", rec.Code)
	}
	if detail := responseDetail(t, rec); detail != "User not found" {
		t.Fatalf("unexpected detail %q", detail)
	}

	noSub := signToken(t, "", nil)
	rec = performRequest(t, router, http.MethodGet, "/api/v1/care-plans/me", noSub, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing subject, got %d", rec.Code)
	}
}

func TestAuthAutoCreateUser(t *testing.T) {
	resetDatabase(t)
	cfg := baseTestConfig
	cfg.AuthAutoCreateUser = true
	router := newTestRouterWithConfig(t, cfg)

	userID := testID()
	token := signTokenWithConfig(t, cfg, userID, map[string]any{
		"provider": "google",
		"name":     "Test Parent",
	})

	// 404 means auth passed and the user row was created on the fly.
	rec := performRequest(t, router, http.MethodGet, "/api/v1/care-plans/me", token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after auto-create, got %d: %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var provider, name string
	err := testPool.QueryRow(
		ctx,
		`SELECT provider, name FROM "User" WHERE id = $1`,
		userID,
	).Scan(&provider, &name)
	if err != nil {
		t.Fatalf("expected auto-created user row: %v", err)
	}
	if provider != "google" || name != "Test Parent" {
		t.Fatalf("unexpected auto-created user: %q %q", provider, name)
	}
}

func TestAuthAudienceEnforcement(t *testing.T) {
	resetDatabase(t)
	cfg := baseTestConfig
	cfg.JWTAudience = "carebloom-app"
	router := newTestRouterWithConfig(t, cfg)
	userID := seedUser(t, "")

	good := signTokenWithConfig(t, cfg, userID, nil)
	rec := performRequest(t, router, http.MethodGet, "/api/v1/care-plans/me", good, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected matching audience to pass auth, got %d", rec.Code)
	}

	bad := signTokenWithConfig(t, cfg, userID, map[string]any{"aud": "someone-else"})
	rec = performRequest(t, router, http.MethodGet, "/api/v1/care-plans/me", bad, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong audience, got %d", rec.Code)
	}
}
