package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"carebloom/backend/internal/config"
)

type dbQuerier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type App struct {
	cfg      config.Config
	db       *pgxpool.Pool
	clusters *clusterStore
}

type AuthUser struct {
	ID          string
	Provider    string
	ProviderUID *string
	Phone       *string
	Name        string
}

// New loads the clustering bundle once; a missing or unreadable artifact
// degrades to the built-in archetype profiles, never to an error.
func New(cfg config.Config, db *pgxpool.Pool) *App {
	return &App{
		cfg:      cfg,
		db:       db,
		clusters: loadClusterStore(cfg.ModelBundlePath),
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)

	api := router.Group(a.cfg.APIPrefix)
	api.Use(a.authMiddleware())

	api.POST("/care-plans/generate", a.generateCarePlan)
	api.GET("/care-plans/me", a.getMyCarePlan)
	api.POST("/care-plans/tasks/complete", a.completeCarePlanTask)
	api.POST("/care-plans/regenerate", a.regenerateCarePlan)
	api.GET("/care-plans/clusters", a.getClusterInsights)
	api.POST("/care-plans/predict-cluster", a.predictUserCluster)
	api.POST("/checkins", a.createCheckIn)
	api.GET("/checkins/recent", a.getRecentCheckIns)
	api.POST("/chat/messages", a.createChatMessage)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "carebloom-api",
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(a.cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
			writeError(c, http.StatusUnauthorized, "Invalid token audience")
			return
		}
		if a.cfg.JWTIssuer != "" {
			issuer, _ := claims["iss"].(string)
			if issuer != a.cfg.JWTIssuer {
				writeError(c, http.StatusUnauthorized, "Invalid token issuer")
				return
			}
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		user, err := a.getOrCreateUser(c.Request.Context(), sub, claims)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}

		c.Set("authUser", user)
		c.Next()
	}
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func providerFromClaim(raw any) string {
	if s, ok := raw.(string); ok {
		switch s {
		case "apple", "google", "phone":
			return s
		}
	}
	return "phone"
}

func toOptionalString(raw any) *string {
	if s, ok := raw.(string); ok {
		trimmed := strings.TrimSpace(s)
		if trimmed != "" {
			return &trimmed
		}
	}
	return nil
}

func (a *App) getOrCreateUser(ctx context.Context, userID string, claims jwt.MapClaims) (AuthUser, error) {
	user := AuthUser{}
	var providerUID *string
	var phone *string

	err := a.db.QueryRow(
		ctx,
		`SELECT id, provider, "providerUid", phone, name FROM "User" WHERE id = $1`,
		userID,
	).Scan(&user.ID, &user.Provider, &providerUID, &phone, &user.Name)
	if err == nil {
		user.ProviderUID = providerUID
		user.Phone = phone
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return AuthUser{}, err
	}
	if !a.cfg.AuthAutoCreateUser {
		return AuthUser{}, errors.New("User not found")
	}

	provider := providerFromClaim(claims["provider"])
	providerUID = toOptionalString(claims["provider_uid"])
	phone = toOptionalString(claims["phone"])

	name := ""
	if rawName, ok := claims["name"].(string); ok {
		name = strings.TrimSpace(rawName)
	}
	if name == "" {
		name = fmt.Sprintf("user-%s", truncate(userID, 8))
	}

	if _, err := a.db.Exec(
		ctx,
		`INSERT INTO "User" (id, provider, "providerUid", phone, name, "createdAt")
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		userID,
		provider,
		providerUID,
		phone,
		name,
	); err != nil {
		return AuthUser{}, err
	}

	return AuthUser{
		ID:          userID,
		Provider:    provider,
		ProviderUID: providerUID,
		Phone:       phone,
		Name:        name,
	}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}

func authUserFromContext(c *gin.Context) (AuthUser, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return AuthUser{}, false
	}
	user, ok := raw.(AuthUser)
	return user, ok
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func parseJSONStringMap(input []byte) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	var result map[string]any
	if err := json.Unmarshal(input, &result); err != nil || result == nil {
		return map[string]any{}
	}
	return result
}

func parseJSONStringList(input []byte) []map[string]any {
	if len(input) == 0 {
		return nil
	}
	var result []map[string]any
	if err := json.Unmarshal(input, &result); err != nil {
		return nil
	}
	return result
}
