package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	agent := &domain.Agent{ID: "a-1", Role: domain.AgentRoleAdmin}

	token, expires, err := tm.GenerateToken(agent)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if d := time.Until(expires); d < 14*time.Minute || d > 15*time.Minute {
		t.Fatalf("expires in %v, want ~15m", d)
	}
	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.AgentID != "a-1" || claims.Role != domain.AgentRoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	agent := &domain.Agent{ID: "a-1", Role: domain.AgentRoleAgent}

	other, _, _ := NewTokenManager("other", 15).GenerateToken(agent)

	expired := NewTokenManager("secret", 1)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, _ := expired.GenerateToken(agent)

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{AgentID: "a-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"wrong secret": other,
		"expired":      stale,
		"alg none":     none,
		"garbage":      "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := tm.ParseToken(token); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := ComparePassword(hash, "hunter2"); err != nil {
		t.Fatalf("ComparePassword: %v", err)
	}
	if err := ComparePassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch")
	}
}

func newAuthApp(t *testing.T, roles ...domain.AgentRole) (*fiber.App, *TokenManager, *memory.Store) {
	t.Helper()
	store := memory.NewStore(clock.Real())
	tm := NewTokenManager("secret", 15)
	mw := NewAuthMiddleware(tm, store.Repos().Agents)

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		de := apperrors.ToDomainError(err)
		return c.Status(de.HTTPStatus).SendString(de.Code)
	}})
	app.Get("/me", mw.Handle, RequireRole(roles...), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.Agent.Email)
	})
	return app, tm, store
}

func TestAuthMiddleware(t *testing.T) {
	app, tm, store := newAuthApp(t, domain.AgentRoleAdmin)
	ctx := context.Background()

	admin := &domain.Agent{Name: "Ada", Email: "ada@example.com", PasswordHash: "x", Role: domain.AgentRoleAdmin, Active: true}
	agent := &domain.Agent{Name: "Bob", Email: "bob@example.com", PasswordHash: "x", Role: domain.AgentRoleAgent, Active: true}
	gone := &domain.Agent{Name: "Eve", Email: "eve@example.com", PasswordHash: "x", Role: domain.AgentRoleAdmin, Active: false}
	for _, a := range []*domain.Agent{admin, agent, gone} {
		if err := store.Repos().Agents.Create(ctx, a); err != nil {
			t.Fatalf("create agent: %v", err)
		}
	}
	token := func(a *domain.Agent) string {
		s, _, err := tm.GenerateToken(a)
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		return "Bearer " + s
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"unknown agent", token(&domain.Agent{ID: "ghost", Role: domain.AgentRoleAdmin}), http.StatusUnauthorized},
		{"inactive agent", token(gone), http.StatusForbidden},
		{"insufficient role", token(agent), http.StatusForbidden},
		{"admin", token(admin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRequireInboundToken(t *testing.T) {
	newApp := func(secret string) *fiber.App {
		app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		}})
		app.Post("/in", RequireInboundToken(secret), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusAccepted) })
		return app
	}

	tests := []struct {
		name, secret, header string
		want                 int
	}{
		{"disabled", "", "anything", http.StatusForbidden},
		{"wrong token", "s3cret", "guess", http.StatusUnauthorized},
		{"valid", "s3cret", "s3cret", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/in", nil)
			req.Header.Set(InboundTokenHeader, tt.header)
			resp, err := newApp(tt.secret).Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
