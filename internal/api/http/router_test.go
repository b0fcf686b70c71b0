package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/clock"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/sequence"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/sla"
	"github.com/spec-kit/helpdesk/internal/storage"
)

const inboundSecret = "inbound-secret"

type testServer struct {
	app     *fiber.App
	store   *memory.Store
	mailbox *domain.Mailbox
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	clk := clock.Real()
	store := memory.NewStore(clk)

	seq, err := sequence.NewGenerator(memory.NewCounter(store, "TKT"), "TKT")
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	dispatcher := events.NewInMemoryDispatcher(logger)
	engine := sla.NewEngine(store, clk, dispatcher, logger, metrics)
	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Sequence:   seq,
		SLA:        engine,
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     logger,
	})
	correlator := service.NewCorrelator(service.CorrelatorDependencies{
		Store:    store,
		Tickets:  tickets,
		Sequence: seq,
		Sink:     storage.NewMemorySink(),
		Logger:   logger,
		Metrics:  metrics,
	})
	tokens := auth.NewTokenManager("test-secret", 15)
	repos := store.Repos()
	admin := service.NewAdminService(store, 4)

	for _, a := range []struct{ name, email, role string }{
		{"Ada", "ada@example.com", string(domain.AgentRoleAdmin)},
		{"Bob", "bob@example.com", string(domain.AgentRoleAgent)},
	} {
		hash, err := auth.HashPassword("correct-horse", 4)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		agent := &domain.Agent{Name: a.name, Email: a.email, PasswordHash: hash, Role: domain.AgentRole(a.role), Active: true}
		if err := repos.Agents.Create(ctx, agent); err != nil {
			t.Fatalf("create agent: %v", err)
		}
	}
	policy := &domain.SLAPolicy{Name: "Normal", Priority: domain.TicketPriorityNormal, FirstResponseHours: 4, ResolutionHours: 24, IsActive: true}
	if err := repos.Policies.Create(ctx, policy); err != nil {
		t.Fatalf("create policy: %v", err)
	}
	mailbox := &domain.Mailbox{Name: "Support", Email: "support@example.com", IsActive: true, PollingIntervalMinutes: 5}
	if err := repos.Mailboxes.Create(ctx, mailbox); err != nil {
		t.Fatalf("create mailbox: %v", err)
	}

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk", "test", map[string]handlers.Pinger{"postgres": nil}),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Auth:           handlers.NewAuthHandler(service.NewAuthService(repos.Agents, tokens, logger)),
		Tickets:        handlers.NewTicketsHandler(tickets, correlator),
		Admin:          handlers.NewAdminHandler(admin),
		Inbound:        handlers.NewInboundHandler(admin, correlator),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.Agents),
		InboundSecret:  inboundSecret,
	})
	return &testServer{app: app, store: store, mailbox: mailbox}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/auth/agents/login", "", map[string]string{
		"email": email, "password": "correct-horse",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("login status = %d (%s)", status, env.Error.Code)
	}
	var data struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Auth.Token == "" {
		t.Fatalf("login payload: %v %s", err, env.Data)
	}
	return data.Auth.Token
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	if status, _ := srv.do(t, http.MethodGet, "/health/live", "", nil, nil); status != http.StatusOK {
		t.Fatalf("live status = %d", status)
	}
	if status, _ := srv.do(t, http.MethodGet, "/health/ready", "", nil, nil); status != http.StatusOK {
		t.Fatalf("ready status = %d, want 200 with disabled postgres", status)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv := newTestServer(t)
	status, env := srv.do(t, http.MethodPost, "/auth/agents/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong-password",
	}, nil)
	if status != http.StatusUnauthorized || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("got %d %q, want 401 UNAUTHORIZED", status, env.Error.Code)
	}
}

func TestTicketRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)
	status, env := srv.do(t, http.MethodGet, "/api/v1/tickets", "", nil, nil)
	if status != http.StatusUnauthorized || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("got %d %q, want 401 UNAUTHORIZED", status, env.Error.Code)
	}
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := srv.login(t, "bob@example.com")

	status, env := srv.do(t, http.MethodPost, "/api/v1/tickets", token, map[string]any{
		"customer_email": "Carol@Example.com",
		"customer_name":  "Carol",
		"subject":        "Printer on fire",
		"body_text":      "Please help",
		"priority":       "NORMAL",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", status, env.Error.Code)
	}
	var created struct {
		ID           string `json:"id"`
		TicketNumber string `json:"ticket_number"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.TicketNumber != "TKT-1" {
		t.Fatalf("ticket_number = %q, want TKT-1", created.TicketNumber)
	}

	status, env = srv.do(t, http.MethodPost, "/api/v1/tickets/"+created.ID+"/messages", token, map[string]any{
		"type": "INTERNAL_NOTE", "body_text": "checking with facilities",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("note status = %d (%s)", status, env.Error.Code)
	}

	status, env = srv.do(t, http.MethodGet, "/api/v1/tickets/"+created.ID, token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d (%s)", status, env.Error.Code)
	}
	var detail struct {
		Messages []struct {
			Type string `json:"type"`
		} `json:"messages"`
		SLA struct {
			FirstResponse struct {
				Status string `json:"status"`
			} `json:"first_response"`
		} `json:"sla"`
	}
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(detail.Messages))
	}
	if detail.SLA.FirstResponse.Status == "" {
		t.Fatal("expected SLA status in ticket detail")
	}

	status, env = srv.do(t, http.MethodGet, "/api/v1/tickets/"+created.ID+"/messages?include_internal=false", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("messages status = %d", status)
	}
	var public []json.RawMessage
	_ = json.Unmarshal(env.Data, &public)
	if len(public) != 1 {
		t.Fatalf("public messages = %d, want 1", len(public))
	}

	status, env = srv.do(t, http.MethodPatch, "/api/v1/tickets/"+created.ID+"/status", token, map[string]string{"status": "BOGUS"}, nil)
	if status != http.StatusBadRequest || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("bad status got %d %q", status, env.Error.Code)
	}

	status, env = srv.do(t, http.MethodPost, "/api/v1/tickets/"+created.ID+"/merge", token, map[string]string{
		"secondary_ticket_id": created.ID,
	}, nil)
	if status != http.StatusBadRequest || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("self merge got %d %q", status, env.Error.Code)
	}

	status, env = srv.do(t, http.MethodGet, "/api/v1/tickets/missing", token, nil, nil)
	if status != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("missing ticket got %d %q", status, env.Error.Code)
	}

	status, env = srv.do(t, http.MethodPatch, "/api/v1/tickets/"+created.ID+"/assignee", token, map[string]string{"assignee_id": "nope"}, nil)
	if status != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("unknown assignee got %d %q", status, env.Error.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{"priority": "HIGH", "first_response_hours": 1, "resolution_hours": 8}

	status, env := srv.do(t, http.MethodPost, "/api/v1/admin/sla-policies", srv.login(t, "bob@example.com"), body, nil)
	if status != http.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("agent got %d %q, want 403", status, env.Error.Code)
	}

	status, env = srv.do(t, http.MethodPost, "/api/v1/admin/sla-policies", srv.login(t, "ada@example.com"), body, nil)
	if status != http.StatusCreated {
		t.Fatalf("admin got %d %q, want 201", status, env.Error.Code)
	}
}

func TestInboundEmailThreading(t *testing.T) {
	srv := newTestServer(t)
	path := "/inbound/mailboxes/" + srv.mailbox.ID + "/emails"
	headers := map[string]string{auth.InboundTokenHeader: inboundSecret}

	first := map[string]any{
		"from_email": "dave@example.com",
		"subject":    "Cannot log in",
		"body_text":  "It says my password expired",
		"message_id": "<m1@mail.example.com>",
	}
	if status, env := srv.do(t, http.MethodPost, path, "", first, nil); status != http.StatusUnauthorized {
		t.Fatalf("missing token got %d %q", status, env.Error.Code)
	}

	status, env := srv.do(t, http.MethodPost, path, "", first, headers)
	if status != http.StatusCreated {
		t.Fatalf("first email got %d %q", status, env.Error.Code)
	}
	var opened struct {
		TicketID string `json:"ticket_id"`
		Strategy string `json:"strategy"`
	}
	_ = json.Unmarshal(env.Data, &opened)

	reply := map[string]any{
		"from_email":  "dave@example.com",
		"subject":     "Re: Cannot log in",
		"body_text":   "Still broken",
		"message_id":  "<m2@mail.example.com>",
		"in_reply_to": "<m1@mail.example.com>",
		"references":  "<m1@mail.example.com>",
	}
	status, env = srv.do(t, http.MethodPost, path, "", reply, headers)
	if status != http.StatusOK {
		t.Fatalf("reply got %d %q", status, env.Error.Code)
	}
	var threaded struct {
		TicketID string `json:"ticket_id"`
		Strategy string `json:"strategy"`
	}
	_ = json.Unmarshal(env.Data, &threaded)
	if threaded.TicketID != opened.TicketID || threaded.Strategy != service.MatchInReplyTo {
		t.Fatalf("reply threaded to %+v, want ticket %s via in_reply_to", threaded, opened.TicketID)
	}
}

func TestMalformedTicketIDIsNotFoundOnPostgres(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	defer mock.Close()

	tickets := service.NewTicketService(service.TicketDependencies{Store: repository.NewPostgresStore(mock)})
	h := handlers.NewTicketsHandler(tickets, nil)
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	app.Get("/tickets/:id", h.GetTicket)
	app.Get("/tickets/:id/sla", h.SLA)

	for _, path := range []string{"/tickets/missing", "/tickets/TKT-1/sla"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
			t.Fatalf("GET %s = %d %q, want 404 NOT_FOUND", path, resp.StatusCode, env.Error.Code)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
