package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	Inbound        *handlers.InboundHandler
	AuthMiddleware *auth.AuthMiddleware
	InboundSecret  string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/internal/metrics", cfg.Metrics.Snapshot)

	authGroup := app.Group("/auth")
	authGroup.Post("/agents/login", cfg.Auth.Login)

	inbound := app.Group("/inbound", auth.RequireInboundToken(cfg.InboundSecret))
	inbound.Post("/mailboxes/:id/emails", cfg.Inbound.ReceiveEmail)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", cfg.Tickets.UpdatePriority)
	tickets.Patch("/:id/assignee", cfg.Tickets.Assign)
	tickets.Post("/:id/merge", cfg.Tickets.Merge)
	tickets.Get("/:id/sla", cfg.Tickets.SLA)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Get("/:id/outbound-headers", cfg.Tickets.OutboundHeaders)

	admin := api.Group("/admin", auth.RequireRole(domain.AgentRoleAdmin))
	admin.Post("/agents", cfg.Admin.CreateAgent)
	admin.Get("/sla-policies", cfg.Admin.ListPolicies)
	admin.Post("/sla-policies", cfg.Admin.CreatePolicy)
	admin.Get("/mailboxes", cfg.Admin.ListMailboxes)
	admin.Post("/mailboxes", cfg.Admin.CreateMailbox)
}
