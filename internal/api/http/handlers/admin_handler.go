package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AdminHandler manages agents, SLA policies and mailboxes.
type AdminHandler struct {
	admin *service.AdminService
}

// NewAdminHandler builds handler.
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{admin: adminService}
}

// CreateAgent POST /api/v1/admin/agents.
func (h *AdminHandler) CreateAgent(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.admin.CreateAgent(c.UserContext(), principal.Agent, service.AgentInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": agentResponse(agent)})
}

// CreatePolicy POST /api/v1/admin/sla-policies.
func (h *AdminHandler) CreatePolicy(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.admin.CreatePolicy(c.UserContext(), principal.Agent, service.PolicyInput{
		Name:               req.Name,
		Priority:           req.Priority,
		FirstResponseHours: req.FirstResponseHours,
		ResolutionHours:    req.ResolutionHours,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// ListPolicies GET /api/v1/admin/sla-policies.
func (h *AdminHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.admin.ListPolicies(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateMailbox POST /api/v1/admin/mailboxes.
func (h *AdminHandler) CreateMailbox(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateMailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	mailbox, err := h.admin.CreateMailbox(c.UserContext(), principal.Agent, service.MailboxInput{
		Name:                   req.Name,
		Email:                  req.Email,
		PollingIntervalMinutes: req.PollingIntervalMinutes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": mailboxResponse(mailbox)})
}

// ListMailboxes GET /api/v1/admin/mailboxes.
func (h *AdminHandler) ListMailboxes(c *fiber.Ctx) error {
	mailboxes, err := h.admin.ListMailboxes(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.MailboxResponse, 0, len(mailboxes))
	for i := range mailboxes {
		items = append(items, mailboxResponse(&mailboxes[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func policyResponse(policy *domain.SLAPolicy) dto.PolicyResponse {
	return dto.PolicyResponse{
		ID:                 policy.ID,
		Name:               policy.Name,
		Priority:           policy.Priority,
		FirstResponseHours: policy.FirstResponseHours,
		ResolutionHours:    policy.ResolutionHours,
		IsActive:           policy.IsActive,
	}
}

func mailboxResponse(mailbox *domain.Mailbox) dto.MailboxResponse {
	return dto.MailboxResponse{
		ID:                     mailbox.ID,
		Name:                   mailbox.Name,
		Email:                  mailbox.Email,
		IsActive:               mailbox.IsActive,
		PollingIntervalMinutes: mailbox.PollingIntervalMinutes,
		LastCheckedAt:          mailbox.LastCheckedAt,
	}
}
