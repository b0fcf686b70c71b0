package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// InboundHandler accepts normalized emails pushed by a mail gateway.
type InboundHandler struct {
	admin      *service.AdminService
	correlator *service.Correlator
}

// NewInboundHandler builds handler.
func NewInboundHandler(adminService *service.AdminService, correlator *service.Correlator) *InboundHandler {
	return &InboundHandler{admin: adminService, correlator: correlator}
}

// ReceiveEmail POST /inbound/mailboxes/:id/emails.
func (h *InboundHandler) ReceiveEmail(c *fiber.Ctx) error {
	ctx := c.UserContext()
	mailbox, err := h.admin.GetMailbox(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	if !mailbox.IsActive {
		return apperrors.NewForbidden("mailbox is inactive")
	}
	var rec domain.EmailRecord
	if err := c.BodyParser(&rec); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.correlator.ProcessInboundEmail(ctx, rec, mailbox)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.InboundEmailResponse{
		TicketID:     result.Ticket.ID,
		TicketNumber: result.Ticket.TicketNumber,
		MessageID:    result.Message.ID,
		Strategy:     result.Strategy,
		Created:      result.Created,
	}})
}
