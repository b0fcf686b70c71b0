package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler exposes the agent ticket workspace.
type TicketsHandler struct {
	service    *service.TicketService
	correlator *service.Correlator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, correlator *service.Correlator) *TicketsHandler {
	return &TicketsHandler{service: ticketService, correlator: correlator}
}

// CreateTicket POST /api/v1/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	if _, err := requirePrincipal(c); err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.CustomerEmail) == "" || strings.TrimSpace(req.Subject) == "" {
		return apperrors.NewValidationError("customer_email and subject required", nil)
	}
	customer, err := h.service.ResolveCustomer(c.UserContext(), req.CustomerEmail, req.CustomerName)
	if err != nil {
		return err
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), service.TicketCreateInput{
		Subject:  req.Subject,
		BodyText: req.BodyText,
		BodyHTML: req.BodyHTML,
		Priority: req.Priority,
		Tags:     req.Tags,
	}, customer)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /api/v1/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListTickets(c.UserContext(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/v1/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := c.Params("id")
	ticket, err := h.service.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := h.service.ListMessages(ctx, id, true)
	if err != nil {
		return err
	}
	status, err := h.service.SLAStatus(ctx, id)
	if err != nil {
		return err
	}
	resp := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Messages:      messageResponses(msgs),
		SLA:           status,
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ListMessages GET /api/v1/tickets/:id/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	includeInternal := c.QueryBool("include_internal", true)
	msgs, err := h.service.ListMessages(c.UserContext(), c.Params("id"), includeInternal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": messageResponses(msgs)})
}

// AddMessage POST /api/v1/tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msgType := req.Type
	if msgType == "" {
		msgType = domain.MessageTypeReply
	}
	msg, err := h.service.AddMessage(c.UserContext(), c.Params("id"), service.MessageInput{
		Type:     msgType,
		Sender:   principal.Sender(),
		BodyText: req.BodyText,
		BodyHTML: req.BodyHTML,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// UpdateStatus PATCH /api/v1/tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdateStatus(c.UserContext(), c.Params("id"), req.Status, principal.Sender())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// UpdatePriority PATCH /api/v1/tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.UpdatePriority(c.UserContext(), c.Params("id"), req.Priority, principal.Sender())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign PATCH /api/v1/tickets/:id/assignee.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.AssignTicket(c.UserContext(), c.Params("id"), req.AssigneeID, principal.Sender())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Merge POST /api/v1/tickets/:id/merge.
func (h *TicketsHandler) Merge(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	primaryID := c.Params("id")
	if req.SecondaryTicketID == "" || req.SecondaryTicketID == primaryID {
		return apperrors.NewValidationError("secondary_ticket_id must name a different ticket", nil)
	}
	ticket, err := h.service.MergeTickets(c.UserContext(), primaryID, req.SecondaryTicketID, principal.Sender())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// SLA GET /api/v1/tickets/:id/sla.
func (h *TicketsHandler) SLA(c *fiber.Ctx) error {
	status, err := h.service.SLAStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": status})
}

// History GET /api/v1/tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	entries, err := h.service.ListHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// OutboundHeaders GET /api/v1/tickets/:id/outbound-headers.
func (h *TicketsHandler) OutboundHeaders(c *fiber.Ctx) error {
	headers, err := h.correlator.BuildOutboundHeaders(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": headers})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return nil, apperrors.NewUnauthorized("agent required")
	}
	return principal, nil
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if v := c.Query("customer_id"); v != "" {
		filter.CustomerID = &v
	}
	if v := c.Query("assignee_id"); v != "" {
		filter.AssigneeID = &v
	}
	for _, s := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(s)))
	}
	for _, p := range splitList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(p)))
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	return filter
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	tags := ticket.Tags
	if tags == nil {
		tags = []string{}
	}
	return dto.TicketSummary{
		ID:             ticket.ID,
		TicketNumber:   ticket.TicketNumber,
		Subject:        ticket.Subject,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		CustomerID:     ticket.CustomerID,
		AssigneeID:     ticket.AssigneeID,
		MailboxID:      ticket.MailboxID,
		Tags:           tags,
		LastActivityAt: ticket.LastActivityAt,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

func messageResponses(messages []domain.Message) []dto.TicketMessageResponse {
	out := make([]dto.TicketMessageResponse, 0, len(messages))
	for i := range messages {
		out = append(out, messageResponse(&messages[i]))
	}
	return out
}

func messageResponse(msg *domain.Message) dto.TicketMessageResponse {
	resp := dto.TicketMessageResponse{
		ID:          msg.ID,
		Type:        msg.Type,
		BodyText:    msg.BodyText,
		BodyHTML:    msg.BodyHTML,
		MessageID:   msg.MessageID,
		InReplyTo:   msg.InReplyTo,
		References:  msg.References,
		Attachments: make([]dto.AttachmentResponse, 0, len(msg.Attachments)),
		CreatedAt:   msg.CreatedAt,
	}
	if msg.Sender != nil {
		resp.SenderType = msg.Sender.Kind()
		resp.SenderID = msg.Sender.SenderID()
		resp.SenderName = msg.Sender.SenderName()
	}
	for _, att := range msg.Attachments {
		resp.Attachments = append(resp.Attachments, dto.AttachmentResponse{
			ID:          att.ID,
			FileName:    att.FileName,
			MimeType:    att.MimeType,
			SizeBytes:   att.SizeBytes,
			StoragePath: att.StoragePath,
		})
	}
	return resp
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		item := dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		}
		if entry.ChangedBy != nil {
			item.ChangedByType = entry.ChangedBy.Kind()
			item.ChangedByID = entry.ChangedBy.SenderID()
			item.ChangedByName = entry.ChangedBy.SenderName()
		}
		resp = append(resp, item)
	}
	return resp
}
