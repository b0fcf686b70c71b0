package service

import (
	"context"
	"errors"
	"strings"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AdminService manages agents, SLA policies and mailboxes.
type AdminService struct {
	store      repository.Store
	bcryptCost int
}

// NewAdminService constructs the service. A non-positive bcryptCost uses the default.
func NewAdminService(store repository.Store, bcryptCost int) *AdminService {
	return &AdminService{store: store, bcryptCost: bcryptCost}
}

func requireAdmin(actor *domain.Agent) error {
	if actor == nil || actor.Role != domain.AgentRoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// AgentInput carries the fields of a new agent.
type AgentInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.AgentRole
}

// CreateAgent registers an agent with a hashed password.
func (s *AdminService) CreateAgent(ctx context.Context, actor *domain.Agent, input AgentInput) (*domain.Agent, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" || len(input.Password) < 8 {
		return nil, apperrors.NewValidationError("name, email and a password of at least 8 characters are required", nil)
	}
	role := input.Role
	if role == "" {
		role = domain.AgentRoleAgent
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": role})
	}
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	agent := &domain.Agent{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := s.store.Repos().Agents.Create(ctx, agent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("agent email already registered", map[string]any{"email": email})
		}
		return nil, err
	}
	return agent, nil
}

// EnsureAdmin creates an ADMIN agent for email unless one is already registered.
// It reports whether an agent was created.
func (s *AdminService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := s.store.Repos().Agents.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	system := &domain.Agent{Role: domain.AgentRoleAdmin}
	_, err = s.CreateAgent(ctx, system, AgentInput{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     domain.AgentRoleAdmin,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// PolicyInput carries the fields of a new SLA policy.
type PolicyInput struct {
	Name               string
	Priority           domain.TicketPriority
	FirstResponseHours float64
	ResolutionHours    float64
}

// CreatePolicy adds an active SLA policy. Each priority has at most one active policy.
func (s *AdminService) CreatePolicy(ctx context.Context, actor *domain.Agent, input PolicyInput) (*domain.SLAPolicy, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": input.Priority})
	}
	if input.FirstResponseHours <= 0 || input.ResolutionHours <= 0 {
		return nil, apperrors.NewValidationError("SLA hours must be positive", nil)
	}
	policy := &domain.SLAPolicy{
		Name:               strings.TrimSpace(input.Name),
		Priority:           input.Priority,
		FirstResponseHours: input.FirstResponseHours,
		ResolutionHours:    input.ResolutionHours,
		IsActive:           true,
	}
	if policy.Name == "" {
		policy.Name = string(input.Priority)
	}
	if err := s.store.Repos().Policies.Create(ctx, policy); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("an active policy already exists for this priority", map[string]any{"priority": input.Priority})
		}
		return nil, err
	}
	return policy, nil
}

// ListPolicies returns every SLA policy.
func (s *AdminService) ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error) {
	return s.store.Repos().Policies.List(ctx)
}

// MailboxInput carries the fields of a new mailbox.
type MailboxInput struct {
	Name                   string
	Email                  string
	PollingIntervalMinutes int
}

// CreateMailbox registers an inbound mailbox.
func (s *AdminService) CreateMailbox(ctx context.Context, actor *domain.Agent, input MailboxInput) (*domain.Mailbox, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewValidationError("mailbox email is required", nil)
	}
	interval := input.PollingIntervalMinutes
	if interval <= 0 {
		interval = 5
	}
	mailbox := &domain.Mailbox{
		Name:                   strings.TrimSpace(input.Name),
		Email:                  email,
		IsActive:               true,
		PollingIntervalMinutes: interval,
	}
	if err := s.store.Repos().Mailboxes.Create(ctx, mailbox); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("mailbox already exists", map[string]any{"email": email})
		}
		return nil, err
	}
	return mailbox, nil
}

// ListMailboxes returns the active mailboxes.
func (s *AdminService) ListMailboxes(ctx context.Context) ([]domain.Mailbox, error) {
	return s.store.Repos().Mailboxes.ListActive(ctx)
}

// GetMailbox fetches a mailbox by id.
func (s *AdminService) GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error) {
	mailbox, err := s.store.Repos().Mailboxes.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("mailbox", id, err)
	}
	return mailbox, nil
}
