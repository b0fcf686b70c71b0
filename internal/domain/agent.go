package domain

import "time"

// AgentRole enumerates internal operator roles.
type AgentRole string

const (
	AgentRoleAgent    AgentRole = "AGENT"
	AgentRoleTeamLead AgentRole = "TEAM_LEAD"
	AgentRoleAdmin    AgentRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	switch r {
	case AgentRoleAgent, AgentRoleTeamLead, AgentRoleAdmin:
		return true
	}
	return false
}

// Agent models a support agent or administrator.
type Agent struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         AgentRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AsSender returns the agent as a message sender.
func (a *Agent) AsSender() AgentSender {
	return AgentSender{ID: a.ID, Name: a.Name}
}

// Customer is the external requester, identified by lowercased email.
type Customer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AsSender returns the customer as a message sender.
func (c *Customer) AsSender() CustomerSender {
	return CustomerSender{ID: c.ID, Name: c.Name}
}
