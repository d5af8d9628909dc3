package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// RouteTarget names the designated agent a new ticket is routed to.
type RouteTarget string

const (
	RouteNone           RouteTarget = ""
	RouteAutomationLead RouteTarget = "automation_lead"
	RouteSpecialist     RouteTarget = "specialist"
)

const automationCategory = "automação"

// automationServices are the services owned by the automation lead inside the sistemas team.
var automationServices = setOf(
	"rpa",
	"power automate",
	"robôs",
	"robos",
	"integrações",
	"integracoes",
	"automação de relatórios",
)

var ecalcAliases = setOf("ecalc", "e-calc", "e calc", "e_calc")

func setOf(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// AssignmentAttrs are the ticket attributes routing depends on.
type AssignmentAttrs struct {
	Team     domain.Team
	Category string
	Service  string
}

// Route applies the routing rules in priority order; the first match wins.
func Route(attrs AssignmentAttrs) RouteTarget {
	category := normalize(attrs.Category)
	service := normalize(attrs.Service)

	if attrs.Team == domain.TeamSistemas {
		if category == automationCategory {
			return RouteAutomationLead
		}
		if _, ok := automationServices[service]; ok {
			return RouteAutomationLead
		}
	}
	if _, ok := ecalcAliases[service]; ok {
		return RouteSpecialist
	}
	if strings.Contains(service, "questor") || strings.Contains(category, "questor") {
		return RouteSpecialist
	}
	return RouteNone
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// AgentDirectory resolves designated agents by email.
type AgentDirectory interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// AssignmentRules resolves a route into a concrete agent.
type AssignmentRules struct {
	directory AgentDirectory
	emails    map[RouteTarget]string
	logger    *zap.Logger
}

// NewAssignmentRules wires the routing table to the designated agent emails.
func NewAssignmentRules(directory AgentDirectory, automationLeadEmail, specialistEmail string, logger *zap.Logger) *AssignmentRules {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentRules{
		directory: directory,
		emails: map[RouteTarget]string{
			RouteAutomationLead: strings.TrimSpace(automationLeadEmail),
			RouteSpecialist:     strings.TrimSpace(specialistEmail),
		},
		logger: logger,
	}
}

// Assign returns the initial assignee for a new ticket, or nil. A missing, inactive or
// unconfigured agent means no assignment rather than an error.
func (a *AssignmentRules) Assign(ctx context.Context, attrs AssignmentAttrs) *string {
	target := Route(attrs)
	if target == RouteNone || a == nil || a.directory == nil {
		return nil
	}
	email := a.emails[target]
	if email == "" {
		return nil
	}
	agent, err := a.directory.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("agent lookup failed", zap.String("route", string(target)), zap.Error(err))
		}
		return nil
	}
	if !agent.Active || !agent.Role.IsSupport() {
		return nil
	}
	id := agent.ID
	return &id
}
