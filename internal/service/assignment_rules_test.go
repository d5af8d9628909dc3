package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const (
	leadEmail       = "lead@corp.example"
	specialistEmail = "ecalc@corp.example"
)

func TestRoute(t *testing.T) {
	cases := []struct {
		name  string
		attrs AssignmentAttrs
		want  RouteTarget
	}{
		{"automation category", AssignmentAttrs{Team: domain.TeamSistemas, Category: "Automação", Service: "Ecalc"}, RouteAutomationLead},
		{"automation service", AssignmentAttrs{Team: domain.TeamSistemas, Service: "Power  Automate"}, RouteAutomationLead},
		{"automation outside sistemas", AssignmentAttrs{Team: domain.TeamRedes, Category: "Automação"}, RouteNone},
		{"ecalc mixed case", AssignmentAttrs{Team: domain.TeamSuporte, Service: "ECALC"}, RouteSpecialist},
		{"ecalc alias", AssignmentAttrs{Service: "e-calc"}, RouteSpecialist},
		{"questor in service", AssignmentAttrs{Service: "Questor Fiscal"}, RouteSpecialist},
		{"questor in category", AssignmentAttrs{Category: "Sistema Questor"}, RouteSpecialist},
		{"no match", AssignmentAttrs{Team: domain.TeamRedes, Category: "Rede", Service: "VPN"}, RouteNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Route(tc.attrs))
		})
	}
}

func seedAgent(t *testing.T, store repository.Store, email string, role domain.UserRole, active bool) *domain.User {
	t.Helper()
	user := &domain.User{Name: email, Email: email, Role: role, Active: active}
	require.NoError(t, store.Users.Create(context.Background(), user))
	return user
}

func TestAssignResolvesDesignatedAgent(t *testing.T) {
	store := repository.NewMemoryBackend().Store()
	lead := seedAgent(t, store, leadEmail, domain.RoleSupport, true)
	specialist := seedAgent(t, store, specialistEmail, domain.RoleAdmin, true)
	rules := NewAssignmentRules(store.Users, leadEmail, specialistEmail, zap.NewNop())
	ctx := context.Background()

	got := rules.Assign(ctx, AssignmentAttrs{Team: domain.TeamSistemas, Category: "automação"})
	require.NotNil(t, got)
	assert.Equal(t, lead.ID, *got)

	got = rules.Assign(ctx, AssignmentAttrs{Service: "Ecalc"})
	require.NotNil(t, got)
	assert.Equal(t, specialist.ID, *got)

	assert.Nil(t, rules.Assign(ctx, AssignmentAttrs{Service: "Impressora"}))
}

func TestAssignSkipsMissingOrUnfitAgents(t *testing.T) {
	ctx := context.Background()

	store := repository.NewMemoryBackend().Store()
	rules := NewAssignmentRules(store.Users, leadEmail, specialistEmail, zap.NewNop())
	assert.Nil(t, rules.Assign(ctx, AssignmentAttrs{Service: "ecalc"}), "unknown agent")

	seedAgent(t, store, specialistEmail, domain.RoleSupport, false)
	assert.Nil(t, rules.Assign(ctx, AssignmentAttrs{Service: "ecalc"}), "inactive agent")

	other := repository.NewMemoryBackend().Store()
	seedAgent(t, other, specialistEmail, domain.RoleUser, true)
	rules = NewAssignmentRules(other.Users, leadEmail, specialistEmail, zap.NewNop())
	assert.Nil(t, rules.Assign(ctx, AssignmentAttrs{Service: "ecalc"}), "requester account")

	rules = NewAssignmentRules(other.Users, leadEmail, "", zap.NewNop())
	assert.Nil(t, rules.Assign(ctx, AssignmentAttrs{Service: "ecalc"}), "unconfigured")

	var nilRules *AssignmentRules
	assert.Nil(t, nilRules.Assign(ctx, AssignmentAttrs{Service: "ecalc"}))
}

type brokenDirectory struct{}

func (brokenDirectory) GetByEmail(context.Context, string) (*domain.User, error) {
	return nil, errors.New("connection reset")
}

func TestAssignSurvivesLookupFailureWithoutLogger(t *testing.T) {
	rules := NewAssignmentRules(brokenDirectory{}, leadEmail, specialistEmail, nil)

	assert.NotPanics(t, func() {
		assert.Nil(t, rules.Assign(context.Background(), AssignmentAttrs{Service: "Ecalc"}))
	})
}
