package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
)

type testServer struct {
	app      *fiber.App
	tokens   *auth.TokenManager
	broker   *events.LiveBroker
	notifier *service.NotificationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := repository.NewMemoryBackend().Store()
	dispatcher := events.NewInMemoryDispatcher()
	broker := events.NewLiveBroker()

	notifier := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher: dispatcher,
		Broker:     broker,
		Users:      store.Users,
		Metrics:    metrics,
		Logger:     logger,
	})
	notifier.RegisterHandlers()

	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Rules:      service.NewAssignmentRules(store.Users, "", "", logger),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second*5)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Notices:        handlers.NewNoticesHandler(service.NewNoticeService(store.Notices, logger)),
		Live:           handlers.NewLiveHandler(broker, 2*time.Second),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	t.Cleanup(notifier.Wait)
	return &testServer{app: app, tokens: tokens, broker: broker, notifier: notifier}
}

func (s *testServer) token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(actor)
	require.NoError(t, err)
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func errorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

var (
	requester = domain.Actor{ID: "user-1", Role: domain.RoleUser, Sector: "Financeiro"}
	agent     = domain.Actor{ID: "agent-1", Role: domain.RoleSupport, Team: domain.TeamSuporte, Sector: "TI"}
)

func TestRequiresBearerToken(t *testing.T) {
	srv := newTestServer(t)

	status, env := srv.do(t, http.MethodGet, "/api/v1/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(env))

	status, env = srv.do(t, http.MethodGet, "/api/v1/tickets", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(env))
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.token(t, requester)
	agentToken := srv.token(t, agent)

	status, env := srv.do(t, http.MethodPost, "/api/v1/tickets", userToken, map[string]any{
		"title":   "Sem acesso ao ERP",
		"team":    "suporte",
		"urgency": "high",
	})
	require.Equal(t, http.StatusCreated, status, errorCode(env))
	var ticket struct {
		ID           string `json:"id"`
		Number       string `json:"number"`
		Status       string `json:"status"`
		KanbanStatus string `json:"kanban_status"`
		Rating       *int   `json:"rating"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "000001", ticket.Number)
	assert.Equal(t, "OPEN", ticket.Status)
	assert.Equal(t, "inbox", ticket.KanbanStatus)
	base := "/api/v1/tickets/" + ticket.ID

	status, env = srv.do(t, http.MethodPost, base+"/close-request", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(env))

	status, _ = srv.do(t, http.MethodPatch, base+"/kanban", agentToken, map[string]any{"kanban_status": "in_progress"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = srv.do(t, http.MethodPost, base+"/close-request", agentToken, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = srv.do(t, http.MethodPost, base+"/close-response", agentToken, map[string]any{"accept": true})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = srv.do(t, http.MethodPost, base+"/close-response", userToken, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(env))

	status, env = srv.do(t, http.MethodPost, base+"/close-response", userToken, map[string]any{"accept": true})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "RESOLVED", ticket.Status)

	status, _ = srv.do(t, http.MethodPost, base+"/rating", userToken, map[string]any{"stars": 5, "feedback": "great"})
	require.Equal(t, http.StatusOK, status)

	status, env = srv.do(t, http.MethodPost, base+"/rating", userToken, map[string]any{"stars": 1, "feedback": "meh"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "ALREADY_RATED", errorCode(env))

	status, env = srv.do(t, http.MethodGet, base, userToken, nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		Rating   *int    `json:"rating"`
		Feedback *string `json:"feedback"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	require.NotNil(t, detail.Rating)
	assert.Equal(t, 5, *detail.Rating)
	assert.Equal(t, "great", *detail.Feedback)

	status, env = srv.do(t, http.MethodGet, base+"/history", agentToken, nil)
	require.Equal(t, http.StatusOK, status)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 4)

	status, env = srv.do(t, http.MethodPost, base+"/close-request", agentToken, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(env))
}

func TestTicketListSortsByNumberForPaging(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.token(t, requester)
	agentToken := srv.token(t, agent)

	var ids []string
	for i := 0; i < 3; i++ {
		status, env := srv.do(t, http.MethodPost, "/api/v1/tickets", userToken, map[string]any{"title": "Impressora offline", "team": "suporte"})
		require.Equal(t, http.StatusCreated, status, errorCode(env))
		var created struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &created))
		ids = append(ids, created.ID)
	}
	status, _ := srv.do(t, http.MethodPatch, "/api/v1/tickets/"+ids[0]+"/kanban", agentToken, map[string]any{"kanban_status": "review"})
	require.Equal(t, http.StatusOK, status)

	numbers := func(path string) []string {
		status, env := srv.do(t, http.MethodGet, path, userToken, nil)
		require.Equal(t, http.StatusOK, status)
		var page []struct {
			Number string `json:"number"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &page))
		out := make([]string, 0, len(page))
		for _, p := range page {
			out = append(out, p.Number)
		}
		return out
	}
	assert.Equal(t, []string{"000001", "000002"}, numbers("/api/v1/tickets?sort=number&page_size=2&page=1"))
	assert.Equal(t, []string{"000003"}, numbers("/api/v1/tickets?sort=number&page_size=2&page=2"))
	assert.Equal(t, "000001", numbers("/api/v1/tickets")[0])
}

func TestNoticeEndpoints(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.token(t, requester)
	agentToken := srv.token(t, agent)

	status, _ := srv.do(t, http.MethodPost, "/api/v1/notices", userToken, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = srv.do(t, http.MethodPost, "/api/v1/notices", agentToken, map[string]any{
		"title": "Manutenção da VPN", "target_sectors": []string{"TI"},
	})
	require.Equal(t, http.StatusCreated, status)
	status, _ = srv.do(t, http.MethodPost, "/api/v1/notices", agentToken, map[string]any{
		"title": "Fechamento mensal", "target_sectors": []string{"financeiro"}, "expires_at": "2999-01-01",
	})
	require.Equal(t, http.StatusCreated, status)

	var notices []struct {
		Title string `json:"title"`
	}
	status, env := srv.do(t, http.MethodGet, "/api/v1/notices", userToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, "Fechamento mensal", notices[0].Title)

	status, env = srv.do(t, http.MethodGet, "/api/v1/notices", agentToken, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, "Manutenção da VPN", notices[0].Title)
}

func TestLiveLongPoll(t *testing.T) {
	srv := newTestServer(t)
	userToken := srv.token(t, requester)

	status, env := srv.do(t, http.MethodGet, "/api/v1/live?wait=0", userToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
			}
			if srv.broker.Subscribers() > 0 {
				srv.broker.Broadcast(events.Event{ID: "other", Type: events.EventTicketUpdated,
					Ticket: events.TicketSnapshot{RequesterID: "someone-else"}})
				srv.broker.Broadcast(events.Event{ID: "mine", Type: events.EventTicketUpdated,
					Ticket: events.TicketSnapshot{RequesterID: requester.ID}})
				return
			}
		}
	}()
	defer close(stop)

	status, env = srv.do(t, http.MethodGet, "/api/v1/live?wait=2", userToken, nil)
	require.Equal(t, http.StatusOK, status)
	var got []events.Event
	require.NoError(t, json.Unmarshal(env.Data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].ID)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	status, _ := srv.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	ready, err := srv.app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil), -1)
	require.NoError(t, err)
	defer ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)
	var readiness struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(ready.Body).Decode(&readiness))
	assert.Equal(t, "ready", readiness.Status)
	assert.Equal(t, map[string]string{"postgres": "disabled", "redis": "disabled"}, readiness.Dependencies)

	status, env := srv.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(env))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "helpdesk_http_requests_total")
}
