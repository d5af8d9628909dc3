package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// DeliveryOutcome is the result of one channel delivery.
type DeliveryOutcome string

const (
	OutcomeSuccess DeliveryOutcome = "success"
	OutcomeFailure DeliveryOutcome = "failure"
	OutcomeSkipped DeliveryOutcome = "skipped"
)

// DeliveryResult records one delivery attempt. Channel is "live", "relay", "webhook"
// or "chat:<recipient>".
type DeliveryResult struct {
	Channel  string
	Outcome  DeliveryOutcome
	Err      error
	Duration time.Duration
}

// DispatchReport aggregates every delivery made for one event.
type DispatchReport struct {
	EventID string
	Results []DeliveryResult
	Tally   observability.DispatchTally
}

// LiveRelay forwards live events to other API instances.
type LiveRelay interface {
	Publish(ctx context.Context, event events.Event) error
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Broker     *events.LiveBroker
	Relay      LiveRelay
	Users      repository.UserRepository
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.NotificationConfig
}

// NotificationService fans lifecycle events out to the live, webhook and chat channels.
type NotificationService struct {
	dispatcher events.Dispatcher
	broker     *events.LiveBroker
	relay      LiveRelay
	users      repository.UserRepository
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.NotificationConfig
	inflight   sync.WaitGroup
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg.CountryCode == "" {
		cfg.CountryCode = "55"
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		broker:     deps.Broker,
		relay:      deps.Relay,
		users:      deps.Users,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to every lifecycle event.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

// handle starts the dispatch in the background and returns immediately.
func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	n.inflight.Add(1)
	go func() {
		defer n.inflight.Done()
		n.Dispatch(context.WithoutCancel(ctx), event)
	}()
	return nil
}

// Wait blocks until background dispatches finish.
func (n *NotificationService) Wait() {
	n.inflight.Wait()
}

type delivery struct {
	channel string
	send    func(ctx context.Context) error
	skip    string
}

// Dispatch delivers event on every applicable channel concurrently. A failing channel
// never affects the others. Nothing is retried.
func (n *NotificationService) Dispatch(ctx context.Context, event events.Event) DispatchReport {
	deliveries := n.plan(ctx, event)

	p := pool.NewWithResults[DeliveryResult]()
	for _, d := range deliveries {
		d := d
		p.Go(func() DeliveryResult {
			return n.run(ctx, d)
		})
	}
	results := p.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Channel < results[j].Channel })

	report := DispatchReport{EventID: event.ID, Results: results}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeSuccess:
			report.Tally.Attempted++
			report.Tally.Succeeded++
		case OutcomeFailure:
			report.Tally.Attempted++
			report.Tally.Failed++
		case OutcomeSkipped:
			report.Tally.Skipped++
		}
	}
	n.metrics.RecordDispatch(event.ID, report.Tally)
	n.logger.Info("notification dispatched",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket", event.Ticket.Number),
		zap.Int("attempted", report.Tally.Attempted),
		zap.Int("succeeded", report.Tally.Succeeded),
		zap.Int("failed", report.Tally.Failed),
		zap.Int("skipped", report.Tally.Skipped))
	return report
}

func (n *NotificationService) run(ctx context.Context, d delivery) DeliveryResult {
	channelLabel := d.channel
	if i := strings.IndexByte(channelLabel, ':'); i > 0 {
		channelLabel = channelLabel[:i]
	}
	if d.skip != "" {
		n.logger.Info("notification skipped", zap.String("channel", d.channel), zap.String("reason", d.skip))
		n.metrics.RecordDelivery(channelLabel, string(OutcomeSkipped))
		return DeliveryResult{Channel: d.channel, Outcome: OutcomeSkipped}
	}

	started := time.Now()
	err := d.send(ctx)
	result := DeliveryResult{Channel: d.channel, Outcome: OutcomeSuccess, Err: err, Duration: time.Since(started)}
	if err != nil {
		result.Outcome = OutcomeFailure
		n.logger.Warn("notification delivery failed", zap.String("channel", d.channel), zap.Error(err))
	}
	n.metrics.RecordDelivery(channelLabel, string(result.Outcome))
	return result
}

// plan lists the deliveries an event needs. Channels without configuration are left out;
// recipients without a contact become skipped deliveries.
func (n *NotificationService) plan(ctx context.Context, event events.Event) []delivery {
	var deliveries []delivery
	if n.broker != nil {
		deliveries = append(deliveries, delivery{channel: "live", send: func(context.Context) error {
			n.broker.Broadcast(event)
			return nil
		}})
	}
	if n.relay != nil {
		deliveries = append(deliveries, delivery{channel: "relay", send: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout())
			defer cancel()
			return n.relay.Publish(ctx, event)
		}})
	}
	if n.cfg.WebhookEnabled() {
		deliveries = append(deliveries, delivery{channel: "webhook", send: func(context.Context) error {
			return n.postWebhook(event)
		}})
	}
	if n.cfg.ChatEnabled() && chatEvent(event.Type) {
		deliveries = append(deliveries, n.planChat(ctx, event)...)
	}
	return deliveries
}

func chatEvent(t events.EventType) bool {
	switch t {
	case events.EventTicketCreated, events.EventStatusChanged, events.EventTicketClosed:
		return true
	}
	return false
}

type chatRecipient struct {
	name      string
	phone     string
	requester bool
}

func (n *NotificationService) planChat(ctx context.Context, event events.Event) []delivery {
	recipients := []chatRecipient{
		{name: "requester", phone: n.userPhone(ctx, event.Ticket.RequesterID), requester: true},
	}
	if event.Ticket.AssigneeID != nil {
		recipients = append(recipients, chatRecipient{name: "assignee", phone: n.userPhone(ctx, *event.Ticket.AssigneeID)})
	}
	if event.Ticket.Team != domain.TeamNone {
		recipients = append(recipients, chatRecipient{name: "team", phone: n.cfg.TeamContacts[string(event.Ticket.Team)]})
	}

	seen := make(map[string]bool, len(recipients))
	deliveries := make([]delivery, 0, len(recipients))
	for _, r := range recipients {
		channel := "chat:" + r.name
		number, ok := NormalizePhone(r.phone, n.cfg.CountryCode)
		switch {
		case r.phone == "":
			deliveries = append(deliveries, delivery{channel: channel, skip: "no contact registered"})
			continue
		case !ok:
			deliveries = append(deliveries, delivery{channel: channel, skip: "unusable contact"})
			continue
		case seen[number]:
			deliveries = append(deliveries, delivery{channel: channel, skip: "duplicate contact"})
			continue
		}
		seen[number] = true
		text := chatText(event, r.requester)
		deliveries = append(deliveries, delivery{channel: channel, send: func(context.Context) error {
			return n.sendChat(number, text)
		}})
	}
	return deliveries
}

func (n *NotificationService) userPhone(ctx context.Context, userID string) string {
	if n.users == nil || userID == "" {
		return ""
	}
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			n.logger.Warn("recipient lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return ""
	}
	return user.Phone
}

var statusLabels = map[domain.TicketStatus]string{
	domain.TicketStatusOpen:            "aberto",
	domain.TicketStatusPendingApproval: "aguardando aprovação",
	domain.TicketStatusResolved:        "resolvido",
	domain.TicketStatusClosed:          "fechado",
}

// chatText formats the message for one recipient. Requesters get a plain status note,
// staff get the routing details.
func chatText(event events.Event, requester bool) string {
	t := event.Ticket
	if requester {
		switch event.Type {
		case events.EventTicketCreated:
			return fmt.Sprintf("Seu chamado #%s \"%s\" foi registrado. Acompanhe pelo portal.", t.Number, t.Title)
		case events.EventStatusChanged:
			if t.Status == domain.TicketStatusPendingApproval {
				return fmt.Sprintf("O chamado #%s foi marcado como resolvido. Confirme o encerramento no portal.", t.Number)
			}
			return fmt.Sprintf("O chamado #%s agora está %s.", t.Number, statusLabels[t.Status])
		default:
			return fmt.Sprintf("O chamado #%s foi encerrado. Avalie o atendimento no portal.", t.Number)
		}
	}
	switch event.Type {
	case events.EventTicketCreated:
		return fmt.Sprintf("Novo chamado #%s [%s] %s\nCategoria: %s\nServiço: %s\nEquipe: %s",
			t.Number, strings.ToUpper(string(t.Urgency)), t.Title, t.Category, t.Service, t.Team)
	default:
		return fmt.Sprintf("Chamado #%s %s: %s -> %s",
			t.Number, t.Title, statusLabels[event.Change.OldStatus], statusLabels[t.Status])
	}
}

type webhookPayload struct {
	Event  events.EventType      `json:"event"`
	ID     string                `json:"id"`
	Actor  events.Actor          `json:"actor"`
	Ticket events.TicketSnapshot `json:"ticket"`
	Change events.Change         `json:"change"`
	SentAt time.Time             `json:"sent_at"`
}

func (n *NotificationService) postWebhook(event events.Event) error {
	agent := fiber.Post(n.cfg.WebhookURL).
		JSON(webhookPayload{
			Event:  event.Type,
			ID:     event.ID,
			Actor:  event.Actor,
			Ticket: event.Ticket,
			Change: event.Change,
			SentAt: time.Now().UTC(),
		}).
		Timeout(n.cfg.Timeout())
	return agentResult(agent)
}

type chatMessage struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func (n *NotificationService) sendChat(number, text string) error {
	url := strings.TrimRight(n.cfg.ChatGatewayURL, "/") + "/message/sendText/" + n.cfg.ChatInstance
	agent := fiber.Post(url).
		Set("apikey", n.cfg.ChatAPIKey).
		JSON(chatMessage{Number: number, Text: text}).
		Timeout(n.cfg.Timeout())
	return agentResult(agent)
}

func agentResult(agent *fiber.Agent) error {
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("unexpected status %d: %s", code, truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
