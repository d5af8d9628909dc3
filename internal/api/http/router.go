package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Notices        *handlers.NoticesHandler
	Live           *handlers.LiveHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Post("/:id/attachments", cfg.Tickets.AddAttachment)
	tickets.Post("/:id/close-response", cfg.Tickets.RespondClose)
	tickets.Post("/:id/rating", cfg.Tickets.Rate)

	tickets.Get("/:id/history", auth.RequireSupport(), cfg.Tickets.History)
	tickets.Post("/:id/close-request", auth.RequireSupport(), cfg.Tickets.RequestClose)
	tickets.Post("/:id/close", auth.RequireSupport(), cfg.Tickets.CloseTicket)
	tickets.Patch("/:id/kanban", auth.RequireSupport(), cfg.Tickets.MoveKanban)
	tickets.Patch("/:id/assignee", auth.RequireSupport(), cfg.Tickets.Assign)

	api.Get("/notices", cfg.Notices.ListNotices)
	api.Post("/notices", auth.RequireSupport(), cfg.Notices.CreateNotice)
	api.Delete("/notices/:id", auth.RequireSupport(), cfg.Notices.DeactivateNotice)

	api.Get("/live", cfg.Live.Poll)
}
