package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

// LiveHandler serves the live-update channel as a long poll.
type LiveHandler struct {
	broker  *events.LiveBroker
	maxWait time.Duration
}

// NewLiveHandler constructs handler. maxWait caps how long a request is held.
func NewLiveHandler(broker *events.LiveBroker, maxWait time.Duration) *LiveHandler {
	return &LiveHandler{broker: broker, maxWait: maxWait}
}

// Poll GET /live?wait=N. Returns the events published while the request was held,
// or an empty list once the wait expires. Delivery is best effort.
func (h *LiveHandler) Poll(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	wait := h.maxWait
	if secs, err := strconv.Atoi(c.Query("wait")); err == nil && secs >= 0 {
		if d := time.Duration(secs) * time.Second; d < wait {
			wait = d
		}
	}

	sub := h.broker.Subscribe(32)
	defer sub.Close()

	ctx := c.UserContext()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	collected := []events.Event{}
	for len(collected) == 0 {
		select {
		case <-ctx.Done():
			return c.JSON(fiber.Map{"data": collected})
		case <-timer.C:
			return c.JSON(fiber.Map{"data": collected})
		case event, ok := <-sub.C:
			if !ok {
				return c.JSON(fiber.Map{"data": collected})
			}
			if visibleTo(event, actor) {
				collected = append(collected, event)
			}
		}
	}
	// pick up whatever else is already buffered
	for {
		select {
		case event := <-sub.C:
			if visibleTo(event, actor) {
				collected = append(collected, event)
			}
		default:
			return c.JSON(fiber.Map{"data": collected})
		}
	}
}

func visibleTo(event events.Event, actor domain.Actor) bool {
	return actor.IsSupport() || event.Ticket.RequesterID == actor.ID
}
