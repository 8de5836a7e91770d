package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/conductor-sh/conductor/internal/events"
	"github.com/conductor-sh/conductor/internal/logger"
)

// heartbeatInterval paces SSE keep-alive frames.
const heartbeatInterval = 30 * time.Second

// EventsHandler streams the event bus to SSE clients.
type EventsHandler struct {
	bus       *events.Bus
	startTime time.Time
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(bus *events.Bus) *EventsHandler {
	return &EventsHandler{bus: bus, startTime: time.Now()}
}

// HandleSSE streams bus events to the client
// @Summary Subscribe to events
// @Description Streams repo, worktree, ticket, session, agent and sync
// @Description lifecycle events as Server-Sent Events. Each frame's event
// @Description name matches the event kind; the data is a JSON envelope
// @Description {type, payload, timestamp, id}. Heartbeats go out every 30s.
// @Description A subscriber that falls behind receives one "lagged" frame
// @Description and must refetch baseline state before trusting the stream.
// @Tags events
// @Produce text/event-stream
// @Success 200 {object} events.Event "SSE stream"
// @Router /api/events [get]
func (h *EventsHandler) HandleSSE(c *fiber.Ctx) error {
	if accept := c.Get("Accept"); accept != "" && !strings.Contains(accept, "text/event-stream") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "This endpoint only serves Server-Sent Events (text/event-stream)",
		})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.bus.Subscribe()
	client := c.IP()
	logger.Logger.Info().Str("client", client).Msg("SSE client connected")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer func() {
			h.bus.Unsubscribe(sub)
			logger.Logger.Info().Str("client", client).Msg("SSE client disconnected")
		}()

		send := func(event events.Event) bool {
			raw, err := json.Marshal(event)
			if err != nil {
				logger.Logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to encode SSE event")
				return true
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, raw); err != nil {
				return false
			}
			return w.Flush() == nil
		}

		// An immediate heartbeat confirms the stream before any event fires.
		if !send(h.makeHeartbeat()) {
			return
		}

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				if sub.Lagged() {
					if !send(events.New(events.Lagged, nil)) {
						return
					}
				}
				if !send(event) {
					return
				}
			case <-ticker.C:
				if !send(h.makeHeartbeat()) {
					return
				}
			}
		}
	}))

	return nil
}

func (h *EventsHandler) makeHeartbeat() events.Event {
	return events.New(events.Heartbeat, events.HeartbeatPayload{
		Timestamp: time.Now().UnixMilli(),
		Uptime:    time.Since(h.startTime).Milliseconds(),
	})
}
