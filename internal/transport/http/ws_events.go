package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"testseries-attempt-service/internal/app"
)

// EventsHandler streams attempt lifecycle events over a websocket, e.g. for
// a proctoring dashboard watching starts and submissions live.
type EventsHandler struct {
	broker   *Broker
	upgrader websocket.Upgrader
}

func NewEventsHandler(broker *Broker) *EventsHandler {
	return &EventsHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundEvent struct {
	Type    string    `json:"type"`
	Payload app.Event `json:"payload"`
}

// ServeWS upgrades the connection and forwards broker events until the
// client goes away.
func (h *EventsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := h.broker.Subscribe()
	defer cancel()

	// Ack the subscription so clients know the feed is live before any
	// lifecycle event fires.
	if err := conn.WriteJSON(outboundEvent{Type: "subscribed"}); err != nil {
		log.Printf("ws write error: %v", err)
		return
	}

	done := make(chan struct{})

	// Read pump: discard inbound frames, detect disconnect.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundEvent{Type: event.Type, Payload: event}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
