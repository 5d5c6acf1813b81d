package network

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/penhollow/custody-server/internal/events"
)

// HubNotifier implements the engine's outward notification surface by
// appending NOTIFICATION events, which the poller then broadcasts to every
// connected console. Fire-and-forget: nothing here can fail a custody
// operation.
type HubNotifier struct {
	eventLog *events.EventLog
}

// NewHubNotifier creates the notifier.
func NewHubNotifier(eventLog *events.EventLog) *HubNotifier {
	return &HubNotifier{eventLog: eventLog}
}

// Notify records one outward notification.
func (n *HubNotifier) Notify(message, category string) {
	n.eventLog.Append(events.DetentionEvent{
		ID:        events.GenerateEventID(),
		Timestamp: time.Now(),
		Type:      events.EventTypeNotification,
		ActorID:   "SYSTEM",
		Payload:   map[string]string{"message": message, "category": category},
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Consoles connect from the facility network; origin filtering happens
	// at the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades an HTTP request to a WebSocket connection and attaches
// it to the hub.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed: " + err.Error())
		return
	}

	client := NewClient(hub, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
