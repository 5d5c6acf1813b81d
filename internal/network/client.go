package network

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/penhollow/custody-server/internal/domain/offense"
	"github.com/penhollow/custody-server/internal/engine"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// OperatorCommand represents an incoming command from a facility console.
type OperatorCommand struct {
	Type    string          `json:"type"`     // "ADMIT", "BOOKING_STEP", "POST_BAIL", etc.
	ActorID string          `json:"actor_id"` // Who the command concerns
	Payload json.RawMessage `json:"payload"`  // Command-specific data
}

// Client holds one console connection. The hub ref allows unregister.
type Client struct {
	hub             *Hub
	conn            *websocket.Conn
	send            chan []byte
	lastCommandTime time.Time
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		var cmd OperatorCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Error("Failed to parse OperatorCommand from WebSocket. err: " + err.Error())
			continue
		}

		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd OperatorCommand) {
	// Consoles are rate limited; a stuck key must not flood the core.
	if time.Since(c.lastCommandTime) < 250*time.Millisecond {
		c.hub.logger.Warn("Rate limit exceeded for operator command on " + cmd.ActorID)
		return
	}
	c.lastCommandTime = time.Now()

	switch cmd.Type {
	case "ADMIT":
		c.handleAdmit(cmd)
	case "BOOKING_STEP":
		c.handleBookingStep(cmd)
	case "CANCEL_BOOKING":
		c.hub.engine.CancelBooking(cmd.ActorID)
	case "RECORD_OFFENSE":
		c.handleRecordOffense(cmd)
	case "POST_BAIL":
		c.handlePostBail(cmd)
	case "COURT_ORDER_RELEASE":
		c.handleCourtOrder(cmd)
	case "EMERGENCY_RELEASE":
		if err := c.hub.engine.EmergencyRelease(cmd.ActorID); err != nil {
			c.hub.logger.Error("EMERGENCY_RELEASE for " + cmd.ActorID + " failed: " + err.Error())
		}
	case "CANCEL_RELEASE":
		c.hub.engine.CancelRelease(cmd.ActorID)
	case "CONFIRM_INVENTORY":
		c.hub.engine.ConfirmInventoryProcessed(cmd.ActorID)
	case "CONFIRM_EXIT":
		c.hub.engine.ConfirmExit(cmd.ActorID)
	default:
		c.hub.logger.Warn("Unknown OperatorCommand type: " + cmd.Type)
	}
}

func (c *Client) handleAdmit(cmd OperatorCommand) {
	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse ADMIT payload for " + cmd.ActorID)
		return
	}
	if _, err := c.hub.engine.Admit(cmd.ActorID, parsed.Name); err != nil {
		c.hub.logger.Error("ADMIT for " + cmd.ActorID + " failed: " + err.Error())
		return
	}
	c.hub.logger.Event("OPERATOR_ADMIT", cmd.ActorID, "Intake opened for "+parsed.Name)
}

func (c *Client) handleBookingStep(cmd OperatorCommand) {
	var parsed struct {
		Step     string `json:"step"`
		Artifact string `json:"artifact"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse BOOKING_STEP payload for " + cmd.ActorID)
		return
	}
	err := c.hub.engine.CompleteBookingStep(cmd.ActorID, engine.BookingStep(parsed.Step), parsed.Artifact)
	if err != nil {
		c.hub.logger.Error("BOOKING_STEP " + parsed.Step + " for " + cmd.ActorID + " failed: " + err.Error())
	}
}

func (c *Client) handleRecordOffense(cmd OperatorCommand) {
	var parsed struct {
		Kind         string  `json:"kind"`
		Severity     float64 `json:"severity"`
		Witnessed    bool    `json:"witnessed"`
		WitnessCount int     `json:"witness_count"`
		VictimClass  string  `json:"victim_class"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse RECORD_OFFENSE payload for " + cmd.ActorID)
		return
	}

	o := offense.Offense{
		Kind:         offense.ParseKind(parsed.Kind),
		Severity:     parsed.Severity,
		Witnessed:    parsed.Witnessed,
		WitnessCount: parsed.WitnessCount,
		VictimClass:  offense.VictimClass(parsed.VictimClass),
		Timestamp:    time.Now(),
	}
	if err := c.hub.engine.RecordOffense(cmd.ActorID, o); err != nil {
		c.hub.logger.Error("RECORD_OFFENSE for " + cmd.ActorID + " failed: " + err.Error())
		return
	}
	c.hub.logger.Event("OPERATOR_OFFENSE", cmd.ActorID, "Recorded "+parsed.Kind)
}

func (c *Client) handlePostBail(cmd OperatorCommand) {
	var parsed struct {
		Amount float64 `json:"amount"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil {
		c.hub.logger.Warn("Failed to parse POST_BAIL payload for " + cmd.ActorID)
		return
	}
	if err := c.hub.engine.PostBail(cmd.ActorID, parsed.Amount); err != nil {
		c.hub.logger.Error("POST_BAIL for " + cmd.ActorID + " failed: " + err.Error())
	}
}

func (c *Client) handleCourtOrder(cmd OperatorCommand) {
	var parsed struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(cmd.Payload, &parsed); err != nil {
		parsed.Reason = "court order"
	}
	if err := c.hub.engine.CourtOrderRelease(cmd.ActorID, parsed.Reason); err != nil {
		c.hub.logger.Error("COURT_ORDER_RELEASE for " + cmd.ActorID + " failed: " + err.Error())
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
