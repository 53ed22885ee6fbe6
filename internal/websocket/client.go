package websocket

import (
	"net/http"
	"time"

	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client pairs a hub session with one websocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session *Session
	log     *logger.Logger
	closed  chan struct{}
}

// writePump drains the session into the connection. It is the only writer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.closed:
			return
		case <-c.session.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.session.ready:
			for {
				ev, ok := c.session.pop()
				if !ok {
					break
				}
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteJSON(ev); err != nil {
					c.log.Debug("Write to session %s failed: %v", c.session.ID, err)
					return
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames until the peer goes away.
func (c *Client) readPump() {
	defer func() {
		close(c.closed)
		c.hub.Unregister(c.session)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ServeWs upgrades the request and streams hub events to the peer. A nil
// filter delivers every event.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, filter func(models.Event) bool, log *logger.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("WS Upgrade Error: %v", err)
		return
	}
	client := &Client{
		hub:     hub,
		conn:    conn,
		session: hub.RegisterFiltered(filter),
		log:     log,
		closed:  make(chan struct{}),
	}
	go client.writePump()
	go client.readPump()
}

// DeviceFilter accepts only events about the given device.
func DeviceFilter(deviceID int) func(models.Event) bool {
	return func(ev models.Event) bool {
		switch p := ev.Payload.(type) {
		case models.Reading:
			return p.DeviceID == deviceID
		case models.Aggregate:
			return p.DeviceID == deviceID
		case models.Alert:
			return p.DeviceID == deviceID
		}
		return false
	}
}
