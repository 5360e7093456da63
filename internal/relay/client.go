package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"room-relay/internal/metrics"
	"room-relay/internal/middleware"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 10 * time.Second
	maxFrameSize   = 4096 // canvas snapshots are data URLs, give them headroom
	warnThrottle   = 3 * time.Second
	sendBufferSize = 256
)

// Client is one live connection. RoomID and PendingRoom are owned by the hub
// goroutine; the pumps never touch them.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	Limiter     *middleware.RateLimiter
	LastWarning time.Time

	RoomID      string
	PendingRoom string

	logger zerolog.Logger
	once   sync.Once
}

func NewClient(id string, conn *websocket.Conn, hub *Hub, limiter *middleware.RateLimiter, logger zerolog.Logger) *Client {
	return &Client{
		ID:      id,
		Conn:    conn,
		Send:    make(chan []byte, sendBufferSize),
		Hub:     hub,
		Limiter: limiter,
		logger:  logger.With().Str("conn", id).Logger(),
	}
}

// signalUnregister hands c back to the hub, or returns immediately if the
// hub has already shut down so pump goroutines never block on a dead loop.
func (c *Client) signalUnregister() {
	select {
	case c.Hub.Unregister <- c:
	case <-c.Hub.Quit:
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.signalUnregister()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			// Drain whatever else is queued into the same write.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.signalUnregister()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("unexpected close")
			}
			break
		}

		if !c.Limiter.Allow() {
			c.warnThrottled()
			continue
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			metrics.DroppedFrames.WithLabelValues("bad_envelope").Inc()
			c.logger.Debug().Err(err).Msg("undecodable frame")
			continue
		}

		c.Hub.Inbound <- &Inbound{Client: c, Frame: frame}
	}
}

func (c *Client) warnThrottled() {
	if time.Since(c.LastWarning) < warnThrottle {
		return
	}
	data, _ := json.Marshal(systemPayload{Message: "Rate limit exceeded, slow down"})
	frame, _ := json.Marshal(Frame{Event: EventSystem, Data: data})
	select {
	case c.Send <- frame:
		c.LastWarning = time.Now()
	default:
	}
}
