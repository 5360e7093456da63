package relay

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"room-relay/internal/metrics"
)

// Inbound is one decoded frame arriving from a connection's read pump.
type Inbound struct {
	Client *Client
	Frame  Frame
}

// Stats is a point-in-time snapshot of relay state, safe to read from any
// goroutine.
type Stats struct {
	Connections  int64
	Rooms        int64
	PendingJoins int64
}

// Hub owns every room, participant and pending join request. All state is
// mutated only inside Run, so each inbound event is processed to completion
// before the next and no locks are needed.
type Hub struct {
	logger zerolog.Logger

	clients map[string]*Client
	rooms   map[string]*Room

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *Inbound
	Quit       chan struct{}

	connCount    atomic.Int64
	roomCount    atomic.Int64
	pendingCount atomic.Int64
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[string]*Client),
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound, 256),
		Quit:       make(chan struct{}),
	}
}

// Snapshot reports live counts without touching hub-owned maps.
func (h *Hub) Snapshot() Stats {
	return Stats{
		Connections:  h.connCount.Load(),
		Rooms:        h.roomCount.Load(),
		PendingJoins: h.pendingCount.Load(),
	}
}

// Run is the hub's event loop. It exits when Quit is closed.
func (h *Hub) Run() {
	h.logger.Info().Msg("hub loop started")
	for {
		select {
		case <-h.Quit:
			h.logger.Info().Int("connections", len(h.clients)).Msg("hub shutting down")
			for _, c := range h.clients {
				h.cleanupClient(c)
			}
			return

		case c := <-h.Register:
			h.clients[c.ID] = c
			h.connCount.Store(int64(len(h.clients)))
			metrics.ConnectionsActive.Inc()
			h.logger.Info().Str("conn", c.ID).Int("total", len(h.clients)).Msg("connection registered")

		case c := <-h.Unregister:
			h.removeClient(c)

		case in := <-h.Inbound:
			h.dispatch(in.Client, in.Frame)
		}
	}
}

func (h *Hub) dispatch(c *Client, f Frame) {
	switch f.Event {
	case EventCreateRoom:
		var p createRoomPayload
		if !h.decode(c, f, &p) {
			return
		}
		h.handleCreateRoom(c, p)
	case EventRequestJoin:
		var p requestJoinPayload
		if !h.decode(c, f, &p) {
			return
		}
		h.handleRequestJoin(c, p)
	case EventRespondToJoin:
		var p respondToJoinPayload
		if !h.decode(c, f, &p) {
			return
		}
		h.handleRespondToJoin(c, p)
	case EventChatMessage:
		var p chatMessagePayload
		if !h.decode(c, f, &p) {
			return
		}
		h.handleChatMessage(c, p)
	case EventGetMessages:
		var p getMessagesPayload
		if !h.decode(c, f, &p) {
			return
		}
		h.handleGetMessages(c, p)
	case EventDraw, EventClearCanvas, EventCanvasUpdate:
		var p ephemeralPayload
		if !h.decode(c, f, &p) {
			return
		}
		h.handleEphemeral(c, f.Event, p)
	default:
		h.drop(c, f.Event, "unknown_event")
	}
}

func (h *Hub) decode(c *Client, f Frame, v any) bool {
	if err := json.Unmarshal(f.Data, v); err != nil {
		h.drop(c, f.Event, "decode_error")
		return false
	}
	return true
}

func (h *Hub) drop(c *Client, event, reason string) {
	metrics.DroppedFrames.WithLabelValues(reason).Inc()
	h.logger.Debug().Str("conn", c.ID).Str("event", event).Str("reason", reason).Msg("frame dropped")
}

func (h *Hub) handleCreateRoom(c *Client, p createRoomPayload) {
	room, exists := h.rooms[p.RoomID]
	if !exists {
		room = newRoom(p.RoomID)
		h.rooms[p.RoomID] = room
		h.roomCount.Store(int64(len(h.rooms)))
		metrics.RoomsActive.Inc()
		h.logger.Info().Str("room", p.RoomID).Str("host", p.Username).Msg("room created")
	}

	// Duplicate creation from a member is a safe ack, not a rebind.
	if c.RoomID == room.ID {
		h.send(c, EventRoomCreated, roomCreatedPayload{Success: true, RoomID: room.ID})
		h.send(c, EventAllUsers, room.Participants)
		return
	}

	// First caller for a roomId becomes host; a createRoom against an
	// existing room degrades to a direct join, never a second host.
	participant := &Participant{
		UserID:   p.UserID,
		Username: p.Username,
		Email:    p.Email,
		ImageURL: p.ImageURL,
		Host:     !exists,
		Guest:    exists,
		SocketID: c.ID,
	}
	h.bindParticipant(c, room, participant)

	h.send(c, EventRoomCreated, roomCreatedPayload{Success: true, RoomID: room.ID})
	h.announceJoin(room, participant)
	h.replayCanvas(c, room)
}

func (h *Hub) handleRequestJoin(c *Client, p requestJoinPayload) {
	room, ok := h.rooms[p.RoomID]
	if !ok {
		metrics.JoinRequests.WithLabelValues("room_not_found").Inc()
		h.send(c, EventJoinResponse, joinResponsePayload{Success: false, Message: "Room does not exist"})
		return
	}

	// An existing member re-requesting its own room gets a direct ack;
	// cycling it through approval would bounce it off the roster.
	if c.RoomID == room.ID {
		h.send(c, EventJoinResponse, joinResponsePayload{
			Success: true,
			Status:  statusApproved,
			RoomID:  room.ID,
			Users:   room.Participants,
		})
		return
	}

	admin := room.host()
	if admin == nil {
		metrics.JoinRequests.WithLabelValues("admin_not_found").Inc()
		h.send(c, EventJoinResponse, joinResponsePayload{Success: false, Message: "Room admin not found"})
		return
	}

	// A connection holds at most one outstanding request; re-requesting a
	// different room withdraws the old one.
	if c.PendingRoom != "" && c.PendingRoom != room.ID {
		h.clearPending(c)
	}
	if _, dup := room.Pending[c.ID]; !dup {
		h.pendingCount.Add(1)
	}
	room.Pending[c.ID] = &PendingJoinRequest{Profile: p.Profile, SocketID: c.ID, RoomID: room.ID}
	c.PendingRoom = room.ID

	if hostClient, ok := h.clients[admin.SocketID]; ok {
		h.send(hostClient, EventJoinRequest, joinRequestPayload{
			Profile:  p.Profile,
			SocketID: c.ID,
			RoomID:   room.ID,
		})
	}

	metrics.JoinRequests.WithLabelValues("pending").Inc()
	h.logger.Info().Str("room", room.ID).Str("requester", p.Username).Msg("join request pending")
	h.send(c, EventJoinResponse, joinResponsePayload{
		Success: true,
		Status:  statusPending,
		Message: "Waiting for admin approval",
	})
}

func (h *Hub) handleRespondToJoin(c *Client, p respondToJoinPayload) {
	room, ok := h.rooms[p.RoomID]
	if !ok {
		h.drop(c, EventRespondToJoin, "room_not_found")
		return
	}

	// A missing pending request is a benign race (requester already
	// disconnected or the request was answered twice), not an error.
	req, ok := room.Pending[p.SocketID]
	if !ok {
		h.drop(c, EventRespondToJoin, "no_pending_request")
		return
	}
	delete(room.Pending, p.SocketID)
	h.pendingCount.Add(-1)

	requester, online := h.clients[p.SocketID]
	if online {
		requester.PendingRoom = ""
	}

	if !p.Approved {
		metrics.JoinRequests.WithLabelValues("rejected").Inc()
		h.logger.Info().Str("room", room.ID).Str("requester", req.Username).Msg("join request rejected")
		if online {
			h.send(requester, EventJoinResponse, joinResponsePayload{
				Success: false,
				Status:  statusRejected,
				Message: "Your join request was rejected",
			})
		}
		return
	}

	if !online {
		return
	}

	participant := &Participant{
		UserID:   req.UserID,
		Username: req.Username,
		Email:    req.Email,
		ImageURL: req.ImageURL,
		Guest:    true,
		SocketID: requester.ID,
	}
	h.bindParticipant(requester, room, participant)

	metrics.JoinRequests.WithLabelValues("approved").Inc()
	h.logger.Info().Str("room", room.ID).Str("requester", req.Username).Msg("join request approved")
	h.send(requester, EventJoinResponse, joinResponsePayload{
		Success: true,
		Status:  statusApproved,
		RoomID:  room.ID,
		Users:   room.Participants,
	})
	h.announceJoin(room, participant)
	h.replayCanvas(requester, room)
}

func (h *Hub) handleChatMessage(c *Client, p chatMessagePayload) {
	// The client names a room, but only the one it is actually bound to is
	// accepted; anything else is a spoof or a stale frame.
	room := h.boundRoom(c, p.RoomID, EventChatMessage)
	if room == nil {
		return
	}

	msg := Message{
		RoomID:     room.ID,
		SenderID:   p.SenderID,
		SenderName: p.SenderName,
		Content:    p.Content,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	room.Messages = append(room.Messages, msg)
	metrics.MessagesRelayed.Inc()

	// Everyone renders from this one stamped broadcast, sender included.
	h.broadcastRoom(room, EventChatMessage, msg, "")
}

func (h *Hub) handleGetMessages(c *Client, p getMessagesPayload) {
	room := h.boundRoom(c, p.RoomID, EventGetMessages)
	if room == nil {
		return
	}
	msgs := room.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	h.send(c, EventPreviousMessages, previousMessagesPayload{RoomID: room.ID, Messages: msgs})
}

func (h *Hub) handleEphemeral(c *Client, kind string, p ephemeralPayload) {
	room := h.boundRoom(c, p.RoomID, kind)
	if room == nil {
		return
	}

	var data json.RawMessage
	switch kind {
	case EventDraw:
		data = p.DrawData
	case EventCanvasUpdate:
		data = p.CanvasData
		room.CanvasState = p.CanvasData
	case EventClearCanvas:
		room.CanvasState = nil
	}

	metrics.EphemeralEvents.WithLabelValues(kind).Inc()
	h.broadcastRaw(room, kind, data, c.ID)
}

// boundRoom resolves roomID only when it matches the connection's current
// binding; everything else is silently dropped.
func (h *Hub) boundRoom(c *Client, roomID, event string) *Room {
	if c.RoomID == "" {
		h.drop(c, event, "not_in_room")
		return nil
	}
	if c.RoomID != roomID {
		h.drop(c, event, "cross_room")
		return nil
	}
	room, ok := h.rooms[c.RoomID]
	if !ok {
		h.drop(c, event, "room_gone")
		return nil
	}
	return room
}

// bindParticipant attaches c to room, implicitly leaving any previous room
// first. Any outstanding request by c, for this room or another, is consumed
// by the bind.
func (h *Hub) bindParticipant(c *Client, room *Room, p *Participant) {
	h.detachFromRoom(c)
	h.clearPending(c)
	c.RoomID = room.ID
	room.addParticipant(p)
}

// clearPending withdraws c's outstanding join request, if any, and keeps the
// pending counter honest.
func (h *Hub) clearPending(c *Client) {
	if c.PendingRoom == "" {
		return
	}
	if room, ok := h.rooms[c.PendingRoom]; ok {
		if _, had := room.Pending[c.ID]; had {
			delete(room.Pending, c.ID)
			h.pendingCount.Add(-1)
		}
	}
	c.PendingRoom = ""
}

func (h *Hub) announceJoin(room *Room, p *Participant) {
	h.broadcastRoom(room, EventUserJoined, userJoinedPayload{
		UserID:   p.UserID,
		Username: p.Username,
		Email:    p.Email,
	}, "")
	h.broadcastRoom(room, EventAllUsers, room.Participants, "")
}

func (h *Hub) replayCanvas(c *Client, room *Room) {
	if room.CanvasState == nil {
		return
	}
	h.sendRaw(c, EventCanvasUpdate, room.CanvasState)
}

// detachFromRoom removes c's membership, notifies the remainder and deletes
// the room if it empties. Host departure purges the room's pending set.
func (h *Hub) detachFromRoom(c *Client) {
	if c.RoomID == "" {
		return
	}
	room, ok := h.rooms[c.RoomID]
	c.RoomID = ""
	if !ok {
		return
	}

	p := room.removeParticipant(c.ID)
	if p == nil {
		return
	}

	if p.Host {
		h.purgePending(room)
	}

	h.broadcastRoom(room, EventUserLeft, userLeftPayload{UserID: p.UserID}, "")
	h.logger.Info().Str("room", room.ID).Str("user", p.Username).Int("remaining", len(room.Participants)).Msg("participant left")

	if room.empty() {
		delete(h.rooms, room.ID)
		h.roomCount.Store(int64(len(h.rooms)))
		metrics.RoomsActive.Dec()
		h.logger.Info().Str("room", room.ID).Msg("room deleted")
	}
}

// purgePending rejects every outstanding join request on room, telling each
// requester the admin is gone.
func (h *Hub) purgePending(room *Room) {
	for socketID := range room.Pending {
		delete(room.Pending, socketID)
		h.pendingCount.Add(-1)
		metrics.JoinRequests.WithLabelValues("admin_disconnected").Inc()
		if requester, ok := h.clients[socketID]; ok {
			requester.PendingRoom = ""
			h.send(requester, EventJoinResponse, joinResponsePayload{
				Success: false,
				Message: "Room admin disconnected",
			})
		}
	}
}

// removeClient runs the full disconnect path for c.
func (h *Hub) removeClient(c *Client) {
	h.clearPending(c)
	h.detachFromRoom(c)
	h.cleanupClient(c)
}

func (h *Hub) cleanupClient(c *Client) {
	c.once.Do(func() {
		if _, ok := h.clients[c.ID]; ok {
			delete(h.clients, c.ID)
			metrics.ConnectionsActive.Dec()
		}
		h.connCount.Store(int64(len(h.clients)))
		if c.Conn != nil {
			c.Conn.Close()
		}
		close(c.Send)
		h.logger.Info().Str("conn", c.ID).Int("total", len(h.clients)).Msg("connection closed")
	})
}

func (h *Hub) send(c *Client, event string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	h.sendRaw(c, event, payload)
}

func (h *Hub) sendRaw(c *Client, event string, data json.RawMessage) {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	h.push(c, frame)
}

func (h *Hub) broadcastRoom(room *Room, event string, v any, excludeID string) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	h.broadcastRaw(room, event, payload, excludeID)
}

func (h *Hub) broadcastRaw(room *Room, event string, data json.RawMessage, excludeID string) {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("marshal failed")
		return
	}
	for _, p := range room.Participants {
		if p.SocketID == excludeID {
			continue
		}
		if c, ok := h.clients[p.SocketID]; ok {
			h.push(c, frame)
		}
	}
}

func (h *Hub) push(c *Client, frame []byte) {
	select {
	case c.Send <- frame:
	default:
		// Slow consumer: its buffer is full, evict rather than block the loop.
		metrics.SlowConsumerEvictions.Inc()
		h.logger.Warn().Str("conn", c.ID).Msg("send buffer full, evicting")
		go c.signalUnregister()
	}
}
