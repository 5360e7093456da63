package relay

import "encoding/json"

// Event names carried in the frame envelope. Inbound names mirror the
// client protocol; outbound names are what subscribed clients switch on.
const (
	EventCreateRoom    = "createRoom"
	EventRequestJoin   = "requestJoin"
	EventRespondToJoin = "respondToJoinRequest"
	EventChatMessage   = "chatMessage"
	EventGetMessages   = "getMessages"
	EventDraw          = "draw"
	EventClearCanvas   = "clearCanvas"
	EventCanvasUpdate  = "canvas-update"

	EventRoomCreated      = "roomCreated"
	EventJoinResponse     = "joinResponse"
	EventJoinRequest      = "joinRequest"
	EventUserJoined       = "userJoined"
	EventUserLeft         = "userLeft"
	EventAllUsers         = "allUsers"
	EventPreviousMessages = "previousMessages"
	EventSystem           = "system"
)

// Frame is the envelope every WebSocket message travels in, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Profile carries the client-supplied identity attached to create/join
// requests. Identity is trusted as-is; there is no authentication layer.
type Profile struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	ImageURL string `json:"imageUrl"`
}

type createRoomPayload struct {
	RoomID string `json:"roomId"`
	Profile
}

type requestJoinPayload struct {
	RoomID string `json:"roomId"`
	Profile
}

type respondToJoinPayload struct {
	RoomID   string `json:"roomId"`
	SocketID string `json:"socketId"`
	Approved bool   `json:"approved"`
}

type chatMessagePayload struct {
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
}

type getMessagesPayload struct {
	RoomID string `json:"roomId"`
}

// ephemeralPayload covers the drawing passthrough events. Only RoomID is
// interpreted; the inner data is relayed opaquely.
type ephemeralPayload struct {
	RoomID     string          `json:"roomId"`
	DrawData   json.RawMessage `json:"drawData,omitempty"`
	CanvasData json.RawMessage `json:"canvasData,omitempty"`
}

type roomCreatedPayload struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
}

type joinResponsePayload struct {
	Success bool           `json:"success"`
	Status  string         `json:"status,omitempty"`
	Message string         `json:"message,omitempty"`
	RoomID  string         `json:"roomId,omitempty"`
	Users   []*Participant `json:"users,omitempty"`
}

type joinRequestPayload struct {
	Profile
	SocketID string `json:"socketId"`
	RoomID   string `json:"roomId"`
}

type userJoinedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type userLeftPayload struct {
	UserID string `json:"userId"`
}

type previousMessagesPayload struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
}

type systemPayload struct {
	Message string `json:"message"`
}

const (
	statusPending  = "pending"
	statusApproved = "approved"
	statusRejected = "rejected"
)
