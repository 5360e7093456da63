package relay

import "encoding/json"

// Participant is a user's membership record inside a room. SocketID ties it
// back to the owning connection.
type Participant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	ImageURL string `json:"imageUrl"`
	Host     bool   `json:"host"`
	Guest    bool   `json:"guest"`
	SocketID string `json:"socketId"`
}

// Message is one chat line. Timestamp is assigned by the relay at receipt,
// never taken from the client, so history replay has one consistent order.
type Message struct {
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

// PendingJoinRequest is an unresolved, host-gated join. At most one exists
// per (room, requester connection); a re-request overwrites the old one.
type PendingJoinRequest struct {
	Profile
	SocketID string
	RoomID   string
}

// Room groups participants, chat history, pending join requests and the last
// retained canvas snapshot. Rooms are created on first use of an id and
// deleted as soon as the last participant leaves.
type Room struct {
	ID           string
	Participants []*Participant
	Messages     []Message
	Pending      map[string]*PendingJoinRequest
	CanvasState  json.RawMessage
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		Pending: make(map[string]*PendingJoinRequest),
	}
}

// host returns the room's host participant, or nil if none remains. Join
// order makes this the first participant in the usual case.
func (r *Room) host() *Participant {
	for _, p := range r.Participants {
		if p.Host {
			return p
		}
	}
	return nil
}

func (r *Room) participant(socketID string) *Participant {
	for _, p := range r.Participants {
		if p.SocketID == socketID {
			return p
		}
	}
	return nil
}

func (r *Room) addParticipant(p *Participant) {
	r.Participants = append(r.Participants, p)
}

// removeParticipant drops the participant owned by socketID and returns it,
// or nil if the connection held no membership here.
func (r *Room) removeParticipant(socketID string) *Participant {
	for i, p := range r.Participants {
		if p.SocketID == socketID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return p
		}
	}
	return nil
}

func (r *Room) empty() bool {
	return len(r.Participants) == 0
}
