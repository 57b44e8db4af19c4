// Package session implements the campaign session synchronization engine:
// the room registry, connection multiplexing, message routing and
// authorization, the session lifecycle state machine, the immediate/staged
// broadcast coordinator, the fog-of-war visibility engine, and the token
// authority rules.
package session

import (
	"sync"
	"time"
)

// Role identifies the privilege level of a connection.
type Role string

const (
	// RoleHost is the single privileged connection per campaign ("DM").
	RoleHost Role = "dm"
	// RolePlayer is a non-privileged participant connection.
	RolePlayer Role = "player"
)

// Status is the lifecycle state of a campaign session.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

// Mode is the broadcast discipline for outbound state changes.
type Mode string

const (
	// ModeImmediate sends state changes to affected clients as they happen.
	ModeImmediate Mode = "immediate"
	// ModeStaged queues state changes for later atomic publication.
	ModeStaged Mode = "staged"
)

// Viewer is a tagged reference to who a hex has been revealed to: either
// every player in the campaign, or one specific user. Using a struct value
// instead of a sentinel user-id string means a real user id can never
// collide with the "all players" marker.
type Viewer struct {
	AllPlayers bool
	UserID     string
}

// AllViewers is the viewer entry meaning "every player".
var AllViewers = Viewer{AllPlayers: true}

// ViewerOf builds a viewer entry for a single user.
func ViewerOf(userID string) Viewer {
	return Viewer{UserID: userID}
}

// TokenType classifies a map marker.
type TokenType string

const (
	TokenTypePC  TokenType = "pc"
	TokenTypeNPC TokenType = "npc"
)

// Token is a map marker placed by the host.
type Token struct {
	ID         string    `json:"id" bson:"_id"`
	CampaignID string    `json:"-" bson:"campaignId"`
	HexKey     string    `json:"hexKey" bson:"hexKey"`
	OwnerID    string    `json:"ownerId,omitempty" bson:"ownerId,omitempty"`
	Label      string    `json:"label" bson:"label"`
	Icon       string    `json:"icon" bson:"icon"`
	Color      string    `json:"color" bson:"color"`
	Type       TokenType `json:"tokenType" bson:"tokenType"`
	Visible    bool      `json:"visible" bson:"visible"`
	CreatedBy  string    `json:"-" bson:"createdBy"`
}

// StagedDelivery is one captured outbound message together with its
// recipient, built at stage time so a delayed publish still reflects the
// state the host saw when staging.
type StagedDelivery struct {
	UserID  string
	Message ServerMessage
}

// StagedChange is one queued state change awaiting publication.
type StagedChange struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Kind        string           `json:"type"`
	Deliveries  []StagedDelivery `json:"-"`
}

// Conn is one live client connection inside a room. There is at most one
// per (room, user) at a time.
type Conn struct {
	UserID string
	Name   string
	Role   Role
	Socket Socket
}

// Socket abstracts the transport handle so the engine can be exercised in
// tests without a live websocket. Sends are fire-and-forget: errors are
// swallowed by callers and cleanup happens on the transport's close event.
type Socket interface {
	Send(data []byte) error
	Close() error
}

// Room is the authoritative in-memory state for one campaign. A room exists
// iff it has at least one connection, or its status is active/paused.
// Rooms are independent units of state; each carries its own lock and no
// operation ever holds two room locks at once.
type Room struct {
	mu sync.Mutex

	CampaignID string
	SessionID  string
	Status     Status
	Mode       Mode

	Staged []StagedChange

	conns map[string]*Conn

	// revealed maps hexKey -> set of viewers the hex is revealed to.
	// This is rebuilt from the persisted visibility ledger on room creation.
	revealed map[string]map[Viewer]struct{}

	// terrain is the campaign's hex map content, keyed by hex key.
	terrain map[string]string

	tokens map[string]*Token

	loadedAt time.Time
}

func newRoom(campaignID string) *Room {
	return &Room{
		CampaignID: campaignID,
		Status:     StatusWaiting,
		Mode:       ModeImmediate,
		conns:      make(map[string]*Conn),
		revealed:   make(map[string]map[Viewer]struct{}),
		terrain:    make(map[string]string),
		tokens:     make(map[string]*Token),
	}
}

// revealedTo reports whether hexKey is revealed to the given user, either
// directly or through an all-players entry.
func (r *Room) revealedTo(hexKey, userID string) bool {
	viewers, ok := r.revealed[hexKey]
	if !ok {
		return false
	}
	if _, ok := viewers[AllViewers]; ok {
		return true
	}
	_, ok = viewers[ViewerOf(userID)]
	return ok
}

// revealedSet returns the set of hex keys revealed to the given user.
func (r *Room) revealedSet(userID string) map[string]struct{} {
	set := make(map[string]struct{})
	for hexKey := range r.revealed {
		if r.revealedTo(hexKey, userID) {
			set[hexKey] = struct{}{}
		}
	}
	return set
}

// allHexKeys returns the set of hex keys present on the campaign map.
func (r *Room) allHexKeys() map[string]struct{} {
	set := make(map[string]struct{}, len(r.terrain))
	for key := range r.terrain {
		set[key] = struct{}{}
	}
	return set
}

// host returns the connected host, or nil if none is connected.
func (r *Room) host() *Conn {
	for _, c := range r.conns {
		if c.Role == RoleHost {
			return c
		}
	}
	return nil
}

// players returns the connected player connections.
func (r *Room) players() []*Conn {
	players := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		if c.Role == RolePlayer {
			players = append(players, c)
		}
	}
	return players
}
