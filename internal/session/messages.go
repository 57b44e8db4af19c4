package session

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate checks parsed payload shapes before they reach a handler.
var validate = validator.New()

// ---------------------------------------------------------------------------
// Client -> server messages
// ---------------------------------------------------------------------------

// Client message type tags.
const (
	TypeSessionStart     = "session:start"
	TypeSessionPause     = "session:pause"
	TypeSessionResume    = "session:resume"
	TypeSessionEnd       = "session:end"
	TypeBroadcastMode    = "broadcast:mode"
	TypeBroadcastPublish = "broadcast:publish"
	TypeStagedUndo       = "staged:undo"
	TypeHexReveal        = "hex:reveal"
	TypeHexHide          = "hex:hide"
	TypeHexUpdate        = "hex:update"
	TypeTokenCreate      = "token:create"
	TypeTokenMove        = "token:move"
	TypeTokenUpdate      = "token:update"
	TypeTokenDelete      = "token:delete"
)

// ClientMessage is the closed set of inbound message payloads. Each variant
// is a concrete struct; the router matches exhaustively on the type switch
// and a test asserts every variant has a handler.
type ClientMessage interface {
	clientMessage()
}

// TargetSet selects which players a reveal/hide applies to: every player,
// or an explicit subset.
type TargetSet struct {
	All       bool
	PlayerIDs []string
}

// UnmarshalJSON accepts either the literal string "all" or an object of the
// form {"playerIds": [...]}.
func (t *TargetSet) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "all" {
			return fmt.Errorf("invalid target %q", s)
		}
		t.All = true
		t.PlayerIDs = nil
		return nil
	}
	var obj struct {
		PlayerIDs []string `json:"playerIds"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid targets: %w", err)
	}
	if obj.PlayerIDs == nil {
		return fmt.Errorf("targets object missing playerIds")
	}
	t.All = false
	t.PlayerIDs = obj.PlayerIDs
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (t TargetSet) MarshalJSON() ([]byte, error) {
	if t.All {
		return json.Marshal("all")
	}
	return json.Marshal(struct {
		PlayerIDs []string `json:"playerIds"`
	}{PlayerIDs: t.PlayerIDs})
}

// Viewers expands the target set into ledger viewer entries.
func (t TargetSet) Viewers() []Viewer {
	if t.All {
		return []Viewer{AllViewers}
	}
	viewers := make([]Viewer, 0, len(t.PlayerIDs))
	for _, id := range t.PlayerIDs {
		viewers = append(viewers, ViewerOf(id))
	}
	return viewers
}

// TerrainChange is one hex terrain assignment.
type TerrainChange struct {
	Key     string `json:"key" validate:"required"`
	Terrain string `json:"terrain" validate:"required"`
}

// TokenUpdates carries the mutable token fields of a token:update request.
// Nil pointers mean "leave unchanged".
type TokenUpdates struct {
	Icon    *string `json:"icon,omitempty"`
	Color   *string `json:"color,omitempty"`
	Visible *bool   `json:"visible,omitempty"`
	Label   *string `json:"label,omitempty"`
}

type SessionStartMsg struct{}
type SessionPauseMsg struct{}
type SessionResumeMsg struct{}
type SessionEndMsg struct{}

type BroadcastModeMsg struct {
	Mode Mode `json:"mode" validate:"required,oneof=immediate staged"`
}

type BroadcastPublishMsg struct{}

type StagedUndoMsg struct {
	Index int `json:"index"`
}

type HexRevealMsg struct {
	HexKeys []string  `json:"hexKeys" validate:"required,min=1,dive,required"`
	Targets TargetSet `json:"targets"`
}

type HexHideMsg struct {
	HexKeys []string  `json:"hexKeys" validate:"required,min=1,dive,required"`
	Targets TargetSet `json:"targets"`
}

type HexUpdateMsg struct {
	Changes []TerrainChange `json:"changes" validate:"required,min=1,dive"`
}

type TokenCreateMsg struct {
	HexKey    string    `json:"hexKey" validate:"required"`
	Label     string    `json:"label" validate:"required"`
	Icon      string    `json:"icon" validate:"required"`
	Color     string    `json:"color" validate:"required"`
	TokenType TokenType `json:"tokenType" validate:"required,oneof=pc npc"`
	OwnerID   string    `json:"ownerId,omitempty"`
}

type TokenMoveMsg struct {
	TokenID  string `json:"tokenId" validate:"required"`
	ToHexKey string `json:"toHexKey" validate:"required"`
}

type TokenUpdateMsg struct {
	TokenID string       `json:"tokenId" validate:"required"`
	Updates TokenUpdates `json:"updates"`
}

type TokenDeleteMsg struct {
	TokenID string `json:"tokenId" validate:"required"`
}

func (SessionStartMsg) clientMessage()     {}
func (SessionPauseMsg) clientMessage()     {}
func (SessionResumeMsg) clientMessage()    {}
func (SessionEndMsg) clientMessage()       {}
func (BroadcastModeMsg) clientMessage()    {}
func (BroadcastPublishMsg) clientMessage() {}
func (StagedUndoMsg) clientMessage()       {}
func (HexRevealMsg) clientMessage()        {}
func (HexHideMsg) clientMessage()          {}
func (HexUpdateMsg) clientMessage()        {}
func (TokenCreateMsg) clientMessage()      {}
func (TokenMoveMsg) clientMessage()        {}
func (TokenUpdateMsg) clientMessage()      {}
func (TokenDeleteMsg) clientMessage()      {}

// hostOnlyTypes is the fixed set of message types only the host may send.
var hostOnlyTypes = map[string]bool{
	TypeSessionStart:     true,
	TypeSessionPause:     true,
	TypeSessionResume:    true,
	TypeSessionEnd:       true,
	TypeBroadcastMode:    true,
	TypeBroadcastPublish: true,
	TypeStagedUndo:       true,
	TypeHexReveal:        true,
	TypeHexHide:          true,
	TypeHexUpdate:        true,
	TypeTokenCreate:      true,
	TypeTokenDelete:      true,
}

// IsHostOnly reports whether a message type may only be sent by the host.
func IsHostOnly(msgType string) bool {
	return hostOnlyTypes[msgType]
}

// ParseClientMessage decodes and validates one inbound payload. It returns
// an error for malformed JSON, unknown types, and payloads that fail schema
// validation; callers reply with a private error message and change no state.
func ParseClientMessage(data []byte) (string, ClientMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if envelope.Type == "" {
		return "", nil, fmt.Errorf("missing message type")
	}

	msg, err := decodeClientMessage(envelope.Type, data)
	if err != nil {
		return envelope.Type, nil, err
	}
	if err := validate.Struct(msg); err != nil {
		return envelope.Type, nil, fmt.Errorf("invalid %s payload: %w", envelope.Type, err)
	}
	return envelope.Type, msg, nil
}

// decodeInto unmarshals data into a fresh T and returns it by value so the
// router's type switch matches concrete variants, not pointers.
func decodeInto[T ClientMessage](msgType string, data []byte) (ClientMessage, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", msgType, err)
	}
	return m, nil
}

func decodeClientMessage(msgType string, data []byte) (ClientMessage, error) {
	switch msgType {
	case TypeSessionStart:
		return SessionStartMsg{}, nil
	case TypeSessionPause:
		return SessionPauseMsg{}, nil
	case TypeSessionResume:
		return SessionResumeMsg{}, nil
	case TypeSessionEnd:
		return SessionEndMsg{}, nil
	case TypeBroadcastMode:
		return decodeInto[BroadcastModeMsg](msgType, data)
	case TypeBroadcastPublish:
		return BroadcastPublishMsg{}, nil
	case TypeStagedUndo:
		return decodeInto[StagedUndoMsg](msgType, data)
	case TypeHexReveal:
		return decodeInto[HexRevealMsg](msgType, data)
	case TypeHexHide:
		return decodeInto[HexHideMsg](msgType, data)
	case TypeHexUpdate:
		return decodeInto[HexUpdateMsg](msgType, data)
	case TypeTokenCreate:
		return decodeInto[TokenCreateMsg](msgType, data)
	case TypeTokenMove:
		return decodeInto[TokenMoveMsg](msgType, data)
	case TypeTokenUpdate:
		return decodeInto[TokenUpdateMsg](msgType, data)
	case TypeTokenDelete:
		return decodeInto[TokenDeleteMsg](msgType, data)
	default:
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}
}

// ---------------------------------------------------------------------------
// Server -> client messages
// ---------------------------------------------------------------------------

// ServerMessage is the closed set of outbound message payloads.
type ServerMessage interface {
	serverMessage()
}

// PresenceEntry is one row of the presence list.
type PresenceEntry struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// AdjacentHex pairs an adjacent hex key with its terrain, the only map data
// a player is allowed to see for an unrevealed hex.
type AdjacentHex struct {
	Key     string `json:"key"`
	Terrain string `json:"terrain"`
}

type ConnectedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

type SessionStateMsg struct {
	Type             string          `json:"type"`
	Status           Status          `json:"status"`
	BroadcastMode    Mode            `json:"broadcastMode"`
	ConnectedPlayers []PresenceEntry `json:"connectedPlayers"`
	RevealedHexes    []string        `json:"revealedHexes"`
	AdjacentHexes    []AdjacentHex   `json:"adjacentHexes,omitempty"`
}

type StatusChangedMsg struct {
	Type   string `json:"type"`
	Status Status `json:"status"`
}

type HexRevealedMsg struct {
	Type          string          `json:"type"`
	HexKeys       []string        `json:"hexKeys"`
	Terrain       []TerrainChange `json:"terrain"`
	AdjacentHexes []AdjacentHex   `json:"adjacentHexes,omitempty"`
}

type HexHiddenMsg struct {
	Type          string        `json:"type"`
	HexKeys       []string      `json:"hexKeys"`
	AdjacentHexes []AdjacentHex `json:"adjacentHexes,omitempty"`
}

type HexUpdatedMsg struct {
	Type    string          `json:"type"`
	Changes []TerrainChange `json:"changes"`
}

type PlayerJoinedMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type PlayerLeftMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type PlayerPresenceMsg struct {
	Type    string          `json:"type"`
	Players []PresenceEntry `json:"players"`
}

type DMPreparingMsg struct {
	Type      string `json:"type"`
	Preparing bool   `json:"preparing"`
}

type StagedChangesMsg struct {
	Type    string         `json:"type"`
	Changes []StagedChange `json:"changes"`
}

type TokenCreatedMsg struct {
	Type  string `json:"type"`
	Token *Token `json:"token"`
}

type TokenMovedMsg struct {
	Type       string `json:"type"`
	TokenID    string `json:"tokenId"`
	FromHexKey string `json:"fromHexKey"`
	ToHexKey   string `json:"toHexKey"`
	MovedBy    string `json:"movedBy"`
}

type TokenUpdatedMsg struct {
	Type    string       `json:"type"`
	TokenID string       `json:"tokenId"`
	Updates TokenUpdates `json:"updates"`
}

type TokenDeletedMsg struct {
	Type    string `json:"type"`
	TokenID string `json:"tokenId"`
}

type TokenStateMsg struct {
	Type   string   `json:"type"`
	Tokens []*Token `json:"tokens"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ConnectedMsg) serverMessage()      {}
func (SessionStateMsg) serverMessage()   {}
func (StatusChangedMsg) serverMessage()  {}
func (HexRevealedMsg) serverMessage()    {}
func (HexHiddenMsg) serverMessage()      {}
func (HexUpdatedMsg) serverMessage()     {}
func (PlayerJoinedMsg) serverMessage()   {}
func (PlayerLeftMsg) serverMessage()     {}
func (PlayerPresenceMsg) serverMessage() {}
func (DMPreparingMsg) serverMessage()    {}
func (StagedChangesMsg) serverMessage()  {}
func (TokenCreatedMsg) serverMessage()   {}
func (TokenMovedMsg) serverMessage()     {}
func (TokenUpdatedMsg) serverMessage()   {}
func (TokenDeletedMsg) serverMessage()   {}
func (TokenStateMsg) serverMessage()     {}
func (ErrorMsg) serverMessage()          {}

// Server message type tags.
const (
	TypeConnected      = "connected"
	TypeSessionState   = "session:state"
	TypeStatusChanged  = "session:statusChanged"
	TypeHexRevealed    = "hex:revealed"
	TypeHexHidden      = "hex:hidden"
	TypeHexUpdated     = "hex:updated"
	TypePlayerJoined   = "player:joined"
	TypePlayerLeft     = "player:left"
	TypePlayerPresence = "player:presence"
	TypeDMPreparing    = "dm:preparing"
	TypeStagedChanges  = "staged:changes"
	TypeTokenCreated   = "token:created"
	TypeTokenMoved     = "token:moved"
	TypeTokenUpdated   = "token:updated"
	TypeTokenDeleted   = "token:deleted"
	TypeTokenState     = "token:state"
	TypeError          = "error"
)
