package session

import (
	"context"
	"time"
)

// SessionRecord is the persisted, append-only record of one game session.
type SessionRecord struct {
	ID         string     `bson:"_id" json:"id"`
	CampaignID string     `bson:"campaignId" json:"campaignId"`
	StartedBy  string     `bson:"startedBy" json:"startedBy"`
	Status     Status     `bson:"status" json:"status"`
	StartedAt  time.Time  `bson:"startedAt" json:"startedAt"`
	EndedAt    *time.Time `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
}

// Event types recorded in the audit log.
const (
	EventSessionStart  = "session_start"
	EventSessionPause  = "session_pause"
	EventSessionResume = "session_resume"
	EventSessionEnd    = "session_end"
	EventHexReveal     = "hex_reveal"
	EventHexHide       = "hex_hide"
	EventHexUpdate     = "hex_update"
	EventPlayerJoin    = "player_join"
	EventPlayerLeave   = "player_leave"
	EventTokenMove     = "token_move"
	EventPublish       = "broadcast_publish"
)

// Event is one audit-log entry tied to a session.
type Event struct {
	ID        string                 `bson:"_id" json:"id"`
	SessionID string                 `bson:"sessionId" json:"sessionId"`
	Type      string                 `bson:"eventType" json:"eventType"`
	UserID    string                 `bson:"userId" json:"userId"`
	Payload   map[string]interface{} `bson:"payload,omitempty" json:"payload,omitempty"`
	CreatedAt time.Time              `bson:"createdAt" json:"createdAt"`
}

// VisibilityRecord is one persisted row of the fog ledger, unique on
// (campaign, hex, viewer). It is the durable source of truth the in-memory
// reveal state is rebuilt from.
type VisibilityRecord struct {
	CampaignID string
	HexKey     string
	Viewer     Viewer
	RevealedBy string
	RevealedAt time.Time
}

// SessionStore persists session lifecycle records.
type SessionStore interface {
	CreateSession(ctx context.Context, rec SessionRecord) error
	UpdateSessionStatus(ctx context.Context, sessionID string, status Status, endedAt *time.Time) error
}

// EventSink records audit events. Implementations are best-effort: the
// engine never blocks on them and never rolls back in-memory state when
// they fail.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}

// FogStore persists the hex visibility ledger.
type FogStore interface {
	// Load returns every visibility record for a campaign.
	Load(ctx context.Context, campaignID string) ([]VisibilityRecord, error)
	// Reveal upserts one record per (hex, viewer) pair.
	Reveal(ctx context.Context, records []VisibilityRecord) error
	// Hide removes the matching records. A record with an AllPlayers viewer
	// removes every viewer entry for that hex.
	Hide(ctx context.Context, campaignID string, hexKeys []string, viewers []Viewer) error
}

// HexStore persists campaign map terrain.
type HexStore interface {
	// Load returns hexKey -> terrain for a campaign.
	Load(ctx context.Context, campaignID string) (map[string]string, error)
	SetTerrain(ctx context.Context, campaignID string, changes []TerrainChange) error
}

// TokenStore persists map markers.
type TokenStore interface {
	List(ctx context.Context, campaignID string) ([]*Token, error)
	Create(ctx context.Context, token *Token) error
	UpdatePosition(ctx context.Context, tokenID, hexKey string) error
	UpdateFields(ctx context.Context, tokenID string, updates TokenUpdates) error
	Delete(ctx context.Context, tokenID string) error
}

// PresenceSink mirrors room membership into an external registry so
// processes without a websocket can observe who is connected. Best-effort,
// like EventSink.
type PresenceSink interface {
	Join(ctx context.Context, campaignID, userID, name string) error
	Leave(ctx context.Context, campaignID, userID string) error
}

// Stores bundles the persistence collaborators the engine consumes.
// Any field may be nil (e.g. in tests), in which case the corresponding
// writes are skipped.
type Stores struct {
	Sessions SessionStore
	Events   EventSink
	Fog      FogStore
	Hexes    HexStore
	Tokens   TokenStore
	Presence PresenceSink
}
