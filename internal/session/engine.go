package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPersistTimeout = 10 * time.Second

// Engine owns the room table and executes every inbound message against
// authoritative room state. It is constructed once at process start and
// passed by reference to the transport layer; there is no package-level
// registry.
type Engine struct {
	ctx    context.Context
	stores Stores
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	rooms map[string]*Room

	persistTimeout time.Duration
}

// NewEngine creates the session engine. Stores may contain nil fields, in
// which case the corresponding persistence calls are skipped.
func NewEngine(ctx context.Context, stores Stores, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		ctx:            ctx,
		stores:         stores,
		logger:         logger,
		rooms:          make(map[string]*Room),
		persistTimeout: defaultPersistTimeout,
	}
}

// getOrCreateRoom returns the room for a campaign, creating it in the
// waiting state and loading its persisted fog/terrain/token state on first
// use. Load failures are logged and leave the room with empty state; the
// host can still drive the session.
func (e *Engine) getOrCreateRoom(campaignID string) *Room {
	e.mu.Lock()
	defer e.mu.Unlock()

	if room, ok := e.rooms[campaignID]; ok {
		return room
	}

	room := newRoom(campaignID)
	e.loadRoomState(room)
	room.loadedAt = time.Now()
	e.rooms[campaignID] = room
	return room
}

// GetRoom returns a room without creating it, or nil.
func (e *Engine) GetRoom(campaignID string) *Room {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rooms[campaignID]
}

// RoomSummary returns a room's lifecycle status and session id without
// exposing its lock to callers. ok is false when no room exists.
func (e *Engine) RoomSummary(campaignID string) (status Status, sessionID string, ok bool) {
	room := e.GetRoom(campaignID)
	if room == nil {
		return "", "", false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.Status, room.SessionID, true
}

// RoomCount returns the number of live rooms.
func (e *Engine) RoomCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rooms)
}

func (e *Engine) loadRoomState(room *Room) {
	ctx, cancel := context.WithTimeout(e.ctx, e.persistTimeout)
	defer cancel()

	if e.stores.Fog != nil {
		records, err := e.stores.Fog.Load(ctx, room.CampaignID)
		if err != nil {
			e.logger.Warnf("Failed to load fog ledger for campaign %s: %v", room.CampaignID, err)
		} else {
			for _, rec := range records {
				viewers, ok := room.revealed[rec.HexKey]
				if !ok {
					viewers = make(map[Viewer]struct{})
					room.revealed[rec.HexKey] = viewers
				}
				viewers[rec.Viewer] = struct{}{}
			}
		}
	}

	if e.stores.Hexes != nil {
		terrain, err := e.stores.Hexes.Load(ctx, room.CampaignID)
		if err != nil {
			e.logger.Warnf("Failed to load map data for campaign %s: %v", room.CampaignID, err)
		} else if terrain != nil {
			room.terrain = terrain
		}
	}

	if e.stores.Tokens != nil {
		tokens, err := e.stores.Tokens.List(ctx, room.CampaignID)
		if err != nil {
			e.logger.Warnf("Failed to load tokens for campaign %s: %v", room.CampaignID, err)
		} else {
			for _, tok := range tokens {
				room.tokens[tok.ID] = tok
			}
		}
	}
}

// maybeDropRoom deletes the room if it has no connections and no session
// worth keeping. Active/paused rooms survive with zero connections so
// reconnecting clients resume the same state.
func (e *Engine) maybeDropRoom(room *Room) {
	e.mu.Lock()
	defer e.mu.Unlock()

	room.mu.Lock()
	empty := len(room.conns) == 0
	dormant := room.Status == StatusWaiting || room.Status == StatusEnded
	room.mu.Unlock()

	if empty && dormant && e.rooms[room.CampaignID] == room {
		delete(e.rooms, room.CampaignID)
		e.logger.Infof("Dropped empty room for campaign %s", room.CampaignID)
	}
}

// ---------------------------------------------------------------------------
// Connection multiplexing
// ---------------------------------------------------------------------------

// Connect registers a connection for a user in a campaign room. A user may
// hold at most one live connection per room: a newer connection forcibly
// closes any stale one, so rapid reconnect storms converge on the newest
// socket. The new client receives the connected handshake plus a
// role-scoped full state snapshot, and everyone gets a presence update.
func (e *Engine) Connect(campaignID, userID, name string, role Role, socket Socket) *Conn {
	e.mu.Lock()
	room, ok := e.rooms[campaignID]
	if !ok {
		room = newRoom(campaignID)
		e.loadRoomState(room)
		room.loadedAt = time.Now()
		e.rooms[campaignID] = room
	}
	// Take the room lock before releasing the registry lock so a concurrent
	// last-member disconnect cannot drop the room between lookup and install.
	room.mu.Lock()
	e.mu.Unlock()
	if existing, ok := room.conns[userID]; ok && existing.Socket != socket {
		e.logger.Infof("Replacing existing connection for user %s in campaign %s", userID, campaignID)
		// Best effort: the old socket may already be gone.
		_ = existing.Socket.Close()
	}
	conn := &Conn{UserID: userID, Name: name, Role: role, Socket: socket}
	room.conns[userID] = conn

	e.send(conn, ConnectedMsg{Type: TypeConnected, UserID: userID, Role: role})
	e.pushSnapshot(room, conn)

	e.broadcastLocked(room, PlayerJoinedMsg{Type: TypePlayerJoined, UserID: userID, Name: name}, nil)
	e.broadcastLocked(room, PlayerPresenceMsg{Type: TypePlayerPresence, Players: room.presenceLocked()}, nil)
	sessionID := room.SessionID
	room.mu.Unlock()

	e.recordEvent(sessionID, EventPlayerJoin, userID, map[string]interface{}{"name": name})
	if e.stores.Presence != nil {
		e.persist("presence join", func(ctx context.Context) error {
			return e.stores.Presence.Join(ctx, campaignID, userID, name)
		})
	}
	return conn
}

// Disconnect removes a connection from a room. The conn identity is checked
// so a close event from an already-replaced socket does not evict the
// newer connection. Removing the last connection drops the room unless a
// session is active or paused.
func (e *Engine) Disconnect(campaignID string, conn *Conn) {
	room := e.GetRoom(campaignID)
	if room == nil {
		return
	}

	room.mu.Lock()
	current, ok := room.conns[conn.UserID]
	if !ok || current != conn {
		room.mu.Unlock()
		return
	}
	delete(room.conns, conn.UserID)

	e.broadcastLocked(room, PlayerLeftMsg{Type: TypePlayerLeft, UserID: conn.UserID}, nil)
	e.broadcastLocked(room, PlayerPresenceMsg{Type: TypePlayerPresence, Players: room.presenceLocked()}, nil)
	sessionID := room.SessionID
	room.mu.Unlock()

	e.recordEvent(sessionID, EventPlayerLeave, conn.UserID, nil)
	if e.stores.Presence != nil {
		e.persist("presence leave", func(ctx context.Context) error {
			return e.stores.Presence.Leave(ctx, campaignID, conn.UserID)
		})
	}
	e.maybeDropRoom(room)
}

func (r *Room) presenceLocked() []PresenceEntry {
	players := make([]PresenceEntry, 0, len(r.conns))
	for _, c := range r.conns {
		players = append(players, PresenceEntry{UserID: c.UserID, Name: c.Name, Online: true})
	}
	return players
}

// ---------------------------------------------------------------------------
// Outbound fan-out
// ---------------------------------------------------------------------------

// send marshals and fires one message at one connection. Send failures are
// swallowed: a dead socket is cleaned up by the transport's close event,
// never here.
func (e *Engine) send(conn *Conn, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		e.logger.Errorf("Failed to marshal %T: %v", msg, err)
		return
	}
	if err := conn.Socket.Send(data); err != nil {
		e.logger.Debugf("Dropped send to user %s: %v", conn.UserID, err)
	}
}

// broadcastLocked sends to every connection passing the filter. The caller
// holds room.mu.
func (e *Engine) broadcastLocked(room *Room, msg ServerMessage, filter func(*Conn) bool) {
	for _, conn := range room.conns {
		if filter == nil || filter(conn) {
			e.send(conn, msg)
		}
	}
}

// sendHostLocked sends a message to the host only. Host-facing errors from
// host-only actions go through here so players never see them.
func (e *Engine) sendHostLocked(room *Room, msg ServerMessage) {
	if host := room.host(); host != nil {
		e.send(host, msg)
	}
}

// sendPlayersLocked sends to players, optionally restricted to specific ids.
func (e *Engine) sendPlayersLocked(room *Room, msg ServerMessage, playerIDs []string) {
	var allowed map[string]struct{}
	if playerIDs != nil {
		allowed = make(map[string]struct{}, len(playerIDs))
		for _, id := range playerIDs {
			allowed[id] = struct{}{}
		}
	}
	e.broadcastLocked(room, msg, func(c *Conn) bool {
		if c.Role != RolePlayer {
			return false
		}
		if allowed == nil {
			return true
		}
		_, ok := allowed[c.UserID]
		return ok
	})
}

// sendUserLocked sends to one user id if connected.
func (e *Engine) sendUserLocked(room *Room, userID string, msg ServerMessage) {
	if conn, ok := room.conns[userID]; ok {
		e.send(conn, msg)
	}
}

// ---------------------------------------------------------------------------
// Best-effort persistence
// ---------------------------------------------------------------------------

// persist runs a store write off the message path. In-memory state and the
// broadcasts derived from it are the source of truth for connected clients;
// a failed write is logged, never rolled back and never blocks dispatch.
func (e *Engine) persist(op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(e.ctx, e.persistTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Warnf("Persistence failed (%s): %v", op, err)
		}
	}()
}

func (e *Engine) recordEvent(sessionID, eventType, userID string, payload map[string]interface{}) {
	if e.stores.Events == nil || sessionID == "" {
		return
	}
	event := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	e.persist("event "+eventType, func(ctx context.Context) error {
		return e.stores.Events.Record(ctx, event)
	})
}
