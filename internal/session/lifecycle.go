package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// handleSessionStart moves a room from waiting/ended into active. A fresh
// session record is allocated each time, so starting after an end restarts
// the session id, and any staged queue left over from a prior session is
// cleared.
func (e *Engine) handleSessionStart(room *Room, conn *Conn) {
	room.mu.Lock()
	if room.Status == StatusActive || room.Status == StatusPaused {
		e.sendHostLocked(room, ErrorMsg{Type: TypeError, Message: "Session is already active"})
		room.mu.Unlock()
		return
	}

	sessionID := uuid.NewString()
	room.SessionID = sessionID
	room.Status = StatusActive
	room.Staged = nil

	e.broadcastLocked(room, StatusChangedMsg{Type: TypeStatusChanged, Status: StatusActive}, nil)
	room.mu.Unlock()

	if e.stores.Sessions != nil {
		rec := SessionRecord{
			ID:         sessionID,
			CampaignID: room.CampaignID,
			StartedBy:  conn.UserID,
			Status:     StatusActive,
			StartedAt:  time.Now(),
		}
		e.persist("session create", func(ctx context.Context) error {
			return e.stores.Sessions.CreateSession(ctx, rec)
		})
	}
	e.recordEvent(sessionID, EventSessionStart, conn.UserID, nil)
	e.logger.Infof("Session %s started for campaign %s by %s", sessionID, room.CampaignID, conn.UserID)
}

// handleSessionPause is only valid from active.
func (e *Engine) handleSessionPause(room *Room, conn *Conn) {
	e.transition(room, conn, StatusActive, StatusPaused, EventSessionPause, "No active session to pause")
}

// handleSessionResume is only valid from paused.
func (e *Engine) handleSessionResume(room *Room, conn *Conn) {
	e.transition(room, conn, StatusPaused, StatusActive, EventSessionResume, "No paused session to resume")
}

// handleSessionEnd is valid from active or paused. Ending clears the staged
// queue; the room itself survives until its last connection leaves.
func (e *Engine) handleSessionEnd(room *Room, conn *Conn) {
	room.mu.Lock()
	if room.Status != StatusActive && room.Status != StatusPaused {
		e.sendHostLocked(room, ErrorMsg{Type: TypeError, Message: "No active or paused session to end"})
		room.mu.Unlock()
		return
	}

	sessionID := room.SessionID
	room.Status = StatusEnded
	room.Staged = nil

	e.broadcastLocked(room, StatusChangedMsg{Type: TypeStatusChanged, Status: StatusEnded}, nil)
	room.mu.Unlock()

	if e.stores.Sessions != nil && sessionID != "" {
		endedAt := time.Now()
		e.persist("session end", func(ctx context.Context) error {
			return e.stores.Sessions.UpdateSessionStatus(ctx, sessionID, StatusEnded, &endedAt)
		})
	}
	e.recordEvent(sessionID, EventSessionEnd, conn.UserID, nil)
	e.logger.Infof("Session %s ended for campaign %s", sessionID, room.CampaignID)
}

// transition applies a guarded pause/resume step. Guard violations produce
// a host-only error reply and no state change.
func (e *Engine) transition(room *Room, conn *Conn, from, to Status, eventType, guardMsg string) {
	room.mu.Lock()
	if room.Status != from {
		e.sendHostLocked(room, ErrorMsg{Type: TypeError, Message: guardMsg})
		room.mu.Unlock()
		return
	}

	sessionID := room.SessionID
	room.Status = to

	e.broadcastLocked(room, StatusChangedMsg{Type: TypeStatusChanged, Status: to}, nil)
	room.mu.Unlock()

	if e.stores.Sessions != nil && sessionID != "" {
		e.persist("session status", func(ctx context.Context) error {
			return e.stores.Sessions.UpdateSessionStatus(ctx, sessionID, to, nil)
		})
	}
	e.recordEvent(sessionID, eventType, conn.UserID, nil)
}
