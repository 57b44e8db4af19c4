package session

import (
	"github.com/google/uuid"
)

// handleBroadcastMode switches a room between immediate and staged
// delivery. Switching back to immediate discards any still-queued changes:
// the host chose not to publish them, and carrying them over would surprise
// everyone the next time staged mode is entered.
func (e *Engine) handleBroadcastMode(room *Room, conn *Conn, msg BroadcastModeMsg) {
	room.mu.Lock()
	room.Mode = msg.Mode
	if msg.Mode == ModeImmediate {
		room.Staged = nil
	}
	e.broadcastLocked(room, DMPreparingMsg{Type: TypeDMPreparing, Preparing: msg.Mode == ModeStaged}, nil)
	room.mu.Unlock()

	e.logger.Infof("Broadcast mode for campaign %s set to %s by %s", room.CampaignID, msg.Mode, conn.UserID)
}

// handleBroadcastPublish flushes the staged queue atomically: every queued
// change is replayed in original order to its original recipients, the
// queue is cleared, and the host sees zero changes remaining. Publishing an
// empty queue is a host-facing error that emits no events.
func (e *Engine) handleBroadcastPublish(room *Room, conn *Conn) {
	room.mu.Lock()
	if len(room.Staged) == 0 {
		e.sendHostLocked(room, ErrorMsg{Type: TypeError, Message: "No staged changes to publish"})
		room.mu.Unlock()
		return
	}

	staged := room.Staged
	room.Staged = nil

	for _, change := range staged {
		for _, delivery := range change.Deliveries {
			e.sendUserLocked(room, delivery.UserID, delivery.Message)
		}
	}
	e.sendHostLocked(room, StagedChangesMsg{Type: TypeStagedChanges, Changes: []StagedChange{}})
	sessionID := room.SessionID
	room.mu.Unlock()

	e.recordEvent(sessionID, EventPublish, conn.UserID, map[string]interface{}{
		"changeCount": len(staged),
	})
	e.logger.Infof("Published %d staged changes for campaign %s", len(staged), room.CampaignID)
}

// handleStagedUndo removes one queued change by position. An out-of-range
// index is a host-facing error, not a crash.
func (e *Engine) handleStagedUndo(room *Room, conn *Conn, msg StagedUndoMsg) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if msg.Index < 0 || msg.Index >= len(room.Staged) {
		e.sendHostLocked(room, ErrorMsg{Type: TypeError, Message: "Invalid staged change index"})
		return
	}

	room.Staged = append(room.Staged[:msg.Index], room.Staged[msg.Index+1:]...)
	e.sendHostLocked(room, StagedChangesMsg{Type: TypeStagedChanges, Changes: room.Staged})
}

// deliverOrStage routes a batch of per-recipient messages according to the
// room's broadcast mode. In staged mode the fully built outgoing messages
// are captured, not the raw request, so a delayed publish still reflects
// the state at stage time. The caller holds room.mu.
func (e *Engine) deliverOrStage(room *Room, kind, description string, deliveries []StagedDelivery) {
	if room.Mode == ModeStaged {
		room.Staged = append(room.Staged, StagedChange{
			ID:          uuid.NewString(),
			Description: description,
			Kind:        kind,
			Deliveries:  deliveries,
		})
		e.sendHostLocked(room, StagedChangesMsg{Type: TypeStagedChanges, Changes: room.Staged})
		return
	}
	for _, delivery := range deliveries {
		e.sendUserLocked(room, delivery.UserID, delivery.Message)
	}
}
