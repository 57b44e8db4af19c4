package session

// HandleMessage parses, authorizes, and dispatches one inbound payload from
// a connected client. Malformed payloads, unknown types, and host-only
// violations produce a private error reply and no state change. Every
// recognized, authorized message reaches exactly one handler.
func (e *Engine) HandleMessage(campaignID string, conn *Conn, raw []byte) {
	msgType, msg, err := ParseClientMessage(raw)
	if err != nil {
		e.logger.Debugf("Rejected message from user %s in campaign %s: %v", conn.UserID, campaignID, err)
		e.send(conn, ErrorMsg{Type: TypeError, Message: err.Error()})
		return
	}

	if IsHostOnly(msgType) && conn.Role != RoleHost {
		e.send(conn, ErrorMsg{Type: TypeError, Message: "Action '" + msgType + "' is restricted to the DM"})
		return
	}

	room := e.getOrCreateRoom(campaignID)

	switch m := msg.(type) {
	case SessionStartMsg:
		e.handleSessionStart(room, conn)
	case SessionPauseMsg:
		e.handleSessionPause(room, conn)
	case SessionResumeMsg:
		e.handleSessionResume(room, conn)
	case SessionEndMsg:
		e.handleSessionEnd(room, conn)
	case BroadcastModeMsg:
		e.handleBroadcastMode(room, conn, m)
	case BroadcastPublishMsg:
		e.handleBroadcastPublish(room, conn)
	case StagedUndoMsg:
		e.handleStagedUndo(room, conn, m)
	case HexRevealMsg:
		e.handleHexReveal(room, conn, m)
	case HexHideMsg:
		e.handleHexHide(room, conn, m)
	case HexUpdateMsg:
		e.handleHexUpdate(room, conn, m)
	case TokenCreateMsg:
		e.handleTokenCreate(room, conn, m)
	case TokenMoveMsg:
		e.handleTokenMove(room, conn, m)
	case TokenUpdateMsg:
		e.handleTokenUpdate(room, conn, m)
	case TokenDeleteMsg:
		e.handleTokenDelete(room, conn, m)
	default:
		// ParseClientMessage returns a closed set; reaching this means a
		// variant was added without a handler. The exhaustiveness test
		// fails before this ships.
		e.logger.Errorf("No handler for message type %s", msgType)
		e.send(conn, ErrorMsg{Type: TypeError, Message: "unhandled message type"})
	}
}
