package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/hexcrawl/backend/internal/hexgrid"
)

// handleTokenCreate places a new marker. Host-only (enforced by the
// router); visibility defaults to true and the full token is broadcast.
func (e *Engine) handleTokenCreate(room *Room, conn *Conn, msg TokenCreateMsg) {
	token := &Token{
		ID:         uuid.NewString(),
		CampaignID: room.CampaignID,
		HexKey:     msg.HexKey,
		OwnerID:    msg.OwnerID,
		Label:      msg.Label,
		Icon:       msg.Icon,
		Color:      msg.Color,
		Type:       msg.TokenType,
		Visible:    true,
		CreatedBy:  conn.UserID,
	}

	room.mu.Lock()
	room.tokens[token.ID] = token
	e.broadcastLocked(room, TokenCreatedMsg{Type: TypeTokenCreated, Token: token}, nil)
	room.mu.Unlock()

	if e.stores.Tokens != nil {
		e.persist("token create", func(ctx context.Context) error {
			return e.stores.Tokens.Create(ctx, token)
		})
	}
	e.logger.Infof("Token %s created at %s in campaign %s", token.ID, token.HexKey, room.CampaignID)
}

// handleTokenMove applies the movement authority rules: the host may move
// any token any distance; a participant may only move a token they own,
// and only by exactly one hex of cube distance.
func (e *Engine) handleTokenMove(room *Room, conn *Conn, msg TokenMoveMsg) {
	if _, _, err := hexgrid.ParseKey(msg.ToHexKey); err != nil {
		e.send(conn, ErrorMsg{Type: TypeError, Message: "Invalid destination hex"})
		return
	}

	room.mu.Lock()
	token, ok := room.tokens[msg.TokenID]
	if !ok {
		e.send(conn, ErrorMsg{Type: TypeError, Message: "Token not found"})
		room.mu.Unlock()
		return
	}

	if conn.Role != RoleHost {
		if token.OwnerID != conn.UserID {
			e.send(conn, ErrorMsg{Type: TypeError, Message: "You do not control this token"})
			room.mu.Unlock()
			return
		}
		if hexgrid.CubeDistance(token.HexKey, msg.ToHexKey) != 1 {
			e.send(conn, ErrorMsg{Type: TypeError, Message: "Tokens may only move one hex at a time"})
			room.mu.Unlock()
			return
		}
	}

	fromHexKey := token.HexKey
	token.HexKey = msg.ToHexKey

	e.broadcastLocked(room, TokenMovedMsg{
		Type:       TypeTokenMoved,
		TokenID:    token.ID,
		FromHexKey: fromHexKey,
		ToHexKey:   msg.ToHexKey,
		MovedBy:    conn.UserID,
	}, nil)
	sessionID := room.SessionID
	room.mu.Unlock()

	if e.stores.Tokens != nil {
		e.persist("token move", func(ctx context.Context) error {
			return e.stores.Tokens.UpdatePosition(ctx, msg.TokenID, msg.ToHexKey)
		})
	}
	e.recordEvent(sessionID, EventTokenMove, conn.UserID, map[string]interface{}{
		"tokenId": msg.TokenID,
		"from":    fromHexKey,
		"to":      msg.ToHexKey,
	})
}

// handleTokenUpdate mutates marker fields. The host may change any of
// icon/color/visible/label; a participant may change only the icon, and
// only on a token they own.
func (e *Engine) handleTokenUpdate(room *Room, conn *Conn, msg TokenUpdateMsg) {
	room.mu.Lock()
	token, ok := room.tokens[msg.TokenID]
	if !ok {
		e.send(conn, ErrorMsg{Type: TypeError, Message: "Token not found"})
		room.mu.Unlock()
		return
	}

	if conn.Role != RoleHost {
		if token.OwnerID != conn.UserID {
			e.send(conn, ErrorMsg{Type: TypeError, Message: "You do not control this token"})
			room.mu.Unlock()
			return
		}
		if msg.Updates.Color != nil || msg.Updates.Visible != nil || msg.Updates.Label != nil {
			e.send(conn, ErrorMsg{Type: TypeError, Message: "Players may only change a token's icon"})
			room.mu.Unlock()
			return
		}
	}

	if msg.Updates.Icon != nil {
		token.Icon = *msg.Updates.Icon
	}
	if msg.Updates.Color != nil {
		token.Color = *msg.Updates.Color
	}
	if msg.Updates.Visible != nil {
		token.Visible = *msg.Updates.Visible
	}
	if msg.Updates.Label != nil {
		token.Label = *msg.Updates.Label
	}

	e.broadcastLocked(room, TokenUpdatedMsg{
		Type:    TypeTokenUpdated,
		TokenID: token.ID,
		Updates: msg.Updates,
	}, nil)
	room.mu.Unlock()

	if e.stores.Tokens != nil {
		e.persist("token update", func(ctx context.Context) error {
			return e.stores.Tokens.UpdateFields(ctx, msg.TokenID, msg.Updates)
		})
	}
}

// handleTokenDelete removes a marker unconditionally. Host-only.
func (e *Engine) handleTokenDelete(room *Room, conn *Conn, msg TokenDeleteMsg) {
	room.mu.Lock()
	if _, ok := room.tokens[msg.TokenID]; !ok {
		e.sendHostLocked(room, ErrorMsg{Type: TypeError, Message: "Token not found"})
		room.mu.Unlock()
		return
	}
	delete(room.tokens, msg.TokenID)
	e.broadcastLocked(room, TokenDeletedMsg{Type: TypeTokenDeleted, TokenID: msg.TokenID}, nil)
	room.mu.Unlock()

	if e.stores.Tokens != nil {
		e.persist("token delete", func(ctx context.Context) error {
			return e.stores.Tokens.Delete(ctx, msg.TokenID)
		})
	}
}
