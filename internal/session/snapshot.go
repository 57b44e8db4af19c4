package session

import "sort"

// pushSnapshot sends the full state a (re)connecting client is authorized
// to see. There is no delta replay across disconnects: this snapshot is the
// resynchronization mechanism. The caller holds room.mu.
func (e *Engine) pushSnapshot(room *Room, conn *Conn) {
	state := SessionStateMsg{
		Type:             TypeSessionState,
		Status:           room.Status,
		BroadcastMode:    room.Mode,
		ConnectedPlayers: room.presenceLocked(),
	}

	if conn.Role == RoleHost {
		// The host sees the whole ledger; no adjacent ring is needed since
		// nothing is hidden from them.
		keys := make([]string, 0, len(room.revealed))
		for key := range room.revealed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		state.RevealedHexes = keys
	} else {
		revealed := room.revealedSet(conn.UserID)
		keys := make([]string, 0, len(revealed))
		for key := range revealed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		state.RevealedHexes = keys
		state.AdjacentHexes = room.adjacentForLocked(conn.UserID)
	}
	e.send(conn, state)

	e.send(conn, TokenStateMsg{Type: TypeTokenState, Tokens: room.tokensForLocked(conn)})
}

// tokensForLocked filters the token list by viewer: participants never
// receive tokens flagged invisible.
func (r *Room) tokensForLocked(conn *Conn) []*Token {
	tokens := make([]*Token, 0, len(r.tokens))
	for _, token := range r.tokens {
		if conn.Role != RoleHost && !token.Visible {
			continue
		}
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens
}
