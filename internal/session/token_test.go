package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createToken(t *testing.T, e *Engine, dm *Conn, dmSock *fakeSocket, hexKey, ownerID string) string {
	t.Helper()
	sendJSON(t, e, "c1", dm, map[string]interface{}{
		"type": "token:create", "hexKey": hexKey, "label": "Ash",
		"icon": "wizard", "color": "#ffffff", "tokenType": "pc", "ownerId": ownerID,
	})
	created := dmSock.received(t, TypeTokenCreated)
	require.NotEmpty(t, created)
	token := created[len(created)-1]["token"].(map[string]interface{})
	return token["id"].(string)
}

func TestTokenCreateBroadcastsAndDefaultsVisible(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	_, p1Sock := connectUser(e, "c1", "p1", RolePlayer)

	createToken(t, e, dm, dmSock, "0,0", "p1")

	created := p1Sock.received(t, TypeTokenCreated)
	require.Len(t, created, 1)
	token := created[0]["token"].(map[string]interface{})
	assert.Equal(t, "0,0", token["hexKey"])
	assert.Equal(t, "p1", token["ownerId"])
	assert.Equal(t, true, token["visible"])
}

func TestOwnerMayMoveOneHex(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	player, playerSock := connectUser(e, "c1", "p1", RolePlayer)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "p1")
	playerSock.reset()
	dmSock.reset()

	sendJSON(t, e, "c1", player, map[string]string{
		"type": "token:move", "tokenId": tokenID, "toHexKey": "1,0",
	})

	for _, sock := range []*fakeSocket{dmSock, playerSock} {
		moves := sock.received(t, TypeTokenMoved)
		require.Len(t, moves, 1)
		assert.Equal(t, "0,0", moves[0]["fromHexKey"])
		assert.Equal(t, "1,0", moves[0]["toHexKey"])
		assert.Equal(t, "p1", moves[0]["movedBy"])
	}
	assert.Equal(t, "1,0", e.GetRoom("c1").tokens[tokenID].HexKey)
}

func TestOwnerMoveBeyondOneHexRejected(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	player, playerSock := connectUser(e, "c1", "p1", RolePlayer)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "p1")
	playerSock.reset()

	sendJSON(t, e, "c1", player, map[string]string{
		"type": "token:move", "tokenId": tokenID, "toHexKey": "2,0",
	})

	errs := playerSock.received(t, TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Tokens may only move one hex at a time", errs[0]["message"])
	assert.Equal(t, "0,0", e.GetRoom("c1").tokens[tokenID].HexKey)
}

func TestNonOwnerCannotMoveToken(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	connectUser(e, "c1", "p1", RolePlayer)
	other, otherSock := connectUser(e, "c1", "p2", RolePlayer)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "p1")
	otherSock.reset()

	sendJSON(t, e, "c1", other, map[string]string{
		"type": "token:move", "tokenId": tokenID, "toHexKey": "1,0",
	})

	errs := otherSock.received(t, TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "You do not control this token", errs[0]["message"])
}

func TestHostMovesAnyTokenAnyDistance(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "p1")
	dmSock.reset()

	sendJSON(t, e, "c1", dm, map[string]string{
		"type": "token:move", "tokenId": tokenID, "toHexKey": "4,-2",
	})

	assert.Empty(t, dmSock.received(t, TypeError))
	require.Len(t, dmSock.received(t, TypeTokenMoved), 1)
	assert.Equal(t, "4,-2", e.GetRoom("c1").tokens[tokenID].HexKey)
}

func TestMoveToMalformedHexRejectedEvenForHost(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "p1")
	dmSock.reset()

	sendJSON(t, e, "c1", dm, map[string]string{
		"type": "token:move", "tokenId": tokenID, "toHexKey": "garbage",
	})

	errs := dmSock.received(t, TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Invalid destination hex", errs[0]["message"])
	assert.Empty(t, dmSock.received(t, TypeTokenMoved))
	assert.Equal(t, "0,0", e.GetRoom("c1").tokens[tokenID].HexKey)
}

func TestMoveUnknownToken(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)

	sendJSON(t, e, "c1", dm, map[string]string{
		"type": "token:move", "tokenId": "ghost", "toHexKey": "1,0",
	})

	errs := dmSock.received(t, TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Token not found", errs[0]["message"])
}

func TestOwnerMayOnlyChangeIcon(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	player, playerSock := connectUser(e, "c1", "p1", RolePlayer)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "p1")
	playerSock.reset()

	sendJSON(t, e, "c1", player, map[string]interface{}{
		"type": "token:update", "tokenId": tokenID,
		"updates": map[string]string{"icon": "ranger"},
	})
	assert.Empty(t, playerSock.received(t, TypeError))
	assert.Equal(t, "ranger", e.GetRoom("c1").tokens[tokenID].Icon)

	playerSock.reset()
	sendJSON(t, e, "c1", player, map[string]interface{}{
		"type": "token:update", "tokenId": tokenID,
		"updates": map[string]interface{}{"label": "Renamed"},
	})
	errs := playerSock.received(t, TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Players may only change a token's icon", errs[0]["message"])
	assert.Equal(t, "Ash", e.GetRoom("c1").tokens[tokenID].Label)
}

func TestHostUpdatesAnyField(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	_, playerSock := connectUser(e, "c1", "p1", RolePlayer)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "p1")
	playerSock.reset()

	sendJSON(t, e, "c1", dm, map[string]interface{}{
		"type": "token:update", "tokenId": tokenID,
		"updates": map[string]interface{}{"label": "Shade", "visible": false, "color": "#000"},
	})

	token := e.GetRoom("c1").tokens[tokenID]
	assert.Equal(t, "Shade", token.Label)
	assert.Equal(t, "#000", token.Color)
	assert.False(t, token.Visible)
	require.Len(t, playerSock.received(t, TypeTokenUpdated), 1)
}

func TestTokenDeleteBroadcasts(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	_, playerSock := connectUser(e, "c1", "p1", RolePlayer)
	tokenID := createToken(t, e, dm, dmSock, "0,0", "")
	playerSock.reset()

	sendJSON(t, e, "c1", dm, map[string]string{"type": "token:delete", "tokenId": tokenID})

	deleted := playerSock.received(t, TypeTokenDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, tokenID, deleted[0]["tokenId"])
	assert.Empty(t, e.GetRoom("c1").tokens)
}

func TestSnapshotHidesInvisibleTokensFromPlayers(t *testing.T) {
	e := newTestEngine()
	dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	visibleID := createToken(t, e, dm, dmSock, "0,0", "")
	hiddenID := createToken(t, e, dm, dmSock, "1,0", "")
	sendJSON(t, e, "c1", dm, map[string]interface{}{
		"type": "token:update", "tokenId": hiddenID,
		"updates": map[string]interface{}{"visible": false},
	})

	playerSock := &fakeSocket{}
	e.Connect("c1", "p1", "Pia", RolePlayer, playerSock)
	states := playerSock.received(t, TypeTokenState)
	require.Len(t, states, 1)
	tokens := states[0]["tokens"].([]interface{})
	require.Len(t, tokens, 1)
	assert.Equal(t, visibleID, tokens[0].(map[string]interface{})["id"])

	hostSock := &fakeSocket{}
	e.Connect("c1", "dm1", "Dee", RoleHost, hostSock)
	states = hostSock.received(t, TypeTokenState)
	require.Len(t, states, 1)
	assert.Len(t, states[0]["tokens"], 2)
}

func TestSnapshotScopesRevealedHexesPerViewer(t *testing.T) {
	e := newTestEngine()
	dm, _ := connectUser(e, "c1", "dm1", RoleHost)
	revealFor(t, e, dm, []string{"0,0"}, "p1")
	revealFor(t, e, dm, []string{"3,3"}, "p2")

	p1Sock := &fakeSocket{}
	e.Connect("c1", "p1", "Pia", RolePlayer, p1Sock)
	states := p1Sock.received(t, TypeSessionState)
	require.Len(t, states, 1)
	assert.ElementsMatch(t, []interface{}{"0,0"}, states[0]["revealedHexes"])

	hostSock := &fakeSocket{}
	e.Connect("c1", "dm1", "Dee", RoleHost, hostSock)
	states = hostSock.received(t, TypeSessionState)
	require.Len(t, states, 1)
	assert.ElementsMatch(t, []interface{}{"0,0", "3,3"}, states[0]["revealedHexes"])
}
