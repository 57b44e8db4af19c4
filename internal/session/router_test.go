package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalPayloads holds one valid payload per client message type, used to
// prove the dispatch switch covers every variant.
var minimalPayloads = map[string]string{
	TypeSessionStart:     `{"type":"session:start"}`,
	TypeSessionPause:     `{"type":"session:pause"}`,
	TypeSessionResume:    `{"type":"session:resume"}`,
	TypeSessionEnd:       `{"type":"session:end"}`,
	TypeBroadcastMode:    `{"type":"broadcast:mode","mode":"immediate"}`,
	TypeBroadcastPublish: `{"type":"broadcast:publish"}`,
	TypeStagedUndo:       `{"type":"staged:undo","index":0}`,
	TypeHexReveal:        `{"type":"hex:reveal","hexKeys":["0,0"],"targets":"all"}`,
	TypeHexHide:          `{"type":"hex:hide","hexKeys":["0,0"],"targets":"all"}`,
	TypeHexUpdate:        `{"type":"hex:update","changes":[{"key":"0,0","terrain":"forest"}]}`,
	TypeTokenCreate:      `{"type":"token:create","hexKey":"0,0","label":"Ash","icon":"wizard","color":"#fff","tokenType":"pc"}`,
	TypeTokenMove:        `{"type":"token:move","tokenId":"missing","toHexKey":"0,0"}`,
	TypeTokenUpdate:      `{"type":"token:update","tokenId":"missing","updates":{}}`,
	TypeTokenDelete:      `{"type":"token:delete","tokenId":"missing"}`,
}

// Every type ParseClientMessage accepts must land in a real handler. A new
// variant that only grows the parser trips the "unhandled message type"
// backstop here.
func TestEveryClientMessageTypeHasHandler(t *testing.T) {
	for msgType, payload := range minimalPayloads {
		t.Run(msgType, func(t *testing.T) {
			// Fresh engine per type so lifecycle guards don't interfere.
			e := newTestEngine()
			dm, dmSock := connectUser(e, "c1", "dm1", RoleHost)

			parsedType, _, err := ParseClientMessage([]byte(payload))
			require.NoError(t, err, "fixture payload must parse")
			require.Equal(t, msgType, parsedType)

			e.HandleMessage("c1", dm, []byte(payload))
			for _, errMsg := range dmSock.received(t, TypeError) {
				assert.NotEqual(t, "unhandled message type", errMsg["message"])
			}
		})
	}
}

func TestMinimalPayloadsCoverTheClosedSet(t *testing.T) {
	clientTypes := []string{
		TypeSessionStart, TypeSessionPause, TypeSessionResume, TypeSessionEnd,
		TypeBroadcastMode, TypeBroadcastPublish, TypeStagedUndo,
		TypeHexReveal, TypeHexHide, TypeHexUpdate,
		TypeTokenCreate, TypeTokenMove, TypeTokenUpdate, TypeTokenDelete,
	}
	require.Len(t, minimalPayloads, len(clientTypes))
	for _, msgType := range clientTypes {
		assert.Contains(t, minimalPayloads, msgType)
	}
}

func TestPlayerRejectedFromHostOnlyActions(t *testing.T) {
	e := newTestEngine()
	_, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	player, playerSock := connectUser(e, "c1", "p1", RolePlayer)
	dmSock.reset()

	e.HandleMessage("c1", player, []byte(`{"type":"hex:reveal","hexKeys":["0,0"],"targets":"all"}`))

	errs := playerSock.received(t, TypeError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0]["message"], "restricted to the DM")

	// No state change, nothing broadcast to anyone else.
	assert.Empty(t, dmSock.typeSequence(t))
	room := e.GetRoom("c1")
	room.mu.Lock()
	assert.Empty(t, room.revealed)
	room.mu.Unlock()
}

func TestMalformedPayloadGetsPrivateError(t *testing.T) {
	e := newTestEngine()
	_, dmSock := connectUser(e, "c1", "dm1", RoleHost)
	player, playerSock := connectUser(e, "c1", "p1", RolePlayer)
	dmSock.reset()

	e.HandleMessage("c1", player, []byte(`{"type":"hex:conjure"}`))

	errs := playerSock.received(t, TypeError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0]["message"], "unknown message type")
	assert.Empty(t, dmSock.typeSequence(t))
}
