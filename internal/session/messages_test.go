package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientMessageKnownTypes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    interface{}
	}{
		{
			name:    "session start",
			payload: `{"type":"session:start"}`,
			want:    SessionStartMsg{},
		},
		{
			name:    "broadcast mode",
			payload: `{"type":"broadcast:mode","mode":"staged"}`,
			want:    BroadcastModeMsg{Mode: ModeStaged},
		},
		{
			name:    "hex reveal for all",
			payload: `{"type":"hex:reveal","hexKeys":["0,0","1,0"],"targets":"all"}`,
			want: HexRevealMsg{
				HexKeys: []string{"0,0", "1,0"},
				Targets: TargetSet{All: true},
			},
		},
		{
			name:    "hex hide for subset",
			payload: `{"type":"hex:hide","hexKeys":["2,-1"],"targets":{"playerIds":["p1","p2"]}}`,
			want: HexHideMsg{
				HexKeys: []string{"2,-1"},
				Targets: TargetSet{PlayerIDs: []string{"p1", "p2"}},
			},
		},
		{
			name:    "token move",
			payload: `{"type":"token:move","tokenId":"t1","toHexKey":"1,0"}`,
			want:    TokenMoveMsg{TokenID: "t1", ToHexKey: "1,0"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.payload))
			require.NoError(t, err)
			assert.NotEmpty(t, msgType)
			assert.Equal(t, tc.want, msg)
		})
	}
}

func TestParseClientMessageRejections(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"malformed JSON", `{"type":`},
		{"missing type", `{"hexKeys":["0,0"]}`},
		{"unknown type", `{"type":"hex:conjure"}`},
		{"reveal with empty hexKeys", `{"type":"hex:reveal","hexKeys":[],"targets":"all"}`},
		{"reveal with missing targets", `{"type":"hex:reveal","hexKeys":["0,0"]}`},
		{"reveal with bad target string", `{"type":"hex:reveal","hexKeys":["0,0"],"targets":"everyone"}`},
		{"reveal with targets object missing playerIds", `{"type":"hex:reveal","hexKeys":["0,0"],"targets":{}}`},
		{"mode outside enum", `{"type":"broadcast:mode","mode":"deferred"}`},
		{"token move without destination", `{"type":"token:move","tokenId":"t1"}`},
		{"update with empty changes", `{"type":"hex:update","changes":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, msg, err := ParseClientMessage([]byte(tc.payload))
			require.Error(t, err)
			assert.Nil(t, msg)
		})
	}
}

func TestTargetSetRoundTrip(t *testing.T) {
	all := TargetSet{All: true}
	data, err := json.Marshal(all)
	require.NoError(t, err)
	assert.JSONEq(t, `"all"`, string(data))

	subset := TargetSet{PlayerIDs: []string{"p1"}}
	data, err = json.Marshal(subset)
	require.NoError(t, err)
	assert.JSONEq(t, `{"playerIds":["p1"]}`, string(data))

	var decoded TargetSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, subset, decoded)
}

func TestTargetSetViewers(t *testing.T) {
	assert.Equal(t, []Viewer{AllViewers}, TargetSet{All: true}.Viewers())
	assert.Equal(t,
		[]Viewer{ViewerOf("p1"), ViewerOf("p2")},
		TargetSet{PlayerIDs: []string{"p1", "p2"}}.Viewers())
}

func TestHostOnlyCoversEveryPrivilegedType(t *testing.T) {
	privileged := []string{
		TypeSessionStart, TypeSessionPause, TypeSessionResume, TypeSessionEnd,
		TypeBroadcastMode, TypeBroadcastPublish, TypeStagedUndo,
		TypeHexReveal, TypeHexHide, TypeHexUpdate,
		TypeTokenCreate, TypeTokenDelete,
	}
	for _, msgType := range privileged {
		assert.True(t, IsHostOnly(msgType), msgType)
	}
	// Move and update stay open so players can act on their own tokens.
	assert.False(t, IsHostOnly(TypeTokenMove))
	assert.False(t, IsHostOnly(TypeTokenUpdate))
}
