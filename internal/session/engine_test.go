package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSocket records outbound frames and close calls.
type fakeSocket struct {
	mu     sync.Mutex
	frames [][]byte
	closes int
}

func (s *fakeSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.frames = append(s.frames, buf)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSocket) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// received decodes every frame whose type tag matches msgType.
func (s *fakeSocket) received(t *testing.T, msgType string) []map[string]interface{} {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []map[string]interface{}
	for _, frame := range s.frames {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(frame, &decoded))
		if decoded["type"] == msgType {
			matched = append(matched, decoded)
		}
	}
	return matched
}

// typeSequence returns the ordered type tags of every frame received.
func (s *fakeSocket) typeSequence(t *testing.T) []string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, 0, len(s.frames))
	for _, frame := range s.frames {
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(frame, &decoded))
		types = append(types, decoded["type"].(string))
	}
	return types
}

func (s *fakeSocket) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

func newTestEngine() *Engine {
	return NewEngine(context.Background(), Stores{}, zap.NewNop().Sugar())
}

func connectUser(e *Engine, campaignID, userID string, role Role) (*Conn, *fakeSocket) {
	socket := &fakeSocket{}
	conn := e.Connect(campaignID, userID, "name-"+userID, role, socket)
	socket.reset() // drop the connect handshake/snapshot frames
	return conn, socket
}

func sendJSON(t *testing.T, e *Engine, campaignID string, conn *Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	e.HandleMessage(campaignID, conn, data)
}

// ---------------------------------------------------------------------------
// Room registry / connection multiplexer
// ---------------------------------------------------------------------------

func TestRoomCreatedOnFirstConnection(t *testing.T) {
	e := newTestEngine()
	require.Nil(t, e.GetRoom("c1"))

	connectUser(e, "c1", "dm1", RoleHost)

	room := e.GetRoom("c1")
	require.NotNil(t, room)
	assert.Equal(t, StatusWaiting, room.Status)
	assert.Equal(t, ModeImmediate, room.Mode)
}

func TestRoomDroppedWhenLastConnectionLeavesWhileWaiting(t *testing.T) {
	e := newTestEngine()
	conn, _ := connectUser(e, "c1", "dm1", RoleHost)

	e.Disconnect("c1", conn)

	assert.Nil(t, e.GetRoom("c1"))
	assert.Equal(t, 0, e.RoomCount())
}

func TestActiveRoomSurvivesZeroConnections(t *testing.T) {
	e := newTestEngine()
	dm, _ := connectUser(e, "c1", "dm1", RoleHost)
	sendJSON(t, e, "c1", dm, map[string]string{"type": "session:start"})
	sessionID := e.GetRoom("c1").SessionID

	e.Disconnect("c1", dm)

	room := e.GetRoom("c1")
	require.NotNil(t, room, "active room must persist for reconnects")
	assert.Equal(t, StatusActive, room.Status)
	assert.Equal(t, sessionID, room.SessionID)
}

func TestEndedRoomDroppedOnLastDisconnect(t *testing.T) {
	e := newTestEngine()
	dm, _ := connectUser(e, "c1", "dm1", RoleHost)
	sendJSON(t, e, "c1", dm, map[string]string{"type": "session:start"})
	sendJSON(t, e, "c1", dm, map[string]string{"type": "session:end"})

	e.Disconnect("c1", dm)

	assert.Nil(t, e.GetRoom("c1"))
}

func TestConnectionReplacementClosesStaleSocketOnce(t *testing.T) {
	e := newTestEngine()
	first := &fakeSocket{}
	e.Connect("c1", "p1", "Pia", RolePlayer, first)

	second := &fakeSocket{}
	e.Connect("c1", "p1", "Pia", RolePlayer, second)

	assert.Equal(t, 1, first.closeCount(), "stale socket closed exactly once")

	// Subsequent broadcasts reach only the newest connection.
	first.reset()
	second.reset()
	dm, _ := connectUser(e, "c1", "dm1", RoleHost)
	sendJSON(t, e, "c1", dm, map[string]string{"type": "session:start"})

	assert.Empty(t, first.received(t, TypeStatusChanged))
	assert.Len(t, second.received(t, TypeStatusChanged), 1)
}

func TestStaleCloseEventDoesNotEvictReplacement(t *testing.T) {
	e := newTestEngine()
	first := &fakeSocket{}
	staleConn := e.Connect("c1", "p1", "Pia", RolePlayer, first)
	second := &fakeSocket{}
	e.Connect("c1", "p1", "Pia", RolePlayer, second)

	// The transport close event for the replaced socket fires late.
	e.Disconnect("c1", staleConn)

	room := e.GetRoom("c1")
	require.NotNil(t, room)
	room.mu.Lock()
	_, stillConnected := room.conns["p1"]
	room.mu.Unlock()
	assert.True(t, stillConnected, "newer connection must survive the stale close")
}

func TestConnectDuringLastDisconnectKeepsRoomRegistered(t *testing.T) {
	e := newTestEngine()
	for i := 0; i < 500; i++ {
		leaving, _ := connectUser(e, "c1", "p1", RolePlayer)

		var wg sync.WaitGroup
		wg.Add(2)
		var joined *Conn
		go func() {
			defer wg.Done()
			e.Disconnect("c1", leaving)
		}()
		go func() {
			defer wg.Done()
			joined = e.Connect("c1", "p2", "Pia", RolePlayer, &fakeSocket{})
		}()
		wg.Wait()

		room := e.GetRoom("c1")
		require.NotNil(t, room, "room with a live connection must stay registered")
		room.mu.Lock()
		_, ok := room.conns["p2"]
		room.mu.Unlock()
		require.True(t, ok, "new connection must land in the registered room")

		e.Disconnect("c1", joined)
		require.Nil(t, e.GetRoom("c1"))
	}
}

func TestPresenceBroadcastOnJoinAndLeave(t *testing.T) {
	e := newTestEngine()
	_, dmSock := connectUser(e, "c1", "dm1", RoleHost)

	player, _ := connectUser(e, "c1", "p1", RolePlayer)

	joins := dmSock.received(t, TypePlayerJoined)
	require.Len(t, joins, 1)
	assert.Equal(t, "p1", joins[0]["userId"])
	presence := dmSock.received(t, TypePlayerPresence)
	require.Len(t, presence, 1)
	assert.Len(t, presence[0]["players"], 2)

	dmSock.reset()
	e.Disconnect("c1", player)

	leaves := dmSock.received(t, TypePlayerLeft)
	require.Len(t, leaves, 1)
	assert.Equal(t, "p1", leaves[0]["userId"])
	presence = dmSock.received(t, TypePlayerPresence)
	require.Len(t, presence, 1)
	assert.Len(t, presence[0]["players"], 1)
}

// fakePresence records presence sink calls for assertion.
type fakePresence struct {
	joins  chan string
	leaves chan string
}

func (f *fakePresence) Join(ctx context.Context, campaignID, userID, name string) error {
	f.joins <- campaignID + "/" + userID
	return nil
}

func (f *fakePresence) Leave(ctx context.Context, campaignID, userID string) error {
	f.leaves <- campaignID + "/" + userID
	return nil
}

func TestPresenceSinkMirrorsJoinAndLeave(t *testing.T) {
	sink := &fakePresence{joins: make(chan string, 1), leaves: make(chan string, 1)}
	e := NewEngine(context.Background(), Stores{Presence: sink}, zap.NewNop().Sugar())

	conn, _ := connectUser(e, "c1", "p1", RolePlayer)
	assert.Equal(t, "c1/p1", awaitString(t, sink.joins, "presence join"))

	e.Disconnect("c1", conn)
	assert.Equal(t, "c1/p1", awaitString(t, sink.leaves, "presence leave"))
}

func awaitString(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func TestConnectPushesSnapshot(t *testing.T) {
	e := newTestEngine()
	socket := &fakeSocket{}
	e.Connect("c1", "p1", "Pia", RolePlayer, socket)

	types := socket.typeSequence(t)
	require.GreaterOrEqual(t, len(types), 3)
	assert.Equal(t, TypeConnected, types[0])
	assert.Equal(t, TypeSessionState, types[1])
	assert.Equal(t, TypeTokenState, types[2])

	connected := socket.received(t, TypeConnected)
	assert.Equal(t, "p1", connected[0]["userId"])
	assert.Equal(t, "player", connected[0]["role"])
}
