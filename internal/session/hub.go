package session

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Hub binds gorilla websocket connections to the session engine: it owns
// the read/write pumps and keepalive for each connection and translates
// transport events (messages, closes) into engine calls.
type Hub struct {
	engine *Engine
	logger *zap.SugaredLogger
}

// NewHub creates a hub for the given engine.
func NewHub(engine *Engine, logger *zap.SugaredLogger) *Hub {
	return &Hub{engine: engine, logger: logger}
}

// Engine returns the hub's session engine.
func (h *Hub) Engine() *Engine {
	return h.engine
}

// wsSocket adapts a websocket connection to the engine's Socket interface.
// Sends are queued on a buffered channel drained by the write pump; when
// the buffer is full the message is dropped and the client recovers via
// the snapshot on its next reconnect.
type wsSocket struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.SugaredLogger
}

func (s *wsSocket) Send(data []byte) error {
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return websocket.ErrCloseSent
	default:
		s.logger.Warnf("Send buffer full, dropping message")
		return nil
	}
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}

// HandleConnection runs the pumps for one authenticated, authorized
// websocket until it closes. The caller has already resolved the user's
// identity, campaign membership, and role.
func (h *Hub) HandleConnection(wsConn *websocket.Conn, campaignID, userID, name string, role Role) {
	h.logger.Infof("New connection: campaign=%s user=%s role=%s", campaignID, userID, role)

	socket := &wsSocket{
		conn:   wsConn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: h.logger,
	}

	conn := h.engine.Connect(campaignID, userID, name, role, socket)

	go h.writePump(socket)
	h.readPump(socket, campaignID, conn)
}

// readPump reads inbound frames and hands them to the engine. It exits on
// any read error, which is the transport close event that drives membership
// cleanup and the presence broadcast.
func (h *Hub) readPump(socket *wsSocket, campaignID string, conn *Conn) {
	defer func() {
		close(socket.done)
		_ = socket.conn.Close()
		h.engine.Disconnect(campaignID, conn)
	}()

	socket.conn.SetReadLimit(maxMessageSize)
	_ = socket.conn.SetReadDeadline(time.Now().Add(pongWait))
	socket.conn.SetPongHandler(func(string) error {
		return socket.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := socket.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("Read error for user %s in campaign %s: %v", conn.UserID, campaignID, err)
			} else {
				h.logger.Infof("Connection closed for user %s in campaign %s", conn.UserID, campaignID)
			}
			return
		}
		h.engine.HandleMessage(campaignID, conn, message)
	}
}

// writePump drains the send buffer onto the wire and keeps the connection
// alive with pings.
func (h *Hub) writePump(socket *wsSocket) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = socket.conn.Close()
	}()

	for {
		select {
		case message := <-socket.send:
			_ = socket.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-socket.done:
			_ = socket.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = socket.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
