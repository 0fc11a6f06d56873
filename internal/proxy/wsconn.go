package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewSessionID generates an opaque session_id (§3 "Proxy session").
func NewSessionID() string {
	return uuid.NewString()
}

// wireMessage is Message's JSON wire shape; Op/Flags are strings/ints on
// the wire but typed Go values once decoded.
type wireMessage struct {
	Op        Op     `json:"op"`
	SessionID string `json:"session_id"`
	MsgID     uint64 `json:"msg_id,omitempty"`
	Flags     Flags  `json:"flags,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
	Channel   string `json:"channel,omitempty"` // only meaningful on op=new
}

// Hub is the concrete proxy.Transport: one gorilla/websocket connection per
// remote node (§4.3 "Transport" — sessions are multiplexed over one socket
// per node, not per-session). Register/unregister are implicit in the
// mutex-guarded client map below, keyed by node name instead of holding an
// unkeyed set, since a reply must be routed to a specific node rather than
// broadcast to all.
type Hub struct {
	registry *Registry

	mu    sync.RWMutex
	conns map[string]*websocket.Conn // node -> connection
}

// NewHub builds a Hub that dispatches incoming tunnel messages to registry.
func NewHub(registry *Registry) *Hub {
	return &Hub{registry: registry, conns: make(map[string]*websocket.Conn)}
}

// ServeHTTP upgrades an incoming connection from node and starts its read
// loop in a goroutine, reading until the connection errors out.
func (h *Hub) ServeHTTP(node string, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("node", node).WithField("error", err).Warn("proxy: websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[node] = conn
	h.mu.Unlock()
	log.WithField("node", node).Info("proxy: tunnel connected")

	go h.readLoop(node, conn)
}

func (h *Hub) readLoop(node string, conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		if h.conns[node] == conn {
			delete(h.conns, node)
		}
		h.mu.Unlock()
		conn.Close()
		log.WithField("node", node).Info("proxy: tunnel disconnected")
	}()

	ctx := context.Background()
	for {
		var wm wireMessage
		if err := conn.ReadJSON(&wm); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("node", node).WithField("error", err).Warn("proxy: tunnel read error")
			}
			return
		}
		msg := Message{Op: wm.Op, SessionID: wm.SessionID, MsgID: wm.MsgID, Flags: wm.Flags, Payload: wm.Payload, Node: node}

		switch msg.Op {
		case OpNew:
			if _, err := h.registry.New(wm.Channel, node, msg.SessionID); err != nil {
				log.WithField("node", node).WithField("channel", wm.Channel).WithField("error", err).Warn("proxy: session open failed")
			}
		case OpRequest:
			h.registry.HandleRequest(ctx, h, msg)
		case OpDestroy:
			h.registry.HandleDestroy(msg.SessionID)
		default:
			log.WithField("node", node).WithField("op", msg.Op).Warn("proxy: unexpected op from remote")
		}
	}
}

// Send implements Transport: relay msg to its Node's connection.
func (h *Hub) Send(msg Message) error {
	h.mu.RLock()
	conn, ok := h.conns[msg.Node]
	h.mu.RUnlock()
	if !ok {
		return errNoTunnel{node: msg.Node}
	}
	wm := wireMessage{Op: msg.Op, SessionID: msg.SessionID, MsgID: msg.MsgID, Flags: msg.Flags, Payload: msg.Payload}
	return conn.WriteJSON(wm)
}

type errNoTunnel struct{ node string }

func (e errNoTunnel) Error() string { return "proxy: no tunnel connection to node " + e.node }
