// Package proxy implements the IPC proxy multiplexer (component C): a table
// of sessions keyed by session_id, tunneling requests/responses/events
// between a remote (non-cluster) node and the real local IPC services.
package proxy

import (
	"context"
	"sync"
	"time"

	"clusterd/internal/logging"
)

var log = logging.For("proxy")

// Op is the tunnel protocol's message taxonomy (§4.3).
type Op string

const (
	OpNew          Op = "new"
	OpRequest      Op = "request"
	OpResponse     Op = "response"
	OpEvent        Op = "event"
	OpDestroy      Op = "destroy"
	OpShutdownAck  Op = "shutdown-ack"
	OpShutdownNack Op = "shutdown-nack"
)

// Flags is the tunneled message's bitmask field.
type Flags uint8

const (
	FlagProxied              Flags = 1 << iota // expect an async reply, correlated by msg_id
	FlagProxiedRelayResponse                    // local buffer is the answer to a proxied request
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Message is one tunneled envelope (§4.3 "Message taxonomy").
type Message struct {
	Op        Op
	SessionID string
	MsgID     uint64
	Flags     Flags
	Payload   []byte
	Node      string // the session's remote node, stamped on outbound forwards
}

// LocalConn is the local IPC connection a session forwards requests to.
// Transport is the same seam over the tunnel to the remote side; both are
// narrow interfaces so session.go has no transport dependency of its own
// (wsconn.go is the concrete websocket+uuid adapter for Transport).
type LocalConn interface {
	// Forward sends payload to the local service. The returned reply, if
	// any, is used for the synchronous (non-proxied) path.
	Forward(ctx context.Context, payload []byte) ([]byte, error)
	// Alive reports whether the local connection is still usable.
	Alive() bool
	Close()
}

// Transport is the tunnel back to the remote node.
type Transport interface {
	Send(msg Message) error
}

// Session is one tunneled IPC conversation (§3 "Proxy session").
type Session struct {
	ID              string
	Node            string
	Channel         string
	IsLocalShortcut bool

	mu            sync.Mutex
	conn          LocalConn
	lastRequestID uint64
}

// forwardTimeout is the "fixed timeout" §4.3 names for a synchronous
// (non-proxied) forward.
const forwardTimeout = 30 * time.Second

// Registry is the session table (§9 "Global tables": hosted explicitly,
// not as a package global).
type Registry struct {
	localServiceName string
	dial             func(channel, node string) (LocalConn, error)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry builds a Registry. localServiceName is the controller's own
// service name, used to detect the self-re-entrance guard (§4.3 "new").
// dial opens a LocalConn for a freshly-allocated (non-shortcut) session.
func NewRegistry(localServiceName string, dial func(channel, node string) (LocalConn, error)) *Registry {
	return &Registry{
		localServiceName: localServiceName,
		dial:             dial,
		sessions:         make(map[string]*Session),
	}
}

// New implements §4.3's new(channel, node, session_id).
func (r *Registry) New(channel, node, sessionID string) (*Session, error) {
	s := &Session{ID: sessionID, Node: node, Channel: channel}
	if channel == r.localServiceName {
		s.IsLocalShortcut = true
	} else {
		conn, err := r.dial(channel, node)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}

	r.mu.Lock()
	r.sessions[sessionID] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) get(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// HandleRequest implements the incoming-request half of §4.3's session
// machine.
func (r *Registry) HandleRequest(ctx context.Context, transport Transport, msg Message) {
	s, ok := r.get(msg.SessionID)
	if !ok {
		transport.Send(Message{Op: OpDestroy, SessionID: msg.SessionID, Node: msg.Node})
		return
	}
	if s.IsLocalShortcut {
		// endSession sends the single destroy to the remote.
		r.endSession(transport, s)
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || !conn.Alive() {
		r.endSession(transport, s)
		return
	}

	// Tag the request with the caller's node identity for access control
	// (§4.3: "Tag the request with the caller's node identity").
	taggedPayload := tagWithNode(msg.Payload, msg.Node)

	if msg.Flags.has(FlagProxied) {
		s.mu.Lock()
		s.lastRequestID = msg.MsgID
		s.mu.Unlock()

		go func() {
			reply, err := conn.Forward(ctx, taggedPayload)
			if err != nil {
				reply = negativeAck(err)
			}
			r.relayFromLocal(transport, s, reply, true)
		}()
		return
	}

	forwardCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	reply, err := conn.Forward(forwardCtx, taggedPayload)
	if err != nil {
		return
	}
	if reply != nil {
		transport.Send(Message{Op: OpResponse, SessionID: s.ID, MsgID: msg.MsgID, Payload: reply, Node: s.Node})
	}
}

// HandleDestroy implements "Incoming destroy from remote: tear down the
// session immediately" — no outbound acknowledgment, since the remote
// already knows.
func (r *Registry) HandleDestroy(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if ok {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	}
}

// relayFromLocal implements "Local service emits a message toward the
// remote": a proxied-relay-response buffer with a live last_request_id
// becomes a response and clears the id; everything else is an event.
func (r *Registry) relayFromLocal(transport Transport, s *Session, payload []byte, isRelayResponse bool) {
	s.mu.Lock()
	reqID := s.lastRequestID
	if isRelayResponse && reqID != 0 {
		s.lastRequestID = 0
	}
	s.mu.Unlock()

	if isRelayResponse && reqID != 0 {
		transport.Send(Message{Op: OpResponse, SessionID: s.ID, MsgID: reqID, Payload: payload, Node: s.Node})
		return
	}
	transport.Send(Message{Op: OpEvent, SessionID: s.ID, Payload: payload, Node: s.Node})
}

// EmitFromLocal is the public entry for "local service emits a message
// toward the remote". Nothing in this package calls it: wsconn.go's read
// loop handles remote-to-local traffic only, and HTTPLocalConn has no push
// channel, so a caller that watches the local service drives it.
func (r *Registry) EmitFromLocal(transport Transport, sessionID string, payload []byte, flags Flags) {
	s, ok := r.get(sessionID)
	if !ok {
		return
	}
	r.relayFromLocal(transport, s, payload, flags.has(FlagProxiedRelayResponse))
}

// endSession implements "Local service disconnects: null out the
// connection fields, notify the remote with destroy, remove from table."
func (r *Registry) endSession(transport Transport, s *Session) {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	transport.Send(Message{Op: OpDestroy, SessionID: s.ID, Node: s.Node})
	r.remove(s.ID)
}

// ShutdownPolicy decides ack vs nack for a remote shutdown request; the
// policy itself is "outside this core" (§4.3, §9 Open Question 3) — the
// default always acks.
type ShutdownPolicy func() bool

// HandleShutdownRequest implements §4.3's shutdown handshake.
func HandleShutdownRequest(transport Transport, policy ShutdownPolicy) {
	if policy == nil {
		policy = func() bool { return true }
	}
	if policy() {
		transport.Send(Message{Op: OpShutdownAck})
	} else {
		transport.Send(Message{Op: OpShutdownNack})
	}
}

func tagWithNode(payload []byte, node string) []byte {
	// The wire format of the local-service payload is owned by whatever
	// service sits behind LocalConn; this proxy only needs to prepend the
	// caller's node identity in a way the concrete LocalConn understands.
	// The minimal, transport-agnostic tag: a newline-terminated node name the
	// adapter strips back off (see local_http.go's Forward).
	tagged := make([]byte, 0, len(node)+1+len(payload))
	tagged = append(tagged, []byte(node)...)
	tagged = append(tagged, '\n')
	tagged = append(tagged, payload...)
	return tagged
}

func negativeAck(err error) []byte {
	return []byte(`{"ok":false,"error":"` + err.Error() + `"}`)
}
