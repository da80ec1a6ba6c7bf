package tunnel

import (
	"sync"
	"time"

	"github.com/drep-project/tunnel/p2p"
)

// ConnectionState is the lifecycle stage of the single peer connection a
// Session manages.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is the mutex-guarded state shared between the accept loop, the
// dial path, the health monitor, and every in-flight SOCKS5 request. There
// is exactly one Session per process: a tunnel proxy mediates one peer
// relationship at a time.
//
// Invariant: conn != nil iff state == StateConnected. Every mutator below
// upholds this; callers must not reach into the zero value directly.
type Session struct {
	mu sync.Mutex

	conn                  *p2p.Connection
	state                 ConnectionState
	remotePeerID          p2p.PublicKey
	hasRemotePeerID       bool
	reconnectAttempt      uint32
	lastConnectionAttempt time.Time
}

// NewSession returns a disconnected Session, optionally seeded with a
// remote peer identity recovered from disk.
func NewSession(remote p2p.PublicKey, hasRemote bool) *Session {
	return &Session{
		state:           StateDisconnected,
		remotePeerID:    remote,
		hasRemotePeerID: hasRemote,
	}
}

// Snapshot is a point-in-time copy of session state, safe to read without
// holding the lock.
type Snapshot struct {
	Conn                  *p2p.Connection
	State                 ConnectionState
	RemotePeerID          p2p.PublicKey
	HasRemotePeerID       bool
	ReconnectAttempt      uint32
	LastConnectionAttempt time.Time
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Conn:                  s.conn,
		State:                 s.state,
		RemotePeerID:          s.remotePeerID,
		HasRemotePeerID:       s.hasRemotePeerID,
		ReconnectAttempt:      s.reconnectAttempt,
		LastConnectionAttempt: s.lastConnectionAttempt,
	}
}

// SetConnected installs conn as the active connection, records its remote
// identity, resets the reconnect counter, and marks the session Connected.
func (s *Session) SetConnected(conn *p2p.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.remotePeerID = conn.RemoteID()
	s.hasRemotePeerID = true
	s.state = StateConnected
	s.reconnectAttempt = 0
}

// SetRemotePeerID records a known remote identity without altering the
// live connection, used when a peer ticket is supplied on the command line
// before any connection attempt has been made.
func (s *Session) SetRemotePeerID(remote p2p.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remotePeerID = remote
	s.hasRemotePeerID = true
}

// SetConnecting marks a reconnection attempt underway and increments the
// attempt counter, returning the attempt number that is about to be made
// (1-based).
func (s *Session) SetConnecting() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateConnecting
	s.reconnectAttempt++
	s.lastConnectionAttempt = time.Now()
	return s.reconnectAttempt
}

// SetFailed marks the most recent connect or reconnect attempt as having
// failed.
func (s *Session) SetFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
}

// ClearIfCurrent drops the active connection and marks the session
// Disconnected, but only if conn is still the connection on file. This
// guards against a stale handler for a superseded connection clobbering a
// newer reconnection, using the connection's stable ID rather than pointer
// identity.
func (s *Session) ClearIfCurrent(conn *p2p.Connection) (cleared bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.conn.StableID() != conn.StableID() {
		return false
	}
	s.conn = nil
	s.state = StateDisconnected
	return true
}

// MarkDisconnected drops the active connection unconditionally, used by the
// health monitor once it has confirmed the connection is closed.
func (s *Session) MarkDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
	s.state = StateDisconnected
}
