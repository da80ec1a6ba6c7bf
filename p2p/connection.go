package p2p

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/quic-go/quic-go"
)

var stableIDCounter uint64

// StreamPair is a reliable, ordered bidirectional channel scoped to one
// tunnel request. Send and Recv both back onto the same underlying QUIC
// stream; they are split into one-way views because the tunnel protocol
// only ever writes to Send and reads from Recv, matching the spec's
// (send, receive) stream-pair model.
type StreamPair struct {
	Send io.Writer
	Recv io.Reader

	stream quic.Stream
}

// Close closes both halves of the stream: it aborts the receive side
// immediately and closes the send side, flushing any buffered data and
// sending a FIN. quic.Stream's own Close only does the latter, so Close
// also cancels reading to make this a true full close.
func (sp *StreamPair) Close() error {
	sp.stream.CancelRead(0)
	return sp.stream.Close()
}

// CloseWrite half-closes the send side, flushing buffered data and sending
// a FIN, without cancelling the receive side -- the peer can still be read
// from until it closes its own end.
func (sp *StreamPair) CloseWrite() error {
	return sp.stream.Close()
}

func newStreamPair(s quic.Stream) *StreamPair {
	return &StreamPair{Send: s, Recv: s, stream: s}
}

// Connection is a live session with one remote peer. It is cheap to copy
// by pointer and safe for concurrent use by many goroutines: the
// supervisor, the health monitor, and every in-flight tunnel request hold
// a reference to the same Connection.
type Connection struct {
	qconn    quic.Connection
	remoteID PublicKey
	inbound  bool
	stableID uint64
}

func newConnection(qconn quic.Connection, remote PublicKey, inbound bool) *Connection {
	return &Connection{
		qconn:    qconn,
		remoteID: remote,
		inbound:  inbound,
		stableID: atomic.AddUint64(&stableIDCounter, 1),
	}
}

// RemoteID returns the authenticated identity of the remote peer.
func (c *Connection) RemoteID() PublicKey {
	return c.remoteID
}

// StableID is a process-unique identifier for this Connection value,
// stable across clones, used to detect whether a late-exiting handler is
// still talking about the "current" connection or a stale one that has
// already been superseded by a reconnect.
func (c *Connection) StableID() uint64 {
	return c.stableID
}

// Inbound reports whether this connection was accepted rather than dialed.
func (c *Connection) Inbound() bool {
	return c.inbound
}

// CloseReason returns the error that closed the connection, or nil if it
// is still open. It is observed by polling, matching the spec's
// "observable" close_reason contract -- quic-go surfaces this the same way
// via Context().Err() becoming non-nil once the connection is gone.
func (c *Connection) CloseReason() error {
	select {
	case <-c.qconn.Context().Done():
		return context.Cause(c.qconn.Context())
	default:
		return nil
	}
}

// OpenStream opens a new bidirectional stream for one tunnel request.
func (c *Connection) OpenStream(ctx context.Context) (*StreamPair, error) {
	s, err := c.qconn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return newStreamPair(s), nil
}

// AcceptStream blocks until the peer opens a new bidirectional stream.
func (c *Connection) AcceptStream(ctx context.Context) (*StreamPair, error) {
	s, err := c.qconn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return newStreamPair(s), nil
}

// PathInfo summarizes the live network path, standing in for the
// Direct/Relay/Mixed distinction original_source/src/connection/logger.rs
// reports -- raw QUIC has no relay fallback, so this instead reports the
// observed addresses, which is the closest analog available.
func (c *Connection) PathInfo() string {
	addr := c.qconn.RemoteAddr()
	if addr == nil {
		return "(Mode: Unknown)"
	}
	return "(Mode: Direct, Addr: " + addr.String() + ")"
}

// Close closes the underlying connection with no error code, like dropping
// the last handle to it.
func (c *Connection) Close() error {
	return c.qconn.CloseWithError(0, "closed")
}
