package tunnel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/drep-project/tunnel/p2p"
)

// newReconnectBackoff returns a backoff.ExponentialBackOff producing the
// fixed schedule 1s, 2s, 4s, 8s, 16s, 32s, 60s, 60s, ...: with
// RandomizationFactor zeroed out, NextBackOff returns the current interval
// unmodified and then doubles it, capping at MaxInterval. MaxElapsedTime is
// zeroed so it never reports Stop -- the health monitor retries forever.
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0
	// NewExponentialBackOff already reset the current interval to the
	// library's default; reset again so it starts from InitialInterval.
	b.Reset()
	return b
}

// healthCheckInterval is how often the supervisor polls the live connection
// for a close reason.
const healthCheckInterval = 5 * time.Second

// socksWaitPollInterval and socksWaitTimeout bound how long a SOCKS5
// request will wait for a peer connection that is actively reconnecting.
const (
	socksWaitPollInterval = 100 * time.Millisecond
	socksWaitTimeout      = 5 * time.Second
)

// Supervisor owns the single peer connection a tunnel proxy process
// maintains: accepting inbound connections, dialing out when a remote peer
// is known, and reconnecting with backoff when the connection drops.
type Supervisor struct {
	endpoint *p2p.Endpoint
	session  *Session
	log      *logrus.Entry

	backoff  *backoff.ExponentialBackOff
	attempts uint32

	persistPeer func(p2p.PublicKey)
}

// NewSupervisor builds a Supervisor around an already-bound endpoint and
// session. persistPeer, if non-nil, is invoked by DialPeer with the peer it
// is about to dial, so the caller can persist it to disk; peers accepted by
// RunAcceptLoop and redials by the health monitor are not passed to it.
func NewSupervisor(ep *p2p.Endpoint, session *Session, log *logrus.Entry, persistPeer func(p2p.PublicKey)) *Supervisor {
	if persistPeer == nil {
		persistPeer = func(p2p.PublicKey) {}
	}
	return &Supervisor{endpoint: ep, session: session, log: log, backoff: newReconnectBackoff(), persistPeer: persistPeer}
}

// RunAcceptLoop accepts inbound peer connections for the lifetime of ctx,
// installing each as the session's active connection and spawning a
// handler for it. It never returns until ctx is cancelled or the endpoint
// is closed.
func (sv *Supervisor) RunAcceptLoop(ctx context.Context) {
	for {
		conn, err := sv.endpoint.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			sv.log.WithError(err).Error("failed to accept peer connection")
			continue
		}

		sv.log.WithFields(logrus.Fields{
			"remote":  conn.RemoteID().Hex(),
			"inbound": conn.Inbound(),
			"path":    conn.PathInfo(),
		}).Info("peer connected")
		sv.session.SetConnected(conn)
		// Server mode never persists the accepted peer's identity: doing so
		// would pin this node to whichever client happened to connect first.

		go sv.runConnectionHandler(ctx, conn)
	}
}

// DialPeer makes one outbound connection attempt to remote and, on success,
// installs it as the session's active connection and starts its handler.
// It is used once at startup for client mode; the health monitor takes over
// all subsequent reconnection.
func (sv *Supervisor) DialPeer(ctx context.Context, remote p2p.PublicKey) error {
	sv.session.SetRemotePeerID(remote)
	sv.persistPeer(remote)
	sv.session.SetConnecting()

	conn, err := sv.endpoint.Dial(ctx, remote)
	if err != nil {
		sv.session.SetFailed()
		return err
	}

	sv.log.WithFields(logrus.Fields{
		"remote": conn.RemoteID().Hex(),
		"path":   conn.PathInfo(),
	}).Info("connected to peer")
	sv.session.SetConnected(conn)
	go sv.runConnectionHandler(ctx, conn)
	return nil
}

// runConnectionHandler services inbound tunnel requests on conn until it
// closes, then clears it from the session if it is still the current
// connection -- a superseded connection's handler exiting late must not
// clobber a newer reconnection.
func (sv *Supervisor) runConnectionHandler(ctx context.Context, conn *p2p.Connection) {
	handlePeerConnection(ctx, conn, sv.log)

	if sv.session.ClearIfCurrent(conn) {
		sv.log.WithField("remote", conn.RemoteID().Hex()).Warn("peer connection handler exited")
	}
}

// RunHealthMonitor polls the session every healthCheckInterval and, once a
// known peer's connection has dropped, reconnects with exponential backoff.
// It runs for the lifetime of ctx and never returns otherwise, matching the
// teacher's long-lived monitor goroutines.
func (sv *Supervisor) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := sv.session.Snapshot()

		shouldReconnect := false
		switch {
		case snap.Conn != nil && snap.Conn.CloseReason() != nil:
			sv.log.Warn("connection lost, will attempt reconnection")
			sv.session.MarkDisconnected()
			shouldReconnect = snap.HasRemotePeerID
		case snap.Conn == nil && snap.HasRemotePeerID && snap.State != StateConnecting:
			shouldReconnect = true
		}

		if shouldReconnect {
			sv.reconnect(ctx, snap.RemotePeerID)
		}
	}
}

func (sv *Supervisor) reconnect(ctx context.Context, remote p2p.PublicKey) {
	sv.attempts++
	delay := sv.backoff.NextBackOff()

	sv.log.WithFields(logrus.Fields{
		"attempt": sv.attempts,
		"remote":  remote.Hex(),
		"delay":   delay,
	}).Info("reconnection attempt scheduled")

	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	sv.session.SetConnecting()

	conn, err := sv.endpoint.Dial(ctx, remote)
	if err != nil {
		sv.log.WithError(err).Error("reconnection failed")
		sv.session.SetFailed()
		return
	}

	sv.log.WithFields(logrus.Fields{
		"remote": conn.RemoteID().Hex(),
		"path":   conn.PathInfo(),
	}).Info("reconnected to peer")
	sv.session.SetConnected(conn)
	sv.backoff.Reset()
	sv.attempts = 0
	go sv.runConnectionHandler(ctx, conn)
}

// WaitForConnection blocks until the session has a live connection, the
// session gives up waiting on a stalled reconnection, or ctx is done.
// It implements the SOCKS5 front-end's wait-for-tunnel polling contract.
func (sv *Supervisor) WaitForConnection(ctx context.Context) (*p2p.Connection, error) {
	deadline := time.Now().Add(socksWaitTimeout)
	for {
		snap := sv.session.Snapshot()
		if snap.Conn != nil {
			return snap.Conn, nil
		}
		if snap.State != StateConnecting || time.Now().After(deadline) {
			return nil, ErrNoPeerConnection
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(socksWaitPollInterval):
		}
	}
}
