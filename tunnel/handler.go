package tunnel

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/drep-project/tunnel/p2p"
)

// handlePeerConnection services every tunnel request the remote peer opens
// on conn until it closes or ctx is cancelled. Each request runs on its own
// goroutine so a slow destination never blocks the others.
func handlePeerConnection(ctx context.Context, conn *p2p.Connection, log *logrus.Entry) {
	log = log.WithField("remote", conn.RemoteID().Hex())
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Debug("peer connection closed")
			}
			return
		}
		go func() {
			if err := handleTunnelRequest(ctx, stream, log); err != nil {
				log.WithError(err).Warn("tunnel request failed")
			}
		}()
	}
}

// handleTunnelRequest reads a single Connect request from stream, dials
// the requested destination, replies Connected or Error, and on success
// relays bytes until the connection ends.
func handleTunnelRequest(ctx context.Context, stream *p2p.StreamPair, log *logrus.Entry) error {
	msg, err := recvMessage(stream.Recv)
	if err != nil {
		return fmt.Errorf("read connect request: %w", err)
	}
	if !msg.IsConnect() {
		return fmt.Errorf("expected Connect message, got %s", msg.String())
	}

	host, port := msg.ConnectHost, msg.ConnectPort
	log = log.WithField("host", host).WithField("port", port)
	log.Info("outgoing tunnel request")

	if isLoopbackTarget(host, port) {
		log.Warn("loop detected, rejecting tunnel request")
		if err := sendMessage(stream.Send, ErrorMessage("Loop detected: cannot tunnel to local SOCKS proxy")); err != nil {
			return err
		}
		return ErrLoopDetected
	}

	// IPv6 hosts arrive bracketed from the SOCKS5 front end; JoinHostPort
	// adds its own brackets, so strip them first.
	dialHost := host
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		dialHost = host[1 : len(host)-1]
	}
	dialer := net.Dialer{}
	remote, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(dialHost, fmt.Sprint(port)))
	if err != nil {
		log.WithError(err).Warn("failed to connect to destination")
		return sendMessage(stream.Send, ErrorMessage(fmt.Sprintf("Connection failed: %v", err)))
	}
	defer remote.Close()

	log.Info("connected to destination")
	if err := sendMessage(stream.Send, Connected()); err != nil {
		return fmt.Errorf("send Connected reply: %w", err)
	}

	stats := relayBidirectional(ctx, stream, remote)
	logRelayStats(log, stats)
	return nil
}
