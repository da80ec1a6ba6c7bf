package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/drep-project/tunnel/p2p"
	"github.com/drep-project/tunnel/tunnel/sniff"
)

const relayBufferSize = 8192

// RelayStats summarizes one completed relay of a single TCP connection over
// a tunnel stream pair.
type RelayStats struct {
	BytesSent     uint64
	BytesReceived uint64
	// Sniffed is a human-readable description of whatever the first-packet
	// sniffer recognized in either direction -- a TLS SNI hostname, or an
	// HTTP method and path -- or "" if neither matched.
	Sniffed string
}

// relayBidirectional copies bytes between socket and stream until either
// side closes, one-shot sniffing the first packet seen in each direction
// for connection logging. It never returns an error: a failed write or
// read on either side simply ends the relay, and the caller only cares
// about the final byte counts.
//
// stream.Send has a single writer at any given moment: the socket-reading
// goroutine below owns it while the relay is live, and only after that
// goroutine has fully exited (observed via socketDone) does the shutdown
// sequence write the terminating Close frame itself. This mirrors the
// original's single tokio::select! loop, which never interleaves writes to
// the same stream from two places.
func relayBidirectional(ctx context.Context, stream *p2p.StreamPair, socket net.Conn) RelayStats {
	var stats RelayStats
	var sniffMu sync.Mutex
	recordSniff := func(s string) {
		sniffMu.Lock()
		stats.Sniffed = s
		sniffMu.Unlock()
	}

	socketDone := make(chan struct{})
	tunnelDone := make(chan struct{})

	go func() {
		defer close(socketDone)
		buf := make([]byte, relayBufferSize)
		firstPacket := true
		for {
			n, err := socket.Read(buf)
			if n > 0 {
				if firstPacket {
					firstPacket = false
					if s, ok := sniffFirstPacket(buf[:n]); ok {
						recordSniff(s)
					}
				}
				stats.BytesSent += uint64(n)
				if sendErr := sendMessage(stream.Send, DataMessage(buf[:n])); sendErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		defer close(tunnelDone)
		firstPacket := true
		for {
			msg, err := recvMessage(stream.Recv)
			if err != nil {
				return
			}
			if msg.IsClose() {
				return
			}
			if !msg.IsData() {
				continue
			}
			if firstPacket {
				firstPacket = false
				if s, ok := sniffFirstPacket(msg.Data); ok {
					recordSniff(s)
				}
			}
			stats.BytesReceived += uint64(len(msg.Data))
			if _, err := socket.Write(msg.Data); err != nil {
				return
			}
		}
	}()

	select {
	case <-socketDone:
	case <-tunnelDone:
	case <-ctx.Done():
	}

	// Force the socket reader to unblock and exit, then wait for it: only
	// once it has returned is stream.Send guaranteed to have no other
	// writer, so the Close frame below cannot land interleaved with a
	// DataMessage frame still in flight from that goroutine.
	socket.Close()
	<-socketDone

	_ = sendMessage(stream.Send, CloseMessage())
	_ = stream.CloseWrite()
	stream.Close()

	<-tunnelDone

	return stats
}

// sniffFirstPacket tries TLS SNI extraction first, then falls back to HTTP
// request-line parsing, matching the order a browser's TLS ClientHello or
// plaintext HTTP request would be tried in.
func sniffFirstPacket(data []byte) (string, bool) {
	if host, ok := sniff.ExtractSNI(data); ok {
		return host, true
	}
	if info, ok := sniff.ExtractHTTPInfo(data); ok {
		return fmt.Sprintf("%s %s", info.Method, info.Path), true
	}
	return "", false
}

func logRelayStats(log *logrus.Entry, stats RelayStats) {
	entry := log.WithFields(logrus.Fields{
		"bytes_sent":     stats.BytesSent,
		"bytes_received": stats.BytesReceived,
	})
	if stats.Sniffed != "" {
		entry = entry.WithField("sniffed", stats.Sniffed)
	}
	entry.Info("relay finished")
}
