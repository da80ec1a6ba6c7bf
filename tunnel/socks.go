package tunnel

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// SOCKS5 protocol constants (RFC 1928), CONNECT-only, no-auth.
const (
	socksVersion    = 0x05
	socksCmdConnect = 0x01
	socksAtypIPv4   = 0x01
	socksAtypDomain = 0x03
	socksAtypIPv6   = 0x04

	socksReplySuccess         = 0x00
	socksReplyGeneralFailure  = 0x01
	socksReplyHostUnreach     = 0x04
	socksReplyConnRefused     = 0x05
	socksReplyCmdUnsupported  = 0x07
	socksReplyAtypUnsupported = 0x08
)

// socksReply builds a fixed RFC1928 reply carrying the given status code
// and a null BND.ADDR/BND.PORT, which is all real SOCKS5 clients require to
// recognize either success or failure.
func socksReply(code byte) []byte {
	return []byte{socksVersion, code, 0x00, socksAtypIPv4, 0, 0, 0, 0, 0, 0}
}

// SocksServer accepts local SOCKS5 client connections and tunnels each one
// through the Supervisor's peer connection.
type SocksServer struct {
	listenAddr string
	supervisor *Supervisor
	log        *logrus.Entry
}

// NewSocksServer builds a SocksServer bound to 127.0.0.1:port.
func NewSocksServer(port int, supervisor *Supervisor, log *logrus.Entry) *SocksServer {
	return &SocksServer{
		listenAddr: fmt.Sprintf("127.0.0.1:%d", port),
		supervisor: supervisor,
		log:        log,
	}
}

// Serve accepts and handles SOCKS5 client connections until ctx is
// cancelled or the listener fails.
func (s *SocksServer) Serve(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("tunnel: bind socks5 listener: %w", err)
	}
	defer listener.Close()

	s.log.WithField("addr", s.listenAddr).Info("socks5 proxy listening")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tunnel: accept socks5 client: %w", err)
		}
		go s.handleClient(ctx, conn)
	}
}

func (s *SocksServer) handleClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if err := s.serveClient(ctx, conn); err != nil {
		s.log.WithField("client", conn.RemoteAddr()).WithError(err).Warn("socks5 client error")
	}
}

func (s *SocksServer) serveClient(ctx context.Context, conn net.Conn) error {
	if err := s.negotiateMethod(conn); err != nil {
		return err
	}

	host, port, err := s.readRequest(conn)
	if err != nil {
		return err
	}

	log := s.log.WithField("host", host).WithField("port", port)
	log.Info("proxy request")

	peerConn, err := s.supervisor.WaitForConnection(ctx)
	if err != nil {
		conn.Write(socksReply(socksReplyHostUnreach))
		return fmt.Errorf("no peer connection available: %w", err)
	}

	stream, err := peerConn.OpenStream(ctx)
	if err != nil {
		conn.Write(socksReply(socksReplyGeneralFailure))
		return fmt.Errorf("open tunnel stream: %w", err)
	}
	defer stream.Close()

	if err := sendMessage(stream.Send, Connect(host, port)); err != nil {
		conn.Write(socksReply(socksReplyGeneralFailure))
		return fmt.Errorf("send connect request: %w", err)
	}

	reply, err := recvMessage(stream.Recv)
	if err != nil {
		conn.Write(socksReply(socksReplyGeneralFailure))
		return fmt.Errorf("read connect reply: %w", err)
	}

	switch {
	case reply.IsConnected():
		log.Info("tunnel established")
		if _, err := conn.Write(socksReply(socksReplySuccess)); err != nil {
			return err
		}
		stats := relayBidirectional(ctx, stream, conn)
		logRelayStats(log, stats)
		return nil
	case reply.IsError():
		conn.Write(socksReply(socksReplyConnRefused))
		return fmt.Errorf("tunnel connection failed: %s", reply.ErrorMsg)
	default:
		conn.Write(socksReply(socksReplyGeneralFailure))
		return fmt.Errorf("unexpected reply: %s", reply.String())
	}
}

// negotiateMethod performs the SOCKS5 greeting: read VER/NMETHODS/METHODS,
// reply with no-authentication-required regardless of what was offered,
// matching spec.md's no-auth-only front end.
func (s *SocksServer) negotiateMethod(conn net.Conn) error {
	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if hdr[0] != socksVersion {
		return fmt.Errorf("unsupported socks version %d", hdr[0])
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return fmt.Errorf("read methods: %w", err)
	}
	if _, err := conn.Write([]byte{socksVersion, 0x00}); err != nil {
		return fmt.Errorf("write method reply: %w", err)
	}
	return nil
}

// readRequest parses the SOCKS5 request header and destination address,
// replying with the appropriate failure code and returning an error for
// any request this front end does not support.
func (s *SocksServer) readRequest(conn net.Conn) (host string, port uint16, err error) {
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return "", 0, fmt.Errorf("read request header: %w", err)
	}
	if hdr[0] != socksVersion {
		return "", 0, fmt.Errorf("invalid socks version in request: %d", hdr[0])
	}
	if hdr[1] != socksCmdConnect {
		conn.Write(socksReply(socksReplyCmdUnsupported))
		return "", 0, fmt.Errorf("unsupported command %d", hdr[1])
	}

	switch hdr[3] {
	case socksAtypIPv4:
		var addr [4]byte
		if _, err := io.ReadFull(conn, addr[:]); err != nil {
			return "", 0, err
		}
		port, err := readPort(conn)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%d.%d.%d.%d", addr[0], addr[1], addr[2], addr[3]), port, nil

	case socksAtypDomain:
		var lenBuf [1]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return "", 0, err
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(conn, domain); err != nil {
			return "", 0, err
		}
		port, err := readPort(conn)
		if err != nil {
			return "", 0, err
		}
		return string(domain), port, nil

	case socksAtypIPv6:
		var addr [16]byte
		if _, err := io.ReadFull(conn, addr[:]); err != nil {
			return "", 0, err
		}
		port, err := readPort(conn)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("[%s]", formatIPv6Hex(addr)), port, nil

	default:
		conn.Write(socksReply(socksReplyAtypUnsupported))
		return "", 0, fmt.Errorf("unsupported address type %d", hdr[3])
	}
}

func readPort(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// formatIPv6Hex renders addr as eight lowercase hex groups with no
// compression, matching the byte-for-byte format the remote side expects
// to parse as a bracketed host.
func formatIPv6Hex(addr [16]byte) string {
	groups := make([]byte, 0, 39)
	for i := 0; i < 16; i += 2 {
		if i > 0 {
			groups = append(groups, ':')
		}
		groups = appendHexByte(groups, addr[i])
		groups = appendHexByte(groups, addr[i+1])
	}
	return string(groups)
}

const hexDigits = "0123456789abcdef"

func appendHexByte(dst []byte, b byte) []byte {
	return append(dst, hexDigits[b>>4], hexDigits[b&0x0f])
}
