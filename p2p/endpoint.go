package p2p

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"
)

// ErrNoAddressHint is returned by Dial when the endpoint has no network
// address on file for the requested peer. Real NAT-traversal/discovery
// (the black box described in spec §6) would resolve PublicKey to a
// reachable address transparently; this endpoint exposes that as an
// injectable hint table so the rest of the tunnel package never needs to
// know how a peer was found.
var ErrNoAddressHint = errors.New("p2p: no address known for peer, and no resolver configured")

// defaultDialTimeout bounds how long a single dial attempt may take.
const defaultDialTimeout = 15 * time.Second

// Resolver maps a PublicKey to a dialable network address. Swapping in a
// Resolver backed by a rendezvous service or relay directory is how real
// NAT traversal would be plugged in without touching Endpoint's contract.
type Resolver interface {
	Resolve(ctx context.Context, remote PublicKey) (string, error)
}

// StaticResolver answers from an in-memory address table. It is the
// default Resolver and is also convenient for tests that run both sides of
// a tunnel in one process.
type StaticResolver struct {
	mu    sync.RWMutex
	addrs map[PublicKey]string
}

// NewStaticResolver returns an empty StaticResolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{addrs: make(map[PublicKey]string)}
}

// Add records addr as the dial target for remote.
func (r *StaticResolver) Add(remote PublicKey, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[remote] = addr
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(_ context.Context, remote PublicKey) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.addrs[remote]
	if !ok {
		return "", ErrNoAddressHint
	}
	return addr, nil
}

// Endpoint binds a local identity and UDP socket and mediates both
// outbound dials and inbound accepts for a single peer-to-peer transport.
// It corresponds to the "Bind/Dial/Accept" contract of spec §6.
type Endpoint struct {
	secretKey SecretKey
	publicKey PublicKey
	resolver  Resolver
	log       *logrus.Entry

	listener *quic.Listener
	conn     net.PacketConn
}

// BindConfig configures Endpoint.Bind.
type BindConfig struct {
	// SecretKey identifies this endpoint. Required.
	SecretKey SecretKey
	// ListenAddr is the local UDP address to bind, e.g. "0.0.0.0:0". If
	// empty, an ephemeral port on all interfaces is chosen.
	ListenAddr string
	// Resolver maps peer identities to dial addresses. Defaults to an
	// empty StaticResolver.
	Resolver Resolver
	// Log receives structured diagnostics. Defaults to a no-op logger.
	Log *logrus.Entry
}

// Bind opens the local UDP socket and QUIC listener for cfg and returns a
// ready-to-use Endpoint. The returned Endpoint always accepts inbound
// connections filtered to TunnelALPN; callers that only want to dial out
// may simply never call Accept.
func Bind(cfg BindConfig) (*Endpoint, error) {
	if cfg.SecretKey == (SecretKey{}) {
		return nil, errors.New("p2p: BindConfig.SecretKey must be set")
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewStaticResolver()
	}
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	addr := cfg.ListenAddr
	if addr == "" {
		addr = "0.0.0.0:0"
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("p2p: resolve listen addr: %w", err)
	}
	pconn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("p2p: listen udp: %w", err)
	}

	ep := &Endpoint{
		secretKey: cfg.SecretKey,
		publicKey: cfg.SecretKey.Public(),
		resolver:  resolver,
		log:       log,
		conn:      pconn,
	}

	tlsConf, err := tlsConfig(cfg.SecretKey, tls.RequireAnyClientCert, nil)
	if err != nil {
		pconn.Close()
		return nil, err
	}
	listener, err := quic.Listen(pconn, tlsConf, quicServerConfig())
	if err != nil {
		pconn.Close()
		return nil, fmt.Errorf("p2p: quic listen: %w", err)
	}
	ep.listener = listener

	ep.log.WithField("public_key", ep.publicKey.Hex()).WithField("addr", pconn.LocalAddr()).
		Info("p2p endpoint bound")
	return ep, nil
}

func quicServerConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  60 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	}
}

// PublicKey returns this endpoint's own identity.
func (ep *Endpoint) PublicKey() PublicKey {
	return ep.publicKey
}

// LocalAddr returns the bound UDP address.
func (ep *Endpoint) LocalAddr() net.Addr {
	return ep.conn.LocalAddr()
}

// AddAddressHint records addr as the resolver's dial target for remote,
// when the endpoint's resolver is a *StaticResolver. This is how a caller
// supplies the network-address half of a "ticket" that otherwise only
// carries a PublicKey -- the core contract (Dial takes only a PublicKey)
// is unaffected.
func (ep *Endpoint) AddAddressHint(remote PublicKey, addr string) {
	if sr, ok := ep.resolver.(*StaticResolver); ok {
		sr.Add(remote, addr)
	}
}

// Dial establishes an outbound connection to remote, using the endpoint's
// Resolver to find a network address and mutually authenticating by public
// key over TLS. It blocks until the handshake completes or ctx is done.
func (ep *Endpoint) Dial(ctx context.Context, remote PublicKey) (*Connection, error) {
	addr, err := ep.resolver.Resolve(ctx, remote)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	tlsConf, err := tlsConfig(ep.secretKey, tls.NoClientCert, func(got PublicKey) error {
		if got != remote {
			return fmt.Errorf("p2p: dialed peer identity mismatch: want %s got %s", remote.Hex(), got.Hex())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	qconn, err := quic.DialAddr(dialCtx, addr, tlsConf, quicClientConfig())
	if err != nil {
		return nil, fmt.Errorf("p2p: dial %s: %w", addr, err)
	}
	return newConnection(qconn, remote, false), nil
}

func quicClientConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  60 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	}
}

// Accept blocks until a new inbound connection completes its handshake and
// returns it. The caller is expected to loop on Accept for the lifetime of
// the process, as the teacher's listenLoop does for TCP.
func (ep *Endpoint) Accept(ctx context.Context) (*Connection, error) {
	qconn, err := ep.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := remoteIdentity(qconn)
	if err != nil {
		qconn.CloseWithError(0, "bad peer identity")
		return nil, err
	}
	return newConnection(qconn, remote, true), nil
}

func remoteIdentity(qconn quic.Connection) (PublicKey, error) {
	state := qconn.ConnectionState().TLS
	if len(state.PeerCertificates) == 0 {
		return PublicKey{}, errors.New("p2p: no peer certificate on accepted connection")
	}
	return certPublicKey(state.PeerCertificates[0])
}

// Close shuts down the listener and local socket. Connections accepted
// through this endpoint run on that socket and stop working once it is
// closed; connections made by Dial use their own socket and are not closed.
func (ep *Endpoint) Close() error {
	if ep.listener != nil {
		_ = ep.listener.Close()
	}
	return ep.conn.Close()
}
