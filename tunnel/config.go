package tunnel

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/drep-project/tunnel/p2p"
)

// Config collects everything Run needs to start a tunnel proxy process,
// mirroring the teacher's plain-struct-plus-Start-method shape rather than
// a generic config-file loader -- this program has no config file either.
type Config struct {
	// SocksPort is the local port the SOCKS5 front-end listens on.
	SocksPort int

	// Peer is the remote node's public key to dial at startup; it is used
	// only when HasPeer is set. HasPeer false means server mode: wait for an
	// inbound connection instead.
	Peer    p2p.PublicKey
	HasPeer bool

	// PersistIdentity controls whether the local secret key survives
	// restarts via .tunnel_key.
	PersistIdentity bool

	Log *logrus.Entry
}

// Run wires together the endpoint, session, supervisor, and SOCKS5 front
// end described by cfg, and blocks until ctx is cancelled or the SOCKS5
// listener fails.
func Run(ctx context.Context, cfg Config) error {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}

	secretKey, err := GetOrCreateSecretKey(cfg.PersistIdentity, log)
	if err != nil {
		return err
	}

	endpoint, err := p2p.Bind(p2p.BindConfig{SecretKey: secretKey, Log: log})
	if err != nil {
		return fmt.Errorf("tunnel: bind p2p endpoint: %w", err)
	}
	defer endpoint.Close()

	log.WithField("public_key", endpoint.PublicKey().Hex()).Info("tunnel node identity")

	persistedPeer, hadPersisted := LoadRemotePeerID(log)
	if cfg.HasPeer && hadPersisted && persistedPeer != cfg.Peer {
		log.WithField("previous", persistedPeer.Hex()).Info("peer ticket changed, discarding stale persisted peer id")
		if err := ClearRemotePeerID(); err != nil {
			log.WithError(err).Warn("failed to clear stale persisted peer id")
		}
		hadPersisted = false
	}
	session := NewSession(persistedPeer, hadPersisted)

	supervisor := NewSupervisor(endpoint, session, log, func(remote p2p.PublicKey) {
		SaveRemotePeerID(remote, log)
	})

	switch {
	case cfg.HasPeer:
		log.Info("connecting to peer")
		if err := supervisor.DialPeer(ctx, cfg.Peer); err != nil {
			log.WithError(err).Error("initial connection to peer failed, will keep retrying in background")
		}
	case hadPersisted:
		log.WithField("remote", persistedPeer.Hex()).Info("waiting for persisted peer to reconnect or connect in")
	default:
		log.WithField("public_key", endpoint.PublicKey().Hex()).Info("waiting for peer to connect")
	}

	go supervisor.RunAcceptLoop(ctx)
	go supervisor.RunHealthMonitor(ctx)

	socksServer := NewSocksServer(cfg.SocksPort, supervisor, log)
	return socksServer.Serve(ctx)
}
