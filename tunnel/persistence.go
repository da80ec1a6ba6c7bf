package tunnel

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/drep-project/tunnel/p2p"
)

const (
	secretKeyFile  = ".tunnel_key"
	remotePeerFile = ".tunnel_peer"
)

// GetOrCreateSecretKey loads this process's identity from secretKeyFile, or
// generates a fresh one. When persist is false the generated key is never
// written to disk, matching the original's ephemeral-identity mode.
func GetOrCreateSecretKey(persist bool, log *logrus.Entry) (p2p.SecretKey, error) {
	if persist {
		if bytes, err := os.ReadFile(secretKeyFile); err == nil {
			sk, err := p2p.SecretKeyFromBytes(bytes)
			if err != nil {
				return p2p.SecretKey{}, fmt.Errorf("tunnel: invalid key in %s: %w", secretKeyFile, err)
			}
			log.Info("loaded persistent secret key")
			return sk, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return p2p.SecretKey{}, fmt.Errorf("tunnel: read %s: %w", secretKeyFile, err)
		}
	}

	sk, err := p2p.GenerateSecretKey()
	if err != nil {
		return p2p.SecretKey{}, fmt.Errorf("tunnel: generate secret key: %w", err)
	}

	if persist {
		if err := os.WriteFile(secretKeyFile, sk.Bytes(), 0o600); err != nil {
			return p2p.SecretKey{}, fmt.Errorf("tunnel: write %s: %w", secretKeyFile, err)
		}
		log.Info("generated and saved new secret key")
	} else {
		log.Info("generated ephemeral secret key (not persisted)")
	}
	return sk, nil
}

// SaveRemotePeerID persists remote as the peer to reconnect to on restart.
// Failures are logged, not fatal: losing this file only costs the
// convenience of surviving a restart, never correctness.
func SaveRemotePeerID(remote p2p.PublicKey, log *logrus.Entry) {
	if err := os.WriteFile(remotePeerFile, remote[:], 0o600); err != nil {
		log.WithError(err).Warn("failed to persist remote peer id")
	}
}

// LoadRemotePeerID returns the previously persisted remote peer identity,
// if any file exists and it parses.
func LoadRemotePeerID(log *logrus.Entry) (p2p.PublicKey, bool) {
	bytes, err := os.ReadFile(remotePeerFile)
	if err != nil {
		return p2p.PublicKey{}, false
	}
	pk, err := p2p.Bytes2PublicKey(bytes)
	if err != nil {
		log.WithError(err).Warn("ignoring corrupt persisted peer id")
		return p2p.PublicKey{}, false
	}
	log.WithField("remote", pk.Hex()).Info("loaded persisted peer id")
	return pk, true
}

// ClearRemotePeerID removes any persisted peer identity. Run calls it when
// a peer ticket differs from the persisted one.
func ClearRemotePeerID() error {
	err := os.Remove(remotePeerFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("tunnel: remove %s: %w", remotePeerFile, err)
	}
	return nil
}
