// Package p2p wraps a QUIC-based peer transport behind the small surface
// the tunnel package needs: bind a local endpoint under a secret key, dial
// or accept a single remote peer, and open or accept multiplexed
// bidirectional streams on the resulting connection.
package p2p

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// KeySize is the length in bytes of both PublicKey and SecretKey.
const KeySize = ed25519.SeedSize // 32

// PublicKey identifies a remote node. It is comparable and round-trips
// through Hex/ParsePublicKey, matching the ticket format the CLI accepts.
type PublicKey [KeySize]byte

// ParsePublicKey parses the hex text form produced by PublicKey.Hex.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, err
	}
	if len(b) != KeySize {
		return pk, errors.New("p2p: public key must be 32 bytes")
	}
	copy(pk[:], b)
	return pk, nil
}

// Bytes2PublicKey builds a PublicKey from a raw 32-byte slice.
func Bytes2PublicKey(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != KeySize {
		return pk, errors.New("p2p: public key must be 32 bytes")
	}
	copy(pk[:], b)
	return pk, nil
}

// Hex returns the text form of the key, as accepted by ParsePublicKey.
func (pk PublicKey) Hex() string {
	return hex.EncodeToString(pk[:])
}

func (pk PublicKey) String() string {
	return pk.Hex()
}

// MarshalText implements encoding.TextMarshaler.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// IsZero reports whether pk is the zero value.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// SecretKey is the private counterpart to PublicKey, binding the local
// endpoint's identity.
type SecretKey [KeySize]byte

// GenerateSecretKey creates a fresh random secret key.
func GenerateSecretKey() (SecretKey, error) {
	var sk SecretKey
	if _, err := rand.Read(sk[:]); err != nil {
		return sk, err
	}
	return sk, nil
}

// SecretKeyFromBytes validates and wraps a raw 32-byte secret key.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	var sk SecretKey
	if len(b) != KeySize {
		return sk, errors.New("p2p: secret key must be 32 bytes")
	}
	copy(sk[:], b)
	return sk, nil
}

// Bytes returns the raw key bytes.
func (sk SecretKey) Bytes() []byte {
	return sk[:]
}

// ed25519 derives the full ed25519 key pair used to sign the self-signed
// TLS certificate that authenticates this endpoint.
func (sk SecretKey) ed25519() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(sk[:])
}

// Public returns the PublicKey corresponding to sk.
func (sk SecretKey) Public() PublicKey {
	priv := sk.ed25519()
	pub := priv.Public().(ed25519.PublicKey)
	var pk PublicKey
	copy(pk[:], pub)
	return pk
}
