package p2p

import (
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"time"
)

// TunnelALPN is the application-layer protocol identifier both endpoints
// negotiate during the TLS handshake. Connections presenting any other
// ALPN are rejected at the QUIC layer.
const TunnelALPN = "iroh-tunnel/1"

// selfSignedCert builds a short-lived, self-signed TLS certificate binding
// the endpoint's ed25519 key pair. The certificate carries no meaningful
// identity claims beyond the public key itself -- peer authentication is
// done by comparing the negotiated certificate's public key against the
// expected PublicKey, not by any certificate authority.
func selfSignedCert(sk SecretKey) (tls.Certificate, error) {
	priv := sk.ed25519()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: sk.Public().Hex()},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(nil, template, template, priv.Public(), priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}, nil
}

// certPublicKey extracts the ed25519 public key carried by a peer
// certificate and returns it as a PublicKey.
func certPublicKey(cert *x509.Certificate) (PublicKey, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return PublicKey{}, errors.New("p2p: peer certificate is not ed25519")
	}
	return Bytes2PublicKey(pub)
}

// tlsConfig builds the tls.Config used for both dialing and listening.
// Verification is entirely custom: the standard chain-of-trust checks are
// disabled (there is no CA -- every peer is self-signed) and replaced by
// VerifyPeerCertificate, which the caller fills in to check the remote's
// public key once it is known (on dial, it is known up front; on accept,
// it is learned from the handshake and recorded by the caller).
//
// clientAuth must be tls.RequireAnyClientCert on the listening side: without
// it the server never asks the dialing peer for a certificate, and mutual
// authentication silently degrades to the server never learning who
// connected. The dialing side always presents its own certificate
// regardless of this setting, so it passes tls.NoClientCert.
func tlsConfig(sk SecretKey, clientAuth tls.ClientAuthType, verify func(remote PublicKey) error) (*tls.Config, error) {
	cert, err := selfSignedCert(sk)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true,
		ClientAuth:         clientAuth,
		NextProtos:         []string{TunnelALPN},
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return errors.New("p2p: no peer certificate presented")
			}
			cert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return err
			}
			remote, err := certPublicKey(cert)
			if err != nil {
				return err
			}
			if verify == nil {
				return nil
			}
			return verify(remote)
		},
	}, nil
}
