package p2p

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"testing"
)

func TestSelfSignedCertCarriesPublicKey(t *testing.T) {
	sk, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}

	cert, err := selfSignedCert(sk)
	if err != nil {
		t.Fatalf("selfSignedCert: %v", err)
	}

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	got, err := certPublicKey(parsed)
	if err != nil {
		t.Fatalf("certPublicKey: %v", err)
	}
	if got != sk.Public() {
		t.Fatalf("got %v, want %v", got, sk.Public())
	}
}

func TestTLSConfigVerifyPeerCertificateRejectsMismatch(t *testing.T) {
	local, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	peer, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	wantWrong, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}

	cfg, err := tlsConfig(local, tls.RequireAnyClientCert, func(got PublicKey) error {
		if got != wantWrong.Public() {
			return errors.New("identity mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tlsConfig: %v", err)
	}

	peerCert, err := selfSignedCert(peer)
	if err != nil {
		t.Fatalf("selfSignedCert: %v", err)
	}

	if err := cfg.VerifyPeerCertificate([][]byte{peerCert.Certificate[0]}, nil); err == nil {
		t.Fatal("expected verification failure for mismatched identity")
	}
}
