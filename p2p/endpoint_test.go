package p2p

import (
	"context"
	"errors"
	"testing"
)

func TestStaticResolverAddAndResolve(t *testing.T) {
	r := NewStaticResolver()
	sk, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	pub := sk.Public()

	r.Add(pub, "127.0.0.1:4242")
	addr, err := r.Resolve(context.Background(), pub)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if addr != "127.0.0.1:4242" {
		t.Fatalf("got %q", addr)
	}
}

func TestStaticResolverUnknownPeer(t *testing.T) {
	r := NewStaticResolver()
	var pub PublicKey
	_, err := r.Resolve(context.Background(), pub)
	if !errors.Is(err, ErrNoAddressHint) {
		t.Fatalf("got %v, want ErrNoAddressHint", err)
	}
}
