package tunnel

import (
	"testing"

	"github.com/drep-project/tunnel/p2p"
)

var emptyPublicKey p2p.PublicKey

func TestSessionInitialState(t *testing.T) {
	s := NewSession(emptyPublicKey, false)
	snap := s.Snapshot()
	if snap.State != StateDisconnected {
		t.Fatalf("got %v, want StateDisconnected", snap.State)
	}
	if snap.Conn != nil {
		t.Fatal("expected nil connection")
	}
	if snap.HasRemotePeerID {
		t.Fatal("expected no remote peer id")
	}
}

func TestSessionSetConnectingIncrementsAttempts(t *testing.T) {
	s := NewSession(emptyPublicKey, false)
	if got := s.SetConnecting(); got != 1 {
		t.Fatalf("got attempt %d, want 1", got)
	}
	if got := s.SetConnecting(); got != 2 {
		t.Fatalf("got attempt %d, want 2", got)
	}
	if s.Snapshot().State != StateConnecting {
		t.Fatal("expected StateConnecting")
	}
}

func TestSessionSetFailed(t *testing.T) {
	s := NewSession(emptyPublicKey, false)
	s.SetConnecting()
	s.SetFailed()
	if s.Snapshot().State != StateFailed {
		t.Fatal("expected StateFailed")
	}
}

func TestConnectionStateString(t *testing.T) {
	cases := map[ConnectionState]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateFailed:       "failed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}
