package tunnel

import (
	"testing"
	"time"
)

func TestReconnectBackoffSchedule(t *testing.T) {
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}

	b := newReconnectBackoff()
	for i, want := range want {
		got := b.NextBackOff()
		if got != want {
			t.Fatalf("attempt %d: got %v, want %v", i, got, want)
		}
	}
}

func TestReconnectBackoffReset(t *testing.T) {
	b := newReconnectBackoff()
	b.NextBackOff()
	b.NextBackOff()
	b.Reset()
	if got := b.NextBackOff(); got != 1*time.Second {
		t.Fatalf("got %v after reset, want 1s", got)
	}
}
