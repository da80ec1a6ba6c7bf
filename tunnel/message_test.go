package tunnel

import (
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestMessageRoundTrip(t *testing.T) {
	cases := []TunnelMessage{
		Connect("example.com", 443),
		Connected(),
		ErrorMessage("boom"),
		DataMessage([]byte("hello world")),
		CloseMessage(),
	}

	for _, msg := range cases {
		encoded := msg.encode()
		decoded, err := decodeMessage(encoded)
		if err != nil {
			t.Fatalf("decode %s: %v", msg.String(), err)
		}
		if decoded.tag != msg.tag {
			t.Fatalf("tag mismatch: got %d want %d", decoded.tag, msg.tag)
		}
		switch {
		case msg.IsConnect():
			if decoded.ConnectHost != msg.ConnectHost || decoded.ConnectPort != msg.ConnectPort {
				t.Fatalf("connect fields mismatch: got %+v want %+v", decoded, msg)
			}
		case msg.IsError():
			if decoded.ErrorMsg != msg.ErrorMsg {
				t.Fatalf("error message mismatch: got %q want %q", decoded.ErrorMsg, msg.ErrorMsg)
			}
		case msg.IsData():
			if string(decoded.Data) != string(msg.Data) {
				t.Fatalf("data mismatch: got %q want %q", decoded.Data, msg.Data)
			}
		}
	}
}

func TestMessagePredicates(t *testing.T) {
	if !Connect("h", 1).IsConnect() {
		t.Fatal("expected IsConnect")
	}
	if !Connected().IsConnected() {
		t.Fatal("expected IsConnected")
	}
	if !ErrorMessage("x").IsError() {
		t.Fatal("expected IsError")
	}
	if !DataMessage(nil).IsData() {
		t.Fatal("expected IsData")
	}
	if !CloseMessage().IsClose() {
		t.Fatal("expected IsClose")
	}
}

func TestDecodeMessageUnknownTag(t *testing.T) {
	if _, err := decodeMessage([]byte{99}); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDecodeMessageSkipsUnknownFields(t *testing.T) {
	// A Connect message carrying an unexpected field should still decode,
	// since the wire format must tolerate unknown fields for forward
	// compatibility.
	msg := Connect("host", 80)
	encoded := msg.encode()
	encoded = protowire.AppendTag(encoded, 15, protowire.VarintType)
	encoded = protowire.AppendVarint(encoded, 7)
	decoded, err := decodeMessage(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ConnectHost != "host" || decoded.ConnectPort != 80 {
		t.Fatalf("got %+v", decoded)
	}
}
