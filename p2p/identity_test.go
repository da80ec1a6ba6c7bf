package p2p

import "testing"

func TestSecretKeyPublicRoundTrip(t *testing.T) {
	sk, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	pub := sk.Public()
	if pub.IsZero() {
		t.Fatal("expected non-zero public key")
	}

	reparsed, err := ParsePublicKey(pub.Hex())
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if reparsed != pub {
		t.Fatalf("got %v, want %v", reparsed, pub)
	}
}

func TestSecretKeyFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := SecretKeyFromBytes(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short secret key")
	}
}

func TestBytes2PublicKeyRejectsWrongLength(t *testing.T) {
	if _, err := Bytes2PublicKey(make([]byte, 31)); err == nil {
		t.Fatal("expected error for short public key")
	}
}

func TestParsePublicKeyRejectsInvalidHex(t *testing.T) {
	if _, err := ParsePublicKey("not-hex!!"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestPublicKeyTextMarshalRoundTrip(t *testing.T) {
	sk, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	pub := sk.Public()

	text, err := pub.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got PublicKey
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if got != pub {
		t.Fatalf("got %v, want %v", got, pub)
	}
}

func TestTwoGeneratedKeysDiffer(t *testing.T) {
	a, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	b, err := GenerateSecretKey()
	if err != nil {
		t.Fatalf("GenerateSecretKey: %v", err)
	}
	if a == b {
		t.Fatal("expected two independently generated keys to differ")
	}
}
