package sniff

import (
	"encoding/binary"
	"testing"
)

// buildClientHello assembles a minimal TLS ClientHello record carrying a
// server_name extension for hostname, for use as sniffer test fixtures.
func buildClientHello(hostname string) []byte {
	var sni []byte
	sni = append(sni, 0, 0) // server name list length, patched below
	sni = append(sni, 0)    // name_type = host_name
	nameLen := make([]byte, 2)
	binary.BigEndian.PutUint16(nameLen, uint16(len(hostname)))
	sni = append(sni, nameLen...)
	sni = append(sni, hostname...)
	binary.BigEndian.PutUint16(sni[0:2], uint16(len(sni)-2))

	var ext []byte
	ext = append(ext, 0x00, 0x00) // extension type: server_name
	extLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extLen, uint16(len(sni)))
	ext = append(ext, extLen...)
	ext = append(ext, sni...)

	var hello []byte
	hello = append(hello, 0x16, 0x03, 0x03) // handshake, TLS 1.2 record version
	hello = append(hello, 0, 0)             // record length placeholder
	hello = append(hello, 0x01)             // ClientHello
	hello = append(hello, 0, 0, 0)          // handshake length placeholder
	hello = append(hello, 0x03, 0x03)       // client version
	hello = append(hello, make([]byte, 32)...)
	hello = append(hello, 0x00)       // session id length
	hello = append(hello, 0, 2)       // cipher suites length
	hello = append(hello, 0x00, 0x00) // one cipher suite
	hello = append(hello, 0x01)       // compression methods length
	hello = append(hello, 0x00)       // null compression

	extsLen := make([]byte, 2)
	binary.BigEndian.PutUint16(extsLen, uint16(len(ext)))
	hello = append(hello, extsLen...)
	hello = append(hello, ext...)

	return hello
}

func TestExtractSNI(t *testing.T) {
	t.Run("valid hostname", func(t *testing.T) {
		data := buildClientHello("example.com")
		host, ok := ExtractSNI(data)
		if !ok || host != "example.com" {
			t.Fatalf("got (%q, %v), want (example.com, true)", host, ok)
		}
	})

	t.Run("too short", func(t *testing.T) {
		if _, ok := ExtractSNI(make([]byte, 42)); ok {
			t.Fatal("expected failure for 42-byte input")
		}
	})

	t.Run("not a handshake record", func(t *testing.T) {
		data := buildClientHello("example.com")
		data[0] = 0x17
		if _, ok := ExtractSNI(data); ok {
			t.Fatal("expected failure for non-handshake record type")
		}
	})

	t.Run("not a client hello", func(t *testing.T) {
		data := buildClientHello("example.com")
		data[5] = 0x02
		if _, ok := ExtractSNI(data); ok {
			t.Fatal("expected failure for non-ClientHello handshake type")
		}
	})

	t.Run("no server name extension", func(t *testing.T) {
		var hello []byte
		hello = append(hello, 0x16, 0x03, 0x03)
		hello = append(hello, 0, 0)
		hello = append(hello, 0x01)
		hello = append(hello, 0, 0, 0)
		hello = append(hello, 0x03, 0x03)
		hello = append(hello, make([]byte, 32)...)
		hello = append(hello, 0x00)
		hello = append(hello, 0, 2)
		hello = append(hello, 0x00, 0x00)
		hello = append(hello, 0x01)
		hello = append(hello, 0x00)
		// one extension, type 0x000d (signature_algorithms), empty body
		hello = append(hello, 0, 4)
		hello = append(hello, 0x00, 0x0d, 0x00, 0x00)

		if _, ok := ExtractSNI(hello); ok {
			t.Fatal("expected failure when no server_name extension is present")
		}
	})

	t.Run("truncated extensions", func(t *testing.T) {
		data := buildClientHello("example.com")
		if _, ok := ExtractSNI(data[:len(data)-5]); ok {
			t.Fatal("expected failure for truncated extension data")
		}
	})
}
