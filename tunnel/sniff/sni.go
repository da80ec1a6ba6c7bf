// Package sniff extracts informational metadata -- a TLS SNI hostname or
// an HTTP/1.x request line -- from the first packet of a relayed flow.
// Both extractors are pure and total: malformed or short input yields a
// negative result, never a panic.
package sniff

import (
	"encoding/binary"
	"unicode/utf8"
)

// ExtractSNI inspects data for a TLS ClientHello record and returns the
// hostname carried by its server_name extension, if any.
func ExtractSNI(data []byte) (string, bool) {
	if len(data) < 43 {
		return "", false
	}
	if data[0] != 0x16 { // TLS handshake record
		return "", false
	}
	if data[1] != 0x03 { // TLS 1.x
		return "", false
	}
	if data[5] != 0x01 { // ClientHello
		return "", false
	}

	pos := 43

	if pos >= len(data) {
		return "", false
	}
	sessionIDLen := int(data[pos])
	pos += 1 + sessionIDLen

	if pos+2 > len(data) {
		return "", false
	}
	cipherSuitesLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2 + cipherSuitesLen

	if pos >= len(data) {
		return "", false
	}
	compressionLen := int(data[pos])
	pos += 1 + compressionLen

	if pos+2 > len(data) {
		return "", false
	}
	extensionsLen := int(binary.BigEndian.Uint16(data[pos : pos+2]))
	pos += 2

	extensionsEnd := pos + extensionsLen

	for pos+4 <= extensionsEnd && pos+4 <= len(data) {
		extType := binary.BigEndian.Uint16(data[pos : pos+2])
		extLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4

		if extType == 0x0000 && pos+extLen <= len(data) {
			return parseServerNameExtension(data[pos : pos+extLen])
		}
		pos += extLen
	}

	return "", false
}

// parseServerNameExtension decodes the body of a server_name extension:
// 2-byte list length, 1-byte name type, 2-byte name length, name bytes.
func parseServerNameExtension(ext []byte) (string, bool) {
	if len(ext) < 5 {
		return "", false
	}
	nameType := ext[2]
	if nameType != 0 {
		return "", false
	}
	hostnameLen := int(binary.BigEndian.Uint16(ext[3:5]))
	if 5+hostnameLen > len(ext) {
		return "", false
	}
	name := ext[5 : 5+hostnameLen]
	if !utf8.Valid(name) {
		return "", false
	}
	return string(name), true
}
