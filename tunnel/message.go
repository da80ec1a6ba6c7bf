package tunnel

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// messageTag discriminates the TunnelMessage variants on the wire. Values
// are part of the wire format and must never be renumbered.
type messageTag uint64

const (
	tagConnect   messageTag = 1
	tagConnected messageTag = 2
	tagError     messageTag = 3
	tagData      messageTag = 4
	tagClose     messageTag = 5
)

// field numbers within each variant's payload.
const (
	fieldConnectHost protowire.Number = 1
	fieldConnectPort protowire.Number = 2
	fieldErrorMsg    protowire.Number = 1
	fieldDataBytes   protowire.Number = 1
)

// TunnelMessage is the tagged union carried, length-prefixed, over every
// stream pair. Exactly one of the Connect/Error/Data fields is meaningful,
// selected by Tag; Connected and Close carry no payload.
type TunnelMessage struct {
	tag messageTag

	ConnectHost string
	ConnectPort uint16
	ErrorMsg    string
	Data        []byte
}

// Connect builds a Connect{host, port} message.
func Connect(host string, port uint16) TunnelMessage {
	return TunnelMessage{tag: tagConnect, ConnectHost: host, ConnectPort: port}
}

// Connected builds a Connected message.
func Connected() TunnelMessage {
	return TunnelMessage{tag: tagConnected}
}

// ErrorMessage builds an Error{message} message.
func ErrorMessage(msg string) TunnelMessage {
	return TunnelMessage{tag: tagError, ErrorMsg: msg}
}

// DataMessage builds a Data{bytes} message. The slice is retained, not
// copied; callers must not mutate it after passing it in.
func DataMessage(b []byte) TunnelMessage {
	return TunnelMessage{tag: tagData, Data: b}
}

// CloseMessage builds a Close message.
func CloseMessage() TunnelMessage {
	return TunnelMessage{tag: tagClose}
}

func (m TunnelMessage) IsConnect() bool   { return m.tag == tagConnect }
func (m TunnelMessage) IsConnected() bool { return m.tag == tagConnected }
func (m TunnelMessage) IsError() bool     { return m.tag == tagError }
func (m TunnelMessage) IsData() bool      { return m.tag == tagData }
func (m TunnelMessage) IsClose() bool     { return m.tag == tagClose }

func (m TunnelMessage) String() string {
	switch m.tag {
	case tagConnect:
		return fmt.Sprintf("Connect{%s:%d}", m.ConnectHost, m.ConnectPort)
	case tagConnected:
		return "Connected"
	case tagError:
		return fmt.Sprintf("Error{%s}", m.ErrorMsg)
	case tagData:
		return fmt.Sprintf("Data{%d bytes}", len(m.Data))
	case tagClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// encode serializes m using a small protobuf-style tag/length/value
// encoding: a varint discriminant tag followed by the variant's fields,
// each themselves protobuf-wire-encoded. This is the "stable self-
// describing binary encoding" spec.md §4.1 requires, built directly on
// protowire's primitives rather than generated descriptor code.
func (m TunnelMessage) encode() []byte {
	var b []byte
	b = protowire.AppendVarint(b, uint64(m.tag))
	switch m.tag {
	case tagConnect:
		b = protowire.AppendTag(b, fieldConnectHost, protowire.BytesType)
		b = protowire.AppendString(b, m.ConnectHost)
		b = protowire.AppendTag(b, fieldConnectPort, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ConnectPort))
	case tagError:
		b = protowire.AppendTag(b, fieldErrorMsg, protowire.BytesType)
		b = protowire.AppendString(b, m.ErrorMsg)
	case tagData:
		b = protowire.AppendTag(b, fieldDataBytes, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	case tagConnected, tagClose:
		// no payload
	}
	return b
}

// decodeMessage is the inverse of encode. Unknown fields are skipped so the
// wire format can grow variants without breaking older readers.
func decodeMessage(b []byte) (TunnelMessage, error) {
	tagVal, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return TunnelMessage{}, fmt.Errorf("tunnel: decode: %w", protowire.ParseError(n))
	}
	b = b[n:]
	tag := messageTag(tagVal)

	m := TunnelMessage{tag: tag}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return TunnelMessage{}, fmt.Errorf("tunnel: decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case tag == tagConnect && num == fieldConnectHost && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return TunnelMessage{}, fmt.Errorf("tunnel: decode host: %w", protowire.ParseError(n))
			}
			m.ConnectHost = v
			b = b[n:]
		case tag == tagConnect && num == fieldConnectPort && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return TunnelMessage{}, fmt.Errorf("tunnel: decode port: %w", protowire.ParseError(n))
			}
			m.ConnectPort = uint16(v)
			b = b[n:]
		case tag == tagError && num == fieldErrorMsg && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return TunnelMessage{}, fmt.Errorf("tunnel: decode error message: %w", protowire.ParseError(n))
			}
			m.ErrorMsg = v
			b = b[n:]
		case tag == tagData && num == fieldDataBytes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return TunnelMessage{}, fmt.Errorf("tunnel: decode data: %w", protowire.ParseError(n))
			}
			m.Data = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return TunnelMessage{}, fmt.Errorf("tunnel: decode unknown field: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	switch tag {
	case tagConnect, tagConnected, tagError, tagData, tagClose:
		return m, nil
	default:
		return TunnelMessage{}, fmt.Errorf("tunnel: unknown message tag %d", tag)
	}
}
