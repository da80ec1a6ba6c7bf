package tunnel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix the codec will honor. The core
// protocol defines no maximum (spec.md §4.1), but implementers SHOULD cap
// it to bound memory; 16 MiB comfortably exceeds any real control message
// while catching corrupt or hostile length prefixes.
const MaxFrameSize = 16 << 20

// ErrClosed is returned by recvMessage when the stream ended cleanly
// before any bytes of a new frame arrived.
var ErrClosed = errors.New("tunnel: stream closed")

// ErrTruncated is returned by recvMessage when the stream ended partway
// through a frame.
var ErrTruncated = errors.New("tunnel: truncated frame")

// ErrOversizeFrame is returned when a frame's declared length exceeds
// MaxFrameSize.
var ErrOversizeFrame = fmt.Errorf("tunnel: frame exceeds %d bytes", MaxFrameSize)

// sendMessage serializes msg and writes it to w as len:u32be || payload.
// A partial write is treated as a hard failure: the transport is assumed
// reliable, so any error here means the stream is unusable and the caller
// must abort it.
func sendMessage(w io.Writer, msg TunnelMessage) error {
	payload := msg.encode()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("tunnel: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("tunnel: write frame payload: %w", err)
	}
	return nil
}

// recvMessage reads one framed message from r. It distinguishes a clean
// close (no bytes read before EOF) from a truncated frame (EOF partway
// through the length prefix or payload), per spec.md §4.1.
func recvMessage(r io.Reader) (TunnelMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return TunnelMessage{}, ErrClosed
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return TunnelMessage{}, ErrTruncated
		}
		return TunnelMessage{}, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return TunnelMessage{}, ErrOversizeFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return TunnelMessage{}, ErrTruncated
		}
		return TunnelMessage{}, err
	}

	return decodeMessage(payload)
}
