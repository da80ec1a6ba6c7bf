package tunnel

import "errors"

// ErrNoPeerConnection is returned when a SOCKS5 request cannot be served
// because no peer connection is available and none is expected to become
// available soon.
var ErrNoPeerConnection = errors.New("tunnel: no peer connection available")

// ErrLoopDetected is returned when a Connect request targets a loopback
// host on one of the common SOCKS ports (see isLoopbackTarget).
var ErrLoopDetected = errors.New("tunnel: refusing to tunnel to local SOCKS proxy")
