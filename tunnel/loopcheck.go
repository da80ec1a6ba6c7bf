package tunnel

import "strings"

// socksPorts are the ports a Connect request is rejected on when the host
// also looks like this process (or a sibling SOCKS proxy on the same
// machine), preventing a tunnel from looping back into itself.
var socksPorts = map[uint16]bool{1080: true, 1081: true, 9050: true}

// isLoopbackTarget reports whether host:port names a local SOCKS proxy,
// which would otherwise let a client tunnel a connection back into its own
// listener and deadlock.
func isLoopbackTarget(host string, port uint16) bool {
	isLoopbackHost := host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasPrefix(host, "127.")
	return isLoopbackHost && socksPorts[port]
}
