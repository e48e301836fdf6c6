package main

import (
	"errors"
	"strings"
)

// Error taxonomy. Encoding and parsing errors are local to one message;
// privilege and address errors are fatal for the run; timeouts are a
// result value in query mode and irrelevant in attack mode.
var (
	// ErrEncoding marks an outbound message that cannot be serialized,
	// e.g. an over-long label. Should not happen with validated inputs.
	ErrEncoding = errors.New("cannot encode DNS message")

	// ErrMalformedMessage marks inbound bytes that do not parse as a DNS
	// message; the message is dropped.
	ErrMalformedMessage = errors.New("malformed DNS message")

	// ErrTimeout means no reply arrived within the query timeout.
	ErrTimeout = errors.New("query timed out")

	// ErrPermissionDenied means the raw socket could not be opened or
	// used; nothing works without it, so it aborts the run.
	ErrPermissionDenied = errors.New("insufficient privilege for raw socket")

	// ErrInvalidAddress marks an argument that is not a usable IPv4
	// address; caught during startup validation.
	ErrInvalidAddress = errors.New("invalid IPv4 address")
)

// errorHint returns operator guidance for the usual failure modes, shown
// alongside fatal errors.
func errorHint(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "run as root or grant CAP_NET_RAW (setcap cap_net_raw+ep)"
	case errors.Is(err, ErrInvalidAddress):
		return "addresses must be dotted-quad IPv4, e.g. 10.0.0.1"
	case errors.Is(err, ErrTimeout):
		return "check that the DNS server is reachable and answering on port 53"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such device"):
		return "interface not found, list interfaces with 'ip link show'"
	case strings.Contains(msg, "xdp"):
		return "XDP needs kernel 4.18+ and driver support; omit -interface to use the raw socket path"
	case strings.Contains(msg, "no such host"):
		return "hostname did not resolve, check the name or use an IP address"
	}
	return ""
}
