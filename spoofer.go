package main

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// SpoofTransport transmits one fully assembled forged datagram. Both the
// raw socket and XDP implementations satisfy it, as do the fakes the
// tests inject, which keeps the orchestrator free of privilege
// requirements.
type SpoofTransport interface {
	Send(d *SpoofedDatagram) error
	Close() error
}

// RawSpoofer sends spoofed datagrams through an AF_INET raw socket with
// IP_HDRINCL set, so the kernel transmits our IP header verbatim instead
// of filling in the real source address. Opening the socket needs
// CAP_NET_RAW. Concurrent Send calls are safe: each datagram is a single
// sendto of a caller-owned buffer.
type RawSpoofer struct {
	fd int
}

// NewRawSpoofer opens the raw socket. A caller without sufficient
// privilege gets ErrPermissionDenied, which is fatal for the whole run:
// no attack cycle can succeed without the spoof channel.
func NewRawSpoofer() (*RawSpoofer, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, wrapSocketErr("opening raw socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		unix.Close(fd)
		return nil, wrapSocketErr("setting IP_HDRINCL", err)
	}
	return &RawSpoofer{fd: fd}, nil
}

func (s *RawSpoofer) Send(d *SpoofedDatagram) error {
	packet, err := d.Marshal()
	if err != nil {
		return err
	}
	var addr unix.SockaddrInet4
	copy(addr.Addr[:], d.DstAddr.To4())
	if err := unix.Sendto(s.fd, packet, 0, &addr); err != nil {
		return wrapSocketErr("sending spoofed datagram", err)
	}
	return nil
}

func (s *RawSpoofer) Close() error {
	return unix.Close(s.fd)
}

// wrapSocketErr maps privilege errors onto the ErrPermissionDenied
// sentinel so callers can tell a fatal capability problem from a
// transient send failure.
func wrapSocketErr(op string, err error) error {
	if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		return fmt.Errorf("%s: %w: %v", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
