package main

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalReferenceChecksum(t *testing.T) {
	d := &SpoofedDatagram{
		SrcAddr: net.IPv4(10, 0, 0, 2),
		DstAddr: net.IPv4(10, 0, 0, 1),
		SrcPort: 53,
		DstPort: 33333,
		Payload: []byte("ab"),
	}
	packet, err := d.Marshal()
	require.NoError(t, err)
	require.Len(t, packet, 30)

	// Hand-computed over the pseudo-header, UDP header and payload.
	assert.Equal(t, []byte{0x08, 0x0b}, packet[26:28])
}

func TestMarshalLayout(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x00}
	d := &SpoofedDatagram{
		SrcAddr: net.IPv4(192, 0, 2, 1),
		DstAddr: net.IPv4(198, 51, 100, 7),
		SrcPort: 53,
		DstPort: 33333,
		Payload: payload,
	}
	packet, err := d.Marshal()
	require.NoError(t, err)
	require.Len(t, packet, ipv4HeaderLen+udpHeaderLen+len(payload))

	assert.Equal(t, byte(0x45), packet[0])
	assert.Equal(t, uint16(len(packet)), uint16(packet[2])<<8|uint16(packet[3]))
	assert.Equal(t, uint16(ipFlagDF), uint16(packet[6])<<8|uint16(packet[7]))
	assert.Equal(t, byte(ipDefTTL), packet[8])
	assert.Equal(t, byte(ipProtoUDP), packet[9])
	assert.Equal(t, []byte{192, 0, 2, 1}, packet[12:16])
	assert.Equal(t, []byte{198, 51, 100, 7}, packet[16:20])

	udp := packet[ipv4HeaderLen:]
	assert.Equal(t, uint16(53), uint16(udp[0])<<8|uint16(udp[1]))
	assert.Equal(t, uint16(33333), uint16(udp[2])<<8|uint16(udp[3]))
	assert.Equal(t, uint16(udpHeaderLen+len(payload)), uint16(udp[4])<<8|uint16(udp[5]))
	assert.Equal(t, payload, udp[udpHeaderLen:])
}

// A correct one's-complement checksum makes the sum over the checksummed
// region, checksum field included, fold to all ones, which foldChecksum
// reports as zero.
func TestMarshalChecksumsVerify(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		{0x01, 0x02, 0x03}, // odd length
		[]byte("a longer payload that spans several words"),
	}
	for _, payload := range payloads {
		d := &SpoofedDatagram{
			SrcAddr: net.IPv4(10, 1, 2, 3),
			DstAddr: net.IPv4(10, 3, 2, 1),
			SrcPort: 53,
			DstPort: 33333,
			Payload: payload,
		}
		packet, err := d.Marshal()
		require.NoError(t, err)

		ip := packet[:ipv4HeaderLen]
		assert.Equal(t, uint16(0), foldChecksum(sumWords(0, ip)), "IP checksum, payload len %d", len(payload))

		udp := packet[ipv4HeaderLen:]
		var pseudo [12]byte
		copy(pseudo[0:4], d.SrcAddr.To4())
		copy(pseudo[4:8], d.DstAddr.To4())
		pseudo[9] = ipProtoUDP
		pseudo[10] = byte(len(udp) >> 8)
		pseudo[11] = byte(len(udp))
		assert.Equal(t, uint16(0), foldChecksum(sumWords(sumWords(0, pseudo[:]), udp)), "UDP checksum, payload len %d", len(payload))
	}
}

func TestMarshalChecksumSensitivity(t *testing.T) {
	d := &SpoofedDatagram{
		SrcAddr: net.IPv4(10, 0, 0, 2),
		DstAddr: net.IPv4(10, 0, 0, 1),
		SrcPort: 53,
		DstPort: 33333,
		Payload: []byte("payload"),
	}
	packet, err := d.Marshal()
	require.NoError(t, err)
	baseline := uint16(packet[26])<<8 | uint16(packet[27])

	for _, bit := range []int{0, 3, 7} {
		flipped := &SpoofedDatagram{
			SrcAddr: d.SrcAddr, DstAddr: d.DstAddr,
			SrcPort: d.SrcPort, DstPort: d.DstPort,
			Payload: append([]byte(nil), d.Payload...),
		}
		flipped.Payload[0] ^= 1 << bit
		repacked, err := flipped.Marshal()
		require.NoError(t, err)
		assert.NotEqual(t, baseline, uint16(repacked[26])<<8|uint16(repacked[27]), "bit %d", bit)
	}
}

func TestMarshalRejectsNonIPv4(t *testing.T) {
	d := &SpoofedDatagram{
		SrcAddr: net.ParseIP("2001:db8::1"),
		DstAddr: net.IPv4(10, 0, 0, 1),
		SrcPort: 53,
		DstPort: 33333,
	}
	_, err := d.Marshal()
	require.ErrorIs(t, err, ErrInvalidAddress)

	d = &SpoofedDatagram{
		SrcAddr: net.IPv4(10, 0, 0, 2),
		DstAddr: net.ParseIP("2001:db8::2"),
		SrcPort: 53,
		DstPort: 33333,
	}
	_, err = d.Marshal()
	require.ErrorIs(t, err, ErrInvalidAddress)
}

// Differential check: gopacket must parse the marshaled packet back to
// the same addressing and payload, with both checksums it recomputes
// matching the ones on the wire.
func TestMarshalReadByGopacket(t *testing.T) {
	query, err := NewQuery(0x1337, "abc1234.example.com")
	require.NoError(t, err)
	payload, err := query.Encode()
	require.NoError(t, err)

	d := &SpoofedDatagram{
		SrcAddr: net.IPv4(198, 41, 0, 4),
		DstAddr: net.IPv4(10, 0, 0, 1),
		SrcPort: 53,
		DstPort: 33333,
		Payload: payload,
	}
	raw, err := d.Marshal()
	require.NoError(t, err)

	pkt := gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	require.NotNil(t, ipLayer)
	ip := ipLayer.(*layers.IPv4)
	assert.True(t, ip.SrcIP.Equal(d.SrcAddr))
	assert.True(t, ip.DstIP.Equal(d.DstAddr))
	assert.Equal(t, layers.IPProtocolUDP, ip.Protocol)
	assert.Equal(t, uint8(ipDefTTL), ip.TTL)

	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	require.NotNil(t, udpLayer)
	udp := udpLayer.(*layers.UDP)
	assert.Equal(t, layers.UDPPort(53), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(33333), udp.DstPort)
	assert.Equal(t, payload, []byte(udp.Payload))
}
