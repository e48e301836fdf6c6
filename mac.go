package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/jackpal/gateway"
	"github.com/vishvananda/netlink"
)

// The XDP path injects complete ethernet frames, so it needs to know the
// next-hop MAC itself; the kernel's neighbor machinery is bypassed.

// resolveNextHopMAC finds the MAC the spoofed frames should be addressed
// to: the target itself if it is a neighbor, otherwise the default
// gateway.
func resolveNextHopMAC(targetAddr net.IP, link netlink.Link) (net.HardwareAddr, error) {
	if targetAddr.IsLoopback() {
		return link.Attrs().HardwareAddr, nil
	}

	neighbors, err := netlink.NeighList(link.Attrs().Index, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("reading ARP table: %w", err)
	}
	for _, neigh := range neighbors {
		if neigh.IP.Equal(targetAddr) && len(neigh.HardwareAddr) != 0 {
			return neigh.HardwareAddr, nil
		}
	}

	// Not a neighbor; route via the default gateway.
	gatewayIP, err := gateway.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("discovering gateway: %w", err)
	}
	for _, neigh := range neighbors {
		if neigh.IP.Equal(gatewayIP) && len(neigh.HardwareAddr) != 0 {
			return neigh.HardwareAddr, nil
		}
	}

	// Nudge the kernel into ARP-resolving the gateway, then retry once.
	if err := netlink.NeighSet(&netlink.Neigh{
		LinkIndex: link.Attrs().Index,
		IP:        gatewayIP,
		State:     netlink.NUD_NONE,
		Flags:     netlink.NTF_USE,
	}); err != nil {
		return nil, fmt.Errorf("triggering ARP resolution for gateway %s: %w", gatewayIP, err)
	}
	time.Sleep(50 * time.Millisecond)

	neighbors, err = netlink.NeighList(link.Attrs().Index, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("re-reading ARP table: %w", err)
	}
	for _, neigh := range neighbors {
		if neigh.IP.Equal(gatewayIP) && len(neigh.HardwareAddr) != 0 {
			return neigh.HardwareAddr, nil
		}
	}
	return nil, fmt.Errorf("could not resolve MAC for gateway %s, try pinging it first", gatewayIP)
}

// resolveMACAddresses returns the source and destination MACs for the
// XDP frames, honoring hex-encoded overrides from the config.
func resolveMACAddresses(config *Config, targetAddr net.IP, link netlink.Link) (srcMAC, dstMAC net.HardwareAddr, err error) {
	if config.SrcMAC == "" {
		srcMAC = link.Attrs().HardwareAddr
	} else {
		decoded, err := hex.DecodeString(config.SrcMAC)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid source MAC %q: %w", config.SrcMAC, err)
		}
		srcMAC = net.HardwareAddr(decoded)
	}

	if config.DstMAC == "" {
		dstMAC, err = resolveNextHopMAC(targetAddr, link)
		if err != nil {
			return nil, nil, err
		}
	} else {
		decoded, err := hex.DecodeString(config.DstMAC)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid destination MAC %q: %w", config.DstMAC, err)
		}
		dstMAC = net.HardwareAddr(decoded)
	}

	return srcMAC, dstMAC, nil
}
