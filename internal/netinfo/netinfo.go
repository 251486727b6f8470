// Package netinfo reports the host's network addresses so front-ends can
// discover where the agent is reachable on the LAN.
package netinfo

import (
	"fmt"
	"net"
	"net/netip"
)

// Interface is one address bound to a network interface.
type Interface struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Family   string `json:"family"`
	Internal bool   `json:"internal"`
}

// Snapshot is the discovery payload served by /health and /whoami.
type Snapshot struct {
	IPv4Local  string      `json:"ipv4_local"`
	Interfaces []Interface `json:"interfaces"`
}

// Lister enumerates interface addresses.
type Lister func() ([]Interface, error)

// privateV4 are the RFC 1918 ranges, in preference order.
var privateV4 = []netip.Prefix{
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
}

// List enumerates addresses on every interface of the host.
func List() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var out []Interface
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		internal := iface.Flags&net.FlagLoopback != 0
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipnet.IP)
			if !ok {
				continue
			}
			ip = ip.Unmap()
			family := "IPv6"
			if ip.Is4() {
				family = "IPv4"
			}
			out = append(out, Interface{
				Name:     iface.Name,
				Address:  ip.String(),
				Family:   family,
				Internal: internal || ip.IsLoopback(),
			})
		}
	}
	return out, nil
}

// PickPrivateIPv4 returns the first external IPv4 address, in interface
// order, that falls in a private range. Empty when there is none.
func PickPrivateIPv4(ifaces []Interface) string {
	for _, it := range ifaces {
		if it.Internal || it.Family != "IPv4" {
			continue
		}
		ip, err := netip.ParseAddr(it.Address)
		if err != nil || !ip.Is4() {
			continue
		}
		for _, p := range privateV4 {
			if p.Contains(ip) {
				return it.Address
			}
		}
	}
	return ""
}

// Collect builds a Snapshot using lister. A nil lister uses List.
// Enumeration failures yield an empty snapshot rather than an error.
func Collect(lister Lister) Snapshot {
	if lister == nil {
		lister = List
	}
	ifaces, err := lister()
	if err != nil || ifaces == nil {
		ifaces = []Interface{}
	}
	return Snapshot{IPv4Local: PickPrivateIPv4(ifaces), Interfaces: ifaces}
}
