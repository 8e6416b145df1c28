package utils

import (
	"net"
	"strings"
)

// Interface name fragments of tunnels that usually break direct media:
// OpenVPN, virtual adapters, WireGuard, PPP and Cloudflare WARP.
var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// CGNAT range (100.64.0.0/10), also used by WARP and Tailscale.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// Interface is the part of a network interface the relay heuristic looks at.
type Interface struct {
	Name  string
	Flags net.Flags
	IPs   []net.IP
}

// ShouldForceRelay reports whether this host looks like it sits behind a VPN
// tunnel or CGNAT, where only TURN carries media reliably.
func ShouldForceRelay() bool {
	ifaces, err := localInterfaces()
	if err != nil {
		return false
	}
	return RelayLikely(ifaces)
}

// RelayLikely applies the heuristic to an interface list.
func RelayLikely(ifaces []Interface) bool {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, frag := range tunnelNames {
			if strings.Contains(name, frag) {
				return true
			}
		}

		for _, ip := range iface.IPs {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func localInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, len(ifaces))
	for i, iface := range ifaces {
		out[i] = Interface{Name: iface.Name, Flags: iface.Flags}
		// An interface whose addresses cannot be read is judged by name only.
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			if ip := addrIP(addr); ip != nil {
				out[i].IPs = append(out[i].IPs, ip)
			}
		}
	}
	return out, nil
}

func addrIP(addr net.Addr) net.IP {
	switch v := addr.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	}
	return nil
}
