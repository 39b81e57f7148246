// Package netinfo derives scan targets from the host's own network
// interfaces, for deployments that never bother to configure subnets.
package netinfo

import (
	"fmt"
	"net"
	"strings"
)

// virtualPrefixes name interfaces created by container runtimes and
// overlay networks; scanning those finds containers, not people.
var virtualPrefixes = []string{"veth", "docker", "br-", "cni", "flannel", "tailscale"}

// DetectSubnets returns the IPv4 CIDRs of every up, non-loopback,
// non-virtual interface. Private ranges come first since that is where
// a shop network lives.
func DetectSubnets() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var private, public []string
	seen := make(map[string]bool)

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtual(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}

			ones, _ := ipNet.Mask.Size()
			cidr := fmt.Sprintf("%s/%d", ip4.Mask(ipNet.Mask), ones)
			if seen[cidr] {
				continue
			}
			seen[cidr] = true

			if ip4.IsPrivate() {
				private = append(private, cidr)
			} else {
				public = append(public, cidr)
			}
		}
	}

	return append(private, public...), nil
}

func isVirtual(name string) bool {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
