package probe

import (
	"context"
	"fmt"
	"log"

	nmap "github.com/Ullaakut/nmap/v3"

	"adsum/internal/domain"
)

// Nmap discovers devices with an nmap ping sweep (-sn). It needs the
// nmap binary on PATH and, for MAC addresses, a subnet the host sits on
// (nmap only learns hardware addresses from ARP replies).
type Nmap struct {
	skipHostDiscovery bool
	extraWarnings     bool
}

// NmapOption is a functional option for configuring the nmap probe.
type NmapOption func(*Nmap)

// WithSkipHostDiscovery treats every address as online (-Pn). Useful on
// networks that drop ICMP; slower, since every address is probed.
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *Nmap) {
		n.skipHostDiscovery = skip
	}
}

// WithWarnings logs nmap warnings instead of discarding them.
func WithWarnings(enabled bool) NmapOption {
	return func(n *Nmap) {
		n.extraWarnings = enabled
	}
}

// NewNmap creates the nmap-based probe.
func NewNmap(opts ...NmapOption) *Nmap {
	n := &Nmap{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the probe identifier.
func (n *Nmap) Name() string {
	return "nmap"
}

// Check runs a trivial list scan to verify the binary is available.
func (n *Nmap) Check(ctx context.Context) error {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return fmt.Errorf("nmap unavailable: %w", err)
	}
	if _, _, err := scanner.Run(); err != nil {
		return fmt.Errorf("nmap unavailable: %w", err)
	}
	return nil
}

// Scan ping-sweeps every subnet and returns the devices whose hardware
// address nmap reported. DNS resolution is disabled; names are not
// needed and slow the sweep down.
func (n *Nmap) Scan(ctx context.Context, subnets []string) ([]Device, error) {
	if len(subnets) == 0 {
		return nil, nil
	}

	opts := []nmap.Option{
		nmap.WithTargets(subnets...),
		nmap.WithPingScan(),
		nmap.WithDisabledDNSResolution(),
	}
	if n.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, &ScanError{Probe: "nmap", Err: err}
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, translateErr("nmap", ctx, err)
	}
	if n.extraWarnings && warnings != nil && len(*warnings) > 0 {
		log.Printf("Nmap warnings: %v", *warnings)
	}

	return extractDevices(result), nil
}

// extractDevices pulls the up hosts with a hardware address out of an
// nmap run.
func extractDevices(result *nmap.Run) []Device {
	if result == nil {
		return nil
	}

	var devices []Device
	for _, host := range result.Hosts {
		if host.Status.State != "up" {
			continue
		}

		var ip, mac string
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case "ipv4":
				ip = addr.Addr
			case "mac":
				mac = addr.Addr
			}
		}
		if mac == "" {
			// Hosts outside our segment answer pings but carry no ARP
			// entry; they can never match a registered device.
			continue
		}

		canonical, err := domain.NormalizeMAC(mac)
		if err != nil {
			log.Printf("Nmap reported unparseable MAC %q for %s, skipping", mac, ip)
			continue
		}
		devices = append(devices, Device{IP: ip, MAC: canonical})
	}
	return devices
}
