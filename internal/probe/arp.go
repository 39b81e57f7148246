package probe

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"adsum/internal/domain"
)

// arpTablePath is the Linux kernel's ARP cache.
const arpTablePath = "/proc/net/arp"

// maxSweepAddresses caps CIDR expansion so a fat-fingered /8 does not
// turn into sixteen million dials.
const maxSweepAddresses = 4096

// ARPConfig holds configuration for the ARP-cache probe.
type ARPConfig struct {
	// SweepPorts are dialed on every address to freshen the ARP cache.
	// The dial almost always fails; the kernel ARP exchange it forces
	// is what we are after.
	SweepPorts []int
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// MaxConcurrent limits parallel dials.
	MaxConcurrent int
}

// DefaultARPConfig returns sensible defaults for a LAN sweep.
func DefaultARPConfig() ARPConfig {
	return ARPConfig{
		SweepPorts:    []int{22, 80, 443, 445},
		DialTimeout:   500 * time.Millisecond,
		MaxConcurrent: 200,
	}
}

// ARP is a pure-Go fallback for hosts without nmap: it dials a few TCP
// ports across each subnet to force ARP exchanges, then reads the
// kernel's ARP cache. Linux only.
type ARP struct {
	config ARPConfig
}

// NewARP creates the ARP-cache probe.
func NewARP(config ARPConfig) *ARP {
	if len(config.SweepPorts) == 0 {
		config.SweepPorts = DefaultARPConfig().SweepPorts
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultARPConfig().DialTimeout
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = DefaultARPConfig().MaxConcurrent
	}
	return &ARP{config: config}
}

// Name returns the probe identifier.
func (a *ARP) Name() string {
	return "arp"
}

// Check verifies the ARP table is readable on this host.
func (a *ARP) Check(ctx context.Context) error {
	f, err := os.Open(arpTablePath)
	if err != nil {
		return fmt.Errorf("arp probe needs %s: %w", arpTablePath, err)
	}
	return f.Close()
}

// Scan sweeps each subnet and returns the devices present in the ARP
// cache afterwards.
func (a *ARP) Scan(ctx context.Context, subnets []string) ([]Device, error) {
	ips, err := expandSubnets(subnets)
	if err != nil {
		return nil, &ScanError{Probe: "arp", Err: err}
	}

	a.sweep(ctx, ips)
	if err := ctx.Err(); err != nil {
		return nil, translateErr("arp", ctx, err)
	}

	f, err := os.Open(arpTablePath)
	if err != nil {
		return nil, &ScanError{Probe: "arp", Err: err}
	}
	defer f.Close()

	return parseARPTable(f, subnets)
}

// sweep dials the configured ports on every address through a bounded
// worker pool. Connection results are irrelevant; the dial attempt
// itself populates the ARP cache.
func (a *ARP) sweep(ctx context.Context, ips []string) {
	jobs := make(chan string, len(ips))

	var wg sync.WaitGroup
	for i := 0; i < a.config.MaxConcurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dialer := net.Dialer{Timeout: a.config.DialTimeout}
			for ip := range jobs {
				if ctx.Err() != nil {
					return
				}
				for _, port := range a.config.SweepPorts {
					conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
					if err == nil {
						conn.Close()
						break
					}
				}
			}
		}()
	}

	for _, ip := range ips {
		jobs <- ip
	}
	close(jobs)
	wg.Wait()
}

// parseARPTable reads /proc/net/arp format:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.1      0x1         0x2         AA:BB:CC:DD:EE:FF     *        eth0
//
// Flags 0x0 marks an incomplete entry (no reply was ever received).
// Only entries inside the scanned subnets are returned.
func parseARPTable(r io.Reader, subnets []string) ([]Device, error) {
	nets := make([]*net.IPNet, 0, len(subnets))
	for _, s := range subnets {
		if _, ipNet, err := net.ParseCIDR(s); err == nil {
			nets = append(nets, ipNet)
		}
	}

	var devices []Device
	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		if first {
			first = false // header line
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		ip, flags, mac := fields[0], fields[2], fields[3]
		if flags == "0x0" {
			continue
		}

		parsed := net.ParseIP(ip)
		if parsed == nil || !insideAny(parsed, nets) {
			continue
		}

		canonical, err := domain.NormalizeMAC(mac)
		if err != nil {
			continue
		}
		devices = append(devices, Device{IP: ip, MAC: canonical})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read arp table: %w", err)
	}
	return devices, nil
}

// insideAny reports whether ip falls inside any of the subnets. An
// empty subnet list admits everything.
func insideAny(ip net.IP, nets []*net.IPNet) bool {
	if len(nets) == 0 {
		return true
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// expandSubnets turns CIDR ranges into individual host addresses,
// skipping network and broadcast. Plain addresses pass through.
func expandSubnets(subnets []string) ([]string, error) {
	var ips []string
	for _, subnet := range subnets {
		if !strings.Contains(subnet, "/") {
			ips = append(ips, subnet)
			continue
		}

		_, ipNet, err := net.ParseCIDR(subnet)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %s: %w", subnet, err)
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("subnet %s is not IPv4", subnet)
		}

		ones, bits := ipNet.Mask.Size()
		size := 1 << (bits - ones)
		if len(ips)+size > maxSweepAddresses {
			return nil, fmt.Errorf("subnet %s expands past the %d address sweep cap", subnet, maxSweepAddresses)
		}

		base := binary.BigEndian.Uint32(ip4)
		for i := 1; i < size-1; i++ {
			addr := make(net.IP, 4)
			binary.BigEndian.PutUint32(addr, base+uint32(i))
			ips = append(ips, addr.String())
		}
	}
	return ips, nil
}
