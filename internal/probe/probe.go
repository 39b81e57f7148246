// Package probe abstracts the mechanics of finding devices on the
// network. A Prober takes a list of subnets and reports the hardware
// addresses currently reachable; the tracker never cares how.
//
// Three implementations ship: an nmap ping sweep (the default), a
// pure-Go TCP sweep over the kernel ARP cache, and an SSH probe that
// reads the neighbor table of a gateway. All of them normalize MACs
// through the domain rules before returning them.
package probe

import (
	"context"
	"errors"
	"fmt"
)

// Device is one reachable host observed during a scan.
type Device struct {
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}

// Prober discovers reachable devices on the given subnets.
type Prober interface {
	// Name returns the probe identifier ("nmap", "arp", "ssh").
	Name() string

	// Check verifies the probe can run in this environment. Called once
	// at startup so a missing binary or unreachable gateway fails fast.
	Check(ctx context.Context) error

	// Scan probes the subnets and returns every device observed. The
	// caller bounds the call with a context deadline; an exceeded
	// deadline is reported as ErrScanTimeout.
	Scan(ctx context.Context, subnets []string) ([]Device, error)
}

// ErrScanTimeout marks a scan that ran past its deadline. The cycle is
// skipped; nothing was observed.
var ErrScanTimeout = errors.New("scan timed out")

// ScanError marks a scan that failed outright (non-zero exit, transport
// failure). Carries the underlying cause.
type ScanError struct {
	Probe string
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s scan failed: %v", e.Probe, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// translateErr maps a context deadline to ErrScanTimeout and wraps
// everything else as a ScanError.
func translateErr(probe string, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrScanTimeout, probe)
	}
	return &ScanError{Probe: probe, Err: err}
}
