// Package tracker runs the two background loops that turn network
// presence into attendance: the periodic scan cycle and the daily
// forced-logout sweep. Both mutate state only through the presence
// service, and both stop together on shutdown.
package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"adsum/internal/domain"
	"adsum/internal/probe"
	"adsum/internal/service"
)

// maxConcurrentTransitions bounds the per-user goroutines one scan
// cycle dispatches at once.
const maxConcurrentTransitions = 8

// Settings are the tunables the tracker reads each cycle. Subnets and
// debounce can change at runtime (config hot reload); the rest is
// fixed for the life of the process.
type Settings struct {
	// Subnets are the scan targets, CIDR notation.
	Subnets []string
	// Interval between scan cycles.
	Interval time.Duration
	// ScanTimeout bounds one probe invocation.
	ScanTimeout time.Duration
	// Debounce is the minimum unobserved stretch before a logged-in
	// user is logged out. Survives any number of silent cycles shorter
	// than this.
	Debounce time.Duration
	// ForceLogoutHour is the local wall-clock hour of the daily sweep.
	ForceLogoutHour int
	// ActiveHours optionally restricts scanning to [start, end) local
	// hours. Nil means always scan.
	ActiveHours *[2]int
}

// Status is a read-only snapshot of the tracker for the status endpoint.
type Status struct {
	Probe           string     `json:"probe"`
	Subnets         []string   `json:"subnets"`
	Interval        string     `json:"interval"`
	Debounce        string     `json:"debounce"`
	LastScan        *time.Time `json:"last_scan,omitempty"`
	LastDeviceCount int        `json:"last_device_count"`
	NextForcedSweep time.Time  `json:"next_forced_logout"`
}

// Tracker owns the scan loop and the forced-logout scheduler.
type Tracker struct {
	prober   probe.Prober
	svc      *service.PresenceService
	eventBus *service.EventBus

	mu       sync.Mutex
	settings Settings
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	lastScan        *time.Time
	lastDeviceCount int
}

// New creates a tracker. Start must be called to begin scanning.
func New(prober probe.Prober, svc *service.PresenceService, eventBus *service.EventBus, settings Settings) *Tracker {
	return &Tracker{
		prober:   prober,
		svc:      svc,
		eventBus: eventBus,
		settings: settings,
	}
}

// Start launches the scan loop and the forced-logout scheduler.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.running = true

	t.wg.Add(2)
	go t.scanLoop()
	go t.forcedLogoutLoop()

	log.Printf("Tracker started (probe=%s, subnets=%v, interval=%s, debounce=%s, force_logout_hour=%02d:00)",
		t.prober.Name(), t.settings.Subnets, t.settings.Interval, t.settings.Debounce, t.settings.ForceLogoutHour)
	return nil
}

// Stop cancels both loops and waits for them to finish. Cancellation is
// observed between cycles and at probe suspension points, never in the
// middle of a login/logout transition.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.cancel()
	t.running = false
	t.mu.Unlock()

	t.wg.Wait()
	log.Printf("Tracker stopped")
}

// UpdateTargets swaps the scanned subnets and debounce at runtime.
func (t *Tracker) UpdateTargets(subnets []string, debounce time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings.Subnets = subnets
	if debounce > 0 {
		t.settings.Debounce = debounce
	}
	log.Printf("Tracker targets updated (subnets=%v, debounce=%s)", subnets, t.settings.Debounce)
}

// Status reports the tracker's current view for the status endpoint.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Status{
		Probe:           t.prober.Name(),
		Subnets:         append([]string(nil), t.settings.Subnets...),
		Interval:        t.settings.Interval.String(),
		Debounce:        t.settings.Debounce.String(),
		LastScan:        t.lastScan,
		LastDeviceCount: t.lastDeviceCount,
		NextForcedSweep: nextSweep(time.Now(), t.settings.ForceLogoutHour),
	}
}

// scanLoop runs one cycle immediately, then once per interval until
// cancelled.
func (t *Tracker) scanLoop() {
	defer t.wg.Done()

	t.runCycle(t.ctx, time.Now())

	ticker := time.NewTicker(t.interval())
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			log.Printf("Scan loop stopping")
			return
		case now := <-ticker.C:
			t.runCycle(t.ctx, now)
		}
	}
}

// runCycle executes one reconciliation pass: probe, mark seen, compute
// login and logout sets, dispatch transitions. A probe failure skips
// the whole cycle without touching any state. Per-user transition
// errors are logged and never abort the rest of the cycle.
func (t *Tracker) runCycle(ctx context.Context, now time.Time) {
	subnets, scanTimeout, debounce, active := t.cycleSettings()

	if !withinActiveHours(now, active) {
		return
	}

	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	devices, err := t.prober.Scan(scanCtx, subnets)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, probe.ErrScanTimeout):
			log.Printf("Scan timed out after %s, skipping cycle", scanTimeout)
		case ctx.Err() != nil:
			// Shutdown mid-probe; not a cycle failure.
		default:
			log.Printf("Scan failed, skipping cycle: %v", err)
		}
		return
	}

	// Step one: record observations. Unknown devices are ignored.
	observed := make(map[string]bool, len(devices))
	known := 0
	for _, d := range devices {
		observed[d.MAC] = true
		if t.svc.MarkSeen(d.MAC, now) {
			known++
		}
	}

	// Step two: compute transitions from a roster snapshot. Logins are
	// users observed but not logged in; logouts are logged-in users
	// whose silence has outlasted the debounce budget.
	var logins, logouts []domain.Presence
	for _, p := range t.svc.Users() {
		switch {
		case observed[p.MAC] && !p.LoggedIn:
			logins = append(logins, p)
		case !observed[p.MAC] && p.LoggedIn && p.LastSeen != nil && now.Sub(*p.LastSeen) > debounce:
			logouts = append(logouts, p)
		}
	}

	// Step three: dispatch. Transitions for different users run
	// concurrently; the per-user lock in the service keeps transitions
	// for the same user serialized.
	dispatch := pool.New().WithMaxGoroutines(maxConcurrentTransitions)
	for _, p := range logins {
		dispatch.Go(func() {
			if err := t.svc.Login(ctx, p.MAC, now); err != nil && !errors.Is(err, domain.ErrAlreadyLoggedIn) {
				log.Printf("Login transition for %s failed: %v", p.Name, err)
			}
		})
	}
	for _, p := range logouts {
		dispatch.Go(func() {
			if err := t.svc.Logout(ctx, p.MAC, now); err != nil && !errors.Is(err, domain.ErrNotLoggedIn) {
				log.Printf("Logout transition for %s failed: %v", p.Name, err)
			}
		})
	}
	dispatch.Wait()

	t.mu.Lock()
	scanned := now
	t.lastScan = &scanned
	t.lastDeviceCount = len(devices)
	t.mu.Unlock()

	log.Printf("Scan complete: %d devices (%d known), %d logins, %d logouts",
		len(devices), known, len(logins), len(logouts))
	t.eventBus.Publish(service.Event{
		Type: service.EventScanComplete,
		Payload: map[string]int{
			"devices": len(devices),
			"known":   known,
			"logins":  len(logins),
			"logouts": len(logouts),
		},
	})
}

// forcedLogoutLoop sleeps until the next occurrence of the configured
// hour, sweeps every open session, then recomputes. The target is
// recomputed fresh each iteration, so the loop self-corrects after
// clock changes or a long suspend.
func (t *Tracker) forcedLogoutLoop() {
	defer t.wg.Done()

	for {
		target := nextSweep(time.Now(), t.forceLogoutHour())
		timer := time.NewTimer(time.Until(target))

		select {
		case <-t.ctx.Done():
			timer.Stop()
			log.Printf("Forced-logout loop stopping")
			return
		case now := <-timer.C:
			closed, err := t.svc.LogoutAll(t.ctx, now)
			if err != nil {
				log.Printf("Forced logout finished with errors: %v", err)
			}
			log.Printf("Forced logout closed %d sessions", closed)
			t.eventBus.Publish(service.Event{
				Type:    service.EventForcedLogout,
				Payload: map[string]int{"closed": closed},
			})
		}
	}
}

// nextSweep computes the next occurrence of hour:00:00 local time. If
// the current hour is already at or past the target hour, the sweep
// happens tomorrow.
func nextSweep(now time.Time, hour int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if now.Hour() >= hour {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// withinActiveHours reports whether now falls inside the [start, end)
// scanning window. A nil window means always.
func withinActiveHours(now time.Time, window *[2]int) bool {
	if window == nil {
		return true
	}
	start, end := window[0], window[1]
	h := now.Hour()
	if start <= end {
		return h >= start && h < end
	}
	// Window wraps midnight, e.g. [22, 6).
	return h >= start || h < end
}

func (t *Tracker) cycleSettings() (subnets []string, scanTimeout, debounce time.Duration, active *[2]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.settings.Subnets...), t.settings.ScanTimeout, t.settings.Debounce, t.settings.ActiveHours
}

func (t *Tracker) interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings.Interval
}

func (t *Tracker) forceLogoutHour() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings.ForceLogoutHour
}
