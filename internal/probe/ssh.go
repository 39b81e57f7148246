package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"adsum/internal/domain"
)

// SSHConfig holds configuration for the SSH neighbor probe.
type SSHConfig struct {
	// Host is the gateway or access point to query.
	Host string
	// Port is the SSH port (default 22).
	Port int
	// User is the SSH login name.
	User string
	// KeyPath points to an unencrypted private key file.
	KeyPath string
	// ConnectTimeout bounds the dial and handshake.
	ConnectTimeout time.Duration
	// CommandTimeout bounds the remote command.
	CommandTimeout time.Duration
}

// SSHNeighbor reads the neighbor table of a gateway over SSH. Meant for
// setups where the tracker host sits outside the monitored segment and
// never sees ARP traffic itself; the gateway always does.
type SSHNeighbor struct {
	config SSHConfig
	signer ssh.Signer
}

// neighborCommand lists the gateway's IPv4 neighbor table.
const neighborCommand = "ip -4 neigh show"

// NewSSHNeighbor creates the SSH probe. The key is parsed eagerly so a
// bad path or format fails at construction, not on the first scan.
func NewSSHNeighbor(config SSHConfig) (*SSHNeighbor, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("ssh probe requires a gateway host")
	}
	if config.User == "" {
		return nil, fmt.Errorf("ssh probe requires a user")
	}
	if config.Port == 0 {
		config.Port = 22
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.CommandTimeout == 0 {
		config.CommandTimeout = 30 * time.Second
	}

	keyData, err := os.ReadFile(config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key: %w", err)
	}

	return &SSHNeighbor{config: config, signer: signer}, nil
}

// Name returns the probe identifier.
func (s *SSHNeighbor) Name() string {
	return "ssh"
}

// Check connects to the gateway once to verify reachability and auth.
func (s *SSHNeighbor) Check(ctx context.Context) error {
	client, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("ssh gateway %s unreachable: %w", s.config.Host, err)
	}
	return client.Close()
}

// Scan queries the gateway's neighbor table and returns the devices in
// a live state inside the given subnets.
func (s *SSHNeighbor) Scan(ctx context.Context, subnets []string) ([]Device, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, translateErr("ssh", ctx, err)
	}
	defer client.Close()

	output, err := s.runCommand(client, neighborCommand)
	if err != nil {
		return nil, translateErr("ssh", ctx, err)
	}

	return parseNeighbors(strings.NewReader(output), subnets)
}

// connect dials the gateway and completes the SSH handshake. The
// context bounds the TCP dial; the handshake is bounded by the
// configured connect timeout.
func (s *SSHNeighbor) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: s.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(s.signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.config.ConnectTimeout,
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	dialer := &net.Dialer{Timeout: s.config.ConnectTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runCommand executes one command on the gateway and returns its output.
func (s *SSHNeighbor) runCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	done := make(chan error, 1)
	var output []byte
	go func() {
		var runErr error
		output, runErr = session.CombinedOutput(cmd)
		done <- runErr
	}()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("run %q: %w", cmd, err)
		}
		return string(output), nil
	case <-time.After(s.config.CommandTimeout):
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command %q timed out", cmd)
	}
}

// liveNeighborStates are the neighbor cache states that indicate a
// device answered recently. FAILED and INCOMPLETE entries carry no
// usable hardware address; PERMANENT entries are static config, kept.
var liveNeighborStates = map[string]bool{
	"REACHABLE": true,
	"STALE":     true,
	"DELAY":     true,
	"PROBE":     true,
	"PERMANENT": true,
}

// parseNeighbors reads `ip -4 neigh show` output:
//
//	192.168.1.23 dev eth0 lladdr aa:bb:cc:dd:ee:ff REACHABLE
//	192.168.1.99 dev eth0  FAILED
func parseNeighbors(r io.Reader, subnets []string) ([]Device, error) {
	nets := make([]*net.IPNet, 0, len(subnets))
	for _, s := range subnets {
		if _, ipNet, err := net.ParseCIDR(s); err == nil {
			nets = append(nets, ipNet)
		}
	}

	var devices []Device
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		if !liveNeighborStates[fields[len(fields)-1]] {
			continue
		}

		ip := net.ParseIP(fields[0])
		if ip == nil || !insideAny(ip, nets) {
			continue
		}

		var mac string
		for i := 0; i < len(fields)-1; i++ {
			if fields[i] == "lladdr" {
				mac = fields[i+1]
				break
			}
		}
		if mac == "" {
			continue
		}

		canonical, err := domain.NormalizeMAC(mac)
		if err != nil {
			continue
		}
		devices = append(devices, Device{IP: fields[0], MAC: canonical})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read neighbor table: %w", err)
	}
	return devices, nil
}
