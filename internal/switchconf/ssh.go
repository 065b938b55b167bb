package switchconf

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultSSHPort = "22"

// SSHQuerier runs switch commands over an SSH exec session, one connection per query.
type SSHQuerier struct {
	User            string
	Signer          ssh.Signer
	HostKeyCallback ssh.HostKeyCallback
	Timeout         time.Duration
}

// NewSSHQuerier loads the private key at keyPath. An empty knownHosts accepts any host key.
func NewSSHQuerier(user, keyPath, knownHosts string, timeout time.Duration) (*SSHQuerier, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read switch key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse switch key %s: %w", keyPath, err)
	}

	callback := ssh.InsecureIgnoreHostKey()
	if knownHosts != "" {
		if callback, err = knownhosts.New(knownHosts); err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	return &SSHQuerier{
		User:            user,
		Signer:          signer,
		HostKeyCallback: callback,
		Timeout:         timeout,
	}, nil
}

// Query connects to address (port 22 unless given), runs command and returns its
// non-empty output lines.
func (q *SSHQuerier) Query(ctx context.Context, address, command string) ([]string, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, defaultSSHPort)
	}

	var deadline time.Time
	if q.Timeout > 0 {
		deadline = time.Now().Add(q.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	dialer := net.Dialer{Timeout: q.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to switch %s: %w", address, err)
	}
	if !deadline.IsZero() {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, &ssh.ClientConfig{
		User:            q.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(q.Signer)},
		HostKeyCallback: q.HostKeyCallback,
		Timeout:         q.Timeout,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with switch %s: %w", address, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session on switch %s: %w", address, err)
	}
	defer session.Close()

	out, err := session.Output(command)
	if err != nil {
		return nil, fmt.Errorf("command %q on switch %s: %w", command, address, err)
	}
	return splitLines(string(out)), nil
}
