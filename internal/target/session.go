package target

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"grimm.is/sieve/internal/brand"
	"grimm.is/sieve/internal/logging"
	"grimm.is/sieve/internal/policy"
)

// Credentials authenticate a remote session and its sudo elevation.
type Credentials struct {
	Username string
	Password string
}

// CredentialSource supplies credentials for a host, usually by prompting.
type CredentialSource interface {
	Credentials(ctx context.Context, host, username string) (Credentials, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context, host, username string) (Credentials, error)

func (f CredentialFunc) Credentials(ctx context.Context, host, username string) (Credentials, error) {
	return f(ctx, host, username)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithHostKeyCallback overrides host key verification.
func WithHostKeyCallback(cb ssh.HostKeyCallback) SessionOption {
	return func(s *Session) { s.hostKeys = cb }
}

// WithDialTimeout sets the connection timeout.
func WithDialTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// Session is a Runner over one SSH connection. Credentials are requested the
// first time a command runs and then held in memory for the life of the
// session; they are never written anywhere. Commands run one at a time.
type Session struct {
	target   *policy.Target
	source   CredentialSource
	hostKeys ssh.HostKeyCallback
	timeout  time.Duration
	log      *logging.Logger

	mu     sync.Mutex
	client *ssh.Client
	creds  *Credentials
}

// NewSession creates a session to t. No connection is made until the first
// command.
func NewSession(t *policy.Target, source CredentialSource, opts ...SessionOption) *Session {
	s := &Session{
		target:  t,
		source:  source,
		timeout: 10 * time.Second,
		log:     logging.WithComponent("target"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRemote returns the Target for a remote host.
func NewRemote(t *policy.Target, source CredentialSource, opts ...SessionOption) *Bpftool {
	s := NewSession(t, source, opts...)
	return NewStagingBpftool(s, s.Name(), brand.RemoteStageDir)
}

// Name returns user@host:port.
func (s *Session) Name() string {
	if s.target.Username == "" {
		return s.target.Address()
	}
	return s.target.Username + "@" + s.target.Address()
}

// Run executes a command with sudo.
func (s *Session) Run(ctx context.Context, name string, args ...string) error {
	_, err := s.sudo(ctx, nil, name, args)
	return err
}

// Output executes a command with sudo and returns its standard output.
func (s *Session) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return s.sudo(ctx, nil, name, args)
}

// RunInput executes a command with sudo, feeding input after the password.
func (s *Session) RunInput(ctx context.Context, input []byte, name string, args ...string) error {
	_, err := s.sudo(ctx, input, name, args)
	return err
}

// Close drops the connection. Cached credentials go with the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = nil
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *Session) sudo(ctx context.Context, input []byte, name string, args []string) ([]byte, error) {
	return s.exec(ctx, quoteCommand(name, args), func(c Credentials) []byte {
		if c.Username == "root" {
			return input
		}
		return append([]byte(c.Password+"\n"), input...)
	})
}

// exec runs command through sudo, unless logged in as root, and returns its
// standard output. stdin builds the input once credentials are known.
func (s *Session) exec(ctx context.Context, command string, stdin func(Credentials) []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	logged := command
	if s.creds.Username != "root" {
		command = "sudo -S -p '' -- " + command
	}
	s.log.Debug("ssh exec", "host", s.target.Address(), "cmd", logged)

	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	sess.Stdin = bytes.NewReader(stdin(*s.creds))

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("remote command %s failed: %w: %s", logged, err, strings.TrimSpace(stderr.String()))
		}
	}
	return stdout.Bytes(), nil
}

// connect dials on first use. The caller holds s.mu.
func (s *Session) connect(ctx context.Context) (*ssh.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	if s.creds == nil {
		c, err := s.source.Credentials(ctx, s.target.Address(), s.target.Username)
		if err != nil {
			return nil, err
		}
		if c.Username == "" {
			c.Username = s.target.Username
		}
		s.creds = &c
	}

	hostKeys := s.hostKeys
	if hostKeys == nil {
		hostKeys = s.defaultHostKeyCallback()
	}

	password := s.creds.Password
	cfg := &ssh.ClientConfig{
		User: s.creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKeys,
		Timeout:         s.timeout,
	}

	addr := s.target.Address()
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	s.client = ssh.NewClient(c, chans, reqs)
	s.log.Info("connected", "host", addr, "user", s.creds.Username)
	return s.client, nil
}

// defaultHostKeyCallback checks ~/.ssh/known_hosts. Hosts missing from the
// file are accepted with a warning; a changed key is rejected.
func (s *Session) defaultHostKeyCallback() ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err == nil {
		cb, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
		if err == nil {
			return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
				err := cb(hostname, remote, key)
				var keyErr *knownhosts.KeyError
				if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
					s.log.Warn("host key not in known_hosts", "host", hostname, "fingerprint", ssh.FingerprintSHA256(key))
					return nil
				}
				return err
			}
		}
	}
	s.log.Warn("no known_hosts file, host key not verified", "host", s.target.Address())
	return ssh.InsecureIgnoreHostKey()
}

func quoteCommand(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
