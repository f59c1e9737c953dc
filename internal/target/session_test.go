package target

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"grimm.is/sieve/internal/policy"
)

type execRecord struct {
	command string
	stdin   string
}

type sshServer struct {
	addr string

	mu    sync.Mutex
	execs []execRecord
}

func (s *sshServer) recorded() []execRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]execRecord(nil), s.execs...)
}

// startSSHServer runs an in-process SSH server accepting password for any
// user. Every exec request is recorded and answered with reply(command).
func startSSHServer(t *testing.T, password string, reply func(command string) (string, uint32)) *sshServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if string(pass) == password {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &sshServer{addr: ln.Addr().String()}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serve(nc, cfg, reply)
		}
	}()
	return srv
}

func (s *sshServer) serve(nc net.Conn, cfg *ssh.ServerConfig, reply func(string) (string, uint32)) {
	_, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		nc.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				stdin, _ := io.ReadAll(ch)
				s.mu.Lock()
				s.execs = append(s.execs, execRecord{command: payload.Command, stdin: string(stdin)})
				s.mu.Unlock()

				out, status := reply(payload.Command)
				_, _ = ch.Write([]byte(out))
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func targetFor(t *testing.T, addr, user string) *policy.Target {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return &policy.Target{Host: host, Port: p, Username: user}
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	creds Credentials
}

func (c *countingSource) Credentials(context.Context, string, string) (Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.creds, nil
}

func TestSession_SudoAndPromptOnce(t *testing.T) {
	srv := startSSHServer(t, "hunter2", func(cmd string) (string, uint32) {
		return `[{"id":1,"name":"hpx"}]`, 0
	})
	source := &countingSource{creds: Credentials{Password: "hunter2"}}
	s := NewSession(targetFor(t, srv.addr, "ops"), source, WithHostKeyCallback(ssh.InsecureIgnoreHostKey()))
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Run(ctx, "bpftool", "net", "detach", "xdpgeneric", "dev", "eth0"))
	out, err := s.Output(ctx, "bpftool", "prog", "show", "-j")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"name":"hpx"}]`, string(out))
	require.NoError(t, s.RunInput(ctx, []byte("payload"), "tee", "/tmp/it's here"))

	assert.Equal(t, 1, source.calls, "credentials are requested once per session")

	execs := srv.recorded()
	require.Len(t, execs, 3)
	assert.Equal(t, "sudo -S -p '' -- bpftool net detach xdpgeneric dev eth0", execs[0].command)
	assert.Equal(t, "hunter2\n", execs[0].stdin)
	assert.Equal(t, `sudo -S -p '' -- tee '/tmp/it'\''s here'`, execs[2].command)
	assert.Equal(t, "hunter2\npayload", execs[2].stdin)

	for _, e := range execs {
		assert.NotContains(t, e.command, "hunter2", "password never appears in a command line")
	}
}

func TestSession_StageObject(t *testing.T) {
	srv := startSSHServer(t, "pw", func(string) (string, uint32) { return "", 0 })
	s := NewSession(targetFor(t, srv.addr, "ops"),
		CredentialFunc(func(context.Context, string, string) (Credentials, error) {
			return Credentials{Password: "pw"}, nil
		}),
		WithHostKeyCallback(ssh.InsecureIgnoreHostKey()))
	defer s.Close()

	obj := filepath.Join(t.TempDir(), "generated.o")
	require.NoError(t, os.WriteFile(obj, []byte("\x7fELF"), 0o644))

	remote := NewStagingBpftool(s, s.Name(), "/tmp")
	staged, err := remote.StageObject(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/generated.o", staged)

	execs := srv.recorded()
	require.Len(t, execs, 1)
	assert.Equal(t, "sudo -S -p '' -- tee /tmp/generated.o", execs[0].command)
	assert.Equal(t, "pw\n\x7fELF", execs[0].stdin)
}

func TestSession_Root(t *testing.T) {
	srv := startSSHServer(t, "pw", func(string) (string, uint32) { return "", 0 })
	source := &countingSource{creds: Credentials{Username: "root", Password: "pw"}}
	s := NewSession(targetFor(t, srv.addr, ""), source, WithHostKeyCallback(ssh.InsecureIgnoreHostKey()))
	defer s.Close()

	require.NoError(t, s.Run(context.Background(), "rm", "/sys/fs/bpf/hpx"))
	execs := srv.recorded()
	require.Len(t, execs, 1)
	assert.Equal(t, "rm /sys/fs/bpf/hpx", execs[0].command)
	assert.Empty(t, execs[0].stdin)
}

func TestSession_Failures(t *testing.T) {
	srv := startSSHServer(t, "right", func(cmd string) (string, uint32) { return "", 1 })

	t.Run("BadPassword", func(t *testing.T) {
		source := &countingSource{creds: Credentials{Password: "wrong"}}
		s := NewSession(targetFor(t, srv.addr, "ops"), source, WithHostKeyCallback(ssh.InsecureIgnoreHostKey()))
		defer s.Close()
		err := s.Run(context.Background(), "true")
		assert.ErrorContains(t, err, "handshake")
	})

	t.Run("ExitStatus", func(t *testing.T) {
		source := &countingSource{creds: Credentials{Password: "right"}}
		s := NewSession(targetFor(t, srv.addr, "ops"), source, WithHostKeyCallback(ssh.InsecureIgnoreHostKey()))
		defer s.Close()
		err := s.Run(context.Background(), "false")
		var exitErr *ssh.ExitError
		assert.ErrorAs(t, err, &exitErr)
	})

	t.Run("PromptCancelled", func(t *testing.T) {
		cancelled := errors.New("cancelled")
		s := NewSession(targetFor(t, srv.addr, "ops"),
			CredentialFunc(func(context.Context, string, string) (Credentials, error) {
				return Credentials{}, cancelled
			}))
		assert.ErrorIs(t, s.Run(context.Background(), "true"), cancelled)
	})
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "bpftool", shellQuote("bpftool"))
	assert.Equal(t, "/sys/fs/bpf/hpx", shellQuote("/sys/fs/bpf/hpx"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, "'a b'", shellQuote("a b"))
	assert.Equal(t, `'$(rm -rf /)'`, shellQuote("$(rm -rf /)"))
}

func TestSessionName(t *testing.T) {
	s := NewSession(&policy.Target{Host: "10.1.1.1", Username: "ops"}, nil)
	assert.Equal(t, "ops@10.1.1.1:22", s.Name())
	s = NewSession(&policy.Target{Host: "10.1.1.1", Port: 2222}, nil)
	assert.Equal(t, "10.1.1.1:2222", s.Name())
}
