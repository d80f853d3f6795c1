package sonic

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// TunnelConfig describes how to reach the switch Redis over SSH.
type TunnelConfig struct {
	Host       string
	Port       int // 0 means 22
	User       string
	Password   string
	KnownHosts string // known_hosts file; empty disables host key checks
	RemoteAddr string // Redis address on the switch; empty means 127.0.0.1:6379
	Timeout    time.Duration
}

// SSHTunnel forwards a local TCP port to the Redis server of a switch
// through an SSH connection. SONiC Redis listens on loopback only.
type SSHTunnel struct {
	localAddr  string
	remoteAddr string
	sshClient  *ssh.Client
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

func hostKeyCallback(cfg TunnelConfig, addr string) (ssh.HostKeyCallback, error) {
	if cfg.KnownHosts == "" {
		util.WithField("addr", addr).Warn("SSH host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("loading known hosts %s: %w", cfg.KnownHosts, err)
	}
	return cb, nil
}

// NewSSHTunnel dials SSH and opens a local listener on a random port.
// Connections to the local port are forwarded to cfg.RemoteAddr on the
// SSH host.
func NewSSHTunnel(cfg TunnelConfig) (*SSHTunnel, error) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.RemoteAddr == "" {
		cfg.RemoteAddr = "127.0.0.1:6379"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	hostKeys, err := hostKeyCallback(cfg, addr)
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
		HostKeyCallback: hostKeys,
		Timeout:         cfg.Timeout,
	}

	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s@%s: %w", cfg.User, addr, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &SSHTunnel{
		localAddr:  listener.Addr().String(),
		remoteAddr: cfg.RemoteAddr,
		sshClient:  sshClient,
		listener:   listener,
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return t, nil
}

// LocalAddr returns the local address (e.g. "127.0.0.1:54321") that forwards
// to Redis on the switch.
func (t *SSHTunnel) LocalAddr() string {
	return t.localAddr
}

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish.
func (t *SSHTunnel) Close() error {
	close(t.done)
	t.listener.Close()
	t.wg.Wait()
	return t.sshClient.Close()
}

func (t *SSHTunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *SSHTunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.remoteAddr)
	if err != nil {
		util.Debugf("tunnel: dialing %s: %v", t.remoteAddr, err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
