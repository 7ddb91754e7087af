// Package console runs commands on a node's serial console through the
// platform's SSH console server.
//
// The console server multiplexes every node console behind one SSH login.
// After authenticating, `open /<lab>/<node>/<line>` attaches to a console
// line; keystrokes are then delivered to the device verbatim.
package console

import (
	"context"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/newtron-network/cmlkit/pkg/util"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultPort           = 22
	DefaultDialTimeout    = 15 * time.Second
	DefaultCommandTimeout = 30 * time.Second
	DefaultPrompt         = `[\w.()/-]+[>#]\s*\z`
	DefaultServerPrompt   = `consoles>\s*\z`
)

// detach is the escape sequence that returns from a console line to the
// console server.
const detach = "\x1d"

// Config configures the console client.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// KnownHostsFile verifies the console server's host key. When empty,
	// InsecureSkipVerify must be set.
	KnownHostsFile     string
	InsecureSkipVerify bool

	DialTimeout    time.Duration
	CommandTimeout time.Duration
	Prompt         string // device prompt, matched at the end of output
	ServerPrompt   string // console server prompt shown after login
}

// Client opens console sessions. It holds no connection between calls.
type Client struct {
	cfg          Config
	prompt       *regexp.Regexp
	serverPrompt *regexp.Regexp
	ssh          *ssh.ClientConfig
}

// New validates cfg and prepares the SSH client configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" || cfg.Username == "" {
		return nil, fmt.Errorf("console host and username are required: %w", util.ErrInvalidConfig)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.ServerPrompt == "" {
		cfg.ServerPrompt = DefaultServerPrompt
	}
	prompt, err := regexp.Compile(cfg.Prompt)
	if err != nil {
		return nil, fmt.Errorf("console prompt: %w", err)
	}
	serverPrompt, err := regexp.Compile(cfg.ServerPrompt)
	if err != nil {
		return nil, fmt.Errorf("console server prompt: %w", err)
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case cfg.KnownHostsFile != "":
		if hostKey, err = knownhosts.New(cfg.KnownHostsFile); err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
	case cfg.InsecureSkipVerify:
		util.Warnf("console %s: host key verification disabled", cfg.Host)
		hostKey = ssh.InsecureIgnoreHostKey()
	default:
		return nil, fmt.Errorf("console: known_hosts file or insecure mode required: %w", util.ErrInvalidConfig)
	}

	return &Client{
		cfg:          cfg,
		prompt:       prompt,
		serverPrompt: serverPrompt,
		ssh: &ssh.ClientConfig{
			User:            cfg.Username,
			Auth:            []ssh.AuthMethod{ssh.Password(cfg.Password)},
			HostKeyCallback: hostKey,
			Timeout:         cfg.DialTimeout,
		},
	}, nil
}

// Output is the result of one console command.
type Output struct {
	Command string `json:"command"`
	Output  string `json:"output"`
}

// LinePath returns the console server path of a node's console line.
func LinePath(lab, node string, line int) string {
	return "/" + lab + "/" + node + "/" + strconv.Itoa(line)
}

// Exec attaches to console line 0 of node in lab (ids or labels, as the
// console server accepts either) and runs commands in order. It returns the
// outputs collected so far together with any error.
func (c *Client) Exec(ctx context.Context, lab, node string, commands []string) ([]Output, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	log := util.WithNode(lab, node)

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("console dial %s: %w", addr, err)
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, c.ssh)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("console SSH handshake %s@%s: %w", c.cfg.Username, addr, err)
	}
	client := ssh.NewClient(sc, chans, reqs)
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("console session: %w", err)
	}
	defer session.Close()

	modes := ssh.TerminalModes{ssh.ECHO: 1, ssh.TTY_OP_ISPEED: 38400, ssh.TTY_OP_OSPEED: 38400}
	if err := session.RequestPty("vt100", 200, 80, modes); err != nil {
		return nil, fmt.Errorf("console pty: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := session.Shell(); err != nil {
		return nil, fmt.Errorf("console shell: %w", err)
	}

	e := newExpecter(stdout)
	defer e.close()
	send := func(s string) error {
		_, err := io.WriteString(stdin, s+"\r")
		return err
	}

	if _, err := e.expect(ctx, c.serverPrompt, c.cfg.CommandTimeout); err != nil {
		return nil, fmt.Errorf("console server %s: %w", addr, err)
	}

	path := LinePath(lab, node, 0)
	log.Debugf("Opening console %s", path)
	if err := send("open " + path); err != nil {
		return nil, err
	}
	// wake the line so the device prints its prompt
	if err := send(""); err != nil {
		return nil, err
	}
	if _, err := e.expect(ctx, c.prompt, c.cfg.CommandTimeout); err != nil {
		return nil, fmt.Errorf("console %s: %w", path, err)
	}

	var outputs []Output
	for _, cmd := range commands {
		if err := send(cmd); err != nil {
			return outputs, err
		}
		raw, err := e.expect(ctx, c.prompt, c.cfg.CommandTimeout)
		if err != nil {
			return outputs, fmt.Errorf("console %s: command %q: %w", path, cmd, err)
		}
		outputs = append(outputs, Output{Command: cmd, Output: cleanOutput(raw, cmd)})
	}

	io.WriteString(stdin, detach)
	log.Infof("Ran %d console commands on %s", len(outputs), path)
	return outputs, nil
}
