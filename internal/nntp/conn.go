// Package nntp implements the wire conversation with a news server: a
// line-oriented transport over TCP with optional in-place TLS, the
// command/response session state machine, and decoders turning overview
// lines and header blocks into article records.
package nntp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/example/nntp2sql/internal/errcode"
)

// ConnOptions tunes transport behavior.
type ConnOptions struct {
	// DialTimeout bounds each per-address connect attempt. Zero disables it.
	DialTimeout time.Duration
	// IOTimeout bounds each read and write on the connection. Zero disables it.
	IOTimeout time.Duration
	// TLSConfig is cloned for TLS upgrades; ServerName defaults to the host
	// passed to StartTLS when unset.
	TLSConfig *tls.Config
}

// Conn is a line-oriented connection to a news server. It is not safe for
// concurrent use; every session owns its connection exclusively.
type Conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	opts    ConnOptions
	tlsOn   bool
	closed  bool
}

// Dial resolves host and attempts a TCP connection to each resolved address
// in turn, returning on the first success.
func Dial(ctx context.Context, host, port string, opts ConnOptions) (*Conn, error) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return nil, errcode.New(errcode.NetDNS, fmt.Errorf("resolve %s: %w", host, err))
	}
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	var lastErr error
	for _, addr := range addrs {
		nc, derr := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, port))
		if derr != nil {
			lastErr = derr
			continue
		}
		return NewConn(nc, opts), nil
	}
	if lastErr == nil {
		lastErr = errors.New("no addresses resolved")
	}
	return nil, errcode.New(errcode.NetConnect, fmt.Errorf("connect %s:%s: %w", host, port, lastErr))
}

// NewConn wraps an established network connection.
func NewConn(nc net.Conn, opts ConnOptions) *Conn {
	return &Conn{
		netConn: nc,
		reader:  bufio.NewReader(nc),
		opts:    opts,
	}
}

// StartTLS performs a TLS client handshake over the existing connection.
// It may be called at most once; after a failure the connection is unusable
// and must be closed by the caller.
func (c *Conn) StartTLS(ctx context.Context, serverName string) error {
	if c.tlsOn {
		return errcode.Newf(errcode.TLS, "connection already uses TLS")
	}
	cfg := c.opts.TLSConfig.Clone()
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	tlsConn := tls.Client(c.netConn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return errcode.New(errcode.TLS, fmt.Errorf("tls handshake: %w", err))
	}
	c.netConn = tlsConn
	c.reader.Reset(tlsConn)
	c.tlsOn = true
	return nil
}

// TLSActive reports whether the connection has been upgraded to TLS.
func (c *Conn) TLSActive() bool {
	return c.tlsOn
}

// ReadLine reads bytes through the CRLF terminator and returns the line
// without it. A peer close before the terminator is an error, not a short
// line.
func (c *Conn) ReadLine() (string, error) {
	if err := c.setDeadline(); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read line: connection closed by peer")
		}
		return "", fmt.Errorf("read line: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadMultiline reads lines until the bare "." terminator and joins them
// with a single newline. Dot-stuffed content lines have exactly one leading
// dot stripped.
func (c *Conn) ReadMultiline() (string, error) {
	var body strings.Builder
	first := true
	for {
		line, err := c.ReadLine()
		if err != nil {
			return "", fmt.Errorf("read multiline: %w", err)
		}
		if line == "." {
			return body.String(), nil
		}
		line = strings.TrimPrefix(line, ".")
		if !first {
			body.WriteByte('\n')
		}
		body.WriteString(line)
		first = false
	}
}

// SendCommand writes text to the server, appending CRLF when missing.
func (c *Conn) SendCommand(text string) error {
	if !strings.HasSuffix(text, "\r\n") {
		text += "\r\n"
	}
	if err := c.setDeadline(); err != nil {
		return err
	}
	if _, err := io.WriteString(c.netConn, text); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

// Close releases the connection. It is safe to call multiple times and
// tolerates partially initialized state.
func (c *Conn) Close() error {
	if c == nil || c.closed || c.netConn == nil {
		return nil
	}
	c.closed = true
	if err := c.netConn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

func (c *Conn) setDeadline() error {
	if c.opts.IOTimeout <= 0 {
		return nil
	}
	if err := c.netConn.SetDeadline(time.Now().Add(c.opts.IOTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	return nil
}
