package nntp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/nntp2sql/internal/errcode"
)

// State identifies the session's position in its lifecycle.
type State int

// Session states, in the order they are normally reached.
const (
	StateDisconnected State = iota
	StateTCPConnected
	StateTLSEstablished
	StateGreeted
	StateAuthenticated
	StateGroupSelected
	StateReady
	StateClosed
)

// ErrRejected marks a non-fatal command rejection: the server answered
// XOVER or HEAD with a non-2xx status, so there is no body to read.
var ErrRejected = errors.New("command rejected by server")

// GroupStatus carries the numbers from a successful GROUP response.
type GroupStatus struct {
	Count int64
	First int64
	Last  int64
}

// SessionConfig describes how to establish a session.
type SessionConfig struct {
	Host         string
	Port         string
	TLSOnConnect bool
	StartTLS     bool
	Username     string
	Password     string
	ConnOptions  ConnOptions
}

// Session drives the NNTP command/response conversation over a Conn. A
// session belongs to exactly one goroutine; workers never share one.
type Session struct {
	cfg    SessionConfig
	conn   *Conn
	state  State
	logger *zap.Logger
}

// NewSession returns an unconnected session.
func NewSession(cfg SessionConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, state: StateDisconnected, logger: logger}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Connect establishes the TCP connection, optionally upgrades to TLS
// (immediately or via STARTTLS), reads the greeting, and authenticates when
// credentials are configured. On any failure the session is closed.
func (s *Session) Connect(ctx context.Context) error {
	conn, err := Dial(ctx, s.cfg.Host, s.cfg.Port, s.cfg.ConnOptions)
	if err != nil {
		return err
	}
	s.conn = conn
	s.state = StateTCPConnected

	if err := s.establish(ctx); err != nil {
		if cerr := s.Close(); cerr != nil {
			s.logger.Debug("close after failed establish", zap.Error(cerr))
		}
		return err
	}
	return nil
}

func (s *Session) establish(ctx context.Context) error {
	if s.cfg.TLSOnConnect {
		if err := s.conn.StartTLS(ctx, s.cfg.Host); err != nil {
			return err
		}
		s.state = StateTLSEstablished
	}

	line, err := s.conn.ReadLine()
	if err != nil {
		return errcode.New(errcode.Greeting, fmt.Errorf("read greeting: %w", err))
	}
	if code := responseCode(line); code == 0 || code >= 400 {
		return errcode.Newf(errcode.Greeting, "server refused session: %s", line)
	}
	s.state = StateGreeted

	if s.cfg.StartTLS && !s.conn.TLSActive() {
		if err := s.negotiateStartTLS(ctx); err != nil {
			return err
		}
	}

	if s.cfg.Username != "" {
		if err := s.authenticate(); err != nil {
			return err
		}
		s.state = StateAuthenticated
	}
	return nil
}

func (s *Session) negotiateStartTLS(ctx context.Context) error {
	line, err := s.roundTrip("STARTTLS")
	if err != nil {
		return errcode.New(errcode.TLS, err)
	}
	if !isSuccess(responseCode(line)) {
		return errcode.Newf(errcode.TLS, "STARTTLS refused: %s", line)
	}
	return s.conn.StartTLS(ctx, s.cfg.Host)
}

// authenticate performs the AUTHINFO USER/PASS exchange. A 381 intermediate
// code asks for the password; any final code below 400 is accepted.
func (s *Session) authenticate() error {
	line, err := s.roundTrip("AUTHINFO USER " + s.cfg.Username)
	if err != nil {
		return errcode.New(errcode.Auth, err)
	}
	if responseCode(line) == 381 {
		line, err = s.roundTrip("AUTHINFO PASS " + s.cfg.Password)
		if err != nil {
			return errcode.New(errcode.Auth, err)
		}
	}
	if code := responseCode(line); code >= 400 {
		return errcode.Newf(errcode.Auth, "authentication rejected: %s", line)
	}
	return nil
}

// SelectGroup issues GROUP and parses the count/first/last numbers from the
// response.
func (s *Session) SelectGroup(name string) (GroupStatus, error) {
	if s.conn == nil || s.state == StateClosed {
		return GroupStatus{}, errcode.Newf(errcode.Command, "GROUP on a closed session")
	}
	line, err := s.roundTrip("GROUP " + name)
	if err != nil {
		return GroupStatus{}, errcode.New(errcode.Command, err)
	}
	if !isSuccess(responseCode(line)) {
		return GroupStatus{}, errcode.Newf(errcode.Command, "GROUP %s failed: %s", name, line)
	}
	status := parseGroupStatus(line)
	s.state = StateGroupSelected
	return status, nil
}

// Xover requests overview lines for the article range. A server rejection
// returns ErrRejected; callers treat that as "no headers available".
func (s *Session) Xover(first, last int64) (string, error) {
	if err := s.requireGroup("XOVER"); err != nil {
		return "", err
	}
	line, err := s.roundTrip(fmt.Sprintf("XOVER %d-%d", first, last))
	if err != nil {
		return "", errcode.New(errcode.Command, err)
	}
	if !isSuccess(responseCode(line)) {
		s.logger.Warn("XOVER rejected", zap.String("response", line))
		return "", ErrRejected
	}
	body, err := s.conn.ReadMultiline()
	if err != nil {
		return "", errcode.New(errcode.Command, err)
	}
	s.state = StateReady
	return body, nil
}

// Head requests the raw header block for one article. A server rejection
// returns ErrRejected.
func (s *Session) Head(artnum int64) (string, error) {
	if err := s.requireGroup("HEAD"); err != nil {
		return "", err
	}
	line, err := s.roundTrip(fmt.Sprintf("HEAD %d", artnum))
	if err != nil {
		return "", errcode.New(errcode.Command, err)
	}
	if !isSuccess(responseCode(line)) {
		s.logger.Debug("HEAD rejected",
			zap.Int64("artnum", artnum),
			zap.String("response", line),
		)
		return "", ErrRejected
	}
	body, err := s.conn.ReadMultiline()
	if err != nil {
		return "", errcode.New(errcode.Command, err)
	}
	s.state = StateReady
	return body, nil
}

// Close tears the session down. Safe to call multiple times.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Session) requireGroup(cmd string) error {
	if s.state != StateGroupSelected && s.state != StateReady {
		return errcode.Newf(errcode.Command, "%s requires a selected group", cmd)
	}
	return nil
}

func (s *Session) roundTrip(cmd string) (string, error) {
	if err := s.conn.SendCommand(cmd); err != nil {
		return "", err
	}
	return s.conn.ReadLine()
}

// responseCode extracts the leading numeric status; 0 when the line does
// not start with one.
func responseCode(line string) int {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0
	}
	return code
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// parseGroupStatus reads `<code> <count> <first> <last> <name>`. Missing or
// malformed numbers decode to zero, matching the server's degenerate cases.
func parseGroupStatus(line string) GroupStatus {
	fields := strings.Fields(line)
	at := func(i int) int64 {
		if i >= len(fields) {
			return 0
		}
		n, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return GroupStatus{Count: at(1), First: at(2), Last: at(3)}
}
