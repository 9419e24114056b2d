// Package commandsession delivers one text command to a GEOMMDB server over a
// dedicated TCP connection: connect, write the command, take the first bytes
// the server sends back as the response, close. Every phase change, received
// payload and error is published through registered handlers and summarised
// in the Result returned by Run.
package commandsession

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Endpoint is the (host, port) pair of the server.
type Endpoint struct {
	Host string
	Port int
}

// Address returns the dialable "host:port" form of the endpoint.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Address()
}

// PhaseEvent is emitted on every phase transition.
type PhaseEvent struct {
	SessionID string    // Session that changed phase
	Phase     Phase     // The new phase
	Address   string    // The remote address ("host:port")
	Timestamp time.Time // When the transition happened
	Error     error     // Non-nil for Failed, and for Closed without a response
}

// DataReceivedEvent is emitted once, when the response bytes arrive.
type DataReceivedEvent struct {
	SessionID string
	Data      []byte // The response bytes (do not modify; copy if needed)
	Length    int
	Timestamp time.Time
}

// ErrorEvent is emitted when the session fails or ends without a response.
type ErrorEvent struct {
	SessionID string
	Error     error
	Timestamp time.Time
}

// PhaseHandler is called on phase transitions.
type PhaseHandler func(event PhaseEvent)

// DataReceivedHandler is called with the response bytes.
type DataReceivedHandler func(event DataReceivedEvent)

// ErrorHandler is called with the session's error.
type ErrorHandler func(event ErrorEvent)

// Config holds per-session transport settings.
type Config struct {
	// Endpoint is the server to connect to.
	Endpoint Endpoint
	// ConnectTimeout bounds connection establishment; 0 means no timeout.
	ConnectTimeout time.Duration
	// WriteTimeout bounds writing the command; 0 means no timeout.
	WriteTimeout time.Duration
	// ReadTimeout bounds the wait for the first response bytes; 0 means no timeout.
	ReadTimeout time.Duration
	// ReadBufferSize is the maximum number of response bytes taken from the
	// first read.
	ReadBufferSize int
}

// DefaultConfig returns a Config for endpoint with no timeouts and a 4096
// byte read buffer.
func DefaultConfig(endpoint Endpoint) Config {
	return Config{
		Endpoint:       endpoint,
		ReadBufferSize: 4096,
	}
}

// Result summarises a finished session.
type Result struct {
	SessionID string
	Command   string
	Endpoint  Endpoint
	// Outcome is Completed, Closed (no response) or Failed.
	Outcome Phase
	// Response holds the bytes of the first read; nil unless Completed.
	Response []byte
	// Err is a *ConnectError, a *TransportError, ErrEmptyResponse or
	// ErrSessionUsed; nil when Completed.
	Err error
	// Phases lists every phase the session passed through, in order.
	Phases   []Phase
	Started  time.Time
	Finished time.Time
}

// Duration returns how long the session ran.
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Session carries one command over one connection. Handlers must be
// registered before Run; they are invoked synchronously from the goroutine
// executing Run, in transition order.
type Session struct {
	id      string
	command string
	payload []byte
	config  Config

	onPhase        PhaseHandler
	onDataReceived DataReceivedHandler
	onError        ErrorHandler

	mu    sync.RWMutex
	phase Phase
	used  atomic.Bool
}

// NewSession creates a session in Idle phase for command. The command is sent
// verbatim, with a '\n' appended when it does not already end in one.
//
// Parameters:
//   - command: The opaque command text (e.g. "GEOGET location1")
//   - config: Endpoint and timeouts
//
// Returns:
//   - A new *Session; call Run to deliver the command.
func NewSession(command string, config Config) *Session {
	payload := command
	if !strings.HasSuffix(payload, "\n") {
		payload += "\n"
	}

	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = 4096
	}

	return &Session{
		id:      uuid.NewString(),
		command: command,
		payload: []byte(payload),
		config:  config,
		phase:   Idle,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Command returns the command as given to NewSession.
func (s *Session) Command() string {
	return s.command
}

// Phase returns the current phase. Safe for concurrent use.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// OnPhase registers the handler for phase transitions, replacing any
// previous one.
func (s *Session) OnPhase(handler PhaseHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPhase = handler
}

// OnDataReceived registers the handler for the response bytes, replacing any
// previous one.
func (s *Session) OnDataReceived(handler DataReceivedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDataReceived = handler
}

// OnError registers the handler for session errors, replacing any previous
// one.
func (s *Session) OnError(handler ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = handler
}

// Run drives the session to a terminal phase and returns its Result. The
// socket is always released before Run returns. Cancelling ctx aborts a
// pending dial or read, and the session ends Failed. Run may only be called
// once; later calls return a Failed result carrying ErrSessionUsed.
//
// Parameters:
//   - ctx: Context for cancellation of the in-flight session
//
// Returns:
//   - The session's Result
func (s *Session) Run(ctx context.Context) Result {
	res := Result{
		SessionID: s.id,
		Command:   s.command,
		Endpoint:  s.config.Endpoint,
		Started:   time.Now(),
	}

	if !s.used.CompareAndSwap(false, true) {
		res.Outcome = Failed
		res.Err = ErrSessionUsed
		res.Finished = time.Now()
		return res
	}

	s.transition(&res, Connecting, nil)

	conn, err := s.dial(ctx)
	if err != nil {
		return s.fail(&res, &ConnectError{Address: s.config.Endpoint.Address(), Err: err})
	}

	// Closing the socket unblocks a pending write or read once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	s.transition(&res, Connected, nil)

	if err := s.write(conn); err != nil {
		_ = conn.Close()
		return s.fail(&res, &TransportError{Op: "write", Err: ctxCause(ctx, err)})
	}

	s.transition(&res, AwaitingClose, nil)

	data, err := s.readFirst(conn)
	_ = conn.Close()

	switch {
	case len(data) > 0:
		res.Response = data
		res.Outcome = Completed
		s.emitDataReceived(data)
		s.transition(&res, Completed, nil)
		s.transition(&res, Closed, nil)
	case err == nil || errors.Is(err, io.EOF):
		res.Outcome = Closed
		res.Err = ErrEmptyResponse
		s.emitError(ErrEmptyResponse)
		s.transition(&res, Closed, ErrEmptyResponse)
	default:
		return s.fail(&res, &TransportError{Op: "read", Err: ctxCause(ctx, err)})
	}

	res.Finished = time.Now()
	return res
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout: s.config.ConnectTimeout,
	}

	return dialer.DialContext(ctx, "tcp", s.config.Endpoint.Address())
}

// write sends the whole payload. There is no acknowledgement beyond what
// the transport gives.
func (s *Session) write(conn net.Conn) error {
	if s.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout)); err != nil {
			return err
		}
	}

	_, err := conn.Write(s.payload)
	return err
}

// readFirst returns the bytes of the first successful read. The reply has
// no framing, so whatever the first delivery holds is the whole response.
func (s *Session) readFirst(conn net.Conn) ([]byte, error) {
	if s.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return nil, err
		}
	}

	buffer := make([]byte, s.config.ReadBufferSize)
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])
			return data, nil
		}

		if err != nil {
			return nil, err
		}
	}
}

func (s *Session) fail(res *Result, err error) Result {
	res.Outcome = Failed
	res.Err = err
	s.emitError(err)
	s.transition(res, Failed, err)
	res.Finished = time.Now()
	return *res
}

func (s *Session) transition(res *Result, phase Phase, err error) {
	s.mu.Lock()
	s.phase = phase
	handler := s.onPhase
	s.mu.Unlock()

	res.Phases = append(res.Phases, phase)

	if handler != nil {
		handler(PhaseEvent{
			SessionID: s.id,
			Phase:     phase,
			Address:   s.config.Endpoint.Address(),
			Timestamp: time.Now(),
			Error:     err,
		})
	}
}

func (s *Session) emitDataReceived(data []byte) {
	s.mu.RLock()
	handler := s.onDataReceived
	s.mu.RUnlock()

	if handler != nil {
		handler(DataReceivedEvent{
			SessionID: s.id,
			Data:      data,
			Length:    len(data),
			Timestamp: time.Now(),
		})
	}
}

func (s *Session) emitError(err error) {
	s.mu.RLock()
	handler := s.onError
	s.mu.RUnlock()

	if handler != nil {
		handler(ErrorEvent{
			SessionID: s.id,
			Error:     err,
			Timestamp: time.Now(),
		})
	}
}

// ctxCause replaces the net.ErrClosed produced by aborting the socket on
// cancellation with the context's cause. Other errors are kept as they are.
func ctxCause(ctx context.Context, err error) error {
	if !errors.Is(err, net.ErrClosed) {
		return err
	}

	if cause := context.Cause(ctx); cause != nil {
		return cause
	}

	return err
}
