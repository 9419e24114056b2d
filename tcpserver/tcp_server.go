// Package tcpserver runs a scripted line-protocol server: each accepted
// connection reads one '\n'-terminated command and answers it with whatever
// the configured Responder returns. It stands in for a GEOMMDB server in
// tests and local runs of the harness.
package tcpserver

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/geommdb-harness/idgenerator"
	"github.com/cyberinferno/geommdb-harness/logger"
	"github.com/cyberinferno/geommdb-harness/safemap"
)

// Reply describes how a session answers one command.
type Reply struct {
	// Data is written back verbatim in a single write.
	Data []byte
	// Delay is waited before replying.
	Delay time.Duration
	// CloseWithoutReply closes the connection instead of writing Data.
	CloseWithoutReply bool
}

// Responder computes the reply for a received command (without its
// trailing newline).
type Responder func(command string) Reply

// Echo replies with data to every command.
func Echo(data string) Responder {
	return func(string) Reply {
		return Reply{Data: []byte(data)}
	}
}

// Delayed replies with data after d.
func Delayed(d time.Duration, data string) Responder {
	return func(string) Reply {
		return Reply{Data: []byte(data), Delay: d}
	}
}

// Silent closes every connection without replying.
func Silent() Responder {
	return func(string) Reply {
		return Reply{CloseWithoutReply: true}
	}
}

// TCPServer accepts connections and hands each one to a session that
// answers a single command. Sessions are tracked by ID so Stop can close
// them.
type TCPServer struct {
	Logger    logger.Logger
	Name      string
	Addr      string
	Responder Responder

	sessions    *safemap.SafeMap[uint32, *session]
	idGenerator *idgenerator.IdGenerator

	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup

	mu       sync.Mutex
	received []string
}

// NewTCPServer returns a server that will listen on addr once started. Use
// "127.0.0.1:0" to pick a free port and read it back with ListenAddr.
//
// Parameters:
//   - name: Label used in log lines
//   - addr: Address to listen on
//   - responder: Computes the reply for each command
//   - log: Logger for server events
//
// Returns:
//   - A stopped *TCPServer
func NewTCPServer(name, addr string, responder Responder, log logger.Logger) *TCPServer {
	return &TCPServer{
		Logger:    log,
		Name:      name,
		Addr:      addr,
		Responder: responder,

		sessions:    safemap.NewSafeMap[uint32, *session](),
		idGenerator: idgenerator.NewIdGenerator(0),
	}
}

// Start binds Addr and runs the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.F("error", err))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.listener = ln
	s.running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.F("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// ListenAddr returns the bound address, or nil before Start.
func (s *TCPServer) ListenAddr() *net.TCPAddr {
	if s.listener == nil {
		return nil
	}

	addr, _ := s.listener.Addr().(*net.TCPAddr)
	return addr
}

// Stop closes the listener and every open session, then waits for their
// goroutines to exit. Safe to call when the server is not running.
func (s *TCPServer) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	_ = s.listener.Close()

	s.sessions.Range(func(_ uint32, sess *session) bool {
		_ = sess.Close()
		return true
	})

	s.wg.Wait()
	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// Received returns the commands read so far, in arrival order.
func (s *TCPServer) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.received))
	copy(out, s.received)
	return out
}

// Connections returns the number of connections accepted so far.
func (s *TCPServer) Connections() int {
	return int(s.idGenerator.Issued())
}

func (s *TCPServer) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.F("error", err))
			continue
		}

		sess := newSession(s.idGenerator.Id(), conn, s)
		s.addSession(sess)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.removeSession(sess.id)
			sess.Handle()
		}()
	}
}

func (s *TCPServer) addSession(sess *session) {
	s.sessions.Store(sess.id, sess)

	// Stop may already have swept the session map.
	if !s.running.Load() {
		_ = sess.Close()
	}
}

func (s *TCPServer) removeSession(id uint32) {
	s.sessions.Delete(id)
}

func (s *TCPServer) record(command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, command)
}
