package tcpserver

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/geommdb-harness/logger"
)

// session answers exactly one command on one accepted connection.
type session struct {
	id     uint32
	conn   net.Conn
	server *TCPServer
	done   chan struct{}
	once   sync.Once
}

func newSession(id uint32, conn net.Conn, server *TCPServer) *session {
	return &session{
		id:     id,
		conn:   conn,
		server: server,
		done:   make(chan struct{}),
	}
}

// Handle reads one command line, waits the reply delay and answers. The
// connection is closed when Handle returns.
func (s *session) Handle() {
	defer s.Close()

	log := s.server.Logger.With(logger.F("session", s.id), logger.F("remote", s.conn.RemoteAddr().String()))

	line, err := bufio.NewReader(s.conn).ReadString('\n')
	if err != nil && line == "" {
		log.Debug("connection ended before a command", logger.F("error", err))
		return
	}

	command := strings.TrimRight(line, "\r\n")
	s.server.record(command)
	log.Debug("command received", logger.F("command", command))

	reply := s.server.Responder(command)
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-s.done:
			return
		}
	}

	if reply.CloseWithoutReply {
		return
	}

	if _, err := s.conn.Write(reply.Data); err != nil {
		log.Warn("reply failed", logger.F("error", err))
	}
}

// Close closes the connection. Safe to call multiple times.
func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})

	return err
}
