package tcpserver

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/geommdb-harness/logger"
)

func startServer(t *testing.T, responder Responder) *TCPServer {
	t.Helper()

	srv := NewTCPServer("test", "127.0.0.1:0", responder, logger.NewNopLogger())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return srv
}

func roundTrip(t *testing.T, srv *TCPServer, command string) []byte {
	t.Helper()

	conn, err := net.Dial("tcp", srv.ListenAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(command))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err)

	return data
}

func TestTCPServer_Start(t *testing.T) {
	t.Run("binds a free port", func(t *testing.T) {
		srv := startServer(t, Echo("OK\n"))

		require.NotNil(t, srv.ListenAddr())
		assert.NotZero(t, srv.ListenAddr().Port)
	})

	t.Run("second start fails", func(t *testing.T) {
		srv := startServer(t, Echo("OK\n"))

		assert.Error(t, srv.Start())
	})

	t.Run("bad address fails", func(t *testing.T) {
		srv := NewTCPServer("test", "127.0.0.1:99999", Echo("OK\n"), logger.NewNopLogger())

		assert.Error(t, srv.Start())
		assert.Nil(t, srv.ListenAddr())
	})
}

func TestTCPServer_Responders(t *testing.T) {
	t.Run("echo replies and records the command", func(t *testing.T) {
		srv := startServer(t, Echo("OK\n"))

		got := roundTrip(t, srv, "GEOADD loc1 37.7749 -122.4194\n")

		assert.Equal(t, "OK\n", string(got))
		assert.Equal(t, []string{"GEOADD loc1 37.7749 -122.4194"}, srv.Received())
		assert.Equal(t, 1, srv.Connections())
		assert.Eventually(t, func() bool { return srv.sessions.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("each connection gets its own session id", func(t *testing.T) {
		srv := startServer(t, Echo("OK\n"))

		for i := 0; i < 3; i++ {
			roundTrip(t, srv, "GEOGET a\n")
		}

		assert.Equal(t, 3, srv.Connections())
		assert.Equal(t, uint32(4), srv.idGenerator.Id())
	})

	t.Run("responder sees the command", func(t *testing.T) {
		srv := startServer(t, func(command string) Reply {
			if command == "GEOGET missing" {
				return Reply{Data: []byte("Not Found\n")}
			}
			return Reply{Data: []byte("ERROR\n")}
		})

		assert.Equal(t, "Not Found\n", string(roundTrip(t, srv, "GEOGET missing\n")))
		assert.Equal(t, "ERROR\n", string(roundTrip(t, srv, "BOGUS\n")))
	})

	t.Run("delayed waits before replying", func(t *testing.T) {
		srv := startServer(t, Delayed(100*time.Millisecond, "OK\n"))

		start := time.Now()
		got := roundTrip(t, srv, "GEOSEARCH 0 0 1\n")

		assert.Equal(t, "OK\n", string(got))
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	})

	t.Run("silent closes without data", func(t *testing.T) {
		srv := startServer(t, Silent())

		assert.Empty(t, roundTrip(t, srv, "GEOGET a\n"))
	})
}

func TestTCPServer_Stop(t *testing.T) {
	t.Run("closes pending sessions", func(t *testing.T) {
		srv := NewTCPServer("test", "127.0.0.1:0", Delayed(time.Minute, "late\n"), logger.NewNopLogger())
		require.NoError(t, srv.Start())

		conn, err := net.Dial("tcp", srv.ListenAddr().String())
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Write([]byte("GEOGET a\n"))
		require.NoError(t, err)

		require.Eventually(t, func() bool { return len(srv.Received()) == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 1, srv.sessions.Len())

		srv.Stop()

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err = bufio.NewReader(conn).ReadByte()
		assert.Error(t, err)
	})

	t.Run("stop when not running is a no-op", func(t *testing.T) {
		srv := NewTCPServer("test", "127.0.0.1:0", Echo("OK\n"), logger.NewNopLogger())
		srv.Stop()
	})
}
