package enginetest

import (
	"log/slog"
	"sync"
	"time"

	gows "github.com/gorilla/websocket"
)

// socket is the engine side of one client connection.
type socket struct {
	server *Server

	// logger for logging socket events
	logger *slog.Logger

	// underlying websocket connection
	conn *gows.Conn

	// outgoing frames to the client
	outbound chan []byte

	// closed when the socket is torn down
	done chan struct{}

	closeOnce sync.Once
}

func newSocket(s *Server, conn *gows.Conn) *socket {
	sock := &socket{
		server:   s,
		logger:   s.options.logger,
		conn:     conn,
		outbound: make(chan []byte, 16),
		done:     make(chan struct{}),
	}

	return sock
}

func (s *socket) start() {
	go s.read()
	go s.write()
}

func (s *socket) read() {
	defer s.cleanup()

	if s.server.options.readLimit > 0 {
		s.conn.SetReadLimit(s.server.options.readLimit)
	}

	for {
		t, d, err := s.conn.ReadMessage()
		if err != nil {
			// when the connection is closed, we'll receive a CloseError
			if gows.IsUnexpectedCloseError(err, gows.CloseNormalClosure, gows.CloseGoingAway) {
				s.logger.Debug("read error", "error", err)
			}
			return
		}

		if t != gows.TextMessage {
			continue
		}
		if reply := s.server.receive(d); reply != nil {
			s.send(reply)
		}
	}
}

func (s *socket) write() {
	var tick <-chan time.Time
	if s.server.options.pingInterval > 0 {
		ticker := time.NewTicker(s.server.options.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case m := <-s.outbound:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.server.options.writeWait)); err != nil {
				s.logger.Debug("deadline error", "error", err)
			}
			if err := s.conn.WriteMessage(gows.TextMessage, m); err != nil {
				s.logger.Debug("write error", "error", err)
				return
			}
		case <-tick:
			t := time.Now().Add(s.server.options.writeWait)
			if err := s.conn.WriteControl(gows.PingMessage, nil, t); err != nil {
				s.logger.Debug("ping error", "error", err)
				return
			}
		}
	}
}

func (s *socket) send(frame []byte) {
	select {
	case s.outbound <- frame:
	case <-s.done:
	}
}

// close sends a close frame, the client answers and the read loop ends.
func (s *socket) close(code int, reason string) {
	m := gows.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(gows.CloseMessage, m, time.Now().Add(s.server.options.writeWait)); err != nil {
		s.logger.Debug("close frame failed", "error", err)
		s.drop()
	}
}

// drop tears the TCP connection down without a closing handshake.
func (s *socket) drop() {
	_ = s.conn.UnderlyingConn().Close()
}

// cleanup releases the socket once its read loop has ended
func (s *socket) cleanup() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("closing error during cleanup", "error", err)
		}
		s.server.forget(s)
	})
}
