// Package enginetest provides a fake DSP engine for tests, in the spirit of
// net/http/httptest.
package enginetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	gows "github.com/gorilla/websocket"
	"github.com/mickaelvieira/dspclient/codec"
)

// Handler answers a command frame. A nil reply sends nothing back.
type Handler func(name string, frame []byte) []byte

// Reply encodes a response frame with an arbitrary inner value.
func Reply(name string, inner any) []byte {
	b, err := json.Marshal(map[string]any{name: inner})
	if err != nil {
		panic(err)
	}
	return b
}

// Ok encodes a successful response.
func Ok(name string, value any) []byte {
	return Reply(name, map[string]any{"Ok": value})
}

// Err encodes a failed response.
func Err(name string, payload any) []byte {
	return Reply(name, map[string]any{"Error": payload})
}

// Server is a websocket server speaking the engine protocol.
type Server struct {
	// URL is the websocket address of the server, ws://127.0.0.1:port
	URL string

	http     *httptest.Server
	handler  Handler
	options  options
	upgrader gows.Upgrader

	mu          sync.Mutex
	sockets     map[*socket]struct{}
	connections int
	received    []string
	refuse      bool
}

// NewServer starts a fake engine answering with h. A nil handler never replies.
func NewServer(h Handler, opts ...OptionModifier) *Server {
	s := &Server{
		handler: h,
		options: defaultOptions(),
		sockets: make(map[*socket]struct{}),
		upgrader: gows.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	for _, opt := range opts {
		opt(&s.options)
	}

	s.http = httptest.NewServer(http.HandlerFunc(s.serve))
	s.URL = "ws" + strings.TrimPrefix(s.http.URL, "http")

	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	refuse := s.refuse
	s.mu.Unlock()

	if refuse {
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.options.logger.Debug("upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.connections++
	s.mu.Unlock()

	sock := newSocket(s, conn)

	s.mu.Lock()
	s.sockets[sock] = struct{}{}
	s.mu.Unlock()

	sock.start()
}

func (s *Server) receive(frame []byte) []byte {
	var cmd any
	if err := json.Unmarshal(frame, &cmd); err != nil {
		s.options.logger.Debug("invalid command frame", "error", err)
		return nil
	}
	name := codec.FormatCommand(cmd)

	s.mu.Lock()
	s.received = append(s.received, name)
	s.mu.Unlock()

	if s.handler == nil {
		return nil
	}

	return s.handler(name, frame)
}

func (s *Server) forget(sock *socket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sockets, sock)
}

func (s *Server) each(fn func(*socket)) {
	s.mu.Lock()
	sockets := make([]*socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		fn(sock)
	}
}

// Push sends an unsolicited frame to every connected client.
func (s *Server) Push(frame []byte) {
	s.each(func(sock *socket) {
		sock.send(frame)
	})
}

// Drop cuts every connection without a closing handshake.
func (s *Server) Drop() {
	s.each(func(sock *socket) {
		sock.drop()
	})
}

// CloseSockets starts a closing handshake with every client.
func (s *Server) CloseSockets(code int, reason string) {
	s.each(func(sock *socket) {
		sock.close(code, reason)
	})
}

// Refuse makes new handshakes fail with 503 while enabled.
func (s *Server) Refuse(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refuse = enabled
}

// Connections returns the number of accepted websocket handshakes.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connections
}

// Open returns the number of sockets currently open.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sockets)
}

// Received returns the names of the commands received so far.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.received...)
}

// WaitFor polls cond until it holds or timeout elapses.
func (s *Server) WaitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close drops every connection and shuts the server down.
func (s *Server) Close() {
	s.Drop()
	s.http.Close()
}
