package enginetest

import (
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(s.URL, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() {
		if err := conn.Close(); err != nil {
			t.Logf("Error closing client: %v", err)
		}
	})

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, m, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	return string(m)
}

func TestServerAnswersCommands(t *testing.T) {
	s := NewServer(func(name string, frame []byte) []byte {
		switch name {
		case "GetVersion":
			return Ok(name, "1.0.0")
		case "SetVolume":
			return Err(name, "out of range")
		}
		return nil
	})
	defer s.Close()

	conn := dial(t, s)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`"GetVersion"`)); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if got := readFrame(t, conn); got != `{"GetVersion":{"Ok":"1.0.0"}}` {
		t.Errorf("unexpected reply %s", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"SetVolume":12}`)); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if got := readFrame(t, conn); got != `{"SetVolume":{"Error":"out of range"}}` {
		t.Errorf("unexpected reply %s", got)
	}

	received := s.Received()
	if len(received) != 2 || received[0] != "GetVersion" || received[1] != "SetVolume" {
		t.Errorf("unexpected received commands %v", received)
	}
	if s.Connections() != 1 {
		t.Errorf("expected 1 connection, got %d", s.Connections())
	}
}

func TestServerPush(t *testing.T) {
	s := NewServer(nil)
	defer s.Close()

	conn := dial(t, s)
	if !s.WaitFor(func() bool { return s.Open() == 1 }, 5*time.Second) {
		t.Fatal("Timeout waiting for socket registration")
	}

	s.Push([]byte(`{"StateChanged":"Running"}`))
	if got := readFrame(t, conn); got != `{"StateChanged":"Running"}` {
		t.Errorf("unexpected push %s", got)
	}
}

func TestServerCloseSockets(t *testing.T) {
	s := NewServer(nil)
	defer s.Close()

	conn := dial(t, s)
	if !s.WaitFor(func() bool { return s.Open() == 1 }, 5*time.Second) {
		t.Fatal("Timeout waiting for socket registration")
	}

	s.CloseSockets(websocket.CloseGoingAway, "shutdown")

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()

	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.CloseGoingAway {
		t.Fatalf("expected close error 1001, got %v", err)
	}
	if !s.WaitFor(func() bool { return s.Open() == 0 }, 5*time.Second) {
		t.Error("expected socket to be released")
	}
}

func TestServerDrop(t *testing.T) {
	s := NewServer(nil)
	defer s.Close()

	conn := dial(t, s)
	if !s.WaitFor(func() bool { return s.Open() == 1 }, 5*time.Second) {
		t.Fatal("Timeout waiting for socket registration")
	}

	s.Drop()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, _, err := conn.ReadMessage()

	// No close frame is exchanged, gorilla reports the lost stream as 1006.
	if !websocket.IsCloseError(err, websocket.CloseAbnormalClosure) {
		t.Fatalf("expected abnormal closure 1006, got %v", err)
	}
}

func TestServerRefuse(t *testing.T) {
	s := NewServer(nil)
	defer s.Close()

	s.Refuse(true)
	if _, _, err := websocket.DefaultDialer.Dial(s.URL, nil); !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}

	s.Refuse(false)
	dial(t, s)
	if !s.WaitFor(func() bool { return s.Connections() == 1 }, 5*time.Second) {
		t.Errorf("expected 1 accepted connection, got %d", s.Connections())
	}
}
