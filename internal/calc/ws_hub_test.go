package calc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aegis/hedge-engine/internal/calc"
	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/session"
)

func dialHub(t *testing.T) *websocket.Conn {
	t.Helper()
	svc := calc.NewService(nil, nil, nil)
	hub := calc.NewWSHub(nil, session.CalculatorFunc(svc.Solve), []string{"http://localhost:5173"})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) calc.WSState {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg calc.WSState
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading state: %v", err)
	}
	return msg
}

// readUntilSettled reads states until one is no longer pending.
func readUntilSettled(t *testing.T, conn *websocket.Conn) calc.WSState {
	t.Helper()
	for i := 0; i < 5; i++ {
		msg := readState(t, conn)
		if !msg.Pending {
			return msg
		}
	}
	t.Fatal("state never settled")
	return calc.WSState{}
}

func TestWS_InitialState(t *testing.T) {
	conn := dialHub(t)

	msg := readState(t, conn)
	if msg.Type != calc.MsgState {
		t.Errorf("expected state message, got %q", msg.Type)
	}
	if msg.Result != nil || msg.Pending {
		t.Errorf("fresh session should have no result, got %+v", msg)
	}
	if len(msg.Points) != 21 || msg.Points[0].Contracts != -10 {
		t.Errorf("expected curve centered on zero, got %+v", msg.Points)
	}
	if msg.Fields != session.DefaultFields {
		t.Errorf("expected default fields, got %+v", msg.Fields)
	}
}

func TestWS_SolveRecentersCurve(t *testing.T) {
	conn := dialHub(t)
	readState(t, conn)

	if err := conn.WriteJSON(calc.WSRequest{Type: calc.MsgSolve, Seq: 1}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msg := readUntilSettled(t, conn)
	if msg.Seq != 1 {
		t.Errorf("expected seq 1, got %d", msg.Seq)
	}
	if msg.Result == nil || msg.Result.Action != model.ActionShort {
		t.Fatalf("expected SHORT result, got %+v", msg.Result)
	}
	if len(msg.Points) != 21 || msg.Points[0].Contracts != -14 {
		t.Errorf("expected curve -14..6, got %+v", msg.Points)
	}
}

func TestWS_UpdateThenSolveError(t *testing.T) {
	conn := dialHub(t)
	readState(t, conn)

	conn.WriteJSON(calc.WSRequest{Type: calc.MsgUpdate, Seq: 1, Fields: map[string]string{"index_price": "0"}})
	msg := readState(t, conn)
	if msg.Fields.IndexPrice != "0" {
		t.Errorf("update not applied: %+v", msg.Fields)
	}
	if len(msg.Points) != 0 {
		t.Errorf("invalid fields should yield no curve, got %d points", len(msg.Points))
	}

	conn.WriteJSON(calc.WSRequest{Type: calc.MsgSolve, Seq: 2})
	msg = readUntilSettled(t, conn)
	if msg.Result != nil {
		t.Errorf("expected no result, got %+v", msg.Result)
	}
	if !strings.Contains(msg.Error, "index_price") {
		t.Errorf("error should name index_price, got %q", msg.Error)
	}
}

func TestWS_UnknownFieldAndType(t *testing.T) {
	conn := dialHub(t)
	readState(t, conn)

	conn.WriteJSON(calc.WSRequest{Type: calc.MsgUpdate, Seq: 1, Fields: map[string]string{"leverage": "3"}})
	if msg := readState(t, conn); !strings.Contains(msg.Error, "unknown field") {
		t.Errorf("expected unknown field error, got %q", msg.Error)
	}

	conn.WriteJSON(calc.WSRequest{Type: "explode", Seq: 2})
	if msg := readState(t, conn); !strings.Contains(msg.Error, "unknown message type") {
		t.Errorf("expected unknown type error, got %q", msg.Error)
	}
}

func TestWS_RejectsForeignOrigin(t *testing.T) {
	hub := calc.NewWSHub(nil, session.Local, []string{"http://localhost:5173"})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("expected handshake to fail for foreign origin")
	}
}
