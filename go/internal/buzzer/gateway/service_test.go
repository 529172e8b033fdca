package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcdev12/buzzer/go/internal/buzzer"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = 0
	return cfg
}

func startService(t *testing.T, contest *buzzer.Arbiter, cfg Config) *httptest.Server {
	t.Helper()
	svc := NewService(contest, cfg)
	contest.AddListener(svc.Listener())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = svc.Start(ctx)
		close(stopped)
	}()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		<-stopped
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(within))
	var msg Message
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return &msg
}

func TestWebSocket_ObserverLifecycle(t *testing.T) {
	contest := newContest(t, 8)
	srv := startService(t, contest, testConfig())

	ws := dial(t, srv)
	if msg := readMessage(t, ws); msg.Type != MessageTypeSnapshot {
		t.Fatalf("first frame: want snapshot, got %s", msg.Type)
	}

	_, _ = contest.SubmitBuzz(3)
	msg := readMessage(t, ws)
	if p := payloadOf[BuzzInPayload](t, msg); msg.Type != MessageTypeBuzzIn || p.PlayerID != 3 {
		t.Fatalf("want buzz_in for 3, got %s %+v", msg.Type, p)
	}

	if err := ws.WriteJSON(ClientMessage{Type: ClientMessageReset}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMessage(t, ws)
	if msg.Type != MessageTypeReset {
		t.Fatalf("want reset, got %s", msg.Type)
	}
	if contest.CurrentState().Locked {
		t.Fatalf("contest should be armed after observer reset")
	}
}

func TestWebSocket_LateJoinerSeesLock(t *testing.T) {
	contest := newContest(t, 8)
	srv := startService(t, contest, testConfig())

	early := dial(t, srv)
	readMessage(t, early)
	_, _ = contest.SubmitBuzz(2)
	readMessage(t, early)

	late := dial(t, srv)
	msg := readMessage(t, late)
	snap := payloadOf[SnapshotPayload](t, msg)
	if w, ok := snap.State.WinnerID(); msg.Type != MessageTypeSnapshot || !ok || w != 2 {
		t.Fatalf("late joiner: want locked snapshot for 2, got %s %+v", msg.Type, snap.State)
	}
}

func TestWebSocket_ResetRequiresToken(t *testing.T) {
	contest := newContest(t, 4)
	cfg := testConfig()
	cfg.ResetPolicy = ResetPolicy{Mode: ResetToken, Token: "quizmaster"}
	srv := startService(t, contest, cfg)

	ws := dial(t, srv)
	readMessage(t, ws)
	_, _ = contest.SubmitBuzz(1)
	readMessage(t, ws)

	_ = ws.WriteJSON(ClientMessage{Type: ClientMessageReset})
	msg := readMessage(t, ws)
	if p := payloadOf[ErrorPayload](t, msg); p.Code != ErrorCodeUnauthorized {
		t.Fatalf("want unauthorized, got %+v", p)
	}

	_ = ws.WriteJSON(ClientMessage{Type: ClientMessageReset, Token: "quizmaster"})
	if msg := readMessage(t, ws); msg.Type != MessageTypeReset {
		t.Fatalf("want reset, got %s", msg.Type)
	}
}

func TestWebSocket_SimulatedPress(t *testing.T) {
	player := buzzer.PlayerID(5)

	t.Run("enabled", func(t *testing.T) {
		contest := newContest(t, 8)
		cfg := testConfig()
		cfg.ConnectionConfig.AllowSimulatedPress = true
		srv := startService(t, contest, cfg)

		ws := dial(t, srv)
		readMessage(t, ws)
		_ = ws.WriteJSON(ClientMessage{Type: ClientMessageBuzz, Player: &player})

		msg := readMessage(t, ws)
		if p := payloadOf[BuzzInPayload](t, msg); p.PlayerID != player {
			t.Fatalf("want buzz_in for %d, got %+v", player, p)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		contest := newContest(t, 8)
		srv := startService(t, contest, testConfig())

		ws := dial(t, srv)
		readMessage(t, ws)
		_ = ws.WriteJSON(ClientMessage{Type: ClientMessageBuzz, Player: &player})

		msg := readMessage(t, ws)
		if p := payloadOf[ErrorPayload](t, msg); p.Code != ErrorCodeBadRequest {
			t.Fatalf("want bad_request, got %+v", p)
		}
		if contest.CurrentState().Locked {
			t.Fatalf("disabled simulated press must not lock")
		}
	})
}

func TestWebSocket_MalformedClientMessage(t *testing.T) {
	contest := newContest(t, 2)
	srv := startService(t, contest, testConfig())

	ws := dial(t, srv)
	readMessage(t, ws)
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if p := payloadOf[ErrorPayload](t, readMessage(t, ws)); p.Code != ErrorCodeBadRequest {
		t.Fatalf("want bad_request, got %+v", p)
	}
}

func TestHTTPReset_ReachesObservers(t *testing.T) {
	contest := newContest(t, 8)
	srv := startService(t, contest, testConfig())

	ws := dial(t, srv)
	readMessage(t, ws)
	_, _ = contest.SubmitBuzz(3)
	readMessage(t, ws)

	resp, err := http.Post(srv.URL+"/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /reset: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var body ResetResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.State.Locked {
		t.Fatalf("unexpected reset response %+v", body)
	}

	if msg := readMessage(t, ws); msg.Type != MessageTypeReset {
		t.Fatalf("want reset broadcast, got %s", msg.Type)
	}
}

func TestConnectionStatsEndpoint(t *testing.T) {
	contest := newContest(t, 2)
	srv := startService(t, contest, testConfig())

	ws := dial(t, srv)
	readMessage(t, ws)

	resp, err := http.Get(srv.URL + "/ws/stats")
	if err != nil {
		t.Fatalf("GET /ws/stats: %v", err)
	}
	defer resp.Body.Close()

	var stats ConnectionStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.ActiveConnections != 1 || stats.MessagesSent < 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
