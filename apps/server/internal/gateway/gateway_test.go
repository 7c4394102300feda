package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/types/known/structpb"

	"agent-arena/apps/server/internal/bout"
	"agent-arena/apps/server/internal/codec"
	"agent-arena/apps/server/internal/lobby"
	"agent-arena/arena"
	"agent-arena/market"
	"agent-arena/roster"
)

func newTestServer(t *testing.T, origins []string) (*Gateway, *lobby.Lobby, *httptest.Server) {
	t.Helper()
	feed := market.NewFeed(3)
	reg, err := arena.NewRegistry(arena.Config{Seed: 5}, arena.WithMarketFeed(feed))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	lby := lobby.New(reg, roster.NewDefaultRegistry(), feed, nil, bout.Config{Interval: time.Millisecond, MaxRounds: 500})
	gw := New(lby, origins)
	lby.SetPublisher(gw)

	srv := httptest.NewServer(http.HandlerFunc(gw.HandleWebSocket))
	t.Cleanup(func() {
		gw.Close()
		srv.Close()
		lby.Close()
	})
	return gw, lby, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg codec.ClientEnvelope, format codec.Format) {
	t.Helper()
	data, err := codec.EncodeClient(msg, format)
	if err != nil {
		t.Fatalf("EncodeClient: %v", err)
	}
	mt := websocket.TextMessage
	if format == codec.FormatBinary {
		mt = websocket.BinaryMessage
	}
	if err := conn.WriteMessage(mt, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn, format codec.Format) *structpb.Struct {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	env, err := codec.Unmarshal(data, format)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return env
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, format codec.Format, want string) *structpb.Struct {
	t.Helper()
	for i := 0; i < 1000; i++ {
		env := read(t, conn, format)
		if codec.EnvelopeType(env) == want {
			return env
		}
	}
	t.Fatalf("no %s frame", want)
	return nil
}

func TestPing(t *testing.T) {
	_, _, srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, codec.ClientEnvelope{Type: codec.ClientPing}, codec.FormatText)
	if got := codec.EnvelopeType(read(t, conn, codec.FormatText)); got != codec.TypePong {
		t.Fatalf("reply = %s, want pong", got)
	}
}

func TestCreateAndAdvance_Text(t *testing.T) {
	gw, _, srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, codec.ClientEnvelope{Type: codec.ClientCreateBattle, Agent1ID: "tyler-durden", Agent2ID: "marla-singer"}, codec.FormatText)

	created := read(t, conn, codec.FormatText)
	if codec.EnvelopeType(created) != codec.TypeBattleCreated {
		t.Fatalf("first frame = %s", codec.EnvelopeType(created))
	}
	sub := read(t, conn, codec.FormatText)
	if codec.EnvelopeType(sub) != codec.TypeSubscribed {
		t.Fatalf("second frame = %s", codec.EnvelopeType(sub))
	}
	battleID := codec.EnvelopeBattleID(sub)
	if codec.EnvelopeBattleID(created) != battleID {
		t.Fatalf("announced %s, subscribed to %s", codec.EnvelopeBattleID(created), battleID)
	}
	snapEnv := read(t, conn, codec.FormatText)
	var snap arena.BattleSnapshot
	if err := codec.DecodePayload(snapEnv, &snap); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if snap.ID != battleID || snap.RoundNumber != 0 {
		t.Fatalf("snapshot = %s round %d", snap.ID, snap.RoundNumber)
	}

	send(t, conn, codec.ClientEnvelope{Type: codec.ClientAdvanceRound, BattleID: battleID}, codec.FormatText)
	round, err := codec.DecodeRoundResult(read(t, conn, codec.FormatText))
	if err != nil {
		t.Fatalf("DecodeRoundResult: %v", err)
	}
	if round.Round != 1 {
		t.Fatalf("round = %d", round.Round)
	}
	if s := gw.Stats(); s.Connections != 1 || s.Battles != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestAutoplay_Binary(t *testing.T) {
	_, lby, srv := newTestServer(t, nil)
	conn := dial(t, srv, "?format=binary")

	send(t, conn, codec.ClientEnvelope{
		Type:     codec.ClientCreateBattle,
		Agent1ID: "angel-face",
		Agent2:   &arena.AgentDescriptor{ID: "guest", Name: "Guest", Type: "stablecoin"},
		Autoplay: true,
	}, codec.FormatBinary)

	end := readUntil(t, conn, codec.FormatBinary, codec.TypeBattleEnd)
	var payload codec.BattleEnd
	if err := codec.DecodePayload(end, &payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	snap, err := lby.GetBattle(codec.EnvelopeBattleID(end))
	if err != nil {
		t.Fatalf("GetBattle: %v", err)
	}
	if snap.Status != arena.StatusCompleted || payload.WinnerSide != snap.WinnerSide {
		t.Fatalf("end payload %+v vs snapshot %s/%d", payload, snap.Status, snap.WinnerSide)
	}
	if codec.EnvelopeSeq(end) != uint64(snap.RoundNumber)+2 {
		t.Fatalf("end seq = %d, rounds = %d", codec.EnvelopeSeq(end), snap.RoundNumber)
	}
}

func TestSubscribe_Errors(t *testing.T) {
	_, lby, srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	send(t, conn, codec.ClientEnvelope{Type: codec.ClientSubscribe, BattleID: "missing"}, codec.FormatText)
	var resp codec.ErrorResponse
	if err := codec.DecodePayload(readUntil(t, conn, codec.FormatText, codec.TypeError), &resp); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if resp.Code != CodeNotFound {
		t.Fatalf("code = %s", resp.Code)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"battleId":"x"}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := codec.DecodePayload(readUntil(t, conn, codec.FormatText, codec.TypeError), &resp); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if resp.Code != CodeBadRequest {
		t.Fatalf("code = %s", resp.Code)
	}

	snap, err := lby.CreateBattle(lobby.CreateRequest{Agent1ID: "tyler-durden", Agent2ID: "marla-singer"})
	if err != nil {
		t.Fatalf("CreateBattle: %v", err)
	}
	for i := 0; i < 200; i++ {
		r, err := lby.Advance(snap.ID)
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if r.Agent1Health == 0 || r.Agent2Health == 0 {
			break
		}
	}
	send(t, conn, codec.ClientEnvelope{Type: codec.ClientAdvanceRound, BattleID: snap.ID}, codec.FormatText)
	if err := codec.DecodePayload(readUntil(t, conn, codec.FormatText, codec.TypeError), &resp); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if resp.Code != CodeInvalidState {
		t.Fatalf("code = %s", resp.Code)
	}
}

func TestSubscribeViaQuery_ThenUnsubscribe(t *testing.T) {
	gw, lby, srv := newTestServer(t, nil)
	snap, err := lby.CreateBattle(lobby.CreateRequest{Agent1ID: "tyler-durden", Agent2ID: "robert-paulson"})
	if err != nil {
		t.Fatalf("CreateBattle: %v", err)
	}

	conn := dial(t, srv, "?battleId="+snap.ID)
	readUntil(t, conn, codec.FormatText, codec.TypeBattleSnapshot)

	if _, err := lby.Advance(snap.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := codec.EnvelopeSeq(readUntil(t, conn, codec.FormatText, codec.TypeRoundResult)); got != 2 {
		t.Fatalf("round seq = %d", got)
	}

	send(t, conn, codec.ClientEnvelope{Type: codec.ClientUnsubscribe, BattleID: snap.ID}, codec.FormatText)
	readUntil(t, conn, codec.FormatText, codec.TypeUnsubscribed)
	if s := gw.Stats(); s.Battles != 0 {
		t.Fatalf("watched battles = %d", s.Battles)
	}
}

func TestOriginCheck(t *testing.T) {
	_, _, srv := newTestServer(t, []string{"https://arena.example.com/"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("foreign origin accepted")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin: resp=%v err=%v", resp, err)
	}

	header = http.Header{"Origin": []string{"https://ARENA.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	conn.Close()
}

func TestSendTo(t *testing.T) {
	gw, _, srv := newTestServer(t, nil)
	conn := dial(t, srv, "")

	// A pong proves the connection is registered.
	send(t, conn, codec.ClientEnvelope{Type: codec.ClientPing}, codec.FormatText)
	read(t, conn, codec.FormatText)

	if !gw.SendTo("conn_1", codec.ErrorEnvelope("", CodeInternal, "direct")) {
		t.Fatal("SendTo conn_1 = false")
	}
	var resp codec.ErrorResponse
	if err := codec.DecodePayload(read(t, conn, codec.FormatText), &resp); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if resp.Message != "direct" {
		t.Fatalf("message = %q", resp.Message)
	}
	if gw.SendTo("conn_404", codec.PongEnvelope()) {
		t.Fatal("SendTo unknown connection = true")
	}
}

func TestBattleCreated_ReachesEveryConnection(t *testing.T) {
	gw, lby, srv := newTestServer(t, nil)
	text := dial(t, srv, "")
	binary := dial(t, srv, "?format=binary")

	// A pong on each proves both connections are registered.
	send(t, text, codec.ClientEnvelope{Type: codec.ClientPing}, codec.FormatText)
	read(t, text, codec.FormatText)
	send(t, binary, codec.ClientEnvelope{Type: codec.ClientPing}, codec.FormatBinary)
	read(t, binary, codec.FormatBinary)

	snap, err := lby.CreateBattle(lobby.CreateRequest{Agent1ID: "marla-singer", Agent2ID: "angel-face"})
	if err != nil {
		t.Fatalf("CreateBattle: %v", err)
	}
	for _, c := range []struct {
		conn   *websocket.Conn
		format codec.Format
	}{{text, codec.FormatText}, {binary, codec.FormatBinary}} {
		env := read(t, c.conn, c.format)
		if codec.EnvelopeType(env) != codec.TypeBattleCreated || codec.EnvelopeBattleID(env) != snap.ID {
			t.Fatalf("%s: got %s for %s", c.format, codec.EnvelopeType(env), codec.EnvelopeBattleID(env))
		}
		var payload codec.BattleCreated
		if err := codec.DecodePayload(env, &payload); err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if payload.Agent1.AgentID != "marla-singer" || payload.Agent2.AgentID != "angel-face" {
			t.Fatalf("payload = %+v", payload)
		}
	}
	if s := gw.Stats(); s.Battles != 0 {
		t.Fatalf("announcement created subscriptions: %+v", s)
	}
}

func TestSubscribe_MissingBattleLeavesNoWatcher(t *testing.T) {
	gw, _, srv := newTestServer(t, nil)
	conn := dial(t, srv, "?battleId=missing")

	env := read(t, conn, codec.FormatText)
	if codec.EnvelopeType(env) != codec.TypeError {
		t.Fatalf("first frame = %s, want error", codec.EnvelopeType(env))
	}
	if s := gw.Stats(); s.Battles != 0 {
		t.Fatalf("watched battles = %d", s.Battles)
	}
}

func TestSubscribe_DuringAutoplayMissesNoRound(t *testing.T) {
	_, lby, srv := newTestServer(t, nil)
	snap, err := lby.CreateBattle(lobby.CreateRequest{Agent1ID: "robert-paulson", Agent2ID: "tyler-durden"})
	if err != nil {
		t.Fatalf("CreateBattle: %v", err)
	}
	if err := lby.StartAutoplay(snap.ID); err != nil {
		t.Fatalf("StartAutoplay: %v", err)
	}

	conn := dial(t, srv, "?battleId="+snap.ID)
	if got := codec.EnvelopeType(read(t, conn, codec.FormatText)); got != codec.TypeSubscribed {
		t.Fatalf("first frame = %s, want subscribed", got)
	}

	catchUp := readUntil(t, conn, codec.FormatText, codec.TypeBattleSnapshot)
	var current arena.BattleSnapshot
	if err := codec.DecodePayload(catchUp, &current); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if current.Status == arena.StatusCompleted {
		return
	}

	next := codec.EnvelopeSeq(catchUp) + 1
	for {
		env := read(t, conn, codec.FormatText)
		seq := codec.EnvelopeSeq(env)
		if seq != next {
			t.Fatalf("%s seq = %d, want %d", codec.EnvelopeType(env), seq, next)
		}
		if codec.EnvelopeType(env) == codec.TypeBattleEnd {
			return
		}
		next++
	}
}
