package gateway

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/types/known/structpb"

	"agent-arena/apps/server/internal/codec"
	"agent-arena/apps/server/internal/lobby"
	"agent-arena/arena"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 65536
	sendBuffer     = 256
)

// Error codes carried in error envelopes.
const (
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeInvalidInput = "invalid_input"
	CodeInvalidState = "invalid_state"
	CodeInternal     = "internal"
)

// Connection represents a WebSocket spectator.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Format  codec.Format
	Gateway *Gateway
}

// Gateway manages WebSocket connections and battle subscriptions.
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	subscribers map[string]map[*Connection]struct{} // battleID -> connections
	nextConnID  uint64
	dropped     atomic.Uint64

	lobby    *lobby.Lobby
	upgrader websocket.Upgrader
}

// New creates a gateway. An empty origin list accepts any origin.
func New(lby *lobby.Lobby, allowedOrigins []string) *Gateway {
	g := &Gateway{
		connections: make(map[string]*Connection),
		subscribers: make(map[string]map[*Connection]struct{}),
		lobby:       lby,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return g
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// HandleWebSocket upgrades the request. ?format=binary selects protobuf
// frames; JSON text frames are the default.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	format := codec.FormatText
	if strings.EqualFold(r.URL.Query().Get("format"), "binary") {
		format = codec.FormatBinary
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	g.mu.Lock()
	g.nextConnID++
	c := &Connection{
		ID:      fmt.Sprintf("conn_%d", g.nextConnID),
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		Format:  format,
		Gateway: g,
	}
	g.connections[c.ID] = c
	total := len(g.connections)
	g.mu.Unlock()

	log.Printf("[Gateway] Client connected: %s (%s), total: %d", c.ID, format, total)

	go c.readPump()
	go c.writePump()

	if battleID := strings.TrimSpace(r.URL.Query().Get("battleId")); battleID != "" {
		c.subscribe(battleID)
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}

		format := codec.FormatText
		if messageType == websocket.BinaryMessage {
			format = codec.FormatBinary
		}
		c.handleMessage(message, format)
	}
}

func (c *Connection) handleMessage(data []byte, format codec.Format) {
	msg, err := codec.DecodeClient(data, format)
	if err != nil {
		log.Printf("[Gateway] %s: bad frame: %v", c.ID, err)
		c.sendError("", CodeBadRequest, "invalid message format")
		return
	}

	switch msg.Type {
	case codec.ClientSubscribe:
		c.subscribe(msg.BattleID)
	case codec.ClientUnsubscribe:
		c.unsubscribe(msg.BattleID)
	case codec.ClientCreateBattle:
		c.handleCreateBattle(msg)
	case codec.ClientAdvanceRound:
		if _, err := c.Gateway.lobby.Advance(msg.BattleID); err != nil {
			c.sendLobbyError(msg.BattleID, err)
		}
	case codec.ClientPing:
		c.sendEnvelope(codec.PongEnvelope())
	default:
		log.Printf("[Gateway] %s: unknown message type %q", c.ID, msg.Type)
		c.sendError(msg.BattleID, CodeBadRequest, "unknown message type "+msg.Type)
	}
}

func (c *Connection) handleCreateBattle(msg codec.ClientEnvelope) {
	// Autoplay starts after the creator is subscribed so no round is missed.
	snap, err := c.Gateway.lobby.CreateBattle(lobby.CreateRequest{
		Agent1ID: msg.Agent1ID,
		Agent2ID: msg.Agent2ID,
		Agent1:   msg.Agent1,
		Agent2:   msg.Agent2,
		ArenaID:  msg.ArenaID,
	})
	if err != nil {
		c.sendLobbyError("", err)
		return
	}
	c.subscribe(snap.ID)
	if msg.Autoplay {
		if err := c.Gateway.lobby.StartAutoplay(snap.ID); err != nil {
			c.sendLobbyError(snap.ID, err)
		}
	}
}

// subscribe registers interest in a battle and replies with its current
// snapshot so late joiners can render the state. The connection is
// registered before the snapshot is read, so every round after the
// snapshot reaches it.
func (c *Connection) subscribe(battleID string) {
	battleID = strings.TrimSpace(battleID)
	if battleID == "" {
		c.sendError("", CodeBadRequest, "battleId is required")
		return
	}
	if _, err := c.Gateway.lobby.GetBattle(battleID); err != nil {
		c.sendLobbyError(battleID, err)
		return
	}
	ack, err := codec.Marshal(codec.SubscribedEnvelope(battleID, true), c.Format)
	if err != nil {
		c.sendError(battleID, CodeInternal, err.Error())
		return
	}

	g := c.Gateway
	g.mu.Lock()
	if _, live := g.connections[c.ID]; !live {
		g.mu.Unlock()
		return
	}
	subs := g.subscribers[battleID]
	if subs == nil {
		subs = make(map[*Connection]struct{})
		g.subscribers[battleID] = subs
	}
	subs[c] = struct{}{}
	// The ack is queued under the lock so it precedes any published round.
	select {
	case c.Send <- ack:
	default:
		g.dropped.Add(1)
	}
	g.mu.Unlock()

	snap, err := g.lobby.GetBattle(battleID)
	if err != nil {
		g.detach(c, battleID)
		c.sendLobbyError(battleID, err)
		return
	}
	env, err := codec.BattleSnapshotEnvelope(uint64(snap.RoundNumber)+1, snap)
	if err != nil {
		c.sendError(battleID, CodeInternal, err.Error())
		return
	}
	c.sendEnvelope(env)
}

func (c *Connection) unsubscribe(battleID string) {
	c.Gateway.detach(c, battleID)
	c.sendEnvelope(codec.SubscribedEnvelope(battleID, false))
}

func (g *Gateway) detach(c *Connection, battleID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if subs := g.subscribers[battleID]; subs != nil {
		delete(subs, c)
		if len(subs) == 0 {
			delete(g.subscribers, battleID)
		}
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, arena.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, arena.ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, arena.ErrInvalidState):
		return CodeInvalidState
	default:
		return CodeInternal
	}
}

func (c *Connection) sendLobbyError(battleID string, err error) {
	c.sendError(battleID, errorCode(err), err.Error())
}

func (c *Connection) sendError(battleID, code, msg string) {
	c.sendEnvelope(codec.ErrorEnvelope(battleID, code, msg))
}

func (c *Connection) sendEnvelope(env *structpb.Struct) {
	c.Gateway.SendTo(c.ID, env)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	msgType := websocket.TextMessage
	if c.Format == codec.FormatBinary {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(msgType, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	for id, set := range g.subscribers {
		delete(set, c)
		if len(set) == 0 {
			delete(g.subscribers, id)
		}
	}
	if _, ok := g.connections[c.ID]; ok {
		delete(g.connections, c.ID)
		close(c.Send)
	}
	total := len(g.connections)
	g.mu.Unlock()
	log.Printf("[Gateway] Client disconnected: %s, total: %d", c.ID, total)
}

// Publish implements lobby.Publisher. The envelope is encoded at most once
// per wire format.
func (g *Gateway) Publish(battleID string, env *structpb.Struct) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	subs := g.subscribers[battleID]
	if len(subs) == 0 {
		return
	}

	var frames [2][]byte
	for c := range subs {
		if frames[c.Format] == nil {
			data, err := codec.Marshal(env, c.Format)
			if err != nil {
				log.Printf("[Gateway] Marshal %s for %s failed: %v", codec.EnvelopeType(env), battleID, err)
				return
			}
			frames[c.Format] = data
		}
		select {
		case c.Send <- frames[c.Format]:
		default:
			g.dropped.Add(1)
		}
	}
}

// SendTo delivers an envelope to one connection, dropping it when the
// client is not keeping up. It reports false when the connection is gone or
// the frame was dropped. Send is only closed under the write lock, so
// holding the read lock keeps the channel open.
func (g *Gateway) SendTo(connID string, env *structpb.Struct) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := g.connections[connID]
	if c == nil {
		return false
	}
	data, err := codec.Marshal(env, c.Format)
	if err != nil {
		log.Printf("[Gateway] Marshal %s for %s failed: %v", codec.EnvelopeType(env), connID, err)
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		g.dropped.Add(1)
		return false
	}
}

// Broadcast implements lobby.Publisher for announcements that go to every
// connection.
func (g *Gateway) Broadcast(env *structpb.Struct) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var frames [2][]byte
	for _, c := range g.connections {
		if frames[c.Format] == nil {
			data, err := codec.Marshal(env, c.Format)
			if err != nil {
				log.Printf("[Gateway] Broadcast marshal failed: %v", err)
				return
			}
			frames[c.Format] = data
		}
		select {
		case c.Send <- frames[c.Format]:
		default:
			g.dropped.Add(1)
		}
	}
}

type Stats struct {
	Connections int    `json:"connections"`
	Battles     int    `json:"watchedBattles"`
	Dropped     uint64 `json:"droppedFrames"`
}

func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	s := Stats{Connections: len(g.connections), Battles: len(g.subscribers)}
	g.mu.RUnlock()
	s.Dropped = g.dropped.Load()
	return s
}

// Close disconnects every client.
func (g *Gateway) Close() {
	g.mu.RLock()
	conns := make([]*Connection, 0, len(g.connections))
	for _, c := range g.connections {
		conns = append(conns, c)
	}
	g.mu.RUnlock()
	for _, c := range conns {
		c.Conn.Close()
	}
}

var _ lobby.Publisher = (*Gateway)(nil)
