package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ernie/swarm-arena/internal/arena"
	"github.com/ernie/swarm-arena/internal/command"
	"github.com/ernie/swarm-arena/internal/engine"
	"github.com/ernie/swarm-arena/internal/session"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxMessage   = 512
	outboundSize = 32
)

// Battle socket message types
const (
	MsgConnected     = "connected"
	MsgCommandResult = "command_result"
	MsgGameState     = "game_state"
	MsgBattleEnd     = "battle_end"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// SocketMessage is every server-to-client frame on a battle socket
type SocketMessage struct {
	Type     string              `json:"type"`
	BattleID string              `json:"battle_id,omitempty"`
	Identity string              `json:"identity,omitempty"`
	Entity   *engine.EntityState `json:"entity,omitempty"`
	State    *engine.Snapshot    `json:"state,omitempty"`
	Result   *session.Result     `json:"result,omitempty"`
	Winner   string              `json:"winner,omitempty"`
	Replay   *arena.Replay       `json:"replay,omitempty"`
}

// battleClient is one websocket attached to a battle. Spectators have no
// player and cannot send commands.
type battleClient struct {
	conn       *websocket.Conn
	battle     *arena.Session
	player     *session.Player
	observerID string
	snapshots  <-chan engine.Snapshot
	send       chan SocketMessage
	done       chan struct{}
	limiter    *rate.Limiter
	log        *zap.Logger
}

// handleBattleSocket upgrades to a websocket that streams battle state and,
// for authenticated callers, accepts commands for their entity
func (r *Router) handleBattleSocket(w http.ResponseWriter, req *http.Request) {
	battle, ok := r.Arenas.Get(chi.URLParam(req, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "battle not found")
		return
	}
	claims := r.getAuthClaims(req)

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &battleClient{
		conn:       conn,
		battle:     battle,
		observerID: uuid.NewString(),
		send:       make(chan SocketMessage, outboundSize),
		done:       make(chan struct{}),
		limiter:    rate.NewLimiter(rate.Limit(r.CommandRate), r.CommandBurst),
		log:        r.Logger.With(zap.String("battle_id", battle.ID()), zap.String("remote", req.RemoteAddr)),
	}

	hello := SocketMessage{Type: MsgConnected, BattleID: battle.ID()}
	if claims != nil {
		c.player = r.Sessions.Create(battle, claims.Identity, battle.PlayerEntity())
		battle.Attach(c.player)
		hello.Identity = claims.Identity
		hello.Entity = entityState(battle.State(), c.player.Entity().ID())
	}
	c.send <- hello
	c.snapshots = battle.AddObserver(c.observerID)
	c.log.Info("battle socket connected", zap.Bool("player", c.player != nil))

	go c.writePump()
	go c.readPump(r.Sessions)
}

func entityState(snap engine.Snapshot, id string) *engine.EntityState {
	for i := range snap.Entities {
		if snap.Entities[i].ID == id {
			e := snap.Entities[i]
			return &e
		}
	}
	return nil
}

// readPump decodes commands and stages them for the next tick
func (c *battleClient) readPump(sessions *session.Registry) {
	defer func() {
		close(c.done)
		c.battle.RemoveObserver(c.observerID)
		if c.player != nil {
			c.battle.Detach(c.player)
			sessions.Release(c.player)
		}
		c.conn.Close()
		c.log.Info("battle socket disconnected")
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			return
		}
		c.reply(c.intake(data))
	}
}

// intake returns a result to send immediately, or nil when the command was
// staged and its result will arrive from the battle loop
func (c *battleClient) intake(data []byte) *session.Result {
	if c.player == nil {
		return &session.Result{Error: "authentication required"}
	}
	if !c.limiter.Allow() {
		return &session.Result{Error: "rate limited"}
	}
	cmd, err := command.Decode(data)
	if err != nil {
		res := session.InvalidCommand()
		return &res
	}
	if !c.player.Offer(cmd) {
		res := session.InvalidCommand()
		return &res
	}
	return nil
}

func (c *battleClient) reply(res *session.Result) {
	if res == nil {
		return
	}
	select {
	case c.send <- SocketMessage{Type: MsgCommandResult, Result: res}:
	default:
		c.log.Debug("outbound buffer full, dropping reply")
	}
}

// writePump owns all writes to the connection
func (c *battleClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	var replies <-chan session.Result
	if c.player != nil {
		replies = c.player.Replies()
	}
	var last engine.Snapshot

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}

		case res := <-replies:
			if err := c.write(SocketMessage{Type: MsgCommandResult, Result: &res}); err != nil {
				return
			}

		case snap, ok := <-c.snapshots:
			if !ok {
				c.finish(last)
				return
			}
			last = snap
			if err := c.write(SocketMessage{Type: MsgGameState, State: &snap}); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// finish sends battle_end when the battle has a winner, then closes
func (c *battleClient) finish(last engine.Snapshot) {
	if last.Winner != "" {
		replay := c.battle.Replay()
		c.write(SocketMessage{Type: MsgBattleEnd, BattleID: c.battle.ID(), Winner: last.Winner, Replay: &replay})
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *battleClient) write(msg SocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshaling socket message", zap.Error(err))
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
