// Package server exposes the game controller over HTTP and WebSocket:
// commands in through POST /commands, events out through GET /ws, with
// snapshot and progression reads alongside.
package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/trashgame/trash-server-go/internal/game"
	"github.com/trashgame/trash-server-go/internal/game/progression"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 64
	maxCommandBody = 1 << 16
)

// Gateway bridges the controller's event bus to WebSocket clients and
// accepts commands over HTTP. Events are fanned out through per-client
// buffered channels; a client that cannot keep up is dropped rather than
// allowed to stall the bus.
type Gateway struct {
	log      *zap.Logger
	ctrl     *game.Controller
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]bool
	handle  int
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewGateway builds a gateway and subscribes it to the controller's bus.
func NewGateway(ctrl *game.Controller, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		log:  log,
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
	}
	g.handle = ctrl.Bus().Subscribe(g.broadcast)
	return g
}

// Close unsubscribes from the bus and disconnects all clients.
func (g *Gateway) Close() {
	g.ctrl.Bus().Unsubscribe(g.handle)
	g.mu.Lock()
	for c := range g.clients {
		close(c.send)
		delete(g.clients, c)
	}
	g.mu.Unlock()
}

// Router builds the HTTP surface.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", g.handleHealth)
	r.Get("/state", g.handleState)
	r.Get("/nodes", g.handleNodes)
	r.Get("/progress/{playerID}", g.handleProgress)
	r.Post("/progress/{playerID}/sell", g.handleSellNode)
	r.Post("/commands", g.handleCommand)
	r.Get("/ws", g.handleWS)
	return r
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.ctrl.CurrentState())
}

func (g *Gateway) handleNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.ctrl.Registry().Nodes())
}

func (g *Gateway) handleProgress(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "player id is required")
		return
	}
	writeJSON(w, http.StatusOK, g.ctrl.ProgressFor(playerID))
}

func (g *Gateway) handleSellNode(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	var req struct {
		NodeID    string                `json:"nodeId"`
		PointType progression.PointType `json:"pointType"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	res, rej := g.ctrl.SellNode(r.Context(), playerID, req.NodeID, req.PointType)
	if rej != nil {
		writeJSON(w, http.StatusConflict, rej)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// commandEnvelope is the wire form of a submitted command: a kind tag
// plus the union of all command payload fields.
type commandEnvelope struct {
	Kind game.CommandKind `json:"kind"`

	PlayerCount int      `json:"playerCount,omitempty"`
	PlayerNames []string `json:"playerNames,omitempty"`
	IsAI        []bool   `json:"isAI,omitempty"`

	PlayerID  string `json:"playerId,omitempty"`
	FromPile  string `json:"fromPile,omitempty"`
	CardID    string `json:"cardId,omitempty"`
	SlotIndex int    `json:"slotIndex"`
	Reason    string `json:"reason,omitempty"`

	KeepPlayers bool   `json:"keepPlayers,omitempty"`
	SaveID      string `json:"saveId,omitempty"`

	NodeID         string                `json:"nodeId,omitempty"`
	PointType      progression.PointType `json:"pointType,omitempty"`
	AbilityID      string                `json:"abilityId,omitempty"`
	TargetCardIDs  []string              `json:"targetCardIds,omitempty"`
	TargetPlayerID string                `json:"targetPlayerId,omitempty"`
}

// toCommand maps the envelope to a typed command. Unknown kinds are the
// caller's error; rejection of semantically bad commands stays with the
// validator.
func (e commandEnvelope) toCommand() (game.Command, bool) {
	meta := game.NewMeta()
	switch e.Kind {
	case game.KindInitializeGame:
		return game.InitializeGame{CommandMeta: meta, PlayerCount: e.PlayerCount, PlayerNames: e.PlayerNames, IsAI: e.IsAI}, true
	case game.KindStartGame:
		return game.StartGame{CommandMeta: meta}, true
	case game.KindDrawCard:
		return game.DrawCard{CommandMeta: meta, PlayerID: e.PlayerID, FromPile: e.FromPile}, true
	case game.KindPlaceCard:
		return game.PlaceCard{CommandMeta: meta, PlayerID: e.PlayerID, CardID: e.CardID, SlotIndex: e.SlotIndex}, true
	case game.KindDiscardCard:
		return game.DiscardCard{CommandMeta: meta, PlayerID: e.PlayerID, CardID: e.CardID}, true
	case game.KindFlipCard:
		return game.FlipCard{CommandMeta: meta, PlayerID: e.PlayerID, SlotIndex: e.SlotIndex}, true
	case game.KindEndTurn:
		return game.EndTurn{CommandMeta: meta, PlayerID: e.PlayerID}, true
	case game.KindSkipTurn:
		return game.SkipTurn{CommandMeta: meta, PlayerID: e.PlayerID, Reason: e.Reason}, true
	case game.KindPauseGame:
		return game.PauseGame{CommandMeta: meta}, true
	case game.KindResumeGame:
		return game.ResumeGame{CommandMeta: meta}, true
	case game.KindEndGame:
		return game.EndGame{CommandMeta: meta, Reason: e.Reason}, true
	case game.KindResetGame:
		return game.ResetGame{CommandMeta: meta, KeepPlayers: e.KeepPlayers}, true
	case game.KindSaveGame:
		return game.SaveGame{CommandMeta: meta, SaveID: e.SaveID}, true
	case game.KindLoadGame:
		return game.LoadGame{CommandMeta: meta, SaveID: e.SaveID}, true
	case game.KindUndoMove:
		return game.UndoMove{CommandMeta: meta}, true
	case game.KindRequestAIMove:
		return game.RequestAIMove{CommandMeta: meta, PlayerID: e.PlayerID}, true
	case game.KindUnlockNode:
		return game.UnlockNode{CommandMeta: meta, PlayerID: e.PlayerID, NodeID: e.NodeID, PointType: e.PointType}, true
	case game.KindUseAbility:
		return game.UseAbility{CommandMeta: meta, PlayerID: e.PlayerID, AbilityID: e.AbilityID, TargetCardIDs: e.TargetCardIDs, TargetPlayerID: e.TargetPlayerID}, true
	default:
		return nil, false
	}
}

func (g *Gateway) handleCommand(w http.ResponseWriter, r *http.Request) {
	var envelope commandEnvelope
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err := dec.Decode(&envelope); err != nil {
		writeError(w, http.StatusBadRequest, "malformed command: "+err.Error())
		return
	}
	cmd, ok := envelope.toCommand()
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown command kind "+string(envelope.Kind))
		return
	}
	g.ctrl.Submit(r.Context(), cmd)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"commandId": cmd.Meta().CommandID,
		"kind":      string(cmd.Kind()),
	})
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}

	// There is no event replay: a late attacher gets one state snapshot
	// and rides the live stream from there.
	snapshot := g.ctrl.CurrentState()
	attach := game.Event{
		Type:      game.EventStateChanged,
		Timestamp: time.Now(),
		Phase:     snapshot.Phase,
		Round:     snapshot.Round,
		Snapshot:  snapshot,
	}
	if blob, err := json.Marshal(attach); err == nil {
		client.send <- blob
	}

	g.mu.Lock()
	g.clients[client] = true
	g.mu.Unlock()
	g.log.Info("websocket client attached", zap.String("remote", conn.RemoteAddr().String()))

	go g.writePump(client)
	go g.readPump(client)
}

// broadcast runs on the controller's publish path and must not block:
// full client buffers drop the client, never stall the bus.
func (g *Gateway) broadcast(ev game.Event) {
	blob, err := json.Marshal(ev)
	if err != nil {
		g.log.Error("event encode failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for client := range g.clients {
		select {
		case client.send <- blob:
		default:
			g.log.Warn("dropping slow websocket client",
				zap.String("remote", client.conn.RemoteAddr().String()))
			close(client.send)
			delete(g.clients, client)
		}
	}
}

func (g *Gateway) writePump(c *wsClient) {
	defer c.conn.Close()
	for blob := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, blob); err != nil {
			g.drop(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

// readPump drains the connection to detect closure; the gateway accepts
// no commands over the socket.
func (g *Gateway) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			g.drop(c)
			return
		}
	}
}

func (g *Gateway) drop(c *wsClient) {
	g.mu.Lock()
	if g.clients[c] {
		close(c.send)
		delete(g.clients, c)
	}
	g.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
