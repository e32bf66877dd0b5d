package game

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trashgame/trash-server-go/internal/game/progression"
)

// DefaultUndoLimit bounds the undo history ring.
const DefaultUndoLimit = 50

// Store is the persistence boundary the controller saves through. The
// storage package provides sqlite and in-memory implementations.
type Store interface {
	SaveSnapshot(ctx context.Context, saveID string, s *GameState) error
	LoadSnapshot(ctx context.Context, saveID string) (*GameState, error)
	SaveProgress(ctx context.Context, p *progression.Progress) error
	LoadProgress(ctx context.Context, playerID string) (*progression.Progress, error)
}

// ControllerConfig configures a Controller. Zero values select sane
// defaults; a nil Store disables SaveGame and LoadGame.
type ControllerConfig struct {
	Logger    *zap.Logger
	Registry  *progression.Registry
	Store     Store
	UndoLimit int
	// Seed makes deals reproducible. Zero seeds from the clock.
	Seed int64
}

// Controller owns the authoritative game state. All mutation flows
// through Submit: commands are validated against the current snapshot,
// executed on a clone, and the clone is swapped in before the resulting
// events go out. Events of one command are fully published before the
// next command begins validation.
type Controller struct {
	log      *zap.Logger
	bus      *Bus
	store    Store
	registry *progression.Registry
	val      *Validator
	rng      *rand.Rand

	mu        sync.Mutex
	state     *GameState
	progress  map[string]*progression.Progress
	undo      []*GameState
	undoLimit int
	queue     []Command
	draining  bool
}

// NewController builds a controller with fresh state.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = progression.DefaultRegistry()
	}
	if cfg.UndoLimit <= 0 {
		cfg.UndoLimit = DefaultUndoLimit
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Controller{
		log:       cfg.Logger,
		bus:       NewBus(),
		store:     cfg.Store,
		registry:  cfg.Registry,
		val:       &Validator{Registry: cfg.Registry},
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		state:     NewGameState(),
		progress:  make(map[string]*progression.Progress),
		undoLimit: cfg.UndoLimit,
	}
}

// Bus exposes the event bus for subscribers.
func (c *Controller) Bus() *Bus { return c.bus }

// Registry exposes the progression node registry.
func (c *Controller) Registry() *progression.Registry { return c.registry }

// CurrentState returns an independent snapshot of the current state.
func (c *Controller) CurrentState() *GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// ProgressFor returns the player's progression state, creating it on
// first use so the gateway can serve it before a match starts.
func (c *Controller) ProgressFor(playerID string) *progression.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.progress[playerID]
	if !ok {
		p = progression.NewProgress(playerID)
		c.progress[playerID] = p
	}
	return p
}

// SellNode refunds an unlocked progression node. Selling is progression
// management, not a match move, so it bypasses the command queue; the
// mutex keeps it serialized with command processing.
func (c *Controller) SellNode(ctx context.Context, playerID, nodeID string, pt progression.PointType) (*progression.UnlockResult, *progression.Rejection) {
	c.mu.Lock()
	prog, ok := c.progress[playerID]
	if !ok {
		c.mu.Unlock()
		return nil, &progression.Rejection{
			Code:   progression.CodeNotFound,
			Reason: "no progression for player " + playerID,
		}
	}
	res, rej := progression.SellNode(prog, c.registry, nodeID, pt)
	if rej != nil {
		c.mu.Unlock()
		return nil, rej
	}
	c.state.Passives[playerID] = progression.RecomputePassives(prog, c.registry)
	c.mu.Unlock()

	sold := newEvent(EventNodeSold)
	sold.PlayerID = playerID
	sold.NodeID = nodeID
	sold.PointType = string(pt)
	sold.TotalSP = prog.TotalSP
	sold.TotalAP = prog.TotalAP
	sold.TotalXP = res.TotalXP
	sold.NewLevel = res.NewLevel
	c.bus.Publish(sold)

	if c.store != nil {
		if err := c.store.SaveProgress(ctx, prog); err != nil {
			c.log.Error("progress write-through failed",
				zap.String("playerId", playerID), zap.Error(err))
		}
	}
	return res, nil
}

// Submit queues a command for processing. The caller's goroutine drains
// the queue unless another drain is already running; follow-up commands
// submitted from inside an executor or event listener simply append and
// are picked up by the running drain, so re-entry never deadlocks.
func (c *Controller) Submit(ctx context.Context, cmd Command) {
	c.mu.Lock()
	c.queue = append(c.queue, cmd)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()
	c.drain(ctx)
}

func (c *Controller) drain(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.draining = false
			c.mu.Unlock()
			return
		}
		cmd := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		c.process(ctx, cmd)
	}
}

// moveKinds marks the commands whose rejection also raises InvalidMove.
var moveKinds = map[CommandKind]bool{
	KindDrawCard:    true,
	KindPlaceCard:   true,
	KindDiscardCard: true,
	KindFlipCard:    true,
}

// undoableKinds marks the commands that push the prior snapshot onto the
// undo history. Undo is move-level: deals and lifecycle commands are not
// undoable, and ResetGame and LoadGame clear the history outright.
var undoableKinds = map[CommandKind]bool{
	KindDrawCard:    true,
	KindPlaceCard:   true,
	KindDiscardCard: true,
	KindFlipCard:    true,
	KindEndTurn:     true,
	KindSkipTurn:    true,
	KindUseAbility:  true,
}

func (c *Controller) process(ctx context.Context, cmd Command) {
	kind := cmd.Kind()

	c.mu.Lock()
	result := c.val.Validate(c.state, c.progress, cmd)
	c.mu.Unlock()

	if !result.Valid {
		c.reject(cmd, result.Code, result.Reason)
		return
	}

	switch cc := cmd.(type) {
	case UndoMove:
		c.processUndo(cc)
		return
	case SaveGame:
		c.processSave(ctx, cc)
		return
	case LoadGame:
		c.processLoad(ctx, cc)
		return
	}

	c.mu.Lock()
	next := c.state.Clone()
	events, followups, err := c.execute(ctx, next, cmd)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("command execution failed",
			zap.String("kind", string(kind)),
			zap.String("commandId", cmd.Meta().CommandID),
			zap.Error(err))
		c.reject(cmd, CodeValidationRejected, err.Error())
		return
	}
	if undoableKinds[kind] {
		c.pushUndo(c.state)
	}
	if kind == KindResetGame {
		c.undo = nil
	}
	c.state = next
	snapshot := next.Clone()
	c.mu.Unlock()

	c.log.Debug("command executed",
		zap.String("kind", string(kind)),
		zap.String("commandId", cmd.Meta().CommandID),
		zap.String("phase", string(snapshot.Phase)))

	for _, ev := range events {
		c.bus.Publish(ev)
	}
	changed := newEvent(EventStateChanged)
	changed.Phase = snapshot.Phase
	changed.Round = snapshot.Round
	changed.CommandID = cmd.Meta().CommandID
	changed.CommandKind = kind
	changed.Snapshot = snapshot
	c.bus.Publish(changed)

	c.persistProgress(ctx, events)

	c.mu.Lock()
	c.queue = append(c.queue, followups...)
	c.mu.Unlock()
}

// persistProgress writes through progression records touched by the
// published events. Write-through is best effort: a storage failure is
// logged, never surfaced as a command failure.
func (c *Controller) persistProgress(ctx context.Context, events []Event) {
	if c.store == nil {
		return
	}
	touched := make(map[string]bool)
	for _, ev := range events {
		switch ev.Type {
		case EventNodeUnlocked, EventNodeSold, EventAbilityUsed, EventMatchCompleted:
			touched[ev.PlayerID] = true
		}
	}
	for playerID := range touched {
		c.mu.Lock()
		prog := c.progress[playerID]
		c.mu.Unlock()
		if prog == nil {
			continue
		}
		if err := c.store.SaveProgress(ctx, prog); err != nil {
			c.log.Error("progress write-through failed",
				zap.String("playerId", playerID), zap.Error(err))
		}
	}
}

// pushUndo appends the snapshot to the bounded undo ring. Caller holds
// the mutex.
func (c *Controller) pushUndo(s *GameState) {
	if len(c.undo) >= c.undoLimit {
		c.undo = c.undo[1:]
	}
	c.undo = append(c.undo, s)
}

func (c *Controller) processUndo(cmd UndoMove) {
	c.mu.Lock()
	if len(c.undo) == 0 {
		c.mu.Unlock()
		c.reject(cmd, CodeValidationRejected, "nothing to undo")
		return
	}
	restored := c.undo[len(c.undo)-1]
	c.undo = c.undo[:len(c.undo)-1]
	c.state = restored
	snapshot := restored.Clone()
	c.mu.Unlock()

	applied := newEvent(EventUndoApplied)
	applied.Phase = snapshot.Phase
	applied.Round = snapshot.Round
	c.bus.Publish(applied)

	changed := newEvent(EventStateChanged)
	changed.Phase = snapshot.Phase
	changed.Round = snapshot.Round
	changed.CommandID = cmd.Meta().CommandID
	changed.CommandKind = KindUndoMove
	changed.Snapshot = snapshot
	c.bus.Publish(changed)
}

func (c *Controller) processSave(ctx context.Context, cmd SaveGame) {
	if c.store == nil {
		c.reject(cmd, CodeValidationRejected, "no save store configured")
		return
	}
	c.mu.Lock()
	snapshot := c.state.Clone()
	progs := make([]*progression.Progress, 0, len(c.progress))
	for _, p := range c.progress {
		progs = append(progs, p)
	}
	c.mu.Unlock()

	if err := c.store.SaveSnapshot(ctx, cmd.SaveID, snapshot); err != nil {
		c.log.Error("save failed", zap.String("saveId", cmd.SaveID), zap.Error(err))
		c.reject(cmd, CodeValidationRejected, "save failed: "+err.Error())
		return
	}
	for _, p := range progs {
		if err := c.store.SaveProgress(ctx, p); err != nil {
			c.log.Error("progress save failed",
				zap.String("playerId", p.PlayerID), zap.Error(err))
		}
	}

	saved := newEvent(EventGameSaved)
	saved.Message = cmd.SaveID
	c.bus.Publish(saved)
}

func (c *Controller) processLoad(ctx context.Context, cmd LoadGame) {
	if c.store == nil {
		c.reject(cmd, CodeValidationRejected, "no save store configured")
		return
	}
	snapshot, err := c.store.LoadSnapshot(ctx, cmd.SaveID)
	if err != nil {
		c.log.Warn("load failed", zap.String("saveId", cmd.SaveID), zap.Error(err))
		c.reject(cmd, CodeNotFound, "load failed: "+err.Error())
		return
	}

	c.mu.Lock()
	c.state = snapshot
	c.undo = nil
	for _, p := range snapshot.Players {
		if _, ok := c.progress[p.ID]; ok {
			continue
		}
		if prog, err := c.store.LoadProgress(ctx, p.ID); err == nil && prog != nil {
			c.progress[p.ID] = prog
		} else {
			c.progress[p.ID] = progression.NewProgress(p.ID)
		}
	}
	out := snapshot.Clone()
	c.mu.Unlock()

	loaded := newEvent(EventGameLoaded)
	loaded.Message = cmd.SaveID
	loaded.Phase = out.Phase
	loaded.Round = out.Round
	loaded.Snapshot = out
	c.bus.Publish(loaded)

	changed := newEvent(EventStateChanged)
	changed.Phase = out.Phase
	changed.Round = out.Round
	changed.CommandID = cmd.Meta().CommandID
	changed.CommandKind = KindLoadGame
	changed.Snapshot = out
	c.bus.Publish(changed)
}

// reject publishes a CommandRejected event, plus InvalidMove when the
// command was a card move. The authoritative state is untouched.
func (c *Controller) reject(cmd Command, code, reason string) {
	kind := cmd.Kind()
	c.log.Warn("command rejected",
		zap.String("kind", string(kind)),
		zap.String("commandId", cmd.Meta().CommandID),
		zap.String("code", code),
		zap.String("reason", reason))

	ev := newEvent(EventCommandRejected)
	ev.CommandID = cmd.Meta().CommandID
	ev.CommandKind = kind
	ev.RejectCode = code
	ev.Reason = reason
	c.bus.Publish(ev)

	if moveKinds[kind] {
		inv := newEvent(EventInvalidMove)
		inv.CommandID = cmd.Meta().CommandID
		inv.CommandKind = kind
		inv.RejectCode = code
		inv.Reason = reason
		inv.AttemptedAction = string(kind)
		c.bus.Publish(inv)
	}
}
