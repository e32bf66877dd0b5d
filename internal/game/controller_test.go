package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashgame/trash-server-go/internal/game/card"
	"github.com/trashgame/trash-server-go/internal/game/progression"
)

// recorder collects every published event for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t EventType) (Event, bool) {
	events := r.all()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == t {
			return events[i], true
		}
	}
	return Event{}, false
}

func newTestController(t *testing.T) (*Controller, *recorder) {
	t.Helper()
	ctrl := NewController(ControllerConfig{Seed: 42})
	rec := &recorder{}
	ctrl.Bus().Subscribe(rec.listen)
	return ctrl, rec
}

func startTwoPlayerGame(t *testing.T, ctrl *Controller) {
	t.Helper()
	ctx := context.Background()
	ctrl.Submit(ctx, InitializeGame{
		CommandMeta: NewMeta(),
		PlayerCount: 2,
		PlayerNames: []string{"Ada", "Bo"},
	})
	ctrl.Submit(ctx, StartGame{CommandMeta: NewMeta()})
	require.Equal(t, PhasePlaying, ctrl.CurrentState().Phase)
}

func TestController_InitializeAndStart(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)

	state := ctrl.CurrentState()
	require.Len(t, state.Players, 2)
	assert.Len(t, state.Players[0].Hand, 10)
	assert.Len(t, state.Players[1].Hand, 10)
	// 52 minus two 10-card hands minus the discard seed.
	assert.Len(t, state.Deck, 31)
	require.Len(t, state.DiscardPile, 1)
	assert.True(t, state.DiscardPile[0].FaceUp)
	assert.False(t, state.InputLocked)

	assert.Equal(t, 1, rec.count(EventGameInitialized))
	assert.Equal(t, 1, rec.count(EventGameStarted))
	assert.Equal(t, 1, rec.count(EventDealingStarted))
	assert.Equal(t, 20, rec.count(EventCardDealt))
	assert.Equal(t, 1, rec.count(EventDealingCompleted))
	assert.Equal(t, 1, rec.count(EventTurnStarted))
	assert.Equal(t, 2, rec.count(EventStateChanged))

	// The deal is atomic: DEALING_COMPLETED and the first TURN_STARTED
	// land before the StartGame STATE_CHANGED.
	events := rec.all()
	var completedAt, turnAt, changedAt int
	for i, ev := range events {
		switch ev.Type {
		case EventDealingCompleted:
			completedAt = i
		case EventTurnStarted:
			turnAt = i
		case EventStateChanged:
			changedAt = i
		}
	}
	assert.Less(t, completedAt, turnAt)
	assert.Less(t, turnAt, changedAt)
}

func TestController_CardConservation(t *testing.T) {
	ctrl, _ := newTestController(t)
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	total := func() int {
		sum := 0
		for _, n := range ctrl.CurrentState().CardIdentityMultiset() {
			sum += n
		}
		return sum
	}
	require.Equal(t, card.DeckSize, total())

	ctrl.Submit(ctx, DrawCard{CommandMeta: NewMeta(), PlayerID: "player_1", FromPile: PileDeck})
	require.Equal(t, card.DeckSize, total())

	drawn := ctrl.CurrentState().Players[0].Drawn
	require.NotNil(t, drawn)
	ctrl.Submit(ctx, DiscardCard{CommandMeta: NewMeta(), PlayerID: "player_1", CardID: drawn.ID()})
	assert.Equal(t, card.DeckSize, total())
	assert.Equal(t, 1, ctrl.CurrentState().CurrentPlayerIndex)
}

func TestController_RejectionLeavesStateUnchanged(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)

	before := ctrl.CurrentState()
	ctrl.Submit(context.Background(), DrawCard{CommandMeta: NewMeta(), PlayerID: "player_2", FromPile: PileDeck})
	after := ctrl.CurrentState()

	assert.Equal(t, before, after)
	rejected, ok := rec.last(EventCommandRejected)
	require.True(t, ok)
	assert.Equal(t, KindDrawCard, rejected.CommandKind)
	assert.NotEmpty(t, rejected.Reason)
	// Card moves additionally raise INVALID_MOVE.
	invalid, ok := rec.last(EventInvalidMove)
	require.True(t, ok)
	assert.Equal(t, rejected.CommandID, invalid.CommandID)
}

func TestController_DiscardEndsTurn(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	ctrl.Submit(ctx, DrawCard{CommandMeta: NewMeta(), PlayerID: "player_1", FromPile: PileDeck})
	drawn := ctrl.CurrentState().Players[0].Drawn
	require.NotNil(t, drawn)
	ctrl.Submit(ctx, DiscardCard{CommandMeta: NewMeta(), PlayerID: "player_1", CardID: drawn.ID()})

	events := rec.all()
	var discardAt, endedAt, startedAt int
	for i, ev := range events {
		switch ev.Type {
		case EventCardDiscarded:
			discardAt = i
		case EventTurnEnded:
			endedAt = i
		case EventTurnStarted:
			startedAt = i
		}
	}
	assert.Less(t, discardAt, endedAt)
	assert.Less(t, endedAt, startedAt)

	turn, _ := rec.last(EventTurnStarted)
	assert.Equal(t, "player_2", turn.PlayerID)
}

func TestController_UndoRestoresSnapshot(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	before := ctrl.CurrentState()
	ctrl.Submit(ctx, DrawCard{CommandMeta: NewMeta(), PlayerID: "player_1", FromPile: PileDeck})
	require.NotNil(t, ctrl.CurrentState().Players[0].Drawn)

	ctrl.Submit(ctx, UndoMove{CommandMeta: NewMeta()})
	after := ctrl.CurrentState()
	assert.Equal(t, before, after)
	assert.Nil(t, after.Players[0].Drawn)
	assert.Equal(t, 1, rec.count(EventUndoApplied))
}

func TestController_UndoDoesNotTouchProgression(t *testing.T) {
	ctrl, _ := newTestController(t)
	prog := ctrl.ProgressFor("player_1")
	prog.TotalSP = 10
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	ctrl.Submit(ctx, UnlockNode{
		CommandMeta: NewMeta(),
		PlayerID:    "player_1",
		NodeID:      "skill_keen_eye",
		PointType:   progression.PointSkill,
	})
	require.True(t, prog.UnlockedSkills["skill_keen_eye"])

	ctrl.Submit(ctx, UndoMove{CommandMeta: NewMeta()})
	// Progression persists across undo; only the match snapshot rolls back.
	assert.True(t, prog.UnlockedSkills["skill_keen_eye"])
	assert.Equal(t, 8, prog.TotalSP)
}

func TestController_UndoEmptyHistoryRejected(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)

	// The deal is not undoable, so the fresh round has no history.
	ctrl.Submit(context.Background(), UndoMove{CommandMeta: NewMeta()})

	rejected, ok := rec.last(EventCommandRejected)
	require.True(t, ok)
	assert.Equal(t, KindUndoMove, rejected.CommandKind)
	assert.Contains(t, rejected.Reason, "nothing to undo")
}

func TestController_PauseBlocksPlay(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	ctrl.Submit(ctx, PauseGame{CommandMeta: NewMeta()})
	require.True(t, ctrl.CurrentState().Paused)

	ctrl.Submit(ctx, DrawCard{CommandMeta: NewMeta(), PlayerID: "player_1", FromPile: PileDeck})
	rejected, ok := rec.last(EventCommandRejected)
	require.True(t, ok)
	assert.Contains(t, rejected.Reason, "paused")

	ctrl.Submit(ctx, ResumeGame{CommandMeta: NewMeta()})
	require.False(t, ctrl.CurrentState().Paused)
	ctrl.Submit(ctx, DrawCard{CommandMeta: NewMeta(), PlayerID: "player_1", FromPile: PileDeck})
	assert.NotNil(t, ctrl.CurrentState().Players[0].Drawn)
}

func TestController_UnlockNodeUpdatesPassives(t *testing.T) {
	ctrl, rec := newTestController(t)
	ctrl.ProgressFor("player_1").TotalSP = 10
	startTwoPlayerGame(t, ctrl)

	ctrl.Submit(context.Background(), UnlockNode{
		CommandMeta: NewMeta(),
		PlayerID:    "player_1",
		NodeID:      "skill_keen_eye",
		PointType:   progression.PointSkill,
	})

	unlocked, ok := rec.last(EventNodeUnlocked)
	require.True(t, ok)
	assert.Equal(t, "skill_keen_eye", unlocked.NodeID)
	assert.Equal(t, 8, unlocked.TotalSP)
	assert.Equal(t, 10, unlocked.TotalXP)

	flags := ctrl.CurrentState().Passives["player_1"]
	assert.Equal(t, 10, flags.DrawBonusPct)
	// keen eye grants 10 XP, enough for several early levels.
	assert.Equal(t, 1, rec.count(EventLevelUp))
}

func TestController_UseAbilityPeek(t *testing.T) {
	ctrl, rec := newTestController(t)
	prog := ctrl.ProgressFor("player_1")
	prog.TotalAP = 10
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	ctrl.Submit(ctx, UnlockNode{
		CommandMeta: NewMeta(),
		PlayerID:    "player_1",
		NodeID:      "ability_peek",
		PointType:   progression.PointAbility,
	})
	require.True(t, prog.UnlockedAbilities["ability_peek"])

	ctrl.Submit(ctx, UseAbility{CommandMeta: NewMeta(), PlayerID: "player_1", AbilityID: "ability_peek"})
	used, ok := rec.last(EventAbilityUsed)
	require.True(t, ok)
	assert.Len(t, used.CardIDs, 3)
	assert.Equal(t, used.CardIDs[0], ctrl.CurrentState().Deck[0].ID())

	// Peek allows one use per round; the second attempt is rejected.
	ctrl.Submit(ctx, UseAbility{CommandMeta: NewMeta(), PlayerID: "player_1", AbilityID: "ability_peek"})
	rejected, ok := rec.last(EventCommandRejected)
	require.True(t, ok)
	assert.Equal(t, progression.CodeUsageExhausted, rejected.RejectCode)
}

func TestController_SellNodeRefundsAndRecomputes(t *testing.T) {
	ctrl, rec := newTestController(t)
	prog := ctrl.ProgressFor("player_1")
	prog.TotalSP = 10
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	ctrl.Submit(ctx, UnlockNode{
		CommandMeta: NewMeta(),
		PlayerID:    "player_1",
		NodeID:      "skill_keen_eye",
		PointType:   progression.PointSkill,
	})
	require.Equal(t, 8, prog.TotalSP)
	require.Greater(t, prog.Level, 1)

	res, rej := ctrl.SellNode(ctx, "player_1", "skill_keen_eye", progression.PointSkill)
	require.Nil(t, rej)
	assert.Equal(t, 10, prog.TotalSP)
	assert.Equal(t, 0, prog.TotalXP)
	assert.Equal(t, 1, res.NewLevel)
	assert.False(t, prog.UnlockedSkills["skill_keen_eye"])
	assert.Equal(t, 1, rec.count(EventNodeSold))
	// Selling the passive clears its fold.
	assert.Zero(t, ctrl.CurrentState().Passives["player_1"].DrawBonusPct)

	_, rej = ctrl.SellNode(ctx, "player_1", "skill_keen_eye", progression.PointSkill)
	require.NotNil(t, rej)
	assert.Equal(t, progression.CodeNotUnlocked, rej.Code)
}

func TestController_ResetKeepsPlayersAndProgress(t *testing.T) {
	ctrl, rec := newTestController(t)
	ctrl.ProgressFor("player_1").TotalSP = 7
	startTwoPlayerGame(t, ctrl)

	ctrl.Submit(context.Background(), ResetGame{CommandMeta: NewMeta(), KeepPlayers: true})
	state := ctrl.CurrentState()
	assert.Equal(t, PhaseSetup, state.Phase)
	require.Len(t, state.Players, 2)
	assert.Empty(t, state.Players[0].Hand)
	assert.Empty(t, state.Deck)
	assert.Equal(t, 7, ctrl.ProgressFor("player_1").TotalSP)
	assert.Equal(t, 1, rec.count(EventGameReset))
}

func TestController_MatchCompletionAwardsWinner(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)

	// Craft a final-round endgame: one face-down slot left, ace in hand.
	ctrl.mu.Lock()
	s := ctrl.state
	s.Round = 10
	s.Players[0].Hand = []card.Card{{Rank: card.RankSeven, Suit: card.SuitClubs}}
	ace := card.Card{Rank: card.RankAce, Suit: card.SuitSpades, FaceUp: true}
	s.Players[0].Drawn = &ace
	s.Players[1].Hand = []card.Card{{Rank: card.RankKing, Suit: card.SuitHearts}}
	s.CurrentPlayerIndex = 0
	ctrl.mu.Unlock()

	ctrl.Submit(context.Background(), PlaceCard{
		CommandMeta: NewMeta(),
		PlayerID:    "player_1",
		CardID:      ace.ID(),
		SlotIndex:   0,
	})

	state := ctrl.CurrentState()
	assert.Equal(t, PhaseGameOver, state.Phase)
	assert.Equal(t, 1, rec.count(EventRoundWon))
	assert.Equal(t, 2, rec.count(EventMatchCompleted))
	assert.Equal(t, 1, rec.count(EventPointsEarned))

	ended, ok := rec.last(EventGameEnded)
	require.True(t, ok)
	assert.Equal(t, "player_1", ended.PlayerID)

	// Match 1 at level 1 pays 1 SP; the loser banks nothing.
	winner := ctrl.ProgressFor("player_1")
	assert.Equal(t, 1, winner.TotalSP)
	assert.Equal(t, 0, winner.TotalXP)
	loser := ctrl.ProgressFor("player_2")
	assert.Zero(t, loser.TotalSP)
	require.Len(t, loser.MatchHistory, 1)
	assert.False(t, loser.MatchHistory[0].Won)

	// Only the losing hand's face-down king feeds the tally; the winner's
	// displaced seven was discarded, not left face down.
	assert.Equal(t, 1, state.FaceDownTally[card.RankKing])
}

func TestController_RoundWinAdvancesSchedule(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	ctrl.mu.Lock()
	s := ctrl.state
	s.Round = 3
	// Round 3 hands hold 8 cards; leave slot 0 face down for the win.
	hand := make([]card.Card, 8)
	for i := range hand {
		hand[i] = card.Card{Rank: card.Ranks[i], Suit: card.SuitClubs, FaceUp: i != 0}
	}
	s.Players[0].Hand = hand
	ace := card.Card{Rank: card.RankAce, Suit: card.SuitSpades, FaceUp: true}
	s.Players[0].Drawn = &ace
	s.CurrentPlayerIndex = 0
	ctrl.mu.Unlock()

	ctrl.Submit(ctx, PlaceCard{CommandMeta: NewMeta(), PlayerID: "player_1", CardID: ace.ID(), SlotIndex: 0})

	state := ctrl.CurrentState()
	assert.Equal(t, PhaseRoundEnd, state.Phase)
	assert.Equal(t, 4, state.Round)
	assert.Equal(t, 1, state.Players[0].Score)
	assert.Equal(t, 1, rec.count(EventRoundWon))
	assert.Zero(t, rec.count(EventMatchCompleted))

	// The next StartGame deals 7-card hands.
	ctrl.Submit(ctx, StartGame{CommandMeta: NewMeta()})
	state = ctrl.CurrentState()
	assert.Equal(t, PhasePlaying, state.Phase)
	assert.Len(t, state.Players[0].Hand, 7)
}

func TestController_SerializedConcurrentSubmits(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(resume bool) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if resume {
					ctrl.Submit(ctx, ResumeGame{CommandMeta: NewMeta()})
				} else {
					ctrl.Submit(ctx, PauseGame{CommandMeta: NewMeta()})
				}
			}
		}(i == 0)
	}
	wg.Wait()

	// Every accepted command publishes its events and then exactly one
	// STATE_CHANGED before the next command is processed.
	events := rec.all()
	for i, ev := range events {
		if ev.Type == EventGamePaused || ev.Type == EventGameResumed {
			require.Greater(t, len(events), i+1)
			assert.Equal(t, EventStateChanged, events[i+1].Type,
				"event %s at %d must be followed by STATE_CHANGED", ev.Type, i)
		}
	}
}

// mapStore is an in-memory Store for save/load tests.
type mapStore struct {
	mu        sync.Mutex
	snapshots map[string]*GameState
	progress  map[string]*progression.Progress
}

func newMapStore() *mapStore {
	return &mapStore{
		snapshots: make(map[string]*GameState),
		progress:  make(map[string]*progression.Progress),
	}
}

func (m *mapStore) SaveSnapshot(_ context.Context, saveID string, s *GameState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[saveID] = s.Clone()
	return nil
}

func (m *mapStore) LoadSnapshot(_ context.Context, saveID string) (*GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[saveID]
	if !ok {
		return nil, fmt.Errorf("save %q not found", saveID)
	}
	return s.Clone(), nil
}

func (m *mapStore) SaveProgress(_ context.Context, p *progression.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[p.PlayerID] = p
	return nil
}

func (m *mapStore) LoadProgress(_ context.Context, playerID string) (*progression.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[playerID]
	if !ok {
		return nil, fmt.Errorf("progress for %q not found", playerID)
	}
	return p, nil
}

func TestController_SaveLoadRoundTrip(t *testing.T) {
	store := newMapStore()
	ctrl := NewController(ControllerConfig{Seed: 42, Store: store})
	rec := &recorder{}
	ctrl.Bus().Subscribe(rec.listen)
	startTwoPlayerGame(t, ctrl)
	ctx := context.Background()

	ctrl.Submit(ctx, DrawCard{CommandMeta: NewMeta(), PlayerID: "player_1", FromPile: PileDeck})
	saved := ctrl.CurrentState()
	ctrl.Submit(ctx, SaveGame{CommandMeta: NewMeta(), SaveID: "slot1"})
	require.Equal(t, 1, rec.count(EventGameSaved))

	drawn := saved.Players[0].Drawn
	require.NotNil(t, drawn)
	ctrl.Submit(ctx, DiscardCard{CommandMeta: NewMeta(), PlayerID: "player_1", CardID: drawn.ID()})
	require.Equal(t, 1, ctrl.CurrentState().CurrentPlayerIndex)

	ctrl.Submit(ctx, LoadGame{CommandMeta: NewMeta(), SaveID: "slot1"})
	restored := ctrl.CurrentState()
	assert.Equal(t, saved, restored)

	loaded, ok := rec.last(EventGameLoaded)
	require.True(t, ok)
	require.NotNil(t, loaded.Snapshot)
	assert.Equal(t, PhasePlaying, loaded.Snapshot.Phase)
}

func TestController_ProgressSurvivesRestart(t *testing.T) {
	store := newMapStore()
	ctx := context.Background()

	first := NewController(ControllerConfig{Seed: 42, Store: store})
	first.ProgressFor("player_1").TotalSP = 10
	startTwoPlayerGame(t, first)
	first.Submit(ctx, UnlockNode{
		CommandMeta: NewMeta(),
		PlayerID:    "player_1",
		NodeID:      "skill_keen_eye",
		PointType:   progression.PointSkill,
	})
	// The unlock writes through to the store immediately.
	stored, err := store.LoadProgress(ctx, "player_1")
	require.NoError(t, err)
	assert.Equal(t, 8, stored.TotalSP)

	// A fresh controller over the same store picks the record up when the
	// player rejoins.
	second := NewController(ControllerConfig{Seed: 42, Store: store})
	second.Submit(ctx, InitializeGame{
		CommandMeta: NewMeta(),
		PlayerCount: 2,
		PlayerNames: []string{"Ada", "Bo"},
	})
	prog := second.ProgressFor("player_1")
	assert.Equal(t, 8, prog.TotalSP)
	assert.True(t, prog.UnlockedSkills["skill_keen_eye"])
}

func TestController_SaveWithoutStoreRejected(t *testing.T) {
	ctrl, rec := newTestController(t)
	startTwoPlayerGame(t, ctrl)

	ctrl.Submit(context.Background(), SaveGame{CommandMeta: NewMeta(), SaveID: "slot1"})
	rejected, ok := rec.last(EventCommandRejected)
	require.True(t, ok)
	assert.Contains(t, rejected.Reason, "no save store")
}

// immediateClock fires think timers instantly.
type immediateClock struct{}

func (immediateClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestScheduler_DrivesAITurn(t *testing.T) {
	ctrl := NewController(ControllerConfig{Seed: 7})
	rec := &recorder{}
	ctrl.Bus().Subscribe(rec.listen)

	sched := NewScheduler(ctrl, time.Millisecond, immediateClock{}, nil)
	sched.Start()
	defer sched.Stop()

	ctx := context.Background()
	ctrl.Submit(ctx, InitializeGame{
		CommandMeta: NewMeta(),
		PlayerCount: 2,
		PlayerNames: []string{"Ada", "Bot"},
		IsAI:        []bool{false, true},
	})
	ctrl.Submit(ctx, StartGame{CommandMeta: NewMeta()})

	// Hand the turn to the AI.
	ctrl.Submit(ctx, DrawCard{CommandMeta: NewMeta(), PlayerID: "player_1", FromPile: PileDeck})
	drawn := ctrl.CurrentState().Players[0].Drawn
	require.NotNil(t, drawn)
	ctrl.Submit(ctx, DiscardCard{CommandMeta: NewMeta(), PlayerID: "player_1", CardID: drawn.ID()})

	// The scheduler walks the AI through draw, optional placements and
	// the closing discard until the turn returns or the round ends.
	require.Eventually(t, func() bool {
		s := ctrl.CurrentState()
		return s.Phase != PhasePlaying || s.CurrentPlayerIndex == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, rec.count(EventAIMoveSuggested), 2)
	suggested, ok := rec.last(EventAIMoveSuggested)
	require.True(t, ok)
	assert.Equal(t, "player_2", suggested.PlayerID)
}
