package game

import (
	"context"
	"fmt"
	"time"

	"github.com/trashgame/trash-server-go/internal/game/card"
	"github.com/trashgame/trash-server-go/internal/game/progression"
	"github.com/trashgame/trash-server-go/internal/game/rules"
)

// execute applies one validated command to the clone and returns the
// events it produced plus any follow-up commands to enqueue. An error
// means the command could not take effect after all and is surfaced as a
// rejection; the clone is discarded in that case.
func (c *Controller) execute(ctx context.Context, s *GameState, cmd Command) ([]Event, []Command, error) {
	switch cc := cmd.(type) {
	case InitializeGame:
		return c.execInitialize(ctx, s, cc)
	case StartGame:
		return c.execStartGame(s)
	case DrawCard:
		return c.execDraw(s, cc)
	case PlaceCard:
		return c.execPlace(s, cc)
	case DiscardCard:
		return c.execDiscard(s, cc)
	case FlipCard:
		return c.execFlip(s, cc)
	case EndTurn:
		return advanceTurn(s), nil, nil
	case SkipTurn:
		return c.execSkipTurn(s, cc)
	case PauseGame:
		s.Paused = true
		return []Event{newEvent(EventGamePaused)}, nil, nil
	case ResumeGame:
		s.Paused = false
		return []Event{newEvent(EventGameResumed)}, nil, nil
	case EndGame:
		return c.execEndGame(s, cc)
	case ResetGame:
		return c.execReset(s, cc)
	case RequestAIMove:
		return c.execAIMove(s, cc)
	case UnlockNode:
		return c.execUnlock(s, cc)
	case UseAbility:
		return c.execUseAbility(s, cc)
	default:
		return nil, nil, fmt.Errorf("no executor for command kind %s", cmd.Kind())
	}
}

func (c *Controller) execInitialize(ctx context.Context, s *GameState, cmd InitializeGame) ([]Event, []Command, error) {
	players := make([]Player, cmd.PlayerCount)
	for i := 0; i < cmd.PlayerCount; i++ {
		id := fmt.Sprintf("player_%d", i+1)
		players[i] = Player{
			ID:   id,
			Name: cmd.PlayerNames[i],
			IsAI: len(cmd.IsAI) == cmd.PlayerCount && cmd.IsAI[i],
		}
		if _, ok := c.progress[id]; !ok {
			// Progression survives restarts: pick up the persisted record
			// before minting a fresh one.
			if c.store != nil {
				if prog, err := c.store.LoadProgress(ctx, id); err == nil && prog != nil {
					c.progress[id] = prog
					continue
				}
			}
			c.progress[id] = progression.NewProgress(id)
		}
	}
	s.Phase = PhaseSetup
	s.Players = players
	s.Round = 1
	s.CurrentPlayerIndex = 0
	s.Deck = nil
	s.DiscardPile = nil
	s.FaceDownTally = make(map[card.Rank]int)

	ev := newEvent(EventGameInitialized)
	ev.Phase = s.Phase
	ev.Round = s.Round
	return []Event{ev}, nil, nil
}

// execStartGame deals the current round. The whole deal is one atomic
// command: input stays locked from DEALING_STARTED to DEALING_COMPLETED,
// and no foreign command can interleave.
func (c *Controller) execStartGame(s *GameState) ([]Event, []Command, error) {
	var events []Event
	if s.Phase == PhaseSetup {
		ev := newEvent(EventGameStarted)
		ev.Round = s.Round
		events = append(events, ev)
		for _, p := range s.Players {
			c.progress[p.ID].ResetMatchUsage()
		}
	} else {
		for _, p := range s.Players {
			c.progress[p.ID].ResetRoundUsage()
		}
	}

	s.Phase = PhaseDealing
	s.InputLocked = true
	started := newEvent(EventDealingStarted)
	started.Round = s.Round
	events = append(events, started)

	deck := card.NewDeck()
	card.ShuffleSeeded(deck, c.rng.Int63())

	handSize := rules.CardsForRound(s.Round)
	for i := range s.Players {
		hand, rest, err := card.DealExact(deck, handSize)
		if err != nil {
			return nil, nil, err
		}
		deck = rest
		s.Players[i].Hand = hand
		s.Players[i].Drawn = nil
		s.Players[i].HasFinished = false
		for _, dealt := range hand {
			ev := newEvent(EventCardDealt)
			ev.PlayerID = s.Players[i].ID
			ev.CardID = dealt.ID()
			events = append(events, ev)
		}
	}

	// Seed the discard pile from the deck top.
	seed, rest, err := card.DealExact(deck, 1)
	if err != nil {
		return nil, nil, err
	}
	seed[0].FaceUp = true
	s.DiscardPile = seed
	s.Deck = rest

	s.InputLocked = false
	s.Phase = PhasePlaying
	completed := newEvent(EventDealingCompleted)
	completed.Round = s.Round
	events = append(events, completed)

	turn := newEvent(EventTurnStarted)
	turn.PlayerID = s.CurrentPlayer().ID
	turn.Round = s.Round
	events = append(events, turn)
	return events, nil, nil
}

func (c *Controller) execDraw(s *GameState, cmd DrawCard) ([]Event, []Command, error) {
	player, _ := s.PlayerByID(cmd.PlayerID)

	// A pending skip-draw mark consumes the whole turn.
	if s.SkipDrawFor[cmd.PlayerID] {
		delete(s.SkipDrawFor, cmd.PlayerID)
		skipped := newEvent(EventTurnSkipped)
		skipped.PlayerID = cmd.PlayerID
		skipped.Reason = "draw skipped by ability effect"
		return append([]Event{skipped}, advanceTurn(s)...), nil, nil
	}

	var drawn card.Card
	if cmd.FromPile == PileDeck {
		drawn = s.Deck[0]
		s.Deck = s.Deck[1:]
	} else {
		drawn = s.DiscardPile[len(s.DiscardPile)-1]
		s.DiscardPile = s.DiscardPile[:len(s.DiscardPile)-1]
	}
	drawn.FaceUp = true

	ev := newEvent(EventCardDrawn)
	ev.PlayerID = cmd.PlayerID
	ev.CardID = drawn.ID()
	ev.FromPile = cmd.FromPile
	events := []Event{ev}

	// A forced-discard mark sends the draw straight to the discard pile
	// and ends the turn.
	if s.ForcedDiscard[cmd.PlayerID] {
		delete(s.ForcedDiscard, cmd.PlayerID)
		s.DiscardPile = append(s.DiscardPile, drawn)
		disc := newEvent(EventCardDiscarded)
		disc.PlayerID = cmd.PlayerID
		disc.CardID = drawn.ID()
		disc.Reason = "discard forced by ability effect"
		events = append(events, disc)
		return append(events, advanceTurn(s)...), nil, nil
	}

	player.Drawn = &drawn
	return events, nil, nil
}

func (c *Controller) execPlace(s *GameState, cmd PlaceCard) ([]Event, []Command, error) {
	player, _ := s.PlayerByID(cmd.PlayerID)
	placed := *player.Drawn
	placed.FaceUp = true
	displaced := player.Hand[cmd.SlotIndex]
	player.Hand[cmd.SlotIndex] = placed

	ev := newEvent(EventCardPlaced)
	ev.PlayerID = cmd.PlayerID
	ev.CardID = placed.ID()
	ev.Slot = cmd.SlotIndex
	events := []Event{ev}

	// The displaced card is revealed to the player and continues the
	// placement chain as the new drawn card.
	displaced.FaceUp = true
	player.Drawn = &displaced

	if rules.HasPlayerWon(player.Hand, rules.CardsForRound(s.Round)) {
		// The leftover card goes to the discard pile before the round
		// closes.
		s.DiscardPile = append(s.DiscardPile, displaced)
		player.Drawn = nil
		disc := newEvent(EventCardDiscarded)
		disc.PlayerID = cmd.PlayerID
		disc.CardID = displaced.ID()
		events = append(events, disc)
		return append(events, c.finishRound(s, cmd.PlayerID)...), nil, nil
	}
	return events, nil, nil
}

func (c *Controller) execDiscard(s *GameState, cmd DiscardCard) ([]Event, []Command, error) {
	player, _ := s.PlayerByID(cmd.PlayerID)
	discarded := *player.Drawn
	discarded.FaceUp = true
	player.Drawn = nil
	s.DiscardPile = append(s.DiscardPile, discarded)

	ev := newEvent(EventCardDiscarded)
	ev.PlayerID = cmd.PlayerID
	ev.CardID = discarded.ID()
	return append([]Event{ev}, advanceTurn(s)...), nil, nil
}

func (c *Controller) execFlip(s *GameState, cmd FlipCard) ([]Event, []Command, error) {
	player, _ := s.PlayerByID(cmd.PlayerID)
	player.Hand[cmd.SlotIndex].FaceUp = true

	ev := newEvent(EventCardFlipped)
	ev.PlayerID = cmd.PlayerID
	ev.CardID = player.Hand[cmd.SlotIndex].ID()
	ev.Slot = cmd.SlotIndex
	ev.FaceUp = true
	events := []Event{ev}

	if player.Drawn == nil && rules.HasPlayerWon(player.Hand, rules.CardsForRound(s.Round)) {
		return append(events, c.finishRound(s, cmd.PlayerID)...), nil, nil
	}
	return events, nil, nil
}

func (c *Controller) execSkipTurn(s *GameState, cmd SkipTurn) ([]Event, []Command, error) {
	ev := newEvent(EventTurnSkipped)
	ev.PlayerID = cmd.PlayerID
	ev.Reason = cmd.Reason
	return append([]Event{ev}, advanceTurn(s)...), nil, nil
}

func (c *Controller) execEndGame(s *GameState, cmd EndGame) ([]Event, []Command, error) {
	s.Phase = PhaseGameOver
	s.Paused = false
	ev := newEvent(EventGameEnded)
	ev.Reason = cmd.Reason
	ev.Phase = s.Phase
	return []Event{ev}, nil, nil
}

func (c *Controller) execReset(s *GameState, cmd ResetGame) ([]Event, []Command, error) {
	fresh := NewGameState()
	if cmd.KeepPlayers {
		fresh.Players = make([]Player, len(s.Players))
		for i, p := range s.Players {
			fresh.Players[i] = Player{ID: p.ID, Name: p.Name, IsAI: p.IsAI}
		}
	}
	*s = *fresh
	ev := newEvent(EventGameReset)
	ev.Phase = s.Phase
	return []Event{ev}, nil, nil
}

// execAIMove advances an AI player's turn by one step: draw per the hint
// when no card is held, otherwise place when a slot fits and discard when
// none does. The actual move is enqueued as a follow-up command so it
// runs through the same validation as human input.
func (c *Controller) execAIMove(s *GameState, cmd RequestAIMove) ([]Event, []Command, error) {
	player, _ := s.PlayerByID(cmd.PlayerID)
	suggested := newEvent(EventAIMoveSuggested)
	suggested.PlayerID = cmd.PlayerID

	if player.Drawn == nil {
		hint := rules.HintMove(player.Hand, s.DiscardTop())
		suggested.HintAction = hint.Action
		suggested.HintSource = hint.Source
		suggested.Slot = hint.TargetSlot
		suggested.Confidence = hint.Confidence
		follow := DrawCard{CommandMeta: NewMeta(), PlayerID: cmd.PlayerID, FromPile: hint.Source}
		return []Event{suggested}, []Command{follow}, nil
	}

	if slot, ok := rules.PlacementSlot(player.Hand, *player.Drawn); ok {
		suggested.HintAction = "place"
		suggested.Slot = slot
		suggested.Confidence = 1.0
		follow := PlaceCard{
			CommandMeta: NewMeta(),
			PlayerID:    cmd.PlayerID,
			CardID:      player.Drawn.ID(),
			SlotIndex:   slot,
		}
		return []Event{suggested}, []Command{follow}, nil
	}

	suggested.HintAction = "discard"
	suggested.Confidence = 1.0
	follow := DiscardCard{CommandMeta: NewMeta(), PlayerID: cmd.PlayerID, CardID: player.Drawn.ID()}
	return []Event{suggested}, []Command{follow}, nil
}

func (c *Controller) execUnlock(s *GameState, cmd UnlockNode) ([]Event, []Command, error) {
	prog := c.progress[cmd.PlayerID]
	res, rej := progression.UnlockNode(prog, c.registry, cmd.NodeID, cmd.PointType)
	if rej != nil {
		return nil, nil, fmt.Errorf("%s: %s", rej.Code, rej.Reason)
	}
	s.Passives[cmd.PlayerID] = progression.RecomputePassives(prog, c.registry)

	ev := newEvent(EventNodeUnlocked)
	ev.PlayerID = cmd.PlayerID
	ev.NodeID = res.NodeID
	ev.PointType = string(res.PointType)
	ev.TotalSP = prog.TotalSP
	ev.TotalAP = prog.TotalAP
	ev.TotalXP = res.TotalXP
	ev.NewLevel = res.NewLevel
	ev.XPToNextLevel = res.XPToNextLevel
	events := []Event{ev}

	if res.LeveledUp {
		up := newEvent(EventLevelUp)
		up.PlayerID = cmd.PlayerID
		up.NewLevel = res.NewLevel
		up.TotalXP = res.TotalXP
		up.XPToNextLevel = res.XPToNextLevel
		events = append(events, up)
	}
	return events, nil, nil
}

func (c *Controller) execUseAbility(s *GameState, cmd UseAbility) ([]Event, []Command, error) {
	prog := c.progress[cmd.PlayerID]
	ctx := progression.EffectContext{
		PlayerID: cmd.PlayerID,
		DeckPeek: func(n int) []string {
			if n > len(s.Deck) {
				n = len(s.Deck)
			}
			ids := make([]string, n)
			for i := 0; i < n; i++ {
				ids[i] = s.Deck[i].ID()
			}
			return ids
		},
		TargetCardIDs:  cmd.TargetCardIDs,
		TargetPlayerID: cmd.TargetPlayerID,
		Rand:           c.rng,
	}
	outcome, rej := progression.UseAbility(prog, c.registry, cmd.AbilityID, ctx)
	if rej != nil {
		return nil, nil, fmt.Errorf("%s: %s", rej.Code, rej.Reason)
	}

	for _, id := range outcome.ProtectedCards {
		s.ProtectedCards[id] = true
	}
	for _, id := range outcome.DoubledCards {
		s.DoubledCards[id] = true
	}

	target := cmd.TargetPlayerID
	if target == "" {
		target = cmd.PlayerID
	}
	if outcome.SkipDraw {
		s.SkipDrawFor[target] = true
	}

	ev := newEvent(EventAbilityUsed)
	ev.PlayerID = cmd.PlayerID
	ev.AbilityID = cmd.AbilityID
	ev.Message = outcome.Message
	ev.DiceValue = outcome.DiceValue
	ev.CardIDs = outcome.PeekedCardIDs
	events := []Event{ev}

	if outcome.ForceDiscard {
		if tp, _ := s.PlayerByID(target); tp != nil && tp.Drawn != nil {
			discarded := *tp.Drawn
			discarded.FaceUp = true
			tp.Drawn = nil
			s.DiscardPile = append(s.DiscardPile, discarded)
			disc := newEvent(EventCardDiscarded)
			disc.PlayerID = target
			disc.CardID = discarded.ID()
			disc.Reason = "discard forced by ability effect"
			events = append(events, disc)
		} else {
			s.ForcedDiscard[target] = true
		}
	}
	return events, nil, nil
}

// advanceTurn closes the current player's turn and opens the next one.
func advanceTurn(s *GameState) []Event {
	ended := newEvent(EventTurnEnded)
	ended.PlayerID = s.CurrentPlayer().ID
	s.CurrentPlayerIndex = (s.CurrentPlayerIndex + 1) % len(s.Players)
	started := newEvent(EventTurnStarted)
	started.PlayerID = s.CurrentPlayer().ID
	started.Round = s.Round
	return []Event{ended, started}
}

// finishRound closes the round for the winner: face-down cards across all
// hands join the penalty tally, the winner's round score increments and
// the match either advances to the next round or completes.
func (c *Controller) finishRound(s *GameState, winnerID string) []Event {
	won := newEvent(EventRoundWon)
	won.PlayerID = winnerID
	won.Round = s.Round
	events := []Event{won}

	for _, p := range s.Players {
		for _, held := range p.Hand {
			if !held.FaceUp {
				s.FaceDownTally[held.Rank]++
			}
		}
	}
	winner, _ := s.PlayerByID(winnerID)
	winner.Score++
	winner.HasFinished = true

	if s.Round >= rules.MaxRounds {
		return append(events, c.completeMatch(s, winnerID)...)
	}
	s.Round++
	s.Phase = PhaseRoundEnd
	return events
}

// completeMatch settles the match: the winner banks SP and penalty-reduced
// AP, every player's history records the outcome and the game is over.
// Match completion grants no XP; levels move only through node unlocks.
func (c *Controller) completeMatch(s *GameState, winnerID string) []Event {
	s.Phase = PhaseGameOver
	now := time.Now()
	var events []Event

	for _, p := range s.Players {
		prog := c.progress[p.ID]
		if prog == nil {
			continue
		}
		won := p.ID == winnerID
		var tally map[card.Rank]int
		if won {
			tally = s.FaceDownTally
		}
		result := progression.AddMatchResult(prog, won, s.Round, tally, now)

		done := newEvent(EventMatchCompleted)
		done.PlayerID = p.ID
		done.Round = s.Round
		done.SPEarned = result.SPEarned
		done.APEarned = result.APEarned
		done.TotalSP = result.TotalSP
		done.TotalAP = result.TotalAP
		events = append(events, done)

		if won {
			earned := newEvent(EventPointsEarned)
			earned.PlayerID = p.ID
			earned.SPEarned = result.SPEarned
			earned.APEarned = result.APEarned
			earned.TotalSP = result.TotalSP
			earned.TotalAP = result.TotalAP
			events = append(events, earned)
		}
	}

	ended := newEvent(EventGameEnded)
	ended.Phase = s.Phase
	ended.PlayerID = winnerID
	ended.Reason = "match completed"
	events = append(events, ended)
	return events
}
