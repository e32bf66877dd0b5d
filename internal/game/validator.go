package game

import (
	"fmt"

	"github.com/trashgame/trash-server-go/internal/game/progression"
	"github.com/trashgame/trash-server-go/internal/game/rules"
)

// Rejection codes for validation failures outside the progression gates.
const (
	CodeValidationRejected   = "ValidationRejected"
	CodeInsufficientResource = "InsufficientResource"
	CodeNotFound             = "NotFound"
)

// ValidationResult is the verdict of validating one command against one
// state. Validation never mutates state and never emits events; the
// controller translates an invalid result into a rejection event.
type ValidationResult struct {
	Valid  bool
	Code   string
	Reason string
}

func valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func invalid(code, format string, args ...interface{}) ValidationResult {
	return ValidationResult{Valid: false, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// inputLockAllowed is the fixed allow-list of commands that may proceed
// while state.InputLocked is set (the deal is running).
var inputLockAllowed = map[CommandKind]bool{
	KindSaveGame:  true,
	KindPauseGame: true,
	KindEndGame:   true,
}

// pauseAllowed is the allow-list while the match is paused.
var pauseAllowed = map[CommandKind]bool{
	KindResumeGame: true,
	KindSaveGame:   true,
	KindEndGame:    true,
}

// phaseAllowed maps each phase to the command kinds it accepts. DEALING
// allows none: the deal is an atomic engine-driven sequence, not
// user-triggered.
var phaseAllowed = map[GamePhase]map[CommandKind]bool{
	PhaseSetup: {
		KindInitializeGame: true,
		KindStartGame:      true,
		KindLoadGame:       true,
		KindSaveGame:       true,
		KindResetGame:      true,
		KindUnlockNode:     true,
	},
	PhaseDealing: {},
	PhasePlaying: {
		KindDrawCard:      true,
		KindPlaceCard:     true,
		KindDiscardCard:   true,
		KindFlipCard:      true,
		KindEndTurn:       true,
		KindSkipTurn:      true,
		KindPauseGame:     true,
		KindResumeGame:    true,
		KindEndGame:       true,
		KindResetGame:     true,
		KindSaveGame:      true,
		KindLoadGame:      true,
		KindUndoMove:      true,
		KindRequestAIMove: true,
		KindUnlockNode:    true,
		KindUseAbility:    true,
	},
	PhaseRoundEnd: {
		KindStartGame:  true,
		KindEndGame:    true,
		KindResetGame:  true,
		KindSaveGame:   true,
		KindUndoMove:   true,
		KindUnlockNode: true,
	},
	PhaseGameOver: {
		KindResetGame: true,
		KindSaveGame:  true,
	},
}

// Validator is the pure (command, state) -> result gate. It combines the
// input-lock gate, the phase gate and command-specific checks, delegating
// to the rule engine and progression engine where they own the rules.
type Validator struct {
	Registry *progression.Registry
}

// Validate checks one command against one state. The same command
// against the same unchanged state always yields the identical reason.
func (v *Validator) Validate(s *GameState, progress map[string]*progression.Progress, cmd Command) ValidationResult {
	kind := cmd.Kind()

	if s.InputLocked && !inputLockAllowed[kind] {
		return invalid(CodeValidationRejected, "input is locked; %s not allowed", kind)
	}
	if s.Paused && !pauseAllowed[kind] {
		return invalid(CodeValidationRejected, "game is paused; %s not allowed", kind)
	}
	if !phaseAllowed[s.Phase][kind] {
		return invalid(CodeValidationRejected, "%s not allowed in phase %s", kind, s.Phase)
	}

	switch c := cmd.(type) {
	case InitializeGame:
		return v.validateInitialize(c)
	case StartGame:
		if len(s.Players) == 0 {
			return invalid(CodeValidationRejected, "no players; initialize the game first")
		}
		return valid()
	case DrawCard:
		return v.validateDraw(s, c)
	case PlaceCard:
		return v.validatePlace(s, c)
	case DiscardCard:
		return v.validateDiscard(s, c)
	case FlipCard:
		return v.validateFlip(s, c)
	case EndTurn:
		return v.validateEndTurn(s, c)
	case SkipTurn:
		if _, idx := s.PlayerByID(c.PlayerID); idx < 0 {
			return invalid(CodeNotFound, "unknown player %q", c.PlayerID)
		}
		return valid()
	case PauseGame, ResumeGame, EndGame, ResetGame, UndoMove:
		return valid()
	case SaveGame:
		if c.SaveID == "" {
			return invalid(CodeValidationRejected, "save id is required")
		}
		return valid()
	case LoadGame:
		if c.SaveID == "" {
			return invalid(CodeValidationRejected, "save id is required")
		}
		return valid()
	case RequestAIMove:
		p, idx := s.PlayerByID(c.PlayerID)
		if idx < 0 {
			return invalid(CodeNotFound, "unknown player %q", c.PlayerID)
		}
		if !p.IsAI {
			return invalid(CodeValidationRejected, "player %q is not an AI", c.PlayerID)
		}
		return valid()
	case UnlockNode:
		prog, ok := progress[c.PlayerID]
		if !ok {
			return invalid(CodeNotFound, "no progression for player %q", c.PlayerID)
		}
		if rej := progression.CheckUnlock(prog, v.Registry, c.NodeID, c.PointType); rej != nil {
			return invalid(rej.Code, "%s", rej.Reason)
		}
		return valid()
	case UseAbility:
		if _, idx := s.PlayerByID(c.PlayerID); idx < 0 {
			return invalid(CodeNotFound, "unknown player %q", c.PlayerID)
		}
		prog, ok := progress[c.PlayerID]
		if !ok {
			return invalid(CodeNotFound, "no progression for player %q", c.PlayerID)
		}
		if rej := progression.CheckAbilityUse(prog, v.Registry, c.AbilityID); rej != nil {
			return invalid(rej.Code, "%s", rej.Reason)
		}
		return valid()
	default:
		// Closed sum: a new command kind must be given a case here.
		return invalid(CodeValidationRejected, "unhandled command kind %s", kind)
	}
}

func (v *Validator) validateInitialize(c InitializeGame) ValidationResult {
	if c.PlayerCount < 2 || c.PlayerCount > 4 {
		return invalid(CodeValidationRejected, "player count must be 2-4, got %d", c.PlayerCount)
	}
	if len(c.PlayerNames) != c.PlayerCount {
		return invalid(CodeValidationRejected,
			"expected %d player names, got %d", c.PlayerCount, len(c.PlayerNames))
	}
	if len(c.IsAI) != 0 && len(c.IsAI) != c.PlayerCount {
		return invalid(CodeValidationRejected,
			"isAI must be empty or have %d entries, got %d", c.PlayerCount, len(c.IsAI))
	}
	return valid()
}

func (v *Validator) requireTurn(s *GameState, playerID string) (int, ValidationResult) {
	_, idx := s.PlayerByID(playerID)
	if idx < 0 {
		return -1, invalid(CodeNotFound, "unknown player %q", playerID)
	}
	if idx != s.CurrentPlayerIndex {
		return -1, invalid(CodeValidationRejected, "it is not player %q's turn", playerID)
	}
	return idx, valid()
}

func (v *Validator) validateDraw(s *GameState, c DrawCard) ValidationResult {
	idx, res := v.requireTurn(s, c.PlayerID)
	if !res.Valid {
		return res
	}
	if s.Players[idx].Drawn != nil {
		return invalid(CodeValidationRejected,
			"player %q already holds a drawn card", c.PlayerID)
	}
	switch c.FromPile {
	case PileDeck:
		if len(s.Deck) == 0 {
			return invalid(CodeInsufficientResource, "the deck is empty")
		}
	case PileDiscard:
		if len(s.DiscardPile) == 0 {
			return invalid(CodeInsufficientResource, "the discard pile is empty")
		}
	default:
		return invalid(CodeValidationRejected, "unknown pile %q", c.FromPile)
	}
	return valid()
}

func (v *Validator) validatePlace(s *GameState, c PlaceCard) ValidationResult {
	idx, res := v.requireTurn(s, c.PlayerID)
	if !res.Valid {
		return res
	}
	player := &s.Players[idx]
	if player.Drawn == nil {
		return invalid(CodeValidationRejected, "player %q has no drawn card", c.PlayerID)
	}
	if player.Drawn.ID() != c.CardID {
		return invalid(CodeNotFound,
			"card %q is not the drawn card (%s)", c.CardID, player.Drawn.ID())
	}
	if move := rules.ValidateMove(player.Hand, *player.Drawn, c.SlotIndex); !move.Legal {
		return invalid(CodeValidationRejected, "%s", move.Reason)
	}
	return valid()
}

func (v *Validator) validateDiscard(s *GameState, c DiscardCard) ValidationResult {
	idx, res := v.requireTurn(s, c.PlayerID)
	if !res.Valid {
		return res
	}
	player := &s.Players[idx]
	if player.Drawn == nil {
		return invalid(CodeValidationRejected, "player %q has no drawn card", c.PlayerID)
	}
	if player.Drawn.ID() != c.CardID {
		return invalid(CodeNotFound,
			"card %q is not the drawn card (%s)", c.CardID, player.Drawn.ID())
	}
	return valid()
}

func (v *Validator) validateEndTurn(s *GameState, c EndTurn) ValidationResult {
	idx, res := v.requireTurn(s, c.PlayerID)
	if !res.Valid {
		return res
	}
	if s.Players[idx].Drawn != nil {
		return invalid(CodeValidationRejected,
			"player %q must place or discard the drawn card before ending the turn", c.PlayerID)
	}
	return valid()
}

func (v *Validator) validateFlip(s *GameState, c FlipCard) ValidationResult {
	idx, res := v.requireTurn(s, c.PlayerID)
	if !res.Valid {
		return res
	}
	player := &s.Players[idx]
	if c.SlotIndex < 0 || c.SlotIndex >= len(player.Hand) {
		return invalid(CodeValidationRejected,
			"slot %d out of range for a %d-card hand", c.SlotIndex, len(player.Hand))
	}
	if player.Hand[c.SlotIndex].FaceUp {
		return invalid(CodeValidationRejected, "slot %d is already face up", c.SlotIndex)
	}
	return valid()
}
