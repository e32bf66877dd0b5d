package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/trashgame/trash-server-go/internal/game/progression"
)

// CommandKind tags each command variant.
type CommandKind string

const (
	KindInitializeGame CommandKind = "InitializeGame"
	KindStartGame      CommandKind = "StartGame"
	KindDrawCard       CommandKind = "DrawCard"
	KindPlaceCard      CommandKind = "PlaceCard"
	KindDiscardCard    CommandKind = "DiscardCard"
	KindFlipCard       CommandKind = "FlipCard"
	KindEndTurn        CommandKind = "EndTurn"
	KindSkipTurn       CommandKind = "SkipTurn"
	KindPauseGame      CommandKind = "PauseGame"
	KindResumeGame     CommandKind = "ResumeGame"
	KindEndGame        CommandKind = "EndGame"
	KindResetGame      CommandKind = "ResetGame"
	KindSaveGame       CommandKind = "SaveGame"
	KindLoadGame       CommandKind = "LoadGame"
	KindUndoMove       CommandKind = "UndoMove"
	KindRequestAIMove  CommandKind = "RequestAIMove"
	KindUnlockNode     CommandKind = "UnlockNode"
	KindUseAbility     CommandKind = "UseAbility"
)

// Pile names for DrawCard.
const (
	PileDeck    = "deck"
	PileDiscard = "discard"
)

// CommandMeta carries the identity every command has. Embedding it seals
// the Command interface to this package.
type CommandMeta struct {
	CommandID string    `json:"commandId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMeta stamps a fresh command identity.
func NewMeta() CommandMeta {
	return CommandMeta{CommandID: uuid.NewString(), Timestamp: time.Now()}
}

// Meta returns the command identity.
func (m CommandMeta) Meta() CommandMeta { return m }

func (CommandMeta) isCommand() {}

// Command is the closed sum of player/AI/UI intents. Commands are
// requests and never carry authority; only the controller decides effect.
// Executor and validator dispatch exhaustively by type, with an explicit
// default that rejects unhandled variants.
type Command interface {
	Kind() CommandKind
	Meta() CommandMeta
	isCommand()
}

// InitializeGame creates a fresh match with the given roster.
type InitializeGame struct {
	CommandMeta
	PlayerCount int      `json:"playerCount"`
	PlayerNames []string `json:"playerNames"`
	IsAI        []bool   `json:"isAI"`
}

func (InitializeGame) Kind() CommandKind { return KindInitializeGame }

// StartGame deals the current round. From SETUP it begins the match;
// from ROUND_END it deals the next round.
type StartGame struct {
	CommandMeta
}

func (StartGame) Kind() CommandKind { return KindStartGame }

// DrawCard takes the top card of the named pile into the player's hand
// transit slot.
type DrawCard struct {
	CommandMeta
	PlayerID string `json:"playerId"`
	FromPile string `json:"fromPile"`
}

func (DrawCard) Kind() CommandKind { return KindDrawCard }

// PlaceCard places the drawn card face up into a hand slot; the card it
// displaces becomes the new drawn card.
type PlaceCard struct {
	CommandMeta
	PlayerID  string `json:"playerId"`
	CardID    string `json:"cardId"`
	SlotIndex int    `json:"slotIndex"`
}

func (PlaceCard) Kind() CommandKind { return KindPlaceCard }

// DiscardCard ends the placement chain by discarding the drawn card,
// which also ends the turn.
type DiscardCard struct {
	CommandMeta
	PlayerID string `json:"playerId"`
	CardID   string `json:"cardId"`
}

func (DiscardCard) Kind() CommandKind { return KindDiscardCard }

// FlipCard turns the card at a hand slot face up.
type FlipCard struct {
	CommandMeta
	PlayerID  string `json:"playerId"`
	SlotIndex int    `json:"slotIndex"`
}

func (FlipCard) Kind() CommandKind { return KindFlipCard }

// EndTurn passes the turn without discarding (legal only when no drawn
// card is pending).
type EndTurn struct {
	CommandMeta
	PlayerID string `json:"playerId"`
}

func (EndTurn) Kind() CommandKind { return KindEndTurn }

// SkipTurn advances the turn with a reason, used by flow control and
// ability effects.
type SkipTurn struct {
	CommandMeta
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

func (SkipTurn) Kind() CommandKind { return KindSkipTurn }

// PauseGame suspends play.
type PauseGame struct {
	CommandMeta
}

func (PauseGame) Kind() CommandKind { return KindPauseGame }

// ResumeGame resumes a paused match.
type ResumeGame struct {
	CommandMeta
}

func (ResumeGame) Kind() CommandKind { return KindResumeGame }

// EndGame terminates the match immediately.
type EndGame struct {
	CommandMeta
	Reason string `json:"reason"`
}

func (EndGame) Kind() CommandKind { return KindEndGame }

// ResetGame replaces the match state wholesale. Player progression is
// not reset.
type ResetGame struct {
	CommandMeta
	KeepPlayers bool `json:"keepPlayers"`
}

func (ResetGame) Kind() CommandKind { return KindResetGame }

// SaveGame persists the current snapshot under a save id (stub boundary).
type SaveGame struct {
	CommandMeta
	SaveID string `json:"saveId"`
}

func (SaveGame) Kind() CommandKind { return KindSaveGame }

// LoadGame restores a previously saved snapshot (stub boundary).
type LoadGame struct {
	CommandMeta
	SaveID string `json:"saveId"`
}

func (LoadGame) Kind() CommandKind { return KindLoadGame }

// UndoMove restores the previous snapshot from the undo history.
type UndoMove struct {
	CommandMeta
}

func (UndoMove) Kind() CommandKind { return KindUndoMove }

// RequestAIMove asks the engine to advance an AI player's turn by one
// step. The AI scheduler submits these on a delay.
type RequestAIMove struct {
	CommandMeta
	PlayerID string `json:"playerId"`
}

func (RequestAIMove) Kind() CommandKind { return KindRequestAIMove }

// UnlockNode purchases a progression tree node.
type UnlockNode struct {
	CommandMeta
	PlayerID  string                `json:"playerId"`
	NodeID    string                `json:"nodeId"`
	PointType progression.PointType `json:"pointType"`
}

func (UnlockNode) Kind() CommandKind { return KindUnlockNode }

// UseAbility activates an unlocked ability.
type UseAbility struct {
	CommandMeta
	PlayerID       string   `json:"playerId"`
	AbilityID      string   `json:"abilityId"`
	TargetCardIDs  []string `json:"targetCardIds,omitempty"`
	TargetPlayerID string   `json:"targetPlayerId,omitempty"`
}

func (UseAbility) Kind() CommandKind { return KindUseAbility }
