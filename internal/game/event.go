package game

import (
	"time"

	"github.com/google/uuid"
)

// EventType indicates the category of an engine event.
type EventType string

const (
	// Lifecycle events
	EventGameInitialized  EventType = "GAME_INITIALIZED"
	EventGameStarted      EventType = "GAME_STARTED"
	EventDealingStarted   EventType = "DEALING_STARTED"
	EventDealingCompleted EventType = "DEALING_COMPLETED"
	EventGamePaused       EventType = "GAME_PAUSED"
	EventGameResumed      EventType = "GAME_RESUMED"
	EventGameEnded        EventType = "GAME_ENDED"
	EventGameReset        EventType = "GAME_RESET"
	EventGameSaved        EventType = "GAME_SAVED"
	EventGameLoaded       EventType = "GAME_LOADED"

	// Card events
	EventCardDealt     EventType = "CARD_DEALT"
	EventCardDrawn     EventType = "CARD_DRAWN"
	EventCardPlaced    EventType = "CARD_PLACED"
	EventCardFlipped   EventType = "CARD_FLIPPED"
	EventCardDiscarded EventType = "CARD_DISCARDED"

	// Turn/round events
	EventTurnStarted EventType = "TURN_STARTED"
	EventTurnEnded   EventType = "TURN_ENDED"
	EventTurnSkipped EventType = "TURN_SKIPPED"
	EventRoundWon    EventType = "ROUND_WON"

	// Progression events
	EventNodeUnlocked   EventType = "NODE_UNLOCKED"
	EventNodeSold       EventType = "NODE_SOLD"
	EventPointsEarned   EventType = "POINTS_EARNED"
	EventLevelUp        EventType = "LEVEL_UP"
	EventMatchCompleted EventType = "MATCH_COMPLETED"
	EventAbilityUsed    EventType = "ABILITY_USED"

	// Control events
	EventStateChanged    EventType = "STATE_CHANGED"
	EventCommandRejected EventType = "COMMAND_REJECTED"
	EventInvalidMove     EventType = "INVALID_MOVE"
	EventUndoApplied     EventType = "UNDO_APPLIED"
	EventAIMoveSuggested EventType = "AI_MOVE_SUGGESTED"
)

// Event is a read-only fact about a state change or rejection. Events are
// delivered by value; consumers cannot mutate engine state through them
// or feed them back as authoritative input.
type Event struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	PlayerID string   `json:"playerId,omitempty"`
	CardID   string   `json:"cardId,omitempty"`
	CardIDs  []string `json:"cardIds,omitempty"`
	Slot     int      `json:"slot,omitempty"`
	FromPile string   `json:"fromPile,omitempty"`
	FaceUp   bool     `json:"faceUp,omitempty"`

	Phase GamePhase `json:"phase,omitempty"`
	Round int       `json:"round,omitempty"`

	// Rejection context
	Reason          string      `json:"reason,omitempty"`
	RejectCode      string      `json:"rejectCode,omitempty"`
	CommandID       string      `json:"commandId,omitempty"`
	CommandKind     CommandKind `json:"commandKind,omitempty"`
	AttemptedAction string      `json:"attemptedAction,omitempty"`

	// Progression context
	NodeID        string `json:"nodeId,omitempty"`
	AbilityID     string `json:"abilityId,omitempty"`
	PointType     string `json:"pointType,omitempty"`
	SPEarned      int    `json:"spEarned,omitempty"`
	APEarned      int    `json:"apEarned,omitempty"`
	TotalSP       int    `json:"totalSP,omitempty"`
	TotalAP       int    `json:"totalAP,omitempty"`
	NewLevel      int    `json:"newLevel,omitempty"`
	TotalXP       int    `json:"totalXP,omitempty"`
	XPToNextLevel int    `json:"xpToNextLevel,omitempty"`
	DiceValue     int    `json:"diceValue,omitempty"`
	Message       string `json:"message,omitempty"`

	// AI hint context
	HintAction string  `json:"hintAction,omitempty"`
	HintSource string  `json:"hintSource,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Snapshot accompanies StateChanged and GameLoaded only. Snapshots
	// are immutable once published.
	Snapshot *GameState `json:"snapshot,omitempty"`
}

// newEvent creates an event with identity and timestamp populated.
func newEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
	}
}
