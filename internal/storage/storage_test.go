package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashgame/trash-server-go/internal/game"
	"github.com/trashgame/trash-server-go/internal/game/card"
	"github.com/trashgame/trash-server-go/internal/game/progression"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "trash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleState() *game.GameState {
	s := game.NewGameState()
	s.Phase = game.PhasePlaying
	s.Round = 3
	deck := card.NewDeck()
	hand, rest := card.Deal(deck, 8)
	s.Players = []game.Player{{ID: "player_1", Name: "Ada", Hand: hand, Score: 2}}
	s.Deck = rest
	return s
}

func TestSQLiteStore_OpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestSQLiteStore_SnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	state := sampleState()

	require.NoError(t, store.SaveSnapshot(ctx, "slot1", state))
	loaded, err := store.LoadSnapshot(ctx, "slot1")
	require.NoError(t, err)
	assert.Equal(t, state.Phase, loaded.Phase)
	assert.Equal(t, state.Round, loaded.Round)
	require.Len(t, loaded.Players, 1)
	assert.Equal(t, state.Players[0].Hand, loaded.Players[0].Hand)
	assert.Len(t, loaded.Deck, len(state.Deck))
}

func TestSQLiteStore_SnapshotOverwrite(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := sampleState()
	require.NoError(t, store.SaveSnapshot(ctx, "slot1", first))

	second := sampleState()
	second.Round = 7
	require.NoError(t, store.SaveSnapshot(ctx, "slot1", second))

	loaded, err := store.LoadSnapshot(ctx, "slot1")
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Round)
}

func TestSQLiteStore_LoadMissingSnapshot(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadSnapshot(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLiteStore_ProgressRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	p := progression.NewProgress("player_1")
	p.TotalSP = 12
	p.TotalAP = 4
	p.TotalXP = 25
	p.Level = progression.LevelForXP(25)
	p.UnlockedSkills["skill_keen_eye"] = true

	require.NoError(t, store.SaveProgress(ctx, p))
	loaded, err := store.LoadProgress(ctx, "player_1")
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.TotalSP)
	assert.Equal(t, 4, loaded.TotalAP)
	assert.Equal(t, p.Level, loaded.Level)
	assert.True(t, loaded.UnlockedSkills["skill_keen_eye"])

	_, err = store.LoadProgress(ctx, "stranger")
	assert.Error(t, err)
}

func TestSQLiteStore_ListSaves(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "alpha", sampleState()))
	require.NoError(t, store.SaveSnapshot(ctx, "beta", sampleState()))

	ids, err := store.ListSaves(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, ids)
}

func TestMemoryStore_IsolatesSnapshots(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	state := sampleState()

	require.NoError(t, store.SaveSnapshot(ctx, "slot1", state))
	// Mutating the original must not reach the stored copy.
	state.Round = 99
	loaded, err := store.LoadSnapshot(ctx, "slot1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Round)
}

func TestMemoryStore_ProgressRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	p := progression.NewProgress("player_2")
	p.TotalAP = 9
	require.NoError(t, store.SaveProgress(ctx, p))

	loaded, err := store.LoadProgress(ctx, "player_2")
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.TotalAP)

	_, err = store.LoadProgress(ctx, "ghost")
	assert.Error(t, err)
}
