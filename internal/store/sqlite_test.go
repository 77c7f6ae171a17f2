package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/evac-dialogue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "turns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndListTurns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 1; i <= 4; i++ {
		turn := &domain.Turn{
			SessionID:  "s1",
			TownPerson: "bob",
			Speaker:    "Operator",
			Content:    fmt.Sprintf("m%d", i),
		}
		require.NoError(t, s.SaveTurn(ctx, turn))
		assert.NotZero(t, turn.ID)
	}
	require.NoError(t, s.SaveTurn(ctx, &domain.Turn{
		SessionID: "s2", TownPerson: "bob", Speaker: "Bob", Content: "hi",
		Category: "greetings", StageSelected: true,
	}))

	all, err := s.ListTurns(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "m1", all[0].Content)

	recent, err := s.ListTurns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m3", recent[0].Content)
	assert.Equal(t, "m4", recent[1].Content)

	other, err := s.ListTurns(ctx, "s2", 0)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "greetings", other[0].Category)
	assert.True(t, other[0].StageSelected)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, sessions)
}

func TestListTurnsUnknownSession(t *testing.T) {
	s := newTestStore(t)
	turns, err := s.ListTurns(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveTurn(ctx, &domain.Turn{SessionID: "s1", TownPerson: "bob", Speaker: "Operator", Content: "a"}))
	require.NoError(t, s.SaveTurn(ctx, &domain.Turn{SessionID: "s1", TownPerson: "bob", Speaker: "Bob", Content: "b"}))

	n, err := s.DeleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	turns, err := s.ListTurns(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestCleanupOlderThan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.SaveTurn(ctx, &domain.Turn{
		SessionID: "old", TownPerson: "bob", Speaker: "Operator", Content: "a",
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))
	require.NoError(t, s.SaveTurn(ctx, &domain.Turn{SessionID: "new", TownPerson: "bob", Speaker: "Operator", Content: "b"}))

	n, err := s.CleanupOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, sessions)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
