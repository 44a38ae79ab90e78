package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gifwars/internal/models"
)

func seedGame(t *testing.T, r *MemoryRepository) *models.Game {
	t.Helper()
	g, err := r.CreateGame(context.Background(), &models.Game{
		ID: "g1",
		Users: []models.User{
			{ID: "u1", Name: "ana"},
			{ID: "u2", Name: "bo"},
		},
		SubmittedGifs: []models.SubmittedGif{},
	})
	require.NoError(t, err)
	return g
}

func TestGetGameUnknownID(t *testing.T) {
	r := NewMemoryRepository()
	_, err := r.GetGame(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	r := NewMemoryRepository()
	g := seedGame(t, r)

	// Mutating a returned snapshot must not leak into the store.
	g.Users[0].Score = 99
	g.Topic = "tampered"

	stored, err := r.GetGame(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Users[0].Score)
	assert.Equal(t, "", stored.Topic)
}

func TestUpdateGameFields(t *testing.T) {
	r := NewMemoryRepository()
	seedGame(t, r)

	started := true
	topic := "bad haircuts"
	n := 1
	g, err := r.UpdateGameFields(context.Background(), "g1", FieldUpdate{
		Started:     &started,
		Topic:       &topic,
		RoundNumber: &n,
	})
	require.NoError(t, err)
	assert.True(t, g.Started)
	assert.Equal(t, "bad haircuts", g.Topic)
	assert.Equal(t, 1, g.RoundNumber)
}

func TestUpdateGameFieldsIfConflict(t *testing.T) {
	r := NewMemoryRepository()
	seedGame(t, r)

	active := true
	inactive := false
	_, err := r.UpdateGameFieldsIf(context.Background(), "g1",
		Condition{SubmissionActive: &active},
		FieldUpdate{SubmissionActive: &inactive},
	)
	require.ErrorIs(t, err, ErrConflict)

	// The conflicting attempt leaves the document untouched.
	g, err := r.GetGame(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, g.SubmissionActive)
}

func TestResetUserRoundClearsFlags(t *testing.T) {
	r := NewMemoryRepository()
	seedGame(t, r)
	ctx := context.Background()

	_, err := r.ReplaceUser(ctx, "g1", "u1", models.User{
		Name: "ana", HasSubmitted: true, VotedGif: "gif-1", Score: 2,
	})
	require.NoError(t, err)

	g, err := r.UpdateGameFields(ctx, "g1", FieldUpdate{ResetUserRound: true})
	require.NoError(t, err)
	u := g.UserByID("u1")
	require.NotNil(t, u)
	assert.False(t, u.HasSubmitted)
	assert.Equal(t, "", u.VotedGif)
	assert.Equal(t, 2, u.Score, "scores survive the round reset")
}

func TestGifLifecycle(t *testing.T) {
	r := NewMemoryRepository()
	seedGame(t, r)
	ctx := context.Background()

	g, err := r.PushGif(ctx, "g1", models.SubmittedGif{ID: "gif-1", UserID: "u1", Content: "a.gif"})
	require.NoError(t, err)
	require.Len(t, g.SubmittedGifs, 1)

	g, err = r.ReplaceGif(ctx, "g1", "gif-1", models.SubmittedGif{ID: "ignored", UserID: "u1", Content: "b.gif"})
	require.NoError(t, err)
	require.Len(t, g.SubmittedGifs, 1)
	assert.Equal(t, "gif-1", g.SubmittedGifs[0].ID, "replace keeps the stored id")
	assert.Equal(t, "b.gif", g.SubmittedGifs[0].Content)

	_, err = r.ReplaceGif(ctx, "g1", "missing", models.SubmittedGif{})
	require.ErrorIs(t, err, ErrNotFound)

	g, err = r.RemoveGif(ctx, "g1", "gif-1")
	require.NoError(t, err)
	assert.Empty(t, g.SubmittedGifs)

	_, err = r.RemoveGif(ctx, "g1", "gif-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserLifecycle(t *testing.T) {
	r := NewMemoryRepository()
	seedGame(t, r)
	ctx := context.Background()

	g, err := r.PushUser(ctx, "g1", models.User{ID: "u3", Name: "cyd"})
	require.NoError(t, err)
	require.Len(t, g.Users, 3)

	g, err = r.RemoveUser(ctx, "g1", "u3")
	require.NoError(t, err)
	require.Len(t, g.Users, 2)

	_, err = r.RemoveUser(ctx, "g1", "u3")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteExpired(t *testing.T) {
	r := NewMemoryRepository()
	ctx := context.Background()

	old := &models.Game{ID: "old", CreatedAt: time.Now().UTC().Add(-5 * time.Hour)}
	fresh := &models.Game{ID: "fresh"}
	_, err := r.CreateGame(ctx, old)
	require.NoError(t, err)
	_, err = r.CreateGame(ctx, fresh)
	require.NoError(t, err)

	deleted, err := r.DeleteExpired(ctx, time.Now().UTC().Add(-4*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = r.GetGame(ctx, "old")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetGame(ctx, "fresh")
	require.NoError(t, err)
}
