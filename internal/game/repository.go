package game

import (
	"context"
	"errors"
	"time"

	"gifwars/internal/models"
)

var (
	// ErrNotFound signals an unknown game, user, or gif id. It is a
	// condition surfaced to the caller, not a fatal error.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a conditional update whose condition did not
	// match the stored document.
	ErrConflict = errors.New("conditional update did not match")
)

// Repository is the document-store contract the round engine depends on.
// Every update returns the post-update snapshot of the game document.
type Repository interface {
	CreateGame(ctx context.Context, g *models.Game) (*models.Game, error)
	GetGame(ctx context.Context, id string) (*models.Game, error)

	// UpdateGameFields applies a partial field-level update atomically.
	UpdateGameFields(ctx context.Context, id string, upd FieldUpdate) (*models.Game, error)
	// UpdateGameFieldsIf applies the update only while cond still matches
	// the stored document, returning ErrConflict otherwise. Phase-end
	// transitions use this to stay idempotent under racing triggers.
	UpdateGameFieldsIf(ctx context.Context, id string, cond Condition, upd FieldUpdate) (*models.Game, error)

	PushGif(ctx context.Context, id string, gif models.SubmittedGif) (*models.Game, error)
	RemoveGif(ctx context.Context, id string, gifID string) (*models.Game, error)
	ReplaceGif(ctx context.Context, id string, gifID string, gif models.SubmittedGif) (*models.Game, error)

	PushUser(ctx context.Context, id string, user models.User) (*models.Game, error)
	RemoveUser(ctx context.Context, id string, userID string) (*models.Game, error)
	ReplaceUser(ctx context.Context, id string, userID string, user models.User) (*models.Game, error)

	// DeleteExpired removes games created before the cutoff and reports
	// how many were deleted.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
