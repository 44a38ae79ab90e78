package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gifwars/internal/models"
)

// MemoryRepository is an in-process implementation of Repository.
// It backs single-node deployments without Postgres and the engine's
// tests. All operations are serialized on one mutex and hand out
// deep copies, never aliases into stored state.
type MemoryRepository struct {
	mu    sync.Mutex
	games map[string]*models.Game
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{games: make(map[string]*models.Game)}
}

func (r *MemoryRepository) CreateGame(ctx context.Context, g *models.Game) (*models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := g.Clone()
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	r.games[doc.ID] = doc
	return doc.Clone(), nil
}

func (r *MemoryRepository) GetGame(ctx context.Context, id string) (*models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	return g.Clone(), nil
}

func (r *MemoryRepository) withGame(id string, fn func(g *models.Game) error) (*models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.games[id]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	next := g.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	r.games[id] = next
	return next.Clone(), nil
}

func (r *MemoryRepository) UpdateGameFields(ctx context.Context, id string, upd FieldUpdate) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		applyFieldUpdate(g, upd)
		return nil
	})
}

func (r *MemoryRepository) UpdateGameFieldsIf(ctx context.Context, id string, cond Condition, upd FieldUpdate) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		if !cond.Matches(g) {
			return ErrConflict
		}
		applyFieldUpdate(g, upd)
		return nil
	})
}

func (r *MemoryRepository) PushGif(ctx context.Context, id string, gif models.SubmittedGif) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		pushGif(g, gif)
		return nil
	})
}

func (r *MemoryRepository) RemoveGif(ctx context.Context, id string, gifID string) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		if !removeGif(g, gifID) {
			return fmt.Errorf("gif %s: %w", gifID, ErrNotFound)
		}
		return nil
	})
}

func (r *MemoryRepository) ReplaceGif(ctx context.Context, id string, gifID string, gif models.SubmittedGif) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		if !replaceGif(g, gifID, gif) {
			return fmt.Errorf("gif %s: %w", gifID, ErrNotFound)
		}
		return nil
	})
}

func (r *MemoryRepository) PushUser(ctx context.Context, id string, user models.User) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		pushUser(g, user)
		return nil
	})
}

func (r *MemoryRepository) RemoveUser(ctx context.Context, id string, userID string) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		if !removeUser(g, userID) {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil
	})
}

func (r *MemoryRepository) ReplaceUser(ctx context.Context, id string, userID string, user models.User) (*models.Game, error) {
	return r.withGame(id, func(g *models.Game) error {
		if !replaceUser(g, userID, user) {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil
	})
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, g := range r.games {
		if g.CreatedAt.Before(cutoff) {
			delete(r.games, id)
			deleted++
		}
	}
	return deleted, nil
}
