package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gifwars/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS games_created_at_idx ON games (created_at);
`

// PostgresRepository stores each game as a single JSONB document.
// Document-level mutations run inside a SELECT ... FOR UPDATE
// transaction, so every operation is atomic per game.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the games table if it does not exist yet.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure games schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateGame(ctx context.Context, g *models.Game) (*models.Game, error) {
	doc := g.Clone()
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game document: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO games (id, doc, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		doc.ID, raw, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return doc, nil
}

func (r *PostgresRepository) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT doc FROM games WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	var g models.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game document: %w", err)
	}
	return &g, nil
}

// withGame loads the document under a row lock, applies fn, and writes
// the result back. fn returning an error rolls the transaction back.
func (r *PostgresRepository) withGame(ctx context.Context, id string, fn func(g *models.Game) error) (*models.Game, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM games WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock game row: %w", err)
	}

	var g models.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game document: %w", err)
	}
	if err := fn(&g); err != nil {
		return nil, err
	}
	g.UpdatedAt = time.Now().UTC()

	updated, err := json.Marshal(&g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game document: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE games SET doc = $2, updated_at = $3 WHERE id = $1`,
		id, updated, g.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit game update: %w", err)
	}
	return &g, nil
}

func (r *PostgresRepository) UpdateGameFields(ctx context.Context, id string, upd FieldUpdate) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		applyFieldUpdate(g, upd)
		return nil
	})
}

func (r *PostgresRepository) UpdateGameFieldsIf(ctx context.Context, id string, cond Condition, upd FieldUpdate) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		if !cond.Matches(g) {
			return ErrConflict
		}
		applyFieldUpdate(g, upd)
		return nil
	})
}

func (r *PostgresRepository) PushGif(ctx context.Context, id string, gif models.SubmittedGif) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		pushGif(g, gif)
		return nil
	})
}

func (r *PostgresRepository) RemoveGif(ctx context.Context, id string, gifID string) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		if !removeGif(g, gifID) {
			return fmt.Errorf("gif %s: %w", gifID, ErrNotFound)
		}
		return nil
	})
}

func (r *PostgresRepository) ReplaceGif(ctx context.Context, id string, gifID string, gif models.SubmittedGif) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		if !replaceGif(g, gifID, gif) {
			return fmt.Errorf("gif %s: %w", gifID, ErrNotFound)
		}
		return nil
	})
}

func (r *PostgresRepository) PushUser(ctx context.Context, id string, user models.User) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		pushUser(g, user)
		return nil
	})
}

func (r *PostgresRepository) RemoveUser(ctx context.Context, id string, userID string) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		if !removeUser(g, userID) {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil
	})
}

func (r *PostgresRepository) ReplaceUser(ctx context.Context, id string, userID string, user models.User) (*models.Game, error) {
	return r.withGame(ctx, id, func(g *models.Game) error {
		if !replaceUser(g, userID, user) {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil
	})
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM games WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired games: %w", err)
	}
	return tag.RowsAffected(), nil
}
