package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/libs/db"
)

const ProviderGoogle = "google_calendar"

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Upsert(ctx context.Context, userID, provider, accessToken, refreshToken string, expiry time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO integrations (id, user_id, provider, access_token, refresh_token, expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry
	`, uuid.NewString(), userID, provider, accessToken, refreshToken, expiry)
	return err
}

func (r *Repository) Get(ctx context.Context, userID, provider string) (model.Integration, error) {
	var in model.Integration
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, provider, access_token, refresh_token, expiry, created_at
		FROM integrations
		WHERE user_id = $1 AND provider = $2
	`, userID, provider).Scan(
		&in.ID,
		&in.UserID,
		&in.Provider,
		&in.AccessToken,
		&in.RefreshToken,
		&in.Expiry,
		&in.CreatedAt,
	)
	if err != nil {
		return model.Integration{}, err
	}
	return in, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]model.Integration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id::text, provider, access_token, refresh_token, expiry, created_at
		FROM integrations
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Integration
	for rows.Next() {
		var in model.Integration
		if err := rows.Scan(
			&in.ID,
			&in.UserID,
			&in.Provider,
			&in.AccessToken,
			&in.RefreshToken,
			&in.Expiry,
			&in.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
