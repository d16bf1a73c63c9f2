package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailtide/mailtide/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt

	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (id, email, name, settings, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.Email, u.Name, string(settings), u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	u := &models.User{}
	var settings string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, name, settings, created_at, updated_at FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Email, &u.Name, &settings, &u.CreatedAt, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &u.Settings); err != nil {
			return nil, fmt.Errorf("failed to parse user settings: %w", err)
		}
	}
	return u, nil
}

// UpdateSettings replaces the user's sender settings.
func (r *UserRepository) UpdateSettings(ctx context.Context, id string, settings models.SenderSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET settings = ?, updated_at = ? WHERE id = ?",
		string(data), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update user settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("user %s not found", id)
	}
	return nil
}
