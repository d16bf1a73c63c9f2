package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailtide/mailtide/internal/models"
)

type ListRepository struct {
	db *sql.DB
}

func NewListRepository(db *sql.DB) *ListRepository {
	return &ListRepository{db: db}
}

// Create creates a new list.
func (r *ListRepository) Create(ctx context.Context, l *models.List) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO lists (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		l.ID, l.Name, l.Description, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create list: %w", err)
	}
	return nil
}

// Get returns a list with its subscribers in insertion order, or nil if
// not found.
func (r *ListRepository) Get(ctx context.Context, id string) (*models.List, error) {
	l := &models.List{}
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, description, created_at, updated_at FROM lists WHERE id = ?", id,
	).Scan(&l.ID, &l.Name, &l.Description, &l.CreatedAt, &l.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, list_id, email, first_name, last_name, COALESCE(metadata, ''), status, added_at
		FROM subscribers WHERE list_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.ListID, &s.Email, &s.FirstName, &s.LastName, &s.Metadata, &s.Status, &s.AddedAt); err != nil {
			return nil, err
		}
		l.Subscribers = append(l.Subscribers, s)
	}
	return l, rows.Err()
}

// AddSubscriber appends a subscriber at the end of the list.
func (r *ListRepository) AddSubscriber(ctx context.Context, s *models.Subscriber) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = models.SubscriberActive
	}
	s.AddedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, list_id, email, first_name, last_name, metadata, status, position, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM subscribers WHERE list_id = ?), ?)`,
		s.ID, s.ListID, s.Email, s.FirstName, s.LastName, s.Metadata, s.Status, s.ListID, s.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

// UpdateSubscriberStatus updates the status of a subscriber by list and
// email (case-insensitive).
func (r *ListRepository) UpdateSubscriberStatus(ctx context.Context, listID, email string, status models.SubscriberStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE subscribers SET status = ? WHERE list_id = ? AND email = ? COLLATE NOCASE",
		status, listID, email,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscriber status: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("subscriber %s not found in list %s", email, listID)
	}
	return nil
}
