package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mailtide/mailtide/internal/models"
)

// SnapshotRepository stores the frozen recipient set of a sending
// campaign. The snapshot is written once at the transition to sending and
// then only read, positionally, by the batch processor.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Snapshot freezes the given subscribers, in order, for a campaign. Any
// previous snapshot for the campaign is replaced. Returns the snapshot
// size.
func (r *SnapshotRepository) Snapshot(ctx context.Context, campaignID string, subs []models.Subscriber) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM campaign_recipients WHERE campaign_id = ?", campaignID); err != nil {
		return 0, fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_recipients (campaign_id, position, subscriber_id, email, first_name, last_name, list_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range subs {
		if _, err := stmt.ExecContext(ctx, campaignID, i, s.ID, s.Email, s.FirstName, s.LastName, s.ListID); err != nil {
			return 0, fmt.Errorf("failed to snapshot recipient %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return len(subs), nil
}

// Slice returns snapshot positions [offset, offset+limit) in order.
func (r *SnapshotRepository) Slice(ctx context.Context, campaignID string, offset, limit int) ([]models.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subscriber_id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), list_id
		FROM campaign_recipients
		WHERE campaign_id = ? AND position >= ? AND position < ?
		ORDER BY position`,
		campaignID, offset, offset+limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.ListID); err != nil {
			return nil, err
		}
		s.Status = models.SubscriberActive
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Count returns the snapshot size for a campaign.
func (r *SnapshotRepository) Count(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id = ?", campaignID,
	).Scan(&n)
	return n, err
}
