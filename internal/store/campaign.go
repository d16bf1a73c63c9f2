package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailtide/mailtide/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign in draft status.
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.StatusDraft
	}
	if c.SendLimit <= 0 {
		c.SendLimit = 50
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, user_id, list_id, template_id, schedule_date, send_limit, status,
			total_recipients, sent_count, bounce_count, open_count, click_count, unsubscribe_count,
			last_sent_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.ListID, c.TemplateID, c.ScheduleDate, c.SendLimit, c.Status,
		c.TotalRecipients, c.SentCount, c.BounceCount, c.OpenCount, c.ClickCount, c.UnsubscribeCount,
		c.LastSentAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// Get returns a campaign by id, or nil if not found.
func (r *CampaignRepository) Get(ctx context.Context, id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	var lastSentAt sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, list_id, template_id, schedule_date, send_limit, status,
			total_recipients, sent_count, bounce_count, open_count, click_count, unsubscribe_count,
			last_sent_at, created_at, updated_at
		FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.ListID, &c.TemplateID, &c.ScheduleDate, &c.SendLimit, &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.BounceCount, &c.OpenCount, &c.ClickCount, &c.UnsubscribeCount,
		&lastSentAt, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSentAt.Valid {
		c.LastSentAt = &lastSentAt.Time
	}
	return c, nil
}

// Update persists the campaign's status, counters and lastSentAt in a
// single write so batch bookkeeping is atomic.
func (r *CampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	c.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET schedule_date = ?, send_limit = ?, status = ?,
			total_recipients = ?, sent_count = ?, bounce_count = ?, open_count = ?,
			click_count = ?, unsubscribe_count = ?, last_sent_at = ?, updated_at = ?
		WHERE id = ?`,
		c.ScheduleDate, c.SendLimit, c.Status,
		c.TotalRecipients, c.SentCount, c.BounceCount, c.OpenCount,
		c.ClickCount, c.UnsubscribeCount, c.LastSentAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("campaign %s not found", c.ID)
	}
	return nil
}

// UpdateStatus updates only the campaign's lifecycle status.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status models.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("campaign %s not found", id)
	}
	return nil
}

// FindByStatus returns all campaigns with the given status, oldest
// schedule first. Used by the startup recovery scan.
func (r *CampaignRepository) FindByStatus(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, list_id, template_id, schedule_date, send_limit, status,
			total_recipients, sent_count, bounce_count, open_count, click_count, unsubscribe_count,
			last_sent_at, created_at, updated_at
		FROM campaigns WHERE status = ? ORDER BY schedule_date`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []models.Campaign
	for rows.Next() {
		var c models.Campaign
		var lastSentAt sql.NullTime
		err := rows.Scan(&c.ID, &c.UserID, &c.ListID, &c.TemplateID, &c.ScheduleDate, &c.SendLimit, &c.Status,
			&c.TotalRecipients, &c.SentCount, &c.BounceCount, &c.OpenCount, &c.ClickCount, &c.UnsubscribeCount,
			&lastSentAt, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if lastSentAt.Valid {
			c.LastSentAt = &lastSentAt.Time
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}
