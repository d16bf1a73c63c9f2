package models

import "time"

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusScheduled CampaignStatus = "scheduled"
	StatusSending   CampaignStatus = "sending"
	StatusSent      CampaignStatus = "sent"
	StatusFailed    CampaignStatus = "failed"
	StatusCanceled  CampaignStatus = "canceled"
)

// Campaign represents a scheduled bulk send of one template to one list.
type Campaign struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	ListID     string `json:"list_id"`
	TemplateID string `json:"template_id"`

	ScheduleDate time.Time      `json:"schedule_date"`
	SendLimit    int            `json:"send_limit"` // max emails per batch
	Status       CampaignStatus `json:"status"`

	TotalRecipients  int `json:"total_recipients"`
	SentCount        int `json:"sent_count"`
	BounceCount      int `json:"bounce_count"`
	OpenCount        int `json:"open_count"`
	ClickCount       int `json:"click_count"`
	UnsubscribeCount int `json:"unsubscribe_count"`

	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Processed is the positional cursor into the recipient snapshot. Both
// delivered and bounced recipients advance it; a failed send is never
// re-attempted by the engine.
func (c *Campaign) Processed() int {
	return c.SentCount + c.BounceCount
}

// Remaining returns how many recipients have not been attempted yet.
func (c *Campaign) Remaining() int {
	r := c.TotalRecipients - c.Processed()
	if r < 0 {
		return 0
	}
	return r
}

// CanCancel reports whether the campaign may still be canceled. Once a
// campaign is sending there is no mid-batch abort.
func (c *Campaign) CanCancel() bool {
	return c.Status == StatusDraft || c.Status == StatusScheduled
}
