package models

import "time"

// Template represents an email template. Subject and body may contain
// {{firstName}}, {{lastName}}, {{email}} and {{unsubscribe}} placeholder
// tokens. A template is read-only from a campaign's perspective while the
// campaign is sending.
type Template struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Subject     string    `json:"subject"`
	HTML        string    `json:"html"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
