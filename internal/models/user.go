package models

import "time"

// SMTPSettings holds a user's own transport credentials. The custom
// transport path is selected only when Enabled is set and host and auth
// are present.
type SMTPSettings struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Secure   bool   `json:"secure"` // implicit TLS; STARTTLS otherwise
	Username string `json:"username"`
	Password string `json:"password"`
}

// Configured reports whether the settings describe a usable transport.
func (s SMTPSettings) Configured() bool {
	return s.Enabled && s.Host != "" && s.Username != "" && s.Password != ""
}

// SenderSettings holds per-user sending preferences. Empty fields fall
// back to process-wide defaults.
type SenderSettings struct {
	SenderName   string       `json:"sender_name"`
	FromEmail    string       `json:"from_email"`
	ReplyToEmail string       `json:"reply_to_email"`
	SMTP         SMTPSettings `json:"smtp"`
}

// User represents an account that owns campaigns.
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Settings  SenderSettings `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
