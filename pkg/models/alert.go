package models

import "time"

type AlertSeverity string

const (
	InfoAlertSeverity     AlertSeverity = "info"
	WarningAlertSeverity  AlertSeverity = "warning"
	CriticalAlertSeverity AlertSeverity = "critical"
)

// Alert is a persisted escalation/automation outcome.
type Alert struct {
	ID        string        `json:"id" db:"id"`
	ProjectID string        `json:"project_id" db:"project_id"`
	Severity  AlertSeverity `json:"severity" db:"severity"`
	Title     string        `json:"title" db:"title"`
	Body      string        `json:"body,omitempty" db:"body"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// Notification is a persisted message addressed to a user. Actual delivery
// over a channel is a best-effort external concern.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
