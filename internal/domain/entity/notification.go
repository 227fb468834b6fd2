package entity

import "time"

// Notification records one message sent to an applicant
type Notification struct {
	ID           int64      `json:"id"`
	RequestID    string     `json:"demandeId"`
	Channel      string     `json:"channel"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject"`
	Status       string     `json:"status"`
	Attachments  int        `json:"attachments"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
