package entity

import "time"

// StatusHistory is one status change of a request
type StatusHistory struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"demandeId"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	Trigger        string    `json:"trigger"`
	ActorID        string    `json:"actorId"`
	ActorRole      string    `json:"actorRole"`
	Timestamp      time.Time `json:"timestamp"`
}
