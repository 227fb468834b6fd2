package entity

import "time"

// EffectTask is an outbox row describing a side effect of a status change.
// Tasks are written in the same transaction as the status they react to.
type EffectTask struct {
	ID           int64        `json:"id"`
	RequestID    string       `json:"demandeId"`
	Kind         string       `json:"kind"`
	DocumentType DocumentType `json:"documentType,omitempty"`
	Status       string       `json:"status"`
	Attempts     int          `json:"attempts"`
	LastError    string       `json:"lastError,omitempty"`
	RunAt        time.Time    `json:"runAt"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Label identifies the task in logs and warnings, e.g.
// "GENERATE_DOCUMENT/ORDRE_MUTATION".
func (t *EffectTask) Label() string {
	if t.DocumentType != "" {
		return t.Kind + "/" + string(t.DocumentType)
	}
	return t.Kind
}

// AgentAssignment is an agent's current post, updated when a mutation is applied
type AgentAssignment struct {
	Matricule string    `json:"matricule"`
	Post      string    `json:"poste"`
	Direction string    `json:"direction"`
	Service   string    `json:"service"`
	RequestID string    `json:"demandeId"`
	AppliedAt time.Time `json:"appliqueeLe"`
}
