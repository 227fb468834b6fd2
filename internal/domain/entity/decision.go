package entity

import (
	"time"

	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// ValidationDecision is one reviewer's verdict on a request. Once stored it is
// never modified.
type ValidationDecision struct {
	ID        int64             `json:"id"`
	RequestID string            `json:"demandeId"`
	Role      workflow.Role     `json:"validateurRole"`
	Decision  workflow.Decision `json:"decision"`
	Comment   string            `json:"commentaire"`
	DecidedBy string            `json:"validePar"`
	DecidedAt time.Time         `json:"dateValidation"`
}

// LedgerEntries reduces decisions to what the transition rules consume.
func LedgerEntries(decisions []*ValidationDecision) []workflow.LedgerEntry {
	entries := make([]workflow.LedgerEntry, 0, len(decisions))
	for _, d := range decisions {
		entries = append(entries, workflow.LedgerEntry{Role: d.Role, Decision: d.Decision})
	}
	return entries
}
