package entity

import (
	"time"

	"github.com/garyjia/mutation-workflow/internal/domain/workflow"
)

// ApplicantSnapshot is the applicant's identity as it was when the request was
// filed. It is never refreshed from the live agent record.
type ApplicantSnapshot struct {
	FullName    string     `json:"nomComplet"`
	Matricule   string     `json:"matricule"`
	Direction   string     `json:"direction"`
	Service     string     `json:"service"`
	Email       string     `json:"email"`
	Grade       string     `json:"grade,omitempty"`
	CurrentPost string     `json:"posteActuel,omitempty"`
	HiredAt     *time.Time `json:"datePriseService,omitempty"`
}

// Request is a mutation request
type Request struct {
	ID                   string               `json:"id"`
	Type                 workflow.RequestType `json:"type"`
	Status               workflow.State       `json:"statut"`
	Applicant            ApplicantSnapshot    `json:"demandeur"`
	DesiredPost          string               `json:"posteSouhaite,omitempty"`
	DesiredLocations     []string             `json:"localisationsSouhaitees,omitempty"`
	Motif                string               `json:"motif,omitempty"`
	IneligibilityReasons []string             `json:"motifsIneligibilite,omitempty"`
	EffectiveDate        *time.Time           `json:"dateEffet,omitempty"`
	MutationAppliedAt    *time.Time           `json:"mutationAppliqueeLe,omitempty"`
	CreatedBy            string               `json:"creePar"`
	SubmittedAt          *time.Time           `json:"soumiseLe,omitempty"`
	CreatedAt            time.Time            `json:"creeLe"`
	UpdatedAt            time.Time            `json:"misAJourLe"`
}

// RequestFilter selects requests for listing
type RequestFilter struct {
	Statuses  []workflow.State
	Matricule string
	CreatedBy string
	Limit     int
	Offset    int
}
