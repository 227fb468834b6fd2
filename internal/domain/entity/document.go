package entity

import "time"

// DocumentType names an official document produced on acceptance
type DocumentType string

const (
	DocumentOrdreMutation             DocumentType = "ORDRE_MUTATION"
	DocumentLettreNotification        DocumentType = "LETTRE_NOTIFICATION"
	DocumentAttestationAdministrative DocumentType = "ATTESTATION_ADMINISTRATIVE"
)

// AcceptanceDocuments are generated for every accepted request
var AcceptanceDocuments = []DocumentType{
	DocumentOrdreMutation,
	DocumentLettreNotification,
	DocumentAttestationAdministrative,
}

// Title returns the heading printed on the document.
func (t DocumentType) Title() string {
	switch t {
	case DocumentOrdreMutation:
		return "Ordre de mutation"
	case DocumentLettreNotification:
		return "Lettre de notification"
	case DocumentAttestationAdministrative:
		return "Attestation administrative"
	}
	return string(t)
}

// DocumentArtifact is a generated document persisted in file storage
type DocumentArtifact struct {
	ID        int64        `json:"id"`
	RequestID string       `json:"demandeId"`
	Type      DocumentType `json:"type"`
	FileID    string       `json:"fileId"`
	SizeBytes int64        `json:"taille"`
	PageCount int          `json:"pages"`
	CreatedAt time.Time    `json:"creeLe"`
}
