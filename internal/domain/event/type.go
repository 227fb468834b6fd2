package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequestCreated    Type = "request.created"
	TypeStatusChanged     Type = "request.status_changed"
	TypeDecisionRecorded  Type = "decision.recorded"
	TypeDocumentGenerated Type = "document.generated"
	TypeMutationApplied   Type = "mutation.applied"
	TypeApplicantNotified Type = "applicant.notified"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequestCreated,
		TypeStatusChanged,
		TypeDecisionRecorded,
		TypeDocumentGenerated,
		TypeMutationApplied,
		TypeApplicantNotified:
		return true
	default:
		return false
	}
}
