package workflow

// State represents a mutation request status. Values are the wire strings
// exchanged with clients and stored in the requests table.
type State string

const (
	StateBrouillon                State = "BROUILLON"
	StateSoumise                  State = "SOUMISE"
	StateEnValidationHierarchique State = "EN_VALIDATION_HIERARCHIQUE"
	StateValideeHierarchique      State = "VALIDEE_HIERARCHIQUE"
	StateRejeteeHierarchique      State = "REJETEE_HIERARCHIQUE"
	StateEnEtudeDGR               State = "EN_ETUDE_DGR"
	StateAvisDGRFavorable         State = "AVIS_DGR_FAVORABLE"
	StateAvisDGRDefavorable       State = "AVIS_DGR_DEFAVORABLE"
	StateEnVerificationCVR        State = "EN_VERIFICATION_CVR"
	StateValideeCVR               State = "VALIDEE_CVR"
	StateRejeteeCVR               State = "REJETEE_CVR"
	StateEnEtudeDNCF              State = "EN_ETUDE_DNCF"
	StateAcceptee                 State = "ACCEPTEE"
	StateRejetee                  State = "REJETEE"
	StateIneligible               State = "INELIGIBLE"
)

var validStates = map[State]bool{
	StateBrouillon:                true,
	StateSoumise:                  true,
	StateEnValidationHierarchique: true,
	StateValideeHierarchique:      true,
	StateRejeteeHierarchique:      true,
	StateEnEtudeDGR:               true,
	StateAvisDGRFavorable:         true,
	StateAvisDGRDefavorable:       true,
	StateEnVerificationCVR:        true,
	StateValideeCVR:               true,
	StateRejeteeCVR:               true,
	StateEnEtudeDNCF:              true,
	StateAcceptee:                 true,
	StateRejetee:                  true,
	StateIneligible:               true,
}

// terminalStates are absorbing: no decision is accepted once reached.
var terminalStates = map[State]bool{
	StateAcceptee:            true,
	StateRejetee:             true,
	StateRejeteeHierarchique: true,
	StateAvisDGRDefavorable:  true,
	StateRejeteeCVR:          true,
	StateIneligible:          true,
}

// AllStates lists every status in pipeline order.
func AllStates() []State {
	return []State{
		StateBrouillon,
		StateSoumise,
		StateEnValidationHierarchique,
		StateValideeHierarchique,
		StateRejeteeHierarchique,
		StateEnEtudeDGR,
		StateAvisDGRFavorable,
		StateAvisDGRDefavorable,
		StateEnVerificationCVR,
		StateValideeCVR,
		StateRejeteeCVR,
		StateEnEtudeDNCF,
		StateAcceptee,
		StateRejetee,
		StateIneligible,
	}
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsRejection reports whether s is a terminal outcome other than acceptance.
func (s State) IsRejection() bool {
	return s.IsTerminal() && s != StateAcceptee
}

// InPipeline reports whether the request has entered the review pipeline and
// is still waiting for a decision.
func (s State) InPipeline() bool {
	return s.IsValid() && !s.IsTerminal() && s != StateBrouillon && s != StateSoumise
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known status
func (s State) IsValid() bool {
	return validStates[s]
}
