package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit   Trigger = "SUBMIT"
	TriggerEvaluate Trigger = "EVALUATE_ELIGIBILITY"
)

// DecisionTrigger returns the trigger fired when role renders decision,
// e.g. "DGR_VALIDE".
func DecisionTrigger(role Role, decision Decision) Trigger {
	return Trigger(string(role) + "_" + string(decision))
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
