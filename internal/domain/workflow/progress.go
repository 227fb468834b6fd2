package workflow

// StepState is the display state of one review stage.
type StepState string

const (
	StepDone     StepState = "DONE"
	StepRejected StepState = "REJECTED"
	StepCurrent  StepState = "CURRENT"
	StepPending  StepState = "PENDING"
	StepSkipped  StepState = "SKIPPED"
	StepClosed   StepState = "CLOSED"
)

// Step is one stage of the review pipeline as seen by a client.
type Step struct {
	Role  Role      `json:"role"`
	State StepState `json:"state"`
}

// Progress projects the current status and recorded decisions onto the four
// review stages. Clients render it instead of recomputing stage completion
// from the raw ledger.
func Progress(state State, ledger []LedgerEntry) []Step {
	decided := make(map[Role]Decision, len(ledger))
	for _, e := range ledger {
		decided[e.Role] = e.Decision
	}

	owner, hasOwner := OwnerOf(state)
	ownerIdx := -1
	lastDecidedIdx := -1
	for i, r := range deciderOrder {
		if hasOwner && r == owner {
			ownerIdx = i
		}
		if _, ok := decided[r]; ok {
			lastDecidedIdx = i
		}
	}

	steps := make([]Step, 0, len(deciderOrder))
	for i, r := range deciderOrder {
		step := Step{Role: r}
		switch d, ok := decided[r]; {
		case ok && d == DecisionValide:
			step.State = StepDone
		case ok:
			step.State = StepRejected
		case hasOwner && r == owner:
			step.State = StepCurrent
		case i < ownerIdx || i < lastDecidedIdx:
			step.State = StepSkipped
		case state.IsTerminal():
			step.State = StepClosed
		default:
			step.State = StepPending
		}
		steps = append(steps, step)
	}
	return steps
}
