package workflow

import (
	"context"
	"strings"
)

// LedgerEntry is the part of a recorded decision the transition rules need.
type LedgerEntry struct {
	Role     Role
	Decision Decision
}

// DecisionInput carries everything Transition needs to judge a decision.
type DecisionInput struct {
	State    State
	Ledger   []LedgerEntry
	Role     Role
	Decision Decision
	Comment  string
}

// Transition validates a reviewer decision against the current status and the
// decisions already recorded, and returns the status it leads to. It has no
// side effects.
//
// Checks run in a fixed order so a terminal request reports InvalidState to
// every caller whatever the payload.
func Transition(ctx context.Context, in DecisionInput) (State, error) {
	const op = "transition"

	if !in.State.IsValid() {
		return "", NewError(KindInvalidState, op, "unknown status %q", in.State)
	}
	if in.State.IsTerminal() {
		return "", NewError(KindInvalidState, op, "request is closed in status %s", in.State)
	}
	if !in.State.InPipeline() {
		return "", NewError(KindInvalidState, op, "request in status %s has not entered review", in.State)
	}
	if !in.Role.IsDecider() {
		return "", NewError(KindForbidden, op, "role %q cannot decide on requests", in.Role)
	}
	for _, e := range in.Ledger {
		if e.Role == in.Role {
			return "", NewError(KindConflict, op, "role %s has already decided (%s)", in.Role, e.Decision)
		}
	}
	if owner, _ := OwnerOf(in.State); owner != in.Role {
		return "", NewError(KindForbidden, op, "status %s awaits %s, not %s", in.State, owner, in.Role)
	}
	if !in.Decision.IsValid() {
		return "", NewError(KindInvalidInput, op, "decision must be VALIDE or REJETE, got %q", in.Decision)
	}
	if strings.TrimSpace(in.Comment) == "" {
		return "", NewError(KindInvalidInput, op, "comment is required")
	}

	machine := NewMutationMachine(in.State)
	if err := machine.Fire(ctx, DecisionTrigger(in.Role, in.Decision)); err != nil {
		return "", WrapError(KindInvalidState, op, err)
	}
	return machine.State(), nil
}

// SubmitOutcome returns the statuses a draft goes through on submission: the
// intermediate SOUMISE and the eligibility-dependent final status.
func SubmitOutcome(ctx context.Context, current State, eligible bool) (submitted, final State, err error) {
	const op = "submit"

	if current != StateBrouillon {
		return "", "", NewError(KindInvalidState, op, "only a draft can be submitted, request is %s", current)
	}

	machine := NewMutationMachine(current)
	if err := machine.Fire(ctx, TriggerSubmit); err != nil {
		return "", "", WrapError(KindInvalidState, op, err)
	}
	submitted = machine.State()

	if err := machine.Fire(WithEligibility(ctx, eligible), TriggerEvaluate); err != nil {
		return "", "", WrapError(KindInvalidState, op, err)
	}
	return submitted, machine.State(), nil
}

// Replay folds an ordered list of decisions over an initial status. The
// result depends only on its inputs, which makes it the reference for what a
// stored request's status should be.
func Replay(ctx context.Context, initial State, decisions []LedgerEntry) (State, error) {
	state := initial
	var ledger []LedgerEntry
	for _, d := range decisions {
		next, err := Transition(ctx, DecisionInput{
			State:    state,
			Ledger:   ledger,
			Role:     d.Role,
			Decision: d.Decision,
			Comment:  "replay",
		})
		if err != nil {
			return "", err
		}
		ledger = append(ledger, d)
		state = next
	}
	return state, nil
}
