package workflow

import (
	"context"
	"sync"
)

// owners maps every status that awaits a decision to the only role allowed
// to decide in it. Handoff statuses (VALIDEE_HIERARCHIQUE, AVIS_DGR_FAVORABLE,
// VALIDEE_CVR) belong to the next reviewer.
var owners = map[State]Role{
	StateEnValidationHierarchique: RoleResponsable,
	StateValideeHierarchique:      RoleDGR,
	StateEnEtudeDGR:               RoleDGR,
	StateAvisDGRFavorable:         RoleCVR,
	StateEnVerificationCVR:        RoleCVR,
	StateValideeCVR:               RoleDNCF,
	StateEnEtudeDNCF:              RoleDNCF,
}

type outcomeKey struct {
	role     Role
	decision Decision
}

// outcomes is the (role, decision) lookup table. Acceptance advances to the
// next reviewer's in-progress status; rejection lands in the role's own
// terminal status.
var outcomes = map[outcomeKey]State{
	{RoleResponsable, DecisionValide}: StateEnEtudeDGR,
	{RoleResponsable, DecisionRejete}: StateRejeteeHierarchique,
	{RoleDGR, DecisionValide}:         StateEnVerificationCVR,
	{RoleDGR, DecisionRejete}:         StateAvisDGRDefavorable,
	{RoleCVR, DecisionValide}:         StateEnEtudeDNCF,
	{RoleCVR, DecisionRejete}:         StateRejeteeCVR,
	{RoleDNCF, DecisionValide}:        StateAcceptee,
	{RoleDNCF, DecisionRejete}:        StateRejetee,
}

// OwnerOf returns the role that must act on a request in state s.
func OwnerOf(s State) (Role, bool) {
	r, ok := owners[s]
	return r, ok
}

// AwaitingStates returns the statuses in which role is expected to decide.
func AwaitingStates(role Role) []State {
	var states []State
	for _, s := range AllStates() {
		if owners[s] == role {
			states = append(states, s)
		}
	}
	return states
}

// Outcome returns the status reached when role renders decision.
func Outcome(role Role, decision Decision) (State, bool) {
	s, ok := outcomes[outcomeKey{role, decision}]
	return s, ok
}

type eligibilityKey struct{}

// WithEligibility attaches the eligibility verdict consumed by the guards of
// the SOUMISE state.
func WithEligibility(ctx context.Context, eligible bool) context.Context {
	return context.WithValue(ctx, eligibilityKey{}, eligible)
}

func eligibleGuard(ctx context.Context) bool {
	v, ok := ctx.Value(eligibilityKey{}).(bool)
	return ok && v
}

func ineligibleGuard(ctx context.Context) bool {
	v, ok := ctx.Value(eligibilityKey{}).(bool)
	return ok && !v
}

var (
	mutationOnce    sync.Once
	mutationBuilder StateMachineBuilder
)

// NewMutationMachine returns a machine configured with the mutation request
// lifecycle, positioned at initial.
func NewMutationMachine(initial State) StateMachine {
	mutationOnce.Do(func() {
		b := NewBuilder()

		b.Configure(StateBrouillon).
			Permit(TriggerSubmit, StateSoumise)

		b.Configure(StateSoumise).
			PermitIf(TriggerEvaluate, StateEnValidationHierarchique, eligibleGuard).
			PermitIf(TriggerEvaluate, StateIneligible, ineligibleGuard)

		for state, owner := range owners {
			cfg := b.Configure(state)
			for _, d := range []Decision{DecisionValide, DecisionRejete} {
				cfg.Permit(DecisionTrigger(owner, d), outcomes[outcomeKey{owner, d}])
			}
		}

		mutationBuilder = b
	})
	return mutationBuilder.Build(initial)
}
