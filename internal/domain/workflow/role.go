package workflow

// Role is the caller's role as resolved by the identity provider.
type Role string

const (
	RoleAgent       Role = "AGENT"
	RoleResponsable Role = "RESPONSABLE"
	RoleDGR         Role = "DGR"
	RoleCVR         Role = "CVR"
	RoleDNCF        Role = "DNCF"
	RoleAdmin       Role = "ADMIN"
)

// deciderOrder is the review sequence for a simple request.
var deciderOrder = []Role{RoleResponsable, RoleDGR, RoleCVR, RoleDNCF}

// Deciders returns the roles that render decisions, in review order.
func Deciders() []Role {
	return append([]Role(nil), deciderOrder...)
}

// IsValid returns true for any known role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAgent, RoleResponsable, RoleDGR, RoleCVR, RoleDNCF, RoleAdmin:
		return true
	}
	return false
}

// IsDecider reports whether the role takes part in the review pipeline.
func (r Role) IsDecider() bool {
	for _, d := range deciderOrder {
		if d == r {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Decision is a reviewer verdict.
type Decision string

const (
	DecisionValide Decision = "VALIDE"
	DecisionRejete Decision = "REJETE"
)

// IsValid returns true for VALIDE and REJETE.
func (d Decision) IsValid() bool {
	return d == DecisionValide || d == DecisionRejete
}

func (d Decision) String() string {
	return string(d)
}

// RequestType distinguishes ordinary requests from strategic ones, which start
// directly at the CVR verification stage.
type RequestType string

const (
	TypeSimple      RequestType = "SIMPLE"
	TypeStrategique RequestType = "STRATEGIQUE"
)

// IsValid returns true for SIMPLE and STRATEGIQUE.
func (t RequestType) IsValid() bool {
	return t == TypeSimple || t == TypeStrategique
}

// InitialState returns the status a freshly created request starts in.
func (t RequestType) InitialState() State {
	if t == TypeStrategique {
		return StateEnVerificationCVR
	}
	return StateBrouillon
}
