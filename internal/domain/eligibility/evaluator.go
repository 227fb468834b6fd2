// Package eligibility decides whether a submitted mutation request may enter
// review. Every rule runs; all failures are reported together.
package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/mutation-workflow/internal/domain/entity"
)

// Directory answers referential lookups needed by the destination rules.
type Directory interface {
	HasPost(code string) bool
	HasLocation(code string) bool
}

// Facts are the inputs gathered by the caller before evaluation.
type Facts struct {
	Now          time.Time
	OpenRequests int
	Directory    Directory
}

// Reason is one failed rule.
type Reason struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result is the verdict of an evaluation.
type Result struct {
	Eligible bool     `json:"eligible"`
	Reasons  []Reason `json:"reasons,omitempty"`
}

// Messages returns the reasons as stored on the request.
func (r Result) Messages() []string {
	msgs := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		msgs = append(msgs, reason.Message)
	}
	return msgs
}

// Rule is a named eligibility check. Check returns a non-empty message when
// the request fails the rule.
type Rule interface {
	Name() string
	Check(req *entity.Request, facts Facts) string
}

type ruleFunc struct {
	name string
	fn   func(req *entity.Request, facts Facts) string
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Check(req *entity.Request, facts Facts) string { return r.fn(req, facts) }

// NewRule wraps fn as a Rule.
func NewRule(name string, fn func(req *entity.Request, facts Facts) string) Rule {
	return ruleFunc{name: name, fn: fn}
}

// Config tunes the default rule set.
type Config struct {
	MinTenureMonths int
}

// Evaluator runs a fixed list of rules.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator creates an evaluator with the default rules.
func NewEvaluator(cfg Config) *Evaluator {
	return NewEvaluatorWithRules(DefaultRules(cfg)...)
}

// NewEvaluatorWithRules creates an evaluator with exactly the given rules.
func NewEvaluatorWithRules(rules ...Rule) *Evaluator {
	return &Evaluator{rules: rules}
}

// Rules returns the names of the configured rules in evaluation order.
func (e *Evaluator) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate runs every rule against req. It performs no I/O.
func (e *Evaluator) Evaluate(req *entity.Request, facts Facts) Result {
	result := Result{Eligible: true}
	for _, rule := range e.rules {
		if msg := rule.Check(req, facts); msg != "" {
			result.Eligible = false
			result.Reasons = append(result.Reasons, Reason{Rule: rule.Name(), Message: msg})
		}
	}
	return result
}

// Rule names
const (
	RuleRequiredFields      = "required_fields"
	RuleMinimumTenure       = "minimum_tenure"
	RuleNoOpenRequest       = "no_open_request"
	RuleKnownDestination    = "known_destination"
	RuleDistinctDestination = "distinct_destination"
)

// DefaultRules returns the standard rule set.
func DefaultRules(cfg Config) []Rule {
	return []Rule{
		NewRule(RuleRequiredFields, requiredFields),
		NewRule(RuleMinimumTenure, minimumTenure(cfg.MinTenureMonths)),
		NewRule(RuleNoOpenRequest, noOpenRequest),
		NewRule(RuleKnownDestination, knownDestination),
		NewRule(RuleDistinctDestination, distinctDestination),
	}
}

func requiredFields(req *entity.Request, _ Facts) string {
	a := req.Applicant
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"nom", a.FullName},
		{"matricule", a.Matricule},
		{"direction", a.Direction},
		{"service", a.Service},
		{"email", a.Email},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if strings.TrimSpace(req.DesiredPost) == "" && len(req.DesiredLocations) == 0 {
		missing = append(missing, "poste ou localisation souhaitee")
	}
	if len(missing) > 0 {
		return "missing required fields: " + strings.Join(missing, ", ")
	}
	return ""
}

func minimumTenure(months int) func(*entity.Request, Facts) string {
	return func(req *entity.Request, facts Facts) string {
		if months <= 0 {
			return ""
		}
		hired := req.Applicant.HiredAt
		if hired == nil {
			return "hire date is unknown"
		}
		if hired.AddDate(0, months, 0).After(facts.Now) {
			return fmt.Sprintf("at least %d months in the current post are required", months)
		}
		return ""
	}
}

func noOpenRequest(_ *entity.Request, facts Facts) string {
	if facts.OpenRequests > 0 {
		return fmt.Sprintf("applicant already has %d request(s) under review", facts.OpenRequests)
	}
	return ""
}

func knownDestination(req *entity.Request, facts Facts) string {
	if facts.Directory == nil {
		return ""
	}
	var unknown []string
	if req.DesiredPost != "" && !facts.Directory.HasPost(req.DesiredPost) {
		unknown = append(unknown, req.DesiredPost)
	}
	for _, loc := range req.DesiredLocations {
		if !facts.Directory.HasLocation(loc) {
			unknown = append(unknown, loc)
		}
	}
	if len(unknown) > 0 {
		return "unknown destination: " + strings.Join(unknown, ", ")
	}
	return ""
}

func distinctDestination(req *entity.Request, _ Facts) string {
	if len(req.DesiredLocations) == 0 || req.Applicant.Direction == "" {
		return ""
	}
	for _, loc := range req.DesiredLocations {
		if !strings.EqualFold(loc, req.Applicant.Direction) {
			return ""
		}
	}
	return "desired locations must differ from the current direction"
}
