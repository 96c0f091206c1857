// Package sla derives incident deadlines from severity targets and
// evaluates breach status lazily against a caller-supplied instant.
package sla

import (
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

// DefaultTargets is the built-in response/resolution table in minutes.
var DefaultTargets = map[types.Severity]types.SLATarget{
	types.SeverityP1: {ResponseMin: 15, ResolutionMin: 240},
	types.SeverityP2: {ResponseMin: 30, ResolutionMin: 480},
	types.SeverityP3: {ResponseMin: 120, ResolutionMin: 1440},
	types.SeverityP4: {ResponseMin: 480, ResolutionMin: 4320},
}

// Targets resolves the SLA target for a severity: a plan override wins,
// then installation defaults, then DefaultTargets.
type Targets struct {
	installation map[types.Severity]types.SLATarget
	overrides    map[types.Severity]types.SLATarget
}

// NewTargets builds a resolver. Either map may be nil.
func NewTargets(installation map[types.Severity]types.SLATarget, overrides []*types.HypercareSLA) *Targets {
	t := &Targets{
		installation: installation,
		overrides:    make(map[types.Severity]types.SLATarget, len(overrides)),
	}
	for _, o := range overrides {
		t.overrides[o.Severity] = o.Target
	}
	return t
}

// For returns the effective target for sev.
func (t *Targets) For(sev types.Severity) (types.SLATarget, error) {
	if !sev.IsValid() {
		return types.SLATarget{}, types.Invalid("severity", "invalid severity %q (expected P1-P4)", sev)
	}
	if t != nil {
		if o, ok := t.overrides[sev]; ok {
			return o, nil
		}
		if d, ok := t.installation[sev]; ok && d.Validate() == nil {
			return d, nil
		}
	}
	return DefaultTargets[sev], nil
}

// Deadlines returns the response and resolution deadlines for an incident
// reported at reportedAt. They are fixed at creation.
func Deadlines(target types.SLATarget, reportedAt time.Time) (response, resolution time.Time) {
	reportedAt = reportedAt.UTC()
	response = reportedAt.Add(time.Duration(target.ResponseMin) * time.Minute)
	resolution = reportedAt.Add(time.Duration(target.ResolutionMin) * time.Minute)
	return response, resolution
}

// Stamp fills the deadlines of a new incident from its severity.
func Stamp(inc *types.Incident, targets *Targets) error {
	target, err := targets.For(inc.Severity)
	if err != nil {
		return err
	}
	inc.SLAResponseDeadline, inc.SLAResolutionDeadline = Deadlines(target, inc.ReportedAt)
	return nil
}

// ResponseBreached reports whether the response deadline is breached at now.
func ResponseBreached(inc *types.Incident, now time.Time) bool {
	if inc.FirstResponseAt != nil {
		return inc.FirstResponseAt.After(inc.SLAResponseDeadline)
	}
	return now.After(inc.SLAResponseDeadline)
}

// ResolutionBreached reports whether the resolution deadline is breached at now.
func ResolutionBreached(inc *types.Incident, now time.Time) bool {
	if inc.IsOpen() {
		return now.After(inc.SLAResolutionDeadline)
	}
	if inc.ResolvedAt != nil {
		return inc.ResolvedAt.After(inc.SLAResolutionDeadline)
	}
	// Closed without a resolved_at stamp; treat the close time as resolution.
	if inc.ClosedAt != nil {
		return inc.ClosedAt.After(inc.SLAResolutionDeadline)
	}
	return false
}

// Evaluate computes the breach projection of inc at now.
func Evaluate(inc *types.Incident, now time.Time) types.SLAStatus {
	return types.SLAStatus{
		IncidentID:         inc.ID,
		Severity:           inc.Severity,
		ResponseDeadline:   inc.SLAResponseDeadline,
		ResolutionDeadline: inc.SLAResolutionDeadline,
		ResponseBreached:   ResponseBreached(inc, now),
		ResolutionBreached: ResolutionBreached(inc, now),
		EvaluatedAt:        now.UTC(),
	}
}

// Compliance returns the percentage of incidents with neither deadline
// breached at now. An empty set is fully compliant.
func Compliance(incidents []*types.Incident, now time.Time) float64 {
	if len(incidents) == 0 {
		return 100
	}
	ok := 0
	for _, inc := range incidents {
		if !Evaluate(inc, now).Breached() {
			ok++
		}
	}
	return float64(ok) * 100 / float64(len(incidents))
}
