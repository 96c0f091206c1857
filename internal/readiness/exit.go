package readiness

import (
	"fmt"
	"time"

	"github.com/steveyegge/cutover/internal/sla"
	"github.com/steveyegge/cutover/internal/types"
)

// Evaluation is the outcome of computing one auto criterion.
type Evaluation struct {
	CriterionID string
	Status      types.CriterionStatus
	Evidence    string
}

// EvaluateAuto computes the status of an auto criterion from the plan's
// current incidents. Manual criteria are rejected.
func EvaluateAuto(c *types.ExitCriterion, incidents []*types.Incident, now time.Time) (Evaluation, error) {
	if c.Type != types.CriterionAuto {
		return Evaluation{}, types.Invalid("type", "criterion %s is manual and cannot be auto-evaluated", c.ID)
	}
	ev := Evaluation{CriterionID: c.ID, Status: types.CriterionNotMet}
	switch c.Metric {
	case types.MetricNoOpenCritical:
		n := 0
		for _, inc := range incidents {
			if inc.IsOpen() && (inc.Severity == types.SeverityP1 || inc.Severity == types.SeverityP2) {
				n++
			}
		}
		ev.Evidence = fmt.Sprintf("%d open P1/P2 incidents", n)
		if n == 0 {
			ev.Status = types.CriterionMet
		}
	case types.MetricNoOpenIncidents:
		n := 0
		for _, inc := range incidents {
			if inc.IsOpen() {
				n++
			}
		}
		ev.Evidence = fmt.Sprintf("%d open incidents", n)
		if n == 0 {
			ev.Status = types.CriterionMet
		}
	case types.MetricSLACompliance:
		pct := sla.Compliance(incidents, now)
		ev.Evidence = fmt.Sprintf("SLA compliance %.1f%% of %d incidents (threshold %.1f%%)", pct, len(incidents), c.Threshold)
		if pct >= c.Threshold {
			ev.Status = types.CriterionMet
		}
	default:
		return Evaluation{}, types.Invalid("metric", "unknown exit metric %q", c.Metric)
	}
	return ev, nil
}

// CheckStatusChange validates setting a criterion status through either
// the auto path or the manual path. The auto path may never mark a manual
// criterion met, and the manual path never touches auto criteria.
func CheckStatusChange(c *types.ExitCriterion, status types.CriterionStatus, auto bool) error {
	if !status.IsValid() {
		return types.Invalid("status", "unknown criterion status %q", status)
	}
	if auto && c.Type == types.CriterionManual && status == types.CriterionMet {
		return types.Invalid("status", "manual criterion %s cannot be marked met automatically", c.ID)
	}
	if !auto && c.Type == types.CriterionAuto {
		return types.Invalid("type", "criterion %s is auto-evaluated; use evaluate instead", c.ID)
	}
	return nil
}

// CloseBlockers lists the reasons hypercare cannot close yet: every
// unmet mandatory criterion, plus a latest sign-off that does not approve.
func CloseBlockers(criteria []*types.ExitCriterion, signoffs []*types.ExitSignoff) []string {
	var blockers []string
	for _, c := range criteria {
		if c.Mandatory && c.Status != types.CriterionMet {
			blockers = append(blockers, fmt.Sprintf("mandatory exit criterion %q is %s", c.Name, c.Status))
		}
	}
	switch latest := LatestSignoff(signoffs); {
	case latest == nil:
		blockers = append(blockers, "no approved exit sign-off recorded")
	case !latest.Decision.Approves():
		blockers = append(blockers, fmt.Sprintf("latest exit sign-off by %s is %s", latest.Approver, latest.Decision))
	}
	return blockers
}

// LatestSignoff returns the most recent sign-off by SignedAt. On equal
// times the one later in the slice wins, matching storage order.
func LatestSignoff(signoffs []*types.ExitSignoff) *types.ExitSignoff {
	var latest *types.ExitSignoff
	for _, s := range signoffs {
		if latest == nil || !s.SignedAt.Before(latest.SignedAt) {
			latest = s
		}
	}
	return latest
}

// HasApprovingSignoff reports whether the latest sign-off approves
// closure. A rejection supersedes every earlier approval.
func HasApprovingSignoff(signoffs []*types.ExitSignoff) bool {
	latest := LatestSignoff(signoffs)
	return latest != nil && latest.Decision.Approves()
}
