package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/cutover/internal/types"
)

// StatusStyle picks a style for any status-like value shown in listings.
// Status strings are shared across plans, tasks, incidents and
// verdicts; unknown values render muted.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case "completed", "closed", "go", "met", "resolved", "approved", "override_approved":
		return PassStyle
	case "failed", "rolled_back", "no_go", "not_met", "rejected":
		return FailStyle
	case "in_progress", "executing", "hypercare", "investigating":
		return AccentStyle
	case "pending", "open":
		return WarnStyle
	}
	return MutedStyle
}

// RenderStatus renders status with StatusStyle.
func RenderStatus(status string) string {
	return StatusStyle(status).Render(status)
}

// RenderSeverity renders P1/P2 in the fail color, P3 as a warning and P4 muted.
func RenderSeverity(s types.Severity) string {
	switch s {
	case types.SeverityP1, types.SeverityP2:
		return FailStyle.Bold(true).Render(string(s))
	case types.SeverityP3:
		return WarnStyle.Render(string(s))
	}
	return MutedStyle.Render(string(s))
}

// RenderCriticalMarker returns the critical-path marker or padding.
func RenderCriticalMarker(critical bool) string {
	if critical {
		return CriticalStyle.Render(IconCritical)
	}
	return " "
}
