package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/steveyegge/cutover/internal/timeparsing"
	"github.com/steveyegge/cutover/internal/ui"
)

// confirm asks a yes/no question before an irreversible step. --yes, --json
// and non-interactive stdin all skip the prompt.
func confirm(title, description string) bool {
	if assumeYes || jsonOutput || !ui.IsTerminal() {
		return true
	}
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Proceed").
		Negative("Cancel").
		Value(&ok).
		WithTheme(huh.ThemeDracula()).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false
		}
		FatalError("prompt error: %v", err)
	}
	return ok
}

func abortUnlessConfirmed(title, description string) {
	if !confirm(title, description) {
		fmt.Fprintln(os.Stderr, "Cancelled.")
		os.Exit(0)
	}
}

// parseTimeFlag resolves a time flag value ("+2h", "tomorrow 06:00",
// RFC3339). Empty values return nil.
func parseTimeFlag(name, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := timeparsing.ParseRelativeTime(value, time.Now())
	if err != nil {
		FatalError("--%s: %v", name, err)
	}
	t = t.UTC()
	return &t
}

// parseAtFlag is parseTimeFlag for evaluation instants; empty means now
// (the zero time).
func parseAtFlag(value string) time.Time {
	if t := parseTimeFlag("at", value); t != nil {
		return *t
	}
	return time.Time{}
}
