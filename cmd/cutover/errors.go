package main

import (
	"fmt"
	"os"

	"github.com/steveyegge/cutover/internal/types"
)

// FatalError writes an error message to stderr and exits with code 1.
// Use this for fatal errors that prevent the command from completing.
func FatalError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// FatalErrorWithHint writes an error message with a hint to stderr and exits.
//
// Example:
//
//	FatalErrorWithHint("tenant is required", "Run 'cutover config set tenant acme'")
func FatalErrorWithHint(message, hint string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
	fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	os.Exit(1)
}

// WarnError writes a warning message to stderr and returns.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// exitOnError reports a service error and exits. With --json the error is
// written as {"error": ..., "code": <kind>}.
func exitOnError(err error) {
	if err == nil {
		return
	}
	if jsonOutput {
		outputJSONError(err, types.KindOf(err))
	}
	FatalError("%v", err)
}
