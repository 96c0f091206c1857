// Package idgen generates the human-readable identifiers used alongside
// UUIDs: sequential plan codes and task keys derived from titles.
package idgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultPlanPrefix is used when no plan.code-prefix is configured.
const DefaultPlanPrefix = "CUT"

var prefixRe = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// NormalizePrefix upper-cases prefix and checks it is 2-10 alphanumerics
// starting with a letter. Empty input yields DefaultPlanPrefix.
func NormalizePrefix(prefix string) (string, error) {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if p == "" {
		return DefaultPlanPrefix, nil
	}
	if !prefixRe.MatchString(p) {
		return "", fmt.Errorf("invalid plan code prefix %q: want 2-10 letters/digits starting with a letter", prefix)
	}
	return p, nil
}

// PlanCode formats the n-th plan code, zero-padded to three digits
// (CUT-007, CUT-1234).
func PlanCode(prefix string, n int) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}

// ParsePlanCode splits a code into prefix and sequence number.
func ParsePlanCode(code string) (string, int, error) {
	i := strings.LastIndex(code, "-")
	if i <= 0 || i == len(code)-1 {
		return "", 0, fmt.Errorf("invalid plan code %q", code)
	}
	n, err := strconv.Atoi(code[i+1:])
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("invalid plan code %q", code)
	}
	return strings.ToUpper(code[:i]), n, nil
}

// LooksLikePlanCode reports whether s parses as a plan code, letting
// commands accept either a UUID or a code.
func LooksLikePlanCode(s string) bool {
	p, _, err := ParsePlanCode(s)
	return err == nil && prefixRe.MatchString(p)
}
