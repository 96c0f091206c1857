package runbook

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/steveyegge/cutover/internal/types"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report file field names rather than Go field names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks field constraints, then key uniqueness and references.
// Self-edges are rejected here; cycles are left to the task graph, which
// reports the offending path on import.
func (d *Definition) Validate() error {
	if err := structValidator().Struct(d); err != nil {
		return fieldError(err)
	}

	scopeKeys := make(map[string]bool, len(d.ScopeItems))
	for _, si := range d.ScopeItems {
		if scopeKeys[si.Key] {
			return types.Invalid("scope_items", "duplicate scope item key %q", si.Key)
		}
		scopeKeys[si.Key] = true
	}

	taskKeys := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if taskKeys[t.Key] {
			return types.Invalid("tasks", "duplicate task key %q", t.Key)
		}
		taskKeys[t.Key] = true
	}

	for _, t := range d.Tasks {
		for _, pred := range t.After {
			if !taskKeys[pred] {
				return types.Invalid("tasks", "task %q: after references unknown task %q", t.Key, pred)
			}
			if pred == t.Key {
				return types.Invalid("tasks", "task %q cannot depend on itself", t.Key)
			}
		}
	}
	for _, dep := range d.Dependencies {
		if !taskKeys[dep.From] {
			return types.Invalid("dependencies", "unknown task %q", dep.From)
		}
		if !taskKeys[dep.To] {
			return types.Invalid("dependencies", "unknown task %q", dep.To)
		}
	}
	return nil
}

// fieldError converts validator output into a ValidationError naming the
// first failing field.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.Invalid("runbook", "%v", err)
	}
	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Definition.")
	msg := fmt.Sprintf("failed %q constraint", fe.Tag())
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "min":
		msg = fmt.Sprintf("needs at least %s entries", fe.Param())
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		msg = fmt.Sprintf("cannot be negative (got %v)", fe.Value())
	case "nefield":
		msg = "cannot equal from (self-dependency)"
	}
	if len(verrs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(verrs)-1)
	}
	return types.Invalid(field, "%s", msg)
}
