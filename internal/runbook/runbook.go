// Package runbook reads cutover runbook definition files.
//
// A runbook lists scope items, tasks and the dependencies between them by
// stable task key. The same document shape is accepted as TOML, YAML or
// JSON:
//
//	[[scope_item]]
//	key  = "fi"
//	name = "Finance"
//
//	[[task]]
//	key          = "freeze_postings"
//	title        = "Freeze FI postings"
//	scope_item   = "fi"
//	duration_min = 30
//
//	[[task]]
//	title        = "Extract open items"
//	scope_item   = "fi"
//	duration_min = 90
//	after        = ["freeze_postings"]
//
// Tasks without a key get one derived from the title.
package runbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/cutover/internal/idgen"
)

// Supported formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Definition is a parsed runbook file.
type Definition struct {
	Name         string          `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty" validate:"max=255"`
	ScopeItems   []ScopeItemDef  `json:"scope_items,omitempty" yaml:"scope_items,omitempty" toml:"scope_item,omitempty" validate:"omitempty,dive"`
	Tasks        []TaskDef       `json:"tasks" yaml:"tasks" toml:"task" validate:"required,min=1,dive"`
	Dependencies []DependencyDef `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependency,omitempty" validate:"omitempty,dive"`

	// Format and Source describe where the definition was read from.
	Format string `json:"-" yaml:"-" toml:"-"`
	Source string `json:"-" yaml:"-" toml:"-"`
}

// ScopeItemDef declares a scope item created on import. Tasks reference it
// by Key.
type ScopeItemDef struct {
	Key         string `json:"key" yaml:"key" toml:"key" validate:"required,max=64"`
	Name        string `json:"name" yaml:"name" toml:"name" validate:"required,max=255"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Owner       string `json:"owner,omitempty" yaml:"owner,omitempty" toml:"owner,omitempty"`
}

// TaskDef declares one runbook task. ScopeItem names either a declared
// scope item key or an existing scope item (by id or name).
type TaskDef struct {
	Key         string   `json:"key,omitempty" yaml:"key,omitempty" toml:"key,omitempty" validate:"omitempty,max=128"`
	Title       string   `json:"title" yaml:"title" toml:"title" validate:"required,max=500"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Owner       string   `json:"owner,omitempty" yaml:"owner,omitempty" toml:"owner,omitempty"`
	ScopeItem   string   `json:"scope_item" yaml:"scope_item" toml:"scope_item" validate:"required"`
	DurationMin int      `json:"duration_min" yaml:"duration_min" toml:"duration_min" validate:"gte=0"`
	Sequence    int      `json:"sequence,omitempty" yaml:"sequence,omitempty" toml:"sequence,omitempty" validate:"gte=0"`
	After       []string `json:"after,omitempty" yaml:"after,omitempty" toml:"after,omitempty" validate:"omitempty,dive,required"`
}

// DependencyDef is an explicit edge between two task keys.
type DependencyDef struct {
	From   string `json:"from" yaml:"from" toml:"from" validate:"required"`
	To     string `json:"to" yaml:"to" toml:"to" validate:"required,nefield=From"`
	LagMin int    `json:"lag_min,omitempty" yaml:"lag_min,omitempty" toml:"lag_min,omitempty" validate:"gte=0"`
}

// Edge is a resolved dependency between task keys.
type Edge struct {
	From   string
	To     string
	LagMin int
}

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported runbook format %q (expected .toml, .yaml, .yml or .json)", filepath.Ext(path))
}

// Load reads, parses and validates the runbook at path.
func Load(path string) (*Definition, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is the user-supplied runbook file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runbook: %w", err)
	}
	def, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Source = path
	return def, nil
}

// Parse decodes data in the given format, fills derived task keys and
// validates the result.
func Parse(data []byte, format string) (*Definition, error) {
	var def Definition
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &def)
		if err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse toml: unknown key %q", undecoded[0].String())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported runbook format %q", format)
	}
	def.Format = format
	def.fillKeys()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// fillKeys derives keys for tasks that have none, avoiding collisions with
// declared keys and with each other.
func (d *Definition) fillKeys() {
	taken := make(map[string]bool, len(d.Tasks))
	for _, t := range d.Tasks {
		if t.Key != "" {
			taken[t.Key] = true
		}
	}
	for i := range d.Tasks {
		if d.Tasks[i].Key != "" {
			continue
		}
		key := idgen.UniqueTaskKey(d.Tasks[i].Title, func(k string) bool { return taken[k] })
		d.Tasks[i].Key = key
		taken[key] = true
	}
}

// Edges returns every dependency in the file, explicit ones first, then
// the "after" shorthand in task order. Duplicate pairs are collapsed to the
// first occurrence.
func (d *Definition) Edges() []Edge {
	seen := make(map[[2]string]bool)
	var out []Edge
	add := func(e Edge) {
		k := [2]string{e.From, e.To}
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, e)
	}
	for _, dep := range d.Dependencies {
		add(Edge{From: dep.From, To: dep.To, LagMin: dep.LagMin})
	}
	for _, t := range d.Tasks {
		for _, pred := range t.After {
			add(Edge{From: pred, To: t.Key})
		}
	}
	return out
}

// DeclaredScopeItem returns the scope item declared under key, if any.
func (d *Definition) DeclaredScopeItem(key string) (ScopeItemDef, bool) {
	for _, si := range d.ScopeItems {
		if si.Key == key {
			return si, true
		}
	}
	return ScopeItemDef{}, false
}
