package runbook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/types"
)

const sampleTOML = `
name = "Wave 1 finance"

[[scope_item]]
key  = "fi"
name = "Finance"

[[task]]
key          = "freeze_postings"
title        = "Freeze FI postings"
scope_item   = "fi"
duration_min = 30

[[task]]
title        = "Extract open items"
scope_item   = "fi"
duration_min = 90
after        = ["freeze_postings"]

[[task]]
key          = "load_open_items"
title        = "Load open items"
scope_item   = "fi"
duration_min = 120

[[dependency]]
from    = "extract_open_items"
to      = "load_open_items"
lag_min = 15
`

const sampleYAML = `
name: Wave 1 finance
scope_items:
  - key: fi
    name: Finance
tasks:
  - key: freeze_postings
    title: Freeze FI postings
    scope_item: fi
    duration_min: 30
  - key: extract
    title: Extract open items
    scope_item: fi
    duration_min: 90
    after: [freeze_postings]
`

const sampleJSON = `{
  "tasks": [
    {"key": "a", "title": "A", "scope_item": "si-existing", "duration_min": 10},
    {"key": "b", "title": "B", "scope_item": "si-existing", "duration_min": 20}
  ],
  "dependencies": [{"from": "a", "to": "b"}]
}`

func TestParseTOML(t *testing.T) {
	def, err := Parse([]byte(sampleTOML), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, "Wave 1 finance", def.Name)
	require.Len(t, def.Tasks, 3)
	assert.Equal(t, "extract_open_items", def.Tasks[1].Key, "missing key is derived from the title")

	edges := def.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, Edge{From: "extract_open_items", To: "load_open_items", LagMin: 15}, edges[0])
	assert.Equal(t, Edge{From: "freeze_postings", To: "extract_open_items"}, edges[1])

	si, ok := def.DeclaredScopeItem("fi")
	require.True(t, ok)
	assert.Equal(t, "Finance", si.Name)
}

func TestParseYAMLAndJSON(t *testing.T) {
	def, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	assert.Len(t, def.Tasks, 2)
	assert.Equal(t, []Edge{{From: "freeze_postings", To: "extract"}}, def.Edges())

	def, err = Parse([]byte(sampleJSON), FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, def.ScopeItems)
	_, ok := def.DeclaredScopeItem("si-existing")
	assert.False(t, ok)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   string
	}{
		{"no tasks", FormatYAML, "name: empty\n"},
		{"missing title", FormatYAML, "tasks:\n  - key: a\n    scope_item: fi\n"},
		{"negative duration", FormatYAML, "tasks:\n  - title: A\n    scope_item: fi\n    duration_min: -5\n"},
		{"negative lag", FormatJSON, `{"tasks":[{"key":"a","title":"A","scope_item":"x"},{"key":"b","title":"B","scope_item":"x"}],"dependencies":[{"from":"a","to":"b","lag_min":-1}]}`},
		{"self dependency", FormatJSON, `{"tasks":[{"key":"a","title":"A","scope_item":"x"}],"dependencies":[{"from":"a","to":"a"}]}`},
		{"self after", FormatYAML, "tasks:\n  - key: a\n    title: A\n    scope_item: x\n    after: [a]\n"},
		{"unknown after", FormatYAML, "tasks:\n  - key: a\n    title: A\n    scope_item: x\n    after: [zz]\n"},
		{"unknown dependency", FormatJSON, `{"tasks":[{"key":"a","title":"A","scope_item":"x"}],"dependencies":[{"from":"a","to":"zz"}]}`},
		{"duplicate key", FormatYAML, "tasks:\n  - key: a\n    title: A\n    scope_item: x\n  - key: a\n    title: B\n    scope_item: x\n"},
		{"duplicate scope item", FormatYAML, "scope_items:\n  - {key: fi, name: F}\n  - {key: fi, name: G}\ntasks:\n  - {title: A, scope_item: fi}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation), "want validation error, got %v", err)
		})
	}
}

func TestParseUnknownFields(t *testing.T) {
	_, err := Parse([]byte("tasks:\n  - title: A\n    scope_item: x\n    colour: red\n"), FormatYAML)
	assert.Error(t, err)

	_, err = Parse([]byte("[[task]]\ntitle = \"A\"\nscope_item = \"x\"\ncolour = \"red\"\n"), FormatTOML)
	assert.Error(t, err)

	_, err = Parse([]byte(`{"tasks":[{"title":"A","scope_item":"x","colour":"red"}]}`), FormatJSON)
	assert.Error(t, err)
}

func TestDerivedKeysAvoidCollisions(t *testing.T) {
	data := "tasks:\n  - key: reconcile_gl\n    title: X\n    scope_item: fi\n  - title: Reconcile GL\n    scope_item: fi\n  - title: Reconcile GL\n    scope_item: fi\n"
	def, err := Parse([]byte(data), FormatYAML)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, task := range def.Tasks {
		assert.False(t, seen[task.Key], "duplicate derived key %q", task.Key)
		seen[task.Key] = true
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wave1.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, def.Format)
	assert.Equal(t, path, def.Source)

	_, err = Load(filepath.Join(dir, "wave1.hcl"))
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]string{
		"a.toml": FormatTOML,
		"a.YAML": FormatYAML,
		"a.yml":  FormatYAML,
		"a.json": FormatJSON,
	}
	for path, want := range tests {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := DetectFormat("runbook.txt")
	assert.Error(t, err)
}
