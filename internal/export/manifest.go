package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest describes a written snapshot.
type Manifest struct {
	ExportedAt   time.Time      `json:"exported_at"`
	PlanID       string         `json:"plan_id"`
	PlanCode     string         `json:"plan_code"`
	PlanStatus   string         `json:"plan_status"`
	SnapshotPath string         `json:"snapshot_path"`
	SHA256       string         `json:"sha256"`
	Counts       map[string]int `json:"counts"`
}

// ManifestPath derives the manifest path from the snapshot path.
func ManifestPath(snapshotPath string) string {
	return strings.TrimSuffix(snapshotPath, ".json") + ".manifest.json"
}

// Write stores snap at path and its manifest next to it. Both files are
// replaced atomically.
func Write(path string, snap *Snapshot) (*Manifest, error) {
	if snap == nil || snap.Plan == nil {
		return nil, fmt.Errorf("export: empty snapshot")
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	m := &Manifest{
		ExportedAt:   snap.ExportedAt,
		PlanID:       snap.Plan.ID,
		PlanCode:     snap.Plan.Code,
		PlanStatus:   string(snap.Plan.Status),
		SnapshotPath: filepath.Base(path),
		SHA256:       hex.EncodeToString(sum[:]),
		Counts: map[string]int{
			"scope_items":      len(snap.ScopeItems),
			"tasks":            len(snap.Tasks),
			"dependencies":     len(snap.Dependencies),
			"rehearsals":       len(snap.Rehearsals),
			"go_no_go_items":   len(snap.GoNoGoItems),
			"incidents":        len(snap.Incidents),
			"sla_overrides":    len(snap.SLAOverrides),
			"escalation_rules": len(snap.EscalationRules),
			"exit_criteria":    len(snap.ExitCriteria),
			"signoffs":         len(snap.Signoffs),
		},
	}
	mdata, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := writeAtomic(ManifestPath(path), mdata); err != nil {
		return nil, err
	}
	return m, nil
}

// Verify recomputes the snapshot hash recorded in the manifest at
// manifestPath.
func Verify(manifestPath string) (*Manifest, error) {
	// #nosec G304 - user-supplied export path
	mdata, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(mdata, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	// #nosec G304 - snapshot sits next to its manifest
	data, err := os.ReadFile(filepath.Join(filepath.Dir(manifestPath), m.SnapshotPath))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != m.SHA256 {
		return &m, fmt.Errorf("snapshot %s does not match manifest (sha256 %s, want %s)", m.SnapshotPath, got, m.SHA256)
	}
	return &m, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}
	tempFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		_ = tempFile.Close()
		_ = os.Remove(tempPath) // gone after a successful rename
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// Close before rename (required on Windows)
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
