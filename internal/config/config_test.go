package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if get() == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{KeyStorageBackend, "sqlite", func(k string) interface{} { return GetString(k) }},
		{KeyPlanCodePrefix, "CUT", func(k string) interface{} { return GetString(k) }},
		{KeyPlanHypercareWeeks, 4, func(k string) interface{} { return GetInt(k) }},
		{KeyExitSLAThreshold, 95.0, func(k string) interface{} { return GetFloat64(k) }},
		{KeyServerAddr, ":8420", func(k string) interface{} { return GetString(k) }},
		{KeyStorageLockTimeout, 30 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{KeyJSON, false, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("Get(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"CUTOVER_TENANT", KeyTenant, "acme", "acme", func(k string) interface{} { return GetString(k) }},
		{"CUTOVER_STORAGE_BACKEND", KeyStorageBackend, "mysql", "mysql", func(k string) interface{} { return GetString(k) }},
		{"CUTOVER_PLAN_HYPERCARE_WEEKS", KeyPlanHypercareWeeks, "6", 6, func(k string) interface{} { return GetInt(k) }},
		{"CUTOVER_JSON", KeyJSON, "true", true, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("Get(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestConfigFileDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "tenant: acme\nprogram: wave1\nplan:\n  code-prefix: GL\n")
	chdir(t, dir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString(KeyPlanCodePrefix); got != "GL" {
		t.Errorf("code prefix = %q, want GL", got)
	}
	if got := ConfigFileUsed(); filepath.Base(got) != ConfigFileName {
		t.Errorf("ConfigFileUsed() = %q", got)
	}
}

func TestSLATargets(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `sla:
  p1:
    response-min: 10
    resolution-min: 120
  p3:
    response-min: 500
    resolution-min: 100
`)
	chdir(t, dir)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	targets := SLATargets()
	if got := targets[types.SeverityP1]; got != (types.SLATarget{ResponseMin: 10, ResolutionMin: 120}) {
		t.Errorf("P1 target = %+v", got)
	}
	if _, ok := targets[types.SeverityP3]; ok {
		t.Error("P3 target with resolution < response should be ignored")
	}
	if _, ok := targets[types.SeverityP2]; ok {
		t.Error("unset P2 should be absent")
	}
}

func TestSetYamlConfig(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	if err := SetYamlConfig("sla.p2.response-min", "45"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if err := SetYamlConfig(KeyTenant, "acme"); err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	if err := SetYamlConfig("no-such-key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	cfg := LoadLocalConfig(filepath.Join(dir, ".cutover"))
	if cfg.Tenant != "acme" {
		t.Errorf("tenant = %q, want acme", cfg.Tenant)
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetInt("sla.p2.response-min"); got != 45 {
		t.Errorf("sla.p2.response-min = %d, want 45", got)
	}
}

func TestIsKnownKey(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{KeyStorageBackend, true},
		{"sla.p1.response-min", true},
		{"sla.p4.resolution-min", true},
		{"sla.p5.response-min", false},
		{"sla.p1.other", false},
		{"sync.branch", false},
	}
	for _, tt := range tests {
		if got := IsKnownKey(tt.key); got != tt.expected {
			t.Errorf("IsKnownKey(%q) = %v, want %v", tt.key, got, tt.expected)
		}
	}
}

func TestLoadLocalConfigMissing(t *testing.T) {
	cfg := LoadLocalConfig(t.TempDir())
	if cfg == nil || cfg.Tenant != "" {
		t.Fatalf("expected empty config, got %+v", cfg)
	}
}

func TestLoadLocalConfigWithEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("tenant: acme\nstorage:\n  backend: mysql\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CUTOVER_TENANT", "globex")

	cfg := LoadLocalConfigWithEnv(dir)
	if cfg.Tenant != "globex" {
		t.Errorf("tenant = %q, want env override", cfg.Tenant)
	}
	if cfg.Storage.Backend != "mysql" {
		t.Errorf("backend = %q, want mysql", cfg.Storage.Backend)
	}
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ".cutover")
	if err := os.MkdirAll(cfgDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, ConfigFileName), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
