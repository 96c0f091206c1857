package idgen

import "testing"

func TestPlanCode(t *testing.T) {
	tests := []struct {
		prefix string
		n      int
		want   string
	}{
		{"CUT", 7, "CUT-007"},
		{"CUT", 120, "CUT-120"},
		{"GL", 1234, "GL-1234"},
	}
	for _, tt := range tests {
		if got := PlanCode(tt.prefix, tt.n); got != tt.want {
			t.Errorf("PlanCode(%q, %d) = %q, want %q", tt.prefix, tt.n, got, tt.want)
		}
	}
}

func TestParsePlanCode(t *testing.T) {
	prefix, n, err := ParsePlanCode("cut-042")
	if err != nil {
		t.Fatalf("ParsePlanCode: %v", err)
	}
	if prefix != "CUT" || n != 42 {
		t.Errorf("got (%q, %d), want (CUT, 42)", prefix, n)
	}

	for _, bad := range []string{"", "CUT", "CUT-", "-7", "CUT-abc", "CUT-0"} {
		if _, _, err := ParsePlanCode(bad); err == nil {
			t.Errorf("ParsePlanCode(%q) should fail", bad)
		}
	}
}

func TestLooksLikePlanCode(t *testing.T) {
	if !LooksLikePlanCode("CUT-001") {
		t.Error("CUT-001 should look like a plan code")
	}
	if LooksLikePlanCode("6f1c2a7e-9a57-4c52-8a0e-3b1d5d8f9e11") {
		t.Error("a UUID should not look like a plan code")
	}
}

func TestNormalizePrefix(t *testing.T) {
	if p, err := NormalizePrefix(""); err != nil || p != DefaultPlanPrefix {
		t.Errorf("NormalizePrefix(\"\") = %q, %v", p, err)
	}
	if p, err := NormalizePrefix(" gl "); err != nil || p != "GL" {
		t.Errorf("NormalizePrefix(gl) = %q, %v", p, err)
	}
	for _, bad := range []string{"C", "1AB", "CUT-X", "TOOLONGPREFIX"} {
		if _, err := NormalizePrefix(bad); err == nil {
			t.Errorf("NormalizePrefix(%q) should fail", bad)
		}
	}
}

func TestTaskKey(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Post open items to S/4 GL", "post_open_items_s_4_gl"},
		{"The freeze of the legacy system", "freeze_legacy_system"},
		{"", "task"},
		{"!!!", "task"},
		{"the a an", "the"},
		{"2nd load pass", "t2nd_load_pass"},
		{"Reconcile customer open items with legacy balances after delta load", "reconcile_customer_open_items_legacy"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := TaskKey(tt.title); got != tt.want {
				t.Errorf("TaskKey(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func TestUniqueTaskKey(t *testing.T) {
	taken := map[string]bool{"load_vendors": true, "load_vendors_2": true}
	got := UniqueTaskKey("Load vendors", func(k string) bool { return taken[k] })
	if got != "load_vendors_3" {
		t.Errorf("UniqueTaskKey = %q, want load_vendors_3", got)
	}
}
