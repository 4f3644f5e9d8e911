package tenancy

import "testing"

func strptr(s string) *string { return &s }

func TestModeFromEnv(t *testing.T) {
	t.Run("unset defaults to soft", func(t *testing.T) {
		t.Setenv("TENANCY_ENFORCEMENT", "")
		m, err := ModeFromEnv()
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if m != ModeSoft {
			t.Fatalf("mode=%s", m)
		}
	})

	t.Run("explicit values", func(t *testing.T) {
		for _, want := range []Mode{ModeOff, ModeSoft, ModeStrict} {
			t.Setenv("TENANCY_ENFORCEMENT", string(want))
			m, err := ModeFromEnv()
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if m != want {
				t.Fatalf("mode=%s want=%s", m, want)
			}
		}
	})

	t.Run("case and whitespace folded", func(t *testing.T) {
		t.Setenv("TENANCY_ENFORCEMENT", "  STRICT ")
		m, err := ModeFromEnv()
		if err != nil {
			t.Fatalf("err=%v", err)
		}
		if m != ModeStrict {
			t.Fatalf("mode=%s", m)
		}
	})

	t.Run("invalid is a startup error", func(t *testing.T) {
		t.Setenv("TENANCY_ENFORCEMENT", "enabled")
		if _, err := ModeFromEnv(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestClassify(t *testing.T) {
	if got := Classify(nil, "t1"); got != ReasonLegacyNullTenant {
		t.Fatalf("reason=%s", got)
	}
	if got := Classify(strptr("t2"), "t1"); got != ReasonCrossTenantMismatch {
		t.Fatalf("reason=%s", got)
	}
	if got := Classify(strptr("t1"), "t1"); got != ReasonOK {
		t.Fatalf("reason=%s", got)
	}
}

// Mode monotonicity over the full table: off never blocks and never warns,
// soft never blocks but always warns on non-ok, strict blocks exactly on
// cross-tenant mismatch.
func TestDecideTable(t *testing.T) {
	reasons := []Reason{ReasonOK, ReasonLegacyNullTenant, ReasonCrossTenantMismatch}

	for _, reason := range reasons {
		d := Decide(ModeOff, reason)
		if !d.Allowed || d.Warn {
			t.Fatalf("off/%s: %+v", reason, d)
		}
	}

	for _, reason := range reasons {
		d := Decide(ModeSoft, reason)
		if !d.Allowed {
			t.Fatalf("soft/%s blocked", reason)
		}
		if d.Warn != (reason != ReasonOK) {
			t.Fatalf("soft/%s warn=%v", reason, d.Warn)
		}
	}

	for _, reason := range reasons {
		d := Decide(ModeStrict, reason)
		if d.Allowed != (reason != ReasonCrossTenantMismatch) {
			t.Fatalf("strict/%s allowed=%v", reason, d.Allowed)
		}
		if d.Warn != (reason != ReasonOK) {
			t.Fatalf("strict/%s warn=%v", reason, d.Warn)
		}
	}
}

func TestDecideUnknownModeFallsBackToSoft(t *testing.T) {
	d := Decide(Mode("bogus"), ReasonCrossTenantMismatch)
	if !d.Allowed || !d.Warn {
		t.Fatalf("decision=%+v", d)
	}
}

func TestWarnCode(t *testing.T) {
	if WarnCode(ReasonCrossTenantMismatch) != "mismatch" {
		t.Fatal("mismatch code")
	}
	if WarnCode(ReasonLegacyNullTenant) != "missing-tenantId" {
		t.Fatal("missing-tenantId code")
	}
	if WarnCode(ReasonOK) != "" {
		t.Fatal("ok code should be empty")
	}
}
