package audit_test

import (
	"testing"

	"github.com/vantage-run/optigate/audit"
)

func TestTimerAppendsEntryOnStop(t *testing.T) {
	trail := &audit.Trail{}

	timer := audit.Start(trail, audit.StageRouting)
	timer.SetRoute("CLOUD").SetStatus("ok")
	timer.Stop()

	if trail.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", trail.Len())
	}
	entry := trail.Entries()[0]
	if entry.Stage != audit.StageRouting || entry.Route != "CLOUD" || entry.Status != "ok" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestTimerStopIsIdempotent(t *testing.T) {
	trail := &audit.Trail{}

	timer := audit.Start(trail, audit.StagePIIGuard)
	timer.Stop()
	timer.Stop()

	if trail.Len() != 1 {
		t.Fatalf("expected Stop called twice to append exactly once, got %d entries", trail.Len())
	}
}

func TestTimerMetasMergesMultipleKeys(t *testing.T) {
	trail := &audit.Trail{}

	audit.Start(trail, audit.StagePostProcess).
		Metas(map[string]any{"estimated_cost": 0.01, "privacy_level": "HIGH"}).
		Stop()

	entry := trail.Entries()[0]
	if entry.Metadata["estimated_cost"] != 0.01 || entry.Metadata["privacy_level"] != "HIGH" {
		t.Fatalf("expected both metadata keys present, got %+v", entry.Metadata)
	}
}

func TestTrailPreservesAppendOrder(t *testing.T) {
	trail := &audit.Trail{}

	stages := []string{audit.StagePolicyFetch, audit.StageInputGuardrails, audit.StagePIIGuard}
	for _, s := range stages {
		audit.Start(trail, s).Stop()
	}

	entries := trail.Entries()
	if len(entries) != len(stages) {
		t.Fatalf("expected %d entries, got %d", len(stages), len(entries))
	}
	for i, s := range stages {
		if entries[i].Stage != s {
			t.Fatalf("expected entry %d to be stage %s, got %s", i, s, entries[i].Stage)
		}
	}
}
