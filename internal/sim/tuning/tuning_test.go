package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_ShippedConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Wander.ConnectionDistMax != 1400 {
		t.Fatalf("connection_dist_max=%v", tu.Wander.ConnectionDistMax)
	}
	if len(tu.Wander.Maps) != 2 {
		t.Fatalf("maps=%v", tu.Wander.Maps)
	}
	if tu.AutoBalance.RecalcIntervalMs != 2500 {
		t.Fatalf("recalc=%d", tu.AutoBalance.RecalcIntervalMs)
	}
	if got := tu.AutoBalance.ForcedPlayerCounts()[10184]; got != 5 {
		t.Fatalf("forced 10184=%d want 5", got)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	tu, err := Load(writeYAML(t, "bots:\n  wandering_count: 7\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Bots.WanderingCount != 7 {
		t.Fatalf("wandering_count=%d", tu.Bots.WanderingCount)
	}
	if tu.Bots.EntryBegin != 70001 || tu.Bots.DefaultFaction != 14 {
		t.Fatalf("defaults lost: %+v", tu.Bots)
	}
	if tu.AutoBalance.LevelHigherOffset != 3 {
		t.Fatalf("higher offset=%d", tu.AutoBalance.LevelHigherOffset)
	}
}

func TestLoad_SchemaRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeYAML(t, "bots:\n  no_such_option: 1\n"))
	if err == nil {
		t.Fatalf("expected schema error")
	}
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoad_IntegerForcedKeys(t *testing.T) {
	tu, err := Load(writeYAML(t, "autobalance:\n  forced_ids:\n    10: [1, 2]\n    25: [2]\n  disabled_ids: [3]\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m := tu.AutoBalance.ForcedPlayerCounts()
	if m[1] != 10 {
		t.Fatalf("entry 1=%d want 10", m[1])
	}
	// Smaller forced counts win over larger ones.
	if m[2] != 10 {
		t.Fatalf("entry 2=%d want 10", m[2])
	}
	if v, ok := m[3]; !ok || v != 0 {
		t.Fatalf("entry 3=%d,%v want disabled", v, ok)
	}
}

func TestValidate(t *testing.T) {
	tu := Defaults()
	tu.Normalize()
	if err := tu.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	bad := tu
	bad.Bots.CreateBegin = bad.Bots.EntryBegin
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for create_begin, got %v", err)
	}

	bad = tu
	bad.Wander.Maps = nil
	if err := bad.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty maps, got %v", err)
	}
}

func TestNormalize_InflectionFallbacks(t *testing.T) {
	tu := Defaults()
	normal := 0.3
	raid := 0.8
	tu.AutoBalance.Inflection = Inflection{Normal: &normal, Raid: &raid}
	tu.Normalize()

	in := tu.AutoBalance.Inflection
	if *in.Heroic != 0.3 {
		t.Fatalf("heroic=%v want normal", *in.Heroic)
	}
	if *in.Raid10M != 0.8 || *in.Raid25M != 0.8 {
		t.Fatalf("raid sizes=%v/%v want raid", *in.Raid10M, *in.Raid25M)
	}
	if *in.Raid25MHeroic != 0.8 || *in.RaidHeroic != 0.8 {
		t.Fatalf("raid heroic=%v/%v", *in.Raid25MHeroic, *in.RaidHeroic)
	}
}
