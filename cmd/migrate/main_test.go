package main

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error loading embedded migrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, want := range []string{"model_registry", "daily_predictions", "volatility_metrics"} {
		if migrations[i].Version != int64(i+1) || migrations[i].Name != want {
			t.Fatalf("migration %d: got version %d name %s", i, migrations[i].Version, migrations[i].Name)
		}
		if migrations[i].UpSQL == "" || migrations[i].DownSQL == "" {
			t.Fatalf("expected non-empty up/down sql for %s", want)
		}
	}
	if !strings.Contains(migrations[1].UpSQL, "UNIQUE (prediction_date, model_version)") {
		t.Fatal("daily_predictions must be unique per date and model version")
	}
}

func TestLoadMigrationsRejectsBadSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing down": {
			"migrations/001_init.up.sql": {Data: []byte("SELECT 1;")},
		},
		"bad name": {
			"migrations/init.up.sql": {Data: []byte("SELECT 1;")},
		},
		"empty file": {
			"migrations/001_init.up.sql":   {Data: []byte("  ")},
			"migrations/001_init.down.sql": {Data: []byte("SELECT 1;")},
		},
		"conflicting names": {
			"migrations/001_init.up.sql":    {Data: []byte("SELECT 1;")},
			"migrations/001_other.down.sql": {Data: []byte("SELECT 1;")},
		},
		"duplicate up": {
			"migrations/001_init.up.sql":   {Data: []byte("SELECT 1;")},
			"migrations/001_init.down.sql": {Data: []byte("SELECT 1;")},
			"migrations/0001_init.up.sql":  {Data: []byte("SELECT 2;")},
		},
		"no files": {},
	}
	for name, fsys := range cases {
		if _, err := loadMigrations(fsys); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func testMigrations() []migration {
	return []migration{
		{Version: 1, Name: "a", UpSQL: "u1", DownSQL: "d1"},
		{Version: 2, Name: "b", UpSQL: "u2", DownSQL: "d2"},
		{Version: 3, Name: "c", UpSQL: "u3", DownSQL: "d3"},
	}
}

func TestPending(t *testing.T) {
	got := pending(testMigrations(), map[int64]struct{}{1: {}})
	if len(got) != 2 || got[0].Version != 2 || got[1].Version != 3 {
		t.Fatalf("unexpected pending set %+v", got)
	}
	if len(pending(testMigrations(), map[int64]struct{}{1: {}, 2: {}, 3: {}})) != 0 {
		t.Fatal("expected nothing pending")
	}
}

func TestRollbackPlan(t *testing.T) {
	applied := map[int64]struct{}{1: {}, 2: {}, 3: {}}
	plan, err := rollbackPlan(testMigrations(), applied, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan) != 2 || plan[0].Version != 3 || plan[1].Version != 2 {
		t.Fatalf("expected newest first, got %+v", plan)
	}

	plan, err = rollbackPlan(testMigrations(), map[int64]struct{}{1: {}}, 5)
	if err != nil || len(plan) != 1 {
		t.Fatalf("expected single step, got %+v (%v)", plan, err)
	}

	if _, err := rollbackPlan(testMigrations(), map[int64]struct{}{9: {}}, 1); err == nil {
		t.Fatal("expected error for unknown applied version")
	}
}

func TestLatest(t *testing.T) {
	if _, ok := latest(testMigrations(), map[int64]struct{}{}); ok {
		t.Fatal("expected no version")
	}
	m, ok := latest(testMigrations(), map[int64]struct{}{1: {}, 2: {}})
	if !ok || m.Name != "b" {
		t.Fatalf("unexpected latest %+v", m)
	}
}
