package wander

import (
	"errors"
	"io"
	"log"
	"math/rand"
	"testing"
)

var quiet = log.New(io.Discard, "", 0)

func opts(maps ...uint32) Options {
	return Options{Maps: maps, MaxDist: DefaultConnectionDist, Logger: quiet}
}

func TestBuild_DropsFarOutlier(t *testing.T) {
	rows := []Row{
		{ID: 1, MapID: 0, ZoneID: 12, Pos: Position{X: 0, Y: 0}},
		{ID: 2, MapID: 0, ZoneID: 12, Pos: Position{X: 500, Y: 0}},
		{ID: 3, MapID: 0, ZoneID: 12, Pos: Position{X: 250, Y: 400}},
		{ID: 4, MapID: 0, ZoneID: 12, Pos: Position{X: 10000, Y: 10000}},
	}
	g, err := Build(rows, opts(0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ids := g.Nodes(0)
	if len(ids) != 3 {
		t.Fatalf("nodes=%v want 3", ids)
	}
	if _, ok := g.Node(0, 4); ok {
		t.Fatalf("outlier must be dropped")
	}
	for _, id := range ids {
		n, _ := g.Node(0, id)
		if len(n.Links) != 2 {
			t.Fatalf("node %d links=%v want 2", id, n.Links)
		}
	}
	st := g.Stats()
	if st.Connections != 3 || st.DuplicateLinks != 3 {
		t.Fatalf("connections=%d duplicates=%d want 3/3", st.Connections, st.DuplicateLinks)
	}
	if st.Tops != 0 {
		t.Fatalf("tops=%d want 0", st.Tops)
	}
}

func TestBuild_EdgesSymmetricNoDegreeZero(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var rows []Row
	for i := 1; i <= 200; i++ {
		rows = append(rows, Row{
			ID:     uint32(i),
			MapID:  uint32(i % 2),
			ZoneID: 12,
			Pos:    Position{X: rng.Float64() * 8000, Y: rng.Float64() * 8000},
		})
	}
	g, err := Build(rows, opts(0, 1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, m := range g.Maps() {
		for _, id := range g.Nodes(m) {
			n, _ := g.Node(m, id)
			if len(n.Links) == 0 {
				t.Fatalf("node %d has no links", id)
			}
			for _, l := range n.Links {
				other, ok := g.Node(m, l)
				if !ok {
					t.Fatalf("node %d links to missing %d", id, l)
				}
				found := false
				for _, back := range other.Links {
					if back == id {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("edge %d->%d has no reverse", id, l)
				}
			}
		}
	}
}

func TestBuild_TopsAndIsolatedPair(t *testing.T) {
	rows := []Row{
		{ID: 1, MapID: 0, ZoneID: 12, Pos: Position{X: 0}},
		{ID: 2, MapID: 0, ZoneID: 12, Pos: Position{X: 1000}},
		{ID: 3, MapID: 0, ZoneID: 12, Pos: Position{X: 2000}},
		{ID: 10, MapID: 0, ZoneID: 12, Pos: Position{X: 50000}},
		{ID: 11, MapID: 0, ZoneID: 12, Pos: Position{X: 50100}},
	}
	g, err := Build(rows, opts(0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tops := g.Tops()
	want := []NodeRef{{0, 1}, {0, 3}, {0, 10}, {0, 11}}
	if len(tops) != len(want) {
		t.Fatalf("tops=%v want %v", tops, want)
	}
	for i := range want {
		if tops[i] != want[i] {
			t.Fatalf("tops=%v want %v", tops, want)
		}
	}
	if g.Stats().IsolatedPairs != 1 {
		t.Fatalf("isolated pairs=%d want 1", g.Stats().IsolatedPairs)
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, err := Build(nil, opts(0)); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}

	// Zone 9999 has no level range and map 1 ends up with nothing.
	rows := []Row{
		{ID: 1, MapID: 0, ZoneID: 12, Pos: Position{X: 0}},
		{ID: 2, MapID: 0, ZoneID: 12, Pos: Position{X: 100}},
		{ID: 3, MapID: 1, ZoneID: 9999, Pos: Position{X: 0}},
		{ID: 4, MapID: 1, ZoneID: 9999, Pos: Position{X: 100}},
	}
	if _, err := Build(rows, opts(0, 1)); !errors.Is(err, ErrEmptyMap) {
		t.Fatalf("expected ErrEmptyMap, got %v", err)
	}
	// Unsupported maps are ignored rather than failing.
	if _, err := Build(rows, opts(0)); err != nil {
		t.Fatalf("Build: %v", err)
	}
}

func TestNodeAccessors(t *testing.T) {
	rows := []Row{
		{ID: 1, MapID: 0, ZoneID: 12, Pos: Position{X: 1, Y: 2, Z: 3, O: 1.5}, Name: "Goldshire"},
		{ID: 2, MapID: 0, ZoneID: 40, Pos: Position{X: 100}, Name: "Sentinel Hill"},
	}
	g, err := Build(rows, opts(0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	pos, ok := g.NodePosition(0, 1)
	if !ok || pos != (Position{X: 1, Y: 2, Z: 3, O: 1.5}) {
		t.Fatalf("pos=%+v ok=%v", pos, ok)
	}
	if g.NodeName(0, 2) != "Sentinel Hill" {
		t.Fatalf("name=%q", g.NodeName(0, 2))
	}
	if _, ok := g.NodePosition(1, 1); ok {
		t.Fatalf("expected absent node on other map")
	}
	if g.NodeName(0, 99) != "" {
		t.Fatalf("expected empty name for unknown node")
	}
	n, _ := g.Node(0, 2)
	if n.MinLevel != 8 || n.MaxLevel != 24 {
		t.Fatalf("levels=%d-%d want 8-24", n.MinLevel, n.MaxLevel)
	}
}
