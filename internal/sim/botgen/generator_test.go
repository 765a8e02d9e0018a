package botgen

import (
	"context"
	"errors"
	"io"
	"log"
	"math/rand"
	"testing"

	"npcbots.ai/internal/persistence/botdb"
	"npcbots.ai/internal/sim/botdata"
	"npcbots.ai/internal/sim/catalogs"
	"npcbots.ai/internal/sim/tuning"
	"npcbots.ai/internal/sim/wander"
)

var quiet = log.New(io.Discard, "", 0)

type fakeTemplates struct {
	creatures map[uint32]catalogs.CreatureTemplate
	equipment map[uint32]catalogs.EquipmentInfo
	maps      map[uint32]catalogs.MapEntry
}

func (f fakeTemplates) CreatureTemplate(entry uint32) (catalogs.CreatureTemplate, bool) {
	t, ok := f.creatures[entry]
	return t.Clone(), ok
}

func (f fakeTemplates) HasCreatureTemplate(entry uint32) bool {
	_, ok := f.creatures[entry]
	return ok
}

func (f fakeTemplates) EquipmentInfo(entry uint32, id int8) (catalogs.EquipmentInfo, bool) {
	e, ok := f.equipment[entry]
	return e, ok && id == 1
}

func (f fakeTemplates) RaceFaction(race uint8) (uint32, bool) {
	if race == 1 {
		return 1, true
	}
	return 0, false
}

func (f fakeTemplates) Map(id uint32) (catalogs.MapEntry, bool) {
	m, ok := f.maps[id]
	return m, ok
}

type fakeCounter struct {
	value   int64
	present bool
	direct  []botdb.StmtID
	execs   [][]any
}

func (c *fakeCounter) WorldState(context.Context, uint32) (int64, bool, error) {
	return c.value, c.present, nil
}

func (c *fakeCounter) DirectExecute(_ context.Context, stmt botdb.StmtID, args ...any) error {
	c.direct = append(c.direct, stmt)
	return nil
}

func (c *fakeCounter) Execute(stmt botdb.StmtID, args ...any) {
	if stmt == botdb.StmtReplaceWorldState {
		c.execs = append(c.execs, args)
	}
}

type spawnCall struct {
	entry, mapID, node uint32
}

type fakeSpawner struct{ calls []spawnCall }

func (s *fakeSpawner) SpawnGenerated(_ context.Context, entry, mapID, node uint32, _ wander.Position) error {
	s.calls = append(s.calls, spawnCall{entry: entry, mapID: mapID, node: node})
	return nil
}

type fixture struct {
	reg       *botdata.Registry
	live      *botdata.LiveIndex
	templates fakeTemplates
	counter   *fakeCounter
	spawner   *fakeSpawner
	graph     *wander.Graph
	bots      tuning.Bots
}

// newFixture installs n source bots 70001.. alternating warrior (1) and mage (8).
func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{
		reg:  botdata.NewRegistry(botdata.Config{Logger: quiet}),
		live: botdata.NewLiveIndex(nil, quiet, nil),
		templates: fakeTemplates{
			creatures: map[uint32]catalogs.CreatureTemplate{},
			equipment: map[uint32]catalogs.EquipmentInfo{},
			maps:      map[uint32]catalogs.MapEntry{0: {ID: 0, Kind: catalogs.MapKindWorld}},
		},
		counter: &fakeCounter{},
		spawner: &fakeSpawner{},
		bots:    tuning.Defaults().Bots,
	}
	f.bots.EnabledClasses = []uint8{1, 8}

	for i := 0; i < n; i++ {
		entry := uint32(70001 + i)
		class := uint8(1)
		if i%2 == 1 {
			class = 8
		}
		f.templates.creatures[entry] = catalogs.CreatureTemplate{Entry: entry, Name: "Source", Title: "Bot", MinLevel: 10, MaxLevel: 10}
		f.templates.equipment[entry] = catalogs.EquipmentInfo{Entry: entry, ID: 1, Items: [3]uint32{100 + entry, 0, 0}}
		// Extras for source bots come from the database.
		f.reg.AddGenerated(botdata.GeneratedBot{Entry: entry, Extras: botdata.Extras{Class: class, Race: 1}, Template: catalogs.CreatureTemplate{Entry: entry}})
	}

	g, err := wander.Build([]wander.Row{
		{ID: 1, MapID: 0, ZoneID: 12, Pos: wander.Position{X: 0, Y: 0}},
		{ID: 2, MapID: 0, ZoneID: 12, Pos: wander.Position{X: 100, Y: 0}},
	}, wander.Options{Maps: []uint32{0}, Logger: quiet})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f.graph = g
	return f
}

func (f *fixture) generator(seed int64) *Generator {
	return New(Config{
		Bots:      f.bots,
		Templates: f.templates,
		Counter:   f.counter,
		Graph:     f.graph,
		Registry:  f.reg,
		Live:      f.live,
		Spawner:   f.spawner,
		Rand:      rand.New(rand.NewSource(seed)),
		Logger:    quiet,
	})
}

func TestGenerateBatchInitializesCounter(t *testing.T) {
	f := newFixture(t, 4)
	out, err := f.generator(1).GenerateBatch(context.Background(), 3)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("generated %d bots", len(out))
	}
	if len(f.counter.direct) != 1 || f.counter.direct[0] != botdb.StmtInsertWorldState {
		t.Fatalf("counter init: %v", f.counter.direct)
	}

	sources := map[uint32]bool{}
	for i, g := range out {
		want := f.bots.CreateBegin + uint32(i)
		if g.Entry != want {
			t.Fatalf("bot %d entry: got %d want %d", i, g.Entry, want)
		}
		if sources[g.Source] {
			t.Fatalf("source %d cloned twice", g.Source)
		}
		sources[g.Source] = true

		tpl, ok := f.reg.ExtraCreatureTemplate(g.Entry)
		if !ok || tpl.Entry != g.Entry || tpl.Title != "" || tpl.Name != "Source" {
			t.Fatalf("cloned template: %+v ok=%v", tpl, ok)
		}
		ex, ok := f.reg.SelectExtras(g.Entry)
		if !ok || ex.Class != g.Class || ex.Race != 1 {
			t.Fatalf("extras: %+v", ex)
		}
		rec, ok := f.reg.SelectRecord(g.Entry)
		if !ok || rec.Faction != 1 || rec.Owner != 0 {
			t.Fatalf("record: %+v", rec)
		}
		eq, ok := f.reg.EquipmentInfo(g.Entry)
		if !ok || eq.Entry != g.Entry || eq.Items[0] != 100+g.Source {
			t.Fatalf("equipment: %+v", eq)
		}
		if g.MapID != 0 || (g.Node != 1 && g.Node != 2) {
			t.Fatalf("placement: %+v", g)
		}
	}
	if len(f.spawner.calls) != 3 {
		t.Fatalf("spawned %d bots", len(f.spawner.calls))
	}
	last := f.counter.execs[len(f.counter.execs)-1]
	if last[1] != int64(f.bots.CreateBegin+2) {
		t.Fatalf("counter value: %v", last)
	}
}

func TestGenerateBatchSkipsUsedEntries(t *testing.T) {
	f := newFixture(t, 2)
	f.counter.value, f.counter.present = int64(f.bots.CreateBegin+10), true
	// Next entry collides with a static template.
	next := f.bots.CreateBegin + 11
	f.templates.creatures[next] = catalogs.CreatureTemplate{Entry: next}

	out, err := f.generator(2).GenerateBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if out[0].Entry != next+1 {
		t.Fatalf("entry: got %d want %d", out[0].Entry, next+1)
	}
	if len(f.counter.direct) != 0 {
		t.Fatalf("existing counter reinitialized")
	}
}

func TestGenerateBatchNotEnoughTemplates(t *testing.T) {
	f := newFixture(t, 2)
	f.live.Register(botdata.LiveRef{Entry: 70001, GUID: 1})
	_, err := f.generator(3).GenerateBatch(context.Background(), 2)
	if !errors.Is(err, ErrNotEnoughTemplates) {
		t.Fatalf("expected ErrNotEnoughTemplates, got %v", err)
	}
}

func TestGenerateBatchRetriesExhausted(t *testing.T) {
	f := newFixture(t, 4)
	// Only rogues are enabled but no rogue template exists.
	f.bots.EnabledClasses = []uint8{4}
	f.bots.MaxGenerateAttempts = 5
	_, err := f.generator(4).GenerateBatch(context.Background(), 1)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}

func TestGenerateBatchSkipsLiveTemplates(t *testing.T) {
	f := newFixture(t, 4)
	f.live.Register(botdata.LiveRef{Entry: 70001, GUID: 1})
	f.live.Register(botdata.LiveRef{Entry: 70003, GUID: 3})
	f.bots.EnabledClasses = []uint8{1}
	f.bots.MaxGenerateAttempts = 3

	// Warriors are 70001 and 70003, both live.
	_, err := f.generator(5).GenerateBatch(context.Background(), 1)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
}

func TestGenerateBatchBadCounter(t *testing.T) {
	f := newFixture(t, 2)
	f.counter.value, f.counter.present = int64(f.bots.EntryBegin-5), true
	_, err := f.generator(6).GenerateBatch(context.Background(), 1)
	if !errors.Is(err, ErrBadCounter) {
		t.Fatalf("expected ErrBadCounter, got %v", err)
	}
}

func TestGenerateBatchZeroCount(t *testing.T) {
	f := newFixture(t, 0)
	out, err := f.generator(7).GenerateBatch(context.Background(), 0)
	if err != nil || out != nil {
		t.Fatalf("zero batch: %v %v", out, err)
	}
}
