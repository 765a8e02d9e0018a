// Package botgen manufactures wandering bots by cloning unspawned bot templates.
package botgen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"npcbots.ai/internal/persistence/botdb"
	"npcbots.ai/internal/sim/botdata"
	"npcbots.ai/internal/sim/catalogs"
	"npcbots.ai/internal/sim/tuning"
	"npcbots.ai/internal/sim/wander"
)

var (
	ErrNotEnoughTemplates = errors.New("not enough bot templates to clone")
	ErrRetriesExhausted   = errors.New("template selection retries exhausted")
	ErrBadCounter         = errors.New("generated bot counter below template range")
	ErrNoWanderNodes      = errors.New("no wander nodes to place generated bots")
)

const counterComment = "NPCBOTS MOD - last autogenerated bot entry"

// Defaults for generated records; per-class role and spec tables live elsewhere.
const (
	DefaultRoles uint32 = 1 << 1
	DefaultSpec  uint8  = 1
)

type Templates interface {
	CreatureTemplate(entry uint32) (catalogs.CreatureTemplate, bool)
	HasCreatureTemplate(entry uint32) bool
	EquipmentInfo(entry uint32, id int8) (catalogs.EquipmentInfo, bool)
	RaceFaction(race uint8) (uint32, bool)
	Map(id uint32) (catalogs.MapEntry, bool)
}

// Counter stores the last generated entry in the worldstates table.
type Counter interface {
	WorldState(ctx context.Context, entry uint32) (int64, bool, error)
	DirectExecute(ctx context.Context, stmt botdb.StmtID, args ...any) error
	Execute(stmt botdb.StmtID, args ...any)
}

type Graph interface {
	RandomMap(rng wander.Rand) (uint32, bool)
	RandomNode(mapID uint32, rng wander.Rand) (uint32, wander.Position, bool)
}

type Registry interface {
	ExistingIDs() []uint32
	ExtrasIDs() []uint32
	SelectExtras(entry uint32) (botdata.Extras, bool)
	SelectAppearance(entry uint32) (botdata.Appearance, bool)
	AddGenerated(g botdata.GeneratedBot) bool
}

type Live interface {
	Len() int
	Find(entry uint32) (botdata.LiveRef, bool)
}

// Spawner places a generated bot at a wander node.
type Spawner interface {
	SpawnGenerated(ctx context.Context, entry, mapID, node uint32, pos wander.Position) error
}

type Config struct {
	Bots      tuning.Bots
	Templates Templates
	Counter   Counter
	Graph     Graph
	Registry  Registry
	Live      Live
	Spawner   Spawner
	Rand      *rand.Rand
	Logger    *log.Logger
}

type Generator struct {
	cfg    Config
	rng    *rand.Rand
	logger *log.Logger

	// Source entries already cloned by this process.
	cloned map[uint32]struct{}
}

func New(cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Generator{cfg: cfg, rng: rng, logger: logger, cloned: map[uint32]struct{}{}}
}

// Generated describes one bot produced by GenerateBatch.
type Generated struct {
	Entry  uint32
	Source uint32
	Class  uint8
	MapID  uint32
	Node   uint32
}

// GenerateBatch creates count wandering bots and advances the persisted counter.
// Errors are configuration errors and should stop startup.
func (g *Generator) GenerateBatch(ctx context.Context, count int) ([]Generated, error) {
	if count <= 0 {
		return nil, nil
	}
	bots := g.cfg.Bots
	available := len(g.cfg.Registry.ExtrasIDs()) - g.cfg.Live.Len()
	if available < count {
		return nil, fmt.Errorf("%w: %d available, %d requested", ErrNotEnoughTemplates, available, count)
	}
	if len(bots.EnabledClasses) == 0 {
		return nil, fmt.Errorf("%w: no enabled classes", ErrNotEnoughTemplates)
	}

	last, err := g.lastEntry(ctx)
	if err != nil {
		return nil, err
	}
	if uint64(last)+1 <= uint64(bots.EntryBegin) {
		return nil, fmt.Errorf("%w: counter %d, entry_begin %d", ErrBadCounter, last, bots.EntryBegin)
	}

	byClass := g.templatesByClass()
	maxAttempts := bots.MaxGenerateAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	used := map[uint32]bool{}
	for _, e := range g.cfg.Registry.ExistingIDs() {
		used[e] = true
	}

	out := make([]Generated, 0, count)
	id := last
	for n := 0; n < count; n++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		id++
		for g.cfg.Templates.HasCreatureTemplate(id) || used[id] {
			id++
		}

		source, class, ok := g.pickSource(byClass, maxAttempts)
		if !ok {
			return out, fmt.Errorf("%w: bot %d after %d attempts", ErrRetriesExhausted, id, maxAttempts)
		}
		gen, err := g.clone(ctx, id, source, class)
		if err != nil {
			return out, err
		}
		out = append(out, gen)
	}

	g.cfg.Counter.Execute(botdb.StmtReplaceWorldState, bots.GiverEntry, int64(id), counterComment)
	g.logger.Printf(">> Generated %d wandering bots (last entry %d)", len(out), id)
	return out, nil
}

// lastEntry reads the counter, initializing it from the highest known entry.
func (g *Generator) lastEntry(ctx context.Context) (uint32, error) {
	bots := g.cfg.Bots
	v, ok, err := g.cfg.Counter.WorldState(ctx, bots.GiverEntry)
	if err != nil {
		return 0, fmt.Errorf("read bot counter: %w", err)
	}
	if ok {
		return uint32(v), nil
	}
	last := bots.CreateBegin - 1
	for _, e := range g.cfg.Registry.ExistingIDs() {
		if e > last {
			last = e
		}
	}
	if err := g.cfg.Counter.DirectExecute(ctx, botdb.StmtInsertWorldState, bots.GiverEntry, int64(last), counterComment); err != nil {
		return 0, fmt.Errorf("init bot counter: %w", err)
	}
	return last, nil
}

// templatesByClass groups the cloneable template entries by class.
func (g *Generator) templatesByClass() map[uint8][]uint32 {
	bots := g.cfg.Bots
	out := map[uint8][]uint32{}
	for _, e := range g.cfg.Registry.ExtrasIDs() {
		if e < bots.EntryBegin || e >= bots.CreateBegin {
			continue
		}
		ex, ok := g.cfg.Registry.SelectExtras(e)
		if !ok || ex.Class == 0 {
			continue
		}
		out[ex.Class] = append(out[ex.Class], e)
	}
	return out
}

func (g *Generator) pickSource(byClass map[uint8][]uint32, maxAttempts int) (uint32, uint8, bool) {
	classes := g.cfg.Bots.EnabledClasses
	for attempt := 0; attempt < maxAttempts; attempt++ {
		class := classes[g.rng.Intn(len(classes))]
		var candidates []uint32
		for _, e := range byClass[class] {
			if _, used := g.cloned[e]; used {
				continue
			}
			if _, live := g.cfg.Live.Find(e); live {
				continue
			}
			if !g.cfg.Templates.HasCreatureTemplate(e) {
				continue
			}
			candidates = append(candidates, e)
		}
		if len(candidates) == 0 {
			continue
		}
		return candidates[g.rng.Intn(len(candidates))], class, true
	}
	return 0, 0, false
}

func (g *Generator) clone(ctx context.Context, id, source uint32, class uint8) (Generated, error) {
	tpl, ok := g.cfg.Templates.CreatureTemplate(source)
	if !ok {
		return Generated{}, fmt.Errorf("bot template %d vanished", source)
	}
	tpl = tpl.Clone()
	tpl.Entry = id
	tpl.Title = ""

	ex, _ := g.cfg.Registry.SelectExtras(source)
	faction, ok := g.cfg.Templates.RaceFaction(ex.Race)
	if !ok {
		faction = g.cfg.Bots.DefaultFaction
	}

	bot := botdata.GeneratedBot{
		Entry:    id,
		Template: tpl,
		Record:   botdata.Record{Roles: DefaultRoles, Spec: DefaultSpec, Faction: faction},
		Extras:   botdata.Extras{Class: class, Race: ex.Race},
	}
	if a, ok := g.cfg.Registry.SelectAppearance(source); ok {
		bot.Appearance = &a
	}
	if eq, ok := g.cfg.Templates.EquipmentInfo(source, 1); ok {
		eq.Entry = id
		bot.Equipment = &eq
	}

	mapID, ok := g.cfg.Graph.RandomMap(g.rng)
	if !ok {
		return Generated{}, ErrNoWanderNodes
	}
	if m, ok := g.cfg.Templates.Map(mapID); ok && m.Instanceable() {
		return Generated{}, fmt.Errorf("wander map %d is instanceable", mapID)
	}
	node, pos, ok := g.cfg.Graph.RandomNode(mapID, g.rng)
	if !ok {
		return Generated{}, fmt.Errorf("%w: map %d", ErrNoWanderNodes, mapID)
	}

	if !g.cfg.Registry.AddGenerated(bot) {
		return Generated{}, fmt.Errorf("generated entry %d already in use", id)
	}
	g.cloned[source] = struct{}{}

	if g.cfg.Spawner != nil {
		if err := g.cfg.Spawner.SpawnGenerated(ctx, id, mapID, node, pos); err != nil {
			g.logger.Printf("botgen: cannot spawn generated bot %d (from %d): %v", id, source, err)
		}
	}
	return Generated{Entry: id, Source: source, Class: class, MapID: mapID, Node: node}, nil
}
