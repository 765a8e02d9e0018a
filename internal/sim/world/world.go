// Package world is the in-process world host: maps and instances, creature and
// player handles, and the parallel per-map update loop that drives wandering bots
// and creature scaling.
package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"npcbots.ai/internal/sim/autobalance"
	"npcbots.ai/internal/sim/botdata"
	"npcbots.ai/internal/sim/catalogs"
	"npcbots.ai/internal/sim/wander"
)

var (
	ErrUnknownMap      = errors.New("unknown map")
	ErrInstanceNeeded  = errors.New("map requires an instance")
	ErrNotInstanceable = errors.New("map is not instanceable")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrPlayerExists    = errors.New("player already logged in")
)

// Data is the static world data the host reads.
type Data interface {
	CreatureTemplate(entry uint32) (catalogs.CreatureTemplate, bool)
	BaseStatsFor(level, class uint8) catalogs.BaseStats
	Map(id uint32) (catalogs.MapEntry, bool)
	SpawnByEntry(entry uint32) (catalogs.CreatureSpawn, bool)
	SpawnsOnMap(mapID uint32) []catalogs.CreatureSpawn
}

// Registry is the bot data the host reads when spawning and counting bots.
type Registry interface {
	SelectRecord(entry uint32) (botdata.Record, bool)
	ExtraCreatureTemplate(entry uint32) (catalogs.CreatureTemplate, bool)
}

type Live interface {
	Register(ref botdata.LiveRef) bool
	Unregister(entry uint32) bool
	LiveGUID(entry uint32) uint64
	GUIDsByOwner(owner uint32, records botdata.RecordSource) []uint64
}

type Config struct {
	TickRateHz int
	// WanderStepMs is the time a wandering bot spends between two nodes.
	WanderStepMs int
	// MapWorkers bounds the number of maps updated at once; 0 means one per map.
	MapWorkers int
	Seed       int64

	Data     Data
	Registry Registry
	Live     Live
	Graph    *wander.Graph
	Scaler   *autobalance.Scaler
	Logger   *log.Logger
}

type mapKey struct {
	mapID, instanceID uint32
}

type World struct {
	cfg    Config
	logger *log.Logger

	mu      sync.RWMutex
	maps    map[mapKey]*Map
	byGUID  map[uint64]*Map
	players map[uint64]*Map
	groups  map[uint32]*Group

	nextGUID     atomic.Uint64
	nextInstance atomic.Uint32
	tick         atomic.Uint64

	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) (*World, error) {
	if cfg.Data == nil {
		return nil, errors.New("world: data is required")
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 10
	}
	if cfg.WanderStepMs <= 0 {
		cfg.WanderStepMs = 5000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &World{
		cfg:     cfg,
		logger:  logger,
		maps:    map[mapKey]*Map{},
		byGUID:  map[uint64]*Map{},
		players: map[uint64]*Map{},
		groups:  map[uint32]*Group{},
		stop:    make(chan struct{}),
	}, nil
}

// NewBots returns the bot capability the scaler uses to tell bots apart and to
// count the bots players control.
func NewBots(live Live, records Registry) autobalance.Bots {
	return botCapability{live: live, records: records}
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case now := <-ticker.C:
			diff := int(now.Sub(last) / time.Millisecond)
			last = now
			if err := w.Update(ctx, diff); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				w.logger.Printf("world: update: %v", err)
			}
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

func (w *World) Tick() uint64 { return w.tick.Load() }

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

// Update advances every map by diffMs. Maps are updated in parallel; each map's
// creatures are updated sequentially by the map's goroutine.
func (w *World) Update(ctx context.Context, diffMs int) error {
	maps := w.mapList()
	g, ctx := errgroup.WithContext(ctx)
	if w.cfg.MapWorkers > 0 {
		g.SetLimit(w.cfg.MapWorkers)
	}
	for _, m := range maps {
		m := m
		g.Go(func() error {
			if err := m.update(ctx, diffMs); err != nil {
				return fmt.Errorf("map %d/%d: %w", m.entry.ID, m.instanceID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	w.tick.Add(1)
	return err
}

func (w *World) mapList() []*Map {
	w.mu.RLock()
	out := make([]*Map, 0, len(w.maps))
	for _, m := range w.maps {
		out = append(out, m)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].entry.ID != out[j].entry.ID {
			return out[i].entry.ID < out[j].entry.ID
		}
		return out[i].instanceID < out[j].instanceID
	})
	return out
}

// BaseMap returns the shared map of a non-instanceable map id, creating it on first use.
func (w *World) BaseMap(mapID uint32) (*Map, error) {
	entry, ok := w.cfg.Data.Map(mapID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMap, mapID)
	}
	if entry.Instanceable() {
		return nil, fmt.Errorf("%w: %d", ErrInstanceNeeded, mapID)
	}
	k := mapKey{mapID: mapID}
	w.mu.Lock()
	defer w.mu.Unlock()
	if m, ok := w.maps[k]; ok {
		return m, nil
	}
	m := newMap(w, entry, 0, false)
	w.maps[k] = m
	w.logger.Printf("world: created map %d (%s)", mapID, entry.Name)
	return m, nil
}

// CreateInstance creates a new instance of a dungeon or raid map and populates it
// from the spawn table.
func (w *World) CreateInstance(mapID uint32, heroic bool) (*Map, error) {
	entry, ok := w.cfg.Data.Map(mapID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMap, mapID)
	}
	if !entry.Instanceable() {
		return nil, fmt.Errorf("%w: %d", ErrNotInstanceable, mapID)
	}
	id := w.nextInstance.Add(1)
	m := newMap(w, entry, id, heroic)

	m.mu.Lock()
	for _, sp := range w.cfg.Data.SpawnsOnMap(mapID) {
		tpl, ok := w.cfg.Data.CreatureTemplate(sp.Entry)
		if !ok {
			w.logger.Printf("world: instance %d/%d: spawn %d has no template %d", mapID, id, sp.GUID, sp.Entry)
			continue
		}
		c := m.newCreatureLocked(tpl, spawnPos(sp), sp.ZoneID, sp.AreaID)
		w.index(c.guid, m)
	}
	n := len(m.creatures)
	m.mu.Unlock()

	w.mu.Lock()
	w.maps[mapKey{mapID, id}] = m
	w.mu.Unlock()
	w.logger.Printf("world: created instance %d of map %d (%s) with %d creatures", id, mapID, entry.Name, n)
	return m, nil
}

// Instance returns an existing instance.
func (w *World) Instance(mapID, instanceID uint32) (*Map, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.maps[mapKey{mapID, instanceID}]
	return m, ok
}

func (w *World) Maps() []MapInfo {
	maps := w.mapList()
	out := make([]MapInfo, 0, len(maps))
	for _, m := range maps {
		out = append(out, m.Info())
	}
	return out
}

func (w *World) index(guid uint64, m *Map) {
	w.mu.Lock()
	w.byGUID[guid] = m
	w.mu.Unlock()
}

func (w *World) unindex(guid uint64) {
	w.mu.Lock()
	delete(w.byGUID, guid)
	w.mu.Unlock()
}

func (w *World) creatureMap(guid uint64) (*Map, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.byGUID[guid]
	return m, ok
}

func (w *World) playerMap(guid uint64) (*Map, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.players[guid]
	return m, ok
}

func (w *World) newGUID() uint64 { return w.nextGUID.Add(1) }

func spawnPos(sp catalogs.CreatureSpawn) wander.Position {
	return wander.Position{X: sp.X, Y: sp.Y, Z: sp.Z, O: sp.O}
}
