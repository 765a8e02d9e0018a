package world

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"npcbots.ai/internal/sim/autobalance"
	"npcbots.ai/internal/sim/catalogs"
)

// Map is a base map (instance 0) or a dungeon/raid instance. Its creatures and
// players are guarded by mu, which the map's update goroutine holds for the whole
// update.
type Map struct {
	w          *World
	entry      catalogs.MapEntry
	instanceID uint32
	heroic     bool

	mu        sync.Mutex
	rng       *rand.Rand
	creatures map[uint64]*Creature
	players   map[uint64]*Player
	state     autobalance.MapState
}

type MapInfo struct {
	MapID      uint32 `json:"map_id"`
	InstanceID uint32 `json:"instance_id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Heroic     bool   `json:"heroic,omitempty"`
	Creatures  int    `json:"creatures"`
	Players    int    `json:"players"`
	// Instance aggregate used by the scaler; zero on world maps.
	PlayerCount uint32 `json:"player_count"`
	Level       uint8  `json:"level"`
}

func newMap(w *World, entry catalogs.MapEntry, instanceID uint32, heroic bool) *Map {
	seed := w.cfg.Seed ^ int64(entry.ID)<<32 ^ int64(instanceID)
	return &Map{
		w:          w,
		entry:      entry,
		instanceID: instanceID,
		heroic:     heroic,
		rng:        rand.New(rand.NewSource(seed)),
		creatures:  map[uint64]*Creature{},
		players:    map[uint64]*Player{},
	}
}

func (m *Map) ID() uint32               { return m.entry.ID }
func (m *Map) InstanceID() uint32       { return m.instanceID }
func (m *Map) Name() string             { return m.entry.Name }
func (m *Map) Entry() catalogs.MapEntry { return m.entry }
func (m *Map) Heroic() bool             { return m.heroic }
func (m *Map) MaxPlayers() uint32       { return m.entry.MaxPlayers }

// Players lists the map's players by guid. Callers hold mu.
func (m *Map) Players() []autobalance.Player {
	ids := make([]uint64, 0, len(m.players))
	for id := range m.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]autobalance.Player, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.players[id])
	}
	return out
}

func (m *Map) State() *autobalance.MapState { return &m.state }

func (m *Map) Info() MapInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MapInfo{
		MapID:       m.entry.ID,
		InstanceID:  m.instanceID,
		Name:        m.entry.Name,
		Kind:        m.entry.Kind,
		Heroic:      m.heroic,
		Creatures:   len(m.creatures),
		Players:     len(m.players),
		PlayerCount: m.state.PlayerCount,
		Level:       m.state.Level,
	}
}

func (m *Map) sortedCreatures() []*Creature {
	out := make([]*Creature, 0, len(m.creatures))
	for _, c := range m.creatures {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].guid < out[j].guid })
	return out
}

func (m *Map) update(ctx context.Context, diffMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc := m.w.cfg.Scaler
	if sc != nil {
		sc.UpdateMap(m, diffMs)
	}
	for _, c := range m.sortedCreatures() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.wanderNode != 0 {
			m.wanderStepLocked(c, diffMs)
		}
		if sc != nil {
			sc.UpdateCreature(m, c)
		}
	}
	return nil
}

// wanderStepLocked moves a wandering bot to its next node once its travel time
// is spent.
func (m *Map) wanderStepLocked(c *Creature, diffMs int) {
	g := m.w.cfg.Graph
	if g == nil {
		return
	}
	c.wanderTimer += diffMs
	if c.wanderTimer < m.w.cfg.WanderStepMs {
		return
	}
	c.wanderTimer = 0
	next, pos, ok := g.NextNode(m.entry.ID, c.wanderNode, c.wanderPrev, c.level, m.rng)
	if !ok {
		return
	}
	c.wanderPrev, c.wanderNode = c.wanderNode, next
	c.pos = pos
	if n, ok := g.Node(m.entry.ID, next); ok {
		c.zone, c.area = n.ZoneID, n.ZoneID
	}
}
