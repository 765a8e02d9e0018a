package world

import (
	"context"
	"fmt"

	"npcbots.ai/internal/sim/autobalance"
	"npcbots.ai/internal/sim/botdata"
	"npcbots.ai/internal/sim/catalogs"
	"npcbots.ai/internal/sim/wander"
)

// SpawnBot places a persisted bot at its spawn point and registers it live.
func (w *World) SpawnBot(ctx context.Context, entry uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tpl, ok := w.cfg.Data.CreatureTemplate(entry)
	if !ok {
		return fmt.Errorf("bot %d: %w", entry, botdata.ErrNoTemplate)
	}
	sp, ok := w.cfg.Data.SpawnByEntry(entry)
	if !ok {
		return fmt.Errorf("bot %d: %w", entry, botdata.ErrNoSpawn)
	}
	m, err := w.BaseMap(sp.MapID)
	if err != nil {
		return fmt.Errorf("bot %d: %w", entry, err)
	}
	return w.spawnBot(m, tpl, spawnPos(sp), sp.ZoneID, sp.AreaID, 0)
}

// SpawnGenerated places a generated bot at a wander node; it wanders from there.
func (w *World) SpawnGenerated(ctx context.Context, entry, mapID, node uint32, pos wander.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.cfg.Registry == nil {
		return fmt.Errorf("bot %d: %w", entry, botdata.ErrNoTemplate)
	}
	tpl, ok := w.cfg.Registry.ExtraCreatureTemplate(entry)
	if !ok {
		return fmt.Errorf("bot %d: %w", entry, botdata.ErrNoTemplate)
	}
	m, err := w.BaseMap(mapID)
	if err != nil {
		return fmt.Errorf("bot %d: %w", entry, err)
	}
	var zone uint32
	if w.cfg.Graph != nil {
		if n, ok := w.cfg.Graph.Node(mapID, node); ok {
			zone = n.ZoneID
		}
	}
	return w.spawnBot(m, tpl, pos, zone, zone, node)
}

func (w *World) spawnBot(m *Map, tpl catalogs.CreatureTemplate, pos wander.Position, zone, area, node uint32) error {
	m.mu.Lock()
	c := m.newCreatureLocked(tpl, pos, zone, area)
	c.bot = true
	c.wanderNode = node
	guid := c.guid
	m.mu.Unlock()
	w.index(guid, m)

	if w.cfg.Live != nil && !w.cfg.Live.Register(botdata.LiveRef{Entry: tpl.Entry, GUID: guid, Name: tpl.Name}) {
		w.despawn(m, guid)
		return fmt.Errorf("bot %d is already in the world", tpl.Entry)
	}
	return nil
}

// DespawnBot removes a spawned bot from the world.
func (w *World) DespawnBot(entry uint32) bool {
	if w.cfg.Live == nil {
		return false
	}
	guid := w.cfg.Live.LiveGUID(entry)
	if guid == 0 {
		return false
	}
	m, ok := w.creatureMap(guid)
	if !ok {
		return false
	}
	w.despawn(m, guid)
	return w.cfg.Live.Unregister(entry)
}

func (w *World) despawn(m *Map, guid uint64) {
	m.mu.Lock()
	if c, ok := m.creatures[guid]; ok {
		c.removed = true
		delete(m.creatures, guid)
	}
	m.mu.Unlock()
	w.unindex(guid)
}

type botCapability struct {
	live    Live
	records Registry
}

func (b botCapability) IsBot(c autobalance.Creature) bool {
	wc, ok := c.(*Creature)
	return ok && wc.bot
}

// ControlledInMap counts the spawned bots owned by p that share its map. It runs
// from the map update with the map's mu held.
func (b botCapability) ControlledInMap(p autobalance.Player) int {
	wp, ok := p.(*Player)
	if !ok || wp.m == nil || b.live == nil || b.records == nil {
		return 0
	}
	n := 0
	for _, guid := range b.live.GUIDsByOwner(uint32(wp.guid), b.records) {
		if c, ok := wp.m.creatures[guid]; ok && !c.removed {
			n++
		}
	}
	return n
}
