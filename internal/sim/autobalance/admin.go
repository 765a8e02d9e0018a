package autobalance

import "sort"

type MapTimer struct {
	MapID      uint32 `json:"map_id"`
	InstanceID uint32 `json:"instance_id"`
	ElapsedMs  int    `json:"elapsed_ms"`
}

type ZoneStat struct {
	MapID    uint32 `json:"map_id"`
	ZoneID   uint32 `json:"zone_id"`
	Name     string `json:"name"`
	Players  uint32 `json:"players"`
	MaxLevel uint8  `json:"max_level"`
}

// MapTimers lists the registered recalc timers.
func (s *Scaler) MapTimers() []MapTimer {
	s.mu.Lock()
	out := make([]MapTimer, 0, len(s.timers))
	for k, v := range s.timers {
		out = append(out, MapTimer{MapID: k.mapID, InstanceID: k.instanceID, ElapsedMs: v})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].MapID != out[j].MapID {
			return out[i].MapID < out[j].MapID
		}
		return out[i].InstanceID < out[j].InstanceID
	})
	return out
}

// Zones lists the world zones with their player aggregates.
func (s *Scaler) Zones() []ZoneStat {
	s.mu.Lock()
	var out []ZoneStat
	for mapID, zones := range s.zones {
		for id, z := range zones {
			out = append(out, ZoneStat{MapID: mapID, ZoneID: id, Players: z.players, MaxLevel: z.level})
		}
	}
	s.mu.Unlock()
	for i := range out {
		out[i].Name = "Unknown"
		if s.data != nil {
			if a, ok := s.data.Area(out[i].ZoneID); ok {
				out[i].Name = a.Name
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MapID != out[j].MapID {
			return out[i].MapID < out[j].MapID
		}
		return out[i].ZoneID < out[j].ZoneID
	})
	return out
}

func (s *Scaler) Offset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// SetOffset changes the global player count offset.
func (s *Scaler) SetOffset(v int) {
	s.mu.Lock()
	s.offset = v
	s.mu.Unlock()
	s.logger.Printf("autobalance: player difficulty offset set to %d", v)
}

// AggregateStats is the player aggregate governing a position.
type AggregateStats struct {
	Zone     bool   `json:"zone"`
	Players  uint32 `json:"players"`
	MaxLevel uint8  `json:"max_level"`
}

// MapStats returns the aggregate of the zone (world maps) or instance p is in.
func (s *Scaler) MapStats(m Map, p Player) AggregateStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Entry().IsWorldMap() {
		z := s.zones[m.ID()][p.ZoneID()]
		return AggregateStats{Zone: true, Players: z.players, MaxLevel: z.level}
	}
	ms := m.State()
	return AggregateStats{Players: ms.PlayerCount, MaxLevel: ms.Level}
}

// CreatureStats returns a copy of the creature's scaling state.
func CreatureStats(c Creature) CreatureState {
	st := *c.State()
	st.last = Scaled{}
	return st
}
