package autobalance

import "sort"

type pendingEvent struct {
	kind   string
	mapID  uint32
	fields map[string]any
}

func (s *Scaler) flush(events []pendingEvent) {
	for _, e := range events {
		s.emit(e.kind, e.mapID, e.fields)
	}
}

// OnPlayerLogin emits the module announcement when enabled.
func (s *Scaler) OnPlayerLogin(p Player) {
	if s.cfg.Announce && p != nil {
		s.emit(EventAnnounce, 0, map[string]any{
			"player":  p.Name(),
			"message": "This server is running the AutoBalance module.",
		})
	}
}

// OnPlayerEnter restarts the map recalc timer.
func (s *Scaler) OnPlayerEnter(m Map, p Player) { s.playerMoved(m, p, EventPlayerEnter) }

func (s *Scaler) OnPlayerLeave(m Map, p Player) { s.playerMoved(m, p, EventPlayerLeave) }

func (s *Scaler) playerMoved(m Map, p Player, kind string) {
	s.mu.Lock()
	s.timers[instanceKey{m.ID(), m.InstanceID()}] = 0
	s.mu.Unlock()

	if p == nil || p.GameMaster() || !s.cfg.PlayerChangeNotify {
		return
	}
	s.emit(kind, m.ID(), map[string]any{
		"player":   p.Name(),
		"map":      m.Name(),
		"instance": m.InstanceID(),
		"dungeon":  !m.Entry().IsWorldMap(),
	})
}

// OnLevelChanged raises the level aggregate of the player's map or zone at once.
func (s *Scaler) OnLevelChanged(m Map, p Player) {
	if !s.cfg.Enable || !s.cfg.LevelScaling || p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !m.Entry().IsWorldMap() {
		if ms := m.State(); ms.Level < p.Level() {
			ms.Level = p.Level()
		}
		return
	}
	zones := s.worldZonesLocked(m.ID())
	z := zones[p.ZoneID()]
	if z.level < p.Level() {
		z.level = p.Level()
		zones[p.ZoneID()] = z
	}
}

func (s *Scaler) worldZonesLocked(mapID uint32) map[uint32]zoneStat {
	zones, ok := s.zones[mapID]
	if !ok {
		zones = map[uint32]zoneStat{}
		s.zones[mapID] = zones
	}
	return zones
}

func (s *Scaler) counted(p Player) uint32 {
	n := uint32(1)
	if s.cfg.CountNpcBots {
		n += uint32(s.bots.ControlledInMap(p))
	}
	return n
}

// UpdateMap advances the recalc timer of m by diffMs and recomputes the player
// aggregates once it expires.
func (s *Scaler) UpdateMap(m Map, diffMs int) {
	if !s.cfg.Enable {
		return
	}
	entry := m.Entry()
	world := entry.IsWorldMap()
	players := m.Players()
	if !world && len(players) == 0 {
		return
	}

	key := instanceKey{m.ID(), m.InstanceID()}
	s.mu.Lock()
	if t := s.timers[key]; t < s.cfg.RecalcIntervalMs {
		s.timers[key] = t + diffMs
		s.mu.Unlock()
		return
	}
	jitter := 0
	if s.cfg.RecalcJitterMs > 0 {
		jitter = s.rng.Intn(s.cfg.RecalcJitterMs + 1)
	}
	s.timers[key] = jitter
	if len(players) == 0 {
		s.mu.Unlock()
		return
	}

	var events []pendingEvent
	if world {
		events = s.recountZonesLocked(m, players)
	} else {
		events = s.recountInstanceLocked(m, players)
	}
	s.mu.Unlock()
	s.flush(events)
}

func (s *Scaler) recountZonesLocked(m Map, players []Player) []pendingEvent {
	fresh := map[uint32]zoneStat{}
	for _, p := range players {
		if p == nil || !p.InWorld() {
			continue
		}
		z := fresh[p.ZoneID()]
		z.players += s.counted(p)
		if z.level < p.Level() {
			z.level = p.Level()
		}
		fresh[p.ZoneID()] = z
	}

	zones := s.worldZonesLocked(m.ID())
	var events []pendingEvent
	if s.cfg.PlayerChangeNotify {
		ids := make([]uint32, 0, len(fresh))
		for id := range fresh {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			old, ok := zones[id]
			if ok && old.players == fresh[id].players {
				continue
			}
			name := "Unknown"
			if s.data != nil {
				if a, ok := s.data.Area(id); ok {
					name = a.Name
				}
			}
			events = append(events, pendingEvent{kind: EventPlayersChanged, mapID: m.ID(), fields: map[string]any{
				"zone":    id,
				"name":    name,
				"players": int(fresh[id].players) + s.offset,
				"offset":  s.offset,
			}})
		}
	}

	for id := range zones {
		if _, ok := fresh[id]; !ok {
			zones[id] = zoneStat{}
		}
	}
	for id, z := range fresh {
		zones[id] = z
	}
	return events
}

func (s *Scaler) recountInstanceLocked(m Map, players []Player) []pendingEvent {
	var (
		count uint32
		level uint8
	)
	for _, p := range players {
		if p == nil || !p.InWorld() || p.GameMaster() {
			continue
		}
		count += s.counted(p)
		if p.Level() > level {
			level = p.Level()
		}
	}
	ms := m.State()
	if ms.PlayerCount == count && ms.Level == level {
		return nil
	}
	var events []pendingEvent
	if s.cfg.PlayerChangeNotify && ms.PlayerCount != count {
		events = append(events, pendingEvent{kind: EventPlayersChanged, mapID: m.ID(), fields: map[string]any{
			"map":      m.Name(),
			"instance": m.InstanceID(),
			"dungeon":  true,
			"players":  int(count) + s.offset,
			"offset":   s.offset,
		}})
	}
	ms.PlayerCount = count
	ms.Level = level
	return events
}

// ModifyAmount scales damage or healing done by a creature source.
func (s *Scaler) ModifyAmount(m Map, source Creature, value uint32) uint32 {
	if !s.cfg.Enable || source == nil || value == 0 || !source.InWorld() || source.ControlledByPlayer() {
		return value
	}
	if s.cfg.DungeonsOnly && !m.Entry().Instanceable() {
		return value
	}
	mult := source.State().DamageMultiplier
	if mult == 1 || mult == 0 {
		return value
	}
	out := uint32(float64(value) * mult)
	if out < 1 {
		out = 1
	}
	return out
}

// ScaleXP scales kill experience in dungeons by present over maximum players.
func (s *Scaler) ScaleXP(m Map, amount uint32, fromKill bool) uint32 {
	if !fromKill || !s.cfg.DungeonScaleDownXP {
		return amount
	}
	e := m.Entry()
	if !e.IsDungeon() && !e.IsRaid() {
		return amount
	}
	maxPlayers := m.MaxPlayers()
	if maxPlayers == 0 {
		return amount
	}
	var cur uint32
	for _, p := range m.Players() {
		if p != nil && !p.GameMaster() {
			cur++
		}
	}
	return uint32(float64(amount) * float64(cur) / float64(maxPlayers))
}
