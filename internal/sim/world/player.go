package world

import (
	"errors"
	"fmt"
)

// Player is a connected player. Fields are guarded by the map's mu.
type Player struct {
	m     *Map
	guid  uint64
	name  string
	level uint8
	zone  uint32
	gm    bool
}

func (p *Player) GUID() uint64     { return p.guid }
func (p *Player) Name() string     { return p.name }
func (p *Player) Level() uint8     { return p.level }
func (p *Player) ZoneID() uint32   { return p.zone }
func (p *Player) InWorld() bool    { return p.m != nil }
func (p *Player) GameMaster() bool { return p.gm }

type PlayerSpec struct {
	// GUID 0 allocates a new guid.
	GUID       uint64 `json:"guid,omitempty"`
	Name       string `json:"name"`
	Level      uint8  `json:"level"`
	MapID      uint32 `json:"map_id"`
	InstanceID uint32 `json:"instance_id,omitempty"`
	ZoneID     uint32 `json:"zone_id"`
	GameMaster bool   `json:"gm,omitempty"`
}

type PlayerInfo struct {
	PlayerSpec
	Heroic bool `json:"heroic,omitempty"`
}

func (w *World) resolveMap(mapID, instanceID uint32) (*Map, error) {
	if instanceID == 0 {
		return w.BaseMap(mapID)
	}
	m, ok := w.Instance(mapID, instanceID)
	if !ok {
		return nil, fmt.Errorf("%w: %d/%d", ErrUnknownMap, mapID, instanceID)
	}
	return m, nil
}

// Login places a new player and returns its guid.
func (w *World) Login(spec PlayerSpec) (uint64, error) {
	if spec.Name == "" {
		return 0, errors.New("player name is required")
	}
	if spec.Level == 0 {
		spec.Level = 1
	}
	m, err := w.resolveMap(spec.MapID, spec.InstanceID)
	if err != nil {
		return 0, err
	}
	if spec.GUID == 0 {
		spec.GUID = w.newGUID()
	}
	w.mu.Lock()
	if _, dup := w.players[spec.GUID]; dup {
		w.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrPlayerExists, spec.GUID)
	}
	w.players[spec.GUID] = m
	w.mu.Unlock()

	p := &Player{guid: spec.GUID, name: spec.Name, level: spec.Level, zone: spec.ZoneID, gm: spec.GameMaster}
	if sc := w.cfg.Scaler; sc != nil {
		sc.OnPlayerLogin(p)
	}
	w.enter(m, p)
	return p.guid, nil
}

func (w *World) enter(m *Map, p *Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.m = m
	m.players[p.guid] = p
	if sc := w.cfg.Scaler; sc != nil {
		sc.OnPlayerEnter(m, p)
	}
}

func (w *World) leave(m *Map, guid uint64) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guid]
	if !ok {
		return nil, false
	}
	delete(m.players, guid)
	if sc := w.cfg.Scaler; sc != nil {
		sc.OnPlayerLeave(m, p)
	}
	p.m = nil
	return p, true
}

func (w *World) Logout(guid uint64) error {
	m, ok := w.playerMap(guid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, guid)
	}
	w.leave(m, guid)
	w.mu.Lock()
	delete(w.players, guid)
	w.mu.Unlock()
	return nil
}

// Teleport moves a player to another map or instance.
func (w *World) Teleport(guid uint64, mapID, instanceID, zoneID uint32) error {
	from, ok := w.playerMap(guid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, guid)
	}
	to, err := w.resolveMap(mapID, instanceID)
	if err != nil {
		return err
	}
	p, ok := w.leave(from, guid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, guid)
	}
	w.mu.Lock()
	w.players[guid] = to
	w.mu.Unlock()
	p.zone = zoneID
	w.enter(to, p)
	return nil
}

// SetLevel changes a player's level and raises its map's level aggregate.
func (w *World) SetLevel(guid uint64, level uint8) error {
	return w.withPlayer(guid, func(m *Map, p *Player) {
		p.level = level
		if sc := w.cfg.Scaler; sc != nil {
			sc.OnLevelChanged(m, p)
		}
	})
}

func (w *World) SetZone(guid uint64, zoneID uint32) error {
	return w.withPlayer(guid, func(_ *Map, p *Player) { p.zone = zoneID })
}

// KillXP returns the experience a player earns for a kill worth base.
func (w *World) KillXP(guid uint64, base uint32) (uint32, error) {
	xp := base
	err := w.withPlayer(guid, func(m *Map, _ *Player) {
		if sc := w.cfg.Scaler; sc != nil {
			xp = sc.ScaleXP(m, base, true)
		}
	})
	return xp, err
}

func (w *World) Player(guid uint64) (PlayerInfo, bool) {
	var out PlayerInfo
	err := w.withPlayer(guid, func(m *Map, p *Player) {
		out = PlayerInfo{
			PlayerSpec: PlayerSpec{
				GUID:       p.guid,
				Name:       p.name,
				Level:      p.level,
				MapID:      m.entry.ID,
				InstanceID: m.instanceID,
				ZoneID:     p.zone,
				GameMaster: p.gm,
			},
			Heroic: m.heroic,
		}
	})
	return out, err == nil
}

func (w *World) withPlayer(guid uint64, fn func(m *Map, p *Player)) error {
	m, ok := w.playerMap(guid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, guid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPlayer, guid)
	}
	fn(m, p)
	return nil
}
