package world

import (
	"npcbots.ai/internal/sim/autobalance"
	"npcbots.ai/internal/sim/catalogs"
	"npcbots.ai/internal/sim/wander"
)

// Seconds between two melee swings; feeds the attack power bonus to weapon damage.
const baseAttackTime = 2.0

// Creature is a spawned creature. All fields belong to the owning map and are
// read or written with the map's mu held.
type Creature struct {
	m     *Map
	guid  uint64
	tpl   catalogs.CreatureTemplate
	bot   bool
	level uint8
	zone  uint32
	area  uint32
	pos   wander.Position

	health, maxHealth uint32
	mana, maxMana     uint32
	armor             uint32
	attackPower       uint32
	rangedAttackPower uint32
	baseDamageMin     float64
	baseDamageMax     float64
	damageMin         float64
	damageMax         float64

	wanderNode  uint32
	wanderPrev  uint32
	wanderTimer int

	removed bool
	scale   autobalance.CreatureState
}

func (m *Map) newCreatureLocked(tpl catalogs.CreatureTemplate, pos wander.Position, zone, area uint32) *Creature {
	level := tpl.MinLevel
	if tpl.MaxLevel > tpl.MinLevel {
		level += uint8(m.rng.Intn(int(tpl.MaxLevel-tpl.MinLevel) + 1))
	}
	if level == 0 {
		level = 1
	}
	c := &Creature{
		m:     m,
		guid:  m.w.newGUID(),
		tpl:   tpl,
		level: level,
		zone:  zone,
		area:  area,
		pos:   pos,
		scale: autobalance.NewCreatureState(),
	}
	c.resetStats(m.w.cfg.Data.BaseStatsFor(level, tpl.UnitClass))
	m.creatures[c.guid] = c
	return c
}

func (c *Creature) resetStats(bs catalogs.BaseStats) {
	c.maxHealth = bs.GenerateHealth(c.tpl)
	c.health = c.maxHealth
	c.maxMana = bs.GenerateMana(c.tpl)
	c.mana = c.maxMana
	c.armor = bs.GenerateArmor(c.tpl)
	c.attackPower = bs.AttackPower
	c.rangedAttackPower = bs.RangedAttackPower
	dmg := bs.GenerateBaseDamage(c.tpl)
	c.baseDamageMin, c.baseDamageMax = dmg, dmg*1.5
	c.updateDamage()
}

func (c *Creature) updateDamage() {
	bonus := float64(c.attackPower) / 14 * baseAttackTime
	c.damageMin = c.baseDamageMin + bonus
	c.damageMax = c.baseDamageMax + bonus
}

func (c *Creature) GUID() uint64                        { return c.guid }
func (c *Creature) Entry() uint32                       { return c.tpl.Entry }
func (c *Creature) Template() catalogs.CreatureTemplate { return c.tpl }
func (c *Creature) InWorld() bool                       { return c.m != nil && !c.removed }
func (c *Creature) Alive() bool                         { return c.health > 0 }

// ControlledByPlayer is false: the host has no charm or pet support.
func (c *Creature) ControlledByPlayer() bool { return false }

func (c *Creature) DungeonBoss() bool                 { return c.tpl.DungeonBoss }
func (c *Creature) Level() uint8                      { return c.level }
func (c *Creature) ZoneID() uint32                    { return c.zone }
func (c *Creature) AreaID() uint32                    { return c.area }
func (c *Creature) Health() uint32                    { return c.health }
func (c *Creature) MaxHealth() uint32                 { return c.maxHealth }
func (c *Creature) Mana() uint32                      { return c.mana }
func (c *Creature) MaxMana() uint32                   { return c.maxMana }
func (c *Creature) PowerIsMana() bool                 { return c.maxMana > 0 }
func (c *Creature) State() *autobalance.CreatureState { return &c.scale }

// ApplyScaled writes a stat block and recomputes weapon damage.
func (c *Creature) ApplyScaled(s autobalance.Scaled) {
	c.level = s.Level
	c.baseDamageMin, c.baseDamageMax = s.BaseDamageMin, s.BaseDamageMax
	c.attackPower = s.AttackPower
	c.rangedAttackPower = s.RangedAttackPower
	c.armor = s.Armor
	c.maxHealth, c.health = s.MaxHealth, s.Health
	c.maxMana, c.mana = s.MaxMana, s.Mana
	if c.health > c.maxHealth {
		c.health = c.maxHealth
	}
	if c.mana > c.maxMana {
		c.mana = c.maxMana
	}
	c.updateDamage()
}

// CreatureInfo is a copy of a creature's observable state.
type CreatureInfo struct {
	GUID       uint64          `json:"guid"`
	Entry      uint32          `json:"entry"`
	Name       string          `json:"name"`
	MapID      uint32          `json:"map_id"`
	InstanceID uint32          `json:"instance_id"`
	ZoneID     uint32          `json:"zone_id"`
	Pos        wander.Position `json:"pos"`
	Bot        bool            `json:"bot,omitempty"`
	WanderNode uint32          `json:"wander_node,omitempty"`

	Level       uint8   `json:"level"`
	Health      uint32  `json:"health"`
	MaxHealth   uint32  `json:"max_health"`
	Mana        uint32  `json:"mana"`
	MaxMana     uint32  `json:"max_mana"`
	Armor       uint32  `json:"armor"`
	AttackPower uint32  `json:"attack_power"`
	DamageMin   float64 `json:"damage_min"`
	DamageMax   float64 `json:"damage_max"`

	Scale autobalance.CreatureState `json:"scale"`
}

func (c *Creature) info() CreatureInfo {
	return CreatureInfo{
		GUID:        c.guid,
		Entry:       c.tpl.Entry,
		Name:        c.tpl.Name,
		MapID:       c.m.entry.ID,
		InstanceID:  c.m.instanceID,
		ZoneID:      c.zone,
		Pos:         c.pos,
		Bot:         c.bot,
		WanderNode:  c.wanderNode,
		Level:       c.level,
		Health:      c.health,
		MaxHealth:   c.maxHealth,
		Mana:        c.mana,
		MaxMana:     c.maxMana,
		Armor:       c.armor,
		AttackPower: c.attackPower,
		DamageMin:   c.damageMin,
		DamageMax:   c.damageMax,
		Scale:       autobalance.CreatureStats(c),
	}
}

// Creature returns a snapshot of a creature taken under its map's lock.
func (w *World) Creature(guid uint64) (CreatureInfo, bool) {
	m, ok := w.creatureMap(guid)
	if !ok {
		return CreatureInfo{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creatures[guid]
	if !ok {
		return CreatureInfo{}, false
	}
	return c.info(), true
}

// Creatures lists the creatures of one map or instance.
func (w *World) Creatures(mapID, instanceID uint32) []CreatureInfo {
	m, ok := w.Instance(mapID, instanceID)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.sortedCreatures()
	out := make([]CreatureInfo, 0, len(list))
	for _, c := range list {
		out = append(out, c.info())
	}
	return out
}

// ScaleDamage returns value as dealt by creature guid after scaling.
func (w *World) ScaleDamage(guid uint64, value uint32) (uint32, bool) {
	m, ok := w.creatureMap(guid)
	if !ok {
		return value, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creatures[guid]
	if !ok {
		return value, false
	}
	if w.cfg.Scaler == nil {
		return value, true
	}
	return w.cfg.Scaler.ModifyAmount(m, c, value), true
}

// Rescale forces a full re-evaluation of one creature.
func (w *World) Rescale(guid uint64) bool {
	m, ok := w.creatureMap(guid)
	if !ok || w.cfg.Scaler == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creatures[guid]
	if !ok {
		return false
	}
	return w.cfg.Scaler.Rescale(m, c)
}
