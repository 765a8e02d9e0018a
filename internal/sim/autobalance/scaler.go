// Package autobalance scales creature stats to the number and level of players
// present in a zone or instance.
package autobalance

import (
	"log"
	"math"
	"math/rand"
	"sync"

	"npcbots.ai/internal/sim/catalogs"
	"npcbots.ai/internal/sim/tuning"
)

type Config struct {
	AutoBalance tuning.AutoBalance
	Rates       tuning.CreatureRates
	Data        Data
	Bots        Bots
	Notifier    Notifier
	Logger      *log.Logger
	Rand        *rand.Rand
}

type instanceKey struct {
	mapID, instanceID uint32
}

type zoneStat struct {
	players uint32
	level   uint8
}

// Scaler holds the aggregate tables. Map and zone aggregates are written by the
// goroutine updating that map; mu also serializes the admin readers.
type Scaler struct {
	cfg    tuning.AutoBalance
	rates  tuning.CreatureRates
	forced map[uint32]int
	data   Data
	bots   Bots
	notify Notifier
	logger *log.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	offset int
	timers map[instanceKey]int
	// World map zone aggregates, per world map.
	zones map[uint32]map[uint32]zoneStat
}

func New(cfg Config) *Scaler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	bots := cfg.Bots
	if bots == nil {
		bots = noBots{}
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	s := &Scaler{
		cfg:    cfg.AutoBalance,
		rates:  cfg.Rates,
		forced: cfg.AutoBalance.ForcedPlayerCounts(),
		data:   cfg.Data,
		bots:   bots,
		notify: cfg.Notifier,
		logger: logger,
		rng:    rng,
		offset: cfg.AutoBalance.PlayerCountOffset,
		timers: map[instanceKey]int{},
		zones:  map[uint32]map[uint32]zoneStat{},
	}
	logger.Printf(">> Autobalance config loaded (%d forced creature ids)", len(s.forced))
	if !s.cfg.Enable {
		logger.Printf(">> Autobalance system is disabled.")
	}
	return s
}

func (s *Scaler) Enabled() bool { return s.cfg.Enable }

func (s *Scaler) emit(kind string, mapID uint32, fields map[string]any) {
	if s.notify != nil {
		s.notify.Notify(kind, mapID, fields)
	}
}

// eligible is the creature gate: server controlled, not a critter, not a bot.
func (s *Scaler) eligible(c Creature) bool {
	if c == nil || !c.InWorld() || c.ControlledByPlayer() {
		return false
	}
	if c.Template().Type == catalogs.CreatureTypeCritter {
		return false
	}
	return !s.bots.IsBot(c)
}

func (s *Scaler) checkLevelOffset(selected, target uint8) bool {
	if selected == 0 {
		return false
	}
	sel, tgt := int(selected), int(target)
	return (tgt >= sel && tgt <= sel+s.cfg.LevelHigherOffset) ||
		(tgt <= sel && tgt >= sel-s.cfg.LevelLowerOffset)
}

// Sigmoid maps an effective player count to a [0,1] multiplier. diff is the curve
// width, inflection the count at which the multiplier is 0.5.
func Sigmoid(count, inflection, diff float64) float64 {
	return (math.Tanh((count-inflection)/diff) + 1) / 2
}

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func (s *Scaler) inflectionPoint(m Map, instance bool) float64 {
	in := s.cfg.Inflection
	normal := deref(in.Normal, 0.5)
	if !instance {
		return normal
	}
	raid := m.Entry().IsRaid()
	if m.Heroic() {
		if !raid {
			return deref(in.Heroic, normal)
		}
		switch m.MaxPlayers() {
		case 10:
			return deref(in.Raid10MHeroic, normal)
		case 25:
			return deref(in.Raid25MHeroic, normal)
		default:
			return deref(in.RaidHeroic, normal)
		}
	}
	if !raid {
		return normal
	}
	switch m.MaxPlayers() {
	case 10:
		return deref(in.Raid10M, normal)
	case 25:
		return deref(in.Raid25M, normal)
	default:
		return deref(in.Raid, normal)
	}
}

func (s *Scaler) healthRate(rank int) float64 {
	r := s.rates
	var v float64
	switch rank {
	case catalogs.RankNormal:
		v = r.NormalHP
	case catalogs.RankElite:
		v = r.EliteHP
	case catalogs.RankRareElite:
		v = r.RareEliteHP
	case catalogs.RankWorldBoss:
		v = r.WorldBossHP
	case catalogs.RankRare:
		v = r.RareHP
	default:
		v = r.EliteHP
	}
	if v <= 0 {
		return 1
	}
	return v
}

// areaLevel returns the expected level band of an area: the dungeon band for
// instances, else the area exploration level when the creature has no level.
func (s *Scaler) areaLevel(m Map, areaID uint32, original uint8) (uint8, uint8) {
	lo, hi := original, original
	e := m.Entry()
	if (e.IsDungeon() || e.IsRaid()) && (e.MinLevel > 0 || e.MaxLevel > 0) {
		lo = e.MinLevel
		hi = e.MaxLevel
		if e.TargetLevel > 0 {
			hi = e.TargetLevel
		}
	}
	if lo == 0 && hi == 0 && s.data != nil {
		if a, ok := s.data.Area(areaID); ok && a.ExplorationLevel > 0 {
			lo, hi = a.ExplorationLevel, a.ExplorationLevel
		}
	}
	return lo, hi
}

func modOrOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

// UpdateCreature evaluates one creature. It reports whether stats were written.
func (s *Scaler) UpdateCreature(m Map, c Creature) bool {
	if !s.cfg.Enable {
		return false
	}
	return s.modify(m, c, false)
}

// Rescale forces a full evaluation, as after a template change.
func (s *Scaler) Rescale(m Map, c Creature) bool {
	if !s.cfg.Enable {
		return false
	}
	return s.modify(m, c, true)
}

func (s *Scaler) modify(m Map, c Creature, reset bool) bool {
	if !s.eligible(c) {
		return false
	}
	entry := m.Entry()
	if s.cfg.DungeonsOnly && !entry.Instanceable() {
		return false
	}
	world := entry.IsWorldMap()

	s.mu.Lock()
	var (
		count uint32
		level uint8
	)
	if !world {
		ms := m.State()
		count, level = ms.PlayerCount, ms.Level
	} else {
		z := s.zones[m.ID()][c.ZoneID()]
		count, level = z.players, z.level
	}
	offset := s.offset
	s.mu.Unlock()
	if count == 0 || level == 0 {
		return false
	}

	tpl := c.Template()
	instance := !world
	maxPlayers := uint32(MaxGroupSize)
	if instance {
		maxPlayers = m.MaxPlayers()
	}
	if forced, ok := s.forced[tpl.Entry]; ok {
		if forced == 0 {
			return false
		}
		maxPlayers = uint32(forced)
	}

	st := c.State()
	if reset || (st.Entry != 0 && st.Entry != c.Entry()) {
		st.SelectedLevel = 0
	}
	if !c.Alive() {
		return false
	}

	cur := int64(count) + int64(offset)
	if cur < 0 {
		cur = 0
	}
	curCount := uint32(cur)
	var bonus uint8
	if tpl.Rank == catalogs.RankWorldBoss {
		bonus = 3
	}

	if st.SelectedLevel > 0 {
		if s.cfg.LevelScaling {
			if s.checkLevelOffset(level+bonus, c.Level()) &&
				s.checkLevelOffset(st.SelectedLevel, c.Level()) &&
				st.InstancePlayerCount == curCount {
				return false
			}
		} else if st.InstancePlayerCount == curCount {
			return false
		}
	}

	st.InstancePlayerCount = curCount
	if curCount == 0 {
		return false
	}

	original := uint8((int(tpl.MinLevel) + int(tpl.MaxLevel)) / 2)
	areaMin, areaMax := s.areaLevel(m, c.AreaID(), original)
	// Critters and spell summons in leveled areas keep their level.
	skipLevel := tpl.MaxLevel <= 1 && areaMin >= 5

	newLevel := c.Level()
	if s.cfg.LevelScaling && (!s.cfg.DungeonsOnly || entry.Instanceable()) && !skipLevel && !s.checkLevelOffset(level, original) {
		if level != st.SelectedLevel || st.SelectedLevel != c.Level() {
			st.SelectedLevel = level + bonus
			newLevel = st.SelectedLevel
		}
	} else {
		st.SelectedLevel = c.Level()
	}
	st.Entry = c.Entry()

	useDefStats := s.cfg.LevelUseDB && newLevel >= tpl.MinLevel && newLevel <= tpl.MaxLevel
	rescaleStats := !useDefStats && s.cfg.LevelScaling && !skipLevel

	origStats := s.data.BaseStatsFor(original, tpl.UnitClass)
	newStats := s.data.BaseStatsFor(st.SelectedLevel, tpl.UnitClass)
	baseHealth := float64(origStats.GenerateHealth(tpl))
	baseMana := float64(origStats.GenerateMana(tpl))

	multiplier := 1.0
	if curCount < maxPlayers {
		inflection := float64(maxPlayers) * s.inflectionPoint(m, instance)
		if c.DungeonBoss() {
			inflection *= s.cfg.BossInflectionMult
		}
		diff := float64(maxPlayers) / 5 * 1.5
		multiplier = Sigmoid(float64(curCount), inflection, diff)
	}

	rate := s.cfg.Rate
	hm := rate.Health * multiplier * rate.Global
	if hm < s.cfg.MinHPModifier {
		hm = s.cfg.MinHPModifier
	}
	hpStatsRate := s.healthRate(tpl.Rank)
	endGame := s.cfg.LevelEndGameBoost && st.SelectedLevel >= 75 && original < 75
	if rescaleStats {
		var newBase float64
		switch {
		case level <= 60:
			newBase = float64(newStats.BaseHealth[0])
		case level <= 70:
			newBase = float64(newStats.BaseHealth[1])
		default:
			newBase = float64(newStats.BaseHealth[2])
			if endGame {
				newBase *= float64(st.SelectedLevel-70) * 0.3
			}
		}
		newHealth := newBase * modOrOne(tpl.ModHealth)
		// Creatures below the area's top level lose up to 30% health.
		if original >= areaMin && original < areaMax {
			reduction := newHealth / float64(areaMax-areaMin) * (float64(areaMax-original) * 0.3)
			if reduction > 0 && reduction < newHealth {
				newHealth -= reduction
			}
		}
		if baseHealth > 0 {
			hpStatsRate *= newHealth / baseHealth
		}
	}
	hm *= hpStatsRate
	st.HealthMultiplier = hm
	scaledHealth := uint32(baseHealth*hm + 0.5)

	manaStatsRate := 1.0
	if rescaleStats && baseMana > 0 {
		manaStatsRate = float64(newStats.GenerateMana(tpl)) / baseMana
	}
	mm := manaStatsRate * rate.Mana * multiplier * rate.Global
	if mm < s.cfg.MinManaModifier {
		mm = s.cfg.MinManaModifier
	}
	st.ManaMultiplier = mm
	scaledMana := uint32(baseMana*mm + 0.5)

	dm := multiplier * rate.Global * rate.Damage
	if dm < s.cfg.MinDamageModifier {
		dm = s.cfg.MinDamageModifier
	}
	st.ArmorMultiplier = multiplier * rate.Global * rate.Armor
	armorSrc := newStats.GenerateArmor(tpl)
	if !rescaleStats {
		armorSrc = origStats.GenerateArmor(tpl)
	}
	armor := uint32(0.5 + st.ArmorMultiplier*float64(armorSrc))

	baseDamage := newStats.GenerateBaseDamage(tpl)
	if endGame && level > 70 && !entry.IsRaid() {
		baseDamage *= float64(st.SelectedLevel-70) * 0.3
	}
	st.DamageMultiplier = dm

	out := Scaled{
		Level:             newLevel,
		BaseDamageMin:     baseDamage,
		BaseDamageMax:     baseDamage * 1.5,
		AttackPower:       newStats.AttackPower,
		RangedAttackPower: newStats.RangedAttackPower,
		Armor:             armor,
		MaxHealth:         scaledHealth,
		MaxMana:           scaledMana,
	}
	// Keep the damage taken proportional across the rescale.
	if prev, prevMax := c.Health(), c.MaxHealth(); prev > 0 && prevMax > 0 {
		out.Health = uint32(float64(scaledHealth) * float64(prev) / float64(prevMax))
	}
	if prev, prevMax := c.Mana(), c.MaxMana(); prev > 0 && prevMax > 0 {
		out.Mana = uint32(float64(scaledMana) * float64(prev) / float64(prevMax))
	}
	if !c.PowerIsMana() {
		out.Mana = c.Mana()
	}

	if sameBlock(st.last, out) && c.MaxHealth() == out.MaxHealth && c.MaxMana() == out.MaxMana && c.Level() == out.Level {
		return false
	}
	st.last = out
	c.ApplyScaled(out)
	return true
}

// sameBlock compares everything but the current health and mana.
func sameBlock(a, b Scaled) bool {
	a.Health, a.Mana = 0, 0
	b.Health, b.Mana = 0, 0
	return a == b
}
