package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
)

// Creature ranks (creature_template.rank).
const (
	RankNormal    = 0
	RankElite     = 1
	RankRareElite = 2
	RankWorldBoss = 3
	RankRare      = 4
)

// CreatureTypeCritter marks trivial creatures that are never scaled.
const CreatureTypeCritter = 8

// MaxEquipmentItems is the number of item slots of an equipment template.
const MaxEquipmentItems = 3

// Map kinds (maps.json "kind").
const (
	MapKindWorld        = "WORLD"
	MapKindDungeon      = "DUNGEON"
	MapKindRaid         = "RAID"
	MapKindBattleground = "BATTLEGROUND"
)

type Catalogs struct {
	Creatures CreatureCatalog
	Locales   LocaleCatalog
	Equipment EquipmentCatalog
	BaseStats BaseStatsCatalog
	Maps      MapCatalog
	Areas     AreaCatalog
	Races     RaceCatalog
	Spawns    SpawnCatalog
}

type CreatureCatalog struct {
	ByEntry map[uint32]CreatureTemplate
	Digest  string
}

type CreatureTemplate struct {
	Entry       uint32   `json:"entry"`
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	MinLevel    uint8    `json:"min_level"`
	MaxLevel    uint8    `json:"max_level"`
	Rank        int      `json:"rank"`
	UnitClass   uint8    `json:"unit_class"`
	Type        uint8    `json:"type"`
	Expansion   uint8    `json:"expansion"`
	Faction     uint32   `json:"faction"`
	ModHealth   float64  `json:"mod_health"`
	ModMana     float64  `json:"mod_mana"`
	ModArmor    float64  `json:"mod_armor"`
	DungeonBoss bool     `json:"dungeon_boss,omitempty"`
	Spells      []uint32 `json:"spells,omitempty"`
}

// Clone returns a deep copy of the template.
func (t CreatureTemplate) Clone() CreatureTemplate {
	out := t
	out.Spells = slices.Clone(t.Spells)
	return out
}

type LocaleCatalog struct {
	// ByEntry maps creature entry to locale code (e.g. "deDE") to localized name.
	ByEntry map[uint32]map[string]string
	Digest  string
}

type CreatureLocale struct {
	Entry uint32            `json:"entry"`
	Names map[string]string `json:"names"`
}

type EquipmentCatalog struct {
	ByKey  map[EquipmentKey]EquipmentInfo
	Digest string
}

type EquipmentKey struct {
	Entry uint32
	ID    int8
}

type EquipmentInfo struct {
	Entry uint32                    `json:"entry"`
	ID    int8                      `json:"id"`
	Items [MaxEquipmentItems]uint32 `json:"items"`
}

// Contains reports whether itemEntry is one of the template's items.
func (e EquipmentInfo) Contains(itemEntry uint32) bool {
	if itemEntry == 0 {
		return false
	}
	for _, it := range e.Items {
		if it == itemEntry {
			return true
		}
	}
	return false
}

type BaseStatsCatalog struct {
	ByKey  map[BaseStatsKey]BaseStats
	Digest string
}

type BaseStatsKey struct {
	Level uint8
	Class uint8
}

type BaseStats struct {
	Level             uint8      `json:"level"`
	Class             uint8      `json:"class"`
	BaseHealth        [3]uint32  `json:"base_health"`
	BaseMana          uint32     `json:"base_mana"`
	BaseArmor         uint32     `json:"base_armor"`
	AttackPower       uint32     `json:"attack_power"`
	RangedAttackPower uint32     `json:"ranged_attack_power"`
	BaseDamage        [3]float64 `json:"base_damage"`
}

// DefaultBaseStats is returned for (level, class) pairs missing from the table.
var DefaultBaseStats = BaseStats{
	BaseHealth: [3]uint32{1, 1, 1},
	BaseMana:   1,
	BaseArmor:  1,
	BaseDamage: [3]float64{1, 1, 1},
}

func expansionIndex(t CreatureTemplate) int {
	if t.Expansion > 2 {
		return 2
	}
	return int(t.Expansion)
}

func (b BaseStats) GenerateHealth(t CreatureTemplate) uint32 {
	return uint32(math.Ceil(float64(b.BaseHealth[expansionIndex(t)]) * modOrOne(t.ModHealth)))
}

func (b BaseStats) GenerateMana(t CreatureTemplate) uint32 {
	if b.BaseMana == 0 {
		return 0
	}
	return uint32(math.Ceil(float64(b.BaseMana) * modOrOne(t.ModMana)))
}

func (b BaseStats) GenerateArmor(t CreatureTemplate) uint32 {
	return uint32(math.Ceil(float64(b.BaseArmor) * modOrOne(t.ModArmor)))
}

func (b BaseStats) GenerateBaseDamage(t CreatureTemplate) float64 {
	return b.BaseDamage[expansionIndex(t)]
}

func modOrOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}

type MapCatalog struct {
	ByID   map[uint32]MapEntry
	Digest string
}

type MapEntry struct {
	ID         uint32 `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	MaxPlayers uint32 `json:"max_players,omitempty"`
	// Dungeon finder level band; zero for world maps.
	MinLevel    uint8 `json:"min_level,omitempty"`
	MaxLevel    uint8 `json:"max_level,omitempty"`
	TargetLevel uint8 `json:"target_level,omitempty"`
}

func (m MapEntry) IsWorldMap() bool { return m.Kind == MapKindWorld }
func (m MapEntry) IsDungeon() bool  { return m.Kind == MapKindDungeon }
func (m MapEntry) IsRaid() bool     { return m.Kind == MapKindRaid }
func (m MapEntry) Instanceable() bool {
	return m.Kind == MapKindDungeon || m.Kind == MapKindRaid || m.Kind == MapKindBattleground
}

type AreaCatalog struct {
	ByID   map[uint32]AreaEntry
	Digest string
}

type AreaEntry struct {
	ID               uint32 `json:"id"`
	Name             string `json:"name"`
	ZoneID           uint32 `json:"zone_id,omitempty"`
	ExplorationLevel uint8  `json:"exploration_level,omitempty"`
}

type RaceCatalog struct {
	ByID   map[uint8]RaceEntry
	Digest string
}

type RaceEntry struct {
	ID        uint8  `json:"id"`
	Name      string `json:"name"`
	FactionID uint32 `json:"faction_id"`
}

type SpawnCatalog struct {
	ByGUID  map[uint32]CreatureSpawn
	ByEntry map[uint32][]uint32
	Digest  string
}

type CreatureSpawn struct {
	GUID   uint32  `json:"guid"`
	Entry  uint32  `json:"entry"`
	MapID  uint32  `json:"map"`
	ZoneID uint32  `json:"zone_id"`
	AreaID uint32  `json:"area_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	O      float64 `json:"o"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadCreatures(filepath.Join(configDir, "creature_templates.json"), &c.Creatures); err != nil {
		return nil, err
	}
	if err := loadBaseStats(filepath.Join(configDir, "base_stats.json"), &c.BaseStats); err != nil {
		return nil, err
	}
	if err := loadMaps(filepath.Join(configDir, "maps.json"), &c.Maps); err != nil {
		return nil, err
	}
	if err := loadLocales(filepath.Join(configDir, "creature_locales.json"), &c.Locales); err != nil {
		return nil, err
	}
	if err := loadEquipment(filepath.Join(configDir, "equipment.json"), &c.Equipment); err != nil {
		return nil, err
	}
	if err := loadAreas(filepath.Join(configDir, "areas.json"), &c.Areas); err != nil {
		return nil, err
	}
	if err := loadRaces(filepath.Join(configDir, "races.json"), &c.Races); err != nil {
		return nil, err
	}
	if err := loadSpawns(filepath.Join(configDir, "creature_spawns.json"), &c.Spawns); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digest is a stable digest of all loaded catalogs.
func (c *Catalogs) Digest() string {
	parts := []string{
		c.Creatures.Digest, c.Locales.Digest, c.Equipment.Digest, c.BaseStats.Digest,
		c.Maps.Digest, c.Areas.Digest, c.Races.Digest, c.Spawns.Digest,
	}
	b, _ := json.Marshal(parts)
	return sha256Hex(b)
}

func (c *Catalogs) CreatureTemplate(entry uint32) (CreatureTemplate, bool) {
	t, ok := c.Creatures.ByEntry[entry]
	if !ok {
		return CreatureTemplate{}, false
	}
	return t.Clone(), true
}

func (c *Catalogs) HasCreatureTemplate(entry uint32) bool {
	_, ok := c.Creatures.ByEntry[entry]
	return ok
}

func (c *Catalogs) LocaleName(entry uint32, locale string) (string, bool) {
	names, ok := c.Locales.ByEntry[entry]
	if !ok {
		return "", false
	}
	n, ok := names[locale]
	if !ok || n == "" {
		return "", false
	}
	return n, true
}

func (c *Catalogs) EquipmentInfo(entry uint32, id int8) (EquipmentInfo, bool) {
	e, ok := c.Equipment.ByKey[EquipmentKey{Entry: entry, ID: id}]
	return e, ok
}

func (c *Catalogs) BaseStatsFor(level, class uint8) BaseStats {
	if b, ok := c.BaseStats.ByKey[BaseStatsKey{Level: level, Class: class}]; ok {
		return b
	}
	return DefaultBaseStats
}

func (c *Catalogs) Map(id uint32) (MapEntry, bool) {
	m, ok := c.Maps.ByID[id]
	return m, ok
}

func (c *Catalogs) Area(id uint32) (AreaEntry, bool) {
	a, ok := c.Areas.ByID[id]
	return a, ok
}

func (c *Catalogs) RaceFaction(race uint8) (uint32, bool) {
	r, ok := c.Races.ByID[race]
	if !ok {
		return 0, false
	}
	return r.FactionID, true
}

// SpawnByEntry returns the first spawn row (lowest guid) for a creature entry.
func (c *Catalogs) SpawnByEntry(entry uint32) (CreatureSpawn, bool) {
	guids := c.Spawns.ByEntry[entry]
	if len(guids) == 0 {
		return CreatureSpawn{}, false
	}
	return c.Spawns.ByGUID[guids[0]], true
}

// SpawnsOnMap returns the spawn rows of a map ordered by guid.
func (c *Catalogs) SpawnsOnMap(mapID uint32) []CreatureSpawn {
	var out []CreatureSpawn
	for _, s := range c.Spawns.ByGUID {
		if s.MapID == mapID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GUID < out[j].GUID })
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// readOptional returns (nil, nil) for a missing file.
func readOptional(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return raw, nil
}

func loadCreatures(path string, out *CreatureCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []CreatureTemplate
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("creature_templates.json: %w", err)
	}
	out.ByEntry = make(map[uint32]CreatureTemplate, len(defs))
	for _, d := range defs {
		if d.Entry == 0 {
			return fmt.Errorf("creature_templates.json: zero entry")
		}
		if _, dup := out.ByEntry[d.Entry]; dup {
			return fmt.Errorf("creature_templates.json: duplicate entry %d", d.Entry)
		}
		if d.MaxLevel < d.MinLevel {
			return fmt.Errorf("creature_templates.json: entry %d max_level < min_level", d.Entry)
		}
		out.ByEntry[d.Entry] = d
	}
	return nil
}

func loadBaseStats(path string, out *BaseStatsCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []BaseStats
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("base_stats.json: %w", err)
	}
	out.ByKey = make(map[BaseStatsKey]BaseStats, len(defs))
	for _, d := range defs {
		if d.Level == 0 || d.Class == 0 {
			return fmt.Errorf("base_stats.json: level and class must be > 0")
		}
		out.ByKey[BaseStatsKey{Level: d.Level, Class: d.Class}] = d
	}
	return nil
}

func loadMaps(path string, out *MapCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []MapEntry
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("maps.json: %w", err)
	}
	out.ByID = make(map[uint32]MapEntry, len(defs))
	for _, d := range defs {
		switch d.Kind {
		case MapKindWorld, MapKindDungeon, MapKindRaid, MapKindBattleground:
		default:
			return fmt.Errorf("maps.json: map %d has unknown kind %q", d.ID, d.Kind)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadLocales(path string, out *LocaleCatalog) error {
	out.ByEntry = map[uint32]map[string]string{}
	raw, err := readOptional(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if raw == nil {
		return nil
	}
	var defs []CreatureLocale
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("creature_locales.json: %w", err)
	}
	for _, d := range defs {
		out.ByEntry[d.Entry] = d.Names
	}
	return nil
}

func loadEquipment(path string, out *EquipmentCatalog) error {
	out.ByKey = map[EquipmentKey]EquipmentInfo{}
	raw, err := readOptional(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if raw == nil {
		return nil
	}
	var defs []EquipmentInfo
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("equipment.json: %w", err)
	}
	for _, d := range defs {
		if d.ID == 0 {
			d.ID = 1
		}
		out.ByKey[EquipmentKey{Entry: d.Entry, ID: d.ID}] = d
	}
	return nil
}

func loadAreas(path string, out *AreaCatalog) error {
	out.ByID = map[uint32]AreaEntry{}
	raw, err := readOptional(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if raw == nil {
		return nil
	}
	var defs []AreaEntry
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("areas.json: %w", err)
	}
	for _, d := range defs {
		out.ByID[d.ID] = d
	}
	return nil
}

func loadRaces(path string, out *RaceCatalog) error {
	out.ByID = map[uint8]RaceEntry{}
	raw, err := readOptional(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if raw == nil {
		return nil
	}
	var defs []RaceEntry
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("races.json: %w", err)
	}
	for _, d := range defs {
		out.ByID[d.ID] = d
	}
	return nil
}

func loadSpawns(path string, out *SpawnCatalog) error {
	out.ByGUID = map[uint32]CreatureSpawn{}
	out.ByEntry = map[uint32][]uint32{}
	raw, err := readOptional(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if raw == nil {
		return nil
	}
	var defs []CreatureSpawn
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("creature_spawns.json: %w", err)
	}
	for _, d := range defs {
		if d.GUID == 0 {
			return fmt.Errorf("creature_spawns.json: zero guid for entry %d", d.Entry)
		}
		out.ByGUID[d.GUID] = d
		out.ByEntry[d.Entry] = append(out.ByEntry[d.Entry], d.GUID)
	}
	for entry := range out.ByEntry {
		sort.Slice(out.ByEntry[entry], func(i, j int) bool { return out.ByEntry[entry][i] < out.ByEntry[entry][j] })
	}
	return nil
}
