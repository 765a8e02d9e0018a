package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed tuning.schema.json
var schemaJSON string

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`
	TickRateHz      int    `yaml:"tick_rate_hz" json:"tick_rate_hz"`

	Bots          Bots          `yaml:"bots" json:"bots"`
	Wander        Wander        `yaml:"wander" json:"wander"`
	AutoBalance   AutoBalance   `yaml:"autobalance" json:"autobalance"`
	CreatureRates CreatureRates `yaml:"creature_rates" json:"creature_rates"`
}

type Bots struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Spawn persisted bots into the world after loading their records.
	Spawn          bool    `yaml:"spawn" json:"spawn"`
	WanderingCount int     `yaml:"wandering_count" json:"wandering_count"`
	EntryBegin     uint32  `yaml:"entry_begin" json:"entry_begin"`
	CreateBegin    uint32  `yaml:"create_begin" json:"create_begin"`
	GiverEntry     uint32  `yaml:"giver_entry" json:"giver_entry"`
	DefaultFaction uint32  `yaml:"default_faction" json:"default_faction"`
	EnabledClasses []uint8 `yaml:"enabled_classes" json:"enabled_classes"`
	// Upper bound on template-selection retries per generated bot.
	MaxGenerateAttempts int `yaml:"max_generate_attempts" json:"max_generate_attempts"`
}

type Wander struct {
	Maps              []uint32 `yaml:"maps" json:"maps"`
	ConnectionDistMax float64  `yaml:"connection_dist_max" json:"connection_dist_max"`
}

type AutoBalance struct {
	Enable             bool    `yaml:"enable" json:"enable"`
	Announce           bool    `yaml:"announce" json:"announce"`
	LevelScaling       bool    `yaml:"level_scaling" json:"level_scaling"`
	LevelEndGameBoost  bool    `yaml:"level_end_game_boost" json:"level_end_game_boost"`
	DungeonsOnly       bool    `yaml:"dungeons_only" json:"dungeons_only"`
	PlayerChangeNotify bool    `yaml:"player_change_notify" json:"player_change_notify"`
	LevelUseDB         bool    `yaml:"level_use_db" json:"level_use_db"`
	DungeonScaleDownXP bool    `yaml:"dungeon_scale_down_xp" json:"dungeon_scale_down_xp"`
	CountNpcBots       bool    `yaml:"count_npc_bots" json:"count_npc_bots"`
	PlayerCountOffset  int     `yaml:"player_count_difficulty_offset" json:"player_count_difficulty_offset"`
	LevelHigherOffset  int     `yaml:"level_higher_offset" json:"level_higher_offset"`
	LevelLowerOffset   int     `yaml:"level_lower_offset" json:"level_lower_offset"`
	RecalcIntervalMs   int     `yaml:"recalc_interval_ms" json:"recalc_interval_ms"`
	RecalcJitterMs     int     `yaml:"recalc_jitter_ms" json:"recalc_jitter_ms"`
	BossInflectionMult float64 `yaml:"boss_inflection_mult" json:"boss_inflection_mult"`
	MinHPModifier      float64 `yaml:"min_hp_modifier" json:"min_hp_modifier"`
	MinManaModifier    float64 `yaml:"min_mana_modifier" json:"min_mana_modifier"`
	MinDamageModifier  float64 `yaml:"min_damage_modifier" json:"min_damage_modifier"`

	Inflection Inflection `yaml:"inflection" json:"inflection"`
	Rate       Rates      `yaml:"rate" json:"rate"`

	// ForcedIDs maps a forced max-player count ("40","25","10","5","2") to creature entries.
	ForcedIDs   map[string][]uint32 `yaml:"forced_ids" json:"forced_ids"`
	DisabledIDs []uint32            `yaml:"disabled_ids" json:"disabled_ids"`
}

// Inflection holds the inflection point per instance category. Unset values fall back
// along the same chain the options have always used: raid variants to Raid, heroic
// variants to their normal counterpart, Raid to Normal.
type Inflection struct {
	Normal        *float64 `yaml:"normal" json:"normal,omitempty"`
	Heroic        *float64 `yaml:"heroic" json:"heroic,omitempty"`
	Raid          *float64 `yaml:"raid" json:"raid,omitempty"`
	Raid10M       *float64 `yaml:"raid_10m" json:"raid_10m,omitempty"`
	Raid25M       *float64 `yaml:"raid_25m" json:"raid_25m,omitempty"`
	RaidHeroic    *float64 `yaml:"raid_heroic" json:"raid_heroic,omitempty"`
	Raid10MHeroic *float64 `yaml:"raid_10m_heroic" json:"raid_10m_heroic,omitempty"`
	Raid25MHeroic *float64 `yaml:"raid_25m_heroic" json:"raid_25m_heroic,omitempty"`
}

type Rates struct {
	Global float64 `yaml:"global" json:"global"`
	Health float64 `yaml:"health" json:"health"`
	Mana   float64 `yaml:"mana" json:"mana"`
	Armor  float64 `yaml:"armor" json:"armor"`
	Damage float64 `yaml:"damage" json:"damage"`
}

// CreatureRates are the world-wide health rates by creature rank.
type CreatureRates struct {
	NormalHP    float64 `yaml:"normal_hp" json:"normal_hp"`
	EliteHP     float64 `yaml:"elite_hp" json:"elite_hp"`
	RareEliteHP float64 `yaml:"rare_elite_hp" json:"rare_elite_hp"`
	WorldBossHP float64 `yaml:"world_boss_hp" json:"world_boss_hp"`
	RareHP      float64 `yaml:"rare_hp" json:"rare_hp"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      10,
		Bots: Bots{
			Enabled:             true,
			Spawn:               true,
			WanderingCount:      3,
			EntryBegin:          70001,
			CreateBegin:         10000001,
			GiverEntry:          70000,
			DefaultFaction:      14,
			EnabledClasses:      []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 11},
			MaxGenerateAttempts: 64,
		},
		Wander: Wander{
			Maps:              []uint32{0, 1},
			ConnectionDistMax: 1400,
		},
		AutoBalance: AutoBalance{
			Enable:             true,
			Announce:           true,
			LevelScaling:       true,
			LevelEndGameBoost:  true,
			DungeonsOnly:       true,
			PlayerChangeNotify: true,
			LevelUseDB:         true,
			DungeonScaleDownXP: false,
			CountNpcBots:       true,
			PlayerCountOffset:  0,
			LevelHigherOffset:  3,
			LevelLowerOffset:   0,
			RecalcIntervalMs:   2500,
			RecalcJitterMs:     1000,
			BossInflectionMult: 1.0,
			MinHPModifier:      0.1,
			MinManaModifier:    0.1,
			MinDamageModifier:  0.1,
			Rate:               Rates{Global: 1, Health: 1, Mana: 1, Armor: 1, Damage: 1},
			ForcedIDs:          map[string][]uint32{},
		},
		CreatureRates: CreatureRates{NormalHP: 1, EliteHP: 1, RareEliteHP: 1, WorldBossHP: 1, RareHP: 1},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := validateSchema(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("tuning.schema.json", schemaJSON)
	})
	return compiledSchema, schemaErr
}

// stringKeys converts YAML maps with non-string keys (forced_ids: {40: [...]}) so the
// document can be marshaled to JSON.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = stringKeys(e)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case []any:
		for i, e := range x {
			x[i] = stringKeys(e)
		}
		return x
	default:
		return v
	}
}

// validateSchema checks the raw YAML document against the embedded JSON schema.
// The document is round-tripped through JSON so the validator sees JSON types.
func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		return err
	}
	s, err := schema()
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 10
	}
	if len(t.Bots.EnabledClasses) == 0 {
		t.Bots.EnabledClasses = Defaults().Bots.EnabledClasses
	}
	if t.Bots.MaxGenerateAttempts <= 0 {
		t.Bots.MaxGenerateAttempts = 64
	}
	if t.Wander.ConnectionDistMax <= 0 {
		t.Wander.ConnectionDistMax = 1400
	}
	ab := &t.AutoBalance
	if ab.RecalcIntervalMs <= 0 {
		ab.RecalcIntervalMs = 2500
	}
	if ab.RecalcJitterMs < 0 {
		ab.RecalcJitterMs = 0
	}
	if ab.ForcedIDs == nil {
		ab.ForcedIDs = map[string][]uint32{}
	}

	in := &ab.Inflection
	fill := func(dst **float64, from *float64) {
		if *dst == nil {
			v := *from
			*dst = &v
		}
	}
	half := 0.5
	fill(&in.Normal, &half)
	fill(&in.Raid, in.Normal)
	fill(&in.Raid25M, in.Raid)
	fill(&in.Raid10M, in.Raid)
	fill(&in.Heroic, in.Normal)
	fill(&in.RaidHeroic, in.Raid)
	fill(&in.Raid25MHeroic, in.Raid25M)
	fill(&in.Raid10MHeroic, in.Raid10M)
}

func (t Tuning) Validate() error {
	if t.Bots.EntryBegin == 0 {
		return fmt.Errorf("%w: bots.entry_begin must be > 0", ErrInvalid)
	}
	if t.Bots.CreateBegin <= t.Bots.EntryBegin {
		return fmt.Errorf("%w: bots.create_begin must be > bots.entry_begin", ErrInvalid)
	}
	if t.Bots.WanderingCount < 0 {
		return fmt.Errorf("%w: bots.wandering_count must be >= 0", ErrInvalid)
	}
	for _, c := range t.Bots.EnabledClasses {
		if c == 0 {
			return fmt.Errorf("%w: bots.enabled_classes contains 0", ErrInvalid)
		}
	}
	if len(t.Wander.Maps) == 0 {
		return fmt.Errorf("%w: wander.maps must not be empty", ErrInvalid)
	}
	ab := t.AutoBalance
	if ab.LevelHigherOffset < 0 || ab.LevelLowerOffset < 0 {
		return fmt.Errorf("%w: autobalance level offsets must be >= 0", ErrInvalid)
	}
	if ab.Rate.Global < 0 || ab.Rate.Health < 0 || ab.Rate.Mana < 0 || ab.Rate.Armor < 0 || ab.Rate.Damage < 0 {
		return fmt.Errorf("%w: autobalance rates must be >= 0", ErrInvalid)
	}
	for k := range ab.ForcedIDs {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: autobalance.forced_ids key %q must be a positive player count", ErrInvalid, k)
		}
	}
	return nil
}

// ForcedPlayerCounts flattens ForcedIDs and DisabledIDs into entry -> forced max players.
// Disabled entries map to 0. Larger counts are applied first so smaller lists win on
// duplicates, and disabled always wins.
func (ab AutoBalance) ForcedPlayerCounts() map[uint32]int {
	keys := make([]int, 0, len(ab.ForcedIDs))
	byCount := map[int][]uint32{}
	for k, ids := range ab.ForcedIDs {
		n, err := strconv.Atoi(k)
		if err != nil || n <= 0 {
			continue
		}
		keys = append(keys, n)
		byCount[n] = ids
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))
	out := map[uint32]int{}
	for _, n := range keys {
		for _, id := range byCount[n] {
			out[id] = n
		}
	}
	for _, id := range ab.DisabledIDs {
		out[id] = 0
	}
	return out
}
