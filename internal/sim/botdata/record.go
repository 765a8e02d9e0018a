package botdata

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"npcbots.ai/internal/persistence/botdb"
)

// Equipment slots of a bot, in persisted column order.
const (
	SlotMainHand = iota
	SlotOffHand
	SlotRanged
	SlotHead
	SlotShoulders
	SlotChest
	SlotWaist
	SlotLegs
	SlotFeet
	SlotWrist
	SlotHands
	SlotBack
	SlotBody
	SlotFinger1
	SlotFinger2
	SlotTrinket1
	SlotTrinket2
	SlotNeck

	EquipSlots = botdb.EquipSlots
)

// TransmogSlots covers the visible slots (main hand through body).
const TransmogSlots = 13

// Record is the persisted per-bot data.
type Record struct {
	Owner   uint32 `json:"owner"`
	Roles   uint32 `json:"roles"`
	Spec    uint8  `json:"spec"`
	Faction uint32 `json:"faction"`
	// Equips holds item guids per slot; 0 means the template's default item.
	Equips         [EquipSlots]uint32 `json:"equips"`
	DisabledSpells []uint32           `json:"disabled_spells,omitempty"`
}

func (r Record) clone() Record {
	out := r
	out.DisabledSpells = slices.Clone(r.DisabledSpells)
	return out
}

type Appearance struct {
	Gender    uint8 `json:"gender"`
	Skin      uint8 `json:"skin"`
	Face      uint8 `json:"face"`
	Hair      uint8 `json:"hair"`
	HairColor uint8 `json:"hair_color"`
	Features  uint8 `json:"features"`
}

type Extras struct {
	Class uint8 `json:"class"`
	Race  uint8 `json:"race"`
}

// TransmogPair is a cosmetic override: ItemID is the real item, FakeID the displayed one.
type TransmogPair struct {
	ItemID uint32 `json:"item_id"`
	FakeID uint32 `json:"fake_id"`
}

type Transmog [TransmogSlots]TransmogPair

// Item is an equipped item instance handed to an equipment update.
type Item struct {
	GUID             uint32
	Entry            uint32
	Owner            uint32
	Count            uint32
	Durability       uint32
	Enchantments     string
	RandomPropertyID int32
}

// Stats is a bot's stat snapshot as shown to players.
type Stats struct {
	Entry       uint32  `json:"entry"`
	MaxHealth   uint32  `json:"max_health"`
	MaxPower    uint32  `json:"max_power"`
	Strength    uint32  `json:"strength"`
	Agility     uint32  `json:"agility"`
	Stamina     uint32  `json:"stamina"`
	Intellect   uint32  `json:"intellect"`
	Spirit      uint32  `json:"spirit"`
	Armor       uint32  `json:"armor"`
	Defense     uint32  `json:"defense"`
	ResHoly     uint32  `json:"res_holy"`
	ResFire     uint32  `json:"res_fire"`
	ResNature   uint32  `json:"res_nature"`
	ResFrost    uint32  `json:"res_frost"`
	ResShadow   uint32  `json:"res_shadow"`
	ResArcane   uint32  `json:"res_arcane"`
	BlockPct    float32 `json:"block_pct"`
	DodgePct    float32 `json:"dodge_pct"`
	ParryPct    float32 `json:"parry_pct"`
	CritPct     float32 `json:"crit_pct"`
	AttackPower uint32  `json:"attack_power"`
	SpellPower  uint32  `json:"spell_power"`
	SpellPen    uint32  `json:"spell_pen"`
	HastePct    float32 `json:"haste_pct"`
	HitBonusPct float32 `json:"hit_bonus_pct"`
	Expertise   uint32  `json:"expertise"`
	ArmorPenPct float32 `json:"armor_pen_pct"`
}

// parseSpellList reads the space separated spells_disabled column.
func parseSpellList(s string) []uint32 {
	var out []uint32
	for _, tok := range strings.Fields(s) {
		v, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	return normalizeSpells(out)
}

func formatSpellList(spells []uint32) string {
	var b strings.Builder
	for _, s := range spells {
		b.WriteString(strconv.FormatUint(uint64(s), 10))
		b.WriteByte(' ')
	}
	return b.String()
}

// normalizeSpells returns a sorted copy without duplicates.
func normalizeSpells(in []uint32) []uint32 {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return slices.Compact(out)
}
