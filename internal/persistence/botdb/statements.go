package botdb

import (
	"strconv"
	"strings"
)

// EquipSlots is the number of persisted equipment slots of a bot.
const EquipSlots = 18

// EquipColumns lists the characters_npcbot equipment columns in slot order.
var EquipColumns = [EquipSlots]string{
	"equip_mh", "equip_oh", "equip_rh",
	"equip_head", "equip_shoulders", "equip_chest", "equip_waist", "equip_legs",
	"equip_feet", "equip_wrist", "equip_hands", "equip_back", "equip_body",
	"equip_finger1", "equip_finger2", "equip_trinket1", "equip_trinket2", "equip_neck",
}

func equipColumnsDDL() string {
	parts := make([]string, 0, EquipSlots)
	for _, c := range EquipColumns {
		parts = append(parts, c+" INTEGER NOT NULL DEFAULT 0")
	}
	return strings.Join(parts, ",\n\t\t\t")
}

type StmtID int

const (
	StmtInsertBot StmtID = iota + 1
	StmtUpdateOwner
	StmtUpdateRoles
	StmtUpdateSpec
	StmtUpdateFaction
	StmtUpdateDisabledSpells
	StmtUpdateEquips
	StmtDeleteBot
	StmtDeleteTransmogs
	StmtReplaceTransmog
	StmtReplaceItemInstance
	StmtDeleteInventoryItem
	StmtReplaceStats
	StmtDeleteGroupMember
	StmtReplaceWorldState
	StmtInsertWorldState
	StmtUpdateOwnerAll
	StmtDeleteTransmogsByOwner
	StmtPruneMembersWithoutGroup
	StmtPruneMembersWithoutBot
)

var stmtNames = map[StmtID]string{
	StmtInsertBot:            "insert_bot",
	StmtUpdateOwner:          "update_owner",
	StmtUpdateRoles:          "update_roles",
	StmtUpdateSpec:           "update_spec",
	StmtUpdateFaction:        "update_faction",
	StmtUpdateDisabledSpells: "update_disabled_spells",
	StmtUpdateEquips:         "update_equips",
	StmtDeleteBot:            "delete_bot",
	StmtDeleteTransmogs:      "delete_transmogs",
	StmtReplaceTransmog:      "replace_transmog",
	StmtReplaceItemInstance:  "replace_item_instance",
	StmtDeleteInventoryItem:  "delete_inventory_item",
	StmtReplaceStats:         "replace_stats",
	StmtDeleteGroupMember:    "delete_group_member",
	StmtReplaceWorldState:    "replace_worldstate",
	StmtInsertWorldState:     "insert_worldstate",

	StmtUpdateOwnerAll:           "update_owner_all",
	StmtDeleteTransmogsByOwner:   "delete_transmogs_by_owner",
	StmtPruneMembersWithoutGroup: "prune_members_without_group",
	StmtPruneMembersWithoutBot:   "prune_members_without_bot",
}

func (id StmtID) String() string {
	if n, ok := stmtNames[id]; ok {
		return n
	}
	return "stmt(" + strconv.Itoa(int(id)) + ")"
}

func updateEquipsSQL() string {
	sets := make([]string, 0, EquipSlots)
	for _, c := range EquipColumns {
		sets = append(sets, c+"=?")
	}
	return "UPDATE characters_npcbot SET " + strings.Join(sets, ",") + " WHERE entry=?"
}

// Parameter order for each statement is documented next to it; UPDATE statements
// take the new value first and the entry last.
var statements = map[StmtID]string{
	// entry, owner, roles, spec, faction
	StmtInsertBot:            `INSERT INTO characters_npcbot(entry,owner,roles,spec,faction) VALUES(?,?,?,?,?)`,
	StmtUpdateOwner:          `UPDATE characters_npcbot SET owner=? WHERE entry=?`,
	StmtUpdateRoles:          `UPDATE characters_npcbot SET roles=? WHERE entry=?`,
	StmtUpdateSpec:           `UPDATE characters_npcbot SET spec=? WHERE entry=?`,
	StmtUpdateFaction:        `UPDATE characters_npcbot SET faction=? WHERE entry=?`,
	StmtUpdateDisabledSpells: `UPDATE characters_npcbot SET spells_disabled=? WHERE entry=?`,
	// 18 item guids, entry
	StmtUpdateEquips:    updateEquipsSQL(),
	StmtDeleteBot:       `DELETE FROM characters_npcbot WHERE entry=?`,
	StmtDeleteTransmogs: `DELETE FROM characters_npcbot_transmog WHERE entry=?`,
	// entry, slot, item_id, fake_id
	StmtReplaceTransmog: `INSERT OR REPLACE INTO characters_npcbot_transmog(entry,slot,item_id,fake_id) VALUES(?,?,?,?)`,
	// guid, item_entry, owner_guid, count, durability, enchantments, random_property_id
	StmtReplaceItemInstance: `INSERT OR REPLACE INTO item_instance(guid,item_entry,owner_guid,count,durability,enchantments,random_property_id) VALUES(?,?,?,?,?,?,?)`,
	StmtDeleteInventoryItem: `DELETE FROM character_inventory WHERE item=?`,
	StmtReplaceStats: `INSERT OR REPLACE INTO characters_npcbot_stats(
		entry,maxhealth,maxpower,strength,agility,stamina,intellect,spirit,armor,defense,
		res_holy,res_fire,res_nature,res_frost,res_shadow,res_arcane,
		block_pct,dodge_pct,parry_pct,crit_pct,attack_power,spell_power,spell_pen,
		haste_pct,hit_bonus_pct,expertise,armor_pen_pct)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	// group guid, entry
	StmtDeleteGroupMember: `DELETE FROM characters_npcbot_group_member WHERE guid=? AND entry=?`,
	// entry, value, comment
	StmtReplaceWorldState: `INSERT OR REPLACE INTO worldstates(entry,value,comment) VALUES(?,?,?)`,
	StmtInsertWorldState:  `INSERT INTO worldstates(entry,value,comment) VALUES(?,?,?)`,
	// new owner, old owner
	StmtUpdateOwnerAll: `UPDATE characters_npcbot SET owner=? WHERE owner=?`,
	// owner
	StmtDeleteTransmogsByOwner:   `DELETE FROM characters_npcbot_transmog WHERE entry IN (SELECT entry FROM characters_npcbot WHERE owner=?)`,
	StmtPruneMembersWithoutGroup: `DELETE FROM characters_npcbot_group_member WHERE guid NOT IN (SELECT guid FROM groups)`,
	StmtPruneMembersWithoutBot:   `DELETE FROM characters_npcbot_group_member WHERE entry NOT IN (SELECT entry FROM characters_npcbot)`,
}

// Tx collects statements that are applied in one database transaction.
type Tx struct {
	ops []op
}

type op struct {
	stmt StmtID
	args []any
}

func NewTx() *Tx { return &Tx{} }

func (t *Tx) Append(stmt StmtID, args ...any) {
	t.ops = append(t.ops, op{stmt: stmt, args: args})
}

func (t *Tx) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ops)
}

// Each visits the collected statements in order.
func (t *Tx) Each(fn func(stmt StmtID, args []any)) {
	if t == nil {
		return
	}
	for _, o := range t.ops {
		fn(o.stmt, o.args)
	}
}
