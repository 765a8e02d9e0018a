package botdb

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type BotRow struct {
	Entry   uint32 `db:"entry" json:"entry"`
	Owner   uint32 `db:"owner" json:"owner"`
	Roles   uint32 `db:"roles" json:"roles"`
	Spec    uint8  `db:"spec" json:"spec"`
	Faction uint32 `db:"faction" json:"faction"`

	EquipMH        uint32 `db:"equip_mh"`
	EquipOH        uint32 `db:"equip_oh"`
	EquipRH        uint32 `db:"equip_rh"`
	EquipHead      uint32 `db:"equip_head"`
	EquipShoulders uint32 `db:"equip_shoulders"`
	EquipChest     uint32 `db:"equip_chest"`
	EquipWaist     uint32 `db:"equip_waist"`
	EquipLegs      uint32 `db:"equip_legs"`
	EquipFeet      uint32 `db:"equip_feet"`
	EquipWrist     uint32 `db:"equip_wrist"`
	EquipHands     uint32 `db:"equip_hands"`
	EquipBack      uint32 `db:"equip_back"`
	EquipBody      uint32 `db:"equip_body"`
	EquipFinger1   uint32 `db:"equip_finger1"`
	EquipFinger2   uint32 `db:"equip_finger2"`
	EquipTrinket1  uint32 `db:"equip_trinket1"`
	EquipTrinket2  uint32 `db:"equip_trinket2"`
	EquipNeck      uint32 `db:"equip_neck"`

	SpellsDisabled sql.NullString `db:"spells_disabled"`
}

// Equips returns the item guids in slot order.
func (r BotRow) Equips() [EquipSlots]uint32 {
	return [EquipSlots]uint32{
		r.EquipMH, r.EquipOH, r.EquipRH,
		r.EquipHead, r.EquipShoulders, r.EquipChest, r.EquipWaist, r.EquipLegs,
		r.EquipFeet, r.EquipWrist, r.EquipHands, r.EquipBack, r.EquipBody,
		r.EquipFinger1, r.EquipFinger2, r.EquipTrinket1, r.EquipTrinket2, r.EquipNeck,
	}
}

type AppearanceRow struct {
	Entry     uint32 `db:"entry" json:"entry"`
	Gender    uint8  `db:"gender" json:"gender"`
	Skin      uint8  `db:"skin" json:"skin"`
	Face      uint8  `db:"face" json:"face"`
	Hair      uint8  `db:"hair" json:"hair"`
	HairColor uint8  `db:"haircolor" json:"haircolor"`
	Features  uint8  `db:"features" json:"features"`
}

type ExtrasRow struct {
	Entry uint32 `db:"entry" json:"entry"`
	Class uint8  `db:"class" json:"class"`
	Race  uint8  `db:"race" json:"race"`
}

type TransmogRow struct {
	Entry  uint32 `db:"entry"`
	Slot   uint8  `db:"slot"`
	ItemID uint32 `db:"item_id"`
	FakeID uint32 `db:"fake_id"`
}

type GroupRow struct {
	GUID       uint32 `db:"guid" json:"guid"`
	LeaderGUID uint32 `db:"leader_guid" json:"leader_guid"`
}

type GroupMemberRow struct {
	GroupGUID   uint32 `db:"guid" json:"guid"`
	Entry       uint32 `db:"entry" json:"entry"`
	MemberFlags uint8  `db:"member_flags" json:"member_flags"`
	SubGroup    uint8  `db:"sub_group" json:"sub_group"`
	Roles       uint8  `db:"roles" json:"roles"`
}

type WanderNodeRow struct {
	ID     uint32  `db:"id" json:"id"`
	MapID  uint32  `db:"mapid" json:"mapid"`
	X      float64 `db:"x" json:"x"`
	Y      float64 `db:"y" json:"y"`
	Z      float64 `db:"z" json:"z"`
	O      float64 `db:"o" json:"o"`
	ZoneID uint32  `db:"zoneid" json:"zoneid"`
	AreaID uint32  `db:"areaid" json:"areaid"`
	Name   string  `db:"name" json:"name"`
}

type WorldStateRow struct {
	Entry   uint32         `db:"entry"`
	Value   int64          `db:"value"`
	Comment sql.NullString `db:"comment"`
}

func (s *SQLiteStore) LoadBots(ctx context.Context) ([]BotRow, error) {
	var out []BotRow
	q := `SELECT entry,owner,roles,spec,faction,` + strings.Join(EquipColumns[:], ",") + `,spells_disabled
		FROM characters_npcbot ORDER BY entry`
	if err := s.dbx.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) LoadAppearance(ctx context.Context) ([]AppearanceRow, error) {
	var out []AppearanceRow
	err := s.dbx.SelectContext(ctx, &out,
		`SELECT entry,gender,skin,face,hair,haircolor,features FROM creature_template_npcbot_appearance ORDER BY entry`)
	return out, err
}

func (s *SQLiteStore) LoadExtras(ctx context.Context) ([]ExtrasRow, error) {
	var out []ExtrasRow
	err := s.dbx.SelectContext(ctx, &out, `SELECT entry,class,race FROM creature_template_npcbot_extras ORDER BY entry`)
	return out, err
}

func (s *SQLiteStore) LoadTransmogs(ctx context.Context) ([]TransmogRow, error) {
	var out []TransmogRow
	err := s.dbx.SelectContext(ctx, &out,
		`SELECT entry,slot,item_id,fake_id FROM characters_npcbot_transmog ORDER BY entry,slot`)
	return out, err
}

func (s *SQLiteStore) LoadGroups(ctx context.Context) ([]GroupRow, error) {
	var out []GroupRow
	err := s.dbx.SelectContext(ctx, &out, `SELECT guid,leader_guid FROM groups ORDER BY guid`)
	return out, err
}

func (s *SQLiteStore) LoadGroupMembers(ctx context.Context) ([]GroupMemberRow, error) {
	var out []GroupMemberRow
	err := s.dbx.SelectContext(ctx, &out,
		`SELECT guid,entry,member_flags,sub_group,roles FROM characters_npcbot_group_member ORDER BY guid,entry`)
	return out, err
}

func (s *SQLiteStore) LoadWanderNodes(ctx context.Context) ([]WanderNodeRow, error) {
	var out []WanderNodeRow
	err := s.dbx.SelectContext(ctx, &out,
		`SELECT id,mapid,x,y,z,o,zoneid,areaid,name FROM creature_wander_nodes ORDER BY id`)
	return out, err
}

func (s *SQLiteStore) LoadWorldStates(ctx context.Context) ([]WorldStateRow, error) {
	var out []WorldStateRow
	err := s.dbx.SelectContext(ctx, &out, `SELECT entry,value,comment FROM worldstates ORDER BY entry`)
	return out, err
}

// WorldState reads one counter. The bool is false when the row does not exist.
func (s *SQLiteStore) WorldState(ctx context.Context, entry uint32) (int64, bool, error) {
	var v int64
	err := s.dbx.GetContext(ctx, &v, `SELECT value FROM worldstates WHERE entry=?`, entry)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) SeedWanderNodes(ctx context.Context, rows []WanderNodeRow) error {
	return s.seed(ctx, `INSERT OR REPLACE INTO creature_wander_nodes(id,mapid,x,y,z,o,zoneid,areaid,name)
		VALUES(:id,:mapid,:x,:y,:z,:o,:zoneid,:areaid,:name)`, len(rows), func(i int) any { return rows[i] })
}

func (s *SQLiteStore) SeedExtras(ctx context.Context, rows []ExtrasRow) error {
	return s.seed(ctx, `INSERT OR REPLACE INTO creature_template_npcbot_extras(entry,class,race)
		VALUES(:entry,:class,:race)`, len(rows), func(i int) any { return rows[i] })
}

func (s *SQLiteStore) SeedAppearance(ctx context.Context, rows []AppearanceRow) error {
	return s.seed(ctx, `INSERT OR REPLACE INTO creature_template_npcbot_appearance(entry,gender,skin,face,hair,haircolor,features)
		VALUES(:entry,:gender,:skin,:face,:hair,:haircolor,:features)`, len(rows), func(i int) any { return rows[i] })
}

// SeedBots inserts core bot records with default equipment.
func (s *SQLiteStore) SeedBots(ctx context.Context, rows []BotRow) error {
	return s.seed(ctx, `INSERT OR REPLACE INTO characters_npcbot(entry,owner,roles,spec,faction)
		VALUES(:entry,:owner,:roles,:spec,:faction)`, len(rows), func(i int) any { return rows[i] })
}

func (s *SQLiteStore) SeedGroups(ctx context.Context, groups []GroupRow, members []GroupMemberRow) error {
	if err := s.seed(ctx, `INSERT OR REPLACE INTO groups(guid,leader_guid) VALUES(:guid,:leader_guid)`,
		len(groups), func(i int) any { return groups[i] }); err != nil {
		return err
	}
	return s.seed(ctx, `INSERT OR REPLACE INTO characters_npcbot_group_member(guid,entry,member_flags,sub_group,roles)
		VALUES(:guid,:entry,:member_flags,:sub_group,:roles)`, len(members), func(i int) any { return members[i] })
}

// seed writes rows synchronously in one transaction. Pending async writes are
// flushed first so seeded rows are not overwritten by older queued statements.
func (s *SQLiteStore) seed(ctx context.Context, query string, n int, row func(int) any) error {
	if n == 0 {
		return nil
	}
	if err := s.Sync(ctx); err != nil {
		return err
	}
	tx, err := s.dbx.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
