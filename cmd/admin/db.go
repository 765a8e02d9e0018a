package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type dbBot struct {
	Entry   uint32 `db:"entry" json:"entry"`
	Owner   uint32 `db:"owner" json:"owner"`
	Roles   uint32 `db:"roles" json:"roles"`
	Spec    uint8  `db:"spec" json:"spec"`
	Faction uint32 `db:"faction" json:"faction"`
	Class   *uint8 `db:"class" json:"class,omitempty"`
	Race    *uint8 `db:"race" json:"race,omitempty"`
}

type dbTransmog struct {
	Entry  uint32 `db:"entry" json:"entry"`
	Slot   uint8  `db:"slot" json:"slot"`
	ItemID uint32 `db:"item_id" json:"item_id"`
	FakeID uint32 `db:"fake_id" json:"fake_id"`
}

type dbWaypoint struct {
	ID     uint32  `db:"id" json:"id"`
	MapID  uint32  `db:"mapid" json:"map_id"`
	X      float64 `db:"x" json:"x"`
	Y      float64 `db:"y" json:"y"`
	Z      float64 `db:"z" json:"z"`
	ZoneID uint32  `db:"zoneid" json:"zone_id"`
	AreaID uint32  `db:"areaid" json:"area_id"`
	Name   string  `db:"name" json:"name"`
}

type dbWorldState struct {
	Entry   uint32  `db:"entry" json:"entry"`
	Value   int64   `db:"value" json:"value"`
	Comment *string `db:"comment" json:"comment,omitempty"`
}

type dbGroupMember struct {
	GUID     uint32 `db:"guid" json:"group"`
	Leader   uint32 `db:"leader_guid" json:"leader"`
	Entry    uint32 `db:"entry" json:"entry"`
	SubGroup uint8  `db:"sub_group" json:"sub_group"`
	Roles    uint32 `db:"roles" json:"roles"`
}

// dbCmd reads the bot tables directly; it does not need a running server.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "bot db path (default: <data>/npcbots.sqlite)")
	limit := fs.Int("limit", 50, "result limit")
	entry := fs.Uint("entry", 0, "entry filter (bots, transmogs)")
	mapID := fs.Int("map", -1, "map filter (waypoints)")
	_ = fs.Parse(args)

	q := "stats"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 50
	}

	db, err := sqlx.Open("sqlite", defaultDB(*dataDir, *dbPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "bots":
		var out []dbBot
		err = db.Select(&out, `SELECT b.entry, b.owner, b.roles, b.spec, b.faction, e.class, e.race
			FROM characters_npcbot b LEFT JOIN creature_template_npcbot_extras e ON e.entry = b.entry
			WHERE ? = 0 OR b.entry = ? ORDER BY b.entry LIMIT ?`, *entry, *entry, *limit)
		printRows(out, err)

	case "transmogs":
		var out []dbTransmog
		err = db.Select(&out, `SELECT entry, slot, item_id, fake_id FROM characters_npcbot_transmog
			WHERE ? = 0 OR entry = ? ORDER BY entry, slot LIMIT ?`, *entry, *entry, *limit)
		printRows(out, err)

	case "waypoints":
		var out []dbWaypoint
		err = db.Select(&out, `SELECT id, mapid, x, y, z, zoneid, areaid, name FROM creature_wander_nodes
			WHERE ? < 0 OR mapid = ? ORDER BY id LIMIT ?`, *mapID, *mapID, *limit)
		printRows(out, err)

	case "worldstates":
		var out []dbWorldState
		err = db.Select(&out, `SELECT entry, value, comment FROM worldstates ORDER BY entry LIMIT ?`, *limit)
		printRows(out, err)

	case "groups":
		var out []dbGroupMember
		err = db.Select(&out, `SELECT g.guid, g.leader_guid, m.entry, m.sub_group, m.roles
			FROM characters_npcbot_group_member m JOIN groups g ON g.guid = m.guid
			ORDER BY g.guid, m.entry LIMIT ?`, *limit)
		printRows(out, err)

	case "stats":
		tables := []string{
			"characters_npcbot",
			"characters_npcbot_transmog",
			"characters_npcbot_stats",
			"creature_template_npcbot_extras",
			"creature_template_npcbot_appearance",
			"creature_wander_nodes",
			"groups",
			"characters_npcbot_group_member",
			"worldstates",
		}
		counts := map[string]int{}
		for _, t := range tables {
			var n int
			if err := db.Get(&n, `SELECT COUNT(*) FROM `+t); err != nil {
				fmt.Fprintln(os.Stderr, t+":", err)
				os.Exit(1)
			}
			counts[t] = n
		}
		printJSON(counts)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		os.Exit(2)
	}
}

func printRows[T any](rows []T, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}
