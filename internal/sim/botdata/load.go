package botdata

import (
	"context"
	"errors"
	"fmt"

	"npcbots.ai/internal/persistence/botdb"
)

var (
	ErrAlreadyLoaded = errors.New("bot data already loaded")
	// ErrNoTemplate and ErrNoSpawn are returned (wrapped) by a Spawner for bots
	// that cannot be placed. Such bots are skipped.
	ErrNoTemplate = errors.New("creature template not found")
	ErrNoSpawn    = errors.New("spawn point not found")
)

// Source is the read side of the persistence backend.
type Source interface {
	LoadAppearance(ctx context.Context) ([]botdb.AppearanceRow, error)
	LoadExtras(ctx context.Context) ([]botdb.ExtrasRow, error)
	LoadTransmogs(ctx context.Context) ([]botdb.TransmogRow, error)
	LoadBots(ctx context.Context) ([]botdb.BotRow, error)
}

// Spawner places a persisted bot into the world.
type Spawner interface {
	SpawnBot(ctx context.Context, entry uint32) error
}

type LoadResult struct {
	Bots       int
	Appearance int
	Extras     int
	Transmogs  int
	Spawned    int
	Skipped    int
}

// LoadAll reads every table into memory. With a non-nil spawner each persisted bot
// is then placed into the world. It runs once per Registry.
func (r *Registry) LoadAll(ctx context.Context, src Source, spawner Spawner) (LoadResult, error) {
	var res LoadResult
	if !r.loaded.CompareAndSwap(false, true) {
		return res, ErrAlreadyLoaded
	}

	appearance, err := src.LoadAppearance(ctx)
	if err != nil {
		return res, fmt.Errorf("load appearance: %w", err)
	}
	extras, err := src.LoadExtras(ctx)
	if err != nil {
		return res, fmt.Errorf("load extras: %w", err)
	}
	transmogs, err := src.LoadTransmogs(ctx)
	if err != nil {
		return res, fmt.Errorf("load transmogs: %w", err)
	}
	bots, err := src.LoadBots(ctx)
	if err != nil {
		return res, fmt.Errorf("load bots: %w", err)
	}

	r.mu.Lock()
	for _, a := range appearance {
		r.appearance[a.Entry] = Appearance{
			Gender: a.Gender, Skin: a.Skin, Face: a.Face,
			Hair: a.Hair, HairColor: a.HairColor, Features: a.Features,
		}
	}
	for _, e := range extras {
		r.extras[e.Entry] = Extras{Class: e.Class, Race: e.Race}
	}
	for _, t := range transmogs {
		if int(t.Slot) >= TransmogSlots {
			r.logger.Printf("botdata: skipping transmog of bot %d: slot %d out of range", t.Entry, t.Slot)
			continue
		}
		tm, ok := r.transmogs[t.Entry]
		if !ok {
			tm = &Transmog{}
			r.transmogs[t.Entry] = tm
		}
		tm[t.Slot] = TransmogPair{ItemID: t.ItemID, FakeID: t.FakeID}
		res.Transmogs++
	}
	for _, b := range bots {
		r.records[b.Entry] = &Record{
			Owner:          b.Owner,
			Roles:          b.Roles,
			Spec:           b.Spec,
			Faction:        b.Faction,
			Equips:         b.Equips(),
			DisabledSpells: parseSpellList(b.SpellsDisabled.String),
		}
	}
	r.mu.Unlock()

	res.Appearance = len(appearance)
	res.Extras = len(extras)
	res.Bots = len(bots)
	r.logger.Printf(">> Loaded %d bot appearances, %d extras, %d transmogs", res.Appearance, res.Extras, res.Transmogs)
	r.logger.Printf(">> Loaded %d bot records", res.Bots)

	if spawner == nil {
		return res, nil
	}
	for _, b := range bots {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := spawner.SpawnBot(ctx, b.Entry); err != nil {
			r.logger.Printf("botdata: cannot spawn bot %d: %v", b.Entry, err)
			res.Skipped++
			continue
		}
		res.Spawned++
	}
	r.logger.Printf(">> Spawned %d bots (%d skipped)", res.Spawned, res.Skipped)
	return res, nil
}

func (r *Registry) Loaded() bool { return r.loaded.Load() }

type GroupSource interface {
	LoadGroupMembers(ctx context.Context) ([]botdb.GroupMemberRow, error)
	DirectExecute(ctx context.Context, stmt botdb.StmtID, args ...any) error
}

type GroupMember struct {
	Entry       uint32
	MemberFlags uint8
	SubGroup    uint8
	Roles       uint8
}

// GroupSink receives bot group memberships. AddBotMember reports false when the
// group does not exist.
type GroupSink interface {
	AddBotMember(groupGUID uint32, m GroupMember) bool
}

// LoadGroupMembers prunes stale memberships and hands the rest to sink.
func (r *Registry) LoadGroupMembers(ctx context.Context, src GroupSource, sink GroupSink) (int, error) {
	if err := src.DirectExecute(ctx, botdb.StmtPruneMembersWithoutGroup); err != nil {
		return 0, fmt.Errorf("prune group members: %w", err)
	}
	if err := src.DirectExecute(ctx, botdb.StmtPruneMembersWithoutBot); err != nil {
		return 0, fmt.Errorf("prune group members: %w", err)
	}
	rows, err := src.LoadGroupMembers(ctx)
	if err != nil {
		return 0, fmt.Errorf("load group members: %w", err)
	}

	n := 0
	for _, row := range rows {
		if _, ok := r.SelectExtras(row.Entry); !ok {
			r.logger.Printf("botdata: group %d member %d has no extras, skipped", row.GroupGUID, row.Entry)
			continue
		}
		m := GroupMember{Entry: row.Entry, MemberFlags: row.MemberFlags, SubGroup: row.SubGroup, Roles: row.Roles}
		if !sink.AddBotMember(row.GroupGUID, m) {
			r.logger.Printf("botdata: group %d of member %d not found", row.GroupGUID, row.Entry)
			continue
		}
		n++
	}
	r.logger.Printf(">> Loaded %d bot group members", n)
	return n, nil
}
