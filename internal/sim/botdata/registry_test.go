package botdata

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"npcbots.ai/internal/persistence/botdb"
	"npcbots.ai/internal/sim/catalogs"
)

type execCall struct {
	stmt botdb.StmtID
	args []any
}

type fakeWriter struct {
	execs []execCall
	txs   [][]execCall
}

func (w *fakeWriter) Execute(stmt botdb.StmtID, args ...any) {
	w.execs = append(w.execs, execCall{stmt: stmt, args: args})
}

func (w *fakeWriter) CommitTransaction(tx *botdb.Tx) {
	var calls []execCall
	tx.Each(func(stmt botdb.StmtID, args []any) {
		calls = append(calls, execCall{stmt: stmt, args: args})
	})
	w.txs = append(w.txs, calls)
}

func (w *fakeWriter) stmts() []botdb.StmtID {
	out := make([]botdb.StmtID, 0, len(w.execs))
	for _, e := range w.execs {
		out = append(out, e.stmt)
	}
	return out
}

type fakeEquipment map[uint32]catalogs.EquipmentInfo

func (f fakeEquipment) EquipmentInfo(entry uint32, id int8) (catalogs.EquipmentInfo, bool) {
	e, ok := f[entry]
	if !ok || id != 1 {
		return catalogs.EquipmentInfo{}, false
	}
	return e, true
}

type recordedEvent struct {
	kind  string
	entry uint32
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestRegistry(t *testing.T) (*Registry, *fakeWriter, *[]recordedEvent) {
	t.Helper()
	w := &fakeWriter{}
	var events []recordedEvent
	r := NewRegistry(Config{
		DB: w,
		Equipment: fakeEquipment{
			70001: {Entry: 70001, ID: 1, Items: [3]uint32{2000, 2001, 0}},
		},
		Logger: quietLogger(),
		Notifier: NotifierFunc(func(kind string, entry uint32, _ map[string]any) {
			events = append(events, recordedEvent{kind: kind, entry: entry})
		}),
	})
	return r, w, &events
}

func TestAddRecordAndSelect(t *testing.T) {
	r, w, events := newTestRegistry(t)

	if !r.AddRecord(70001, 3, 2, 35) {
		t.Fatalf("AddRecord returned false")
	}
	rec, ok := r.SelectRecord(70001)
	if !ok {
		t.Fatalf("record missing")
	}
	if rec.Owner != 0 || rec.Roles != 3 || rec.Spec != 2 || rec.Faction != 35 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if len(w.execs) != 1 || w.execs[0].stmt != botdb.StmtInsertBot {
		t.Fatalf("expected one insert, got %v", w.stmts())
	}
	if got := w.execs[0].args; len(got) != 5 || got[0] != uint32(70001) || got[1] != uint32(0) {
		t.Fatalf("insert args: %v", got)
	}

	// Duplicates are ignored.
	if r.AddRecord(70001, 9, 9, 9) {
		t.Fatalf("duplicate AddRecord returned true")
	}
	rec, _ = r.SelectRecord(70001)
	if rec.Roles != 3 {
		t.Fatalf("duplicate overwrote record: %+v", rec)
	}
	if len(w.execs) != 1 {
		t.Fatalf("duplicate wrote to db: %v", w.stmts())
	}
	if len(*events) != 1 || (*events)[0].kind != EventAdded {
		t.Fatalf("events: %+v", *events)
	}

	if _, ok := r.SelectRecord(1); ok {
		t.Fatalf("unexpected record for unknown entry")
	}
	if _, ok := r.SelectTransmogs(70001); ok {
		t.Fatalf("unexpected transmogs")
	}
}

func TestSelectRecordReturnsCopy(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.AddRecord(70001, 1, 1, 1)
	r.Update(70001, DisabledSpellsUpdate{Spells: []uint32{30, 10, 30}})

	rec, _ := r.SelectRecord(70001)
	if len(rec.DisabledSpells) != 2 || rec.DisabledSpells[0] != 10 || rec.DisabledSpells[1] != 30 {
		t.Fatalf("disabled spells: %v", rec.DisabledSpells)
	}
	rec.DisabledSpells[0] = 99
	again, _ := r.SelectRecord(70001)
	if again.DisabledSpells[0] != 10 {
		t.Fatalf("caller mutated registry state")
	}
}

func TestUpdateOwnerClearsTransmogs(t *testing.T) {
	r, w, _ := newTestRegistry(t)
	r.AddRecord(70001, 1, 1, 14)
	r.SetTransmog(70001, 3, 100, 200, false)
	w.execs = nil

	if !r.Update(70001, OwnerUpdate{Owner: 42}) {
		t.Fatalf("owner update returned false")
	}
	rec, _ := r.SelectRecord(70001)
	if rec.Owner != 42 {
		t.Fatalf("owner: got %d", rec.Owner)
	}
	if _, ok := r.SelectTransmogs(70001); ok {
		t.Fatalf("transmogs survived owner change")
	}
	got := w.stmts()
	if len(got) != 2 || got[0] != botdb.StmtUpdateOwner || got[1] != botdb.StmtDeleteTransmogs {
		t.Fatalf("statements: %v", got)
	}

	// Same owner is a no-op.
	w.execs = nil
	r.SetTransmog(70001, 3, 100, 200, false)
	if r.Update(70001, OwnerUpdate{Owner: 42}) {
		t.Fatalf("same-owner update returned true")
	}
	if len(w.execs) != 0 {
		t.Fatalf("same-owner update wrote: %v", w.stmts())
	}
	if _, ok := r.SelectTransmogs(70001); !ok {
		t.Fatalf("same-owner update cleared transmogs")
	}
}

func TestUpdateScalarFields(t *testing.T) {
	r, w, _ := newTestRegistry(t)
	r.AddRecord(70001, 1, 1, 14)
	w.execs = nil

	r.Update(70001, RolesUpdate{Roles: 7})
	r.Update(70001, SpecUpdate{Spec: 3})
	r.Update(70001, FactionUpdate{Faction: 35})
	r.Update(70001, DisabledSpellsUpdate{Spells: []uint32{5, 4}})

	rec, _ := r.SelectRecord(70001)
	if rec.Roles != 7 || rec.Spec != 3 || rec.Faction != 35 {
		t.Fatalf("record: %+v", rec)
	}
	want := []botdb.StmtID{botdb.StmtUpdateRoles, botdb.StmtUpdateSpec, botdb.StmtUpdateFaction, botdb.StmtUpdateDisabledSpells}
	got := w.stmts()
	if len(got) != len(want) {
		t.Fatalf("statements: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("statement %d: got %v want %v", i, got[i], want[i])
		}
	}
	if w.execs[3].args[0] != "4 5 " {
		t.Fatalf("spell list: %q", w.execs[3].args[0])
	}
	// Value first, entry last.
	if w.execs[0].args[0] != uint32(7) || w.execs[0].args[1] != uint32(70001) {
		t.Fatalf("roles args: %v", w.execs[0].args)
	}
}

func TestUpdateMissingRecord(t *testing.T) {
	r, w, events := newTestRegistry(t)
	if r.Update(12345, RolesUpdate{Roles: 1}) {
		t.Fatalf("update of missing record returned true")
	}
	if len(w.execs) != 0 || len(w.txs) != 0 || len(*events) != 0 {
		t.Fatalf("missing record produced side effects")
	}
}

func TestEquipsUpdateDefaultItemsPersistZero(t *testing.T) {
	r, w, _ := newTestRegistry(t)
	r.AddRecord(70001, 1, 1, 14)
	r.SetTransmog(70001, SlotMainHand, 2000, 3000, false)

	var items [EquipSlots]*Item
	items[SlotMainHand] = &Item{GUID: 501, Entry: 2000} // template default
	items[SlotChest] = &Item{GUID: 502, Entry: 4444, Owner: 9, Durability: 80}

	if !r.Update(70001, EquipsUpdate{Items: items}) {
		t.Fatalf("equips update returned false")
	}
	rec, _ := r.SelectRecord(70001)
	if rec.Equips[SlotMainHand] != 0 {
		t.Fatalf("default item stored as %d", rec.Equips[SlotMainHand])
	}
	if rec.Equips[SlotChest] != 502 {
		t.Fatalf("chest: got %d", rec.Equips[SlotChest])
	}

	if len(w.txs) != 1 {
		t.Fatalf("expected one transaction, got %d", len(w.txs))
	}
	tx := w.txs[0]
	if len(tx) != 3 {
		t.Fatalf("tx ops: %+v", tx)
	}
	if tx[0].stmt != botdb.StmtReplaceItemInstance || tx[0].args[0] != uint32(502) || tx[0].args[3] != uint32(1) {
		t.Fatalf("item instance op: %+v", tx[0])
	}
	if tx[1].stmt != botdb.StmtDeleteInventoryItem || tx[1].args[0] != uint32(502) {
		t.Fatalf("inventory op: %+v", tx[1])
	}
	last := tx[2]
	if last.stmt != botdb.StmtUpdateEquips || len(last.args) != EquipSlots+1 {
		t.Fatalf("equips op: %+v", last)
	}
	if last.args[SlotMainHand] != uint32(0) || last.args[SlotChest] != uint32(502) || last.args[EquipSlots] != uint32(70001) {
		t.Fatalf("equips args: %v", last.args)
	}

	// The transmog of a slot reverting to its default item is kept.
	tm, ok := r.SelectTransmogs(70001)
	if !ok || tm[SlotMainHand].FakeID != 3000 {
		t.Fatalf("transmog lost: %+v ok=%v", tm, ok)
	}
}

func TestEraseRemovesRecord(t *testing.T) {
	r, w, events := newTestRegistry(t)
	r.AddRecord(70001, 1, 1, 14)
	w.execs = nil

	if !r.Update(70001, Erase{}) {
		t.Fatalf("erase returned false")
	}
	if _, ok := r.SelectRecord(70001); ok {
		t.Fatalf("record survived erase")
	}
	if got := w.stmts(); len(got) != 1 || got[0] != botdb.StmtDeleteBot {
		t.Fatalf("statements: %v", got)
	}
	last := (*events)[len(*events)-1]
	if last.kind != EventErased || last.entry != 70001 {
		t.Fatalf("last event: %+v", last)
	}
	// The entry can be created again.
	if !r.AddRecord(70001, 1, 1, 14) {
		t.Fatalf("re-add after erase failed")
	}
}

func TestUpdateAllForOwner(t *testing.T) {
	r, w, _ := newTestRegistry(t)
	r.AddRecord(70001, 1, 1, 14)
	r.AddRecord(70002, 1, 1, 14)
	r.AddRecord(70003, 1, 1, 14)
	r.Update(70001, OwnerUpdate{Owner: 5})
	r.Update(70002, OwnerUpdate{Owner: 5})
	r.Update(70003, OwnerUpdate{Owner: 6})
	r.SetTransmog(70001, 0, 1, 2, false)
	r.SetTransmog(70003, 0, 1, 2, false)

	if n := r.UpdateAllForOwner(5, OwnerUpdate{Owner: 0}); n != 2 {
		t.Fatalf("updated %d bots", n)
	}
	for _, e := range []uint32{70001, 70002} {
		rec, _ := r.SelectRecord(e)
		if rec.Owner != 0 {
			t.Fatalf("bot %d still owned by %d", e, rec.Owner)
		}
	}
	if rec, _ := r.SelectRecord(70003); rec.Owner != 6 {
		t.Fatalf("unrelated bot changed owner")
	}
	if _, ok := r.SelectTransmogs(70001); ok {
		t.Fatalf("transmogs of transferred bot survived")
	}
	if _, ok := r.SelectTransmogs(70003); !ok {
		t.Fatalf("unrelated transmogs cleared")
	}

	tx := w.txs[len(w.txs)-1]
	if len(tx) != 2 || tx[0].stmt != botdb.StmtDeleteTransmogsByOwner || tx[1].stmt != botdb.StmtUpdateOwnerAll {
		t.Fatalf("bulk tx: %+v", tx)
	}
	if tx[1].args[0] != uint32(0) || tx[1].args[1] != uint32(5) {
		t.Fatalf("owner-all args: %v", tx[1].args)
	}

	if n := r.UpdateAllForOwner(6, RolesUpdate{Roles: 1}); n != 0 {
		t.Fatalf("unsupported bulk update applied to %d bots", n)
	}
}

func TestResetTransmog(t *testing.T) {
	r, w, _ := newTestRegistry(t)
	r.ResetTransmog(70001, true)
	if len(w.txs) != 0 {
		t.Fatalf("reset of absent transmogs wrote")
	}

	if r.SetTransmog(70001, TransmogSlots, 1, 1, true) {
		t.Fatalf("out of range slot accepted")
	}
	r.SetTransmog(70001, 2, 10, 20, true)
	r.SetTransmog(70001, 5, 11, 21, true)
	if len(w.execs) != 2 || w.execs[0].stmt != botdb.StmtReplaceTransmog {
		t.Fatalf("set statements: %v", w.stmts())
	}

	r.ResetTransmog(70001, true)
	tm, ok := r.SelectTransmogs(70001)
	if !ok || tm != (Transmog{}) {
		t.Fatalf("transmogs after reset: %+v ok=%v", tm, ok)
	}
	if len(w.txs) != 1 || len(w.txs[0]) != 2 {
		t.Fatalf("reset tx: %+v", w.txs)
	}
	if w.txs[0][0].args[1] != uint8(2) || w.txs[0][1].args[1] != uint8(5) {
		t.Fatalf("reset slots: %+v", w.txs[0])
	}

	// Nothing left to zero.
	r.ResetTransmog(70001, true)
	if len(w.txs) != 1 {
		t.Fatalf("empty reset committed a transaction")
	}
}

func TestOwnedCount(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	for i, class := range []uint8{1, 2, 2, 8} {
		entry := uint32(70001 + i)
		r.AddGenerated(GeneratedBot{Entry: entry, Extras: Extras{Class: class, Race: 1}, Template: catalogs.CreatureTemplate{Entry: entry}})
		r.Update(entry, OwnerUpdate{Owner: 7})
	}
	if got := r.OwnedCount(7, 0); got != 4 {
		t.Fatalf("unmasked count: %d", got)
	}
	if got := r.OwnedCount(7, 1<<1); got != 2 {
		t.Fatalf("paladin count: %d", got)
	}
	if got := r.OwnedCount(7, 1<<0|1<<7); got != 2 {
		t.Fatalf("warrior+mage count: %d", got)
	}
	if got := r.OwnedCount(8, 0); got != 0 {
		t.Fatalf("other owner count: %d", got)
	}
}

func TestGeneratedBotEquipment(t *testing.T) {
	r, w, events := newTestRegistry(t)
	eq := catalogs.EquipmentInfo{Entry: 10000001, ID: 1, Items: [3]uint32{7, 8, 9}}
	g := GeneratedBot{
		Entry:      10000001,
		Template:   catalogs.CreatureTemplate{Entry: 10000001, Name: "Clone"},
		Record:     Record{Roles: 1, Faction: 14},
		Extras:     Extras{Class: 4, Race: 2},
		Appearance: &Appearance{Gender: 1},
		Equipment:  &eq,
	}
	if !r.AddGenerated(g) {
		t.Fatalf("AddGenerated failed")
	}
	if r.AddGenerated(g) {
		t.Fatalf("duplicate AddGenerated succeeded")
	}
	if len(w.execs) != 0 || len(w.txs) != 0 {
		t.Fatalf("generated bot was persisted")
	}
	got, ok := r.EquipmentInfo(10000001)
	if !ok || got.Items != eq.Items {
		t.Fatalf("generated equipment: %+v ok=%v", got, ok)
	}
	if got, ok := r.EquipmentInfo(70001); !ok || got.Items[0] != 2000 {
		t.Fatalf("catalog equipment: %+v ok=%v", got, ok)
	}
	if _, ok := r.EquipmentInfo(5); ok {
		t.Fatalf("unexpected equipment")
	}
	tpl, ok := r.ExtraCreatureTemplate(10000001)
	if !ok || tpl.Name != "Clone" {
		t.Fatalf("template: %+v ok=%v", tpl, ok)
	}
	v, ok := r.Bot(10000001)
	if !ok || !v.Generated || v.Extras == nil || v.Extras.Class != 4 || v.Appearance == nil {
		t.Fatalf("view: %+v", v)
	}
	if (*events)[0].kind != EventGenerated {
		t.Fatalf("events: %+v", *events)
	}
}

type fakeSource struct {
	bots       []botdb.BotRow
	appearance []botdb.AppearanceRow
	extras     []botdb.ExtrasRow
	transmogs  []botdb.TransmogRow
	err        error
}

func (s fakeSource) LoadAppearance(context.Context) ([]botdb.AppearanceRow, error) {
	return s.appearance, nil
}
func (s fakeSource) LoadExtras(context.Context) ([]botdb.ExtrasRow, error) { return s.extras, nil }
func (s fakeSource) LoadTransmogs(context.Context) ([]botdb.TransmogRow, error) {
	return s.transmogs, nil
}
func (s fakeSource) LoadBots(context.Context) ([]botdb.BotRow, error) { return s.bots, s.err }

type fakeSpawner struct {
	missing map[uint32]error
	spawned []uint32
}

func (s *fakeSpawner) SpawnBot(_ context.Context, entry uint32) error {
	if err, ok := s.missing[entry]; ok {
		return err
	}
	s.spawned = append(s.spawned, entry)
	return nil
}

func TestLoadAll(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	src := fakeSource{
		bots: []botdb.BotRow{
			{Entry: 70001, Owner: 3, Roles: 1, Faction: 14, EquipChest: 55},
			{Entry: 70002, Roles: 2, Faction: 14},
			{Entry: 70003, Roles: 2, Faction: 14},
		},
		appearance: []botdb.AppearanceRow{{Entry: 70001, Gender: 1, Hair: 4}},
		extras:     []botdb.ExtrasRow{{Entry: 70001, Class: 1, Race: 1}, {Entry: 70002, Class: 3, Race: 4}},
		transmogs: []botdb.TransmogRow{
			{Entry: 70001, Slot: 1, ItemID: 10, FakeID: 20},
			{Entry: 70001, Slot: 40, ItemID: 10, FakeID: 20},
		},
	}
	src.bots[0].SpellsDisabled.String, src.bots[0].SpellsDisabled.Valid = "133 116 ", true

	sp := &fakeSpawner{missing: map[uint32]error{
		70002: ErrNoSpawn,
		70003: errors.Join(ErrNoTemplate),
	}}
	res, err := r.LoadAll(context.Background(), src, sp)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if res.Bots != 3 || res.Transmogs != 1 || res.Spawned != 1 || res.Skipped != 2 {
		t.Fatalf("result: %+v", res)
	}
	rec, ok := r.SelectRecord(70001)
	if !ok || rec.Owner != 3 || rec.Equips[SlotChest] != 55 {
		t.Fatalf("record: %+v", rec)
	}
	if len(rec.DisabledSpells) != 2 || rec.DisabledSpells[0] != 116 {
		t.Fatalf("disabled spells: %v", rec.DisabledSpells)
	}
	if a, ok := r.SelectAppearance(70001); !ok || a.Hair != 4 {
		t.Fatalf("appearance: %+v", a)
	}
	if tm, ok := r.SelectTransmogs(70001); !ok || tm[1].FakeID != 20 {
		t.Fatalf("transmogs: %+v", tm)
	}
	if len(sp.spawned) != 1 || sp.spawned[0] != 70001 {
		t.Fatalf("spawned: %v", sp.spawned)
	}
	if !r.Loaded() {
		t.Fatalf("Loaded false after LoadAll")
	}
	if _, err := r.LoadAll(context.Background(), src, nil); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second LoadAll: %v", err)
	}
}

func TestLoadAllPropagatesErrors(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	boom := errors.New("boom")
	if _, err := r.LoadAll(context.Background(), fakeSource{err: boom}, nil); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

type fakeGroupSource struct {
	rows   []botdb.GroupMemberRow
	direct []botdb.StmtID
}

func (s *fakeGroupSource) LoadGroupMembers(context.Context) ([]botdb.GroupMemberRow, error) {
	return s.rows, nil
}

func (s *fakeGroupSource) DirectExecute(_ context.Context, stmt botdb.StmtID, _ ...any) error {
	s.direct = append(s.direct, stmt)
	return nil
}

type fakeGroups map[uint32][]GroupMember

func (g fakeGroups) AddBotMember(guid uint32, m GroupMember) bool {
	if _, ok := g[guid]; !ok {
		return false
	}
	g[guid] = append(g[guid], m)
	return true
}

func TestLoadGroupMembers(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	r.AddGenerated(GeneratedBot{Entry: 70001, Extras: Extras{Class: 1}, Template: catalogs.CreatureTemplate{Entry: 70001}})
	r.AddGenerated(GeneratedBot{Entry: 70002, Extras: Extras{Class: 2}, Template: catalogs.CreatureTemplate{Entry: 70002}})

	src := &fakeGroupSource{rows: []botdb.GroupMemberRow{
		{GroupGUID: 1, Entry: 70001, SubGroup: 0},
		{GroupGUID: 1, Entry: 79999},            // no extras
		{GroupGUID: 2, Entry: 70002, Roles: 1}, // no such group
	}}
	groups := fakeGroups{1: nil}
	n, err := r.LoadGroupMembers(context.Background(), src, groups)
	if err != nil {
		t.Fatalf("LoadGroupMembers: %v", err)
	}
	if n != 1 || len(groups[1]) != 1 || groups[1][0].Entry != 70001 {
		t.Fatalf("loaded %d, groups %+v", n, groups)
	}
	if len(src.direct) != 2 || src.direct[0] != botdb.StmtPruneMembersWithoutGroup || src.direct[1] != botdb.StmtPruneMembersWithoutBot {
		t.Fatalf("prune statements: %v", src.direct)
	}
}
