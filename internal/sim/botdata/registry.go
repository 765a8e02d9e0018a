package botdata

import (
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"npcbots.ai/internal/persistence/botdb"
	"npcbots.ai/internal/sim/catalogs"
)

// Writer is the asynchronous write side of the persistence backend.
type Writer interface {
	Execute(stmt botdb.StmtID, args ...any)
	CommitTransaction(tx *botdb.Tx)
}

type EquipmentSource interface {
	EquipmentInfo(entry uint32, id int8) (catalogs.EquipmentInfo, bool)
}

// Notifier receives bot lifecycle events (observer stream, audit log).
type Notifier interface {
	Notify(kind string, entry uint32, fields map[string]any)
}

type NotifierFunc func(kind string, entry uint32, fields map[string]any)

func (f NotifierFunc) Notify(kind string, entry uint32, fields map[string]any) { f(kind, entry, fields) }

// Event kinds emitted by the registry and the live index.
const (
	EventAdded        = "bot.added"
	EventUpdated      = "bot.updated"
	EventErased       = "bot.erased"
	EventRegistered   = "bot.registered"
	EventUnregistered = "bot.unregistered"
	EventGenerated    = "bot.generated"
)

type Config struct {
	DB        Writer
	Equipment EquipmentSource
	Logger    *log.Logger
	Notifier  Notifier
}

// Registry owns every persisted bot record and its auxiliary data. In-memory state
// is authoritative; writes to the backend are fire-and-forget.
type Registry struct {
	mu sync.RWMutex

	records    map[uint32]*Record
	appearance map[uint32]Appearance
	extras     map[uint32]Extras
	transmogs  map[uint32]*Transmog

	// Generated wandering bots: cloned templates and their equipment.
	genTemplates map[uint32]catalogs.CreatureTemplate
	genEquipment map[uint32]catalogs.EquipmentInfo

	db     Writer
	equip  EquipmentSource
	logger *log.Logger
	notify Notifier

	loaded atomic.Bool
}

func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		records:      map[uint32]*Record{},
		appearance:   map[uint32]Appearance{},
		extras:       map[uint32]Extras{},
		transmogs:    map[uint32]*Transmog{},
		genTemplates: map[uint32]catalogs.CreatureTemplate{},
		genEquipment: map[uint32]catalogs.EquipmentInfo{},
		db:           cfg.DB,
		equip:        cfg.Equipment,
		logger:       logger,
		notify:       cfg.Notifier,
	}
}

func (r *Registry) execute(stmt botdb.StmtID, args ...any) {
	if r.db != nil {
		r.db.Execute(stmt, args...)
	}
}

func (r *Registry) commit(tx *botdb.Tx) {
	if r.db != nil && tx.Len() > 0 {
		r.db.CommitTransaction(tx)
	}
}

func (r *Registry) emit(kind string, entry uint32, fields map[string]any) {
	if r.notify != nil {
		r.notify.Notify(kind, entry, fields)
	}
}

// AddRecord creates and persists a record for a new bot. An existing record is
// left untouched and false is returned.
func (r *Registry) AddRecord(entry, roles uint32, spec uint8, faction uint32) bool {
	r.mu.Lock()
	if _, ok := r.records[entry]; ok {
		r.mu.Unlock()
		r.logger.Printf("botdata: AddRecord: entry %d already exists", entry)
		return false
	}
	r.records[entry] = &Record{Roles: roles, Spec: spec, Faction: faction}
	r.mu.Unlock()

	r.execute(botdb.StmtInsertBot, entry, uint32(0), roles, spec, faction)
	r.emit(EventAdded, entry, map[string]any{"roles": roles, "spec": spec, "faction": faction})
	return true
}

func (r *Registry) SelectRecord(entry uint32) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[entry]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

func (r *Registry) SelectAppearance(entry uint32) (Appearance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appearance[entry]
	return a, ok
}

func (r *Registry) SelectExtras(entry uint32) (Extras, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extras[entry]
	return e, ok
}

func (r *Registry) SelectTransmogs(entry uint32) (Transmog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transmogs[entry]
	if !ok {
		return Transmog{}, false
	}
	return *t, true
}

// Update applies one typed change to an existing record. It returns false when
// the record does not exist or nothing changed.
func (r *Registry) Update(entry uint32, u Update) bool {
	if u == nil {
		r.logger.Printf("botdata: Update: nil update for entry %d", entry)
		return false
	}
	r.mu.Lock()
	rec, ok := r.records[entry]
	if !ok {
		r.mu.Unlock()
		r.logger.Printf("botdata: Update(%s): no record for entry %d", u.Kind(), entry)
		return false
	}

	fields := map[string]any{"kind": u.Kind().String()}
	event := EventUpdated
	switch v := u.(type) {
	case OwnerUpdate:
		if rec.Owner == v.Owner {
			r.mu.Unlock()
			return false
		}
		rec.Owner = v.Owner
		delete(r.transmogs, entry)
		r.mu.Unlock()
		r.execute(botdb.StmtUpdateOwner, v.Owner, entry)
		r.execute(botdb.StmtDeleteTransmogs, entry)
		fields["owner"] = v.Owner

	case TransmogErase:
		delete(r.transmogs, entry)
		r.mu.Unlock()
		r.execute(botdb.StmtDeleteTransmogs, entry)

	case RolesUpdate:
		rec.Roles = v.Roles
		r.mu.Unlock()
		r.execute(botdb.StmtUpdateRoles, v.Roles, entry)
		fields["roles"] = v.Roles

	case SpecUpdate:
		rec.Spec = v.Spec
		r.mu.Unlock()
		r.execute(botdb.StmtUpdateSpec, v.Spec, entry)
		fields["spec"] = v.Spec

	case FactionUpdate:
		rec.Faction = v.Faction
		r.mu.Unlock()
		r.execute(botdb.StmtUpdateFaction, v.Faction, entry)
		fields["faction"] = v.Faction

	case DisabledSpellsUpdate:
		rec.DisabledSpells = normalizeSpells(v.Spells)
		list := formatSpellList(rec.DisabledSpells)
		r.mu.Unlock()
		r.execute(botdb.StmtUpdateDisabledSpells, list, entry)
		fields["count"] = len(v.Spells)

	case EquipsUpdate:
		einfo, _ := r.equipmentInfoLocked(entry)
		tx := r.reconcileEquips(entry, rec, einfo, v.Items)
		r.mu.Unlock()
		r.commit(tx)

	case Erase:
		delete(r.records, entry)
		r.mu.Unlock()
		r.execute(botdb.StmtDeleteBot, entry)
		event = EventErased
		fields = nil

	default:
		r.mu.Unlock()
		r.logger.Printf("botdata: Update: unhandled update kind %s for entry %d", u.Kind(), entry)
		return false
	}

	r.emit(event, entry, fields)
	return true
}

// reconcileEquips stores the equipment snapshot in rec and builds the transaction
// persisting it. Items matching the default equipment template persist as 0.
func (r *Registry) reconcileEquips(entry uint32, rec *Record, einfo catalogs.EquipmentInfo, items [EquipSlots]*Item) *botdb.Tx {
	tx := botdb.NewTx()
	args := make([]any, 0, EquipSlots+1)
	for k, it := range items {
		if it == nil || einfo.Contains(it.Entry) {
			rec.Equips[k] = 0
			args = append(args, uint32(0))
			continue
		}
		count := it.Count
		if count == 0 {
			count = 1
		}
		rec.Equips[k] = it.GUID
		tx.Append(botdb.StmtReplaceItemInstance, it.GUID, it.Entry, it.Owner, count, it.Durability, it.Enchantments, it.RandomPropertyID)
		tx.Append(botdb.StmtDeleteInventoryItem, it.GUID)
		args = append(args, it.GUID)
	}
	args = append(args, entry)
	tx.Append(botdb.StmtUpdateEquips, args...)
	return tx
}

// UpdateAllForOwner applies an owner transfer or a transmog erase to every bot of
// owner. Other kinds are rejected.
func (r *Registry) UpdateAllForOwner(owner uint32, u Update) int {
	if u == nil {
		r.logger.Printf("botdata: UpdateAllForOwner: nil update for owner %d", owner)
		return 0
	}
	var (
		newOwner uint32
		transfer bool
	)
	switch v := u.(type) {
	case OwnerUpdate:
		newOwner, transfer = v.Owner, true
	case TransmogErase:
	default:
		r.logger.Printf("botdata: UpdateAllForOwner: unhandled update kind %s", u.Kind())
		return 0
	}

	r.mu.Lock()
	var touched []uint32
	for entry, rec := range r.records {
		if rec.Owner != owner {
			continue
		}
		delete(r.transmogs, entry)
		if transfer {
			rec.Owner = newOwner
		}
		touched = append(touched, entry)
	}
	r.mu.Unlock()

	// Transmogs are selected by the old owner, so they go first.
	tx := botdb.NewTx()
	tx.Append(botdb.StmtDeleteTransmogsByOwner, owner)
	if transfer {
		tx.Append(botdb.StmtUpdateOwnerAll, newOwner, owner)
	}
	r.commit(tx)

	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	for _, entry := range touched {
		fields := map[string]any{"kind": u.Kind().String(), "bulk": true}
		if transfer {
			fields["owner"] = newOwner
		}
		r.emit(EventUpdated, entry, fields)
	}
	return len(touched)
}

// SaveStats persists a stat snapshot.
func (r *Registry) SaveStats(s Stats) {
	r.execute(botdb.StmtReplaceStats,
		s.Entry, s.MaxHealth, s.MaxPower, s.Strength, s.Agility, s.Stamina, s.Intellect, s.Spirit, s.Armor, s.Defense,
		s.ResHoly, s.ResFire, s.ResNature, s.ResFrost, s.ResShadow, s.ResArcane,
		s.BlockPct, s.DodgePct, s.ParryPct, s.CritPct, s.AttackPower, s.SpellPower, s.SpellPen,
		s.HastePct, s.HitBonusPct, s.Expertise, s.ArmorPenPct)
}

// ExistingIDs returns every bot entry that has a record, ascending.
func (r *Registry) ExistingIDs() []uint32 {
	r.mu.RLock()
	ids := make([]uint32, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ExtrasIDs returns every entry with class/race data, ascending.
func (r *Registry) ExtrasIDs() []uint32 {
	r.mu.RLock()
	ids := make([]uint32, 0, len(r.extras))
	for id := range r.extras {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OwnedCount counts the bots of owner. A non-zero classMask keeps only classes
// whose bit (1 << (class-1)) is set.
func (r *Registry) OwnedCount(owner, classMask uint32) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for entry, rec := range r.records {
		if rec.Owner != owner {
			continue
		}
		if classMask != 0 {
			ex, ok := r.extras[entry]
			if !ok || ex.Class == 0 || classMask&(1<<(ex.Class-1)) == 0 {
				continue
			}
		}
		n++
	}
	return n
}

// ExtraCreatureTemplate returns the cloned template of a generated bot.
func (r *Registry) ExtraCreatureTemplate(entry uint32) (catalogs.CreatureTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.genTemplates[entry]
	if !ok {
		return catalogs.CreatureTemplate{}, false
	}
	return t.Clone(), true
}

// EquipmentInfo returns a generated bot's equipment, else the template's first
// equipment variant.
func (r *Registry) EquipmentInfo(entry uint32) (catalogs.EquipmentInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.equipmentInfoLocked(entry)
}

func (r *Registry) equipmentInfoLocked(entry uint32) (catalogs.EquipmentInfo, bool) {
	if e, ok := r.genEquipment[entry]; ok {
		return e, true
	}
	if r.equip == nil {
		return catalogs.EquipmentInfo{}, false
	}
	return r.equip.EquipmentInfo(entry, 1)
}

// GeneratedBot is a wandering bot manufactured at startup. It lives in memory only.
type GeneratedBot struct {
	Entry      uint32
	Template   catalogs.CreatureTemplate
	Record     Record
	Extras     Extras
	Appearance *Appearance
	Equipment  *catalogs.EquipmentInfo
}

// AddGenerated installs a generated bot. It fails when the entry is already used.
func (r *Registry) AddGenerated(g GeneratedBot) bool {
	r.mu.Lock()
	if _, ok := r.records[g.Entry]; ok {
		r.mu.Unlock()
		r.logger.Printf("botdata: AddGenerated: entry %d already exists", g.Entry)
		return false
	}
	if _, ok := r.genTemplates[g.Entry]; ok {
		r.mu.Unlock()
		r.logger.Printf("botdata: AddGenerated: template %d already exists", g.Entry)
		return false
	}
	rec := g.Record.clone()
	r.records[g.Entry] = &rec
	r.extras[g.Entry] = g.Extras
	if g.Appearance != nil {
		r.appearance[g.Entry] = *g.Appearance
	}
	r.genTemplates[g.Entry] = g.Template.Clone()
	if g.Equipment != nil {
		r.genEquipment[g.Entry] = *g.Equipment
	}
	r.mu.Unlock()

	r.emit(EventGenerated, g.Entry, map[string]any{
		"name":    g.Template.Name,
		"class":   g.Extras.Class,
		"race":    g.Extras.Race,
		"faction": g.Record.Faction,
	})
	return true
}

// BotView is a read-only snapshot of everything known about one bot.
type BotView struct {
	Entry      uint32      `json:"entry"`
	Record     Record      `json:"record"`
	Extras     *Extras     `json:"extras,omitempty"`
	Appearance *Appearance `json:"appearance,omitempty"`
	Transmog   *Transmog   `json:"transmog,omitempty"`
	Generated  bool        `json:"generated,omitempty"`
}

func (r *Registry) Bot(entry uint32) (BotView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.viewLocked(entry)
}

func (r *Registry) Bots() []BotView {
	ids := r.ExistingIDs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BotView, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.viewLocked(id); ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *Registry) viewLocked(entry uint32) (BotView, bool) {
	rec, ok := r.records[entry]
	if !ok {
		return BotView{}, false
	}
	v := BotView{Entry: entry, Record: rec.clone()}
	if e, ok := r.extras[entry]; ok {
		v.Extras = &e
	}
	if a, ok := r.appearance[entry]; ok {
		v.Appearance = &a
	}
	if t, ok := r.transmogs[entry]; ok {
		tm := *t
		v.Transmog = &tm
	}
	_, v.Generated = r.genTemplates[entry]
	return v, true
}
