package botdata

// UpdateKind names the field an Update changes.
type UpdateKind int

const (
	KindOwner UpdateKind = iota + 1
	KindRoles
	KindSpec
	KindFaction
	KindDisabledSpells
	KindEquips
	KindTransmogErase
	KindErase
)

func (k UpdateKind) String() string {
	switch k {
	case KindOwner:
		return "owner"
	case KindRoles:
		return "roles"
	case KindSpec:
		return "spec"
	case KindFaction:
		return "faction"
	case KindDisabledSpells:
		return "disabled_spells"
	case KindEquips:
		return "equips"
	case KindTransmogErase:
		return "transmog_erase"
	case KindErase:
		return "erase"
	default:
		return "unknown"
	}
}

// Update is one typed change to a bot record. The concrete types below are the
// only implementations.
type Update interface {
	Kind() UpdateKind
}

// OwnerUpdate transfers or clears (Owner 0) ownership. It also erases transmogs.
type OwnerUpdate struct{ Owner uint32 }

type RolesUpdate struct{ Roles uint32 }

type SpecUpdate struct{ Spec uint8 }

type FactionUpdate struct{ Faction uint32 }

type DisabledSpellsUpdate struct{ Spells []uint32 }

// EquipsUpdate carries the full equipment snapshot; nil slots are empty.
type EquipsUpdate struct{ Items [EquipSlots]*Item }

type TransmogErase struct{}

type Erase struct{}

func (OwnerUpdate) Kind() UpdateKind          { return KindOwner }
func (RolesUpdate) Kind() UpdateKind          { return KindRoles }
func (SpecUpdate) Kind() UpdateKind           { return KindSpec }
func (FactionUpdate) Kind() UpdateKind        { return KindFaction }
func (DisabledSpellsUpdate) Kind() UpdateKind { return KindDisabledSpells }
func (EquipsUpdate) Kind() UpdateKind         { return KindEquips }
func (TransmogErase) Kind() UpdateKind        { return KindTransmogErase }
func (Erase) Kind() UpdateKind                { return KindErase }
