package autobalance

import "npcbots.ai/internal/sim/catalogs"

// MaxGroupSize is the player cap assumed for creatures outside instances.
const MaxGroupSize = 5

// CreatureState is the per-creature scaling state. It is owned by the creature
// and only touched from the goroutine updating the creature's map.
type CreatureState struct {
	InstancePlayerCount uint32  `json:"instance_player_count"`
	SelectedLevel       uint8   `json:"selected_level"`
	Entry               uint32  `json:"entry"`
	DamageMultiplier    float64 `json:"damage_multiplier"`
	HealthMultiplier    float64 `json:"health_multiplier"`
	ManaMultiplier      float64 `json:"mana_multiplier"`
	ArmorMultiplier     float64 `json:"armor_multiplier"`

	last Scaled
}

func NewCreatureState() CreatureState {
	return CreatureState{DamageMultiplier: 1, HealthMultiplier: 1, ManaMultiplier: 1, ArmorMultiplier: 1}
}

// Scaled reports whether the creature has been through at least one evaluation.
func (s *CreatureState) Scaled() bool { return s.SelectedLevel > 0 }

// MapState is the player aggregate of one dungeon or raid instance.
type MapState struct {
	PlayerCount uint32 `json:"player_count"`
	Level       uint8  `json:"level"`
}

// Scaled is the stat block written to a creature by one evaluation.
type Scaled struct {
	Level             uint8
	BaseDamageMin     float64
	BaseDamageMax     float64
	AttackPower       uint32
	RangedAttackPower uint32
	Armor             uint32
	MaxHealth         uint32
	MaxMana           uint32
	Health            uint32
	Mana              uint32
}

// Creature is the view of a world creature the scaler needs. Implementations are
// identity handles into the owning world; they are not retained past a call.
type Creature interface {
	GUID() uint64
	Entry() uint32
	Template() catalogs.CreatureTemplate
	InWorld() bool
	Alive() bool
	ControlledByPlayer() bool
	DungeonBoss() bool
	Level() uint8
	ZoneID() uint32
	AreaID() uint32
	Health() uint32
	MaxHealth() uint32
	Mana() uint32
	MaxMana() uint32
	PowerIsMana() bool
	State() *CreatureState
	// ApplyScaled writes the stat block and recomputes derived stats.
	ApplyScaled(s Scaled)
}

type Player interface {
	GUID() uint64
	Name() string
	Level() uint8
	ZoneID() uint32
	InWorld() bool
	GameMaster() bool
}

// Map is a base map or an instance.
type Map interface {
	ID() uint32
	InstanceID() uint32
	Name() string
	Entry() catalogs.MapEntry
	Heroic() bool
	MaxPlayers() uint32
	Players() []Player
	State() *MapState
}

// Bots is the optional bot capability. Without it no creature is a bot and
// players control no companions.
type Bots interface {
	IsBot(c Creature) bool
	ControlledInMap(p Player) int
}

type noBots struct{}

func (noBots) IsBot(Creature) bool       { return false }
func (noBots) ControlledInMap(Player) int { return 0 }

// Data is the static world data used for stat generation.
type Data interface {
	BaseStatsFor(level, class uint8) catalogs.BaseStats
	Area(id uint32) (catalogs.AreaEntry, bool)
}

type Notifier interface {
	Notify(kind string, entry uint32, fields map[string]any)
}

// Event kinds. The entry of an event is the map id.
const (
	EventPlayersChanged = "ab.players_changed"
	EventPlayerEnter    = "ab.player_enter"
	EventPlayerLeave    = "ab.player_leave"
	EventAnnounce       = "ab.announce"
)
