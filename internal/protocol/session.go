package protocol

// HELLO (client -> server): logs a player into the world.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Name            string `json:"name"`
	Level           uint8  `json:"level,omitempty"`
	MapID           uint32 `json:"map_id"`
	InstanceID      uint32 `json:"instance_id,omitempty"`
	ZoneID          uint32 `json:"zone_id"`
	GameMaster      bool   `json:"gm,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	GUID            uint64 `json:"guid"`
	MapID           uint32 `json:"map_id"`
	InstanceID      uint32 `json:"instance_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
}

// Session commands.
const (
	OpTeleport       = "TELEPORT"
	OpSetLevel       = "SET_LEVEL"
	OpSetZone        = "SET_ZONE"
	OpCreateInstance = "CREATE_INSTANCE"
	OpKillXP         = "KILL_XP"
	OpWhoAmI         = "WHOAMI"
)

// CMD (client -> server)
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Op              string `json:"op"`

	MapID      uint32 `json:"map_id,omitempty"`
	InstanceID uint32 `json:"instance_id,omitempty"`
	ZoneID     uint32 `json:"zone_id,omitempty"`
	Level      uint8  `json:"level,omitempty"`
	Heroic     bool   `json:"heroic,omitempty"`
	Amount     uint32 `json:"amount,omitempty"`
}

// RESULT (server -> client)
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Data            any    `json:"data,omitempty"`
}
