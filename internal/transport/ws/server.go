package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"npcbots.ai/internal/protocol"
	"npcbots.ai/internal/sim/world"
)

// Server is the player session socket: one connection is one logged-in player.
type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		guid := s.handshake(conn)
		if guid == 0 {
			return
		}
		defer func() {
			if err := s.world.Logout(guid); err != nil {
				s.log.Printf("session %d: logout: %v", guid, err)
			}
		}()

		// Commands are answered in order on this goroutine.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCmd {
				continue
			}
			res := s.handleCmd(guid, msg)
			if err := writeJSON(conn, res); err != nil {
				return
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) uint64 {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return 0
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return 0
	}
	if base.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return 0
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		closePolicy(conn, "bad HELLO")
		return 0
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "bad HELLO")
		return 0
	}

	guid, err := s.world.Login(world.PlayerSpec{
		Name:       hello.Name,
		Level:      hello.Level,
		MapID:      hello.MapID,
		InstanceID: hello.InstanceID,
		ZoneID:     hello.ZoneID,
		GameMaster: hello.GameMaster,
	})
	if err != nil {
		code, _ := errorCode(err)
		_ = writeJSON(conn, protocol.NewError(code, err.Error()))
		closePolicy(conn, "login failed")
		return 0
	}
	info, _ := s.world.Player(guid)

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		GUID:            guid,
		MapID:           info.MapID,
		InstanceID:      info.InstanceID,
		TickRateHz:      s.world.TickRateHz(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		_ = s.world.Logout(guid)
		return 0
	}
	s.log.Printf("session: %s logged in as %d on map %d/%d", hello.Name, guid, info.MapID, info.InstanceID)
	return guid
}

func (s *Server) handleCmd(guid uint64, msg []byte) protocol.ResultMsg {
	res := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return fail(res, protocol.ErrProtoBadRequest, "bad CMD")
	}
	res.ReqID = cmd.ReqID
	if cmd.ProtocolVersion != protocol.Version {
		return fail(res, protocol.ErrProtoVersion, "bad protocol_version")
	}
	if err := protocol.Validate(protocol.TypeCmd, msg); err != nil {
		return fail(res, protocol.ErrProtoBadRequest, err.Error())
	}

	var (
		data any
		err  error
	)
	switch cmd.Op {
	case protocol.OpWhoAmI:
		info, ok := s.world.Player(guid)
		if !ok {
			err = world.ErrUnknownPlayer
		}
		data = info
	case protocol.OpTeleport:
		err = s.world.Teleport(guid, cmd.MapID, cmd.InstanceID, cmd.ZoneID)
	case protocol.OpSetLevel:
		err = s.world.SetLevel(guid, cmd.Level)
	case protocol.OpSetZone:
		err = s.world.SetZone(guid, cmd.ZoneID)
	case protocol.OpCreateInstance:
		var m *world.Map
		if m, err = s.world.CreateInstance(cmd.MapID, cmd.Heroic); err == nil {
			data = map[string]any{"map_id": m.ID(), "instance_id": m.InstanceID(), "heroic": m.Heroic()}
		}
	case protocol.OpKillXP:
		var xp uint32
		if xp, err = s.world.KillXP(guid, cmd.Amount); err == nil {
			data = map[string]any{"xp": xp}
		}
	default:
		return fail(res, protocol.ErrUnknownOp, "unknown op "+cmd.Op)
	}
	if err != nil {
		code, internal := errorCode(err)
		if internal {
			s.log.Printf("session %d: %s: %v", guid, cmd.Op, err)
		}
		return fail(res, code, err.Error())
	}
	res.OK = true
	res.Data = data
	return res
}

func fail(res protocol.ResultMsg, code, message string) protocol.ResultMsg {
	res.OK = false
	res.Code = code
	res.Message = message
	return res
}

// errorCode maps world errors to protocol codes; internal reports an unexpected error.
func errorCode(err error) (code string, internal bool) {
	switch {
	case errors.Is(err, world.ErrUnknownMap), errors.Is(err, world.ErrUnknownPlayer):
		return protocol.ErrNotFound, false
	case errors.Is(err, world.ErrInstanceNeeded), errors.Is(err, world.ErrNotInstanceable):
		return protocol.ErrBadRequest, false
	case errors.Is(err, world.ErrPlayerExists):
		return protocol.ErrConflict, false
	default:
		return protocol.ErrInternal, true
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
