package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"npcbots.ai/internal/protocol"
	"npcbots.ai/internal/sim/autobalance"
	"npcbots.ai/internal/sim/botdata"
	"npcbots.ai/internal/sim/wander"
	"npcbots.ai/internal/sim/world"
)

type Bots interface {
	Bots() []botdata.BotView
	Bot(entry uint32) (botdata.BotView, bool)
}

type Live interface {
	Snapshot() []botdata.LiveRef
	LiveGUID(entry uint32) uint64
}

type Graph interface {
	Node(mapID, nodeID uint32) (wander.Node, bool)
	Stats() wander.Stats
}

type Balance interface {
	MapTimers() []autobalance.MapTimer
	Zones() []autobalance.ZoneStat
	Offset() int
	SetOffset(v int)
}

type World interface {
	Creature(guid uint64) (world.CreatureInfo, bool)
	Maps() []world.MapInfo
	Groups() []world.Group
}

type Config struct {
	Hub     *Hub
	Bots    Bots
	Live    Live
	Graph   Graph
	Balance Balance
	World   World
	Logger  *log.Logger
}

type Server struct {
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
	}
}

// Register mounts the observer routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	mux.HandleFunc("/v1/bots", s.local(s.handleBots))
	mux.HandleFunc("/v1/bots/", s.local(s.handleBot))
	mux.HandleFunc("/v1/wander/", s.local(s.handleWander))
	mux.HandleFunc("/v1/groups", s.local(s.handleGroups))
	mux.HandleFunc("/v1/autobalance/maps", s.local(s.handleMaps))
	mux.HandleFunc("/v1/autobalance/zones", s.local(s.handleZones))
	mux.HandleFunc("/v1/autobalance/offset", s.local(s.handleOffset))
	mux.HandleFunc("/v1/autobalance/creatures/", s.local(s.handleCreature))
}

func (s *Server) local(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			writeError(rw, protocol.ErrForbidden, "forbidden")
			return
		}
		h(rw, r)
	}
}

type botResponse struct {
	botdata.BotView
	LiveGUID uint64 `json:"live_guid,omitempty"`
}

func (s *Server) handleBots(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || s.cfg.Bots == nil {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	views := s.cfg.Bots.Bots()
	out := make([]botResponse, 0, len(views))
	for _, v := range views {
		out = append(out, s.botResponse(v))
	}
	writeJSON(rw, http.StatusOK, map[string]any{"bots": out, "count": len(out)})
}

func (s *Server) handleBot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || s.cfg.Bots == nil {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/v1/bots/"), 10, 32)
	if err != nil {
		writeError(rw, protocol.ErrBadRequest, "bad bot id")
		return
	}
	v, ok := s.cfg.Bots.Bot(uint32(id))
	if !ok {
		writeError(rw, protocol.ErrNotFound, "bot not found")
		return
	}
	writeJSON(rw, http.StatusOK, s.botResponse(v))
}

func (s *Server) botResponse(v botdata.BotView) botResponse {
	out := botResponse{BotView: v}
	if s.cfg.Live != nil {
		out.LiveGUID = s.cfg.Live.LiveGUID(v.Entry)
	}
	return out
}

// handleWander serves /v1/wander/stats and /v1/wander/{map}/{node}.
func (s *Server) handleWander(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || s.cfg.Graph == nil {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/wander/"), "/")
	if rest == "stats" {
		writeJSON(rw, http.StatusOK, s.cfg.Graph.Stats())
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 {
		writeError(rw, protocol.ErrBadRequest, "expected /v1/wander/{map}/{node}")
		return
	}
	mapID, err1 := strconv.ParseUint(parts[0], 10, 32)
	nodeID, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		writeError(rw, protocol.ErrBadRequest, "bad map or node id")
		return
	}
	n, ok := s.cfg.Graph.Node(uint32(mapID), uint32(nodeID))
	if !ok {
		writeError(rw, protocol.ErrNotFound, "node not found")
		return
	}
	writeJSON(rw, http.StatusOK, n)
}

func (s *Server) handleGroups(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || s.cfg.World == nil {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"groups": s.cfg.World.Groups()})
}

func (s *Server) handleMaps(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{}
	if s.cfg.Balance != nil {
		resp["timers"] = s.cfg.Balance.MapTimers()
	}
	if s.cfg.World != nil {
		resp["maps"] = s.cfg.World.Maps()
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleZones(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || s.cfg.Balance == nil {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"zones": s.cfg.Balance.Zones()})
}

type offsetBody struct {
	Offset int `json:"offset"`
}

func (s *Server) handleOffset(rw http.ResponseWriter, r *http.Request) {
	if s.cfg.Balance == nil {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var body offsetBody
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<10)).Decode(&body); err != nil {
			writeError(rw, protocol.ErrBadRequest, "bad offset body")
			return
		}
		s.cfg.Balance.SetOffset(body.Offset)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, offsetBody{Offset: s.cfg.Balance.Offset()})
}

func (s *Server) handleCreature(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || s.cfg.World == nil {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	guid, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/v1/autobalance/creatures/"), 10, 64)
	if err != nil {
		writeError(rw, protocol.ErrBadRequest, "bad creature guid")
		return
	}
	info, ok := s.cfg.World.Creature(guid)
	if !ok {
		writeError(rw, protocol.ErrNotFound, "creature not found")
		return
	}
	writeJSON(rw, http.StatusOK, info)
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, reason := decodeSubscribe(msg)
		if reason != "" {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
			return
		}

		hub := s.cfg.Hub
		subscriber := hub.subscribe(1024, sub)
		defer hub.unsubscribe(subscriber)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-subscriber.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, reason := decodeSubscribe(msg)
			if reason != "" {
				continue
			}
			subscriber.setFilter(sub)
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func decodeSubscribe(msg []byte) (protocol.SubscribeMsg, string) {
	var sub protocol.SubscribeMsg
	if err := protocol.Validate(protocol.TypeSubscribe, msg); err != nil {
		return sub, "bad subscribe"
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, "bad subscribe"
	}
	if sub.ProtocolVersion != protocol.Version {
		return sub, "unsupported protocol version"
	}
	return sub, ""
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, code, message string) {
	writeJSON(rw, protocol.HTTPStatus(code), protocol.NewError(code, message))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
