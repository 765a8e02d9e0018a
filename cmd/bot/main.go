package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"npcbots.ai/internal/protocol"
)

// A scripted player: logs in, optionally enters a dungeon instance and then
// earns kill xp until interrupted. Useful for driving the auto-balance
// scaler from the outside.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/session/ws", "session ws url")
		name    = flag.String("name", "player", "player name")
		level   = flag.Uint("level", 15, "starting level")
		mapID   = flag.Uint("map", 0, "login map (must be a world map)")
		zoneID  = flag.Uint("zone", 12, "login zone")
		dungeon = flag.Uint("dungeon", 0, "create an instance of this map and teleport into it")
		zone    = flag.Uint("dungeon_zone", 0, "zone inside the dungeon")
		heroic  = flag.Bool("heroic", false, "heroic difficulty for -dungeon")
		every   = flag.Duration("every", 5*time.Second, "kill xp interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
		Level:           uint8(*level),
		MapID:           uint32(*mapID),
		ZoneID:          uint32(*zoneID),
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	msg, err := readMsg(conn)
	if err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		logger.Fatalf("decode: %v", err)
	}
	if base.Type != protocol.TypeWelcome {
		logger.Fatalf("login failed: %s", msg)
	}
	var w protocol.WelcomeMsg
	_ = json.Unmarshal(msg, &w)
	logger.Printf("WELCOME guid=%d map=%d tick_rate=%d", w.GUID, w.MapID, w.TickRateHz)

	c := &client{conn: conn, logger: logger}
	if *dungeon != 0 {
		res := c.do(protocol.CmdMsg{Op: protocol.OpCreateInstance, MapID: uint32(*dungeon), Heroic: *heroic})
		if !res.OK {
			logger.Fatalf("create instance: %s %s", res.Code, res.Message)
		}
		var inst struct {
			InstanceID uint32 `json:"instance_id"`
		}
		raw, _ := json.Marshal(res.Data)
		_ = json.Unmarshal(raw, &inst)
		res = c.do(protocol.CmdMsg{Op: protocol.OpTeleport, MapID: uint32(*dungeon), InstanceID: inst.InstanceID, ZoneID: uint32(*zone)})
		if !res.OK {
			logger.Fatalf("teleport: %s %s", res.Code, res.Message)
		}
		logger.Printf("entered map=%d instance=%d", *dungeon, inst.InstanceID)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	t := time.NewTicker(*every)
	defer t.Stop()
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		res := c.do(protocol.CmdMsg{Op: protocol.OpKillXP, Amount: uint32(50 + r.Intn(200))})
		if !res.OK {
			logger.Printf("kill xp: %s %s", res.Code, res.Message)
			continue
		}
		res = c.do(protocol.CmdMsg{Op: protocol.OpWhoAmI})
		logger.Printf("whoami: %v", res.Data)
	}
}

type client struct {
	conn   *websocket.Conn
	logger *log.Logger
	seq    int
}

func (c *client) do(cmd protocol.CmdMsg) protocol.ResultMsg {
	c.seq++
	cmd.Type = protocol.TypeCmd
	cmd.ProtocolVersion = protocol.Version
	cmd.ReqID = fmt.Sprintf("R%d", c.seq)
	if err := c.conn.WriteJSON(cmd); err != nil {
		c.logger.Fatalf("send %s: %v", cmd.Op, err)
	}
	msg, err := readMsg(c.conn)
	if err != nil {
		c.logger.Fatalf("read %s: %v", cmd.Op, err)
	}
	var res protocol.ResultMsg
	if err := json.Unmarshal(msg, &res); err != nil {
		c.logger.Fatalf("decode %s: %v", cmd.Op, err)
	}
	return res
}

func readMsg(conn *websocket.Conn) ([]byte, error) {
	_, msg, err := conn.ReadMessage()
	return msg, err
}
