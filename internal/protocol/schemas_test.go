package protocol_test

import (
	"encoding/json"
	"testing"

	"npcbots.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	valid := map[string]string{
		protocol.TypeSubscribe: `{"type":"SUBSCRIBE","protocol_version":"1.0","kinds":["bot.generated","ab.players_changed"]}`,
		protocol.TypeHello:     `{"type":"HELLO","protocol_version":"1.0","name":"Anduin","level":18,"map_id":36,"instance_id":1,"zone_id":1581}`,
		protocol.TypeCmd:       `{"type":"CMD","protocol_version":"1.0","req_id":"R1","op":"SET_LEVEL","level":19}`,
	}
	for typ, raw := range valid {
		if err := protocol.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}

	invalid := map[string]string{
		protocol.TypeSubscribe: `{"type":"SUBSCRIBE","kinds":["bot.added"]}`,
		protocol.TypeHello:     `{"type":"HELLO","protocol_version":"1.0","name":"","map_id":0}`,
		protocol.TypeCmd:       `{"type":"CMD","protocol_version":"1.0","req_id":"R2","op":"SET_LEVEL"}`,
	}
	for typ, raw := range invalid {
		if err := protocol.Validate(typ, []byte(raw)); err == nil {
			t.Fatalf("%s: expected validation error for %s", typ, raw)
		}
	}

	if err := protocol.Validate(protocol.TypeCmd, []byte(`{"type":"CMD","protocol_version":"1.0","req_id":"R3","op":"DANCE"}`)); err == nil {
		t.Fatalf("unknown op accepted")
	}
}

func TestEventMessageMatchesSchema(t *testing.T) {
	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             1,
		TS:              1700000000000,
		Kind:            "bot.generated",
		Entry:           10000001,
		Fields:          map[string]any{"class": 1},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := protocol.Validate(protocol.TypeEvent, b); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"CMD","protocol_version":"1.0","op":"WHOAMI"}`))
	if err != nil || m.Type != protocol.TypeCmd || m.ProtocolVersion != protocol.Version {
		t.Fatalf("DecodeBase: %+v %v", m, err)
	}
}
