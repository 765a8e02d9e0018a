package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaMu sync.Mutex
	compiled = map[string]*jsonschema.Schema{}
)

// Schema returns the compiled schema of a message type.
func Schema(msgType string) (*jsonschema.Schema, error) {
	name, ok := schemaNames[msgType]
	if !ok {
		return nil, fmt.Errorf("no schema for %q", msgType)
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := compiled[name]; ok {
		return s, nil
	}
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	s, err := jsonschema.CompileString(name, string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	compiled[name] = s
	return s, nil
}

var schemaNames = map[string]string{
	TypeSubscribe: "subscribe.schema.json",
	TypeEvent:     "event.schema.json",
	TypeHello:     "hello.schema.json",
	TypeCmd:       "cmd.schema.json",
}

// Validate checks a raw message against the schema of msgType.
func Validate(msgType string, raw []byte) error {
	s, err := Schema(msgType)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}
