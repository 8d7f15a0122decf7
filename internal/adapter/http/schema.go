package httpadapter

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/commands.schema.json
var commandSchemaJSON []byte

const commandSchemaURL = "https://townsim.local/schemas/commands.schema.json"

// commandSchemas holds one compiled schema per command name. Schemas check
// shape and types only; amount ranges are left to the town services so the
// error codes stay the same on every transport.
type commandSchemas map[string]*jsonschema.Schema

func compileCommandSchemas(names []string) (commandSchemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(commandSchemaURL, bytes.NewReader(commandSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add command schema: %w", err)
	}
	out := make(commandSchemas, len(names))
	for _, name := range names {
		s, err := c.Compile(commandSchemaURL + "#/$defs/" + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

func (cs commandSchemas) validate(name string, body []byte) error {
	s, ok := cs[name]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
