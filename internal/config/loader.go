package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/unitone-ai/rampart/internal/engine"
	"gopkg.in/yaml.v3"
)

// File is the on-disk route configuration document.
type File struct {
	Routes []engine.RouteConfig `yaml:"routes" json:"routes"`
}

// fileSchema validates the structural shape of the document before any
// typed decoding. Guard-level semantic checks (phase names, thresholds,
// regex compilation) happen in engine.GuardConfig.Validate and the
// registry; this schema catches documents that are not even the right
// shape, with a pointer to where.
const fileSchema = `{
  "type": "object",
  "required": ["routes"],
  "properties": {
    "routes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "guards"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "shadow": {"type": "boolean"},
          "guards": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["id", "type", "runs_on"],
              "properties": {
                "id": {"type": "string", "minLength": 1},
                "type": {"type": "string"},
                "enabled": {"type": "boolean"},
                "priority": {"type": "integer"},
                "timeout_ms": {"type": "integer", "minimum": 0},
                "failure_mode": {"enum": ["fail_closed", "fail_open"]},
                "runs_on": {
                  "type": "array",
                  "minItems": 1,
                  "items": {"enum": ["request", "response", "tools_list", "tool_invoke"]}
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledFileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(fileSchema)))
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("routes.json", doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("routes.json")
	})
	return compiledSchema, schemaErr
}

// Load reads and validates a YAML route configuration file.
func Load(path string) ([]engine.RouteConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse validates and decodes a YAML route configuration document.
// Guards default to enabled unless the document says otherwise.
func Parse(raw []byte) ([]engine.RouteConfig, error) {
	// Route the document through JSON so the schema validator sees the
	// same value shapes (json.Number-free, string-keyed maps) it expects.
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	jsonRaw, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonRaw))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	schema, err := compiledFileSchema()
	if err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnabledDefault(generic, file.Routes)

	seen := make(map[string]bool, len(file.Routes))
	for _, r := range file.Routes {
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate route %q", r.Name)
		}
		seen[r.Name] = true
	}
	return file.Routes, nil
}

// applyEnabledDefault flips guards whose document omitted the enabled key
// to enabled. The typed decode cannot distinguish "enabled: false" from an
// absent key, so presence is checked against the generic parse.
func applyEnabledDefault(generic any, routes []engine.RouteConfig) {
	top, ok := generic.(map[string]any)
	if !ok {
		return
	}
	rawRoutes, ok := top["routes"].([]any)
	if !ok {
		return
	}
	for i := range routes {
		if i >= len(rawRoutes) {
			return
		}
		rawRoute, ok := rawRoutes[i].(map[string]any)
		if !ok {
			continue
		}
		rawGuards, ok := rawRoute["guards"].([]any)
		if !ok {
			continue
		}
		for j := range routes[i].Guards {
			if j >= len(rawGuards) {
				break
			}
			if gm, ok := rawGuards[j].(map[string]any); ok {
				if _, present := gm["enabled"]; !present {
					routes[i].Guards[j].Enabled = true
				}
			}
		}
	}
}
