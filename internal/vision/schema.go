package vision

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaName is the name the strict output format is registered under.
const SchemaName = "duum_ingest_items"

func nullable(typ string) map[string]any {
	return map[string]any{"anyOf": []any{
		map[string]any{"type": typ},
		map[string]any{"type": "null"},
	}}
}

// IngestSchema is the strict output contract for one extraction batch. Every
// item field is required; unknown scalars must be null.
func IngestSchema() map[string]any {
	item := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"slot": map[string]any{"type": "integer"},
			"item_kind": map[string]any{
				"type": "string",
				"enum": []any{"weapon", "shield", "ordnance", "class_mod", "enhancement", "artifact", "other", "unknown"},
			},
			"name":         nullable("string"),
			"manufacturer": nullable("string"),
			"level":        nullable("integer"),
			"dps":          nullable("number"),
			"damage":       nullable("string"),
			"rarity":       nullable("string"),
			"elements": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
					"enum": []any{"incendiary", "corrosive", "cryo", "shock", "radiation", "none", "unknown"},
				},
			},
			"notes":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required": []any{
			"slot", "item_kind", "name", "manufacturer", "level", "dps",
			"damage", "rarity", "elements", "notes", "confidence",
		},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"ok":          map[string]any{"type": "boolean"},
			"image_count": map[string]any{"type": "integer"},
			"mode":        map[string]any{"type": "string"},
			"verdict": map[string]any{
				"type": "string",
				"enum": []any{"weapon_screenshot", "borderlands_non_item", "not_borderlands", "uncertain"},
			},
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"reason":     map[string]any{"type": "string"},
			"items":      map[string]any{"type": "array", "items": item},
		},
		"required": []any{"ok", "image_count", "mode", "verdict", "confidence", "reason", "items"},
	}
}

// compileSchema turns a schema map into a validator.
func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(SchemaName+".json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(SchemaName + ".json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
