package store

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// stateSchema guards deserialization of snapshots that may have been edited
// or produced by another process. It checks shape, not business rules.
const stateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["prs", "sources"],
  "properties": {
    "prs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "owner", "repo", "number", "column", "sourceId"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "owner": {"type": "string"},
          "repo": {"type": "string"},
          "number": {"type": "integer", "minimum": 1},
          "title": {"type": "string"},
          "author": {"type": "string"},
          "url": {"type": "string"},
          "headSha": {"type": "string"},
          "column": {"enum": ["inbox", "needs-attention", "reviewed", "done"]},
          "source": {"type": "string"},
          "sourceId": {"type": "string"},
          "addedAt": {"type": "string"},
          "lastCheckedAt": {"type": "string"},
          "reviewedAt": {"type": "string"},
          "doneAt": {"type": "string"}
        }
      }
    },
    "sources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "kind"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "kind": {"enum": ["query", "channel"]},
          "query": {"type": "string"},
          "channelName": {"type": "string"},
          "enabled": {"type": "boolean"}
        }
      }
    },
    "lastPollAt": {"type": ["string", "null"]},
    "pollIntervalMs": {"type": "integer", "minimum": 0},
    "ignoredPRIds": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

var (
	stateSchemaOnce     sync.Once
	stateSchemaCompiled *jsonschema.Schema
	stateSchemaErr      error
)

func compiledStateSchema() (*jsonschema.Schema, error) {
	stateSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stateSchema))
		if err != nil {
			stateSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("prdeck-state.schema.json", doc); err != nil {
			stateSchemaErr = err
			return
		}
		stateSchemaCompiled, stateSchemaErr = compiler.Compile("prdeck-state.schema.json")
	})
	return stateSchemaCompiled, stateSchemaErr
}

// ValidateStateDocument checks a raw snapshot against the state schema.
func ValidateStateDocument(data []byte) error {
	schema, err := compiledStateSchema()
	if err != nil {
		return fmt.Errorf("compile state schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse state document: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("state document rejected: %w", err)
	}
	return nil
}
