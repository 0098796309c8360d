package model

import (
	"encoding/json"
	"fmt"
	"os"
)

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolSet is what the model is told it can call: function declarations plus
// the provider's built-in code execution and web search.
type ToolSet struct {
	Functions     []ToolDefinition
	CodeExecution bool
	WebSearch     bool
}

func (s ToolSet) Names() []string {
	names := make([]string, 0, len(s.Functions))
	for _, f := range s.Functions {
		names = append(names, f.Name)
	}
	return names
}

type definitionEntry struct {
	ToolDefinition
	FunctionDeclarations []ToolDefinition `json:"function_declarations"`
}

// ParseToolDefinitions accepts a JSON array whose entries are either a bare
// declaration or an object grouping several under "function_declarations".
func ParseToolDefinitions(data []byte) ([]ToolDefinition, error) {
	var entries []definitionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse tool definitions: %w", err)
	}

	var defs []ToolDefinition
	seen := make(map[string]struct{})
	add := func(d ToolDefinition) error {
		if d.Name == "" {
			return fmt.Errorf("tool definition without a name")
		}
		if _, ok := seen[d.Name]; ok {
			return fmt.Errorf("duplicate tool definition %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		defs = append(defs, d)
		return nil
	}

	for _, e := range entries {
		if len(e.FunctionDeclarations) > 0 {
			for _, d := range e.FunctionDeclarations {
				if err := add(d); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := add(e.ToolDefinition); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// LoadToolSet reads function declarations from path and adds the built-ins.
func LoadToolSet(path string) (ToolSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ToolSet{}, fmt.Errorf("read tool definitions: %w", err)
	}
	defs, err := ParseToolDefinitions(data)
	if err != nil {
		return ToolSet{}, err
	}
	return ToolSet{Functions: defs, CodeExecution: true, WebSearch: true}, nil
}
