package tools

import (
	_ "embed"

	"github.com/eleven-am/trackie/internal/model"
)

//go:embed definitions.json
var defaultDefinitions []byte

// DefaultToolSet declares the built-in handlers plus the provider's code
// execution and web search.
func DefaultToolSet() (model.ToolSet, error) {
	defs, err := model.ParseToolDefinitions(defaultDefinitions)
	if err != nil {
		return model.ToolSet{}, err
	}
	return model.ToolSet{Functions: defs, CodeExecution: true, WebSearch: true}, nil
}
