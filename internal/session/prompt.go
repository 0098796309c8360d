package session

import (
	"fmt"
	"os"
	"strings"
)

const userPlaceholder = "{TRCKUSER}"

const DefaultSystemPrompt = `You are Trackie, a voice assistant that helps {TRCKUSER} understand their surroundings through a camera.
Answer briefly and speak naturally. Use your tools to locate objects, recognize people and recall what you saw recently.
When you receive a DANGER ALERT, warn {TRCKUSER} immediately and clearly.`

// LoadPrompt reads the system prompt from path, or uses the built-in one
// when path is empty, and fills in the user's name.
func LoadPrompt(path, userName string) (string, error) {
	text := DefaultSystemPrompt
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read system prompt: %w", err)
		}
		text = string(data)
	}
	return strings.ReplaceAll(text, userPlaceholder, userName), nil
}
