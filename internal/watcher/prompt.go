// Package watcher runs the per-room decision loop: frames in, verdict out, alert maybe.
package watcher

import (
	"errors"
	"strings"
)

// ErrNoInstructions is returned when a room has no rules to enforce
var ErrNoInstructions = errors.New("instructions must be a non-empty list")

// BuildPrompt renders the task prompt for a room's rules
func BuildPrompt(instructions []string) (string, error) {
	var rules []string
	for _, r := range instructions {
		if r = strings.TrimSpace(r); r != "" {
			rules = append(rules, "* "+r)
		}
	}
	if len(rules) == 0 {
		return "", ErrNoInstructions
	}

	var b strings.Builder
	b.WriteString("You are given the following instructions:\n")
	b.WriteString(strings.Join(rules, "\n"))
	b.WriteString("\n\n")
	b.WriteString("If the instructions are violated, you should alert the user.\n")
	b.WriteString("You should also recommend the awareness level based on the images.\n")
	b.WriteString("The images are ordered from oldest to newest.\n")
	b.WriteString("Please generate a structured response in raw JSON format:\n")
	b.WriteString("- should_alert (boolean)\n")
	b.WriteString("- reasoning (string)\n")
	b.WriteString("- recommended_awareness_level (one of: LOW, MEDIUM, HIGH)\n")
	b.WriteString("Always respond in English, regardless of the content in the images.")
	return b.String(), nil
}

// VerdictSchema is the JSON schema the endpoint is asked to follow
func VerdictSchema() map[string]interface{} {
	return map[string]interface{}{
		"title": "WatcherResponse",
		"type":  "object",
		"properties": map[string]interface{}{
			"should_alert": map[string]interface{}{"type": "boolean"},
			"reasoning":    map[string]interface{}{"type": "string"},
			"recommended_awareness_level": map[string]interface{}{
				"type": "string",
				"enum": []string{"LOW", "MEDIUM", "HIGH"},
			},
		},
		"required": []string{"should_alert", "reasoning", "recommended_awareness_level"},
	}
}
