package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"roomwatch/internal/models"
)

// ErrMalformedVerdict is returned when no usable verdict object can be found in a response
var ErrMalformedVerdict = errors.New("malformed verdict")

// ParseVerdict extracts a verdict from loosely formatted model output. The JSON object may
// be wrapped in code fences or prose; the first object carrying the required fields wins.
func ParseVerdict(text string) (models.Verdict, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Verdict{}, fmt.Errorf("%w: empty response", ErrMalformedVerdict)
	}

	var lastErr error
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		obj := balancedObject(text, i)
		if obj == "" {
			continue
		}

		v, err := decodeVerdict(obj)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return models.Verdict{}, lastErr
	}
	return models.Verdict{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedVerdict, truncate(text, 120))
}

// balancedObject returns the object starting at text[start], or "" if it never closes.
// Braces inside string literals are ignored.
func balancedObject(text string, start int) string {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func decodeVerdict(obj string) (models.Verdict, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return models.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}

	raw, ok := fields["should_alert"]
	if !ok {
		return models.Verdict{}, fmt.Errorf("%w: missing should_alert", ErrMalformedVerdict)
	}
	shouldAlert, err := parseBool(raw)
	if err != nil {
		return models.Verdict{}, err
	}

	raw, ok = fields["reasoning"]
	if !ok {
		return models.Verdict{}, fmt.Errorf("%w: missing reasoning", ErrMalformedVerdict)
	}
	var reasoning string
	if err := json.Unmarshal(raw, &reasoning); err != nil {
		return models.Verdict{}, fmt.Errorf("%w: reasoning is not a string", ErrMalformedVerdict)
	}

	v := models.Verdict{ShouldAlert: shouldAlert, Reasoning: strings.TrimSpace(reasoning)}

	if raw, ok := fields["recommended_awareness_level"]; ok {
		var level string
		if json.Unmarshal(raw, &level) == nil {
			v.AwarenessLevel = models.ParseAwarenessLevel(level)
		}
	}
	return v, nil
}

func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: should_alert is not a boolean: %s", ErrMalformedVerdict, truncate(string(raw), 40))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
