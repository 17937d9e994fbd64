package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/friedman-econ/friedman/internal/command"
)

// parseParams merges key=value assignments over a JSON object.
func parseParams(base string, assignments []string) (command.Params, error) {
	var params command.Params
	if strings.TrimSpace(base) != "" {
		if err := json.Unmarshal([]byte(base), &params); err != nil {
			return nil, fmt.Errorf("-params must be a JSON object: %w", err)
		}
	}
	if params == nil {
		params = command.Params{}
	}

	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		params[key] = literal(value)
	}
	return params, nil
}

// literal passes numbers, booleans and null through as JSON and quotes
// everything else.
func literal(v string) json.RawMessage {
	switch v {
	case "true", "false", "null":
		return json.RawMessage(v)
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil && json.Valid([]byte(v)) {
		return json.RawMessage(v)
	}
	b, _ := json.Marshal(v)
	return b
}
