package engine

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	// ErrNoJSON means the output contained no '{' or '['.
	ErrNoJSON = errors.New("no JSON found in output")
	// ErrInvalidJSON means candidate documents were found but none parsed.
	ErrInvalidJSON = errors.New("failed to parse JSON output")
)

// ExtractJSON returns the JSON document carried in raw. Engines built on a
// runtime may print banners or warnings around the document, so when the
// whole text does not parse each '{' or '[' is tried as the start of a
// balanced document until one parses. An object that never closes means the
// document was cut off; nothing after it is accepted, so a fragment of a
// truncated result is never returned.
func ExtractJSON(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(bytes.Clone(trimmed)), nil
	}

	found := false
	unclosed := false
	for start := 0; start < len(raw); start++ {
		if raw[start] != '{' && raw[start] != '[' {
			continue
		}
		found = true
		end := balancedEnd(raw, start)
		if end < 0 {
			if raw[start] == '{' {
				break
			}
			// A bracketed log prefix such as "[ Info:" never closes either.
			unclosed = true
			continue
		}
		if unclosed && nested(raw, start, end) {
			continue
		}
		candidate := raw[start : end+1]
		if json.Valid(candidate) {
			return json.RawMessage(bytes.Clone(candidate)), nil
		}
	}
	if !found {
		return nil, ErrNoJSON
	}
	return nil, ErrInvalidJSON
}

// nested reports whether raw[start:end+1] reads like a value inside an
// enclosing array or object rather than a document of its own.
func nested(raw []byte, start, end int) bool {
	for i := start - 1; i >= 0; i-- {
		if isSpace(raw[i]) {
			continue
		}
		if raw[i] == ':' || raw[i] == ',' || raw[i] == '[' {
			return true
		}
		break
	}
	for i := end + 1; i < len(raw); i++ {
		if isSpace(raw[i]) {
			continue
		}
		return raw[i] == ',' || raw[i] == ']' || raw[i] == '}'
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// balancedEnd returns the index of the bracket closing raw[start], or -1.
// Only the opening bracket's own kind is counted; characters inside string
// literals, including escaped quotes, are ignored.
func balancedEnd(raw []byte, start int) int {
	open := raw[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
