package engine

import "encoding/json"

// Interpret converts a finished run into the engine's JSON result. A
// non-zero exit always fails, whatever stdout contains.
func Interpret(out *Output) (json.RawMessage, error) {
	if out.ExitCode != 0 {
		stderr := string(out.Stderr)
		return nil, &Error{
			Kind:     exitKind(stderr),
			Message:  "non-zero exit",
			ExitCode: out.ExitCode,
			Stderr:   stderr,
			Stdout:   string(out.Stdout),
		}
	}

	doc, err := ExtractJSON(out.Stdout)
	if err != nil {
		return nil, &Error{
			Kind:    KindMalformedOutput,
			Message: "malformed engine output",
			Stdout:  string(out.Stdout),
			Stderr:  string(out.Stderr),
			Err:     err,
		}
	}
	return doc, nil
}
