package command

import (
	"strconv"
	"strings"
)

// Build renders the engine arguments for d: group, verb, positionals, then
// options in declaration order. The output format flag is not included; the
// runner appends it.
func Build(d *Descriptor, v Values) []string {
	args := []string{d.Group, d.verb(v.method)}

	for _, pos := range d.Positionals {
		if s, ok := v.fields[pos.Field].(string); ok {
			args = append(args, s)
		}
	}

	for _, o := range d.Options {
		if !o.appliesTo(v.method) || !o.When.Holds(v) {
			continue
		}
		val, ok := v.fields[o.Field]
		if !ok {
			continue
		}
		switch x := val.(type) {
		case bool:
			if x {
				args = append(args, o.Flag)
			}
		default:
			args = append(args, o.Flag, render(x))
		}
	}
	return args
}

// Prepare normalizes p and builds the argument vector in one step.
func Prepare(d *Descriptor, p Params) ([]string, error) {
	v, err := Normalize(d, p)
	if err != nil {
		return nil, err
	}
	return Build(d, v), nil
}

// render formats a normalized value as a single argument. Floats use the
// shortest representation that round-trips.
func render(val any) string {
	switch x := val.(type) {
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	case []uint64:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.FormatUint(n, 10)
		}
		return strings.Join(parts, ",")
	}
	return ""
}
