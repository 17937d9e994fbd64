package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/friedman-econ/friedman/internal/engine"
)

// Params are raw invocation parameters keyed by field name. Unknown fields
// are ignored and JSON null counts as absent.
type Params map[string]json.RawMessage

// ParamsFromMap encodes loosely typed values as Params.
func ParamsFromMap(m map[string]any) (Params, error) {
	p := make(Params, len(m))
	for k, v := range m {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		p[k] = raw
	}
	return p, nil
}

// Set stores a single value, replacing any existing one.
func (p Params) Set(field string, v any) {
	raw, _ := json.Marshal(v)
	p[field] = raw
}

func (p Params) lookup(field string) (json.RawMessage, bool) {
	raw, ok := p[field]
	if !ok {
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}
	return raw, true
}

// Values are normalized parameters: every applicable field is either typed
// and validated or absent. Defaults have been applied.
type Values struct {
	method string
	fields map[string]any
}

// Method is the selected discriminator value, or "" for plain operations.
func (v Values) Method() string { return v.method }

// Has reports whether field carries a value.
func (v Values) Has(field string) bool {
	_, ok := v.fields[field]
	return ok
}

// Get returns the typed value of field: uint64, float64, string, bool or []uint64.
func (v Values) Get(field string) (any, bool) {
	x, ok := v.fields[field]
	return x, ok
}

// Bool reports whether field is the boolean true.
func (v Values) Bool(field string) bool {
	b, _ := v.fields[field].(bool)
	return b
}

// Normalize validates p against d and applies defaults.
func Normalize(d *Descriptor, p Params) (Values, error) {
	v := Values{fields: make(map[string]any)}

	if d.Switch != nil {
		method, err := switchValue(d, p)
		if err != nil {
			return Values{}, err
		}
		v.method = method
		v.fields[d.Switch.Field] = method
	}

	for _, pos := range d.Positionals {
		s, ok, err := stringParam(p, pos.Field)
		if err != nil {
			return Values{}, err
		}
		if !ok || s == "" {
			if pos.Required {
				return Values{}, engine.InvalidParams("%s is required", pos.Field)
			}
			continue
		}
		v.fields[pos.Field] = s
	}

	for _, o := range d.Options {
		if !o.appliesTo(v.method) || o.Field == switchField(d) {
			continue
		}
		val, ok, err := parseOption(o, p)
		if err != nil {
			return Values{}, err
		}
		if !ok {
			if o.Required {
				return Values{}, engine.InvalidParams("%s is required", o.Field)
			}
			if o.Kind.optional() || o.Default == nil {
				continue
			}
			val = o.Default
		}
		v.fields[o.Field] = val
	}
	return v, nil
}

func switchField(d *Descriptor) string {
	if d.Switch == nil {
		return ""
	}
	return d.Switch.Field
}

func switchValue(d *Descriptor, p Params) (string, error) {
	if d.Pin != "" {
		return d.Pin, nil
	}
	s, ok, err := stringParam(p, d.Switch.Field)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return d.Switch.Default, nil
	}
	if !contains(d.Switch.Values, s) {
		return "", engine.InvalidParams("%s must be one of %s, got %q", d.Switch.Field, strings.Join(d.Switch.Values, ", "), s)
	}
	return s, nil
}

func parseOption(o Option, p Params) (any, bool, error) {
	raw, ok := p.lookup(o.Field)
	if !ok {
		return nil, false, nil
	}

	switch o.Kind {
	case KindUint, KindOptUint:
		n, err := parseUint(raw)
		if err != nil {
			return nil, false, engine.InvalidParams("%s must be a non-negative integer", o.Field)
		}
		return n, true, nil

	case KindFloat, KindOptFloat:
		f, err := parseFloat(raw)
		if err != nil {
			return nil, false, engine.InvalidParams("%s must be a number", o.Field)
		}
		return f, true, nil

	case KindString, KindOptString, KindEnum:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false, engine.InvalidParams("%s must be a string", o.Field)
		}
		if s == "" {
			return nil, false, nil
		}
		if o.Kind == KindEnum && !contains(o.Values, s) {
			return nil, false, engine.InvalidParams("%s must be one of %s, got %q", o.Field, strings.Join(o.Values, ", "), s)
		}
		return s, true, nil

	case KindFlag:
		b, err := parseBool(raw)
		if err != nil {
			return nil, false, engine.InvalidParams("%s must be a boolean", o.Field)
		}
		return b, true, nil

	case KindList:
		list, err := parseList(raw)
		if err != nil {
			return nil, false, engine.InvalidParams("%s must be a list of non-negative integers", o.Field)
		}
		if len(list) == 0 {
			return nil, false, nil
		}
		return list, true, nil
	}
	return nil, false, fmt.Errorf("unhandled option kind %q", o.Kind)
}

func stringParam(p Params, field string) (string, bool, error) {
	raw, ok := p.lookup(field)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, engine.InvalidParams("%s must be a string", field)
	}
	return strings.TrimSpace(s), true, nil
}

// numberText accepts a JSON number or a string holding one.
func numberText(raw json.RawMessage) (string, error) {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func parseUint(raw json.RawMessage) (uint64, error) {
	s, err := numberText(raw)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, fmt.Errorf("not a non-negative integer: %s", s)
	}
	return uint64(f), nil
}

func parseFloat(raw json.RawMessage) (float64, error) {
	s, err := numberText(raw)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %s", s)
	}
	return f, nil
}

func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

func parseList(raw json.RawMessage) ([]uint64, error) {
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make([]uint64, 0, len(items))
		for _, item := range items {
			n, err := parseUint(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
