// Package command turns named operations and loosely-typed parameters into
// engine argument vectors. Every operation is a declarative Descriptor; a
// single builder renders all of them.
package command

import "strings"

// Kind is the value type of an option and decides how it is rendered.
type Kind string

const (
	KindUint      Kind = "uint"       // always emitted, default when absent
	KindFloat     Kind = "float"      // always emitted, default when absent
	KindString    Kind = "string"     // always emitted, default when absent
	KindEnum      Kind = "enum"       // string restricted to Values
	KindOptUint   Kind = "opt_uint"   // emitted only when present
	KindOptFloat  Kind = "opt_float"  // emitted only when present
	KindOptString Kind = "opt_string" // emitted only when present
	KindFlag      Kind = "flag"       // bare flag, emitted only when true
	KindList      Kind = "list"       // comma-joined integers, emitted only when present
)

func (k Kind) optional() bool {
	switch k {
	case KindOptUint, KindOptFloat, KindOptString, KindFlag, KindList:
		return true
	}
	return false
}

// Condition gates an option on another field's value.
type Condition struct {
	Field string `json:"field"`
	Is    string `json:"is"`
}

const (
	IsTrue    = "true"
	IsPresent = "present"
	IsAbsent  = "absent"
)

// Holds reports whether the condition is met by v.
func (c *Condition) Holds(v Values) bool {
	if c == nil {
		return true
	}
	switch c.Is {
	case IsTrue:
		return v.Bool(c.Field)
	case IsPresent:
		return v.Has(c.Field)
	case IsAbsent:
		return !v.Has(c.Field)
	}
	return false
}

// Option is one "--flag value" pair of an operation.
type Option struct {
	Field    string     `json:"field"`
	Flag     string     `json:"flag"`
	Kind     Kind       `json:"kind"`
	Default  any        `json:"default,omitempty"`
	Values   []string   `json:"values,omitempty"`
	Methods  []string   `json:"methods,omitempty"`
	When     *Condition `json:"when,omitempty"`
	Required bool       `json:"required,omitempty"`
}

// appliesTo reports whether the option belongs to the selected method.
func (o Option) appliesTo(method string) bool {
	if len(o.Methods) == 0 {
		return true
	}
	for _, m := range o.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// As overrides the parameter field name derived from the flag.
func (o Option) As(field string) Option {
	o.Field = field
	return o
}

// For restricts the option to the given discriminator values.
func (o Option) For(methods ...string) Option {
	o.Methods = methods
	return o
}

// If emits the option only when field satisfies is.
func (o Option) If(field, is string) Option {
	o.When = &Condition{Field: field, Is: is}
	return o
}

// Require rejects absent or empty values instead of applying a default.
func (o Option) Require() Option {
	o.Required = true
	return o
}

func fieldFor(flag string) string {
	return strings.ReplaceAll(strings.TrimLeft(flag, "-"), "-", "_")
}

func option(flag string, kind Kind, def any) Option {
	return Option{Field: fieldFor(flag), Flag: flag, Kind: kind, Default: def}
}

// Constructors derive the field name from the flag: "--control-lags"
// becomes "control_lags".

func Uint(flag string, def uint64) Option { return option(flag, KindUint, def) }
func Float(flag string, def float64) Option { return option(flag, KindFloat, def) }
func String(flag, def string) Option { return option(flag, KindString, def) }
func OptUint(flag string) Option { return option(flag, KindOptUint, nil) }
func OptFloat(flag string) Option { return option(flag, KindOptFloat, nil) }
func OptString(flag string) Option { return option(flag, KindOptString, nil) }
func Flag(flag string) Option { return option(flag, KindFlag, nil) }
func List(flag string) Option { return option(flag, KindList, nil) }
func Enum(flag, def string, values ...string) Option {
	o := option(flag, KindEnum, def)
	o.Values = values
	return o
}

// Positional is a bare argument following the verb.
type Positional struct {
	Field    string `json:"field"`
	Required bool   `json:"required"`
}

// Switch selects the engine verb, and which options apply, from one field.
type Switch struct {
	Field   string            `json:"field"`
	Default string            `json:"default"`
	Values  []string          `json:"values"`
	Verbs   map[string]string `json:"verbs,omitempty"`
}

func (s *Switch) verb(method string) string {
	if v, ok := s.Verbs[method]; ok {
		return v
	}
	return method
}

// Descriptor declares one named operation.
type Descriptor struct {
	Name        string       `json:"name"`
	Summary     string       `json:"summary"`
	Group       string       `json:"group"`
	Verb        string       `json:"verb,omitempty"`
	Switch      *Switch      `json:"switch,omitempty"`
	Pin         string       `json:"pinned,omitempty"`
	Positionals []Positional `json:"positionals"`
	Options     []Option     `json:"options"`
}

// verb returns the engine subcommand for the selected method.
func (d *Descriptor) verb(method string) string {
	if d.Switch == nil {
		return d.Verb
	}
	return d.Switch.verb(method)
}
