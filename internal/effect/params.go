package effect

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
)

// Kind is the value type of a parameter.
type Kind string

const (
	Float Kind = "float"
	Int   Kind = "int"
	Bool  Kind = "bool"
	Enum  Kind = "enum"
)

// ParamSpec describes one tunable parameter. Min/Max apply to Float and Int
// when Min < Max.
type ParamSpec struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Min     float64  `json:"min,omitempty"`
	Max     float64  `json:"max,omitempty"`
	Default any      `json:"default"`
	Options []string `json:"options,omitempty"`
}

// Schema is the closed set of parameters a plugin accepts.
type Schema []ParamSpec

func (s Schema) Lookup(name string) (ParamSpec, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

// Coerce validates value against the named parameter and converts it to the
// parameter's canonical Go type (float64, int, bool or string).
func (s Schema) Coerce(name string, value any) (any, error) {
	spec, ok := s.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
	}
	switch spec.Kind {
	case Float:
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %s expects a number, got %v", ErrInvalidParameter, name, value)
		}
		if spec.Min < spec.Max && (f < spec.Min || f > spec.Max) {
			return nil, fmt.Errorf("%w: %s=%v outside [%v,%v]", ErrInvalidParameter, name, f, spec.Min, spec.Max)
		}
		return f, nil
	case Int:
		f, ok := toFloat(value)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: %s expects an integer, got %v", ErrInvalidParameter, name, value)
		}
		if spec.Min < spec.Max && (f < spec.Min || f > spec.Max) {
			return nil, fmt.Errorf("%w: %s=%v outside [%v,%v]", ErrInvalidParameter, name, f, spec.Min, spec.Max)
		}
		return int(f), nil
	case Bool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err == nil {
				return b, nil
			}
		}
		return nil, fmt.Errorf("%w: %s expects a bool, got %v", ErrInvalidParameter, name, value)
	case Enum:
		v, ok := value.(string)
		if ok {
			for _, o := range spec.Options {
				if o == v {
					return v, nil
				}
			}
		}
		return nil, fmt.Errorf("%w: %s must be one of %v, got %v", ErrInvalidParameter, name, spec.Options, value)
	}
	return nil, fmt.Errorf("%w: %s has unsupported kind %q", ErrInvalidParameter, name, spec.Kind)
}

// Validate checks a whole parameter map without applying it.
func (s Schema) Validate(params map[string]any) error {
	for name, v := range params {
		if _, err := s.Coerce(name, v); err != nil {
			return err
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Params is a schema-checked parameter store. Plugins embed it to get
// Parameters and UpdateParameter.
type Params struct {
	schema Schema
	mu     sync.RWMutex
	values map[string]any
}

func NewParams(schema Schema) *Params {
	p := &Params{schema: schema, values: make(map[string]any, len(schema))}
	for _, spec := range schema {
		if v, err := schema.Coerce(spec.Name, spec.Default); err == nil {
			p.values[spec.Name] = v
		}
	}
	return p
}

func (p *Params) Schema() Schema { return p.schema }

func (p *Params) UpdateParameter(name string, value any) error {
	v, err := p.schema.Coerce(name, value)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.values[name] = v
	p.mu.Unlock()
	return nil
}

// Parameters returns a copy of the current values.
func (p *Params) Parameters() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Names returns parameter names in schema order.
func (p *Params) Names() []string {
	out := make([]string, 0, len(p.schema))
	for _, s := range p.schema {
		out = append(out, s.Name)
	}
	return out
}

func (p *Params) Float(name string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch v := p.values[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (p *Params) Int(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.values[name].(int); ok {
		return v
	}
	return 0
}

func (p *Params) Bool(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, _ := p.values[name].(bool)
	return v
}

func (p *Params) String(name string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, _ := p.values[name].(string)
	return v
}

// sortedKeys is used for stable log output.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
