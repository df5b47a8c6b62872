package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// target is the function or stream named on the command line.
type target struct {
	service string
	name    string
	fn      *schema.Function
	st      *schema.Stream
}

func lookupTarget(def *schema.Definition, service, name string) (target, error) {
	t := target{service: service, name: name}
	if _, ok := def.ServiceByName(service); !ok {
		return t, usagef("no service %s in %s", service, def.Name())
	}
	if fn, ok := def.Function(service, name); ok {
		t.fn = fn
		return t, nil
	}
	if st, ok := def.Stream(service, name); ok {
		t.st = st
		return t, nil
	}
	return t, usagef("no function or stream %s in service %s", name, service)
}

func (t target) params() []schema.Var {
	if t.fn != nil {
		return t.fn.Params()
	}
	return t.st.Params()
}

func (t target) returns() []schema.Var {
	if t.fn != nil {
		return t.fn.Returns()
	}
	return t.st.Returns()
}

func (t target) isServerStream() bool { return t.st != nil && t.st.IsServer() }

// parseArgs turns name=value arguments into call arguments for t. The
// implicit start and final parameters come from the -stop and -final
// flags unless given explicitly.
func parseArgs(t target, args []string, stop, final bool) (map[string]any, error) {
	params := make(map[string]schema.Var)
	for _, p := range t.params() {
		params[p.Name()] = p
	}
	out := make(map[string]any, len(args)+1)
	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, usagef("argument %q is not name=value", arg)
		}
		p, ok := params[name]
		if !ok {
			return nil, usagef("%s.%s has no parameter %s", t.service, t.name, name)
		}
		if _, dup := out[name]; dup {
			return nil, usagef("parameter %s given twice", name)
		}
		v, err := parseValue(p, raw)
		if err != nil {
			return nil, usagef("parameter %s: %v", name, err)
		}
		out[name] = v
	}

	if t.isServerStream() {
		if _, ok := out[schema.StartParam]; !ok {
			out[schema.StartParam] = !stop
		}
	} else if t.st != nil && t.st.IsFinite() {
		if _, ok := out[schema.FinalReturn]; !ok {
			out[schema.FinalReturn] = final
		}
	}
	return out, nil
}

// parseValue converts one command line value for p. "_" is an absent
// optional; an optional string made only of underscores is written with
// one extra underscore.
func parseValue(p schema.Var, raw string) (any, error) {
	if p.IsOptional() {
		if raw == "_" {
			return nil, nil
		}
		if strings.Trim(raw, "_") == "" && raw != "" {
			raw = raw[1:]
		}
	}
	if p.IsArray() {
		var items []yaml.Node
		if err := yaml.Unmarshal([]byte(raw), &items); err != nil {
			return nil, fmt.Errorf("expected a list of %d values: %w", p.ArraySize(), err)
		}
		if len(items) != p.ArraySize() {
			return nil, fmt.Errorf("expected %d values, got %d", p.ArraySize(), len(items))
		}
		values := make([]any, len(items))
		for i := range items {
			v, err := parseNode(p.Contained(), &items[i])
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			values[i] = v
		}
		return values, nil
	}
	return parseScalar(p, raw)
}

func parseNode(p schema.Var, n *yaml.Node) (any, error) {
	if p.IsStruct() {
		var m map[string]any
		if err := n.Decode(&m); err != nil || m == nil {
			return nil, fmt.Errorf("expected a YAML mapping at line %d", n.Line)
		}
		return m, nil
	}
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("expected a scalar at line %d", n.Line)
	}
	return parseScalar(p, n.Value)
}

func parseScalar(p schema.Var, raw string) (any, error) {
	switch {
	case p.IsString(), p.IsEnum():
		return raw, nil
	case p.IsBytearray():
		b, err := hex.DecodeString(strings.Join(strings.Fields(raw), ""))
		if err != nil {
			return nil, fmt.Errorf("expected hex bytes: %w", err)
		}
		return b, nil
	case p.IsStruct():
		var m map[string]any
		if err := yaml.Unmarshal([]byte(raw), &m); err != nil || m == nil {
			return nil, fmt.Errorf("%q is not a YAML mapping", raw)
		}
		return m, nil
	}

	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("%q is not a YAML value: %w", raw, err)
	}
	switch x := v.(type) {
	case bool:
		if p.Kind() != schema.KindBool {
			return nil, fmt.Errorf("expected %s, got bool", p.Kind())
		}
		return x, nil
	case int, uint64, float64:
		if p.Kind() == schema.KindBool {
			return nil, fmt.Errorf("expected bool, got %v", x)
		}
		return x, nil
	default:
		return nil, fmt.Errorf("expected %s, got %q", p.Kind(), raw)
	}
}
