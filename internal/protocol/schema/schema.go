package schema

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrInvalidDefinition matches every ValidationError.
var ErrInvalidDefinition = errors.New("schema: invalid definition")

type ValidationError struct {
	Path   string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidDefinition
}

// Rule is one structural check over a resolved definition. The codec
// relies on these holding and never re-checks them.
type Rule struct {
	Name  string
	Check func(d *Definition) error
}

var rules = []Rule{
	{"buffer sizes", checkBufferSizes},
	{"hash length", checkHashLength},
	{"no auto string struct fields", checkStructFields},
	{"acyclic structs", checkStructCycles},
	{"single auto string per message", checkAutoStringParams},
	{"no auto string function returns", checkFunctionReturns},
}

// Rules returns the structural rules in evaluation order.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

// validate runs every rule and returns the first violation. The meta
// service is exempt.
func validate(d *Definition) error {
	log.Debug().Str("definition", d.name).Int("rules", len(rules)).Msg("schema.validate")
	for _, rule := range rules {
		if err := rule.Check(d); err != nil {
			log.Error().Err(err).Str("rule", rule.Name).Msg("schema.validate failed")
			return err
		}
	}
	return nil
}

func checkBufferSizes(d *Definition) error {
	if d.rxBufferSize < 3 || d.txBufferSize < 3 {
		return ValidationError{Path: d.name, Reason: "rx_buffer_size and tx_buffer_size must hold at least a message header"}
	}
	if d.embedDefinition && d.DefinitionStreamChunkSize() < 1 {
		return ValidationError{Path: d.name, Reason: "tx_buffer_size too small to stream the embedded definition"}
	}
	return nil
}

func checkHashLength(d *Definition) error {
	if d.hashLength < 1 || d.hashLength > DefaultHashLength {
		return ValidationError{Path: d.name, Reason: fmt.Sprintf("definition_hash_length %d out of range 1-%d", d.hashLength, DefaultHashLength)}
	}
	return nil
}

func checkStructFields(d *Definition) error {
	for _, s := range d.structs {
		for _, f := range s.fields {
			if f.IsAutoString() {
				return ValidationError{Path: "struct " + s.name + "." + f.name, Reason: "struct field cannot be an auto sized string"}
			}
		}
	}
	return nil
}

func checkStructCycles(d *Definition) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(d.structs))
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visiting:
			return ValidationError{Path: "struct " + d.structs[i].name, Reason: "struct contains itself"}
		case done:
			return nil
		}
		state[i] = visiting
		for _, f := range d.structs[i].fields {
			if f.IsStruct() {
				if err := visit(f.base.Index); err != nil {
					return err
				}
			}
		}
		state[i] = done
		return nil
	}
	for i := range d.structs {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

func checkAutoStringParams(d *Definition) error {
	for _, s := range d.userServices() {
		for _, f := range s.functions {
			if err := checkSingleAutoString(s.name+"."+f.name, f.params); err != nil {
				return err
			}
		}
		for _, st := range s.streams {
			if err := checkSingleAutoString(s.name+"."+st.name, st.declared); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkSingleAutoString(path string, vars []Var) error {
	autos := 0
	for _, v := range vars {
		if !v.IsAutoString() {
			continue
		}
		if v.IsArray() {
			return ValidationError{Path: path + "." + v.name, Reason: "auto sized string cannot be an array"}
		}
		autos++
	}
	if autos > 1 {
		return ValidationError{Path: path, Reason: "at most one auto sized string is allowed"}
	}
	return nil
}

func checkFunctionReturns(d *Definition) error {
	for _, s := range d.userServices() {
		for _, f := range s.functions {
			for _, r := range f.returns {
				if r.IsAutoString() {
					return ValidationError{Path: s.name + "." + f.name + "." + r.name, Reason: "function cannot return an auto sized string"}
				}
			}
		}
	}
	return nil
}

func (d *Definition) userServices() []*Service {
	out := make([]*Service, 0, len(d.services))
	for _, s := range d.services {
		if !s.meta {
			out = append(out, s)
		}
	}
	return out
}
