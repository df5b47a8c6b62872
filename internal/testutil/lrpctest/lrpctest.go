// Package lrpctest provides a shared test definition and an in-memory
// transport for packages that exercise the codec and client.
package lrpctest

import (
	_ "embed"
	"fmt"
	"testing"

	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

//go:embed testdata/test.lrpc.yaml
var definitionYAML []byte

// DefinitionYAML returns the source of the shared test definition.
func DefinitionYAML() []byte {
	return append([]byte(nil), definitionYAML...)
}

// Definition resolves the shared test definition.
func Definition(t testing.TB) *schema.Definition {
	t.Helper()
	def, err := schema.Parse(definitionYAML)
	if err != nil {
		t.Fatalf("parse test definition: %v", err)
	}
	return def
}

// Param returns a parameter of service.name, which may be a function or
// a stream.
func Param(t testing.TB, def *schema.Definition, service, name, param string) schema.Var {
	t.Helper()
	v, err := lookup(def, service, name, param, false)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

// Return returns a return value of service.name.
func Return(t testing.TB, def *schema.Definition, service, name, ret string) schema.Var {
	t.Helper()
	v, err := lookup(def, service, name, ret, true)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func lookup(def *schema.Definition, service, name, value string, returns bool) (schema.Var, error) {
	var vars []schema.Var
	if f, ok := def.Function(service, name); ok {
		vars = f.Params()
		if returns {
			vars = f.Returns()
		}
	} else if st, ok := def.Stream(service, name); ok {
		vars = st.Params()
		if returns {
			vars = st.Returns()
		}
	} else {
		return schema.Var{}, fmt.Errorf("lrpctest: %s.%s not found", service, name)
	}
	for _, v := range vars {
		if v.Name() == value {
			return v, nil
		}
	}
	return schema.Var{}, fmt.Errorf("lrpctest: %s.%s has no %s", service, name, value)
}
