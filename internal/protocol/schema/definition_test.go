package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danmuck/lotusrpc/internal/testutil/testlog"
)

func TestNewAssignsServiceIDs(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, testDefinitionYAML)

	got := map[string]uint8{}
	for _, s := range d.Services() {
		got[s.Name()] = s.ID()
	}
	want := map[string]uint8{"srv0": 0, "srv1": 5, "srv2": 6, MetaServiceName: MetaServiceID}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("service ids (-want +got):\n%s", diff)
	}
	if d.Services()[len(d.Services())-1] != d.MetaService() {
		t.Fatalf("expected meta service last")
	}
}

func TestNewAssignsFunctionAndStreamIDs(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, testDefinitionYAML)

	for i, name := range []string{"client_infinite", "client_finite", "server_infinite", "server_finite"} {
		st, ok := d.Stream("srv2", name)
		if !ok {
			t.Fatalf("missing stream %s", name)
		}
		if int(st.ID()) != i {
			t.Fatalf("stream %s id=%d want %d", name, st.ID(), i)
		}
	}
	f1, ok := d.Function("srv0", "f1")
	if !ok || f1.ID() != 1 {
		t.Fatalf("unexpected srv0.f1: %+v ok=%v", f1, ok)
	}
}

func TestFunctionsBeforeStreamsFollowsKeyOrder(t *testing.T) {
	testlog.Start(t)
	src := `
name: order
services:
  - name: s
    streams:
      - { name: st, origin: client }
    functions:
      - { name: f }
`
	d := mustParse(t, src)
	st, _ := d.Stream("s", "st")
	f, _ := d.Function("s", "f")
	if st.ID() != 0 || f.ID() != 1 {
		t.Fatalf("expected streams first, got stream=%d function=%d", st.ID(), f.ID())
	}

	explicit := strings.Replace(src, "  - name: s\n", "  - name: s\n    functions_before_streams: true\n", 1)
	d = mustParse(t, explicit)
	st, _ = d.Stream("s", "st")
	f, _ = d.Function("s", "f")
	if f.ID() != 0 || st.ID() != 1 {
		t.Fatalf("expected functions first, got function=%d stream=%d", f.ID(), st.ID())
	}
}

func TestPinnedIDResetsCounter(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, `
name: pins
services:
  - name: s
    functions:
      - { name: a }
      - { name: b, id: 10 }
      - { name: c }
`)
	c, _ := d.Function("s", "c")
	if c.ID() != 11 {
		t.Fatalf("expected id 11 after pinned 10, got %d", c.ID())
	}
}

func TestStreamResolvedParamsAndReturns(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, testDefinitionYAML)

	names := func(vars []Var) []string {
		out := []string{}
		for _, v := range vars {
			out = append(out, v.Name())
		}
		return out
	}
	cases := []struct {
		stream  string
		params  []string
		returns []string
	}{
		{"client_infinite", []string{"p0", "p1"}, []string{}},
		{"client_finite", []string{"p0", "p1", "final"}, []string{}},
		{"server_infinite", []string{"start"}, []string{"p0", "p1"}},
		{"server_finite", []string{"start"}, []string{"p0", "p1", "final"}},
	}
	for _, tc := range cases {
		st, _ := d.Stream("srv2", tc.stream)
		if diff := cmp.Diff(tc.params, names(st.Params())); diff != "" {
			t.Fatalf("%s params (-want +got):\n%s", tc.stream, diff)
		}
		if diff := cmp.Diff(tc.returns, names(st.Returns())); diff != "" {
			t.Fatalf("%s returns (-want +got):\n%s", tc.stream, diff)
		}
	}
	sf, _ := d.Stream("srv2", "server_finite")
	if last := sf.Returns()[2]; last.Kind() != KindBool {
		t.Fatalf("final must be bool, got %s", last.Kind())
	}
}

func TestEnumIDsDefaultToPreviousPlusOne(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, testDefinitionYAML)
	color, ok := d.Enum("Color")
	if !ok {
		t.Fatalf("missing enum Color")
	}
	want := []EnumField{{"red", 0}, {"green", 5}, {"blue", 6}}
	if diff := cmp.Diff(want, color.Fields()); diff != "" {
		t.Fatalf("enum fields (-want +got):\n%s", diff)
	}
}

func TestMetaServiceMerged(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, testDefinitionYAML)
	meta := d.MetaService()
	if meta == nil || meta.ID() != MetaServiceID || !meta.IsMeta() {
		t.Fatalf("unexpected meta service: %+v", meta)
	}
	errStream, ok := meta.StreamByID(MetaErrorStreamID)
	if !ok || errStream.Name() != MetaErrorStream || !errStream.IsServer() || errStream.IsFinite() {
		t.Fatalf("unexpected error stream: %+v", errStream)
	}
	if got := len(errStream.Returns()); got != 5 {
		t.Fatalf("error stream returns=%d want 5", got)
	}
	defStream, ok := meta.StreamByID(MetaDefinitionStreamID)
	if !ok || !defStream.IsFinite() || !defStream.Returns()[0].IsBytearray() {
		t.Fatalf("unexpected definition stream: %+v", defStream)
	}
	version, ok := meta.FunctionByID(MetaVersionFunctionID)
	if !ok || version.Name() != MetaVersionFunction || len(version.Returns()) != 3 {
		t.Fatalf("unexpected version function: %+v", version)
	}
	if _, ok := d.Enum(MetaErrorEnumName); !ok {
		t.Fatalf("missing %s enum", MetaErrorEnumName)
	}
}

func TestStructOfAndEnumOf(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, testDefinitionYAML)
	f1, _ := d.Function("srv0", "f1")
	outer := d.StructOf(f1.Params()[0])
	if outer.Name() != "Outer" {
		t.Fatalf("expected Outer, got %s", outer.Name())
	}
	inner := d.StructOf(outer.Fields()[0])
	if inner.Name() != "Inner" || len(inner.Fields()) != 3 {
		t.Fatalf("unexpected inner struct: %+v", inner)
	}
	errStream, _ := d.MetaService().StreamByID(MetaErrorStreamID)
	if e := d.EnumOf(errStream.Returns()[0]); e.Name() != MetaErrorEnumName {
		t.Fatalf("expected %s, got %s", MetaErrorEnumName, e.Name())
	}
}

func TestConstantsResolved(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, testDefinitionYAML)
	got := map[string]string{}
	for _, c := range d.Constants() {
		got[c.Name()] = c.CppType()
	}
	want := map[string]string{"max_items": "int32_t", "ratio": "float", "magic": "bytearray"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("constant types (-want +got):\n%s", diff)
	}
	magic := d.Constants()[2].Value()
	if diff := cmp.Diff([]byte{0xca, 0xfe}, magic); diff != "" {
		t.Fatalf("bytearray constant (-want +got):\n%s", diff)
	}
}

func TestDefaultsAndChunkSize(t *testing.T) {
	testlog.Start(t)
	d := mustParse(t, "name: d\nservices:\n  - name: s\n    functions:\n      - name: f\n")
	if d.RxBufferSize() != DefaultBufferSize || d.TxBufferSize() != DefaultBufferSize {
		t.Fatalf("unexpected buffer sizes rx=%d tx=%d", d.RxBufferSize(), d.TxBufferSize())
	}
	if d.DefinitionStreamChunkSize() != DefaultBufferSize-5 {
		t.Fatalf("unexpected chunk size %d", d.DefinitionStreamChunkSize())
	}
}

func TestNewDoesNotMutateRaw(t *testing.T) {
	testlog.Start(t)
	raw, err := ParseRaw(strings.NewReader(testDefinitionYAML))
	if err != nil {
		t.Fatalf("parse raw: %v", err)
	}
	before, _ := Canonical(raw)
	if _, err := New(raw); err != nil {
		t.Fatalf("new: %v", err)
	}
	after, _ := Canonical(raw)
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Fatalf("raw definition changed (-before +after):\n%s", diff)
	}
	if raw.Services[0].ID != nil {
		t.Fatalf("service id written back into raw definition")
	}
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"reserved service name": `
name: x
services:
  - name: LrpcMeta
    functions: [{ name: f }]
`,
		"service id out of range": `
name: x
services:
  - name: s
    id: 255
    functions: [{ name: f }]
`,
		"duplicate service id": `
name: x
services:
  - { name: a, id: 3, functions: [{ name: f }] }
  - { name: b, id: 3, functions: [{ name: f }] }
`,
		"duplicate function id": `
name: x
services:
  - name: s
    functions:
      - { name: a, id: 1 }
      - { name: b, id: 1 }
`,
		"unknown type": `
name: x
services:
  - name: s
    functions:
      - name: f
        params: [{ name: p, type: "@Missing" }]
`,
		"invalid count": `
name: x
services:
  - name: s
    functions:
      - name: f
        params: [{ name: p, type: uint8_t, count: 0 }]
`,
		"invalid origin": `
name: x
services:
  - name: s
    streams: [{ name: st, origin: sideways }]
`,
		"enum id collision": `
name: x
services:
  - name: s
    functions: [{ name: f }]
enums:
  - name: E
    fields: [{ name: a, id: 1 }, { name: b, id: 1 }]
`,
		"meta enum redeclared": `
name: x
services:
  - name: s
    functions: [{ name: f }]
enums:
  - name: LrpcMetaError
    fields: [a]
`,
		"no services": `
name: x
services: []
`,
	}
	for name, src := range cases {
		_, err := Parse([]byte(src))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrInvalidDefinition) {
			t.Fatalf("%s: expected ErrInvalidDefinition, got %v", name, err)
		}
	}
}
