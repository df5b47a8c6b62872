package schema

import (
	"gopkg.in/yaml.v3"
)

// RawDefinition is the unresolved definition as written in a
// .lrpc.yaml file.
type RawDefinition struct {
	Name                 string        `yaml:"name"`
	Version              string        `yaml:"version,omitempty"`
	Namespace            string        `yaml:"namespace,omitempty"`
	RxBufferSize         int           `yaml:"rx_buffer_size,omitempty"`
	TxBufferSize         int           `yaml:"tx_buffer_size,omitempty"`
	EmbedDefinition      bool          `yaml:"embed_definition,omitempty"`
	DefinitionHashLength int           `yaml:"definition_hash_length,omitempty"`
	Services             []RawService  `yaml:"services"`
	Structs              []RawStruct   `yaml:"structs,omitempty"`
	Enums                []RawEnum     `yaml:"enums,omitempty"`
	Constants            []RawConstant `yaml:"constants,omitempty"`
}

type RawService struct {
	Name      string        `yaml:"name"`
	ID        *int          `yaml:"id,omitempty"`
	Functions []RawFunction `yaml:"functions,omitempty"`
	Streams   []RawStream   `yaml:"streams,omitempty"`
	// FunctionsBeforeStreams controls id auto-assignment order. When unset
	// it follows the key order of "functions" and "streams" in the YAML
	// source, defaulting to functions first.
	FunctionsBeforeStreams *bool `yaml:"functions_before_streams,omitempty"`
}

type RawFunction struct {
	Name    string   `yaml:"name"`
	ID      *int     `yaml:"id,omitempty"`
	Params  []RawVar `yaml:"params,omitempty"`
	Returns []RawVar `yaml:"returns,omitempty"`
}

type RawStream struct {
	Name    string   `yaml:"name"`
	ID      *int     `yaml:"id,omitempty"`
	Origin  string   `yaml:"origin"`
	Finite  bool     `yaml:"finite,omitempty"`
	Params  []RawVar `yaml:"params,omitempty"`
	Returns []RawVar `yaml:"returns,omitempty"`
}

// RawVar is a named value. Count is an integer array size, "?" for an
// optional value, or absent for exactly one.
type RawVar struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Count any    `yaml:"count,omitempty"`
}

type RawStruct struct {
	Name              string   `yaml:"name"`
	Fields            []RawVar `yaml:"fields"`
	External          string   `yaml:"external,omitempty"`
	ExternalNamespace string   `yaml:"external_namespace,omitempty"`
}

type RawEnum struct {
	Name              string         `yaml:"name"`
	Fields            []RawEnumField `yaml:"fields"`
	External          string         `yaml:"external,omitempty"`
	ExternalNamespace string         `yaml:"external_namespace,omitempty"`
}

// RawEnumField accepts both a bare name and a {name, id} mapping.
type RawEnumField struct {
	Name string `yaml:"name"`
	ID   *int   `yaml:"id,omitempty"`
}

type RawConstant struct {
	Name    string `yaml:"name"`
	Value   any    `yaml:"value"`
	CppType string `yaml:"cppType,omitempty"`
}

func (s *RawService) UnmarshalYAML(value *yaml.Node) error {
	type plain RawService
	if err := value.Decode((*plain)(s)); err != nil {
		return err
	}
	if s.FunctionsBeforeStreams != nil || value.Kind != yaml.MappingNode {
		return nil
	}
	functionsAt, streamsAt := -1, -1
	for i := 0; i+1 < len(value.Content); i += 2 {
		switch value.Content[i].Value {
		case "functions":
			functionsAt = i
		case "streams":
			streamsAt = i
		}
	}
	if functionsAt < 0 || streamsAt < 0 {
		return nil
	}
	first := functionsAt < streamsAt
	s.FunctionsBeforeStreams = &first
	return nil
}

func (f *RawEnumField) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		f.Name = value.Value
		f.ID = nil
		return nil
	}
	type plain RawEnumField
	return value.Decode((*plain)(f))
}

// functionsFirst resolves the id assignment order of a service.
func (s RawService) functionsFirst() bool {
	return s.FunctionsBeforeStreams == nil || *s.FunctionsBeforeStreams
}
