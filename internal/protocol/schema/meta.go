package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Identity of the built-in meta service.
const (
	MetaServiceName        = "LrpcMeta"
	MetaServiceID          = 255
	MetaErrorEnumName      = "LrpcMetaError"
	MetaErrorStream        = "error"
	MetaErrorStreamID      = 0
	MetaDefinitionStream   = "definition"
	MetaDefinitionStreamID = 1
	MetaVersionFunction    = "version"
	MetaVersionFunctionID  = 128

	// MaxUserServiceID is the highest id a user service may take.
	MaxUserServiceID = MetaServiceID - 1
)

// LrpcMetaError field names.
const (
	MetaErrorUnknownService          = "UnknownService"
	MetaErrorUnknownFunctionOrStream = "UnknownFunctionOrStream"
)

//go:embed meta.lrpc.yaml
var metaSource []byte

var metaFragment = sync.OnceValues(func() (RawDefinition, error) {
	var raw RawDefinition
	if err := yaml.Unmarshal(metaSource, &raw); err != nil {
		return RawDefinition{}, fmt.Errorf("schema: load meta fragment: %w", err)
	}
	return raw, nil
})
