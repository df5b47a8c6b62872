package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/danmuck/lotusrpc/internal/client"
	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
)

// printResponse writes one response as aligned name: value lines. Stream
// responses are headed by their index.
func printResponse(w io.Writer, def *schema.Definition, resp client.Response, index int) {
	if se, ok := resp.ServerError(); ok && !isMetaErrorTarget(resp) {
		printServerError(w, se)
		return
	}
	if resp.IsStream {
		fmt.Fprintf(w, "[#%d]\n", index)
	}

	names := responseNames(def, resp)
	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	for _, name := range names {
		fmt.Fprintf(w, "%-*s: %s\n", width, name, formatValue(resp.Payload[name]))
	}
}

func isMetaErrorTarget(resp client.Response) bool {
	return resp.IsExpected && resp.Service == schema.MetaServiceName && resp.Name == schema.MetaErrorStream
}

// responseNames lists the payload keys in declaration order.
func responseNames(def *schema.Definition, resp client.Response) []string {
	var vars []schema.Var
	if fn, ok := def.Function(resp.Service, resp.Name); ok {
		vars = fn.Returns()
	} else if st, ok := def.Stream(resp.Service, resp.Name); ok {
		vars = st.Returns()
	}
	names := make([]string, 0, len(resp.Payload))
	for _, v := range vars {
		if _, ok := resp.Payload[v.Name()]; ok {
			names = append(names, v.Name())
		}
	}
	return names
}

func printServerError(w io.Writer, se *protocol.ServerError) {
	switch se.Type {
	case schema.MetaErrorUnknownService:
		fmt.Fprintf(w, "Server reported call to unknown service with ID %d. Function or stream ID is %d\n", se.P1, se.P2)
	case schema.MetaErrorUnknownFunctionOrStream:
		fmt.Fprintf(w, "Server reported call to unknown function or stream with ID %d in service with ID %d\n", se.P2, se.P1)
	case protocol.OpaqueServerError:
		fmt.Fprintf(w, "Server reported an error with an undecodable payload: [%s]\n", spacedHex(se.Raw))
	default:
		fmt.Fprintf(w, "Server reported an unknown error (type='%s') with the following properties:\n", se.Type)
		fmt.Fprintf(w, "p1=%d\np2=%d\np3=%d\nmessage='%s'\n", se.P1, se.P2, se.P3, se.Message)
	}
}

// formatValue renders decoded values. Integers carry their hex form and
// bytearrays print as space separated hex.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case []byte:
		return "[" + spacedHex(x) + "]"
	case string:
		return x
	case bool:
		return fmt.Sprint(x)
	case []any:
		items := make([]string, len(x))
		for i, item := range x {
			items[i] = formatValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		return fmt.Sprint(x)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 {
			return fmt.Sprintf("%d (-0x%x)", n, uint64(-n))
		}
		return fmt.Sprintf("%d (0x%x)", n, n)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d (0x%x)", rv.Uint(), rv.Uint())
	default:
		return fmt.Sprint(v)
	}
}

func spacedHex(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = hex.EncodeToString(b[i : i+1])
	}
	return strings.Join(parts, " ")
}
