package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// maxInlineListItems bounds how many small list items are canonicalized
// inline as a tuple before falling back to the hash-of-JSON form.
const maxInlineListItems = 16

// KeyParams describes the inputs of a cache key: a topic (function or
// operation identity), positional arguments, and named arguments. Named
// arguments are canonicalized in sorted key order.
type KeyParams struct {
	Topic string
	Args  []any
	Named map[string]any
}

// Key builds the canonical 256-bit hex key for a topic and positional
// arguments. This is the single key canonicalization used everywhere;
// call sites must not roll their own variants.
func Key(topic string, args ...any) string {
	return KeyFor(KeyParams{Topic: topic, Args: args})
}

// KeyFor builds the canonical key from full KeyParams.
func KeyFor(p KeyParams) string {
	var sb strings.Builder
	sb.WriteString(p.Topic)
	for _, a := range p.Args {
		sb.WriteByte('|')
		sb.WriteString(canonicalize(a))
	}
	if len(p.Named) > 0 {
		names := make([]string, 0, len(p.Named))
		for k := range p.Named {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			sb.WriteByte('|')
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(canonicalize(p.Named[k]))
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalize normalizes one argument: primitives pass through, enums
// (Stringers) use their wire value, short lists of small items become
// tuples, everything else becomes a hash of its JSON form.
func canonicalize(v any) string {
	switch t := v.(type) {
	case nil:
		return "nil"
	case string:
		return t
	case bool:
		return fmt.Sprintf("%t", t)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case float32, float64:
		return fmt.Sprintf("%v", t)
	case fmt.Stringer:
		return t.String()
	case []string:
		if len(t) <= maxInlineListItems {
			return "(" + strings.Join(t, ",") + ")"
		}
	}

	rv := reflect.ValueOf(v)
	// Enums defined as string types pass through as their wire value.
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	if rv.Kind() == reflect.Slice && rv.Len() <= maxInlineListItems {
		parts := make([]string, rv.Len())
		small := true
		for i := 0; i < rv.Len(); i++ {
			parts[i] = canonicalize(rv.Index(i).Interface())
			if len(parts[i]) > 64 {
				small = false
				break
			}
		}
		if small {
			return "(" + strings.Join(parts, ",") + ")"
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
