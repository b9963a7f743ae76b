// Package chain builds and verifies the tamper-evident hash chain that
// freezes an evidence pack. Canonicalization lives here too: hashing is
// only reproducible if the same logical content always serializes to the
// same bytes.
package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonical serializes v with sorted keys and minimal separators. The
// output is the hashing form only; display formatting is the codec's
// concern. The function is total over anything json.Marshal accepts.
func Canonical(v any) ([]byte, error) {
	plain, err := toPlain(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sortValue(plain))
}

// LegacyJSON serializes v in the older chain-entry form: sorted keys with
// ", " and ": " separators. Only the v1 chain algorithm uses it; nothing
// new should.
func LegacyJSON(v any) ([]byte, error) {
	plain, err := toPlain(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeLegacy(&buf, plain); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toPlain round-trips v through JSON so structs, maps, and slices all
// collapse to the same generic shape before key ordering is applied.
func toPlain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	var plain any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return plain, nil
}

// sortValue recursively rewrites maps into key-ordered wrappers
func sortValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		om := orderedMap{keys: make([]string, 0, len(t)), values: t}
		for k := range t {
			om.keys = append(om.keys, k)
		}
		sort.Strings(om.keys)
		return om
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = sortValue(elem)
		}
		return out
	default:
		return v
	}
}

// orderedMap marshals its entries in the key order fixed at construction
type orderedMap struct {
	keys   []string
	values map[string]any
}

func (om orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(sortValue(om.values[k]))
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeLegacy(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteString(": ")
			if err := writeLegacy(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := writeLegacy(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		scalar, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(scalar)
	}
	return nil
}
