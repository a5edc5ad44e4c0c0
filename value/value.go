/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package value implements the opaque before/after/data maps that flow
// through events and state rows. The core never interprets these beyond
// computing per-column statistics (see segment) and checking
// round-trip equality on replay; schema-aware interpretation belongs to
// the external Schema Layer.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Map is an opaque field->value payload, as carried by Event.Before,
// Event.After, Event.Actor, Event.Metadata, EntityState.State and
// RelationshipState.Data.
type Map map[string]any

// Clone returns a deep copy so callers can mutate a fold's working
// slot without aliasing the event that produced it.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Map:
		return t.Clone()
	case map[string]any:
		return Map(t).Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two maps are equivalent after a round trip
// through MarshalCanonical/Unmarshal. Used by tests to verify the
// codec's only documented invariant for opaque payloads.
func Equal(a, b Map) bool {
	ea, err := MarshalCanonical(a)
	if err != nil {
		return false
	}
	eb, err := MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// MarshalCanonical encodes m as canonical JSON: object keys sorted,
// decimal-looking numbers emitted as exact literals (no float64
// rounding), nested maps and slices recursed into the same way. Two
// semantically-equal maps always produce byte-identical output, which
// is what Equal and the segment codec's round-trip invariant rely on.
func MarshalCanonical(m Map) ([]byte, error) {
	var buf bytes.Buffer
	if m == nil {
		buf.WriteString("null")
		return buf.Bytes(), nil
	}
	if err := encodeValue(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case Map:
		return encodeMap(buf, t)
	case map[string]any:
		return encodeMap(buf, Map(t))
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case decimal.Decimal:
		buf.WriteString(t.String())
		return nil
	case string, bool, int, int64, float64, json.Number:
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	default:
		return fmt.Errorf("value: unsupported type %T in opaque map", v)
	}
}

func encodeMap(buf *bytes.Buffer, m Map) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := encodeValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// Unmarshal decodes canonical (or any valid) JSON into a Map, preferring
// int64 for integral numbers and decimal.Decimal for anything with a
// fractional part or that overflows int64, so replayed values never
// silently lose precision to float64.
func Unmarshal(data []byte) (Map, error) {
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return Map(transform(raw).(map[string]any)), nil
}

func transform(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = transform(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = transform(e)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
		f, _ := t.Float64()
		return f
	default:
		return v
	}
}
