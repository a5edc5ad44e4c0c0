package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/launix-de/chronostore/value"
)

// encodeColumn turns one column's values (nil entries are SQL-style
// nulls) into its uncompressed on-disk byte stream plus the stats
// collected while walking it. Layout:
//
//	[8B row_count][null-bitmap, ceil(row_count/8) bytes][values...]
//
// Null rows contribute nothing to the value stream; non-null rows are
// encoded back to back in row order.
func encodeColumn(def ColumnDef, values []any) ([]byte, ColumnStats, error) {
	n := len(values)
	bitmapLen := (n + 7) / 8
	head := make([]byte, 8+bitmapLen)
	binary.LittleEndian.PutUint64(head[0:8], uint64(n))
	bitmap := head[8:]

	var body []byte
	stats := ColumnStats{RowCount: int64(n)}

	for i, v := range values {
		if v == nil {
			bitmap[i/8] |= 1 << uint(i%8)
			stats.NullCount++
			continue
		}
		switch def.Type {
		case TypeInt64:
			iv, err := toInt64(v)
			if err != nil {
				return nil, ColumnStats{}, err
			}
			var buf [binary.MaxVarintLen64]byte
			k := binary.PutVarint(buf[:], iv)
			body = append(body, buf[:k]...)
			if !stats.HasMinMax {
				stats.MinInt, stats.MaxInt, stats.HasMinMax = iv, iv, true
			} else {
				if iv < stats.MinInt {
					stats.MinInt = iv
				}
				if iv > stats.MaxInt {
					stats.MaxInt = iv
				}
			}
		case TypeString:
			sv, ok := v.(string)
			if !ok {
				return nil, ColumnStats{}, fmt.Errorf("segment: column %q: expected string, got %T", def.Name, v)
			}
			var lbuf [binary.MaxVarintLen64]byte
			k := binary.PutUvarint(lbuf[:], uint64(len(sv)))
			body = append(body, lbuf[:k]...)
			body = append(body, sv...)
			if !stats.HasMinMax {
				stats.MinStr, stats.MaxStr, stats.HasMinMax = sv, sv, true
			} else {
				if sv < stats.MinStr {
					stats.MinStr = sv
				}
				if sv > stats.MaxStr {
					stats.MaxStr = sv
				}
			}
		case TypeBool:
			bv, ok := v.(bool)
			if !ok {
				return nil, ColumnStats{}, fmt.Errorf("segment: column %q: expected bool, got %T", def.Name, v)
			}
			if bv {
				body = append(body, 1)
			} else {
				body = append(body, 0)
			}
			iv := int64(0)
			if bv {
				iv = 1
			}
			if !stats.HasMinMax {
				stats.MinInt, stats.MaxInt, stats.HasMinMax = iv, iv, true
			} else {
				if iv < stats.MinInt {
					stats.MinInt = iv
				}
				if iv > stats.MaxInt {
					stats.MaxInt = iv
				}
			}
		case TypeOpaqueMap:
			mv, ok := v.(value.Map)
			if !ok {
				return nil, ColumnStats{}, fmt.Errorf("segment: column %q: expected value.Map, got %T", def.Name, v)
			}
			enc, err := value.MarshalCanonical(mv)
			if err != nil {
				return nil, ColumnStats{}, fmt.Errorf("segment: column %q: %w", def.Name, err)
			}
			var lbuf [binary.MaxVarintLen64]byte
			k := binary.PutUvarint(lbuf[:], uint64(len(enc)))
			body = append(body, lbuf[:k]...)
			body = append(body, enc...)
			// Opaque maps carry no min/max: there is no total order a
			// pruning predicate could meaningfully use.
		default:
			return nil, ColumnStats{}, fmt.Errorf("segment: unknown logical type %v", def.Type)
		}
	}

	return append(head, body...), stats, nil
}

// decodeColumn is encodeColumn's inverse. The row count comes from the
// 8-byte header at the start of raw and sizes the output.
func decodeColumn(def ColumnDef, raw []byte) ([]any, error) {
	if len(raw) < 8 {
		return nil, corrupt("column stream shorter than header", nil)
	}
	n := int(binary.LittleEndian.Uint64(raw[0:8]))
	bitmapLen := (n + 7) / 8
	if len(raw) < 8+bitmapLen {
		return nil, corrupt("column stream shorter than null bitmap", nil)
	}
	bitmap := raw[8 : 8+bitmapLen]
	body := raw[8+bitmapLen:]

	out := make([]any, n)
	pos := 0
	for i := 0; i < n; i++ {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			out[i] = nil
			continue
		}
		switch def.Type {
		case TypeInt64:
			iv, k := binary.Varint(body[pos:])
			if k <= 0 {
				return nil, corrupt("truncated int64 value", nil)
			}
			out[i] = iv
			pos += k
		case TypeString:
			l, k := binary.Uvarint(body[pos:])
			if k <= 0 {
				return nil, corrupt("truncated string length", nil)
			}
			pos += k
			if pos+int(l) > len(body) {
				return nil, corrupt("truncated string value", nil)
			}
			out[i] = string(body[pos : pos+int(l)])
			pos += int(l)
		case TypeBool:
			if pos >= len(body) {
				return nil, corrupt("truncated bool value", nil)
			}
			out[i] = body[pos] != 0
			pos++
		case TypeOpaqueMap:
			l, k := binary.Uvarint(body[pos:])
			if k <= 0 {
				return nil, corrupt("truncated map length", nil)
			}
			pos += k
			if pos+int(l) > len(body) {
				return nil, corrupt("truncated map value", nil)
			}
			m, err := value.Unmarshal(body[pos : pos+int(l)])
			if err != nil {
				return nil, corrupt("invalid opaque map payload", err)
			}
			out[i] = m
			pos += int(l)
		default:
			return nil, corrupt("unknown logical type in footer", nil)
		}
	}
	return out, nil
}

func toInt64(v any) (int64, error) {
	switch iv := v.(type) {
	case int64:
		return iv, nil
	case int:
		return int64(iv), nil
	case int32:
		return int64(iv), nil
	default:
		return 0, fmt.Errorf("segment: expected int64-compatible value, got %T", v)
	}
}
