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

// Package segment implements the self-describing columnar row-group
// file format: a schema descriptor, one or more row
// groups of per-column pages, per-column-per-row-group statistics for
// pruning, and a trailing footer bracketed by magic bytes so readers
// can locate it with a byte-range request instead of downloading the
// whole object.
package segment

import "fmt"

// LogicalType is the column's value domain. The log and snapshot row
// shapes (event, entity state, relationship state) only ever need
// these four.
type LogicalType int

const (
	TypeInt64 LogicalType = iota
	TypeString
	TypeBool
	TypeOpaqueMap
)

func (t LogicalType) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeOpaqueMap:
		return "map"
	default:
		return "unknown"
	}
}

func parseLogicalType(s string) (LogicalType, error) {
	switch s {
	case "int64":
		return TypeInt64, nil
	case "string":
		return TypeString, nil
	case "bool":
		return TypeBool, nil
	case "map":
		return TypeOpaqueMap, nil
	}
	return 0, fmt.Errorf("segment: unknown logical type %q", s)
}

// Compression identifies the codec used on one column chunk. Every
// chunk picks its own codec so a caller can, for instance, leave small
// integer columns uncompressed while compressing large opaque-map
// columns.
type Compression int

const (
	Uncompressed Compression = iota
	Snappy
	LZ4
	Gzip
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Uncompressed:
		return "none"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ColumnDef declares one column's name, type, and preferred codec.
type ColumnDef struct {
	Name        string
	Type        LogicalType
	Compression Compression
}

// ColumnStats carries the per-column-per-row-group statistics used for
// predicate pushdown. Min/Max are only meaningful when HasMinMax is
// true (opaque-map columns never set it; an all-null column of any
// type doesn't either).
type ColumnStats struct {
	NullCount int64
	RowCount  int64
	HasMinMax bool
	MinInt    int64
	MaxInt    int64
	MinStr    string
	MaxStr    string
}

// ColumnChunkMeta locates and describes one column's encoded bytes
// within a row group.
type ColumnChunkMeta struct {
	Name               string
	Type               LogicalType
	Compression        Compression
	Offset             int64 // absolute byte offset within the file
	Length             int64 // compressed length on disk
	UncompressedLength int64
	Checksum           uint64 // xxh3 of the compressed bytes, checked before decompression
	Stats              ColumnStats
}

// RowGroupMeta describes one row group's column chunk directory.
type RowGroupMeta struct {
	RowCount int64
	Columns  []ColumnChunkMeta
}

// Footer is the trailing, self-describing part of a segment file: the
// schema plus every row group's column directory. It is the unit
// read_footer materializes from range reads of the file's two ends.
type Footer struct {
	FormatVersion int
	Schema        []ColumnDef
	RowGroups     []RowGroupMeta
}

// ColumnByName returns the column chunk metadata for name within the
// row group, or ok=false if the row group has no such column (which
// ReadRowGroup treats as a CorruptSegment when name was projected).
func (rg RowGroupMeta) ColumnByName(name string) (ColumnChunkMeta, bool) {
	for _, c := range rg.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnChunkMeta{}, false
}

// ColumnStatsAcross folds NullCount/MinInt/MaxInt/MinStr/MaxStr for a
// named column over every row group in the footer, used by the event
// Writer to derive segment-level
// bounds like min_ts/max_ts from the codec's own per-row-group stats
// instead of re-scanning rows.
func (f *Footer) ColumnStatsAcross(name string) (ColumnStats, bool) {
	var out ColumnStats
	found := false
	for _, rg := range f.RowGroups {
		c, ok := rg.ColumnByName(name)
		if !ok {
			continue
		}
		out.RowCount += c.Stats.RowCount
		out.NullCount += c.Stats.NullCount
		if !c.Stats.HasMinMax {
			continue
		}
		if !found {
			out.MinInt, out.MaxInt = c.Stats.MinInt, c.Stats.MaxInt
			out.MinStr, out.MaxStr = c.Stats.MinStr, c.Stats.MaxStr
			out.HasMinMax = true
		} else {
			if c.Stats.MinInt < out.MinInt {
				out.MinInt = c.Stats.MinInt
			}
			if c.Stats.MaxInt > out.MaxInt {
				out.MaxInt = c.Stats.MaxInt
			}
			if c.Stats.MinStr < out.MinStr {
				out.MinStr = c.Stats.MinStr
			}
			if c.Stats.MaxStr > out.MaxStr {
				out.MaxStr = c.Stats.MaxStr
			}
		}
		found = true
	}
	return out, found
}
