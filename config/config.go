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

// Package config holds chronostore's tunable knobs as a flat
// struct of primitives. Byte-size and duration fields accept
// human-written strings ("64MB", "10m") parsed with
// github.com/docker/go-units rather than hand-rolled parsing.
package config

import (
	"time"

	"github.com/docker/go-units"

	"github.com/launix-de/chronostore/segment"
)

// Config is the single process-wide settings record.
type Config struct {
	DefaultCompression        segment.Compression
	CompactionMinEvents       int64
	CompactionMinBytes        int64
	CompactionMaxAge          time.Duration
	SegmentTargetRows         int
	SegmentTargetBytes        int64
	ReaderRowGroupParallelism int
}

// Default keeps compression off — the safe choice when CPU is more
// scarce than storage — with conservative soft caps borrowed from
// segment's own defaults.
var Default = Config{
	DefaultCompression:        segment.Uncompressed,
	CompactionMinEvents:       100000,
	CompactionMinBytes:        64 << 20,
	CompactionMaxAge:          24 * time.Hour,
	SegmentTargetRows:         segment.DefaultWriterOptions.TargetRows,
	SegmentTargetBytes:        segment.DefaultWriterOptions.TargetBytes,
	ReaderRowGroupParallelism: 4,
}

// Settings is the package-level current configuration: mutate in
// place, then call the relevant component constructors.
var Settings = Default

// ParseCompression maps the enumerated string values to a
// segment.Compression.
func ParseCompression(s string) (segment.Compression, error) {
	switch s {
	case "none", "":
		return segment.Uncompressed, nil
	case "snappy":
		return segment.Snappy, nil
	case "lz4":
		return segment.LZ4, nil
	case "gzip":
		return segment.Gzip, nil
	case "zstd":
		return segment.Zstd, nil
	}
	return 0, &ParseError{Field: "default_compression", Value: s}
}

// ParseByteSize parses a human-written size ("64MB", "1GiB") via
// go-units.
func ParseByteSize(s string) (int64, error) {
	return units.RAMInBytes(s)
}

// ParseDuration parses a Go-style duration ("10m", "2h", "10m30s") with
// time.ParseDuration, falling back to go-units' FromHumanSize for a
// bare number, which is read as seconds ("90" is 90s).
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	ms, err := units.FromHumanSize(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Second, nil
}

// ParseError reports a config field that couldn't be parsed.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return "config: invalid value for " + e.Field + ": " + e.Value
}
