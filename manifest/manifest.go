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

// Package manifest implements the Manifest Manager: the single
// serialization point for a dataset's segment list and sequence
// counters. The manifest is never patched in place — every save
// serializes the whole record and publishes it with a conditional
// write, so concurrent writers race on the etag instead of corrupting
// each other.
package manifest

import (
	"encoding/json"
	"sort"
)

// SegmentDescriptor records one live segment's identity and bounds.
// Size and row-count fields are believed rather than re-derived: the
// segment codec footer is the source of truth at write time.
type SegmentDescriptor struct {
	Seq       int64  `json:"seq"`
	Path      string `json:"path"`
	MinTS     int64  `json:"min_ts"`
	MaxTS     int64  `json:"max_ts"`
	MinSeq    int64  `json:"min_seq"`
	MaxSeq    int64  `json:"max_seq"`
	RowCount  int64  `json:"row_count"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt int64  `json:"created_at"`
}

func (d SegmentDescriptor) GetKey() int64    { return d.Seq }
func (d SegmentDescriptor) ComputeSize() uint { return 64 }

// Manifest is the versioned index of a dataset's live segments and
// counters. Unknown carries forward any top-level keys a newer writer
// added that this version doesn't model; they are written back
// verbatim on save.
type Manifest struct {
	Version          int                        `json:"version"`
	Dataset          string                     `json:"dataset"`
	Segments         []SegmentDescriptor        `json:"segments"`
	NextEventSeq     int64                      `json:"next_event_seq"`
	NextSegmentSeq   int64                      `json:"next_segment_seq"`
	TotalEvents      int64                      `json:"total_events"`
	CompactedThrough *int64                     `json:"compacted_through"`
	UpdatedAt        int64                      `json:"updated_at"`
	Unknown          map[string]json.RawMessage `json:"-"`
}

const schemaVersion = 1

func newEmptyManifest(dataset string) *Manifest {
	return &Manifest{
		Version:        schemaVersion,
		Dataset:        dataset,
		NextEventSeq:   1,
		NextSegmentSeq: 1,
	}
}

// sortSegments keeps the canonical ordering: min_ts ascending, ties
// broken by seq.
func sortSegments(segs []SegmentDescriptor) {
	sort.Slice(segs, func(i, j int) bool {
		if segs[i].MinTS != segs[j].MinTS {
			return segs[i].MinTS < segs[j].MinTS
		}
		return segs[i].Seq < segs[j].Seq
	})
}

// marshal serializes m, re-inserting any preserved unknown top-level
// keys so a round trip through an older or newer writer doesn't lose
// fields this version doesn't model.
func marshal(m *Manifest) ([]byte, error) {
	type alias Manifest
	base, err := json.Marshal((*alias)(m))
	if err != nil {
		return nil, err
	}
	if len(m.Unknown) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Unknown {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

var knownTopLevelKeys = map[string]bool{
	"version": true, "dataset": true, "segments": true,
	"next_event_seq": true, "next_segment_seq": true, "total_events": true,
	"compacted_through": true, "updated_at": true,
}

func unmarshal(data []byte) (*Manifest, error) {
	type alias Manifest
	var m alias
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	unknown := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownTopLevelKeys[k] {
			unknown[k] = v
		}
	}
	out := Manifest(m)
	out.Unknown = unknown
	return &out, nil
}
