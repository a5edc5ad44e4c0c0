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

// Package eventlog holds the write and read paths of the event log:
// the Writer turns an accepted batch of events into a new, atomically
// published segment, and the Reader scans published segments back out
// in (ts, seq) order with row-group pruning.
package eventlog

import (
	"encoding/binary"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/launix-de/chronostore/value"
)

// Op is the event's kind.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

func ParseOp(s string) (Op, bool) {
	switch s {
	case "CREATE":
		return OpCreate, true
	case "UPDATE":
		return OpUpdate, true
	case "DELETE":
		return OpDelete, true
	default:
		return 0, false
	}
}

// Event is the atomic unit of change. Seq is assigned
// by the Manifest at publish time and is zero on a caller-built event
// awaiting Publish.
type Event struct {
	ID       string
	TS       int64
	Seq      int64
	Op       Op
	Target   string
	Before   value.Map
	After    value.Map
	Actor    value.Map
	Metadata value.Map
}

// Less implements the strict total order over events: (ts, seq).
func Less(a, b Event) bool {
	if a.TS != b.TS {
		return a.TS < b.TS
	}
	return a.Seq < b.Seq
}

// idCounter backs NewID: a monotonic counter folded with a timestamp
// instead of reading from the OS CSPRNG on every call, so a hot write
// path never stalls on the entropy pool.
var idCounter uint64 = uint64(time.Now().UnixNano())

// NewID generates a globally unique opaque event id in the uuid
// package's canonical string form.
func NewID() string {
	ctr := atomic.AddUint64(&idCounter, 1)
	now := uint64(time.Now().UnixNano())
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], ctr)
	binary.LittleEndian.PutUint64(b[8:16], ctr^now^(now<<17))
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return uuid.UUID(b).String()
}

// TargetKind distinguishes the two shapes a target string can take:
// an entity (ns:id) or a relationship (ns:id:predicate:ns:id).
type TargetKind int

const (
	TargetEntity TargetKind = iota
	TargetRelationship
)

// ParsedTarget is the structured form of a target string, computed by
// ParseTarget for anything that needs ns/id/predicate (the Collector,
// chiefly). Nothing else ever interprets ns or id.
type ParsedTarget struct {
	Kind       TargetKind
	NS, ID     string
	FromNS     string
	FromID     string
	Predicate  string
	ToNS       string
	ToID       string
}

// ParseTarget splits a `:`-delimited target string. Exactly two parts
// is an entity (ns:id); exactly five parts is a relationship
// (ns:id:predicate:ns:id); anything else falls back to an entity
// target.
func ParseTarget(target string) ParsedTarget {
	parts := strings.Split(target, ":")
	if len(parts) == 5 {
		return ParsedTarget{
			Kind:      TargetRelationship,
			FromNS:    parts[0],
			FromID:    parts[1],
			Predicate: parts[2],
			ToNS:      parts[3],
			ToID:      parts[4],
		}
	}
	if len(parts) == 2 {
		return ParsedTarget{Kind: TargetEntity, NS: parts[0], ID: parts[1]}
	}
	// Malformed or unexpected shape: fall back to treating the whole
	// string as an opaque entity id under an empty namespace rather
	// than failing the fold.
	return ParsedTarget{Kind: TargetEntity, NS: "", ID: target}
}
