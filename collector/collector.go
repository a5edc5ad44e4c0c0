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

// Package collector implements the state Collector: a purely
// in-memory, deterministic fold from an event stream into the latest
// entity and relationship state, last-writer-wins by (ts, seq), keyed
// by the parsed target identifier.
package collector

import (
	"github.com/launix-de/chronostore/eventlog"
	"github.com/launix-de/chronostore/value"
)

// EntityState is one row of the materialized entity table.
type EntityState struct {
	Target       string
	NS, ID       string
	State        value.Map
	Exists       bool
	LastEventTS  int64
	LastEventSeq int64
}

// RelationshipState is one row of the materialized relationship table.
type RelationshipState struct {
	Target       string
	From         string
	Predicate    string
	To           string
	Data         value.Map
	Exists       bool
	LastEventTS  int64
	LastEventSeq int64
}

// Collector folds an ordered (or unordered — the fold is
// order-independent, ties broken by seq) event stream into the latest
// per-target state. It is owned by a single compaction or replay run
// and discarded afterward.
type Collector struct {
	entities      map[string]*EntityState
	relationships map[string]*RelationshipState
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{
		entities:      make(map[string]*EntityState),
		relationships: make(map[string]*RelationshipState),
	}
}

// Process folds one event into its slot. Last-writer-wins: the event
// only updates the slot if (e.TS, e.Seq) is strictly newer than what
// is currently recorded there.
func (c *Collector) Process(e eventlog.Event) {
	pt := eventlog.ParseTarget(e.Target)
	if pt.Kind == eventlog.TargetRelationship {
		c.processRelationship(e, pt)
		return
	}
	c.processEntity(e, pt)
}

func (c *Collector) processEntity(e eventlog.Event, pt eventlog.ParsedTarget) {
	slot, ok := c.entities[e.Target]
	if !ok {
		slot = &EntityState{Target: e.Target, NS: pt.NS, ID: pt.ID}
		c.entities[e.Target] = slot
	}
	if !newer(e.TS, e.Seq, slot.LastEventTS, slot.LastEventSeq, ok) {
		return
	}
	slot.LastEventTS, slot.LastEventSeq = e.TS, e.Seq
	if e.Op == eventlog.OpDelete {
		slot.State = nil
		slot.Exists = false
	} else {
		slot.State = e.After.Clone()
		slot.Exists = true
	}
}

func (c *Collector) processRelationship(e eventlog.Event, pt eventlog.ParsedTarget) {
	slot, ok := c.relationships[e.Target]
	if !ok {
		slot = &RelationshipState{
			Target:    e.Target,
			From:      pt.FromNS + ":" + pt.FromID,
			Predicate: pt.Predicate,
			To:        pt.ToNS + ":" + pt.ToID,
		}
		c.relationships[e.Target] = slot
	}
	if !newer(e.TS, e.Seq, slot.LastEventTS, slot.LastEventSeq, ok) {
		return
	}
	slot.LastEventTS, slot.LastEventSeq = e.TS, e.Seq
	if e.Op == eventlog.OpDelete {
		slot.Data = nil
		slot.Exists = false
	} else {
		slot.Data = e.After.Clone()
		slot.Exists = true
	}
}

// newer reports whether (ts, seq) is strictly newer than the slot's
// current watermark. A brand-new slot (existed == false) always
// accepts the first event that reaches it.
func newer(ts, seq, slotTS, slotSeq int64, existed bool) bool {
	if !existed {
		return true
	}
	if ts != slotTS {
		return ts > slotTS
	}
	return seq > slotSeq
}

// SeedEntities pre-populates slots from a previously written snapshot
// so that replaying the events after the snapshot's cutoff reproduces
// the full-log fold. A seeded slot keeps its own (ts, seq) watermark,
// so an already-folded event replayed twice is a no-op.
func (c *Collector) SeedEntities(rows []EntityState) {
	for _, r := range rows {
		r := r
		r.State = r.State.Clone()
		c.entities[r.Target] = &r
	}
}

// SeedRelationships is SeedEntities for the relationship table.
func (c *Collector) SeedRelationships(rows []RelationshipState) {
	for _, r := range rows {
		r := r
		r.Data = r.Data.Clone()
		c.relationships[r.Target] = &r
	}
}

// ProcessAll folds every event in events, in whatever order given —
// the fold is order-independent within (ts, seq) ties, so callers
// don't need to presort.
func (c *Collector) ProcessAll(events []eventlog.Event) {
	for _, e := range events {
		c.Process(e)
	}
}

// AllEntities returns every entity slot, live or tombstoned, sorted by
// Target for deterministic snapshot encoding.
func (c *Collector) AllEntities() []EntityState {
	out := make([]EntityState, 0, len(c.entities))
	for _, s := range c.entities {
		out = append(out, *s)
	}
	sortEntities(out)
	return out
}

// LiveEntities returns only entities with Exists == true.
func (c *Collector) LiveEntities() []EntityState {
	all := c.AllEntities()
	out := all[:0]
	for _, s := range all {
		if s.Exists {
			out = append(out, s)
		}
	}
	return append([]EntityState(nil), out...)
}

// AllRelationships returns every relationship slot, live or
// tombstoned, sorted by Target.
func (c *Collector) AllRelationships() []RelationshipState {
	out := make([]RelationshipState, 0, len(c.relationships))
	for _, s := range c.relationships {
		out = append(out, *s)
	}
	sortRelationships(out)
	return out
}

// LiveRelationships returns only relationships with Exists == true.
func (c *Collector) LiveRelationships() []RelationshipState {
	all := c.AllRelationships()
	out := all[:0]
	for _, s := range all {
		if s.Exists {
			out = append(out, s)
		}
	}
	return append([]RelationshipState(nil), out...)
}
