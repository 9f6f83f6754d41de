//----------------------------------------------------------------------
// This file is part of leatea-routing.
// Copyright (C) 2022 Bernd Fix >Y<
//
// leatea-routing is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// leatea-routing is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later
//----------------------------------------------------------------------

package topology

import "netemu/core"

// TableEntry is one row of a forwarding table: the cost to reach a node
// and the neighbor to forward through to get there. Self has Cost 0 and a
// nil NextHop.
type TableEntry struct {
	Cost    int
	NextHop *core.NodeID
}

// Table is a forwarding table, keyed by destination node key.
type Table map[string]*TableEntry

// Lookup returns the entry for dst, if any.
func (t Table) Lookup(dst *core.NodeID) (*TableEntry, bool) {
	e, ok := t[dst.Key()]
	return e, ok
}

// BuildTable computes the forwarding table for self over the given
// topology snapshot: Dijkstra with unit edge weights, which collapses to
// plain BFS. Adjacency iteration uses Store.Neighbors, which is sorted by
// key, so the tie-break on equal-cost first-hop discovery is deterministic
// across nodes that agree on the topology.
//
// The table is a pure function of (store, self); it is always rebuilt from
// scratch, never updated incrementally.
func BuildTable(store *Store, self *core.NodeID) Table {
	type pending struct {
		id      *core.NodeID
		cost    int
		nextHop *core.NodeID
	}

	confirmed := make(Table)
	confirmed[self.Key()] = &TableEntry{Cost: 0, NextHop: nil}

	queued := map[string]bool{self.Key(): true}
	var tentative []pending
	for _, n := range store.Neighbors(self) {
		if queued[n.Key()] {
			continue
		}
		queued[n.Key()] = true
		tentative = append(tentative, pending{id: n, cost: 1, nextHop: n})
	}

	for len(tentative) > 0 {
		cur := tentative[0]
		tentative = tentative[1:]

		if _, ok := confirmed[cur.id.Key()]; ok {
			continue
		}
		confirmed[cur.id.Key()] = &TableEntry{Cost: cur.cost, NextHop: cur.nextHop}

		for _, n := range store.Neighbors(cur.id) {
			if queued[n.Key()] {
				continue
			}
			queued[n.Key()] = true
			tentative = append(tentative, pending{id: n, cost: cur.cost + 1, nextHop: cur.nextHop})
		}
	}
	return confirmed
}
