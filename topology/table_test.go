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

import (
	"testing"

	"netemu/core"
)

func TestBuildTableLine(t *testing.T) {
	a, b, c := id(1), id(2), id(3)
	s := NewStore(a)
	s.Link(a, b)
	s.Link(b, c)

	tbl := BuildTable(s, a)
	self, ok := tbl.Lookup(a)
	if !ok || self.Cost != 0 || self.NextHop != nil {
		t.Fatalf("self entry wrong: %+v", self)
	}
	nb, ok := tbl.Lookup(b)
	if !ok || nb.Cost != 1 || !nb.NextHop.Equal(b) {
		t.Fatalf("b entry wrong: %+v", nb)
	}
	far, ok := tbl.Lookup(c)
	if !ok || far.Cost != 2 || !far.NextHop.Equal(b) {
		t.Fatalf("c entry wrong, want cost=2 nextHop=b: %+v", far)
	}
}

func TestBuildTableIdempotent(t *testing.T) {
	a, b, c := id(1), id(2), id(3)
	s := NewStore(a)
	s.Link(a, b)
	s.Link(a, c)
	s.Link(b, c)

	t1 := BuildTable(s, a)
	t2 := BuildTable(s, a)
	if len(t1) != len(t2) {
		t.Fatalf("table sizes differ across rebuilds")
	}
	for k, e1 := range t1 {
		e2, ok := t2[k]
		if !ok || e1.Cost != e2.Cost || !sameNextHop(e1.NextHop, e2.NextHop) {
			t.Fatalf("entry %s differs across rebuilds: %+v vs %+v", k, e1, e2)
		}
	}
}

func sameNextHop(a, b *core.NodeID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(b)
}

func TestBuildTableNextHopIsNeighbor(t *testing.T) {
	a, b, c, d := id(1), id(2), id(3), id(4)
	s := NewStore(a)
	s.Link(a, b)
	s.Link(b, c)
	s.Link(c, d)

	tbl := BuildTable(s, a)
	for _, n := range s.Nodes() {
		if n.Equal(a) {
			continue
		}
		e, ok := tbl.Lookup(n)
		if !ok {
			t.Fatalf("missing entry for %s", n)
		}
		nbrs := s.Neighbors(a)
		found := false
		for _, nb := range nbrs {
			if nb.Equal(e.NextHop) {
				found = true
			}
		}
		if !found {
			t.Fatalf("next hop %s for %s is not a neighbor of self", e.NextHop, n)
		}
	}
}

func TestBuildTableDisconnectedOmitted(t *testing.T) {
	a, b, c := id(1), id(2), id(3)
	s := NewStore(a)
	s.Link(a, b)
	s.Link(c, id(4)) // disconnected component, never pruned in this test

	tbl := BuildTable(s, a)
	if _, ok := tbl.Lookup(c); ok {
		t.Fatalf("table contains unreachable node c")
	}
}
