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

// Package topology holds the undirected adjacency map each node keeps of
// the network it has learned about via hello probing and LSA flooding, and
// the shortest-path forwarding-table builder derived from it.
package topology

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bfix/gospel/data"

	"netemu/core"
)

//----------------------------------------------------------------------
// Store is an undirected adjacency map over node ids. Every structural
// edit (Link, Unlink, ReplaceNeighbors) must be followed by PruneFrom(self)
// to restore the connected-component invariant; the routing plane is
// responsible for calling it, keeping mutation and consistency-checking
// as separate steps.
//----------------------------------------------------------------------

// Store holds the topology as seen by one node.
type Store struct {
	sync.RWMutex
	self *core.NodeID
	ids  map[string]*core.NodeID    // key -> canonical id, for every node currently known
	adj  map[string]map[string]bool // key -> set of neighbor keys
}

// NewStore creates an empty topology store rooted at self.
func NewStore(self *core.NodeID) *Store {
	s := &Store{
		self: self,
		ids:  make(map[string]*core.NodeID),
		adj:  make(map[string]map[string]bool),
	}
	s.ids[self.Key()] = self
	s.adj[self.Key()] = make(map[string]bool)
	return s
}

func (s *Store) remember(n *core.NodeID) {
	key := n.Key()
	if _, ok := s.ids[key]; !ok {
		s.ids[key] = n
	}
	if _, ok := s.adj[key]; !ok {
		s.adj[key] = make(map[string]bool)
	}
}

// Link adds an undirected edge between u and v idempotently. No-op if u
// and v are the same node (no self-loops).
func (s *Store) Link(u, v *core.NodeID) {
	s.Lock()
	defer s.Unlock()
	s.link(u, v)
}

func (s *Store) link(u, v *core.NodeID) {
	if u.Equal(v) {
		return
	}
	s.remember(u)
	s.remember(v)
	s.adj[u.Key()][v.Key()] = true
	s.adj[v.Key()][u.Key()] = true
}

// Unlink removes the edge between u and v, in both directions, if present.
func (s *Store) Unlink(u, v *core.NodeID) {
	s.Lock()
	defer s.Unlock()
	if nbrs, ok := s.adj[u.Key()]; ok {
		delete(nbrs, v.Key())
	}
	if nbrs, ok := s.adj[v.Key()]; ok {
		delete(nbrs, u.Key())
	}
}

// ReplaceNeighbors sets adj[u] := N, and links every n in N back to u. It
// does not remove stale back-edges pointing at u from nodes no longer in
// N; PruneFrom(self) discards anything that falls out of reach.
func (s *Store) ReplaceNeighbors(u *core.NodeID, neighbors []*core.NodeID) {
	s.Lock()
	defer s.Unlock()
	s.remember(u)
	fresh := make(map[string]bool, len(neighbors))
	for _, n := range neighbors {
		if n.Equal(u) {
			continue
		}
		fresh[n.Key()] = true
	}
	s.adj[u.Key()] = fresh
	for _, n := range neighbors {
		s.link(u, n)
	}
}

// Neighbors returns the neighbors of u in a deterministic (sorted-key)
// order, so two nodes iterating the same topology agree on traversal order.
func (s *Store) Neighbors(u *core.NodeID) []*core.NodeID {
	s.RLock()
	defer s.RUnlock()
	return s.neighborsLocked(u)
}

func (s *Store) neighborsLocked(u *core.NodeID) []*core.NodeID {
	nbrs, ok := s.adj[u.Key()]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(nbrs))
	for k := range nbrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*core.NodeID, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.ids[k])
	}
	return out
}

// NeighborSet returns the neighbor set of u as a sorted slice of canonical
// key strings, used to compare advertised LSA neighbor sets for equality.
func (s *Store) NeighborSet(u *core.NodeID) []string {
	s.RLock()
	defer s.RUnlock()
	nbrs, ok := s.adj[u.Key()]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(nbrs))
	for k := range nbrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Nodes returns every node id currently known, self included, sorted.
func (s *Store) Nodes() []*core.NodeID {
	s.RLock()
	defer s.RUnlock()
	keys := make([]string, 0, len(s.ids))
	for k := range s.ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*core.NodeID, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.ids[k])
	}
	return out
}

// Has reports whether u is currently known (has an adjacency entry, even
// an empty one).
func (s *Store) Has(u *core.NodeID) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.adj[u.Key()]
	return ok
}

// Filter returns a freshly-salted bloom filter over every node id currently
// known (self included): a compact fingerprint of "what this node knows about" that a
// remote party can probe with Contains without learning the full id set.
// Rebuilt on demand rather than kept incrementally, matching the rest of
// this store's "recompute from current state" design.
func (s *Store) Filter() *data.SaltedBloomFilter {
	s.RLock()
	defer s.RUnlock()
	n := len(s.ids) + 1
	fpr := 1. / float64(n)
	pf := data.NewSaltedBloomFilter(core.RndUint32(), n, fpr)
	for k := range s.ids {
		pf.Add([]byte(k))
	}
	return pf
}

// PruneFrom recomputes reachability from root and discards every node (and
// its edges) not in the connected component containing root. This is the
// invariant-restoration step that must follow every structural edit.
func (s *Store) PruneFrom(root *core.NodeID) {
	s.Lock()
	defer s.Unlock()
	reachable := map[string]bool{root.Key(): true}
	queue := []string{root.Key()}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for nbr := range s.adj[cur] {
			if !reachable[nbr] {
				reachable[nbr] = true
				queue = append(queue, nbr)
			}
		}
	}
	for key := range s.adj {
		if !reachable[key] {
			delete(s.adj, key)
			delete(s.ids, key)
			continue
		}
		for nbr := range s.adj[key] {
			if !reachable[nbr] {
				delete(s.adj[key], nbr)
			}
		}
	}
}

// String returns a human-readable snapshot of the adjacency map, sorted for
// reproducible output.
func (s *Store) String() string {
	s.RLock()
	defer s.RUnlock()
	keys := make([]string, 0, len(s.adj))
	for k := range s.adj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		nbrs := s.neighborsLocked(s.ids[k])
		strs := make([]string, len(nbrs))
		for j, n := range nbrs {
			strs[j] = n.Key()
		}
		out += fmt.Sprintf("%s:%v", k, strs)
	}
	return out + "}"
}
