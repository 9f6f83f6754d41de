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

// Package routing implements the link-state routing plane: hello probing,
// neighbor liveness, sequenced LSA origination/flooding, and the topology
// and forwarding-table rebuilds they drive.
package routing

import (
	"log"
	"sync"

	"github.com/bfix/gospel/data"

	"netemu/core"
	"netemu/topology"
)

// Sender is the minimal UDP transmit surface the routing plane needs. node
// package wires this to the real socket; tests wire it to a recorder.
type Sender interface {
	SendTo(b []byte, dst *core.NodeID)
}

// Plane owns one node's routing state: its topology view, LSA sequence
// cache, neighbor liveness map, local sequence counter, and forwarding
// table. The node's trace forwarding reads this table; the data-plane
// forwarder uses its own rule table instead. Only the node event loop
// mutates the plane; mu serializes that against readers on other
// goroutines such as the snapshot handler.
type Plane struct {
	mu sync.Mutex

	self  *core.NodeID
	out   Sender
	store *topology.Store

	liveness map[string]core.Millis // neighbor key -> last hello time
	lsaCache map[string]uint32      // originator key -> highest seq seen
	lsaAge   map[string]core.Millis // originator key -> when high-water last moved

	seq   uint32
	table topology.Table

	listener core.Listener
}

// New creates a routing plane for self, flooding over out, with an empty
// topology and table.
func New(self *core.NodeID, out Sender, listener core.Listener) *Plane {
	store := topology.NewStore(self)
	p := &Plane{
		self:     self,
		out:      out,
		store:    store,
		liveness: make(map[string]core.Millis),
		lsaCache: make(map[string]uint32),
		lsaAge:   make(map[string]core.Millis),
		listener: listener,
	}
	p.table = topology.BuildTable(store, self)
	return p
}

func (p *Plane) notify(evType int, ref *core.NodeID, val int) {
	if p.listener != nil {
		p.listener(&core.Event{Type: evType, Peer: p.self, Ref: ref, Val: val})
	}
}

// Table returns the current forwarding table. Safe to call concurrently
// with the event loop's own single-goroutine mutation, since Go map reads
// after the owning goroutine rebuilds the table are fine as long as no
// write races it; the node loop is the sole writer.
func (p *Plane) Table() topology.Table {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.table
}

// Filter returns a bloom filter over every node id this plane currently
// knows about (via its topology store), for diagnostic membership probes.
func (p *Plane) Filter() *data.SaltedBloomFilter {
	return p.store.Filter()
}

func (p *Plane) rebuildTable() {
	p.table = topology.BuildTable(p.store, p.self)
	p.notify(core.EvTableRebuilt, nil, len(p.table))
}

//----------------------------------------------------------------------
// Hello timer and handling
//----------------------------------------------------------------------

// EmitHellos sends a hello to every current neighbor. Called every T_hello.
func (p *Plane) EmitHellos() {
	p.mu.Lock()
	nbrs := p.store.Neighbors(p.self)
	p.mu.Unlock()

	h := &core.Hello{IP: selfIPBytes(p.self), Port: p.self.Port}
	frame := core.EncodeHello(h)
	for _, n := range nbrs {
		p.out.SendTo(frame, n)
		p.notify(core.EvHelloSent, n, 0)
	}
}

// HandleHello processes a received hello from src.
func (p *Plane) HandleHello(src *core.NodeID) {
	p.mu.Lock()

	p.liveness[src.Key()] = core.Now()
	p.notify(core.EvHelloRecv, src, 0)

	var lsa *core.LSA
	var nbrs []*core.NodeID
	if !p.isNeighborLocked(src) {
		p.store.Link(p.self, src)
		p.store.PruneFrom(p.self)
		p.rebuildTable()
		p.notify(core.EvNeighborUp, src, 0)
		lsa, nbrs = p.buildLSALocked()
	}
	p.mu.Unlock()

	if lsa != nil {
		p.flood(lsa, nbrs, nil)
	}
}

func (p *Plane) isNeighborLocked(n *core.NodeID) bool {
	for _, nb := range p.store.Neighbors(p.self) {
		if nb.Equal(n) {
			return true
		}
	}
	return false
}

//----------------------------------------------------------------------
// LSA origination, flooding and reception
//----------------------------------------------------------------------

// EmitLSA originates a fresh LSA listing current neighbors and floods it.
// Called every T_lsa, and immediately on neighbor-up/neighbor-death events.
func (p *Plane) EmitLSA() {
	p.mu.Lock()
	lsa, nbrs := p.buildLSALocked()
	p.mu.Unlock()
	p.flood(lsa, nbrs, nil)
}

// buildLSALocked assembles the next self-originated LSA and records its
// sequence number in the cache. The caller floods it after releasing the
// mutex: sends must not happen under the lock, or a flood that loops back
// around a topology cycle would re-enter this plane while it is held.
func (p *Plane) buildLSALocked() (*core.LSA, []*core.NodeID) {
	p.seq++
	nbrs := p.store.Neighbors(p.self)
	lsa := &core.LSA{
		OriginIP:   selfIPBytes(p.self),
		OriginPort: p.self.Port,
		Seq:        p.seq,
		TTL:        uint32(core.GetConfig().LSATTL),
		Neighbors:  make([]core.LSANeighbor, len(nbrs)),
	}
	for i, n := range nbrs {
		lsa.Neighbors[i] = core.LSANeighbor{IP: selfIPBytes(n), Port: n.Port, Cost: 1}
	}
	p.lsaCache[p.self.Key()] = p.seq
	p.notify(core.EvLSAOriginated, nil, int(p.seq))
	return lsa, nbrs
}

// flood sends an LSA frame to every neighbor except exclude (the wire hop
// it was just received from, if any — split-horizon on the hop, not the
// originator). Never called with p.mu held.
func (p *Plane) flood(lsa *core.LSA, nbrs []*core.NodeID, exclude *core.NodeID) {
	frame := core.EncodeLSA(lsa)
	for _, n := range nbrs {
		if exclude != nil && n.Equal(exclude) {
			continue
		}
		p.out.SendTo(frame, n)
	}
}

// HandleLSA processes an LSA received from the wire neighbor sender.
func (p *Plane) HandleLSA(lsa *core.LSA, sender *core.NodeID) {
	p.mu.Lock()

	originator := core.NewNodeID(ipFromLSA(lsa.OriginIP), lsa.OriginPort)
	if originator.Equal(p.self) {
		p.mu.Unlock()
		return
	}
	okey := originator.Key()
	if seen, ok := p.lsaCache[okey]; ok && lsa.Seq <= seen {
		p.notify(core.EvLSAStale, originator, int(lsa.Seq))
		p.mu.Unlock()
		return
	}
	p.lsaCache[okey] = lsa.Seq
	p.lsaAge[okey] = core.Now()
	p.notify(core.EvLSAReceived, originator, int(lsa.Seq))

	advertised := make([]string, len(lsa.Neighbors))
	advertisedIDs := make([]*core.NodeID, len(lsa.Neighbors))
	for i, nb := range lsa.Neighbors {
		n := core.NewNodeID(ipFromLSA(nb.IP), nb.Port)
		advertisedIDs[i] = n
		advertised[i] = n.Key()
	}
	if !core.SameSet(p.store.NeighborSet(originator), advertised) {
		p.store.ReplaceNeighbors(originator, advertisedIDs)
		p.store.PruneFrom(p.self)
		p.rebuildTable()
	}

	// decrement first, then decide: a frame arriving with ttl=1 has spent
	// its budget and is not put back on the wire.
	var nbrs []*core.NodeID
	reflood := false
	if lsa.TTL > 0 {
		lsa.TTL--
		reflood = lsa.TTL > 0
	}
	if reflood {
		nbrs = p.store.Neighbors(p.self)
		p.notify(core.EvLSAFlooded, originator, int(lsa.TTL))
	}
	p.mu.Unlock()

	if reflood {
		p.flood(lsa, nbrs, sender)
	}
}

//----------------------------------------------------------------------
// Neighbor death
//----------------------------------------------------------------------

// CheckDeadNeighbors scans liveness and unlinks any neighbor whose last
// hello is older than T_dead, rebuilding the table and re-originating an
// LSA for every neighbor it removes. Called every loop iteration; cheap
// since the map is small in practice (one entry per live neighbor).
func (p *Plane) CheckDeadNeighbors() {
	p.mu.Lock()
	dead := p.deadNeighborsLocked()
	for _, n := range dead {
		p.store.Unlink(p.self, n)
		delete(p.liveness, n.Key())
	}
	if len(dead) > 0 {
		p.store.PruneFrom(p.self)
		p.rebuildTable()
	}
	p.mu.Unlock()

	for _, n := range dead {
		p.notify(core.EvNeighborExpired, n, 0)
		log.Printf("%s: neighbor %s expired", p.self, n)
	}
	if len(dead) > 0 {
		p.EmitLSA()
	}
}

// ReapStaleLSACache drops lsaCache/lsaAge entries whose high-water mark
// hasn't moved in Config.ReapLSAAge ms. A no-op when the knob is left at its
// default of 0 (never reap). Self's own entry is never reaped, since
// it is refreshed on every LSA origination regardless of peer activity.
func (p *Plane) ReapStaleLSACache() {
	age := core.GetConfig().ReapLSAAge
	if age <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := core.Millis(age)
	selfKey := p.self.Key()
	for key, last := range p.lsaAge {
		if key == selfKey {
			continue
		}
		if last.Expired(deadline) {
			delete(p.lsaCache, key)
			delete(p.lsaAge, key)
			p.notify(core.EvLSAReaped, nil, 0)
		}
	}
}

func (p *Plane) deadNeighborsLocked() []*core.NodeID {
	deadline := core.Millis(core.GetConfig().DeadIntv)
	var dead []*core.NodeID
	for _, n := range p.store.Neighbors(p.self) {
		last, ok := p.liveness[n.Key()]
		if !ok {
			continue
		}
		if last.Expired(deadline) {
			dead = append(dead, n)
		}
	}
	return dead
}

func selfIPBytes(n *core.NodeID) [4]byte {
	var b [4]byte
	copy(b[:], n.Bytes())
	return b
}

func ipFromLSA(ip [4]byte) []byte {
	return []byte{ip[0], ip[1], ip[2], ip[3]}
}
