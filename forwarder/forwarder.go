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

package forwarder

import (
	"log"
	"math/rand"

	"netemu/core"
)

// RuleTable looks up the forwarding rule for a destination. Populated once
// at startup by the loader package and never mutated afterward.
type RuleTable interface {
	Lookup(dst *core.NodeID) (*Rule, bool)
}

// Sender emits a finished datagram on the wire.
type Sender interface {
	SendTo(b []byte, dst *core.NodeID)
}

// Forwarder holds the three priority queues, the end-packet queue, and the
// single-slot delay holder. Admission keys on "carries a priority digit
// in the outer header" rather than literally on the inner type being
// R/D/E: any datagram with a priority digit (including ACKs) queues
// identically, and only the inner type E is treated as special.
type Forwarder struct {
	rules RuleTable
	out   Sender
	rnd   *rand.Rand

	q1, q2, q3, qend *bq
	slot             *Entry

	listener core.Listener
}

// New creates a forwarder with K-capacity queues, backed by rules for
// destination lookup and out for emission. listener may be nil.
func New(k int, rules RuleTable, out Sender, listener core.Listener) *Forwarder {
	return &Forwarder{
		rules:    rules,
		out:      out,
		rnd:      rand.New(rand.NewSource(1)),
		q1:       newBQ(k),
		q2:       newBQ(k),
		q3:       newBQ(k),
		qend:     newBQ(k),
		listener: listener,
	}
}

func (f *Forwarder) notify(evType int, peer, ref *core.NodeID, val int) {
	if f.listener != nil {
		f.listener(&core.Event{Type: evType, Peer: peer, Ref: ref, Val: val})
	}
}

// Admit handles one inbound R/D/E/A datagram: outer header already decoded
// by the caller (the node event loop), datagram is the full raw bytes
// (outer header + inner header + payload) to be queued unchanged.
func (f *Forwarder) Admit(outer *core.OuterHeader, innerType byte, datagram []byte, source *core.NodeID, now core.Millis) {
	dst := core.NewNodeID(ipBytes(outer.DstIP), outer.DstPort)
	rule, ok := f.rules.Lookup(dst)
	if !ok {
		log.Printf("%v for %s", core.ErrNoRule, dst)
		return
	}

	q := f.targetQueue(innerType, outer.Priority)
	if q == nil {
		log.Printf("%v: unknown priority %q, dropping", core.ErrBadFormat, outer.Priority)
		return
	}
	// the caller's datagram slice aliases the event loop's shared read
	// buffer; the entry outlives the next receive, so it gets its own copy.
	e := &Entry{
		Datagram: core.Clone(datagram),
		Enqueued: now,
		Rule:     rule,
		Source:   source,
		Priority: outer.Priority,
		Length:   len(datagram),
	}
	if !q.push(e) {
		log.Printf("%v: queue %q", core.ErrQueueFull, outer.Priority)
		f.notify(core.EvQueueFull, dst, source, int(outer.Priority))
		return
	}
	f.notify(core.EvQueueAdmitted, dst, source, int(outer.Priority))
}

// targetQueue picks Qend for inner type E regardless of its outer priority
// digit, else Q1/Q2/Q3 by the outer priority digit.
func (f *Forwarder) targetQueue(innerType byte, priority byte) *bq {
	if innerType == core.TypeEnd {
		return f.qend
	}
	switch priority {
	case '1':
		return f.q1
	case '2':
		return f.q2
	case '3':
		return f.q3
	default:
		return nil
	}
}

// Tick advances the delay slot by one loop iteration: if empty, dequeue the
// next entry in strict priority order Q1 -> Q2 -> Q3 -> Qend; if occupied
// and its delay has expired, finalize it (emit or drop) and clear the slot.
func (f *Forwarder) Tick(now core.Millis) {
	if f.slot == nil {
		f.slot = f.dequeueNext()
		return
	}
	if now-f.slot.Enqueued < core.Millis(f.slot.Rule.DelayMs) {
		return
	}
	f.finalize(f.slot)
	f.slot = nil
}

func (f *Forwarder) dequeueNext() *Entry {
	for _, q := range []*bq{f.q1, f.q2, f.q3, f.qend} {
		if e, ok := q.pop(); ok {
			return e
		}
	}
	return nil
}

func (f *Forwarder) finalize(e *Entry) {
	innerType := innerTypeOf(e.Datagram)
	if innerType != core.TypeEnd {
		if r := f.rnd.Float64() * 100; r < float64(e.Rule.LossPct) {
			log.Printf("loss event to %s", e.Rule.Dest)
			f.notify(core.EvLossEvent, e.Rule.Dest, e.Source, int(e.Priority))
			return
		}
	}
	f.out.SendTo(e.Datagram, e.Rule.NextHop)
}

// QueueLen returns the current length of queue p ('1','2','3'), of Qend
// when p is core.TypeEnd, and 0 for any other p. Exposed for tests.
func (f *Forwarder) QueueLen(p byte) int {
	switch p {
	case '1':
		return f.q1.len()
	case '2':
		return f.q2.len()
	case '3':
		return f.q3.len()
	case core.TypeEnd:
		return f.qend.len()
	default:
		return 0
	}
}

// SlotOccupied reports whether the delay slot currently holds an entry.
func (f *Forwarder) SlotOccupied() bool {
	return f.slot != nil
}

func innerTypeOf(datagram []byte) byte {
	if len(datagram) <= core.SizeOuter {
		return 0
	}
	return datagram[core.SizeOuter]
}

func ipBytes(ip [4]byte) []byte {
	return []byte{ip[0], ip[1], ip[2], ip[3]}
}
