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
	"net"
	"testing"

	"netemu/core"
)

// sink records every emitted datagram with its next hop.
type sink struct {
	sent [][]byte
	dst  []*core.NodeID
}

func (s *sink) SendTo(b []byte, dst *core.NodeID) {
	s.sent = append(s.sent, b)
	s.dst = append(s.dst, dst)
}

// oneRule answers Lookup for exactly one destination.
type oneRule struct {
	rule *Rule
}

func (r oneRule) Lookup(dst *core.NodeID) (*Rule, bool) {
	if r.rule != nil && r.rule.Dest.Equal(dst) {
		return r.rule, true
	}
	return nil, false
}

func mkID(port uint16) *core.NodeID {
	return core.NewNodeID(net.IPv4(10, 0, 0, byte(port)), port)
}

// datagram builds a full outer+inner frame destined to dst and returns it
// with its decoded outer header, the way the node event loop hands both to
// Admit.
func datagram(t *testing.T, innerType, prio byte, dst *core.NodeID, seq uint32) (*core.OuterHeader, []byte) {
	t.Helper()
	outer := &core.OuterHeader{
		Priority: prio,
		SrcIP:    [4]byte{10, 0, 0, 99},
		SrcPort:  9999,
		InnerLen: core.SizeInner,
	}
	copy(outer.DstIP[:], dst.Bytes())
	outer.DstPort = dst.Port
	b := append(core.EncodeOuter(outer), core.EncodeInner(&core.InnerHeader{Type: innerType, Seq: seq})...)
	return outer, b
}

func seqOf(t *testing.T, frame []byte) uint32 {
	t.Helper()
	inner, err := core.DecodeInner(frame[core.SizeOuter : core.SizeOuter+core.SizeInner])
	if err != nil {
		t.Fatalf("decode inner: %v", err)
	}
	return inner.Seq
}

func TestStrictPriorityOrder(t *testing.T) {
	dst := mkID(2)
	out := &sink{}
	f := New(5, oneRule{&Rule{Dest: dst, NextHop: dst, DelayMs: 0, LossPct: 0}}, out, nil)
	src := mkID(1)

	// fill Q3 to capacity, then admit a single Q1 packet.
	for seq := uint32(1); seq <= 5; seq++ {
		outer, b := datagram(t, core.TypeData, '3', dst, seq)
		f.Admit(outer, core.TypeData, b, src, 1000)
	}
	outer, b := datagram(t, core.TypeData, '1', dst, 100)
	f.Admit(outer, core.TypeData, b, src, 1000)

	// two ticks per packet: one to load the slot, one to expire it.
	for i := 0; i < 12; i++ {
		f.Tick(1000)
	}
	if len(out.sent) != 6 {
		t.Fatalf("emitted %d packets, want 6", len(out.sent))
	}
	if got := seqOf(t, out.sent[0]); got != 100 {
		t.Fatalf("first emission has seq %d, want the Q1 packet (100)", got)
	}
	for i, want := range []uint32{1, 2, 3, 4, 5} {
		if got := seqOf(t, out.sent[i+1]); got != want {
			t.Fatalf("emission %d has seq %d, want %d (FIFO within Q3)", i+1, got, want)
		}
	}
}

func TestQueueBoundAndFullDrop(t *testing.T) {
	dst := mkID(2)
	out := &sink{}
	var events []int
	listener := func(ev *core.Event) { events = append(events, ev.Type) }
	f := New(2, oneRule{&Rule{Dest: dst, NextHop: dst}}, out, listener)
	src := mkID(1)

	for seq := uint32(1); seq <= 3; seq++ {
		outer, b := datagram(t, core.TypeData, '2', dst, seq)
		f.Admit(outer, core.TypeData, b, src, 0)
	}
	if got := f.QueueLen('2'); got != 2 {
		t.Fatalf("queue 2 holds %d entries, want capacity 2", got)
	}
	want := []int{core.EvQueueAdmitted, core.EvQueueAdmitted, core.EvQueueFull}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d = %d, want %d", i, events[i], want[i])
		}
	}
}

func TestEndExemptFromLoss(t *testing.T) {
	dst := mkID(2)
	out := &sink{}
	f := New(5, oneRule{&Rule{Dest: dst, NextHop: dst, DelayMs: 0, LossPct: 100}}, out, nil)
	src := mkID(1)

	outerD, bD := datagram(t, core.TypeData, '1', dst, 1)
	f.Admit(outerD, core.TypeData, bD, src, 0)
	outerE, bE := datagram(t, core.TypeEnd, '1', dst, 2)
	f.Admit(outerE, core.TypeEnd, bE, src, 0)

	if got := f.QueueLen(core.TypeEnd); got != 1 {
		t.Fatalf("E packet not routed to Qend (len=%d)", got)
	}
	for i := 0; i < 4; i++ {
		f.Tick(0)
	}
	if len(out.sent) != 1 {
		t.Fatalf("emitted %d packets, want only the E packet", len(out.sent))
	}
	if got := seqOf(t, out.sent[0]); got != 2 {
		t.Fatalf("survivor has seq %d, want the E packet (2)", got)
	}
}

func TestNoRuleDrop(t *testing.T) {
	ruled := mkID(2)
	other := mkID(3)
	out := &sink{}
	f := New(5, oneRule{&Rule{Dest: ruled, NextHop: ruled}}, out, nil)

	outer, b := datagram(t, core.TypeData, '1', other, 1)
	f.Admit(outer, core.TypeData, b, mkID(1), 0)
	if f.QueueLen('1') != 0 {
		t.Fatalf("packet without a matching rule was admitted")
	}
}

func TestUnknownPriorityDrop(t *testing.T) {
	dst := mkID(2)
	out := &sink{}
	f := New(5, oneRule{&Rule{Dest: dst, NextHop: dst}}, out, nil)

	outer, b := datagram(t, core.TypeData, '9', dst, 1)
	f.Admit(outer, core.TypeData, b, mkID(1), 0)
	for _, p := range []byte{'1', '2', '3', core.TypeEnd} {
		if f.QueueLen(p) != 0 {
			t.Fatalf("packet with unknown priority landed in queue %q", p)
		}
	}
}

func TestDelaySlotHoldsUntilExpiry(t *testing.T) {
	dst := mkID(2)
	out := &sink{}
	f := New(5, oneRule{&Rule{Dest: dst, NextHop: dst, DelayMs: 50, LossPct: 0}}, out, nil)

	outer, b := datagram(t, core.TypeData, '1', dst, 1)
	f.Admit(outer, core.TypeData, b, mkID(1), 1000)

	f.Tick(1000) // load the slot
	if !f.SlotOccupied() {
		t.Fatalf("slot empty after dequeue")
	}
	f.Tick(1040) // 40ms elapsed, delay not expired
	if len(out.sent) != 0 || !f.SlotOccupied() {
		t.Fatalf("packet emitted before its delay expired")
	}
	f.Tick(1050) // exactly the 50ms mark
	if len(out.sent) != 1 {
		t.Fatalf("packet not emitted at delay expiry")
	}
	if f.SlotOccupied() {
		t.Fatalf("slot not cleared after emission")
	}
}
