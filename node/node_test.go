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

package node

import (
	"context"
	"net"
	"testing"
	"time"

	"netemu/core"
	"netemu/forwarder"
)

// fixedRule always answers Lookup for one destination, used to drive the
// forwarder without a forwarding-rule file on disk.
type fixedRule struct {
	dest *core.NodeID
	rule *forwarder.Rule
}

func (f fixedRule) Lookup(dst *core.NodeID) (*forwarder.Rule, bool) {
	if dst.Equal(f.dest) {
		return f.rule, true
	}
	return nil, false
}

func bindLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("bind loopback: %v", err)
	}
	return conn
}

func nodeIDOf(conn *net.UDPConn) *core.NodeID {
	addr := conn.LocalAddr().(*net.UDPAddr)
	return core.NewNodeID(addr.IP, uint16(addr.Port))
}

func TestSingleLinkForward(t *testing.T) {
	bSock := bindLoopback(t)
	defer bSock.Close()
	b := nodeIDOf(bSock)

	aSock := bindLoopback(t)
	a := nodeIDOf(aSock)

	rules := fixedRule{dest: b, rule: &forwarder.Rule{Dest: b, NextHop: b, DelayMs: 10, LossPct: 0}}
	n := New(a, aSock, nil, rules, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Listen(ctx)

	client := bindLoopback(t)
	defer client.Close()

	outer := core.EncodeOuter(&core.OuterHeader{
		Priority: '2',
		SrcIP:    ipOf(client),
		SrcPort:  portOf(client),
		DstIP:    ipOf(bSock),
		DstPort:  portOf(bSock),
		InnerLen: core.SizeInner,
	})
	inner := core.EncodeInner(&core.InnerHeader{Type: core.TypeData, Seq: 1, Aux: 4})
	datagram := append(outer, inner...)

	sent := time.Now()
	if _, err := client.WriteToUDP(datagram, a.Addr()); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 1024)
	bSock.SetReadDeadline(time.Now().Add(2 * time.Second))
	nbytes, _, err := bSock.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("b did not receive forwarded packet: %v", err)
	}
	elapsed := time.Since(sent)
	if elapsed < 10*time.Millisecond {
		t.Fatalf("packet emitted after only %v, want >= 10ms delay", elapsed)
	}
	if !core.Equal(buf[:nbytes], datagram) {
		t.Fatalf("forwarded datagram changed in transit")
	}
}

// readTrace reads from conn until a trace frame arrives, skipping the
// hello/LSA traffic the node's routing plane emits on its own timers.
func readTrace(t *testing.T, conn *net.UDPConn) *core.Trace {
	t.Helper()
	buf := make([]byte, 1024)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		nbytes, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("no trace frame arrived: %v", err)
		}
		if nbytes > 0 && buf[0] == core.TypeTrace {
			tr, err := core.DecodeTrace(buf[:nbytes])
			if err != nil {
				t.Fatalf("decode trace: %v", err)
			}
			return tr
		}
	}
	t.Fatalf("no trace frame arrived before deadline")
	return nil
}

func TestTraceBounceAtZeroTTL(t *testing.T) {
	aSock := bindLoopback(t)
	a := nodeIDOf(aSock)
	n := New(a, aSock, nil, emptyRules{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Listen(ctx)

	client := bindLoopback(t)
	defer client.Close()

	probe := &core.Trace{
		TTL:     0,
		SrcIP:   ipOf(client),
		SrcPort: portOf(client),
		DstIP:   [4]byte{10, 9, 9, 9},
		DstPort: 7777,
	}
	if _, err := client.WriteToUDP(core.EncodeTrace(probe), a.Addr()); err != nil {
		t.Fatalf("send probe: %v", err)
	}

	got := readTrace(t, client)
	if got.SrcIP != ipOf(aSock) || got.SrcPort != portOf(aSock) {
		t.Fatalf("bounced trace identifies %v,%d, want the node itself", got.SrcIP, got.SrcPort)
	}
	if got.DstIP != probe.DstIP || got.DstPort != probe.DstPort {
		t.Fatalf("bounced trace lost its destination fields")
	}
}

func TestTraceForwardDecrementsTTL(t *testing.T) {
	bSock := bindLoopback(t)
	defer bSock.Close()
	b := nodeIDOf(bSock)

	aSock := bindLoopback(t)
	a := nodeIDOf(aSock)
	// seed b as an initial neighbor so a's forwarding table has a route.
	n := New(a, aSock, []*core.NodeID{b}, emptyRules{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Listen(ctx)

	client := bindLoopback(t)
	defer client.Close()

	probe := &core.Trace{
		TTL:     1,
		SrcIP:   ipOf(client),
		SrcPort: portOf(client),
		DstIP:   ipOf(bSock),
		DstPort: portOf(bSock),
	}
	if _, err := client.WriteToUDP(core.EncodeTrace(probe), a.Addr()); err != nil {
		t.Fatalf("send probe: %v", err)
	}

	got := readTrace(t, bSock)
	if got.TTL != 0 {
		t.Fatalf("forwarded trace has ttl %d, want 0", got.TTL)
	}
	if got.SrcIP != probe.SrcIP || got.SrcPort != probe.SrcPort {
		t.Fatalf("forwarded trace source rewritten before ttl reached zero")
	}
}

func TestLossExceptEnd(t *testing.T) {
	bSock := bindLoopback(t)
	defer bSock.Close()
	b := nodeIDOf(bSock)

	aSock := bindLoopback(t)
	a := nodeIDOf(aSock)

	rules := fixedRule{dest: b, rule: &forwarder.Rule{Dest: b, NextHop: b, DelayMs: 0, LossPct: 100}}
	n := New(a, aSock, nil, rules, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Listen(ctx)

	client := bindLoopback(t)
	defer client.Close()

	send := func(innerType byte, seq uint32) {
		outer := core.EncodeOuter(&core.OuterHeader{
			Priority: '1',
			SrcIP:    ipOf(client),
			SrcPort:  portOf(client),
			DstIP:    ipOf(bSock),
			DstPort:  portOf(bSock),
			InnerLen: core.SizeInner,
		})
		inner := core.EncodeInner(&core.InnerHeader{Type: innerType, Seq: seq, Aux: 0})
		datagram := append(outer, inner...)
		if _, err := client.WriteToUDP(datagram, a.Addr()); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	send(core.TypeData, 1)
	send(core.TypeEnd, 2)

	buf := make([]byte, 1024)
	bSock.SetReadDeadline(time.Now().Add(2 * time.Second))
	nbytes, _, err := bSock.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected the E packet to arrive despite loss=100: %v", err)
	}
	inner, err := core.DecodeInner(buf[core.SizeOuter:nbytes])
	if err != nil {
		t.Fatalf("decode inner: %v", err)
	}
	if inner.Type != core.TypeEnd || inner.Seq != 2 {
		t.Fatalf("got %+v, want the E packet (seq=2)", inner)
	}

	// a second read should time out: the D packet must never arrive.
	bSock.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := bSock.ReadFromUDP(buf); err == nil {
		t.Fatalf("D packet was delivered despite loss_percent=100")
	}
}

func ipOf(conn *net.UDPConn) [4]byte {
	addr := conn.LocalAddr().(*net.UDPAddr)
	var b [4]byte
	copy(b[:], addr.IP.To4())
	return b
}

func portOf(conn *net.UDPConn) uint16 {
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}
