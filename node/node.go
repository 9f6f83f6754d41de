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

// Package node assembles the wire codec, topology store, routing plane and
// priority forwarder into a single-threaded UDP event loop: one
// non-blocking socket, dispatch by leading byte, periodic timer checks,
// and the trace-forwarding logic that has no other home.
package node

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/bfix/gospel/data"

	"netemu/core"
	"netemu/forwarder"
	"netemu/loader"
	"netemu/routing"
	"netemu/topology"
)

// udpSocket is the minimal surface node needs from net.UDPConn, narrowed so
// tests can substitute a loopback-backed fake without dragging in real
// sockets for unit-level coverage (the loopback integration tests in
// node_test.go use the real type).
type udpSocket interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Node owns one emulator node's socket, routing plane, and forwarder. Only
// the event loop goroutine may mutate it; the snapshot-read surface
// (Table, Filter, Self) is safe to call from other goroutines, which is
// how the SIGUSR1 snapshot handler uses it.
type Node struct {
	self *core.NodeID
	sock udpSocket

	plane *routing.Plane
	fwd   *forwarder.Forwarder

	helloEvery time.Duration
	lsaEvery   time.Duration
	lastHello  core.Millis
	lastLSA    core.Millis

	pollInterval time.Duration

	listener core.Listener
}

func (n *Node) notify(evType int, ref *core.NodeID, val int) {
	if n.listener != nil {
		n.listener(&core.Event{Type: evType, Peer: n.self, Ref: ref, Val: val})
	}
}

// senderAdapter lets both the routing plane and the forwarder share the
// node's socket through their own narrow Sender interfaces.
type senderAdapter struct {
	n *Node
}

func (a *senderAdapter) SendTo(b []byte, dst *core.NodeID) {
	if _, err := a.n.sock.WriteToUDP(b, dst.Addr()); err != nil {
		log.Printf("%s: send to %s failed: %v", a.n.self, dst, err)
	}
}

// New creates a node bound to self's port, with initial neighbors and
// forwarding rules already loaded.
func New(self *core.NodeID, sock udpSocket, initialNeighbors []*core.NodeID, rules forwarder.RuleTable, listener core.Listener) *Node {
	n := &Node{
		self:         self,
		sock:         sock,
		helloEvery:   time.Duration(core.GetConfig().HelloIntv) * time.Millisecond,
		lsaEvery:     time.Duration(core.GetConfig().LSAIntv) * time.Millisecond,
		pollInterval: time.Millisecond,
		listener:     listener,
	}
	adapter := &senderAdapter{n: n}
	n.plane = routing.New(self, adapter, listener)
	for _, nbr := range initialNeighbors {
		n.plane.HandleHello(nbr)
	}
	n.fwd = forwarder.New(core.GetConfig().QueueSize, rules, adapter, listener)
	now := core.Now()
	n.lastHello = now
	n.lastLSA = now
	return n
}

// Listen runs the event loop until ctx is cancelled. Each iteration does a
// non-blocking-ish receive (bounded by a short read deadline so timers
// still get checked), dispatches any datagram, advances the delay slot,
// and checks the hello/LSA/neighbor-death timers.
func (n *Node) Listen(ctx context.Context) {
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = n.sock.SetReadDeadline(time.Now().Add(n.pollInterval))
		nbytes, addr, err := n.sock.ReadFromUDP(buf)
		if err == nil && nbytes > 0 {
			n.dispatch(buf[:nbytes], addr)
		}

		now := core.Now()
		n.fwd.Tick(now)
		n.checkTimers(now)
	}
}

func (n *Node) checkTimers(now core.Millis) {
	if now-n.lastHello >= core.Millis(n.helloEvery.Milliseconds()) {
		n.plane.EmitHellos()
		n.lastHello = now
	}
	if now-n.lastLSA >= core.Millis(n.lsaEvery.Milliseconds()) {
		n.plane.EmitLSA()
		n.lastLSA = now
	}
	n.plane.CheckDeadNeighbors()
	n.plane.ReapStaleLSACache()
}

// dispatch branches on the leading byte: 'H'/'L' to the routing plane, 'T'
// to trace forwarding, an ASCII priority digit to the forwarder.
func (n *Node) dispatch(b []byte, addr *net.UDPAddr) {
	if len(b) == 0 {
		return
	}
	switch b[0] {
	case core.TypeHello:
		h, err := core.DecodeHello(b)
		if err != nil {
			log.Printf("%s: %v", n.self, err)
			return
		}
		src := core.NewNodeID(net.IP(h.IP[:]), h.Port)
		n.plane.HandleHello(src)

	case core.TypeLSA:
		lsa, err := core.DecodeLSA(b)
		if err != nil {
			log.Printf("%s: %v", n.self, err)
			return
		}
		sender := core.NewNodeID(addr.IP, uint16(addr.Port))
		n.plane.HandleLSA(lsa, sender)

	case core.TypeTrace:
		tr, err := core.DecodeTrace(b)
		if err != nil {
			log.Printf("%s: %v", n.self, err)
			return
		}
		n.forwardTrace(tr)

	case '1', '2', '3':
		n.admitDataPlane(b, addr)

	default:
		log.Printf("%s: %v: unrecognized leading byte %q", n.self, core.ErrBadFormat, b[0])
	}
}

func (n *Node) admitDataPlane(b []byte, addr *net.UDPAddr) {
	if len(b) < core.SizeOuter+core.SizeInner {
		log.Printf("%s: %v: data-plane datagram too short", n.self, core.ErrBadFormat)
		return
	}
	outer, err := core.DecodeOuter(b[:core.SizeOuter])
	if err != nil {
		log.Printf("%s: %v", n.self, err)
		return
	}
	innerType := b[core.SizeOuter]
	source := core.NewNodeID(addr.IP, uint16(addr.Port))
	n.fwd.Admit(outer, innerType, b, source, core.Now())
}

// forwardTrace decrements and relays toward dst while ttl > 0; at ttl ==
// 0, it rewrites the source fields to self and bounces the frame back to
// its original sender, producing the hop identification a traceroute
// client expects.
func (n *Node) forwardTrace(tr *core.Trace) {
	if tr.TTL == 0 {
		origSrc := core.NewNodeID(net.IP(tr.SrcIP[:]), tr.SrcPort)
		selfIP := n.self.Bytes()
		var sb [4]byte
		copy(sb[:], selfIP)
		tr.SrcIP = sb
		tr.SrcPort = n.self.Port
		n.sendTo(core.EncodeTrace(tr), origSrc)
		n.notify(core.EvTraceReturned, origSrc, 0)
		return
	}
	dst := core.NewNodeID(net.IP(tr.DstIP[:]), tr.DstPort)
	entry, ok := n.plane.Table().Lookup(dst)
	if !ok {
		log.Printf("%s: %v: no route to %s for trace", n.self, core.ErrNoRoute, dst)
		return
	}
	tr.TTL--
	nextHop := entry.NextHop
	if nextHop == nil {
		// dst is self; nothing further to forward.
		return
	}
	n.sendTo(core.EncodeTrace(tr), nextHop)
	n.notify(core.EvTraceForwarded, nextHop, int(tr.TTL))
}

func (n *Node) sendTo(b []byte, dst *core.NodeID) {
	if _, err := n.sock.WriteToUDP(b, dst.Addr()); err != nil {
		log.Printf("%s: send to %s failed: %v", n.self, dst, err)
	}
}

// Table returns the node's current forwarding table, for debug/snapshot use.
func (n *Node) Table() topology.Table {
	return n.plane.Table()
}

// Forwarder exposes the node's forwarder, for debug/snapshot use.
func (n *Node) Forwarder() *forwarder.Forwarder {
	return n.fwd
}

// Filter returns a bloom-filter fingerprint of every node id this node
// currently knows about, for debug/snapshot use.
func (n *Node) Filter() *data.SaltedBloomFilter {
	return n.plane.Filter()
}

// Self returns the node's own id.
func (n *Node) Self() *core.NodeID {
	return n.self
}

// Prepare opens a UDP socket on port, loads the optional initial neighbor
// and rule files, and returns a ready-to-run Node. Bind failure or a
// malformed/missing file is fatal: the caller is expected to log.Fatal on
// the returned error, which main does.
func Prepare(port uint16, topologyPath, rulesPath string, listener core.Listener) (*Node, error) {
	ip := localIPv4()
	self := core.NewNodeID(ip, port)

	conn, err := net.ListenUDP("udp4", self.Addr())
	if err != nil {
		return nil, fmt.Errorf("%s: bind failed: %w", self, err)
	}

	var neighbors []*core.NodeID
	if topologyPath != "" {
		topo, err := loader.LoadTopology(topologyPath, self)
		if err != nil {
			return nil, fmt.Errorf("%s: loading topology: %w", self, err)
		}
		neighbors = topo.Neighbors
	}

	var rules forwarder.RuleTable = emptyRules{}
	if rulesPath != "" {
		rules, err = loader.LoadRules(rulesPath, self)
		if err != nil {
			return nil, fmt.Errorf("%s: loading forwarding rules: %w", self, err)
		}
	}

	return New(self, conn, neighbors, rules, listener), nil
}

// ListenAndServe is a convenience wrapper: Prepare, then run the event loop
// until ctx is cancelled, aborting on any IOFatal condition.
func ListenAndServe(ctx context.Context, port uint16, topologyPath, rulesPath string, listener core.Listener) {
	n, err := Prepare(port, topologyPath, rulesPath, listener)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%s: listening", n.Self())
	n.Listen(ctx)
}

type emptyRules struct{}

func (emptyRules) Lookup(*core.NodeID) (*forwarder.Rule, bool) { return nil, false }

func localIPv4() net.IP {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if v4 := ipnet.IP.To4(); v4 != nil {
					return v4
				}
			}
		}
	}
	return net.IPv4(127, 0, 0, 1)
}
