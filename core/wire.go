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

package core

import (
	"encoding/binary"
	"fmt"
)

//----------------------------------------------------------------------
// Wire layouts. All multi-byte fields are network byte order (big-endian)
// except the inner header's Seq, which the wire protocol transmits through
// a double-htonl convention baked in by the original sender/receiver: the
// sender applies htonl once, the receiver applies htonl again to recover
// the host value. On the little-endian hosts this protocol actually runs
// on, htonl-twice is a no-op on the *value* but leaves the *bytes on the
// wire* in host (little-endian) order rather than network order. We never
// reinterpret Seq numerically (the forwarder treats it as an opaque field),
// so we preserve the quirk by simply encoding/decoding it LittleEndian while
// everything else stays BigEndian. A fresh pair of endpoints talking only
// to each other could drop this; we can't, because the file sender/receiver
// and traceroute client this emulator talks to rely on it.
//----------------------------------------------------------------------

const (
	SizeOuter    = 17
	SizeInner    = 9
	SizeHello    = 7
	sizeLSAFixed = 15
	sizeLSAEntry = 10
	SizeTrace    = 17
)

// Inner control header types.
const (
	TypeRequest byte = 'R'
	TypeData    byte = 'D'
	TypeEnd     byte = 'E'
	TypeAck     byte = 'A'
)

// Standalone control/trace frame types.
const (
	TypeHello byte = 'H'
	TypeLSA   byte = 'L'
	TypeTrace byte = 'T'
)

// OuterHeader precedes every data-plane (R/D/E/A) datagram.
type OuterHeader struct {
	Priority byte
	SrcIP    [4]byte
	SrcPort  uint16
	DstIP    [4]byte
	DstPort  uint16
	InnerLen uint32
}

// EncodeOuter packs an outer header into its fixed 17-byte wire form.
func EncodeOuter(h *OuterHeader) []byte {
	b := make([]byte, SizeOuter)
	b[0] = h.Priority
	copy(b[1:5], h.SrcIP[:])
	binary.BigEndian.PutUint16(b[5:7], h.SrcPort)
	copy(b[7:11], h.DstIP[:])
	binary.BigEndian.PutUint16(b[11:13], h.DstPort)
	binary.BigEndian.PutUint32(b[13:17], h.InnerLen)
	return b
}

// DecodeOuter unpacks a 17-byte outer header.
func DecodeOuter(b []byte) (*OuterHeader, error) {
	if len(b) != SizeOuter {
		return nil, fmt.Errorf("%w: outer header is %d bytes, want %d", ErrBadFormat, len(b), SizeOuter)
	}
	h := &OuterHeader{Priority: b[0]}
	copy(h.SrcIP[:], b[1:5])
	h.SrcPort = binary.BigEndian.Uint16(b[5:7])
	copy(h.DstIP[:], b[7:11])
	h.DstPort = binary.BigEndian.Uint16(b[11:13])
	h.InnerLen = binary.BigEndian.Uint32(b[13:17])
	return h, nil
}

// InnerHeader follows the outer header on every R/D/E/A datagram.
type InnerHeader struct {
	Type byte
	Seq  uint32
	Aux  uint32
}

// EncodeInner packs an inner control header into its fixed 9-byte wire form.
func EncodeInner(h *InnerHeader) []byte {
	b := make([]byte, SizeInner)
	b[0] = h.Type
	binary.LittleEndian.PutUint32(b[1:5], h.Seq)
	binary.BigEndian.PutUint32(b[5:9], h.Aux)
	return b
}

// DecodeInner unpacks a 9-byte inner control header.
func DecodeInner(b []byte) (*InnerHeader, error) {
	if len(b) != SizeInner {
		return nil, fmt.Errorf("%w: inner header is %d bytes, want %d", ErrBadFormat, len(b), SizeInner)
	}
	return &InnerHeader{
		Type: b[0],
		Seq:  binary.LittleEndian.Uint32(b[1:5]),
		Aux:  binary.BigEndian.Uint32(b[5:9]),
	}, nil
}

// Hello is the 7-byte neighbor probe frame: 'H' | ip:4 | port:2.
type Hello struct {
	IP   [4]byte
	Port uint16
}

func EncodeHello(h *Hello) []byte {
	b := make([]byte, SizeHello)
	b[0] = TypeHello
	copy(b[1:5], h.IP[:])
	binary.BigEndian.PutUint16(b[5:7], h.Port)
	return b
}

func DecodeHello(b []byte) (*Hello, error) {
	if len(b) != SizeHello || b[0] != TypeHello {
		return nil, fmt.Errorf("%w: hello frame malformed (%d bytes)", ErrBadFormat, len(b))
	}
	h := new(Hello)
	copy(h.IP[:], b[1:5])
	h.Port = binary.BigEndian.Uint16(b[5:7])
	return h, nil
}

// LSANeighbor is one (neighbor, cost) entry in an LSA body.
type LSANeighbor struct {
	IP   [4]byte
	Port uint16
	Cost uint32
}

// LSA is the link-state advertisement frame:
// 'L' | origin_ip:4 | origin_port:2 | seq:4 | ttl:4 | [ip:4|port:2|cost:4]*n.
type LSA struct {
	OriginIP   [4]byte
	OriginPort uint16
	Seq        uint32
	TTL        uint32
	Neighbors  []LSANeighbor
}

func EncodeLSA(l *LSA) []byte {
	n := len(l.Neighbors)
	b := make([]byte, sizeLSAFixed+sizeLSAEntry*n)
	b[0] = TypeLSA
	copy(b[1:5], l.OriginIP[:])
	binary.BigEndian.PutUint16(b[5:7], l.OriginPort)
	binary.BigEndian.PutUint32(b[7:11], l.Seq)
	binary.BigEndian.PutUint32(b[11:15], l.TTL)
	off := sizeLSAFixed
	for _, nb := range l.Neighbors {
		copy(b[off:off+4], nb.IP[:])
		binary.BigEndian.PutUint16(b[off+4:off+6], nb.Port)
		binary.BigEndian.PutUint32(b[off+6:off+10], nb.Cost)
		off += sizeLSAEntry
	}
	return b
}

func DecodeLSA(b []byte) (*LSA, error) {
	if len(b) < sizeLSAFixed || b[0] != TypeLSA {
		return nil, fmt.Errorf("%w: lsa frame too short (%d bytes)", ErrBadFormat, len(b))
	}
	rem := len(b) - sizeLSAFixed
	if rem%sizeLSAEntry != 0 {
		return nil, fmt.Errorf("%w: lsa frame length %d not aligned to %d-byte entries", ErrBadFormat, len(b), sizeLSAEntry)
	}
	l := &LSA{}
	copy(l.OriginIP[:], b[1:5])
	l.OriginPort = binary.BigEndian.Uint16(b[5:7])
	l.Seq = binary.BigEndian.Uint32(b[7:11])
	l.TTL = binary.BigEndian.Uint32(b[11:15])
	n := rem / sizeLSAEntry
	l.Neighbors = make([]LSANeighbor, n)
	off := sizeLSAFixed
	for i := 0; i < n; i++ {
		var nb LSANeighbor
		copy(nb.IP[:], b[off:off+4])
		nb.Port = binary.BigEndian.Uint16(b[off+4 : off+6])
		nb.Cost = binary.BigEndian.Uint32(b[off+6 : off+10])
		l.Neighbors[i] = nb
		off += sizeLSAEntry
	}
	return l, nil
}

// Trace is the 17-byte traceroute probe/return frame:
// 'T' | ttl:4 | src_ip:4 | src_port:2 | dst_ip:4 | dst_port:2.
type Trace struct {
	TTL     uint32
	SrcIP   [4]byte
	SrcPort uint16
	DstIP   [4]byte
	DstPort uint16
}

func EncodeTrace(t *Trace) []byte {
	b := make([]byte, SizeTrace)
	b[0] = TypeTrace
	binary.BigEndian.PutUint32(b[1:5], t.TTL)
	copy(b[5:9], t.SrcIP[:])
	binary.BigEndian.PutUint16(b[9:11], t.SrcPort)
	copy(b[11:15], t.DstIP[:])
	binary.BigEndian.PutUint16(b[15:17], t.DstPort)
	return b
}

func DecodeTrace(b []byte) (*Trace, error) {
	if len(b) != SizeTrace || b[0] != TypeTrace {
		return nil, fmt.Errorf("%w: trace frame malformed (%d bytes)", ErrBadFormat, len(b))
	}
	t := new(Trace)
	t.TTL = binary.BigEndian.Uint32(b[1:5])
	copy(t.SrcIP[:], b[5:9])
	t.SrcPort = binary.BigEndian.Uint16(b[9:11])
	copy(t.DstIP[:], b[11:15])
	t.DstPort = binary.BigEndian.Uint16(b[15:17])
	return t, nil
}

// NeighborID returns the node id encoded by one LSA neighbor entry.
func (nb *LSANeighbor) NeighborID() *NodeID {
	return NewNodeID(ipFromBytes(nb.IP), nb.Port)
}

func ipFromBytes(ip [4]byte) []byte {
	return []byte{ip[0], ip[1], ip[2], ip[3]}
}
