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
	"fmt"
	"net"
	"strconv"
	"strings"
)

//----------------------------------------------------------------------
// NodeID is a plain address identity: this protocol has no cryptographic
// identity, a node is simply the (ipv4, udp port) pair it is reachable on.
//----------------------------------------------------------------------

// NodeID is the identifier for a node in the network: an IPv4 address and
// UDP port pair. Its canonical wire/string form is "A.B.C.D,port"; identity
// is equality on that canonical form.
type NodeID struct {
	IP   [4]byte `size:"4"`
	Port uint16  `order:"big"`

	// transient
	key string // cached canonical "ip,port" form
}

// NewNodeID creates a node id from an IPv4 address and port.
func NewNodeID(ip net.IP, port uint16) *NodeID {
	n := new(NodeID)
	if v4 := ip.To4(); v4 != nil {
		copy(n.IP[:], v4)
	}
	n.Port = port
	n.Init()
	return n
}

// ParseNodeID parses the canonical "ip,port" form used by topology and
// forwarding-rule files. The host part must already be a dotted-quad IPv4
// address; hostname resolution happens in the static loaders, not here.
func ParseNodeID(s string) (*NodeID, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("bad node id %q", s)
	}
	ip := net.ParseIP(strings.TrimSpace(parts[0]))
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("bad node ip %q", parts[0])
	}
	port, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad node port %q: %w", parts[1], err)
	}
	return NewNodeID(ip, uint16(port)), nil
}

// Init (re)computes the cached canonical string. Called after decoding a
// NodeID off the wire, where the IP/Port fields are filled in directly.
func (n *NodeID) Init() {
	if n != nil {
		n.key = fmt.Sprintf("%d.%d.%d.%d,%d", n.IP[0], n.IP[1], n.IP[2], n.IP[3], n.Port)
	}
}

// Key returns the canonical string used for map operations and equality.
func (n *NodeID) Key() string {
	if n == nil {
		return ""
	}
	if n.key == "" {
		n.Init()
	}
	return n.key
}

// String returns the canonical "A.B.C.D,port" representation.
func (n *NodeID) String() string {
	if n == nil {
		return "(none)"
	}
	return n.Key()
}

// Equal returns true if two node ids denote the same endpoint.
func (n *NodeID) Equal(o *NodeID) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.IP == o.IP && n.Port == o.Port
}

// Addr returns the UDP address for this node id.
func (n *NodeID) Addr() *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(n.IP[0], n.IP[1], n.IP[2], n.IP[3]),
		Port: int(n.Port),
	}
}

// Bytes returns the 4-byte big-endian IPv4 address.
func (n *NodeID) Bytes() []byte {
	b := make([]byte, 4)
	copy(b, n.IP[:])
	return b
}
