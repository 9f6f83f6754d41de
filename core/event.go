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

// Event types emitted by the routing plane and the priority forwarder.
const (
	EvHelloSent       = iota + 1 // hello emitted to a neighbor
	EvHelloRecv                  // hello received from src
	EvNeighborUp                 // previously unknown neighbor linked
	EvNeighborExpired            // neighbor declared dead (T_dead exceeded)
	EvLSAOriginated              // fresh LSA built and flooded for self
	EvLSAReceived                // LSA accepted (not stale) and processed
	EvLSAStale                   // LSA dropped, seq <= cached high-water
	EvLSAFlooded                 // LSA re-flooded to neighbors after TTL decrement
	EvTableRebuilt               // forwarding table recomputed
	EvQueueAdmitted              // datagram admitted to a priority queue
	EvQueueFull                  // admission dropped, target queue at capacity
	EvLossEvent                  // probabilistic drop at delay-slot expiry
	EvTraceForwarded             // trace frame decremented and forwarded
	EvTraceReturned              // trace frame bounced back to its source
	EvLSAReaped                  // stale LSA cache entry reaped (Config.ReapLSAAge)
)

// Event reports something interesting happening inside a node. Peer/Ref
// carry the node ids involved; Val carries an event-specific scalar (queue
// index, cost, ttl) where applicable.
type Event struct {
	Type int     // event type (see consts)
	Peer *NodeID // node the event concerns
	Ref  *NodeID // secondary node, e.g. next hop or LSA originator (optional)
	Val  int     // additional data
}

// Listener receives node events.
type Listener func(*Event)
