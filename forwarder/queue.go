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

// Package forwarder implements the three-level priority queue / per-link
// delay / probabilistic-loss forwarding engine for data-plane packets.
package forwarder

import (
	"netemu/core"
)

// Rule is a forwarding-rule-file row applicable to one destination.
type Rule struct {
	Dest    *core.NodeID
	NextHop *core.NodeID
	DelayMs int
	LossPct int
}

// Entry is one queued datagram awaiting delay/emission.
type Entry struct {
	Datagram []byte
	Enqueued core.Millis
	Rule     *Rule
	Source   *core.NodeID
	Priority byte // outer priority digit; E entries keep theirs although queued in Qend
	Length   int
}

// bq is a bounded FIFO of capacity K.
type bq struct {
	items []*Entry
	cap   int
}

func newBQ(cap int) *bq {
	return &bq{cap: cap}
}

func (q *bq) full() bool {
	return len(q.items) >= q.cap
}

func (q *bq) len() int {
	return len(q.items)
}

func (q *bq) push(e *Entry) bool {
	if q.full() {
		return false
	}
	q.items = append(q.items, e)
	return true
}

func (q *bq) pop() (*Entry, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}
