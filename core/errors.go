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

import "errors"

// Sentinel errors, one per recoverable error kind. All of them lead to a
// dropped packet and a log line; none of them propagate past the node event
// loop. Stale LSAs carry no sentinel: they are dropped silently (the
// routing plane reports them through EvLSAStale only). IOFatal conditions
// (bind failure, missing topology file) are not sentinel errors here —
// they are plain wrapped errors returned from the loaders and node.Prepare,
// whose callers pass them to log.Fatal.
var (
	ErrBadFormat = errors.New("bad format")
	ErrNoRoute   = errors.New("no route")
	ErrNoRule    = errors.New("no forwarding entry")
	ErrQueueFull = errors.New("queue full")
)
