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

import "time"

//----------------------------------------------------------------------
// All protocol timing (hello/LSA intervals, neighbor death, queue
// enqueue timestamps, delay-slot expiry) is wall-clock milliseconds. A
// package-level "now" function lets tests substitute a deterministic
// clock.
//----------------------------------------------------------------------

// Millis is a wall-clock timestamp in milliseconds since the Unix epoch.
type Millis int64

// NowFn returns the current time in milliseconds. Tests may replace it
// with a deterministic stand-in; all protocol timing reads it. The node
// event loop's socket read deadline is the one place that uses time.Now
// directly.
var NowFn = func() Millis { return Millis(time.Now().UnixMilli()) }

// Now returns the current wall-clock time.
func Now() Millis { return NowFn() }

// Since returns how many milliseconds have elapsed since t.
func (t Millis) Since() Millis { return Now() - t }

// Expired reports whether t is older than ttl.
func (t Millis) Expired(ttl Millis) bool { return Now()-t >= ttl }

// Add returns t advanced by d milliseconds.
func (t Millis) Add(d Millis) Millis { return t + d }
