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
	"bytes"
	"crypto/rand"
	"encoding/binary"
)

//----------------------------------------------------------------------
// Random numbers
//----------------------------------------------------------------------

// RndUint32 returns a random uint32, used to salt bloom filters so that two
// nodes built from the same node-id set don't leak a comparable fingerprint.
func RndUint32() uint32 {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	var v uint32
	_ = binary.Read(bytes.NewReader(b), binary.BigEndian, &v)
	return v
}

//----------------------------------------------------------------------
// generic array/set helpers
//----------------------------------------------------------------------

// Clone creates a new slice with the same content as the argument.
func Clone[T []E, E any](d T) T {
	if d == nil {
		return nil
	}
	r := make(T, len(d))
	copy(r, d)
	return r
}

// Equal returns true if two slices hold the same elements in the same order.
func Equal[T []E, E comparable](a, b T) bool {
	if len(a) != len(b) {
		return false
	}
	for i, e := range a {
		if e != b[i] {
			return false
		}
	}
	return true
}

// SameSet returns true if a and b hold the same elements irrespective of
// order (used to compare neighbor sets, which LSAs carry unordered).
func SameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, e := range a {
		seen[e] = true
	}
	for _, e := range b {
		if !seen[e] {
			return false
		}
	}
	return true
}
