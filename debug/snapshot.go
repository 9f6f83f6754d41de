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

// Package debug renders a node's current forwarding table, with a column
// cross-checking each destination against the topology's known-node
// filter, to SVG for local inspection during multi-node emulation runs. It is
// optional and never consulted by the routing or forwarding logic itself.
package debug

import (
	"fmt"
	"os"

	svg "github.com/ajstarks/svgo"

	"github.com/bfix/gospel/data"

	"netemu/core"
	"netemu/topology"
)

// Snapshottable is the view a snapshot needs: self id, the current table,
// and a bloom-filter fingerprint of the known nodes. node.Node satisfies
// this.
type Snapshottable interface {
	Self() *core.NodeID
	Table() topology.Table
	Filter() *data.SaltedBloomFilter
}

const (
	cellW   = 160
	cellH   = 60
	marginX = 40
	marginY = 40
)

// WriteSnapshot renders n's forwarding table as an SVG file at path: one
// node per row, destination / cost / next-hop, self highlighted.
func WriteSnapshot(path string, n Snapshottable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	tbl := n.Table()
	filter := n.Filter()
	rows := len(tbl)
	if rows == 0 {
		rows = 1
	}
	width := marginX*2 + cellW*4
	height := marginY*2 + cellH*(rows+1)

	canvas := svg.New(f)
	canvas.Start(width, height)
	canvas.Title(fmt.Sprintf("forwarding table for %s", n.Self()))

	header := []string{"destination", "cost", "next hop", "known"}
	for col, label := range header {
		x := marginX + col*cellW
		canvas.Text(x, marginY, label, "font-weight:bold;font-size:14px")
	}

	row := 1
	for _, dst := range sortedKeys(tbl) {
		entry := tbl[dst]
		y := marginY + row*cellH
		style := "font-size:12px"
		if dst == n.Self().Key() {
			style = "font-size:12px;fill:blue;font-weight:bold"
		}
		canvas.Text(marginX, y, dst, style)
		canvas.Text(marginX+cellW, y, fmt.Sprintf("%d", entry.Cost), style)
		nextHop := "-"
		if entry.NextHop != nil {
			nextHop = entry.NextHop.Key()
		}
		canvas.Text(marginX+2*cellW, y, nextHop, style)
		// Cross-check against the bloom-filter fingerprint: every table
		// destination must also be a known topology node, so this column
		// should always read "yes" outside of a race between the two reads.
		known := "no"
		if filter.Contains([]byte(dst)) {
			known = "yes"
		}
		canvas.Text(marginX+3*cellW, y, known, style)
		row++
	}

	canvas.End()
	return nil
}

func sortedKeys(tbl topology.Table) []string {
	keys := make([]string, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
