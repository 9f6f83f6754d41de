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

// Package loader parses the static topology and forwarding-rule files read
// once at node startup. Both are plain whitespace-delimited text;
// hostnames are resolved to IPv4 at load time and never re-resolved
// afterward.
package loader

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"netemu/core"
	"netemu/forwarder"
)

// Topology is the parsed contents of a topology file: self's id plus the
// list of its initial neighbors. Lines for other nodes in the file are
// read but not retained — a node only needs its own adjacency row, the
// rest arrives later via LSA flooding.
type Topology struct {
	Self      *core.NodeID
	Neighbors []*core.NodeID
}

// LoadTopology parses a topology file: lines of "self_id neighbor_id...",
// each id written as "hostname,port". Only the line whose self_id resolves
// to self is kept.
func LoadTopology(path string, self *core.NodeID) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening topology file: %w", err)
	}
	defer f.Close()

	var found *Topology
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 1 {
			continue
		}
		selfID, err := resolveNodeID(fields[0])
		if err != nil {
			return nil, fmt.Errorf("topology file line %d: %w", lineNo, err)
		}
		if !selfID.Equal(self) {
			continue
		}
		t := &Topology{Self: selfID}
		for _, nbrField := range fields[1:] {
			n, err := resolveNodeID(nbrField)
			if err != nil {
				return nil, fmt.Errorf("topology file line %d: %w", lineNo, err)
			}
			t.Neighbors = append(t.Neighbors, n)
		}
		found = t
		break
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("topology file has no entry for %s", self)
	}
	return found, nil
}

// resolveNodeID parses a "hostname,port" pair, resolving hostname to IPv4.
func resolveNodeID(s string) (*core.NodeID, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("bad node id %q", s)
	}
	port, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("bad port in %q: %w", s, err)
	}
	ips, err := net.LookupIP(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", parts[0], err)
	}
	var v4 net.IP
	for _, ip := range ips {
		if v := ip.To4(); v != nil {
			v4 = v
			break
		}
	}
	if v4 == nil {
		return nil, fmt.Errorf("%q has no IPv4 address", parts[0])
	}
	return core.NewNodeID(v4, uint16(port)), nil
}

// ruleTable is a slice of rules keyed by destination, first match wins.
type ruleTable struct {
	rules []*forwarder.Rule
}

func (t *ruleTable) Lookup(dst *core.NodeID) (*forwarder.Rule, bool) {
	for _, r := range t.rules {
		if r.Dest.Equal(dst) {
			return r, true
		}
	}
	return nil, false
}

// LoadRules parses a forwarding-rule file: lines of
// "self_host self_port dest_host dest_port next_host next_port delay_ms loss_percent".
// Only rows whose (self_host, self_port) match self are retained.
func LoadRules(path string, self *core.NodeID) (forwarder.RuleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening forwarding-rule file: %w", err)
	}
	defer f.Close()

	t := &ruleTable{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 8 {
			return nil, fmt.Errorf("forwarding-rule file line %d: want 8 fields, got %d", lineNo, len(fields))
		}
		selfID, err := resolveNodeID(fields[0] + "," + fields[1])
		if err != nil {
			return nil, fmt.Errorf("forwarding-rule file line %d: %w", lineNo, err)
		}
		if !selfID.Equal(self) {
			continue
		}
		destID, err := resolveNodeID(fields[2] + "," + fields[3])
		if err != nil {
			return nil, fmt.Errorf("forwarding-rule file line %d: %w", lineNo, err)
		}
		nextID, err := resolveNodeID(fields[4] + "," + fields[5])
		if err != nil {
			return nil, fmt.Errorf("forwarding-rule file line %d: %w", lineNo, err)
		}
		delay, err := strconv.Atoi(fields[6])
		if err != nil {
			return nil, fmt.Errorf("forwarding-rule file line %d: bad delay_ms: %w", lineNo, err)
		}
		loss, err := strconv.Atoi(fields[7])
		if err != nil {
			return nil, fmt.Errorf("forwarding-rule file line %d: bad loss_percent: %w", lineNo, err)
		}
		t.rules = append(t.rules, &forwarder.Rule{
			Dest:    destID,
			NextHop: nextID,
			DelayMs: delay,
			LossPct: loss,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading forwarding-rule file: %w", err)
	}
	return t, nil
}
