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

// Config for the routing plane and priority forwarder. Timers are in
// milliseconds to match the wall-clock model in use throughout this module.
type Config struct {
	HelloIntv  int `json:"helloIntv"`  // T_hello: neighbor hello interval, ms
	LSAIntv    int `json:"lsaIntv"`    // T_lsa: LSA origination interval, ms
	DeadIntv   int `json:"deadIntv"`   // T_dead: neighbor death threshold, ms
	LSATTL     int `json:"lsaTTL"`     // initial hop TTL stamped on originated LSAs
	QueueSize  int `json:"queueSize"`  // K: capacity of each priority queue
	ReapLSAAge int `json:"reapLSAAge"` // ms after which a stale LSA cache entry may be reaped; 0 = never
}

// package-local configuration data with defaults for the timers and queue
// capacity described above
var cfg = &Config{
	HelloIntv:  50,
	LSAIntv:    200,
	DeadIntv:   2000,
	LSATTL:     20,
	QueueSize:  5,
	ReapLSAAge: 0,
}

// SetConfiguration overrides the package defaults before any node starts.
// Zero fields in c leave the corresponding default untouched.
func SetConfiguration(c *Config) {
	if c.HelloIntv > 0 {
		cfg.HelloIntv = c.HelloIntv
	}
	if c.LSAIntv > 0 {
		cfg.LSAIntv = c.LSAIntv
	}
	if c.DeadIntv > 0 {
		cfg.DeadIntv = c.DeadIntv
	}
	if c.LSATTL > 0 {
		cfg.LSATTL = c.LSATTL
	}
	if c.QueueSize > 0 {
		cfg.QueueSize = c.QueueSize
	}
	if c.ReapLSAAge > 0 {
		cfg.ReapLSAAge = c.ReapLSAAge
	}
}

// GetConfig returns the active configuration.
func GetConfig() *Config {
	return cfg
}
