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

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"netemu/core"
	"netemu/debug"
	"netemu/node"
)

func main() {
	var (
		port       int
		queueSize  int
		rulesPath  string
		topoPath   string
		snapPath   string
		reapLSAAge int
	)
	flag.IntVar(&port, "port", 5000, "UDP port to bind")
	flag.IntVar(&queueSize, "k", 5, "priority queue capacity K")
	flag.StringVar(&rulesPath, "rules", "", "forwarding-rule file (Lab2 form)")
	flag.StringVar(&topoPath, "topo", "", "topology file (Lab3 form)")
	flag.StringVar(&snapPath, "snapshot", "", "write an SVG topology/table snapshot to this path on SIGUSR1")
	flag.IntVar(&reapLSAAge, "reap-lsa-age", 0, "ms after which a stale LSA cache entry is reaped (0 = never, matching baseline behavior)")
	flag.Parse()

	core.SetConfiguration(&core.Config{QueueSize: queueSize, ReapLSAAge: reapLSAAge})

	n, err := node.Prepare(uint16(port), topoPath, rulesPath, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				cancel()
				return
			case syscall.SIGUSR1:
				if snapPath != "" {
					if err := debug.WriteSnapshot(snapPath, n); err != nil {
						log.Printf("snapshot failed: %v", err)
					}
				}
			}
		}
	}()

	log.Printf("%s: starting emulator node", n.Self())
	n.Listen(ctx)
	log.Println("emulator node stopped")
}
