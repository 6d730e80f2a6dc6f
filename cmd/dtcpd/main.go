// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Command dtcpd is a small demo/integration daemon: it reads a TOML
// configuration naming this node's DIF address, an optional wstransport
// listener, and zero or more peer connections, brings up a dtcp.Pair per
// connection, and runs until interrupted. It is the runnable home for the
// pkg/rmt/wstransport transport and exists so the RMT boundary named in
// §6 has a concrete, socket-backed demonstration rather than only the
// in-memory rmt.Memory used by tests.
package main

import (
	"flag"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
)

// waitSigint blocks until SIGINT arrives, mirroring the teacher's
// cmd/dtnd/main.go.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	dump := flag.Bool("dump", false, "periodically log each connection's Snapshot for live debugging")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("Usage: %s [-dump] configuration.toml", os.Args[0])
	}

	d, err := parseDaemon(flag.Arg(0))
	if err != nil {
		log.WithFields(log.Fields{"error": err}).Fatal("dtcpd: failed to parse config")
	}

	log.WithFields(log.Fields{"connections": len(d.pairs)}).Info("dtcpd: running")

	if *dump {
		dumpTimer := d.cron.Every(2*time.Second, d.dumpSnapshots)
		defer dumpTimer.Cancel()
	}

	waitSigint()
	log.Info("dtcpd: shutting down")

	d.Close()
}
