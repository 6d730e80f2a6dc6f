// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
	"github.com/rina-go/dtcp/pkg/sched"
)

// Probe reads a liveness counter object from a neighbor and reports
// whether the round trip succeeded; it is expected to block for at most
// the watchdog's declared-dead interval.
type Probe func(n *object.Neighbor) error

// Watchdog implements §4.5's liveness task: every watchdog_period_ms it
// probes every currently-enrolled neighbor, and any neighbor that
// hasn't answered within declared_dead_interval_ms is reported via
// OnDead so the caller can emit NEIGHBOR_DECLARED_DEAD and deallocate
// the supporting N-1 flow.
type Watchdog struct {
	cron      *sched.Cron
	period    time.Duration
	deadline  time.Duration
	neighbors func() []*object.Neighbor
	probe     Probe
	onDead    func(*object.Neighbor)

	handle sched.TaskHandle
}

// NewWatchdog builds a Watchdog from the connection's configured
// watchdog_period_ms and declared_dead_interval_ms.
func NewWatchdog(cron *sched.Cron, params connstate.PolicyParams, neighbors func() []*object.Neighbor, probe Probe, onDead func(*object.Neighbor)) *Watchdog {
	return &Watchdog{
		cron:      cron,
		period:    time.Duration(params.WatchdogPeriodMs) * time.Millisecond,
		deadline:  time.Duration(params.DeclaredDeadIntervalMs) * time.Millisecond,
		neighbors: neighbors,
		probe:     probe,
		onDead:    onDead,
	}
}

// Start arms the periodic probe task.
func (w *Watchdog) Start() {
	w.handle = w.cron.Every(w.period, w.tick)
}

// Stop cancels the periodic probe task. Best-effort: a probe already
// in flight runs to completion.
func (w *Watchdog) Stop() {
	w.handle.Cancel()
}

func (w *Watchdog) tick() {
	for _, n := range w.neighbors() {
		if !n.Enrolled {
			continue
		}
		n := n
		go w.probeOne(n)
	}
}

func (w *Watchdog) probeOne(n *object.Neighbor) {
	ctx, cancel := context.WithTimeout(context.Background(), w.deadline)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.probe(n) }()

	select {
	case err := <-done:
		if err != nil {
			log.WithFields(log.Fields{"neighbor": n.Address, "err": err}).Warn("enrollment: watchdog probe failed")
			w.onDead(n)
		}
	case <-ctx.Done():
		log.WithFields(log.Fields{"neighbor": n.Address}).Warn("enrollment: watchdog probe timed out, declaring neighbor dead")
		w.onDead(n)
	}
}
