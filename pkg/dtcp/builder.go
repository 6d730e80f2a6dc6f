// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtcp

import (
	"time"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/dtp"
	"github.com/rina-go/dtcp/pkg/rmt"
	"github.com/rina-go/dtcp/pkg/sched"
	"github.com/rina-go/dtcp/pkg/seqs"
)

// Pair is the mutually-registered (DTP, DTCP) instance pair produced by
// Build. Per the design's note on cyclic ownership, neither side owns the
// other — Pair, the "DT builder" stand-in, is what holds both and is
// responsible for tearing both down.
type Pair struct {
	DTP    *dtp.SV
	DTCP   *Engine
}

// rtxTimeoutMs derives the RTXQ's base retransmission timeout from the
// connection's configured time unit, since the design names no separate
// retransmission-timeout knob and RTT estimation is a no-op by default.
func rtxTimeoutMs(conn *connstate.Connection) uint32 {
	if conn.Policy().TimeUnitMs > 0 {
		return conn.Policy().TimeUnitMs
	}
	return 1000
}

// Build constructs a bound DTP/DTCP pair for conn, wires the DTP SV's
// window/rate admission predicates to the DTCP engine's, and wires the
// RTXQ's head-timer expiry to the engine's retransmission_timer_expiry
// policy hook. initialSeq seeds the data sequence namespace (the DTP SV
// and the engine's data-ack fields); the control sequence namespace
// (DTCP) starts at zero independently, as the design specifies no shared
// origin between the two namespaces.
func Build(conn *connstate.Connection, rmtH rmt.RMT, cron *sched.Cron, policies Policies, initialSeq seqs.Num) *Pair {
	var engine *Engine

	rtxq := dtp.NewRTXQ(cron, rtxTimeoutMs(conn), func(entry *dtp.Entry) {
		engine.policies.RetransmissionTimerExpiry(engine, entry)
	})

	sv := dtp.New(initialSeq, conn.Policy().ATimerMs, rtxq)

	engine = New(conn, sv, rmtH, cron, policies, 0, initialSeq)

	sv.Bind(rmtH, conn.DstAddr(), conn.QoS(), engine.windowPermit, engine.ratePermit)

	return &Pair{DTP: sv, DTCP: engine}
}

// Close tears the pair down, cancelling scheduled tasks and draining
// in-flight control PDUs, bounded by deadline.
func (p *Pair) Close(deadline time.Duration) error {
	return p.DTCP.Close(deadline)
}
