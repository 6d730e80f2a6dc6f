// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtcp

import "github.com/rina-go/dtcp/pkg/seqs"

// sv is the DTCP state vector. All fields are protected by Engine.mu; the
// Engine is the only thing that ever touches sv directly, so sv itself
// carries no lock of its own.
type sv struct {
	// Outbound.
	nextSndCtlSeq  seqs.Num
	lastSndDataAck seqs.Num
	sndLftWin      seqs.Num
	sndRtWindEdge  seqs.Num
	sndrCredit     uint32
	sndrRate       uint32
	pdusSentInTimeUnit uint32

	// Inbound.
	lastRcvCtlSeq      seqs.Num
	lastRcvDataAck      seqs.Num
	rcvrCredit         uint32
	rcvrRtWindEdge     seqs.Num
	rcvrRate           uint32
	pdusRcvdInTimeUnit uint32

	// Duplicate-control counters.
	acks     uint64
	flowCtl  uint64
}

// maxCredit is the ULONG_MAX-equivalent sentinel the original clamps
// remaining_credit to on overflow (design note (b)).
const maxCredit = ^uint32(0)

// addClampU32 adds delta to base, clamping at maxCredit on overflow.
func addClampU32(base seqs.Num, delta uint32) seqs.Num {
	sum := uint64(base) + uint64(delta)
	if sum > uint64(maxCredit) {
		return seqs.Num(maxCredit)
	}
	return seqs.Num(sum)
}
