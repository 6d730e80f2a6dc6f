// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dtp implements the DTP sender/receiver state vector: the narrow
// set of fields and accessors the DTCP engine reads and updates through
// the §4.3 contract, plus the mechanics of actually handing data PDUs to
// the RMT (respecting the window/rate predicates DTCP supplies) and
// reassembling inbound data PDUs into an in-order delivery stream.
package dtp

import (
	"sync"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/rmt"
	"github.com/rina-go/dtcp/pkg/seqs"
)

// SV is the DTP state vector for one connection's data-transfer direction.
// All fields are protected by mu; callers must go through the accessor
// methods.
type SV struct {
	mu sync.Mutex

	nextSndSeq   seqs.Num
	maxSentSeq   seqs.Num
	rcvLftWin    seqs.Num
	windowClosed bool
	aTimerMs     uint32

	rmtH      rmt.RMT
	dstAddr   connstate.Address
	qos       connstate.QoSID
	windowOK  func(seqs.Num) bool
	rateOK    func() bool

	pending   map[seqs.Num]*pci.PDU
	delivered chan *pci.PDU

	cwq  *CWQ
	rtxq *RTXQ
}

// New creates a DTP state vector with the given initial sequence number
// for both directions (a fresh connection's send-next and receive-LWE
// start at the same value), the configured A-timer, and the given
// retransmission queue.
func New(initialSeq seqs.Num, aTimerMs uint32, rtxq *RTXQ) *SV {
	return &SV{
		nextSndSeq: initialSeq,
		maxSentSeq: initialSeq,
		rcvLftWin:  initialSeq,
		aTimerMs:   aTimerMs,
		delivered:  make(chan *pci.PDU, 256),
		cwq:        NewCWQ(),
		rtxq:       rtxq,
	}
}

// Bind wires this SV to its RMT egress point and to the DTCP-supplied
// window/rate admission predicates. Called once by the DT builder after
// both DTP and DTCP instances exist — see the design's note on cyclic
// ownership: neither side owns the other, a third party wires them.
func (sv *SV) Bind(rmtH rmt.RMT, dst connstate.Address, qos connstate.QoSID, windowOK func(seqs.Num) bool, rateOK func() bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	sv.rmtH, sv.dstAddr, sv.qos, sv.windowOK, sv.rateOK = rmtH, dst, qos, windowOK, rateOK
}

// --- §4.3 narrow interface consumed by the DTCP engine ---

// DtSVRcvLftWin returns the receiver left-window edge: the highest
// in-order sequence delivered, plus one.
func (sv *SV) DtSVRcvLftWin() seqs.Num {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.rcvLftWin
}

// DtSVA returns the current A-timer value in milliseconds; zero means
// delayed ACK is disabled.
func (sv *SV) DtSVA() uint32 {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.aTimerMs
}

// DtSVWindowClosed sets or clears the window-closed flag. Clearing it
// drains the CWQ to the RMT for as long as the bound window/rate
// predicates permit.
func (sv *SV) DtSVWindowClosed(closed bool) {
	sv.mu.Lock()
	sv.windowClosed = closed
	rmtH, dst, qos, windowOK, rateOK := sv.rmtH, sv.dstAddr, sv.qos, sv.windowOK, sv.rateOK
	sv.mu.Unlock()

	if !closed && rmtH != nil {
		sv.cwq.DeliverFunc(rmtH, dst, qos, windowOK, rateOK, sv.onCWQSent)
	}
}

// DrainCWQ hands as many parked PDUs to the RMT as the bound window/rate
// predicates permit, keeping max_seq_nr_sent and the retransmission queue
// consistent with PDUs that left by this path rather than through Send.
func (sv *SV) DrainCWQ() int {
	sv.mu.Lock()
	rmtH, dst, qos, windowOK, rateOK := sv.rmtH, sv.dstAddr, sv.qos, sv.windowOK, sv.rateOK
	sv.mu.Unlock()
	if rmtH == nil {
		return 0
	}
	return sv.cwq.DeliverFunc(rmtH, dst, qos, windowOK, rateOK, sv.onCWQSent)
}

// onCWQSent records a PDU that left the CWQ as sent, exactly as Send does
// for a PDU admitted immediately: bump max_seq_nr_sent and start it aging
// in the retransmission queue.
func (sv *SV) onCWQSent(pdu *pci.PDU) {
	sv.recordSent(pdu.PCI.SeqNum)
	sv.rtxq.Push(pdu.PCI.SeqNum, pdu)
}

// WindowClosed reports the current flag value.
func (sv *SV) WindowClosed() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.windowClosed
}

// DtpSVMaxSeqNrSent returns the highest data sequence number handed to
// the RMT so far.
func (sv *SV) DtpSVMaxSeqNrSent() seqs.Num {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.maxSentSeq
}

// DtCwq returns the handle to the closed-window queue.
func (sv *SV) DtCwq() *CWQ { return sv.cwq }

// DtRtxq returns the handle to the retransmission queue.
func (sv *SV) DtRtxq() *RTXQ { return sv.rtxq }

// --- sender-side mechanics ---

// Send assigns the next sequence number to a data PDU built by pduBuilder,
// and either hands it straight to the RMT (recording it in the RTXQ) when
// the window and rate predicates permit, or parks it on the CWQ and marks
// the window closed.
func (sv *SV) Send(pduBuilder func(seq seqs.Num) *pci.PDU) (seq seqs.Num, sent bool) {
	sv.mu.Lock()
	seq = sv.nextSndSeq
	sv.nextSndSeq++
	rmtH, dst, qos, windowOK, rateOK := sv.rmtH, sv.dstAddr, sv.qos, sv.windowOK, sv.rateOK
	sv.mu.Unlock()

	pdu := pduBuilder(seq)

	admit := rmtH != nil
	if admit && windowOK != nil {
		admit = windowOK(seq)
	}
	if admit && rateOK != nil {
		admit = rateOK()
	}

	if admit {
		if err := rmtH.Send(dst, qos, pdu); err == nil {
			sv.recordSent(seq)
			sv.rtxq.Push(seq, pdu)
			return seq, true
		}
	}

	sv.cwq.Push(pdu)
	sv.DtSVWindowClosed(true)
	return seq, false
}

func (sv *SV) recordSent(seq seqs.Num) {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if seqs.Lt(sv.maxSentSeq, seq) {
		sv.maxSentSeq = seq
	}
}

// --- receiver-side mechanics ---

// Deliver processes an inbound data PDU: duplicates (seq before the
// current LWE) are reported via the returned duplicate flag and otherwise
// ignored; in-order arrivals advance the LWE and flush any now-contiguous
// buffered out-of-order arrivals onto the Delivered channel; out-of-order
// arrivals are buffered awaiting the gap to close (the sender is expected
// to retransmit the missing sequence, per the RTXQ/NACK machinery).
func (sv *SV) Deliver(pdu *pci.PDU) (duplicate bool) {
	sv.mu.Lock()
	seq := pdu.PCI.SeqNum

	if seqs.Lt(seq, sv.rcvLftWin) {
		sv.mu.Unlock()
		return true
	}

	if seq != sv.rcvLftWin {
		if sv.pending == nil {
			sv.pending = make(map[seqs.Num]*pci.PDU)
		}
		sv.pending[seq] = pdu
		sv.mu.Unlock()
		return false
	}

	sv.rcvLftWin++
	out := []*pci.PDU{pdu}
	for {
		next, ok := sv.pending[sv.rcvLftWin]
		if !ok {
			break
		}
		delete(sv.pending, sv.rcvLftWin)
		out = append(out, next)
		sv.rcvLftWin++
	}
	ch := sv.delivered
	sv.mu.Unlock()

	for _, p := range out {
		select {
		case ch <- p:
		default:
		}
	}
	return false
}

// Delivered is the channel of in-order data PDUs ready for the upper
// layer.
func (sv *SV) Delivered() <-chan *pci.PDU { return sv.delivered }
