// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtp

import (
	"testing"

	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/sched"
	"github.com/rina-go/dtcp/pkg/seqs"
)

func TestSVSendParksOnClosedWindow(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	rtxq := NewRTXQ(cron, 1000, func(*Entry) {})
	sv := New(1, 0, rtxq)

	sender := &fakeRMT{}
	windowEdge := seqs.Num(3) // only seq < 3 admitted: 1 and 2
	sv.Bind(sender, 0, 0, func(seq seqs.Num) bool { return seqs.Lt(seq, windowEdge) }, func() bool { return true })

	for i := 0; i < 3; i++ {
		sv.Send(func(seq seqs.Num) *pci.PDU { return pduWithSeq(seq) })
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 PDUs sent to RMT, got %d", len(sender.sent))
	}
	if !sv.WindowClosed() {
		t.Error("window should be closed after third send overruns the edge")
	}
	if sv.DtCwq().Empty() {
		t.Error("CWQ should hold the parked third PDU")
	}
}

func TestSVWindowClearedDrainsCWQ(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	rtxq := NewRTXQ(cron, 1000, func(*Entry) {})
	sv := New(1, 0, rtxq)

	sender := &fakeRMT{}
	edge := seqs.Num(3)
	sv.Bind(sender, 0, 0, func(seq seqs.Num) bool { return seqs.Lt(seq, edge) }, func() bool { return true })

	for i := 0; i < 3; i++ {
		sv.Send(func(seq seqs.Num) *pci.PDU { return pduWithSeq(seq) })
	}
	if sv.DtCwq().Empty() {
		t.Fatal("expected one parked PDU before window opens")
	}

	edge = 4 // simulate an ACK+FC opening the window
	sv.DtSVWindowClosed(false)

	if !sv.DtCwq().Empty() {
		t.Error("CWQ should have drained once the window opened")
	}
	if len(sender.sent) != 3 {
		t.Errorf("expected all 3 PDUs eventually sent, got %d", len(sender.sent))
	}
}

func TestSVDrainCWQEntersRetransmissionQueue(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	rtxq := NewRTXQ(cron, 1000, func(*Entry) {})
	sv := New(1, 0, rtxq)

	sender := &fakeRMT{}
	edge := seqs.Num(1) // nothing admitted at first
	sv.Bind(sender, 0, 0, func(seq seqs.Num) bool { return seqs.Lt(seq, edge) }, func() bool { return true })

	sv.Send(func(seq seqs.Num) *pci.PDU { return pduWithSeq(seq) })
	if sv.DtCwq().Empty() {
		t.Fatal("expected the PDU to park on the CWQ")
	}
	if !sv.DtRtxq().Empty() {
		t.Fatal("a parked PDU must not yet be in the retransmission queue")
	}

	edge = 2
	if n := sv.DrainCWQ(); n != 1 {
		t.Fatalf("DrainCWQ delivered %d, want 1", n)
	}
	if sv.DtRtxq().Empty() {
		t.Error("a PDU delivered out of the CWQ must enter the retransmission queue")
	}
	if got := sv.DtpSVMaxSeqNrSent(); got != 1 {
		t.Errorf("max_seq_nr_sent after CWQ drain = %d, want 1", got)
	}
}

func TestSVDeliverInOrderAndBuffering(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()
	rtxq := NewRTXQ(cron, 1000, func(*Entry) {})
	sv := New(1, 0, rtxq)

	if dup := sv.Deliver(pduWithSeq(1)); dup {
		t.Error("seq 1 should not be a duplicate")
	}
	if dup := sv.Deliver(pduWithSeq(3)); dup {
		t.Error("seq 3 arriving early should be buffered, not a duplicate")
	}
	if sv.DtSVRcvLftWin() != 2 {
		t.Errorf("LWE after delivering 1 = %d, want 2", sv.DtSVRcvLftWin())
	}

	if dup := sv.Deliver(pduWithSeq(2)); dup {
		t.Error("seq 2 should not be a duplicate")
	}
	if sv.DtSVRcvLftWin() != 4 {
		t.Errorf("LWE after filling the gap = %d, want 4 (should flush buffered seq 3 too)", sv.DtSVRcvLftWin())
	}

	if dup := sv.Deliver(pduWithSeq(1)); !dup {
		t.Error("re-delivering seq 1 should now be a duplicate")
	}
}
