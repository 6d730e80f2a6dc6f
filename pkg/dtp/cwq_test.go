// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtp

import (
	"testing"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/seqs"
)

type fakeRMT struct {
	sent []seqs.Num
}

func (f *fakeRMT) Send(_ connstate.Address, _ connstate.QoSID, pdu *pci.PDU) error {
	f.sent = append(f.sent, pdu.PCI.SeqNum)
	return nil
}

func pduWithSeq(seq seqs.Num) *pci.PDU {
	return &pci.PDU{PCI: pci.PCI{Type: pci.TypeDT, SeqNum: seq}}
}

func TestCWQFIFOOrder(t *testing.T) {
	q := NewCWQ()
	q.Push(pduWithSeq(1))
	q.Push(pduWithSeq(2))
	q.Push(pduWithSeq(3))

	sender := &fakeRMT{}
	delivered := q.Deliver(sender, 0, 0, func(seqs.Num) bool { return true }, func() bool { return true })

	if delivered != 3 {
		t.Fatalf("expected 3 delivered, got %d", delivered)
	}
	want := []seqs.Num{1, 2, 3}
	for i, w := range want {
		if sender.sent[i] != w {
			t.Errorf("order[%d] = %d, want %d", i, sender.sent[i], w)
		}
	}
	if !q.Empty() {
		t.Error("queue should be empty after full delivery")
	}
}

func TestCWQStopsAtWindowLimit(t *testing.T) {
	q := NewCWQ()
	q.Push(pduWithSeq(1))
	q.Push(pduWithSeq(2))

	sender := &fakeRMT{}
	windowOK := func(seq seqs.Num) bool { return seq <= 1 }
	delivered := q.Deliver(sender, 0, 0, windowOK, func() bool { return true })

	if delivered != 1 {
		t.Fatalf("expected 1 delivered, got %d", delivered)
	}
	peek, ok := q.Peek()
	if !ok || peek != 2 {
		t.Errorf("expected seq 2 still parked, got %v ok=%v", peek, ok)
	}
}
