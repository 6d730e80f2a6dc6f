// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtp

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/rmt"
	"github.com/rina-go/dtcp/pkg/seqs"
)

// CWQ is the closed-window queue: outgoing data PDUs whose sequence number
// would exceed snd_rt_wind_edge (or whose send would exceed the current
// rate tick) are parked here, FIFO by enqueue order, until the window or
// rate tick opens again.
type CWQ struct {
	mu sync.Mutex
	q  []*pci.PDU
}

// NewCWQ creates an empty closed-window queue.
func NewCWQ() *CWQ {
	return &CWQ{}
}

// Push enqueues a parked data PDU.
func (c *CWQ) Push(pdu *pci.PDU) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.q = append(c.q, pdu)
}

// Peek returns the sequence number of the next-to-send entry, for
// diagnostics.
func (c *CWQ) Peek() (seqs.Num, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.q) == 0 {
		return 0, false
	}
	return c.q[0].PCI.SeqNum, true
}

// Empty reports whether the queue currently holds no entries.
func (c *CWQ) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.q) == 0
}

// Len reports the number of currently parked PDUs.
func (c *CWQ) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.q)
}

// Deliver pops entries in FIFO order and hands them to the RMT while
// windowOK(seq) and rateOK() both hold. It stops at the first entry either
// predicate rejects, or on the first RMT send error — in the latter case
// the PDU stays at the head of the queue for the next Deliver call. It
// returns the number of PDUs actually handed to the RMT.
func (c *CWQ) Deliver(sender rmt.RMT, dst connstate.Address, qos connstate.QoSID, windowOK func(seqs.Num) bool, rateOK func() bool) int {
	return c.DeliverFunc(sender, dst, qos, windowOK, rateOK, nil)
}

// DeliverFunc behaves like Deliver but additionally invokes onSent with
// every PDU it actually hands to the RMT, so a caller can keep its own
// "highest sequence sent" and retransmission-queue bookkeeping consistent
// with PDUs that left the CWQ rather than SV.Send.
func (c *CWQ) DeliverFunc(sender rmt.RMT, dst connstate.Address, qos connstate.QoSID, windowOK func(seqs.Num) bool, rateOK func() bool, onSent func(*pci.PDU)) int {
	delivered := 0
	for {
		c.mu.Lock()
		if len(c.q) == 0 {
			c.mu.Unlock()
			return delivered
		}
		head := c.q[0]
		c.mu.Unlock()

		if windowOK != nil && !windowOK(head.PCI.SeqNum) {
			return delivered
		}
		if rateOK != nil && !rateOK() {
			return delivered
		}

		if err := sender.Send(dst, qos, head); err != nil {
			log.WithFields(log.Fields{"seq": head.PCI.SeqNum, "err": err}).Warn("dtp: cwq deliver failed, will retry")
			return delivered
		}

		c.mu.Lock()
		c.q = c.q[1:]
		c.mu.Unlock()
		delivered++
		if onSent != nil {
			onSent(head)
		}
	}
}
