// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtp

import (
	"sync"
	"time"

	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/sched"
	"github.com/rina-go/dtcp/pkg/seqs"
)

// Entry is a single sent-but-unacked data PDU awaiting ACK or retry.
type Entry struct {
	Seq         seqs.Num
	PDU         *pci.PDU
	ResendCount uint32
}

// RTXQ is the retransmission queue: it holds exactly the data PDUs in
// [snd_lft_win, last_sent] that are not yet ACKed, in ascending sequence
// order. Only the head entry ever carries a live timer, matching the
// "called when RTXQ head's timer fires" contract — once the head is
// ACKed, the next entry (if any) gets a fresh timer; after a NACK resend
// the current head's timer is re-armed.
//
// onExpire is invoked with the resend count already incremented; it is
// the policy-vtable's retransmission_timer_expiry hook's mechanism, not
// its policy — RTXQ itself never decides to give up or what to resend
// with, it only times the head and reports.
type RTXQ struct {
	mu        sync.Mutex
	entries   []*Entry
	cron      *sched.Cron
	timeoutMs uint32
	onExpire  func(*Entry)
	headTimer sched.TaskHandle
}

// NewRTXQ creates an empty retransmission queue. timeoutMs is the base
// retransmission timeout applied to every entry; onExpire fires each time
// the current head's timer elapses without an ACK/NACK removing it.
func NewRTXQ(cron *sched.Cron, timeoutMs uint32, onExpire func(*Entry)) *RTXQ {
	return &RTXQ{
		cron:      cron,
		timeoutMs: timeoutMs,
		onExpire:  onExpire,
	}
}

// Push enqueues a newly sent data PDU. If the queue was empty, this arms
// the head timer.
func (q *RTXQ) Push(seq seqs.Num, pdu *pci.PDU) {
	q.mu.Lock()
	entry := &Entry{Seq: seq, PDU: pdu}
	wasEmpty := len(q.entries) == 0
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	if wasEmpty {
		q.armHeadTimer()
	}
}

func (q *RTXQ) armHeadTimer() {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	head := q.entries[0]
	q.mu.Unlock()

	q.headTimer = q.cron.After(time.Duration(q.timeoutMs)*time.Millisecond, func() {
		q.expireHead(head)
	})
}

func (q *RTXQ) expireHead(expected *Entry) {
	q.mu.Lock()
	if len(q.entries) == 0 || q.entries[0] != expected {
		q.mu.Unlock()
		return
	}
	expected.ResendCount++
	q.mu.Unlock()

	q.onExpire(expected)

	q.mu.Lock()
	stillHead := len(q.entries) > 0 && q.entries[0] == expected
	q.mu.Unlock()
	if stillHead {
		q.armHeadTimer()
	}
}

// Ack removes entries with sequence <= seq and cancels the head timer,
// rearming it for the new head if the queue is not now empty.
func (q *RTXQ) Ack(seq seqs.Num) {
	q.mu.Lock()
	q.headTimer.Cancel()
	idx := 0
	for idx < len(q.entries) && seqs.Le(q.entries[idx].Seq, seq) {
		idx++
	}
	q.entries = q.entries[idx:]
	rearm := len(q.entries) > 0
	q.mu.Unlock()

	if rearm {
		q.armHeadTimer()
	}
}

// Nack immediately triggers onExpire for the single entry matching seq,
// without waiting for its timer, and rearms the head timer afterward.
func (q *RTXQ) Nack(seq seqs.Num) {
	q.mu.Lock()
	q.headTimer.Cancel()
	var target *Entry
	for _, e := range q.entries {
		if e.Seq == seq {
			target = e
			break
		}
	}
	q.mu.Unlock()

	if target == nil {
		q.armHeadTimerIfAny()
		return
	}

	target.ResendCount++
	q.onExpire(target)
	q.armHeadTimerIfAny()
}

func (q *RTXQ) armHeadTimerIfAny() {
	q.mu.Lock()
	any := len(q.entries) > 0
	q.mu.Unlock()
	if any {
		q.armHeadTimer()
	}
}

// Empty reports whether no entries remain unacked.
func (q *RTXQ) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0
}

// Len reports the number of unacked entries.
func (q *RTXQ) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Head returns the sequence number of the oldest unacked entry, which is
// also snd_lft_win's source of truth before any ACK advances it.
func (q *RTXQ) Head() (seqs.Num, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return 0, false
	}
	return q.entries[0].Seq, true
}

// HeadEntry returns the full head entry, for policies that need the PDU
// itself (to resend) or the resend count (to judge exhaustion).
func (q *RTXQ) HeadEntry() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0], true
}
