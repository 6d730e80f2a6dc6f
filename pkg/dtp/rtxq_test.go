// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtp

import (
	"sync"
	"testing"
	"time"

	"github.com/rina-go/dtcp/pkg/sched"
)

func TestRTXQAckRemovesUpToSeq(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	q := NewRTXQ(cron, 1000, func(*Entry) {})
	q.Push(1, pduWithSeq(1))
	q.Push(2, pduWithSeq(2))
	q.Push(3, pduWithSeq(3))

	q.Ack(2)

	if got, _ := q.Head(); got != 3 {
		t.Errorf("head after ack(2) = %d, want 3", got)
	}
	if q.Len() != 1 {
		t.Errorf("len after ack(2) = %d, want 1", q.Len())
	}
}

func TestRTXQHeadTimerFiresOnExpiry(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	var mu sync.Mutex
	var fired []uint32

	q := NewRTXQ(cron, 10, func(e *Entry) {
		mu.Lock()
		fired = append(fired, e.ResendCount)
		mu.Unlock()
	})
	q.Push(1, pduWithSeq(1))

	time.Sleep(60 * time.Millisecond)
	q.Ack(1) // stop further timers before assertions

	mu.Lock()
	defer mu.Unlock()
	if len(fired) == 0 {
		t.Fatal("expected at least one expiry callback")
	}
	for i, count := range fired {
		if count != uint32(i+1) {
			t.Errorf("fired[%d] resend count = %d, want %d", i, count, i+1)
		}
	}
}

func TestRTXQNackResendsImmediately(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	var mu sync.Mutex
	var fired int

	q := NewRTXQ(cron, 10000, func(e *Entry) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	q.Push(5, pduWithSeq(5))

	q.Nack(5)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("expected exactly 1 fire from Nack, got %d", fired)
	}
}

func TestRTXQEmpty(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	q := NewRTXQ(cron, 1000, func(*Entry) {})
	if !q.Empty() {
		t.Error("new queue should be empty")
	}
	q.Push(1, pduWithSeq(1))
	if q.Empty() {
		t.Error("queue with one entry should not be empty")
	}
	q.Ack(1)
	if !q.Empty() {
		t.Error("queue should be empty after acking its only entry")
	}
}
