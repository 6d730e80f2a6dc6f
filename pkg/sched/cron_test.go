// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sched

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryFiresRepeatedly(t *testing.T) {
	c := NewCron()
	defer c.Stop()

	var count atomic.Int32
	c.Every(5*time.Millisecond, func() { count.Add(1) })

	time.Sleep(50 * time.Millisecond)
	if got := count.Load(); got < 5 {
		t.Errorf("expected at least 5 fires, got %d", got)
	}
}

func TestAfterFiresOnce(t *testing.T) {
	c := NewCron()
	defer c.Stop()

	var count atomic.Int32
	c.After(5*time.Millisecond, func() { count.Add(1) })

	time.Sleep(40 * time.Millisecond)
	if got := count.Load(); got != 1 {
		t.Errorf("expected exactly 1 fire, got %d", got)
	}
}

func TestCancelPreventsFire(t *testing.T) {
	c := NewCron()
	defer c.Stop()

	var count atomic.Int32
	h := c.After(10*time.Millisecond, func() { count.Add(1) })
	h.Cancel()

	time.Sleep(30 * time.Millisecond)
	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 fires after cancel, got %d", got)
	}
}
