// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"sync"
	"testing"
	"time"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
	"github.com/rina-go/dtcp/pkg/sched"
)

func TestNeighborEnrollerBumpsAttemptsAndRetries(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	rib := NewRIB(connstate.Address(1))
	rib.AddNeighbor(&object.Neighbor{Address: 2, Enrolled: false}, 1)

	params := connstate.DefaultPolicyParams()
	params.NeighborEnrollerPeriodMs = 10
	params.MaxEnrollmentAttempts = 5

	var mu sync.Mutex
	attempts := 0

	ne := NewNeighborEnroller(cron, params, rib, func(n *object.Neighbor) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil
	})
	ne.Start()
	defer ne.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := attempts
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts < 2 {
		t.Fatalf("expected at least 2 enrollment attempts, got %d", attempts)
	}

	n, ok := rib.Get(connstate.Address(2))
	if !ok {
		t.Fatal("neighbor should still be in the RIB")
	}
	if n.EnrollmentAttempts == 0 {
		t.Error("expected EnrollmentAttempts to have been bumped")
	}
}

func TestNeighborEnrollerEvictsAfterMaxAttempts(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	rib := NewRIB(connstate.Address(1))
	n := &object.Neighbor{Address: 2, Enrolled: false, EnrollmentAttempts: 3}
	rib.AddNeighbor(n, 1)

	params := connstate.DefaultPolicyParams()
	params.NeighborEnrollerPeriodMs = 10
	params.MaxEnrollmentAttempts = 3

	ne := NewNeighborEnroller(cron, params, rib, func(*object.Neighbor) error { return nil })
	ne.Start()
	defer ne.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, ok := rib.Get(connstate.Address(2)); !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the neighbor to be evicted from the RIB after exceeding max_enrollment_attempts")
}

func TestNeighborEnrollerSkipsAlreadyEnrolled(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	rib := NewRIB(connstate.Address(1))
	rib.AddNeighbor(&object.Neighbor{Address: 2, Enrolled: true}, 1)

	params := connstate.DefaultPolicyParams()
	params.NeighborEnrollerPeriodMs = 10
	params.MaxEnrollmentAttempts = 3

	var mu sync.Mutex
	attempts := 0
	ne := NewNeighborEnroller(cron, params, rib, func(*object.Neighbor) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil
	})
	ne.Start()
	defer ne.Stop()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if attempts != 0 {
		t.Errorf("an already-enrolled neighbor must never trigger a re-enrollment attempt, got %d attempts", attempts)
	}
}
