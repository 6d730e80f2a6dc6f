// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
	"github.com/rina-go/dtcp/pkg/sched"
)

func TestWatchdogDeclaresDeadOnProbeTimeout(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	params := connstate.DefaultPolicyParams()
	params.WatchdogPeriodMs = 10
	params.DeclaredDeadIntervalMs = 20

	neighbor := &object.Neighbor{Address: 7, Enrolled: true}

	var mu sync.Mutex
	var dead []*object.Neighbor

	probe := func(n *object.Neighbor) error {
		time.Sleep(200 * time.Millisecond) // never answers within the deadline
		return nil
	}
	onDead := func(n *object.Neighbor) {
		mu.Lock()
		dead = append(dead, n)
		mu.Unlock()
	}

	w := NewWatchdog(cron, params, func() []*object.Neighbor { return []*object.Neighbor{neighbor} }, probe, onDead)
	w.Start()
	defer w.Stop()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(dead)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(dead) == 0 {
		t.Fatal("expected the watchdog to declare the neighbor dead after the probe timed out")
	}
	if dead[0].Address != neighbor.Address {
		t.Errorf("expected dead neighbor %d, got %d", neighbor.Address, dead[0].Address)
	}
}

func TestWatchdogSurvivesSuccessfulProbe(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	params := connstate.DefaultPolicyParams()
	params.WatchdogPeriodMs = 10
	params.DeclaredDeadIntervalMs = 200

	neighbor := &object.Neighbor{Address: 9, Enrolled: true}

	var mu sync.Mutex
	probed := 0
	declaredDead := false

	probe := func(n *object.Neighbor) error {
		mu.Lock()
		probed++
		mu.Unlock()
		return nil
	}
	onDead := func(n *object.Neighbor) {
		mu.Lock()
		declaredDead = true
		mu.Unlock()
	}

	w := NewWatchdog(cron, params, func() []*object.Neighbor { return []*object.Neighbor{neighbor} }, probe, onDead)
	w.Start()
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if probed == 0 {
		t.Error("expected at least one probe to have run")
	}
	if declaredDead {
		t.Error("a neighbor that always answers in time must never be declared dead")
	}
}

func TestWatchdogProbeError(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	params := connstate.DefaultPolicyParams()
	params.WatchdogPeriodMs = 10
	params.DeclaredDeadIntervalMs = 200

	neighbor := &object.Neighbor{Address: 3, Enrolled: true}

	done := make(chan struct{}, 1)
	probe := func(n *object.Neighbor) error { return errors.New("read failed") }
	onDead := func(n *object.Neighbor) {
		select {
		case done <- struct{}{}:
		default:
		}
	}

	w := NewWatchdog(cron, params, func() []*object.Neighbor { return []*object.Neighbor{neighbor} }, probe, onDead)
	w.Start()
	defer w.Stop()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("expected onDead to fire after a probe error")
	}
}
