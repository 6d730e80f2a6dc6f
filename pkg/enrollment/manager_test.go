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

// pairedDialer simulates opening a layer-management flow to a neighbor
// that happens to run its own enroller-role Manager, by wiring the two
// sides' channels together in memory and running an AcceptEnrollment
// handler on the "remote" Manager right away.
func pairedDialer(remote *Manager, local connstate.Address) Dialer {
	return func(neighbor connstate.Address, supportingDIF string) (<-chan Message, chan<- Message, func(), error) {
		toRemote := make(chan Message)
		toLocal := make(chan Message)

		remote.AcceptEnrollment(local, toRemote, toLocal)

		closed := false
		var mu sync.Mutex
		closeFn := func() {
			mu.Lock()
			defer mu.Unlock()
			if !closed {
				closed = true
			}
		}
		return toLocal, toRemote, closeFn, nil
	}
}

func TestManagerEnrollToDIFDeliversResponse(t *testing.T) {
	cron := sched.NewCron()
	defer cron.Stop()

	params := connstate.DefaultPolicyParams()
	params.EnrollmentTimeoutMs = 2000

	enrollerStatic := []object.Object{&object.Constants{AddressWidth: 32}}
	enrollerMgr := NewManager(cron, params, connstate.Address(200), nil, nil,
		func(uint32) bool { return false },
		func() (uint32, bool) { return 55, true },
		enrollerStatic,
	)

	var mu sync.Mutex
	var response Result
	responded := make(chan struct{}, 1)

	enrolleeMgr := NewManager(cron, params, connstate.Address(100),
		pairedDialer(enrollerMgr, connstate.Address(100)),
		func(r Result) {
			mu.Lock()
			response = r
			mu.Unlock()
			responded <- struct{}{}
		},
		nil, nil, nil,
	)

	if _, err := enrolleeMgr.EnrollToDIF(connstate.Address(200), "shim-dif"); err != nil {
		t.Fatalf("EnrollToDIF: %v", err)
	}

	select {
	case <-responded:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for enroll_to_dif_response")
	}

	mu.Lock()
	defer mu.Unlock()
	if response.Err != nil {
		t.Fatalf("expected a successful enrollment, got %v", response.Err)
	}
	if len(response.Neighbors) == 0 {
		t.Error("expected the response to report at least the newly-enrolled neighbor")
	}
}
