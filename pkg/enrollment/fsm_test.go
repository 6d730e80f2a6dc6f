// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"testing"
	"time"

	"github.com/rina-go/dtcp/pkg/enrollment/object"
)

// awaitBoth mirrors the teacher's paired active/passive completion
// wait: one goroutine per side drains its Error() channel exactly once
// and reports in, while the test body races the pair against a shared
// timeout.
func awaitBoth(t *testing.T, enrollee, enroller *StageHandler) (enrolleeErr, enrollerErr error) {
	t.Helper()

	type result struct {
		who string
		err error
	}
	finChan := make(chan result, 2)
	go func() { finChan <- result{"enrollee", <-enrollee.Error()} }()
	go func() { finChan <- result{"enroller", <-enroller.Error()} }()

	for i := 0; i < 2; i++ {
		select {
		case r := <-finChan:
			if r.who == "enrollee" {
				enrolleeErr = r.err
			} else {
				enrollerErr = r.err
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for enrollment to complete")
		}
	}
	return
}

func TestFullEnrollmentExchange(t *testing.T) {
	toEnroller := make(chan Message)
	toEnrollee := make(chan Message)

	enrolleeCfg := Configuration{
		LocalName:      "enrollee",
		PeerName:       "enroller",
		SupportingDIFs: []string{"shim-dif"},
	}
	enrollerCfg := Configuration{
		AuthCheck:           func(src, authType string, authValue []byte) error { return nil },
		NamespaceCheck:      func(addr uint32) bool { return false },
		Allocate:            func() (uint32, bool) { return 42, true },
		StaticObjects:       []object.Object{&object.Constants{AddressWidth: 32, MaxPDUSize: 1500}},
		AllowedToStartEarly: true,
		OperationalStatus:   true,
	}

	enrollee := RunEnrollee(enrolleeCfg, toEnrollee, toEnroller)
	enroller := RunEnroller(enrollerCfg, toEnroller, toEnrollee)

	enrolleeErr, enrollerErr := awaitBoth(t, enrollee, enroller)
	if enrolleeErr != nil {
		t.Fatalf("enrollee failed: %v", enrolleeErr)
	}
	if enrollerErr != nil {
		t.Fatalf("enroller failed: %v", enrollerErr)
	}

	enrolleeState := enrollee.State()
	if !enrolleeState.Enrolled {
		t.Error("enrollee should have reached ENROLLED")
	}
	if !enrolleeState.Committed {
		t.Error("enrollee should have committed before reaching ENROLLED")
	}
	if enrolleeState.AssignedAddress != 42 {
		t.Errorf("expected allocated address 42, got %d", enrolleeState.AssignedAddress)
	}

	var gotConstants bool
	for _, obj := range enrolleeState.ReceivedObjects {
		if _, ok := obj.(*object.Constants); ok {
			gotConstants = true
		}
	}
	if !gotConstants {
		t.Error("enrollee should have received the pushed Constants object")
	}

	enrollerState := enroller.State()
	if !enrollerState.Enrolled {
		t.Error("enroller should consider itself done once the final Start is sent")
	}
	if enrollerState.PeerResult != 0 {
		t.Errorf("expected enrollee's StopR result to be 0, got %d", enrollerState.PeerResult)
	}
}

func TestEnrollmentRejectedByAuthCheck(t *testing.T) {
	toEnroller := make(chan Message)
	toEnrollee := make(chan Message)

	enrolleeCfg := Configuration{LocalName: "enrollee", PeerName: "enroller"}
	enrollerCfg := Configuration{
		AuthCheck: func(src, authType string, authValue []byte) error {
			return errAuthDenied
		},
	}

	enrollee := RunEnrollee(enrolleeCfg, toEnrollee, toEnroller)
	enroller := RunEnroller(enrollerCfg, toEnroller, toEnrollee)

	enrolleeErr, enrollerErr := awaitBoth(t, enrollee, enroller)
	if enrolleeErr == nil {
		t.Error("expected the enrollee to observe the connect rejection")
	}
	if enrollerErr == nil {
		t.Error("expected the enroller to report its own rejection as a stage error")
	}
}

func TestEnrollmentAbortsWhenNotAllowedToStartEarlyWithMissingObjects(t *testing.T) {
	toEnroller := make(chan Message)
	toEnrollee := make(chan Message)

	enrolleeCfg := Configuration{
		LocalName: "enrollee",
		PeerName:  "enroller",
		MissingObjects: func(received []object.Object) []object.Class {
			return []object.Class{object.ClassQoSCube}
		},
	}
	enrollerCfg := Configuration{
		NamespaceCheck:      func(addr uint32) bool { return false },
		Allocate:            func() (uint32, bool) { return 42, true },
		StaticObjects:       []object.Object{&object.Constants{AddressWidth: 32, MaxPDUSize: 1500}},
		AllowedToStartEarly: false,
		OperationalStatus:   true,
	}

	enrollee := RunEnrollee(enrolleeCfg, toEnrollee, toEnroller)
	enroller := RunEnroller(enrollerCfg, toEnroller, toEnrollee)

	enrolleeErr, enrollerErr := awaitBoth(t, enrollee, enroller)
	if enrolleeErr == nil {
		t.Error("expected the enrollee to abort rather than commit with missing objects")
	}
	if enrollerErr == nil {
		t.Error("expected the enroller to observe the enrollee's negative StopR as a stage error")
	}

	enrolleeState := enrollee.State()
	if enrolleeState.Committed {
		t.Error("enrollee should not have committed")
	}
	if enrolleeState.Enrolled {
		t.Error("enrollee should not have reached ENROLLED")
	}

	enrollerState := enroller.State()
	if enrollerState.PeerResult == 0 {
		t.Error("expected the enroller to record a nonzero PeerResult from the abort StopR")
	}
}

var errAuthDenied = &authError{"credentials rejected"}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }
