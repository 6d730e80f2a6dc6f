// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package enrollment implements the two coupled CDAP-style finite state
// machines of §4.5: the enrollee, which joins a DIF through a neighbor,
// and the enroller, which admits it. Both run as a StageHandler over a
// sequence of Stages, each handling one leg of the five-step message
// protocol — the same staged pattern the teacher uses for its own
// connection-establishment exchange, generalized from a fixed two-party
// session negotiation to an asymmetric admission protocol.
package enrollment

import (
	"errors"
	"sync"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
)

// Role distinguishes the two ends of the enrollment exchange; every
// Stage branches on it instead of being duplicated per side.
type Role int

const (
	RoleEnrollee Role = iota
	RoleEnroller
)

func (r Role) String() string {
	if r == RoleEnroller {
		return "enroller"
	}
	return "enrollee"
}

// Configuration is the read-only input to a run of the state machine.
type Configuration struct {
	Role Role

	LocalName      string
	PeerName       string
	SupportingDIFs []string

	// AuthCheck authenticates an incoming Connect; used only by the
	// enroller. A nil AuthCheck accepts every Connect.
	AuthCheck func(src, authType string, authValue []byte) error

	// NamespaceCheck reports whether a self-proposed address in Start is
	// acceptable; used only by the enroller. A nil NamespaceCheck accepts
	// any proposed address.
	NamespaceCheck func(addr uint32) bool

	// Allocate assigns a fresh address when Start carries none, or the
	// proposed one fails NamespaceCheck; used only by the enroller.
	Allocate func() (addr uint32, ok bool)

	// StaticObjects and DynamicObjects are pushed via Create by the
	// enroller, in that order; used only by the enroller.
	StaticObjects  []object.Object
	DynamicObjects []object.Object

	// AllowedToStartEarly is sent in Stop; used only by the enroller.
	AllowedToStartEarly bool

	// MissingObjects, when non-nil, lets the enrollee request objects it
	// determines it still needs after the push completes, via Read. A nil
	// MissingObjects never requests anything (the common case once the
	// enroller's push already covers everything needed).
	MissingObjects func(received []object.Object) []object.Class

	// OperationalStatus is the value carried by the enroller's final
	// Start; used only by the enroller.
	OperationalStatus bool
}

// State threads the running result of each Stage to the next, and back
// to the caller once the StageHandler completes.
type State struct {
	Configuration Configuration

	MsgIn  <-chan Message
	MsgOut chan<- Message

	StageError error

	// Populated over the run.
	AssignedAddress uint32
	PeerResult      uint32
	ReceivedObjects []object.Object
	Committed       bool
	Enrolled        bool
}

// Stage is one leg of the enrollment protocol.
type Stage interface {
	Handle(state *State, closeChan <-chan struct{})
}

// ErrStageClosed is State.StageError's value when a Stage observes
// closeChan fire before its exchange completed.
var ErrStageClosed = errors.New("enrollment: stage closed")

// StageSetup pairs a Stage with optional hooks run immediately before
// and after it, mirroring the teacher's StageSetup.
type StageSetup struct {
	Stage    Stage
	PreHook  func(*StageHandler, *State) error
	PostHook func(*StageHandler, *State) error
}

// StageHandler runs a fixed sequence of Stages against one State,
// stopping at the first Stage that reports an error.
type StageHandler struct {
	stages []StageSetup
	state  *State

	mu      sync.RWMutex
	current StageSetup

	errChan   chan error
	closeChan chan struct{}
}

// NewStageHandler builds and starts a StageHandler over stages.
func NewStageHandler(stages []StageSetup, msgIn <-chan Message, msgOut chan<- Message, cfg Configuration) *StageHandler {
	sh := &StageHandler{
		stages: stages,
		state: &State{
			Configuration: cfg,
			MsgIn:         msgIn,
			MsgOut:        msgOut,
		},
		errChan:   make(chan error),
		closeChan: make(chan struct{}),
	}
	go sh.run()
	return sh
}

func (sh *StageHandler) run() {
	defer close(sh.errChan)
	defer func() {
		sh.mu.Lock()
		sh.current = StageSetup{}
		sh.mu.Unlock()
	}()

	for _, setup := range sh.stages {
		sh.mu.Lock()
		sh.current = setup
		sh.mu.Unlock()

		if setup.PreHook != nil {
			if err := setup.PreHook(sh, sh.state); err != nil {
				sh.errChan <- err
				return
			}
		}

		setup.Stage.Handle(sh.state, sh.closeChan)
		if err := sh.state.StageError; err != nil {
			sh.errChan <- err
			return
		}

		if setup.PostHook != nil {
			if err := setup.PostHook(sh, sh.state); err != nil {
				sh.errChan <- err
				return
			}
		}
	}
}

// Error reports the run's outcome: closed with no value sent on
// success, or a single error on failure.
func (sh *StageHandler) Error() <-chan error { return sh.errChan }

// State returns the handler's State. Safe to read once a value has
// arrived (or the channel has closed) on Error — the run goroutine has
// exited by then and no longer mutates it.
func (sh *StageHandler) State() *State { return sh.state }

// Close aborts the current stage by closing closeChan. It is not
// idempotent: call it at most once per StageHandler, as a second call
// panics on the already-closed channel.
func (sh *StageHandler) Close() {
	close(sh.closeChan)
}

// connstateAddress is a small convenience so Stages can hand back a
// typed address without every Stage importing connstate directly for
// just this conversion.
func connstateAddress(addr uint32) connstate.Address { return connstate.Address(addr) }
