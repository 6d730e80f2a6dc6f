// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"github.com/rina-go/dtcp/pkg/dtcperr"
)

// StartEnrollmentStage implements message-protocol step 2: the enrollee
// proposes an address (or asks for one) via Start; the enroller
// validates or allocates it and answers with StartR.
type StartEnrollmentStage struct{}

func (StartEnrollmentStage) Handle(state *State, closeChan <-chan struct{}) {
	if state.Configuration.Role == RoleEnrollee {
		handleStartEnrollee(state, closeChan)
	} else {
		handleStartEnroller(state, closeChan)
	}
}

func handleStartEnrollee(state *State, closeChan <-chan struct{}) {
	out := &Start{
		InvokeID:       2,
		HasAddress:     state.AssignedAddress != 0,
		Address:        state.AssignedAddress,
		SupportingDIFs: state.Configuration.SupportingDIFs,
	}

	select {
	case state.MsgOut <- out:
	case <-closeChan:
		state.StageError = ErrStageClosed
		return
	}

	msg, err := recvOrClose(state.MsgIn, closeChan)
	if err != nil {
		state.StageError = err
		return
	}
	resp, ok := msg.(*StartR)
	if !ok {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: expected StartR, got %T", msg)
		return
	}
	if resp.Result != 0 {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: start rejected: %s", resp.ResultReason)
		return
	}
	state.AssignedAddress = resp.Address
}

func handleStartEnroller(state *State, closeChan <-chan struct{}) {
	msg, err := recvOrClose(state.MsgIn, closeChan)
	if err != nil {
		state.StageError = err
		return
	}
	req, ok := msg.(*Start)
	if !ok {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enroller: expected Start, got %T", msg)
		return
	}

	resp := &StartR{InvokeID: req.InvokeID}

	valid := req.HasAddress
	if valid && state.Configuration.NamespaceCheck != nil {
		valid = state.Configuration.NamespaceCheck(req.Address)
	}

	if valid {
		resp.Address = req.Address
	} else if state.Configuration.Allocate != nil {
		addr, ok := state.Configuration.Allocate()
		if !ok {
			resp.Result = 1
			resp.ResultReason = "address space exhausted"
		}
		resp.Address = addr
	} else {
		resp.Result = 1
		resp.ResultReason = "no address available and no allocator configured"
	}

	select {
	case state.MsgOut <- resp:
	case <-closeChan:
		state.StageError = ErrStageClosed
		return
	}

	if resp.Result != 0 {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enroller: %s", resp.ResultReason)
		return
	}
	state.AssignedAddress = resp.Address
}
