// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"github.com/rina-go/dtcp/pkg/dtcperr"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
)

// PushStaticStage implements message-protocol step 3: the enroller
// pushes the static DIF data (constants, QoS cubes, whatevercast names)
// followed by the dynamic state (neighbors, DFT entries) via a run of
// Create messages, closed off by a batch-end sentinel Create so the
// enrollee knows when to stop looping.
type PushStaticStage struct{}

func (PushStaticStage) Handle(state *State, closeChan <-chan struct{}) {
	if state.Configuration.Role == RoleEnroller {
		handlePushEnroller(state, closeChan)
	} else {
		handlePushEnrollee(state, closeChan)
	}
}

func handlePushEnroller(state *State, closeChan <-chan struct{}) {
	invoke := uint32(3)
	all := append(append([]object.Object{}, state.Configuration.StaticObjects...), state.Configuration.DynamicObjects...)

	for _, obj := range all {
		value, err := object.Encode(obj)
		if err != nil {
			state.StageError = dtcperr.Wrap(dtcperr.PolicyFailure, "enroller: encode %s: %v", obj.Class(), err)
			return
		}
		invoke++
		create := &Create{InvokeID: invoke, ObjectClass: string(obj.Class()), ObjectValue: value}
		select {
		case state.MsgOut <- create:
		case <-closeChan:
			state.StageError = ErrStageClosed
			return
		}
	}

	invoke++
	select {
	case state.MsgOut <- &Create{InvokeID: invoke}: // end-of-batch sentinel
	case <-closeChan:
		state.StageError = ErrStageClosed
	}
}

func handlePushEnrollee(state *State, closeChan <-chan struct{}) {
	for {
		msg, err := recvOrClose(state.MsgIn, closeChan)
		if err != nil {
			state.StageError = err
			return
		}
		create, ok := msg.(*Create)
		if !ok {
			state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: expected Create, got %T", msg)
			return
		}
		if create.EndOfBatch() {
			return
		}

		obj, err := object.Decode(object.Class(create.ObjectClass), create.ObjectValue)
		if err != nil {
			state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: decode %s: %v", create.ObjectClass, err)
			return
		}
		state.ReceivedObjects = append(state.ReceivedObjects, obj)
	}
}
