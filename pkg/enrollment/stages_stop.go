// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"github.com/rina-go/dtcp/pkg/dtcperr"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
)

// StopEnrollmentStage implements message-protocol step 4: the enroller
// sends Stop(allowed_to_start_early); the enrollee either commits
// directly or first drives a Read/ReadR catch-up loop for whatever
// Configuration.MissingObjects reports still absent, then commits and
// replies StopR. With objects missing and allowed_to_start_early false,
// the enrollee instead replies with a negative StopR and aborts without
// committing.
type StopEnrollmentStage struct{}

func (StopEnrollmentStage) Handle(state *State, closeChan <-chan struct{}) {
	if state.Configuration.Role == RoleEnroller {
		handleStopEnroller(state, closeChan)
	} else {
		handleStopEnrollee(state, closeChan)
	}
}

func handleStopEnrollee(state *State, closeChan <-chan struct{}) {
	msg, err := recvOrClose(state.MsgIn, closeChan)
	if err != nil {
		state.StageError = err
		return
	}
	stop, ok := msg.(*Stop)
	if !ok {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: expected Stop, got %T", msg)
		return
	}

	var missing []object.Class
	if fn := state.Configuration.MissingObjects; fn != nil {
		missing = fn(state.ReceivedObjects)
	}

	// Mirrors EnrolleeStateMachine::stop()'s allowed_to_start_early_ check:
	// with objects still missing and no permission to start early, the
	// enrollee aborts rather than committing incomplete state, replying
	// with a negative StopR so the enroller doesn't wait on a commit that
	// will never come.
	if len(missing) > 0 && !stop.AllowedToStartEarly {
		reply := &StopR{InvokeID: stop.InvokeID, Result: 1, ResultReason: "not allowed to start early with objects still missing"}
		select {
		case state.MsgOut <- reply:
		case <-closeChan:
		}
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: not allowed to start early with %d object(s) still missing", len(missing))
		return
	}

	invoke := stop.InvokeID
	if len(missing) > 0 {
		for _, class := range missing {
			invoke++
			req := &Read{InvokeID: invoke, ObjectClass: string(class)}
			select {
			case state.MsgOut <- req:
			case <-closeChan:
				state.StageError = ErrStageClosed
				return
			}

			reply, err := recvOrClose(state.MsgIn, closeChan)
			if err != nil {
				state.StageError = err
				return
			}
			readR, ok := reply.(*ReadR)
			if !ok {
				state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: expected ReadR, got %T", reply)
				return
			}
			if readR.Result != 0 {
				state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: read %s failed: %s", class, readR.ResultReason)
				return
			}
			obj, err := object.Decode(class, readR.ObjectValue)
			if err != nil {
				state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: decode read result %s: %v", class, err)
				return
			}
			state.ReceivedObjects = append(state.ReceivedObjects, obj)
		}
	}

	state.Committed = true
	reply := &StopR{InvokeID: stop.InvokeID}
	select {
	case state.MsgOut <- reply:
	case <-closeChan:
		state.StageError = ErrStageClosed
	}
}

func handleStopEnroller(state *State, closeChan <-chan struct{}) {
	out := &Stop{InvokeID: 100, AllowedToStartEarly: state.Configuration.AllowedToStartEarly}
	select {
	case state.MsgOut <- out:
	case <-closeChan:
		state.StageError = ErrStageClosed
		return
	}

	byClass := make(map[object.Class]object.Object)
	for _, obj := range append(append([]object.Object{}, state.Configuration.StaticObjects...), state.Configuration.DynamicObjects...) {
		byClass[obj.Class()] = obj
	}

	for {
		msg, err := recvOrClose(state.MsgIn, closeChan)
		if err != nil {
			state.StageError = err
			return
		}
		switch m := msg.(type) {
		case *Read:
			resp := &ReadR{InvokeID: m.InvokeID}
			if obj, ok := byClass[object.Class(m.ObjectClass)]; ok {
				value, err := object.Encode(obj)
				if err != nil {
					resp.Result = 1
					resp.ResultReason = err.Error()
				} else {
					resp.ObjectValue = value
				}
			} else {
				resp.Result = 1
				resp.ResultReason = "unknown object class"
			}
			select {
			case state.MsgOut <- resp:
			case <-closeChan:
				state.StageError = ErrStageClosed
				return
			}
		case *StopR:
			state.PeerResult = m.Result
			if m.Result != 0 {
				state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enroller: enrollee failed to commit: %s", m.ResultReason)
			}
			return
		default:
			state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enroller: unexpected message %T during stop", msg)
			return
		}
	}
}
