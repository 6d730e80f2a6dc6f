// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"fmt"

	"github.com/rina-go/dtcp/pkg/dtcperr"
)

// ConnectStage implements message-protocol step 1: the enrollee opens
// the layer-management flow with Connect; the enroller authenticates it
// via Configuration.AuthCheck and replies with ConnectR.
type ConnectStage struct{}

func (ConnectStage) Handle(state *State, closeChan <-chan struct{}) {
	if state.Configuration.Role == RoleEnrollee {
		handleConnectEnrollee(state, closeChan)
	} else {
		handleConnectEnroller(state, closeChan)
	}
}

func handleConnectEnrollee(state *State, closeChan <-chan struct{}) {
	out := &Connect{
		InvokeID: 1,
		Src:      state.Configuration.LocalName,
		Dst:      state.Configuration.PeerName,
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
	resp, ok := msg.(*ConnectR)
	if !ok {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: expected ConnectR, got %T", msg)
		return
	}
	if resp.Result != 0 {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: connect refused: %s", resp.ResultReason)
		return
	}
}

func handleConnectEnroller(state *State, closeChan <-chan struct{}) {
	msg, err := recvOrClose(state.MsgIn, closeChan)
	if err != nil {
		state.StageError = err
		return
	}
	req, ok := msg.(*Connect)
	if !ok {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enroller: expected Connect, got %T", msg)
		return
	}

	resp := &ConnectR{InvokeID: req.InvokeID}
	if check := state.Configuration.AuthCheck; check != nil {
		if err := check(req.Src, req.AuthType, req.AuthValue); err != nil {
			resp.Result = 1
			resp.ResultReason = err.Error()
		}
	}

	select {
	case state.MsgOut <- resp:
	case <-closeChan:
		state.StageError = ErrStageClosed
		return
	}

	if resp.Result != 0 {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enroller: rejected connect from %s: %s", req.Src, resp.ResultReason)
	}
}

// recvOrClose is the shared select-on-input-or-teardown idiom every
// Stage's message wait uses.
func recvOrClose(msgIn <-chan Message, closeChan <-chan struct{}) (Message, error) {
	select {
	case <-closeChan:
		return nil, ErrStageClosed
	case msg, ok := <-msgIn:
		if !ok {
			return nil, fmt.Errorf("enrollment: message channel closed")
		}
		return msg, nil
	}
}
