// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"github.com/rina-go/dtcp/pkg/dtcperr"
)

// FinalStartStage implements message-protocol step 5: the enroller
// sends Start(operational_status) to bring the enrollee fully online.
type FinalStartStage struct{}

func (FinalStartStage) Handle(state *State, closeChan <-chan struct{}) {
	if state.Configuration.Role == RoleEnroller {
		out := &Start{InvokeID: 200, OperationalStatus: state.Configuration.OperationalStatus}
		select {
		case state.MsgOut <- out:
		case <-closeChan:
			state.StageError = ErrStageClosed
			return
		}
		state.Enrolled = true
		return
	}

	msg, err := recvOrClose(state.MsgIn, closeChan)
	if err != nil {
		state.StageError = err
		return
	}
	if _, ok := msg.(*Start); !ok {
		state.StageError = dtcperr.Wrap(dtcperr.ProtocolViolation, "enrollee: expected final Start, got %T", msg)
		return
	}
	state.Enrolled = true
}
