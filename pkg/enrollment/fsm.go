// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

// enrolleeStages is the fixed five-step sequence the enrollee-role
// State walks, one entry per message-protocol step named in §4.5.
func enrolleeStages() []StageSetup {
	return []StageSetup{
		{Stage: ConnectStage{}},
		{Stage: StartEnrollmentStage{}},
		{Stage: PushStaticStage{}},
		{Stage: StopEnrollmentStage{}},
		{Stage: FinalStartStage{}},
	}
}

// enrollerStages is the same sequence from the enroller's side; each
// Stage's Handle method branches on Configuration.Role so the two
// sequences are symmetric rather than independently implemented twice.
func enrollerStages() []StageSetup {
	return []StageSetup{
		{Stage: ConnectStage{}},
		{Stage: StartEnrollmentStage{}},
		{Stage: PushStaticStage{}},
		{Stage: StopEnrollmentStage{}},
		{Stage: FinalStartStage{}},
	}
}

// RunEnrollee drives cfg (with Role forced to RoleEnrollee) through the
// enrollee state sequence: NULL -> WAIT_CONNECT_RESPONSE ->
// WAIT_START_ENROLLMENT_RESPONSE -> WAIT_STOP_ENROLLMENT_RESPONSE ->
// (WAIT_READ_RESPONSE | WAIT_START) -> ENROLLED, implicitly: each Stage
// boundary corresponds to one of those named states' exit.
func RunEnrollee(cfg Configuration, msgIn <-chan Message, msgOut chan<- Message) *StageHandler {
	cfg.Role = RoleEnrollee
	return NewStageHandler(enrolleeStages(), msgIn, msgOut, cfg)
}

// RunEnroller drives cfg (with Role forced to RoleEnroller) through the
// enroller state sequence: NULL -> WAIT_START_ENROLLMENT ->
// WAIT_STOP_ENROLLMENT_RESPONSE -> ENROLLED.
func RunEnroller(cfg Configuration, msgIn <-chan Message, msgOut chan<- Message) *StageHandler {
	cfg.Role = RoleEnroller
	return NewStageHandler(enrollerStages(), msgIn, msgOut, cfg)
}
