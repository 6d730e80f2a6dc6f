// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtcp

import (
	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/dtcperr"
	"github.com/rina-go/dtcp/pkg/dtp"
	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/seqs"
)

// Policies is the pluggable policy vtable. Every hook has a default
// implementation; callers override only the hooks they care about and
// MergePolicies fills the rest in at construction time, so nothing in the
// engine ever observes an absent hook.
//
// Policy callbacks must not attempt to reacquire the Engine's SV lock —
// each hook is invoked with the lock already released, by design, so that
// a hook is free to call back into the Engine's other exported methods if
// it needs to, but must not be called while Engine.mu is held.
type Policies struct {
	FlowInit                  func(e *Engine) error
	SvUpdate                  func(e *Engine, seq seqs.Num) error
	LostControlPDU            func(e *Engine)
	RTTEstimator              func(e *Engine)
	RetransmissionTimerExpiry func(e *Engine, entry *dtp.Entry)
	ReceivedRetransmission    func(e *Engine) error
	RcvrAck                   func(e *Engine, seq seqs.Num) error
	SenderAck                 func(e *Engine, ackSeq seqs.Num) error
	SendingAck                func(e *Engine) error
	InitialRate               func(e *Engine)
	ReceivingFlowControl      func(e *Engine, seq seqs.Num) error
	UpdateCredit              func(e *Engine) error
	FlowControlOverrun        func(e *Engine, pdu *pci.PDU) error
	ReconcileFlowConflict     func(e *Engine) error
	RcvrFlowControl           func(e *Engine, seq seqs.Num) error
	RateReduction             func(e *Engine) error
	RcvrControlAck            func(e *Engine)
	NoRateSlowDown            func(e *Engine)
	NoOverrideDefaultPeak     func(e *Engine) error
}

// DefaultPolicies returns the policy vtable's default implementation for
// every hook.
func DefaultPolicies() Policies {
	return Policies{
		FlowInit:                  defaultFlowInit,
		SvUpdate:                  defaultSvUpdate,
		LostControlPDU:            defaultLostControlPDU,
		RTTEstimator:              defaultRTTEstimator,
		RetransmissionTimerExpiry: defaultRetransmissionTimerExpiry,
		ReceivedRetransmission:    defaultReceivedRetransmission,
		RcvrAck:                   defaultRcvrAck,
		SenderAck:                 defaultSenderAck,
		SendingAck:                defaultSendingAck,
		InitialRate:               defaultInitialRate,
		ReceivingFlowControl:      defaultReceivingFlowControl,
		UpdateCredit:              defaultUpdateCredit,
		FlowControlOverrun:        defaultFlowControlOverrun,
		ReconcileFlowConflict:     defaultReconcileFlowConflict,
		RcvrFlowControl:           defaultRcvrFlowControl,
		RateReduction:             defaultRateReduction,
		RcvrControlAck:            defaultRcvrControlAck,
		NoRateSlowDown:            defaultNoRateSlowDown,
		NoOverrideDefaultPeak:     defaultNoOverrideDefaultPeak,
	}
}

// MergePolicies fills every nil hook in p with its default, so a caller
// supplying a partially-populated Policies never causes a nil-pointer
// call down the line.
func MergePolicies(p Policies) Policies {
	d := DefaultPolicies()
	if p.FlowInit == nil {
		p.FlowInit = d.FlowInit
	}
	if p.SvUpdate == nil {
		p.SvUpdate = d.SvUpdate
	}
	if p.LostControlPDU == nil {
		p.LostControlPDU = d.LostControlPDU
	}
	if p.RTTEstimator == nil {
		p.RTTEstimator = d.RTTEstimator
	}
	if p.RetransmissionTimerExpiry == nil {
		p.RetransmissionTimerExpiry = d.RetransmissionTimerExpiry
	}
	if p.ReceivedRetransmission == nil {
		p.ReceivedRetransmission = d.ReceivedRetransmission
	}
	if p.RcvrAck == nil {
		p.RcvrAck = d.RcvrAck
	}
	if p.SenderAck == nil {
		p.SenderAck = d.SenderAck
	}
	if p.SendingAck == nil {
		p.SendingAck = d.SendingAck
	}
	if p.InitialRate == nil {
		p.InitialRate = d.InitialRate
	}
	if p.ReceivingFlowControl == nil {
		p.ReceivingFlowControl = d.ReceivingFlowControl
	}
	if p.UpdateCredit == nil {
		p.UpdateCredit = d.UpdateCredit
	}
	if p.FlowControlOverrun == nil {
		p.FlowControlOverrun = d.FlowControlOverrun
	}
	if p.ReconcileFlowConflict == nil {
		p.ReconcileFlowConflict = d.ReconcileFlowConflict
	}
	if p.RcvrFlowControl == nil {
		p.RcvrFlowControl = d.RcvrFlowControl
	}
	if p.RateReduction == nil {
		p.RateReduction = d.RateReduction
	}
	if p.RcvrControlAck == nil {
		p.RcvrControlAck = d.RcvrControlAck
	}
	if p.NoRateSlowDown == nil {
		p.NoRateSlowDown = d.NoRateSlowDown
	}
	if p.NoOverrideDefaultPeak == nil {
		p.NoOverrideDefaultPeak = d.NoOverrideDefaultPeak
	}
	return p
}

// --- default hook implementations ---

func defaultFlowInit(e *Engine) error {
	e.mu.Lock()
	policy := e.conn.Policy()
	e.sv.sndrCredit = policy.InitialCredit
	e.sv.sndRtWindEdge = addClampU32(e.sv.lastSndDataAck, policy.InitialCredit)
	e.sv.rcvrCredit = policy.InitialCredit
	e.sv.rcvrRate = policy.SenderRate
	e.sv.sndrRate = policy.SenderRate
	e.mu.Unlock()

	e.dtp.DtSVWindowClosed(false)
	e.policies.InitialRate(e)

	e.setState(StateOpen)
	return nil
}

func defaultSvUpdate(e *Engine, seq seqs.Num) error {
	var merr error

	policy := e.conn.Policy()

	if policy.WindowBased {
		if err := e.policies.RcvrFlowControl(e, seq); err != nil {
			log.WithFields(log.Fields{"seq": seq, "err": err}).Warn("dtcp: rcvr_flow_control failed")
			merr = appendErr(merr, err)
		}
	}
	if policy.RateBased {
		if err := e.policies.RateReduction(e); err != nil {
			log.WithFields(log.Fields{"err": err}).Warn("dtcp: rate_reduction failed")
			merr = appendErr(merr, err)
		}
	}
	if policy.WindowBased && policy.RateBased {
		// Window and rate disagreeing is the one reconciliation case the
		// original leaves unimplemented; we only count it (design note c).
		if err := e.policies.ReconcileFlowConflict(e); err != nil {
			merr = appendErr(merr, err)
		}
	}
	if !policy.RtxControl {
		if err := e.policies.ReceivingFlowControl(e, seq); err != nil {
			log.WithFields(log.Fields{"seq": seq, "err": err}).Warn("dtcp: receiving_flow_control failed")
			merr = appendErr(merr, err)
		}
	} else {
		if err := e.policies.RcvrAck(e, seq); err != nil {
			log.WithFields(log.Fields{"seq": seq, "err": err}).Warn("dtcp: rcvr_ack failed")
			merr = appendErr(merr, err)
		}
	}
	return merr
}

func defaultLostControlPDU(e *Engine) {
	log.WithFields(log.Fields{"conn": e.conn.String()}).Warn("dtcp: lost control pdu detected")
}

func defaultRTTEstimator(_ *Engine) {}

func defaultRetransmissionTimerExpiry(e *Engine, entry *dtp.Entry) {
	policy := e.conn.Policy()
	if entry.ResendCount > policy.DataRetransmitMax {
		e.fail(dtcperr.Wrap(dtcperr.RetransmissionExhausted, "seq %d exceeded %d retransmissions", entry.Seq, policy.DataRetransmitMax))
		return
	}
	if err := e.rmtH.Send(e.conn.DstAddr(), e.conn.QoS(), entry.PDU); err != nil {
		log.WithFields(log.Fields{"seq": entry.Seq, "err": err}).Warn("dtcp: retransmission send failed")
	}
}

func defaultReceivedRetransmission(e *Engine) error {
	log.WithFields(log.Fields{"conn": e.conn.String()}).Debug("dtcp: duplicate data pdu received")
	return e.policies.SendingAck(e)
}

func defaultRcvrAck(e *Engine, _ seqs.Num) error {
	subtype := e.pduCtrlTypeGet()
	if subtype == pci.SubtypeNone {
		return nil
	}
	return e.sendControlPDU(subtype)
}

func defaultSenderAck(e *Engine, ackSeq seqs.Num) error {
	policy := e.conn.Policy()
	if policy.RtxControl {
		e.dtp.DtRtxq().Ack(ackSeq)
		e.mu.Lock()
		if next := ackSeq + 1; seqs.Lt(e.sv.sndLftWin, next) {
			e.sv.sndLftWin = next
		}
		e.mu.Unlock()
	}
	e.policies.RTTEstimator(e)
	return nil
}

func defaultSendingAck(e *Engine) error {
	lwe := e.dtp.DtSVRcvLftWin()
	return e.policies.SvUpdate(e, lwe)
}

func defaultInitialRate(e *Engine) {
	e.mu.Lock()
	e.sv.pdusSentInTimeUnit = 0
	e.mu.Unlock()
}

func defaultReceivingFlowControl(e *Engine, _ seqs.Num) error {
	if !e.conn.Policy().FlowControl {
		return nil
	}
	return e.sendControlPDU(pci.SubtypeFC)
}

func defaultUpdateCredit(e *Engine) error {
	e.mu.Lock()
	lwe := e.dtp.DtSVRcvLftWin()
	e.sv.rcvrRtWindEdge = addClampU32(lwe, e.sv.rcvrCredit)
	e.mu.Unlock()
	return nil
}

func defaultFlowControlOverrun(e *Engine, pdu *pci.PDU) error {
	log.WithFields(log.Fields{"seq": pdu.PCI.SeqNum}).Warn("dtcp: flow control overrun, dropping pdu")
	return nil
}

func defaultReconcileFlowConflict(e *Engine) error {
	e.mu.Lock()
	e.stats.ReconcileCount++
	e.mu.Unlock()
	return nil
}

func defaultRcvrFlowControl(e *Engine, seq seqs.Num) error {
	e.mu.Lock()
	e.sv.rcvrRtWindEdge = addClampU32(seq, e.sv.rcvrCredit)
	e.mu.Unlock()
	return nil
}

func defaultRateReduction(e *Engine) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sv.sndrRate > 1 {
		e.sv.sndrRate /= 2
	}
	return nil
}

func defaultRcvrControlAck(_ *Engine) {}

func defaultNoRateSlowDown(_ *Engine) {}

func defaultNoOverrideDefaultPeak(e *Engine) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	peak := e.conn.Policy().SenderRate
	if peak != 0 && e.sv.sndrRate > peak {
		e.sv.sndrRate = peak
	}
	return nil
}
