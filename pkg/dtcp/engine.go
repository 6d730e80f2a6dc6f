// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dtcp implements the DTCP control state and engine: the state
// vector of §3, the policy vtable of §4.4, the control-PDU factory, the
// common control-PDU receive path, and the scheduled periodic tasks
// (sending-ACK, retransmission, rate-refill).
package dtcp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/dtcperr"
	"github.com/rina-go/dtcp/pkg/dtp"
	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/rmt"
	"github.com/rina-go/dtcp/pkg/sched"
	"github.com/rina-go/dtcp/pkg/seqs"
)

// DTPInterface is the narrow, synchronous §4.3 contract the DTCP engine
// uses to read and update DTP-owned state. Every method holds the DTP
// lock internally.
type DTPInterface interface {
	DtSVRcvLftWin() seqs.Num
	DtSVA() uint32
	DtSVWindowClosed(bool)
	DtpSVMaxSeqNrSent() seqs.Num
	DtCwq() *dtp.CWQ
	DtRtxq() *dtp.RTXQ
	DrainCWQ() int
}

// State is the per-connection DTCP view of the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateOpen
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpen:
		return "OPEN"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Stats are read-only diagnostic counters that do not themselves gate any
// behavior; see SPEC_FULL's "window/rate reconciliation counters" note.
type Stats struct {
	ReconcileCount uint64
}

// Snapshot is a point-in-time copy of an Engine's state vector, taken
// under the SV lock and carrying no lock of its own,
// for diagnostics and for tests that want to assert invariants without
// racing the live SV.
type Snapshot struct {
	State          State
	NextSndCtlSeq  seqs.Num
	LastSndDataAck seqs.Num
	SndLftWin      seqs.Num
	SndRtWindEdge  seqs.Num
	SndrCredit     uint32
	SndrRate       uint32

	LastRcvCtlSeq  seqs.Num
	RcvrCredit     uint32
	RcvrRtWindEdge seqs.Num

	Acks    uint64
	FlowCtl uint64

	Stats Stats
}

// Engine is one connection's DTCP instance: the state vector, the policy
// vtable, the control-PDU factory, and the scheduled periodic tasks, bound
// to a parent DTP state vector and an RMT egress point.
type Engine struct {
	conn     *connstate.Connection
	dtp      DTPInterface
	rmtH     rmt.RMT
	policies Policies
	cron     *sched.Cron

	mu    sync.Mutex
	sv    sv
	state State
	stats Stats

	cpdusMu   sync.Mutex
	cpdusCond *sync.Cond
	cpdusCnt  int

	aTimer    sched.TaskHandle
	rateTimer sched.TaskHandle

	errCh chan error
}

// New constructs a DTCP engine. initialCtlSeq seeds the control sequence
// namespace; initialDataSeq seeds last_snd_data_ack, snd_lft_win and
// last_rcv_data_ack to the connection's starting data sequence number
// (both directions start at the DTP SV's initial sequence number).
func New(conn *connstate.Connection, dtpIface DTPInterface, rmtH rmt.RMT, cron *sched.Cron, policies Policies, initialCtlSeq, initialDataSeq seqs.Num) *Engine {
	e := &Engine{
		conn:     conn,
		dtp:      dtpIface,
		rmtH:     rmtH,
		policies: MergePolicies(policies),
		cron:     cron,
		state:    StateIdle,
		errCh:    make(chan error, 1),
	}
	e.cpdusCond = sync.NewCond(&e.cpdusMu)
	e.sv.nextSndCtlSeq = initialCtlSeq
	e.sv.lastSndDataAck = initialDataSeq
	e.sv.sndLftWin = initialDataSeq
	e.sv.lastRcvDataAck = initialDataSeq
	return e
}

// Errors returns the channel on which a fatal engine error (most notably
// RetransmissionExhausted) is signaled upward, once, before the engine
// transitions to CLOSED.
func (e *Engine) Errors() <-chan error { return e.errCh }

// Open runs flow_init and transitions IDLE->OPEN, then arms the scheduled
// periodic tasks (A-timer driven sending-ACK, rate-unit refill).
func (e *Engine) Open() error {
	if err := e.policies.FlowInit(e); err != nil {
		return err
	}

	policy := e.conn.Policy()
	if a := e.dtp.DtSVA(); a > 0 {
		e.aTimer = e.cron.Every(time.Duration(a)*time.Millisecond, func() {
			if err := e.policies.SendingAck(e); err != nil {
				log.WithFields(log.Fields{"err": err}).Debug("dtcp: sending_ack sub-policies reported failures")
			}
		})
	}
	if policy.RateBased && policy.TimeUnitMs > 0 {
		e.rateTimer = e.cron.Every(time.Duration(policy.TimeUnitMs)*time.Millisecond, e.refillRateTick)
	}
	return nil
}

func (e *Engine) refillRateTick() {
	e.mu.Lock()
	e.sv.pdusSentInTimeUnit = 0
	e.sv.pdusRcvdInTimeUnit = 0
	e.mu.Unlock()

	if err := e.policies.NoOverrideDefaultPeak(e); err != nil {
		log.WithFields(log.Fields{"err": err}).Debug("dtcp: no_override_default_peak failed")
	}

	e.dtp.DrainCWQ()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// GetState returns the current lifecycle state.
func (e *Engine) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// RequestClose transitions OPEN->DRAINING. No new data is admitted from
// this point on; ACKs, NACKs, and retransmissions continue until the RTXQ
// drains and cpdus_in_transit reaches zero, at which point the engine
// transitions to CLOSED.
func (e *Engine) RequestClose() {
	e.mu.Lock()
	if e.state == StateOpen {
		e.state = StateDraining
	}
	e.mu.Unlock()
	e.maybeFinishDraining()
}

func (e *Engine) maybeFinishDraining() {
	e.mu.Lock()
	draining := e.state == StateDraining
	e.mu.Unlock()
	if !draining {
		return
	}
	if !e.dtp.DtRtxq().Empty() {
		return
	}
	e.cpdusMu.Lock()
	inFlight := e.cpdusCnt
	e.cpdusMu.Unlock()
	if inFlight != 0 {
		return
	}
	e.setState(StateClosed)
}

// fail transitions the engine to CLOSED and signals err upward exactly
// once, per §7's "RetransmissionExhausted is fatal for the connection."
func (e *Engine) fail(err error) {
	e.setState(StateClosed)
	select {
	case e.errCh <- err:
	default:
	}
}

// Close tears the engine down: cancels scheduled tasks (best-effort) and
// waits for cpdus_in_transit to drain to zero, bounded by deadline. On
// expiry it forces closure anyway, per design note's "escalate to forced
// close on expiry."
func (e *Engine) Close(deadline time.Duration) error {
	e.aTimer.Cancel()
	e.rateTimer.Cancel()

	done := make(chan struct{})
	go func() {
		e.cpdusMu.Lock()
		for e.cpdusCnt != 0 {
			e.cpdusCond.Wait()
		}
		e.cpdusMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		log.Warn("dtcp: teardown deadline expired with cpdus_in_transit nonzero, forcing close")
	}
	e.setState(StateClosed)
	return nil
}

// Snapshot takes a consistent, lock-protected copy of the state vector.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:          e.state,
		NextSndCtlSeq:  e.sv.nextSndCtlSeq,
		LastSndDataAck: e.sv.lastSndDataAck,
		SndLftWin:      e.sv.sndLftWin,
		SndRtWindEdge:  e.sv.sndRtWindEdge,
		SndrCredit:     e.sv.sndrCredit,
		SndrRate:       e.sv.sndrRate,
		LastRcvCtlSeq:  e.sv.lastRcvCtlSeq,
		RcvrCredit:     e.sv.rcvrCredit,
		RcvrRtWindEdge: e.sv.rcvrRtWindEdge,
		Acks:           e.sv.acks,
		FlowCtl:        e.sv.flowCtl,
		Stats:          e.stats,
	}
}

// --- cpdus_in_transit bookkeeping ---

func (e *Engine) beginCPDU() {
	e.cpdusMu.Lock()
	e.cpdusCnt++
	e.cpdusMu.Unlock()
}

func (e *Engine) endCPDU() {
	e.cpdusMu.Lock()
	e.cpdusCnt--
	signal := e.cpdusCnt == 0
	e.cpdusMu.Unlock()
	if signal {
		e.cpdusCond.Broadcast()
		e.maybeFinishDraining()
	}
}

// --- admission predicates bound into the DTP SV by the builder ---

func (e *Engine) windowPermit(seq seqs.Num) bool {
	if !e.conn.Policy().WindowBased {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return seqs.Lt(seq, e.sv.sndRtWindEdge)
}

func (e *Engine) ratePermit() bool {
	if !e.conn.Policy().RateBased {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sv.pdusSentInTimeUnit >= e.sv.sndrRate {
		return false
	}
	e.sv.pdusSentInTimeUnit++
	return true
}

// --- control-PDU factory (§4.4) ---

func (e *Engine) newControlPDU(subtype pci.Subtype) *pci.PDU {
	e.mu.Lock()
	e.sv.nextSndCtlSeq++
	ctlSeq := e.sv.nextSndCtlSeq
	lastRcv := e.sv.lastRcvCtlSeq
	sndLWE, sndRWE := e.sv.sndLftWin, e.sv.sndRtWindEdge
	e.mu.Unlock()

	lwe := e.dtp.DtSVRcvLftWin()

	p := pci.PCI{
		SrcAddr:        uint32(e.conn.SrcAddr()),
		DstAddr:        uint32(e.conn.DstAddr()),
		SrcCEPID:       uint32(e.conn.SrcCEPID()),
		DstCEPID:       uint32(e.conn.DstCEPID()),
		QoSID:          uint32(e.conn.QoS()),
		Type:           pci.ControlType(subtype),
		SeqNum:         ctlSeq,
		LastCtlSeqRcvd: lastRcv,
	}

	switch subtype {
	case pci.SubtypeACK, pci.SubtypeACKFC:
		// lwe is the next-expected (not-yet-received) sequence number;
		// AckSeq carries the highest sequence actually received, which
		// is what SenderAck and RTXQ.Ack expect as their inclusive
		// cumulative-ack bound.
		p.AckSeq = lwe - 1
	case pci.SubtypeNACK, pci.SubtypeNACKFC:
		p.AckSeq = lwe
	}

	policy := e.conn.Policy()
	if policy.FlowControl && policy.WindowBased {
		switch subtype {
		case pci.SubtypeFC, pci.SubtypeACKFC, pci.SubtypeNACKFC:
			e.mu.Lock()
			rcvrEdge := e.sv.rcvrRtWindEdge
			e.mu.Unlock()
			p.MyLWE = sndLWE
			p.MyRWE = sndRWE
			p.NewLWE = lwe
			p.NewRWE = rcvrEdge
		}
	}

	return &pci.PDU{PCI: p}
}

// sendControlPDU brackets a self-originated control PDU with the same
// cpdus_in_transit bookkeeping ReceiveControl applies to an inbound one
// (mirroring dtcp_ack_flow_control_pdu_send's own begin/end around its
// send path), so Close's drain wait cannot observe a false zero while an
// ACK/FC the engine itself emitted is still in flight.
func (e *Engine) sendControlPDU(subtype pci.Subtype) error {
	e.beginCPDU()
	defer e.endCPDU()

	pdu := e.newControlPDU(subtype)
	if err := e.rmtH.Send(e.conn.DstAddr(), e.conn.QoS(), pdu); err != nil {
		return fmt.Errorf("dtcp: send control pdu: %w", err)
	}
	return nil
}

// pduCtrlTypeGet implements the control-PDU type selection algorithm used
// for scheduled ACK emission (§4.4).
func (e *Engine) pduCtrlTypeGet() pci.Subtype {
	lwe := e.dtp.DtSVRcvLftWin()

	e.mu.Lock()
	defer e.mu.Unlock()
	if seqs.Lt(e.sv.lastSndDataAck, lwe) {
		e.sv.lastSndDataAck = lwe
		if e.conn.Policy().FlowControl {
			return pci.SubtypeACKFC
		}
		return pci.SubtypeACK
	}
	return pci.SubtypeNone
}

// --- common control-PDU receive path (§4.4) ---

// ReceivePDU dispatches an inbound PDU to the control-receive path or the
// data-receive path based on its type.
func (e *Engine) ReceivePDU(pdu *pci.PDU) error {
	if pdu == nil {
		return dtcperr.Wrap(dtcperr.BadArgument, "nil pdu")
	}
	if pdu.PCI.Type.IsControl() {
		return e.ReceiveControl(pdu)
	}
	return e.receiveData(pdu)
}

// ReceiveControl implements the common control-PDU receive path.
func (e *Engine) ReceiveControl(pdu *pci.PDU) error {
	if pdu == nil || !pdu.PCI.Type.IsControl() {
		return dtcperr.Wrap(dtcperr.BadArgument, "not a control pdu")
	}

	e.beginCPDU()
	defer e.endCPDU()

	s := pdu.PCI.SeqNum

	e.mu.Lock()
	last := e.sv.lastRcvCtlSeq
	e.mu.Unlock()

	if seqs.Gt(s, last+1) {
		e.policies.LostControlPDU(e)
	}

	if seqs.Le(s, last) {
		e.bumpDuplicateCounter(pdu.PCI.Type.Subtype())
		return nil
	}

	e.mu.Lock()
	e.sv.lastRcvCtlSeq = s
	e.mu.Unlock()

	switch pdu.PCI.Type.Subtype() {
	case pci.SubtypeACK:
		return e.policies.SenderAck(e, pdu.PCI.AckSeq)
	case pci.SubtypeNACK:
		e.dtp.DtRtxq().Nack(pdu.PCI.AckSeq)
		return nil
	case pci.SubtypeFC:
		return e.applyFlowControl(pdu)
	case pci.SubtypeACKFC:
		var merr error
		if err := e.policies.SenderAck(e, pdu.PCI.AckSeq); err != nil {
			merr = appendErr(merr, err)
		}
		if err := e.applyFlowControl(pdu); err != nil {
			merr = appendErr(merr, err)
		}
		return merr
	case pci.SubtypeNACKFC:
		e.dtp.DtRtxq().Nack(pdu.PCI.AckSeq)
		return e.applyFlowControl(pdu)
	default:
		return dtcperr.Wrap(dtcperr.ProtocolViolation, "unrecognized control subtype %v", pdu.PCI.Type.Subtype())
	}
}

func (e *Engine) applyFlowControl(pdu *pci.PDU) error {
	e.mu.Lock()
	e.sv.sndRtWindEdge = pdu.PCI.NewRWE
	e.mu.Unlock()

	e.dtp.DrainCWQ()

	if e.dtp.DtCwq().Empty() {
		maxSent := e.dtp.DtpSVMaxSeqNrSent()
		e.mu.Lock()
		rwe := e.sv.sndRtWindEdge
		e.mu.Unlock()
		if seqs.Lt(maxSent, rwe) {
			e.dtp.DtSVWindowClosed(false)
		}
	}
	return nil
}

func (e *Engine) bumpDuplicateCounter(st pci.Subtype) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch st {
	case pci.SubtypeACK:
		e.sv.acks++
	case pci.SubtypeACKFC:
		e.sv.acks++
		e.sv.flowCtl++
	case pci.SubtypeFC, pci.SubtypeNACKFC:
		e.sv.flowCtl++
	}
}

// --- data-PDU receive path ---

func (e *Engine) receiveData(pdu *pci.PDU) error {
	sv, ok := e.dtp.(interface{ Deliver(*pci.PDU) bool })
	if !ok {
		return dtcperr.Wrap(dtcperr.BadArgument, "bound DTP interface cannot accept data PDUs")
	}

	policy := e.conn.Policy()
	if policy.FlowControl && policy.WindowBased {
		e.mu.Lock()
		edge := e.sv.rcvrRtWindEdge
		e.mu.Unlock()
		if edge != 0 && seqs.Ge(pdu.PCI.SeqNum, edge) {
			return e.policies.FlowControlOverrun(e, pdu)
		}
	}

	if duplicate := sv.Deliver(pdu); duplicate {
		return e.policies.ReceivedRetransmission(e)
	}

	if e.dtp.DtSVA() == 0 {
		return e.policies.SendingAck(e)
	}
	return nil
}

// marshalForLog renders a PDU's wire bytes, used only by debug logging
// paths so a misbehaving peer's bytes can be inspected without adding a
// Stringer to every PCI field.
func marshalForLog(pdu *pci.PDU) []byte {
	var buf bytes.Buffer
	_ = pdu.Marshal(&buf)
	return buf.Bytes()
}
