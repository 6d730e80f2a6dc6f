// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package connstate describes the immutable identity of a single DTP/DTCP
// connection: endpoint identifiers, addresses, QoS class, and the policy
// parameter bundle that configures every pluggable behavior in pkg/dtcp.
//
// A Connection is read-mostly and requires no locking once constructed;
// callers share a *Connection by pointer across the DTP and DTCP
// instances that reference it.
package connstate

import (
	"fmt"

	"github.com/rina-go/dtcp/pkg/pci"
	"github.com/rina-go/dtcp/pkg/seqs"
)

// CEPID is a connection endpoint identifier, unique per endpoint per
// connection.
type CEPID uint32

// Address is a DIF-internal address.
type Address uint32

// QoSID selects a QoS class/cube.
type QoSID uint32

// PolicyParams is the configuration knob bundle of the policy-parameter
// bundle. Defaults mirror the defaults named by the design.
type PolicyParams struct {
	FlowControl   bool `toml:"flow-control"`
	WindowBased   bool `toml:"window-based"`
	RateBased     bool `toml:"rate-based"`
	RtxControl    bool `toml:"rtx-control"`
	InitialCredit uint32 `toml:"initial-credit"`
	DataRetransmitMax uint32 `toml:"data-retransmit-max"`
	TimeUnitMs    uint32 `toml:"time-unit-ms"`
	SenderRate    uint32 `toml:"sender-rate"`
	ATimerMs      uint32 `toml:"a-timer-ms"`

	WatchdogPeriodMs        uint32 `toml:"watchdog-period-ms"`
	DeclaredDeadIntervalMs  uint32 `toml:"declared-dead-interval-ms"`
	EnrollmentTimeoutMs     uint32 `toml:"enrollment-timeout-ms"`
	NeighborEnrollerPeriodMs uint32 `toml:"neighbor-enroller-period-ms"`
	MaxEnrollmentAttempts   uint32 `toml:"max-enrollment-attempts"`
}

// DefaultPolicyParams returns the parameter bundle with every default
// value named by the design.
func DefaultPolicyParams() PolicyParams {
	return PolicyParams{
		FlowControl:              true,
		WindowBased:               true,
		RateBased:                 false,
		RtxControl:                true,
		InitialCredit:             10,
		DataRetransmitMax:         5,
		TimeUnitMs:                1000,
		SenderRate:                0,
		ATimerMs:                  0,
		WatchdogPeriodMs:          30000,
		DeclaredDeadIntervalMs:    120000,
		EnrollmentTimeoutMs:       10000,
		NeighborEnrollerPeriodMs:  10000,
		MaxEnrollmentAttempts:     3,
	}
}

// Connection is immutable after Connect returns.
type Connection struct {
	srcCEPID CEPID
	dstCEPID CEPID
	srcAddr  Address
	dstAddr  Address
	qos      QoSID
	policy   *PolicyParams
}

// Connect constructs a Connection. policy is not copied; callers must not
// mutate it afterward, matching the "pointer to policy parameters" data
// model.
func Connect(srcCEPID, dstCEPID CEPID, srcAddr, dstAddr Address, qos QoSID, policy *PolicyParams) (*Connection, error) {
	if policy == nil {
		return nil, fmt.Errorf("connstate: nil policy parameters")
	}
	return &Connection{
		srcCEPID: srcCEPID,
		dstCEPID: dstCEPID,
		srcAddr:  srcAddr,
		dstAddr:  dstAddr,
		qos:      qos,
		policy:   policy,
	}, nil
}

func (c *Connection) SrcCEPID() CEPID        { return c.srcCEPID }
func (c *Connection) DstCEPID() CEPID        { return c.dstCEPID }
func (c *Connection) SrcAddr() Address       { return c.srcAddr }
func (c *Connection) DstAddr() Address       { return c.dstAddr }
func (c *Connection) QoS() QoSID             { return c.qos }
func (c *Connection) Policy() *PolicyParams  { return c.policy }

// NewDataPDU builds a DT-type PDU addressed according to this connection's
// identity, for the given sequence number and payload.
func (c *Connection) NewDataPDU(seq seqs.Num, payload []byte) *pci.PDU {
	return &pci.PDU{
		PCI: pci.PCI{
			SrcAddr:  uint32(c.srcAddr),
			DstAddr:  uint32(c.dstAddr),
			SrcCEPID: uint32(c.srcCEPID),
			DstCEPID: uint32(c.dstCEPID),
			QoSID:    uint32(c.qos),
			Type:     pci.TypeDT,
			SeqNum:   seq,
		},
		Payload: payload,
	}
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn(%d->%d @ %d->%d qos=%d)", c.srcCEPID, c.dstCEPID, c.srcAddr, c.dstAddr, c.qos)
}
