// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pci implements the DTP/DTCP protocol control information header
// and its bit-exact wire encoding: fixed-width fields, big-endian byte
// order, no variable-length framing. The field layout and byte widths are
// normative; see the wire-format table in the design this package
// implements.
package pci

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rina-go/dtcp/pkg/seqs"
)

// Type is the PDU type octet. DT PDUs carry data; CTL PDUs carry one of the
// control subtypes in the low 6 bits.
type Type uint8

const (
	// TypeDT marks a data-transfer PDU.
	TypeDT Type = 0x80
	// typeCtlBase is OR'd with a Subtype to build a control PDU's Type byte.
	typeCtlBase Type = 0xC0
)

// Subtype identifies the kind of control PDU for Type values built from
// typeCtlBase.
type Subtype uint8

const (
	SubtypeNone    Subtype = 0x00
	SubtypeACK     Subtype = 0x01
	SubtypeNACK    Subtype = 0x02
	SubtypeFC      Subtype = 0x03
	SubtypeACKFC   Subtype = 0x05
	SubtypeNACKFC  Subtype = 0x06
)

// IsControl reports whether t was built with typeCtlBase.
func (t Type) IsControl() bool { return t&typeCtlBase == typeCtlBase && t != TypeDT }

// IsData reports whether t is a plain data PDU.
func (t Type) IsData() bool { return t == TypeDT }

// Subtype extracts the control subtype from a control Type's low 6 bits.
func (t Type) Subtype() Subtype { return Subtype(t & 0x3F) }

// ControlType builds the Type byte for a given control Subtype.
func ControlType(s Subtype) Type { return typeCtlBase | Type(s) }

func (s Subtype) String() string {
	switch s {
	case SubtypeACK:
		return "ACK"
	case SubtypeNACK:
		return "NACK"
	case SubtypeFC:
		return "FC"
	case SubtypeACKFC:
		return "ACK+FC"
	case SubtypeNACKFC:
		return "NACK+FC"
	default:
		return "NONE"
	}
}

// Flags carries per-PDU control flags. Currently unused by any named
// operation but reserved in the wire format.
type Flags uint8

// PCI is the protocol control information header shared by DT and CTL
// PDUs. Control-only fields are zero and omitted from the wire encoding
// when Type.IsData().
type PCI struct {
	SrcAddr uint32
	DstAddr uint32
	SrcCEPID uint32
	DstCEPID uint32
	QoSID   uint32
	Type    Type
	Flags   Flags
	SeqNum  seqs.Num

	// Control-only fields.
	LastCtlSeqRcvd seqs.Num
	AckSeq         seqs.Num
	MyLWE          seqs.Num
	MyRWE          seqs.Num
	NewLWE         seqs.Num
	NewRWE         seqs.Num
}

// PDU is a header plus an opaque payload. Payload is nil for control PDUs.
type PDU struct {
	PCI     PCI
	Payload []byte
}

// Marshal writes the bit-exact wire encoding of p to w.
func (p *PDU) Marshal(w io.Writer) error {
	fields := []any{
		p.PCI.SrcAddr,
		p.PCI.DstAddr,
		p.PCI.SrcCEPID,
		p.PCI.DstCEPID,
		p.PCI.QoSID,
		uint8(p.PCI.Type),
		uint8(p.PCI.Flags),
		uint32(p.PCI.SeqNum),
	}
	if p.PCI.Type.IsControl() {
		fields = append(fields,
			uint32(p.PCI.LastCtlSeqRcvd),
			uint32(p.PCI.AckSeq),
			uint32(p.PCI.MyLWE),
			uint32(p.PCI.MyRWE),
			uint32(p.PCI.NewLWE),
			uint32(p.PCI.NewRWE),
		)
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.BigEndian, f); err != nil {
			return fmt.Errorf("pci: marshal: %w", err)
		}
	}
	if p.PCI.Type.IsData() {
		if _, err := w.Write(p.Payload); err != nil {
			return fmt.Errorf("pci: marshal payload: %w", err)
		}
	}
	return nil
}

// headerFixedLen is the byte length of the fields common to every PDU.
const headerFixedLen = 4 + 4 + 4 + 4 + 4 + 1 + 1 + 4

// controlExtraLen is the byte length of the six control-only uint32 fields.
const controlExtraLen = 4 * 6

// Unmarshal reads a PDU from r. The payload, if any, is whatever remains
// in r for data PDUs; callers supplying a length-delimited r (e.g. a
// bytes.Reader sized to one PDU) get exactly the intended payload.
func (p *PDU) Unmarshal(r io.Reader) error {
	var srcAddr, dstAddr, srcCEP, dstCEP, qos, seq uint32
	var typ, flags uint8

	for _, f := range []any{&srcAddr, &dstAddr, &srcCEP, &dstCEP, &qos, &typ, &flags, &seq} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return fmt.Errorf("pci: unmarshal header: %w", err)
		}
	}

	p.PCI = PCI{
		SrcAddr:  srcAddr,
		DstAddr:  dstAddr,
		SrcCEPID: srcCEP,
		DstCEPID: dstCEP,
		QoSID:    qos,
		Type:     Type(typ),
		Flags:    Flags(flags),
		SeqNum:   seqs.Num(seq),
	}

	if p.PCI.Type.IsControl() {
		var lastCtl, ack, myLWE, myRWE, newLWE, newRWE uint32
		for _, f := range []any{&lastCtl, &ack, &myLWE, &myRWE, &newLWE, &newRWE} {
			if err := binary.Read(r, binary.BigEndian, f); err != nil {
				return fmt.Errorf("pci: unmarshal control fields: %w", err)
			}
		}
		p.PCI.LastCtlSeqRcvd = seqs.Num(lastCtl)
		p.PCI.AckSeq = seqs.Num(ack)
		p.PCI.MyLWE = seqs.Num(myLWE)
		p.PCI.MyRWE = seqs.Num(myRWE)
		p.PCI.NewLWE = seqs.Num(newLWE)
		p.PCI.NewRWE = seqs.Num(newRWE)
		return nil
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("pci: unmarshal payload: %w", err)
	}
	p.Payload = payload
	return nil
}

// EncodedLen returns the wire length of p, useful for length-prefixed
// framing at the transport boundary.
func (p *PDU) EncodedLen() int {
	n := headerFixedLen
	if p.PCI.Type.IsControl() {
		n += controlExtraLen
	} else {
		n += len(p.Payload)
	}
	return n
}
