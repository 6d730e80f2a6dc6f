// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package object implements the CDAP object classes exchanged during
// enrollment: the static DIF data an enroller pushes first (constants,
// QoS cubes, whatevercast names) and the dynamic state that follows
// (neighbors, DFT entries), plus the address-allocation bitmap the
// enroller's namespace manager consults when a START doesn't carry a
// pre-assigned address. Each class follows the teacher's CBOR-array
// encoding discipline: an explicit field count, then the fields in
// order, via github.com/dtn7/cboring.
package object

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/dtn7/cboring"
)

// Class names one of the object classes below, used as the Create/Read
// message's object-class field so a peer knows how to decode the
// accompanying value.
type Class string

const (
	ClassConstants         Class = "dif.constants"
	ClassQoSCube           Class = "dif.qoscube"
	ClassWhatevercastName  Class = "dif.whatevercastname"
	ClassNeighbor          Class = "dif.neighbor"
	ClassDFTEntry          Class = "dif.dftentry"
	ClassAddressBitmap     Class = "dif.addressbitmap"
)

// Object is any CDAP object class value that can be pushed or pulled by
// the enrollment protocol.
type Object interface {
	cboring.CborMarshaler

	// Class reports this value's object class, for registry dispatch.
	Class() Class
}

// manager mirrors bpv7's AdministrativeRecordManager: a type registry
// keyed by the object class string, letting Decode produce a concrete
// value without the caller needing a type switch.
type manager struct {
	data sync.Map // map[Class]reflect.Type
}

var classes = &manager{}

func register(o Object) {
	classes.data.Store(o.Class(), reflect.TypeOf(o).Elem())
}

func init() {
	register(&Constants{})
	register(&QoSCube{})
	register(&WhatevercastName{})
	register(&Neighbor{})
	register(&DFTEntry{})
	register(&AddressBitmap{})
}

// New creates a zero-valued Object for the given class.
func New(class Class) (Object, error) {
	t, ok := classes.data.Load(class)
	if !ok {
		return nil, fmt.Errorf("object: class %q is not registered", class)
	}
	return reflect.New(t.(reflect.Type)).Interface().(Object), nil
}

// Encode serializes o into its CBOR representation.
func Encode(o Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := cboring.Marshal(o, &buf); err != nil {
		return nil, fmt.Errorf("object: encode %s: %w", o.Class(), err)
	}
	return buf.Bytes(), nil
}

// Decode parses data as the named class.
func Decode(class Class, data []byte) (Object, error) {
	o, err := New(class)
	if err != nil {
		return nil, err
	}
	if err := cboring.Unmarshal(o, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("object: decode %s: %w", class, err)
	}
	return o, nil
}

// Constants carries the DIF-wide sizing constants pushed during static
// enrollment: wire-field widths and PDU limits, mirroring the table in
// the wire-format section of the design this module implements.
type Constants struct {
	AddressWidth uint64
	CepIDWidth   uint64
	QoSIDWidth   uint64
	SeqNumWidth  uint64
	PortIDWidth  uint64
	MaxPDUSize   uint64
	MaxPDULife   uint64
}

func (c *Constants) Class() Class { return ClassConstants }

func (c *Constants) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(7, w); err != nil {
		return err
	}
	for _, v := range []uint64{c.AddressWidth, c.CepIDWidth, c.QoSIDWidth, c.SeqNumWidth, c.PortIDWidth, c.MaxPDUSize, c.MaxPDULife} {
		if err := cboring.WriteUInt(v, w); err != nil {
			return err
		}
	}
	return nil
}

func (c *Constants) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 7 {
		return fmt.Errorf("object: Constants has %d fields, want 7", n)
	}
	fields := []*uint64{&c.AddressWidth, &c.CepIDWidth, &c.QoSIDWidth, &c.SeqNumWidth, &c.PortIDWidth, &c.MaxPDUSize, &c.MaxPDULife}
	for _, f := range fields {
		v, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// QoSCube names a QoS class with its defining performance parameters.
type QoSCube struct {
	ID           uint64
	Name         string
	AvgBandwidth uint64
	Delay        uint64
	Jitter       uint64
	Loss         uint64
}

func (q *QoSCube) Class() Class { return ClassQoSCube }

func (q *QoSCube) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(6, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(q.ID, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString([]byte(q.Name), w); err != nil {
		return err
	}
	for _, v := range []uint64{q.AvgBandwidth, q.Delay, q.Jitter, q.Loss} {
		if err := cboring.WriteUInt(v, w); err != nil {
			return err
		}
	}
	return nil
}

func (q *QoSCube) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 6 {
		return fmt.Errorf("object: QoSCube has %d fields, want 6", n)
	}
	id, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	q.ID = id
	name, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	q.Name = string(name)
	fields := []*uint64{&q.AvgBandwidth, &q.Delay, &q.Jitter, &q.Loss}
	for _, f := range fields {
		v, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// WhatevercastName maps a name to the set of members it refers to and
// the rule used to resolve it (e.g. "any one", "all").
type WhatevercastName struct {
	Name       string
	Rule       string
	SetMembers []string
}

func (w *WhatevercastName) Class() Class { return ClassWhatevercastName }

func (w *WhatevercastName) MarshalCbor(writer io.Writer) error {
	if err := cboring.WriteArrayLength(3, writer); err != nil {
		return err
	}
	if err := cboring.WriteByteString([]byte(w.Name), writer); err != nil {
		return err
	}
	if err := cboring.WriteByteString([]byte(w.Rule), writer); err != nil {
		return err
	}
	if err := cboring.WriteArrayLength(uint64(len(w.SetMembers)), writer); err != nil {
		return err
	}
	for _, m := range w.SetMembers {
		if err := cboring.WriteByteString([]byte(m), writer); err != nil {
			return err
		}
	}
	return nil
}

func (w *WhatevercastName) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("object: WhatevercastName has %d fields, want 3", n)
	}
	name, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	w.Name = string(name)
	rule, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	w.Rule = string(rule)
	count, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	w.SetMembers = nil
	for i := uint64(0); i < count; i++ {
		m, err := cboring.ReadByteString(r)
		if err != nil {
			return err
		}
		w.SetMembers = append(w.SetMembers, string(m))
	}
	return nil
}

// Neighbor is the dynamic RIB entry for a known neighbor: its DIF
// address, the N-1 DIF supporting the flow to reach it, the underlying
// port-id of that flow, and this side's bookkeeping for the
// neighbor-enroller loop and watchdog.
type Neighbor struct {
	Address            uint64
	Name               string
	SupportingDIFName  string
	UnderlyingPortID   uint64
	EnrollmentAttempts uint64
	Enrolled           bool
}

func (n *Neighbor) Class() Class { return ClassNeighbor }

func (n *Neighbor) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(6, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(n.Address, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString([]byte(n.Name), w); err != nil {
		return err
	}
	if err := cboring.WriteByteString([]byte(n.SupportingDIFName), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(n.UnderlyingPortID, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(n.EnrollmentAttempts, w); err != nil {
		return err
	}
	return cboring.WriteBoolean(n.Enrolled, w)
}

func (n *Neighbor) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 6 {
		return fmt.Errorf("object: Neighbor has %d fields, want 6", l)
	}
	addr, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	n.Address = addr
	name, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	n.Name = string(name)
	dif, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	n.SupportingDIFName = string(dif)
	port, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	n.UnderlyingPortID = port
	attempts, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	n.EnrollmentAttempts = attempts
	enrolled, err := cboring.ReadBoolean(r)
	if err != nil {
		return err
	}
	n.Enrolled = enrolled
	return nil
}

// DFTEntry maps an application name to the address of the IPC process
// where it currently registers.
type DFTEntry struct {
	ApplicationName string
	Address         uint64
}

func (d *DFTEntry) Class() Class { return ClassDFTEntry }

func (d *DFTEntry) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString([]byte(d.ApplicationName), w); err != nil {
		return err
	}
	return cboring.WriteUInt(d.Address, w)
}

func (d *DFTEntry) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("object: DFTEntry has %d fields, want 2", l)
	}
	name, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	d.ApplicationName = string(name)
	addr, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	d.Address = addr
	return nil
}

// AddressBitmap is the namespace manager's allocation table: one bit
// per address in [0, Width), set when the address is in use.
type AddressBitmap struct {
	Width uint64
	Bits  []byte
}

func (a *AddressBitmap) Class() Class { return ClassAddressBitmap }

// NewAddressBitmap creates an allocation table spanning width addresses,
// with addresses 0 and width-1 (broadcast-reserved, by convention)
// pre-allocated.
func NewAddressBitmap(width uint64) *AddressBitmap {
	b := &AddressBitmap{Width: width, Bits: make([]byte, (width+7)/8)}
	b.set(0, true)
	if width > 0 {
		b.set(width-1, true)
	}
	return b
}

func (a *AddressBitmap) set(addr uint64, v bool) {
	byteIdx, bit := addr/8, byte(1<<(addr%8))
	if v {
		a.Bits[byteIdx] |= bit
	} else {
		a.Bits[byteIdx] &^= bit
	}
}

func (a *AddressBitmap) get(addr uint64) bool {
	byteIdx, bit := addr/8, byte(1<<(addr%8))
	return a.Bits[byteIdx]&bit != 0
}

// Valid reports whether addr is both in range and currently allocated —
// the namespace-manager callback START's handler consults to decide
// whether a self-declared address may be accepted as-is.
func (a *AddressBitmap) Valid(addr uint64) bool {
	return addr < a.Width && a.get(addr)
}

// Allocate reserves and returns the lowest free address, or ok=false if
// the table is exhausted.
func (a *AddressBitmap) Allocate() (addr uint64, ok bool) {
	for i := uint64(0); i < a.Width; i++ {
		if !a.get(i) {
			a.set(i, true)
			return i, true
		}
	}
	return 0, false
}

// Release frees addr so it can be allocated again.
func (a *AddressBitmap) Release(addr uint64) {
	if addr < a.Width {
		a.set(addr, false)
	}
}

func (a *AddressBitmap) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(a.Width, w); err != nil {
		return err
	}
	return cboring.WriteByteString(a.Bits, w)
}

func (a *AddressBitmap) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("object: AddressBitmap has %d fields, want 2", l)
	}
	width, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	a.Width = width
	bits, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	a.Bits = bits
	return nil
}
