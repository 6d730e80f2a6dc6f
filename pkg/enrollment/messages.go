// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/dtn7/cboring"
)

// TypeCode identifies a CDAP-style enrollment message's wire type, read
// as the first byte of every encoded Message, the same way the
// teacher's TCPCLv4 messages lead with a type octet.
type TypeCode uint8

const (
	TypeConnect  TypeCode = 1
	TypeConnectR TypeCode = 2
	TypeStart    TypeCode = 3
	TypeStartR   TypeCode = 4
	TypeCreate   TypeCode = 5
	TypeStop     TypeCode = 6
	TypeStopR    TypeCode = 7
	TypeRead     TypeCode = 8
	TypeReadR    TypeCode = 9
)

// Message describes every kind of enrollment protocol message, which
// share a common serialization discipline: a leading TypeCode octet
// (handled by WriteMessage/ReadMessage) followed by a CBOR-encoded body.
type Message interface {
	TypeCode() TypeCode
	Marshal(w io.Writer) error
	Unmarshal(r io.Reader) error
}

// registry maps a TypeCode to an exemplary instance of its Go type, for
// reflection-based construction, mirroring the teacher's messages map.
var registry = map[TypeCode]Message{
	TypeConnect:  &Connect{},
	TypeConnectR: &ConnectR{},
	TypeStart:    &Start{},
	TypeStartR:   &StartR{},
	TypeCreate:   &Create{},
	TypeStop:     &Stop{},
	TypeStopR:    &StopR{},
	TypeRead:     &Read{},
	TypeReadR:    &ReadR{},
}

// NewMessage creates a zero-valued Message for the given type code.
func NewMessage(code TypeCode) (Message, error) {
	exemplar, ok := registry[code]
	if !ok {
		return nil, fmt.Errorf("enrollment: no message registered for type code %d", code)
	}
	elem := reflect.TypeOf(exemplar).Elem()
	return reflect.New(elem).Interface().(Message), nil
}

// WriteMessage writes msg's type code followed by its body to w.
func WriteMessage(w io.Writer, msg Message) error {
	if _, err := w.Write([]byte{byte(msg.TypeCode())}); err != nil {
		return fmt.Errorf("enrollment: write type code: %w", err)
	}
	return msg.Marshal(w)
}

// ReadMessage parses the next enrollment message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var codeBuf [1]byte
	if _, err := io.ReadFull(r, codeBuf[:]); err != nil {
		return nil, err
	}

	msg, err := NewMessage(TypeCode(codeBuf[0]))
	if err != nil {
		return nil, err
	}
	if err := msg.Unmarshal(r); err != nil {
		return nil, fmt.Errorf("enrollment: unmarshal type %d: %w", codeBuf[0], err)
	}
	return msg, nil
}

// EncodeMessage is a convenience for transports that move whole
// messages as byte slices rather than through an io.Writer.
func EncodeMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage is the byte-slice counterpart of ReadMessage.
func DecodeMessage(data []byte) (Message, error) {
	return ReadMessage(bytes.NewReader(data))
}

func writeString(w io.Writer, s string) error { return cboring.WriteByteString([]byte(s), w) }

func readString(r io.Reader) (string, error) {
	b, err := cboring.ReadByteString(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeStrings(w io.Writer, ss []string) error {
	if err := cboring.WriteArrayLength(uint64(len(ss)), w); err != nil {
		return err
	}
	for _, s := range ss {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(r io.Reader) ([]string, error) {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return nil, err
	}
	var out []string
	for i := uint64(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Connect opens the layer-management flow and carries the authentication
// material the enroller's policy checks before admitting the enrollee.
type Connect struct {
	InvokeID  uint32
	Src       string
	Dst       string
	AuthType  string
	AuthValue []byte
}

func (m *Connect) TypeCode() TypeCode { return TypeConnect }

func (m *Connect) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := writeString(w, m.Src); err != nil {
		return err
	}
	if err := writeString(w, m.Dst); err != nil {
		return err
	}
	if err := writeString(w, m.AuthType); err != nil {
		return err
	}
	return cboring.WriteByteString(m.AuthValue, w)
}

func (m *Connect) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("enrollment: Connect has %d fields, want 5", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	if m.Src, err = readString(r); err != nil {
		return err
	}
	if m.Dst, err = readString(r); err != nil {
		return err
	}
	if m.AuthType, err = readString(r); err != nil {
		return err
	}
	m.AuthValue, err = cboring.ReadByteString(r)
	return err
}

// ConnectR is the enroller's authentication decision.
type ConnectR struct {
	InvokeID     uint32
	Result       uint32
	ResultReason string
}

func (m *ConnectR) TypeCode() TypeCode { return TypeConnectR }

func (m *ConnectR) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.Result), w); err != nil {
		return err
	}
	return writeString(w, m.ResultReason)
}

func (m *ConnectR) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("enrollment: ConnectR has %d fields, want 3", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	result, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.Result = uint32(result)
	m.ResultReason, err = readString(r)
	return err
}

// Start carries the EnrollmentInformation object on its first (enrollee
// -> enroller) use: the address the enrollee proposes for itself (if
// any) and the supporting DIFs it already has access to. The enroller
// reuses the same message type for message-protocol step 5, where only
// OperationalStatus is meaningful.
type Start struct {
	InvokeID          uint32
	HasAddress        bool
	Address           uint32
	SupportingDIFs    []string
	OperationalStatus bool
}

func (m *Start) TypeCode() TypeCode { return TypeStart }

func (m *Start) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(5, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := cboring.WriteBoolean(m.HasAddress, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.Address), w); err != nil {
		return err
	}
	if err := writeStrings(w, m.SupportingDIFs); err != nil {
		return err
	}
	return cboring.WriteBoolean(m.OperationalStatus, w)
}

func (m *Start) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 5 {
		return fmt.Errorf("enrollment: Start has %d fields, want 5", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	if m.HasAddress, err = cboring.ReadBoolean(r); err != nil {
		return err
	}
	addr, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.Address = uint32(addr)
	if m.SupportingDIFs, err = readStrings(r); err != nil {
		return err
	}
	m.OperationalStatus, err = cboring.ReadBoolean(r)
	return err
}

// StartR is the enroller's response to Start: either confirmation of the
// proposed address or a freshly-allocated one.
type StartR struct {
	InvokeID     uint32
	Result       uint32
	ResultReason string
	Address      uint32
}

func (m *StartR) TypeCode() TypeCode { return TypeStartR }

func (m *StartR) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.Result), w); err != nil {
		return err
	}
	if err := writeString(w, m.ResultReason); err != nil {
		return err
	}
	return cboring.WriteUInt(uint64(m.Address), w)
}

func (m *StartR) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("enrollment: StartR has %d fields, want 4", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	result, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.Result = uint32(result)
	if m.ResultReason, err = readString(r); err != nil {
		return err
	}
	addr, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.Address = uint32(addr)
	return nil
}

// Create pushes one object instance. An empty ObjectClass marks the end
// of a batch (static data, then dynamic state) within a single
// enrollment, letting the enrollee know when to stop looping on Create
// and move on to the next stage.
type Create struct {
	InvokeID    uint32
	ObjectClass string
	ObjectName  string
	ObjectValue []byte
}

func (m *Create) TypeCode() TypeCode { return TypeCreate }

// EndOfBatch reports whether this Create is the batch-end sentinel.
func (m *Create) EndOfBatch() bool { return m.ObjectClass == "" }

func (m *Create) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := writeString(w, m.ObjectClass); err != nil {
		return err
	}
	if err := writeString(w, m.ObjectName); err != nil {
		return err
	}
	return cboring.WriteByteString(m.ObjectValue, w)
}

func (m *Create) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("enrollment: Create has %d fields, want 4", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	if m.ObjectClass, err = readString(r); err != nil {
		return err
	}
	if m.ObjectName, err = readString(r); err != nil {
		return err
	}
	m.ObjectValue, err = cboring.ReadByteString(r)
	if len(m.ObjectValue) == 0 {
		m.ObjectValue = nil
	}
	return err
}

// Stop tells the enrollee the static/dynamic push is complete and
// whether it may commit and start operating before every object has
// been confirmed present (allowed_to_start_early).
type Stop struct {
	InvokeID            uint32
	AllowedToStartEarly bool
}

func (m *Stop) TypeCode() TypeCode { return TypeStop }

func (m *Stop) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	return cboring.WriteBoolean(m.AllowedToStartEarly, w)
}

func (m *Stop) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("enrollment: Stop has %d fields, want 2", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	m.AllowedToStartEarly, err = cboring.ReadBoolean(r)
	return err
}

// StopR is the enrollee's commit acknowledgement.
type StopR struct {
	InvokeID     uint32
	Result       uint32
	ResultReason string
}

func (m *StopR) TypeCode() TypeCode { return TypeStopR }

func (m *StopR) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.Result), w); err != nil {
		return err
	}
	return writeString(w, m.ResultReason)
}

func (m *StopR) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("enrollment: StopR has %d fields, want 3", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	result, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.Result = uint32(result)
	m.ResultReason, err = readString(r)
	return err
}

// Read requests one object the enrollee is still missing, e.g. during
// the STOP-triggered catch-up loop or a watchdog liveness probe.
type Read struct {
	InvokeID    uint32
	ObjectClass string
	ObjectName  string
}

func (m *Read) TypeCode() TypeCode { return TypeRead }

func (m *Read) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := writeString(w, m.ObjectClass); err != nil {
		return err
	}
	return writeString(w, m.ObjectName)
}

func (m *Read) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 3 {
		return fmt.Errorf("enrollment: Read has %d fields, want 3", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	if m.ObjectClass, err = readString(r); err != nil {
		return err
	}
	m.ObjectName, err = readString(r)
	return err
}

// ReadR answers a Read with the requested object's encoded value.
type ReadR struct {
	InvokeID     uint32
	Result       uint32
	ResultReason string
	ObjectValue  []byte
}

func (m *ReadR) TypeCode() TypeCode { return TypeReadR }

func (m *ReadR) Marshal(w io.Writer) error {
	if err := cboring.WriteArrayLength(4, w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.InvokeID), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(uint64(m.Result), w); err != nil {
		return err
	}
	if err := writeString(w, m.ResultReason); err != nil {
		return err
	}
	return cboring.WriteByteString(m.ObjectValue, w)
}

func (m *ReadR) Unmarshal(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 4 {
		return fmt.Errorf("enrollment: ReadR has %d fields, want 4", n)
	}
	invoke, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.InvokeID = uint32(invoke)
	result, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}
	m.Result = uint32(result)
	if m.ResultReason, err = readString(r); err != nil {
		return err
	}
	m.ObjectValue, err = cboring.ReadByteString(r)
	return err
}
