// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	cases := []Message{
		&Connect{InvokeID: 1, Src: "a", Dst: "b", AuthType: "none", AuthValue: []byte{1, 2, 3}},
		&ConnectR{InvokeID: 1, Result: 0, ResultReason: ""},
		&Start{InvokeID: 2, HasAddress: true, Address: 7, SupportingDIFs: []string{"dif1", "dif2"}},
		&StartR{InvokeID: 2, Result: 0, Address: 7},
		&Create{InvokeID: 3, ObjectClass: "dif.constants", ObjectName: "", ObjectValue: []byte{0xAB}},
		&Create{InvokeID: 4}, // end-of-batch sentinel
		&Stop{InvokeID: 5, AllowedToStartEarly: true},
		&StopR{InvokeID: 5, Result: 0},
		&Read{InvokeID: 6, ObjectClass: "dif.neighbor", ObjectName: "n1"},
		&ReadR{InvokeID: 6, Result: 0, ObjectValue: []byte{1, 2}},
	}

	for _, want := range cases {
		encoded, err := EncodeMessage(want)
		if err != nil {
			t.Fatalf("encode %T: %v", want, err)
		}
		got, err := DecodeMessage(encoded)
		if err != nil {
			t.Fatalf("decode %T: %v", want, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("round trip mismatch for %T: want %+v, got %+v", want, want, got)
		}
	}
}

func TestCreateEndOfBatch(t *testing.T) {
	sentinel := &Create{InvokeID: 1}
	if !sentinel.EndOfBatch() {
		t.Error("zero-value ObjectClass should report end of batch")
	}
	populated := &Create{InvokeID: 1, ObjectClass: "dif.constants"}
	if populated.EndOfBatch() {
		t.Error("non-empty ObjectClass must not report end of batch")
	}
}

func TestReadMessageUnknownTypeCode(t *testing.T) {
	if _, err := DecodeMessage([]byte{0xFF}); err == nil {
		t.Error("expected an error decoding an unregistered type code")
	}
}
