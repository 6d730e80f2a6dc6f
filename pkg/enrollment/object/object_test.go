// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package object

import (
	"reflect"
	"testing"
)

func TestObjectRoundTrip(t *testing.T) {
	cases := []Object{
		&Constants{AddressWidth: 32, CepIDWidth: 32, QoSIDWidth: 32, SeqNumWidth: 32, PortIDWidth: 16, MaxPDUSize: 1500, MaxPDULife: 60000},
		&QoSCube{ID: 1, Name: "gold", AvgBandwidth: 1000000, Delay: 10, Jitter: 2, Loss: 0},
		&WhatevercastName{Name: "all-members", Rule: "all", SetMembers: []string{"a", "b", "c"}},
		&Neighbor{Address: 200, Name: "peer", SupportingDIFName: "shim", UnderlyingPortID: 5, EnrollmentAttempts: 1, Enrolled: true},
		&DFTEntry{ApplicationName: "app1", Address: 42},
	}

	for _, want := range cases {
		encoded, err := Encode(want)
		if err != nil {
			t.Fatalf("encode %T: %v", want, err)
		}
		got, err := Decode(want.Class(), encoded)
		if err != nil {
			t.Fatalf("decode %T: %v", want, err)
		}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("round trip mismatch for %T: want %+v, got %+v", want, want, got)
		}
	}
}

func TestAddressBitmapAllocateAndRelease(t *testing.T) {
	b := NewAddressBitmap(8)

	if b.Valid(0) == false {
		t.Error("address 0 should be pre-allocated (reserved)")
	}
	if b.Valid(7) == false {
		t.Error("top address should be pre-allocated (reserved)")
	}

	var allocated []uint64
	for i := 0; i < 6; i++ {
		addr, ok := b.Allocate()
		if !ok {
			t.Fatalf("allocation %d unexpectedly failed", i)
		}
		allocated = append(allocated, addr)
	}

	if _, ok := b.Allocate(); ok {
		t.Error("expected exhaustion after allocating every free address")
	}

	b.Release(allocated[0])
	addr, ok := b.Allocate()
	if !ok {
		t.Fatal("expected a free address after release")
	}
	if addr != allocated[0] {
		t.Errorf("expected released address %d to be reused, got %d", allocated[0], addr)
	}
}

func TestAddressBitmapRoundTrip(t *testing.T) {
	b := NewAddressBitmap(16)
	b.Allocate()
	b.Allocate()

	encoded, err := Encode(b)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(ClassAddressBitmap, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := decoded.(*AddressBitmap)
	if got.Width != b.Width {
		t.Errorf("width mismatch: want %d, got %d", b.Width, got.Width)
	}
	for i := uint64(0); i < b.Width; i++ {
		if got.Valid(i) != b.Valid(i) {
			t.Errorf("bit %d mismatch after round trip", i)
		}
	}
}

func TestDecodeUnknownClass(t *testing.T) {
	if _, err := Decode(Class("nonexistent"), nil); err == nil {
		t.Error("expected an error decoding an unregistered class")
	}
}
