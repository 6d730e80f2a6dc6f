// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package seqs

import "testing"

func TestLtWrap(t *testing.T) {
	cases := []struct {
		a, b Num
		want bool
	}{
		{1, 2, true},
		{2, 1, false},
		{0xFFFFFFFF, 0x00000001, true},
		{0x00000001, 0xFFFFFFFF, false},
		{5, 5, false},
	}
	for _, c := range cases {
		if got := Lt(c.a, c.b); got != c.want {
			t.Errorf("Lt(%#x, %#x) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestLeEq(t *testing.T) {
	if !Le(5, 5) {
		t.Error("Le(5,5) should be true")
	}
	if !Eq(5, 5) {
		t.Error("Eq(5,5) should be true")
	}
	if Eq(5, 6) {
		t.Error("Eq(5,6) should be false")
	}
}

func TestAddWrapAround(t *testing.T) {
	got := Add(0xFFFFFFFE, 3, WrapAround)
	if got != 1 {
		t.Errorf("Add wrap = %#x, want 1", got)
	}
}

func TestAddSaturate(t *testing.T) {
	got := Add(0xFFFFFFFE, 3, Saturate)
	if got != 0xFFFFFFFF {
		t.Errorf("Add saturate = %#x, want 0xFFFFFFFF", got)
	}
}

func TestBetweenMod(t *testing.T) {
	// Window [10, 14): 10,11,12,13 are in, 14 and 9 are not.
	for seq := Num(10); seq < 14; seq++ {
		if !BetweenMod(10, seq, 14) {
			t.Errorf("BetweenMod(10, %d, 14) should be true", seq)
		}
	}
	if BetweenMod(10, 14, 14) {
		t.Error("BetweenMod(10, 14, 14) should be false (half-open upper bound)")
	}
	if BetweenMod(10, 9, 14) {
		t.Error("BetweenMod(10, 9, 14) should be false")
	}
}

func TestBetweenModWrap(t *testing.T) {
	// Window wraps around zero: [0xFFFFFFFE, 2)
	if !BetweenMod(0xFFFFFFFE, 0xFFFFFFFF, 2) {
		t.Error("0xFFFFFFFF should be in wrapped window")
	}
	if !BetweenMod(0xFFFFFFFE, 0, 2) {
		t.Error("0 should be in wrapped window")
	}
	if !BetweenMod(0xFFFFFFFE, 1, 2) {
		t.Error("1 should be in wrapped window")
	}
	if BetweenMod(0xFFFFFFFE, 2, 2) {
		t.Error("2 should not be in wrapped window (half-open upper bound)")
	}
}
