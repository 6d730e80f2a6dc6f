// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package seqs implements wrap-safe comparisons over the 32-bit sequence
// number space used by DTP/DTCP PDUs and control PDUs.
//
// All comparisons are modulo-2^32 using the signed-difference rule: a is
// considered "before" b iff the signed difference (a-b), interpreted as an
// int32, is negative. This tolerates a single wraparound of the namespace;
// callers must not compare sequence numbers more than 2^31 apart.
package seqs

// Num is a DTP/DTCP sequence number, a control sequence number, or any
// other monotone counter drawn from the same 32-bit modulo space.
type Num uint32

// Lt reports whether a is strictly before b in the modulo-2^32 ordering.
func Lt(a, b Num) bool {
	return int32(a-b) < 0
}

// Le reports whether a is before or equal to b.
func Le(a, b Num) bool {
	return a == b || Lt(a, b)
}

// Eq reports whether a and b name the same sequence number.
func Eq(a, b Num) bool {
	return a == b
}

// Gt reports whether a is strictly after b.
func Gt(a, b Num) bool {
	return Lt(b, a)
}

// Ge reports whether a is after or equal to b.
func Ge(a, b Num) bool {
	return Le(b, a)
}

// WrapPolicy selects the behavior of Add when incrementing a sequence
// number would carry it past the top of the 32-bit space.
type WrapPolicy int

const (
	// WrapAround is the default: the counter silently wraps to 0.
	WrapAround WrapPolicy = iota
	// Saturate clamps the result at 0xFFFFFFFF instead of wrapping.
	Saturate
)

// Add advances a sequence number by delta under the given wrap policy.
func Add(a Num, delta uint32, policy WrapPolicy) Num {
	if policy == Saturate {
		sum := uint64(a) + uint64(delta)
		if sum > uint64(^Num(0)) {
			return Num(^uint32(0))
		}
		return Num(sum)
	}
	return a + Num(delta)
}

// BetweenMod reports whether x lies in the half-open modulo interval
// [lo, hi), i.e. x can be reached from lo by some forward distance smaller
// than the forward distance from lo to hi.
//
// At the wrap boundary — when x is exactly lo+2^31 away in either
// direction — the tie is broken in favor of the smaller forward distance,
// which for a half-open interval means x is only "between" if hi has not
// itself wrapped past it.
func BetweenMod(lo, x, hi Num) bool {
	if lo == hi {
		return false
	}
	return uint32(x-lo) < uint32(hi-lo)
}

// ForwardDistance returns the number of steps to reach b starting from a by
// always moving forward (increasing), i.e. (b - a) performed in the
// modulo-2^32 ring. When b is not before a and the two are not more than
// 2^31 apart, the result never has the high bit set; when b is before a,
// the result is the long way round the ring and does have it set.
func ForwardDistance(a, b Num) uint32 {
	return uint32(b - a)
}
