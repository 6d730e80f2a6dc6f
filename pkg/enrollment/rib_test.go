// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"testing"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
)

func TestRIBPreferredNextHopDirectNeighbor(t *testing.T) {
	rib := NewRIB(connstate.Address(1))
	rib.AddNeighbor(&object.Neighbor{Address: 2}, 1)

	hop, err := rib.PreferredNextHop(connstate.Address(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hop != connstate.Address(2) {
		t.Errorf("a direct neighbor should be its own next hop, got %v", hop)
	}
}

func TestRIBPreferredEnrollerPicksCheapest(t *testing.T) {
	rib := NewRIB(connstate.Address(1))
	rib.AddNeighbor(&object.Neighbor{Address: 2}, 5)
	rib.AddNeighbor(&object.Neighbor{Address: 3}, 1)
	rib.AddNeighbor(&object.Neighbor{Address: 4}, 3)

	chosen, err := rib.PreferredEnroller([]connstate.Address{2, 3, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen != connstate.Address(3) {
		t.Errorf("expected the cheapest-path candidate (3), got %v", chosen)
	}
}

func TestRIBPreferredEnrollerNoReachableCandidate(t *testing.T) {
	rib := NewRIB(connstate.Address(1))
	if _, err := rib.PreferredEnroller([]connstate.Address{99}); err == nil {
		t.Error("expected an error when no candidate is reachable")
	}
}

func TestRIBRemove(t *testing.T) {
	rib := NewRIB(connstate.Address(1))
	rib.AddNeighbor(&object.Neighbor{Address: 2}, 1)

	if _, ok := rib.Get(connstate.Address(2)); !ok {
		t.Fatal("expected neighbor 2 to be present before removal")
	}
	rib.Remove(connstate.Address(2))
	if _, ok := rib.Get(connstate.Address(2)); ok {
		t.Error("expected neighbor 2 to be gone after removal")
	}
}
