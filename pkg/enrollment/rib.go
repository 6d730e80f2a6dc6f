// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"fmt"
	"sync"

	"github.com/RyanCarrier/dijkstra"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
)

// RIB is the routing information base's neighbor table: the set of
// known neighbors plus a weighted graph used to pick, among several
// reachable candidates, the preferred next hop or enroller by shortest
// path — the design names no specific algorithm for this choice, so the
// link-state shortest-path approach is adopted the way a DIF's PDU
// forwarding policy conventionally would.
type RIB struct {
	mu        sync.Mutex
	local     connstate.Address
	neighbors map[connstate.Address]*object.Neighbor
	graph     *dijkstra.Graph
	vertex    map[connstate.Address]int
	nextID    int
}

// NewRIB creates an empty RIB rooted at local.
func NewRIB(local connstate.Address) *RIB {
	g := dijkstra.NewGraph()
	g.AddVertex(0)
	return &RIB{
		local:     local,
		neighbors: make(map[connstate.Address]*object.Neighbor),
		graph:     g,
		vertex:    map[connstate.Address]int{local: 0},
		nextID:    1,
	}
}

func (r *RIB) vertexFor(addr connstate.Address) int {
	if id, ok := r.vertex[addr]; ok {
		return id
	}
	id := r.nextID
	r.nextID++
	r.graph.AddVertex(id)
	r.vertex[addr] = id
	return id
}

// AddNeighbor records or updates a neighbor and its link cost from the
// local address, used by the shortest-path preference queries below.
func (r *RIB) AddNeighbor(n *object.Neighbor, linkCost int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := connstate.Address(n.Address)
	r.neighbors[addr] = n

	srcID := r.vertexFor(r.local)
	dstID := r.vertexFor(addr)
	_ = r.graph.AddArc(srcID, dstID, linkCost)
	_ = r.graph.AddArc(dstID, srcID, linkCost)
}

// Remove evicts a neighbor from the table. The graph keeps the
// neighbor's vertex and its arcs, so PreferredNextHop and
// PreferredEnroller still treat the removed address as reachable.
func (r *RIB) Remove(addr connstate.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.neighbors, addr)
}

// Get returns the neighbor entry for addr, if known.
func (r *RIB) Get(addr connstate.Address) (*object.Neighbor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.neighbors[addr]
	return n, ok
}

// Neighbors returns a snapshot of the current neighbor set.
func (r *RIB) Neighbors() []*object.Neighbor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*object.Neighbor, 0, len(r.neighbors))
	for _, n := range r.neighbors {
		out = append(out, n)
	}
	return out
}

// PreferredNextHop returns the first hop on the shortest known path
// from the local address to dst.
func (r *RIB) PreferredNextHop(dst connstate.Address) (connstate.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srcID, ok := r.vertex[r.local]
	if !ok {
		return 0, fmt.Errorf("enrollment: rib: local address not in graph")
	}
	dstID, ok := r.vertex[dst]
	if !ok {
		return 0, fmt.Errorf("enrollment: rib: %v is not a known neighbor", dst)
	}

	best, err := r.graph.Shortest(srcID, dstID)
	if err != nil {
		return 0, fmt.Errorf("enrollment: rib: no path to %v: %w", dst, err)
	}
	if len(best.Path) < 2 {
		return dst, nil
	}
	return r.addressOf(best.Path[1])
}

// PreferredEnroller picks, among candidates, the one reachable with the
// lowest-cost path, for when several known neighbors could each serve as
// an enroller into the same DIF. The neighbor-enroller loop does not
// call it.
func (r *RIB) PreferredEnroller(candidates []connstate.Address) (connstate.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srcID, ok := r.vertex[r.local]
	if !ok {
		return 0, fmt.Errorf("enrollment: rib: local address not in graph")
	}

	var (
		chosen connstate.Address
		best   int64
		found  bool
	)
	for _, c := range candidates {
		dstID, ok := r.vertex[c]
		if !ok {
			continue
		}
		path, err := r.graph.Shortest(srcID, dstID)
		if err != nil {
			continue
		}
		if !found || path.Distance < best {
			chosen, best, found = c, path.Distance, true
		}
	}
	if !found {
		return 0, fmt.Errorf("enrollment: rib: no reachable enroller candidate")
	}
	return chosen, nil
}

func (r *RIB) addressOf(vertexID int) (connstate.Address, error) {
	for addr, id := range r.vertex {
		if id == vertexID {
			return addr, nil
		}
	}
	return 0, fmt.Errorf("enrollment: rib: vertex %d has no address mapping", vertexID)
}
