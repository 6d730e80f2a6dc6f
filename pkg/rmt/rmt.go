// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rmt defines the boundary between DTCP and the relay-multiplexing
// table: the next layer down that actually moves PDUs between addresses.
// The RMT itself — routing, multiplexing across N-1 flows, QoS scheduling —
// is out of scope for this module; this package only names the interface
// and ships an in-memory implementation (FIFO per (src,dst,qos), as
// required by the ordering guarantees) for tests and local demos.
package rmt

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/pci"
)

// RMT is the sending half of the boundary: rmt_send(dst_addr, qos_id, pdu).
// Non-blocking; on a nil error the caller retains no ownership of pdu.
type RMT interface {
	Send(dst connstate.Address, qos connstate.QoSID, pdu *pci.PDU) error
}

// Receiver is the per-connection callback the RMT invokes on delivery.
// Delivery is single-threaded and FIFO per (src, dst, qos).
type Receiver func(pdu *pci.PDU)

// route identifies one (src,dst,qos) FIFO delivery channel.
type route struct {
	src connstate.Address
	dst connstate.Address
	qos connstate.QoSID
}

// Memory is an in-process RMT connecting any number of registered
// receivers. Each route gets its own goroutine and buffered channel so
// that delivery is FIFO per (src,dst,qos) but different routes never
// block each other.
type Memory struct {
	mu        sync.Mutex
	receivers map[route]chan *pci.PDU
	closeOnce map[route]chan struct{}
}

// NewMemory creates an empty in-memory RMT.
func NewMemory() *Memory {
	return &Memory{
		receivers: make(map[route]chan *pci.PDU),
		closeOnce: make(map[route]chan struct{}),
	}
}

// Register arms a Receiver for PDUs arriving at dst, from src, on qos.
// Registering the same route twice replaces the previous receiver's
// delivery goroutine.
func (m *Memory) Register(src, dst connstate.Address, qos connstate.QoSID, recv Receiver) {
	r := route{src: src, dst: dst, qos: qos}

	m.mu.Lock()
	if stop, ok := m.closeOnce[r]; ok {
		close(stop)
	}
	ch := make(chan *pci.PDU, 256)
	stop := make(chan struct{})
	m.receivers[r] = ch
	m.closeOnce[r] = stop
	m.mu.Unlock()

	go func() {
		for {
			select {
			case pdu := <-ch:
				recv(pdu)
			case <-stop:
				return
			}
		}
	}()
}

// Unregister removes the route and stops its delivery goroutine.
func (m *Memory) Unregister(src, dst connstate.Address, qos connstate.QoSID) {
	r := route{src: src, dst: dst, qos: qos}
	m.mu.Lock()
	defer m.mu.Unlock()
	if stop, ok := m.closeOnce[r]; ok {
		close(stop)
		delete(m.closeOnce, r)
		delete(m.receivers, r)
	}
}

// Send implements RMT by looking up the (src,dst,qos) route named by pdu's
// own PCI and enqueuing it FIFO. Send is non-blocking for bounded-queue
// capacity; an overrun route gets its PDU dropped and logged rather than
// blocking the caller, matching the non-blocking boundary contract.
func (m *Memory) Send(dst connstate.Address, qos connstate.QoSID, pdu *pci.PDU) error {
	r := route{src: connstate.Address(pdu.PCI.SrcAddr), dst: dst, qos: qos}

	m.mu.Lock()
	ch, ok := m.receivers[r]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("rmt: no receiver registered for %+v", r)
	}

	select {
	case ch <- pdu:
		return nil
	default:
		log.WithFields(log.Fields{"route": r}).Warn("rmt: queue full, dropping pdu")
		return fmt.Errorf("rmt: queue full for %+v", r)
	}
}
