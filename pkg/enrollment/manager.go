// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/dtcperr"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
	"github.com/rina-go/dtcp/pkg/sched"
)

// Handle addresses one in-flight enroll_to_dif request, per §6's IPC
// manager boundary.
type Handle uint64

// Dialer opens the layer-management flow to neighbor over supportingDIF
// and returns the message channels an enrollee-role StageHandler reads
// and writes. close tears the flow down once the exchange completes.
type Dialer func(neighbor connstate.Address, supportingDIF string) (msgIn <-chan Message, msgOut chan<- Message, close func(), err error)

// Result is delivered to enroll_to_dif_response: the handle it answers,
// the outcome, and — on success — the local RIB's neighbor set (which
// now includes the newly enrolled neighbor) and the DIF constants the
// enrollee received during the static push.
type Result struct {
	Handle         Handle
	Err            error
	Neighbors      []*object.Neighbor
	DIFInformation *object.Constants
}

// Manager is the enrollment subsystem's single entry point: it exposes
// the IPC-manager boundary (EnrollToDIF / the onResponse callback
// standing in for enroll_to_dif_response), accepts incoming enrollment
// requests from neighbors acting as enrollee, and owns the watchdog and
// neighbor-enroller background tasks over a shared RIB.
type Manager struct {
	cron   *sched.Cron
	params connstate.PolicyParams
	rib    *RIB
	local  connstate.Address

	dial       Dialer
	onResponse func(Result)

	namespaceCheck func(addr uint32) bool
	allocate       func() (uint32, bool)
	staticObjects  []object.Object

	watchdog         *Watchdog
	neighborEnroller *NeighborEnroller

	mu         sync.Mutex
	nextHandle Handle
	pending    map[Handle]*pendingEnrollment
}

type pendingEnrollment struct {
	neighbor connstate.Address
	timeout  sched.TaskHandle
	handler  *StageHandler
	close    func()
}

// NewManager builds a Manager. namespaceCheck/allocate back the
// enroller-role namespace-manager callbacks named in §4.5 step 2;
// staticObjects is pushed to every enrollee this instance admits.
func NewManager(cron *sched.Cron, params connstate.PolicyParams, local connstate.Address, dial Dialer, onResponse func(Result), namespaceCheck func(uint32) bool, allocate func() (uint32, bool), staticObjects []object.Object) *Manager {
	m := &Manager{
		cron:           cron,
		params:         params,
		rib:            NewRIB(local),
		local:          local,
		dial:           dial,
		onResponse:     onResponse,
		namespaceCheck: namespaceCheck,
		allocate:       allocate,
		staticObjects:  staticObjects,
		pending:        make(map[Handle]*pendingEnrollment),
	}
	return m
}

// RIB exposes the manager's neighbor table, e.g. for a caller populating
// it from discovery before enrollment starts.
func (m *Manager) RIB() *RIB { return m.rib }

// StartBackgroundTasks arms the watchdog and neighbor-enroller loops.
// probe answers the watchdog's liveness reads; onDead is invoked with
// NEIGHBOR_DECLARED_DEAD semantics — the caller is expected to
// deallocate the underlying N-1 flow.
func (m *Manager) StartBackgroundTasks(probe Probe, onDead func(*object.Neighbor)) {
	m.watchdog = NewWatchdog(m.cron, m.params, m.rib.Neighbors, probe, onDead)
	m.watchdog.Start()

	m.neighborEnroller = NewNeighborEnroller(m.cron, m.params, m.rib, func(n *object.Neighbor) error {
		_, err := m.EnrollToDIF(connstate.Address(n.Address), n.SupportingDIFName)
		return err
	})
	m.neighborEnroller.Start()
}

// StopBackgroundTasks cancels the watchdog and neighbor-enroller loops.
func (m *Manager) StopBackgroundTasks() {
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	if m.neighborEnroller != nil {
		m.neighborEnroller.Stop()
	}
}

// EnrollToDIF is the IPC manager's enroll_to_dif(neighbor,
// supporting_dif) -> handle. It dials the neighbor, drives the
// enrollee-role state machine, and arms an enrollment_timeout_ms
// deadline whose cancellation (on matching-response arrival) follows
// the design's "every scheduled task is addressable and cancelled on
// response or teardown" rule. The outcome arrives asynchronously via
// the onResponse callback supplied to NewManager.
func (m *Manager) EnrollToDIF(neighbor connstate.Address, supportingDIF string) (Handle, error) {
	msgIn, msgOut, closeFlow, err := m.dial(neighbor, supportingDIF)
	if err != nil {
		return 0, dtcperr.Wrap(dtcperr.ResourceExhausted, "enrollment: dial %v: %v", neighbor, err)
	}

	cfg := Configuration{
		SupportingDIFs: []string{supportingDIF},
	}
	handler := RunEnrollee(cfg, msgIn, msgOut)

	m.mu.Lock()
	m.nextHandle++
	h := m.nextHandle
	pe := &pendingEnrollment{neighbor: neighbor, handler: handler, close: closeFlow}
	pe.timeout = m.cron.After(time.Duration(m.params.EnrollmentTimeoutMs)*time.Millisecond, func() {
		handler.Close()
	})
	m.pending[h] = pe
	m.mu.Unlock()

	go m.awaitResult(h)

	return h, nil
}

func (m *Manager) awaitResult(h Handle) {
	m.mu.Lock()
	pe := m.pending[h]
	m.mu.Unlock()
	if pe == nil {
		return
	}

	err := <-pe.handler.Error()
	pe.timeout.Cancel()
	pe.close()

	m.mu.Lock()
	delete(m.pending, h)
	m.mu.Unlock()

	result := Result{Handle: h, Err: err}
	if err == nil {
		state := pe.handler.State()
		n := &object.Neighbor{
			Address:           uint64(pe.neighbor),
			SupportingDIFName: state.Configuration.SupportingDIFs[0],
			Enrolled:          true,
		}
		m.rib.AddNeighbor(n, 1)
		result.Neighbors = m.rib.Neighbors()
		for _, obj := range state.ReceivedObjects {
			if c, ok := obj.(*object.Constants); ok {
				result.DIFInformation = c
				break
			}
		}
	}

	if m.onResponse != nil {
		m.onResponse(result)
	}
}

// AcceptEnrollment runs the enroller-role state machine against an
// incoming layer-management flow from neighbor, pushing this
// instance's static objects plus its current neighbor set as dynamic
// state. No DFT entries are pushed: the Manager keeps no DFT table.
// Returns the StageHandler so the caller can observe completion
// and tear the flow down.
func (m *Manager) AcceptEnrollment(neighbor connstate.Address, msgIn <-chan Message, msgOut chan<- Message) *StageHandler {
	var dynamic []object.Object
	for _, n := range m.rib.Neighbors() {
		dynamic = append(dynamic, n)
	}

	cfg := Configuration{
		NamespaceCheck:      m.namespaceCheck,
		Allocate:            m.allocate,
		StaticObjects:       m.staticObjects,
		DynamicObjects:      dynamic,
		AllowedToStartEarly: true,
		OperationalStatus:   true,
	}
	handler := RunEnroller(cfg, msgIn, msgOut)

	go func() {
		if err := <-handler.Error(); err != nil {
			log.WithFields(log.Fields{"neighbor": neighbor, "err": err}).Warn("enrollment: incoming enrollment failed")
			return
		}
		state := handler.State()
		m.rib.AddNeighbor(&object.Neighbor{
			Address:  uint64(neighbor),
			Enrolled: true,
		}, 1)
		_ = state.AssignedAddress
	}()

	return handler
}

func (m *Manager) String() string {
	return fmt.Sprintf("enrollment.Manager(local=%v)", m.local)
}
