// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package enrollment

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rina-go/dtcp/pkg/connstate"
	"github.com/rina-go/dtcp/pkg/enrollment/object"
	"github.com/rina-go/dtcp/pkg/sched"
)

// NeighborEnroller implements §4.5's background task: every
// neighbor_enroller_period_ms it walks the known neighbor set and, for
// each neighbor not currently enrolled, either bumps its attempt
// counter and kicks off an enrollment attempt (if under
// max_enrollment_attempts) or evicts it from the RIB.
type NeighborEnroller struct {
	cron   *sched.Cron
	period time.Duration
	max    uint32

	rib    *RIB
	enroll func(n *object.Neighbor) error

	handle sched.TaskHandle
}

// NewNeighborEnroller builds a NeighborEnroller from the connection's
// configured neighbor_enroller_period_ms and max_enrollment_attempts.
// enroll is invoked synchronously per candidate from the task's own
// goroutine spawned per neighbor, so a slow enrollment attempt for one
// neighbor never delays the sweep of the others.
func NewNeighborEnroller(cron *sched.Cron, params connstate.PolicyParams, rib *RIB, enroll func(n *object.Neighbor) error) *NeighborEnroller {
	return &NeighborEnroller{
		cron:   cron,
		period: time.Duration(params.NeighborEnrollerPeriodMs) * time.Millisecond,
		max:    params.MaxEnrollmentAttempts,
		rib:    rib,
		enroll: enroll,
	}
}

// Start arms the periodic sweep task.
func (ne *NeighborEnroller) Start() {
	ne.handle = ne.cron.Every(ne.period, ne.tick)
}

// Stop cancels the periodic sweep task.
func (ne *NeighborEnroller) Stop() {
	ne.handle.Cancel()
}

func (ne *NeighborEnroller) tick() {
	for _, n := range ne.rib.Neighbors() {
		if n.Enrolled {
			continue
		}
		if n.EnrollmentAttempts >= uint64(ne.max) {
			log.WithFields(log.Fields{"neighbor": n.Address, "attempts": n.EnrollmentAttempts}).
				Warn("enrollment: neighbor exceeded max_enrollment_attempts, evicting from RIB")
			ne.rib.Remove(connstate.Address(n.Address))
			continue
		}

		n.EnrollmentAttempts++
		go func(n *object.Neighbor) {
			if err := ne.enroll(n); err != nil {
				log.WithFields(log.Fields{"neighbor": n.Address, "err": err}).Warn("enrollment: neighbor-enroller attempt failed")
			}
		}(n)
	}
}
