// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux
// +build linux

package wstransport

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// On Linux, the underlying TCP connection backing the websocket is tuned
// with short keepalive probes so a stalled RMT peer is detected well
// inside the A-timer/watchdog time scale instead of relying solely on the
// kernel's multi-minute defaults.
const (
	dialTCPKeepCnt   = 3
	dialTCPKeepIdle  = 5
	dialTCPKeepIntvl = 3
)

func dialControl(_, _ string, rawConn syscall.RawConn) (err error) {
	opts := map[int]int{
		unix.TCP_KEEPCNT:   dialTCPKeepCnt,
		unix.TCP_KEEPIDLE:  dialTCPKeepIdle,
		unix.TCP_KEEPINTVL: dialTCPKeepIntvl,
	}

	ctrlErr := rawConn.Control(func(fd uintptr) {
		for opt, value := range opts {
			if err = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, opt, value); err != nil {
				return
			}
		}
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return err
}

// tunedDialer is a net.Dialer with RMT-link-appropriate TCP keepalive
// socket options applied via dialControl.
func tunedDialer() *net.Dialer {
	return &net.Dialer{
		Timeout: 5 * time.Second,
		Control: dialControl,
	}
}
