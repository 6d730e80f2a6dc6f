// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package wstransport

import (
	"net"
	"time"
)

// tunedDialer falls back to a plain dialer on platforms without the
// Linux-specific TCP_KEEP* socket options wired in dial_linux.go.
func tunedDialer() *net.Dialer {
	return &net.Dialer{Timeout: 5 * time.Second}
}
