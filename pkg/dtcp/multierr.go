// SPDX-FileCopyrightText: 2026 The rina-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dtcp

import "github.com/hashicorp/go-multierror"

// appendErr accumulates independent sub-policy failures into a single
// returned error, the way sv_update's chained hooks are specified to do:
// best-effort, logged individually, never aborting the remaining hooks.
func appendErr(existing error, next error) error {
	if next == nil {
		return existing
	}
	return multierror.Append(existing, next)
}
