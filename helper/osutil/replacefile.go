// Copyright (c) 2025 OpenBao a Series of LF Projects, LLC
// SPDX-License-Identifier: MPL-2.0

package osutil

import (
	"github.com/natefinch/atomic"
)

// ReplaceFile atomically moves the file at oldpath over newpath: afterwards
// newpath holds either its previous contents or all of oldpath, never a
// partial copy.
func ReplaceFile(oldpath, newpath string) error {
	return atomic.ReplaceFile(oldpath, newpath)
}
