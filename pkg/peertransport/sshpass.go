// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"os"
	"os/exec"
	"sync"
)

// sshPassPipe is the fd pair ArgBuilder opens for password injection via
// sshpass -d<fd>. The read end is handed to the child; the write end is
// used once by ChildIO right after spawn, then closed.
type sshPassPipe struct {
	read  *os.File
	write *os.File
}

var (
	sshpassOnce      sync.Once
	sshpassAvailable bool
)

// sshpassOnPath reports whether the sshpass helper is discoverable on
// PATH. The result is a pure function of the host environment for the
// lifetime of the process, so it is probed once and memoised.
func sshpassOnPath() bool {
	sshpassOnce.Do(func() {
		_, err := exec.LookPath("sshpass")
		sshpassAvailable = err == nil
	})
	return sshpassAvailable
}
