// SPDX-License-Identifier: MIT

//go:build windows

package procgroup

import "os/exec"

func set(cmd *exec.Cmd) {
	// Process groups work differently on Windows; child management falls
	// back to killing the direct process.
}

func terminate(cmd *exec.Cmd) error {
	return kill(cmd)
}

func kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
