// SPDX-License-Identifier: MIT

// Package procgroup spawns child processes in their own process group so a
// whole tool tree (ffmpeg, yt-dlp and their helpers) can be reaped at once.
package procgroup

import "os/exec"

// Set configures the command to start in a new process group.
// Mandatory for Terminate and Kill to reach the whole group.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate asks the command's process group to exit (SIGTERM on unix).
// Safe to call when the process already exited.
func Terminate(cmd *exec.Cmd) error {
	return terminate(cmd)
}

// Kill forcefully ends the command's process group (SIGKILL on unix).
// Safe to call when the process already exited.
func Kill(cmd *exec.Cmd) error {
	return kill(cmd)
}
