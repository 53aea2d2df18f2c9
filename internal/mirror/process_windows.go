//go:build windows

package mirror

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// configureProcess starts the mirror in a new process group; cancellation
// falls back to exec's default Kill.
func configureProcess(c *exec.Cmd) {
	c.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
