//go:build !windows

package mirror

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// configureProcess puts the mirror in its own process group so cancellation
// also reaches the remote-shell children it spawns.
func configureProcess(c *exec.Cmd) {
	c.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return unix.Kill(-c.Process.Pid, unix.SIGKILL)
	}
}
