//go:build !unix

package extractor

import "os/exec"

// configureProcess keeps the default exec.CommandContext kill behavior.
func configureProcess(cmd *exec.Cmd) {}
