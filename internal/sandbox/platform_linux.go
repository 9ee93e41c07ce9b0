//go:build linux

package sandbox

import "os/exec"

func platformWrapper() Wrapper {
	path, err := exec.LookPath("bwrap")
	if err != nil {
		return nil
	}
	return Bubblewrap{Path: path}
}
