//go:build darwin

package sandbox

import "os"

func platformWrapper() Wrapper {
	if _, err := os.Stat(sandboxExec); err != nil {
		return nil
	}
	return Seatbelt{}
}
