//go:build unix

package shutdown

import "syscall"

// Terminate fires on SIGTERM
func Terminate() Source {
	return &signalSource{name: "terminate", sig: syscall.SIGTERM}
}
