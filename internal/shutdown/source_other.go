//go:build !unix

package shutdown

// Terminate never fires on platforms without SIGTERM
func Terminate() Source {
	return Never{Label: "terminate"}
}
