//go:build !windows

package mpv

// pipeReady is a no-op on Unix; socket readiness is checked via the
// filesystem instead.
func pipeReady(address string) bool {
	return false
}
