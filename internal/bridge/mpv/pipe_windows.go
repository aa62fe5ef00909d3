//go:build windows

package mpv

import (
	"time"

	"github.com/Microsoft/go-winio"
)

// pipeReady probes whether the mpv named pipe accepts connections yet.
func pipeReady(address string) bool {
	timeout := 200 * time.Millisecond
	conn, err := winio.DialPipe(address, &timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
