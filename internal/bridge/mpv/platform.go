package mpv

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform represents the operating system platform.
type Platform int

const (
	PlatformLinux Platform = iota
	PlatformWindows
	PlatformWSL
	PlatformMac
)

// IPCType represents how the mpv IPC endpoint is exposed.
type IPCType int

const (
	IPCUnixSocket IPCType = iota
	IPCNamedPipe
)

// IPCConfig holds the IPC endpoint for one mpv process.
type IPCConfig struct {
	Type     IPCType
	Address  string
	IsSocket bool
}

// DetectPlatform detects the current platform.
func DetectPlatform() Platform {
	switch runtime.GOOS {
	case "windows":
		return PlatformWindows
	case "darwin":
		return PlatformMac
	case "linux":
		if isWSL() {
			return PlatformWSL
		}
		return PlatformLinux
	default:
		return PlatformLinux
	}
}

func isWSL() bool {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	version := strings.ToLower(string(data))
	return strings.Contains(version, "microsoft") || strings.Contains(version, "wsl")
}

// Executable returns the mpv binary name for the platform. WSL deliberately
// uses the Linux binary: named pipes of a Windows mpv are not reachable from
// a WSL process.
func Executable(platform Platform) string {
	if platform == PlatformWindows {
		return "mpv.exe"
	}
	return "mpv"
}

// FindExecutable locates the mpv binary in PATH.
func FindExecutable(platform Platform) (string, error) {
	executable := Executable(platform)
	path, err := exec.LookPath(executable)
	if err == nil {
		return path, nil
	}
	return "", fmt.Errorf("%s not found in PATH, install mpv first", executable)
}

// NewIPCConfig generates a fresh, unique IPC endpoint for the platform.
func NewIPCConfig(platform Platform) (*IPCConfig, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}

	if platform == PlatformWindows {
		return &IPCConfig{
			Type:    IPCNamedPipe,
			Address: fmt.Sprintf(`\\.\pipe\fincast-mpv-%s`, suffix),
		}, nil
	}

	return &IPCConfig{
		Type:     IPCUnixSocket,
		Address:  filepath.Join(os.TempDir(), fmt.Sprintf("fincast-mpv-%s.sock", suffix)),
		IsSocket: true,
	}, nil
}

func randomSuffix() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// IPCArgument returns the mpv command-line flag pointing at the endpoint.
func (c *IPCConfig) IPCArgument() string {
	return fmt.Sprintf("--input-ipc-server=%s", c.Address)
}

// ConnectionString returns the address in the form the gopv client expects.
// Both unix sockets and named pipes are passed through as-is.
func (c *IPCConfig) ConnectionString() string {
	return c.Address
}
