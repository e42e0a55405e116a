package uds

import (
	"fmt"
	"os"
	"path/filepath"
)

// SocketEnv overrides the default socket location.
const SocketEnv = "RNDRWATCH_SOCKET"

// DefaultSocketPath returns the socket shared by rndrwatchd and its clients:
// $RNDRWATCH_SOCKET, else $XDG_RUNTIME_DIR/rndrwatch.sock, else a per-user
// path under the temp directory.
func DefaultSocketPath() string {
	if p := os.Getenv(SocketEnv); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "rndrwatch.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("rndrwatch-%d.sock", os.Getuid()))
}
