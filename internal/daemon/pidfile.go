package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// PidfilePath resolves the process-identity file location next to the
// control socket.
func PidfilePath() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return filepath.Join(dir, "murmur.pid")
	}
	return filepath.Join(os.TempDir(), "murmur.pid")
}

// WritePidfile persists the daemon's process identity so companion scripts
// can signal it. An existing pidfile owned by a live process is a startup
// failure; a stale one is reclaimed.
func WritePidfile(path string) error {
	if content, err := os.ReadFile(path); err == nil {
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(content)))
		if parseErr == nil && pidAlive(pid) {
			return fmt.Errorf("murmur daemon already running with pid %d", pid)
		}
		// Stale pidfile from a crashed daemon.
		_ = os.Remove(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read pidfile %q: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pidfile %q: %w", path, err)
	}
	return nil
}

// RemovePidfile deletes the pidfile on shutdown.
func RemovePidfile(path string) {
	_ = os.Remove(path)
}

// pidAlive reports whether a process with the given pid exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
