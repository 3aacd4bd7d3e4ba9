// Package enforce is the terminal-side agent for single-active-session
// enforcement. It owns the durable device identity, registers it with the
// backend, and polls for authorization and account status so a kicked or
// suspended terminal locks itself out.
package enforce

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFile = "device-id"

// UnknownDevice is returned when no durable identity can be established,
// typically because the state directory is not writable. Callers treat an
// unknown device as never authorized.
const UnknownDevice = ""

// LocalDeviceID returns this terminal's stable device identifier, creating
// and persisting one on first use. The same directory always yields the same
// identifier, which is what makes eviction detection possible.
func LocalDeviceID(stateDir string) (string, error) {
	path := filepath.Join(stateDir, identityFile)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id := uuid.New().String()
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return UnknownDevice, fmt.Errorf("failed to create state dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return UnknownDevice, fmt.Errorf("failed to persist device id: %w", err)
	}

	return id, nil
}
