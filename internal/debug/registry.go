package debug

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
)

type registryFile struct {
	Servers []ServerEntry `json:"servers"`
}

var registryMu sync.Mutex

// DefaultRegistryPath returns ~/.locator/debug-servers.json.
func DefaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".locator", "debug-servers.json"), nil
}

// RegisterServer records entry for the current process in the registry at
// path, replacing stale entries for the same pid or address.
func RegisterServer(path string, entry ServerEntry) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	reg := readRegistry(path)

	entry.PID = os.Getpid()
	entry.StartedAt = time.Now().Format(time.RFC3339)

	filtered := reg.Servers[:0]
	for _, s := range reg.Servers {
		if s.PID != entry.PID && s.DebugAddr != entry.DebugAddr {
			filtered = append(filtered, s)
		}
	}
	reg.Servers = append(filtered, entry)

	return writeRegistry(path, reg)
}

// UnregisterServer removes the entries of the current process or debugAddr.
func UnregisterServer(path, debugAddr string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	reg := readRegistry(path)
	pid := os.Getpid()
	filtered := reg.Servers[:0]
	for _, s := range reg.Servers {
		if s.PID != pid && s.DebugAddr != debugAddr {
			filtered = append(filtered, s)
		}
	}
	reg.Servers = filtered
	_ = writeRegistry(path, reg)
}

// Servers lists the registered debug servers.
func Servers(path string) []ServerEntry {
	registryMu.Lock()
	defer registryMu.Unlock()
	return readRegistry(path).Servers
}

func readRegistry(path string) registryFile {
	data, err := os.ReadFile(path)
	if err != nil {
		return registryFile{}
	}
	var reg registryFile
	_ = json.Unmarshal(data, &reg)
	return reg
}

func writeRegistry(path string, reg registryFile) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
