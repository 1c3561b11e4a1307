package debug

import (
	"github.com/xraph/locator/internal/latch"
)

// MessageType identifies the kind of debug message sent over the WebSocket.
type MessageType string

const (
	MsgSnapshot MessageType = "snapshot" // full state on WS connect
	MsgEvent    MessageType = "event"    // catalog change
	MsgModule   MessageType = "module"   // module attached or detached
)

// Message is the envelope for all debug messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"ts"`
	Payload   any         `json:"payload"`
}

// Snapshot is the full runtime state.
type Snapshot struct {
	Modules      []string         `json:"modules"`
	StaticOnly   bool             `json:"static_only"`
	UptimeMs     int64            `json:"uptime_ms"`
	Capabilities []CapabilityInfo `json:"capabilities"`
	Components   []latch.Status   `json:"components"`
}

// CapabilityInfo lists the entries published for one capability.
type CapabilityInfo struct {
	Name    string      `json:"name"`
	Entries []EntryInfo `json:"entries"`
}

// EntryInfo describes one catalog entry.
type EntryInfo struct {
	ID          string         `json:"id"`
	Owner       string         `json:"owner,omitempty"`
	Type        string         `json:"type"`
	Properties  map[string]any `json:"properties,omitempty"`
	PublishedAt int64          `json:"published_at"`
}

// EventInfo describes one catalog change.
type EventInfo struct {
	Kind       string `json:"kind"`
	Capability string `json:"capability"`
	EntryID    string `json:"entry_id"`
	Owner      string `json:"owner,omitempty"`
}

// ModuleInfo describes a module change.
type ModuleInfo struct {
	Name     string `json:"name"`
	Attached bool   `json:"attached"`
}

// ServerEntry is a single entry in the debug server registry file.
type ServerEntry struct {
	PID        int    `json:"pid"`
	DebugAddr  string `json:"debug_addr"`
	ModulesDir string `json:"modules_dir,omitempty"`
	StartedAt  string `json:"started_at"`
}
