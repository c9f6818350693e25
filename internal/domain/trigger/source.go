package trigger

import (
	"strings"
)

// Source identifies the monitor that produced an event.
type Source uint8

const (
	// Manual tags the operator bypass. No monitor ever produces it.
	Manual Source = iota
	// Network fires on a matching UDP datagram.
	Network
	// RemoteCommand fires on an authenticated remote command with the right secret.
	RemoteCommand
	// DevicePresence fires when a configured USB device appears.
	DevicePresence
	// PhysicalButton fires on a long press of a paired button.
	PhysicalButton
	// HeartbeatTimeout fires when no heartbeat arrived within the timeout.
	HeartbeatTimeout
)

// allKeyword selects every monitor source.
const allKeyword = "all"

// sourceNames maps sources to their canonical mode names.
//
//nolint:gochecknoglobals // Read-only lookup table.
var sourceNames = map[Source]string{
	Manual:           "manual",
	Network:          "network",
	RemoteCommand:    "remote",
	DevicePresence:   "device",
	PhysicalButton:   "button",
	HeartbeatTimeout: "heartbeat",
}

// modeAliases maps accepted mode keywords, canonical and short, to sources.
//
//nolint:gochecknoglobals // Read-only lookup table.
var modeAliases = map[string]Source{
	"network":   Network,
	"net":       Network,
	"remote":    RemoteCommand,
	"bot":       RemoteCommand,
	"device":    DevicePresence,
	"usb":       DevicePresence,
	"button":    PhysicalButton,
	"flic":      PhysicalButton,
	"heartbeat": HeartbeatTimeout,
	"timer":     HeartbeatTimeout,
}

// MonitorSources returns every source a monitor can produce, in arming order.
func MonitorSources() []Source {
	return []Source{HeartbeatTimeout, Network, RemoteCommand, DevicePresence, PhysicalButton}
}

// String returns the canonical mode name of the source.
func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}

	return "unknown"
}

// ParseSource resolves a single mode keyword.
func ParseSource(name string) (Source, bool) {
	s, ok := modeAliases[strings.ToLower(strings.TrimSpace(name))]

	return s, ok
}

// ParseModes turns a comma-separated mode list into sources in arming order.
// The keyword "all" selects every monitor. Unrecognised keywords are returned
// separately so the caller can report them.
func ParseModes(list string) ([]Source, []string) {
	var (
		selected = make(map[Source]struct{}, len(modeAliases))
		unknown  []string
	)

	for _, raw := range strings.Split(list, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}

		if name == allKeyword {
			for _, s := range MonitorSources() {
				selected[s] = struct{}{}
			}

			continue
		}

		s, ok := modeAliases[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}

		selected[s] = struct{}{}
	}

	result := make([]Source, 0, len(selected))

	for _, s := range MonitorSources() {
		if _, ok := selected[s]; ok {
			result = append(result, s)
		}
	}

	return result, unknown
}

// JoinSources renders sources as a comma-separated list of mode names.
func JoinSources(sources []Source) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.String())
	}

	return strings.Join(names, ", ")
}
