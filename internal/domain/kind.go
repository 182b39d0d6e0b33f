package domain

import "fmt"

// ToolKind identifies the execution strategy class of a manifest.
type ToolKind string

const (
	// KindNativeAPI executes through a purpose-built service integration.
	KindNativeAPI ToolKind = "native_api"
	// KindOSScript executes through the OS scripting dictionary.
	KindOSScript ToolKind = "os_script"
	// KindCLI executes through a command-line utility.
	KindCLI ToolKind = "cli"
	// KindUIAutomation executes through a UI-automation driver.
	KindUIAutomation ToolKind = "ui_automation"
	// KindGeneratedScript executes a previously synthesized script.
	KindGeneratedScript ToolKind = "generated_script"
	// KindVisionFallback executes through vision-guided interaction.
	KindVisionFallback ToolKind = "vision_fallback"
)

// TierOrder lists all kinds in resolution priority order. Cheaper and
// more reliable strategies come first. The order is fixed: it is never
// reweighted by historical success, so resolution stays auditable.
var TierOrder = []ToolKind{
	KindNativeAPI,
	KindOSScript,
	KindCLI,
	KindUIAutomation,
	KindGeneratedScript,
	KindVisionFallback,
}

var tierPriority = func() map[ToolKind]int {
	m := make(map[ToolKind]int, len(TierOrder))
	for i, kind := range TierOrder {
		m[kind] = i
	}
	return m
}()

// Priority returns the resolution priority of a kind. Lower values are
// tried first. Unknown kinds sort last.
func (k ToolKind) Priority() int {
	if p, ok := tierPriority[k]; ok {
		return p
	}
	return len(TierOrder)
}

// Valid reports whether the kind is a member of the closed set.
func (k ToolKind) Valid() bool {
	_, ok := tierPriority[k]
	return ok
}

// ParseToolKind converts a string into a ToolKind.
func ParseToolKind(s string) (ToolKind, error) {
	kind := ToolKind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("unknown tool kind %q", s)
	}
	return kind, nil
}
