package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// SourceCache marks manifests promoted from the script cache rather
// than produced by a discoverer.
const SourceCache = "cache"

// ToolManifest describes one resolvable capability. Manifests are
// immutable once built: re-discovery replaces them wholesale.
type ToolManifest struct {
	ActionName      string             `json:"actionName"`
	Kind            ToolKind           `json:"kind"`
	ParameterSchema *jsonschema.Schema `json:"parameterSchema,omitempty"`
	Description     string             `json:"description,omitempty"`
	SourceDiscoverer string            `json:"sourceDiscoverer"`

	// Exec holds the command template for process-backed kinds
	// (os_script, cli, generated_script). Placeholders of the form
	// {{param}} are substituted with request argument values.
	Exec []string `json:"exec,omitempty"`
}

// Validate checks structural requirements for a manifest.
func (m ToolManifest) Validate() error {
	if strings.TrimSpace(m.ActionName) == "" {
		return fmt.Errorf("%w: action name is required", ErrInvalidManifest)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidManifest, m.ActionName, m.Kind)
	}
	return nil
}

// Key identifies a manifest within a catalog: action names are unique
// per kind, while the same action may appear under several kinds.
func (m ToolManifest) Key() string {
	return string(m.Kind) + "/" + m.ActionName
}

// DiscoveryResult is the output of one discoverer run.
type DiscoveryResult struct {
	Discoverer string
	Manifests  []ToolManifest
}

// CatalogSnapshot is an immutable view of the resolvable capability
// table. Readers hold a snapshot; rebuilds swap in a fresh one.
type CatalogSnapshot struct {
	Revision uint64
	BuiltAt  time.Time

	byAction map[string][]ToolManifest
}

// BuildCatalogSnapshot merges discovery results into a snapshot.
// Within a kind, the last manifest for an action name wins; the merged
// per-action lists are ordered by tier priority with action name as a
// deterministic tie-break so identical inputs yield identical output.
func BuildCatalogSnapshot(results []DiscoveryResult, revision uint64, builtAt time.Time) (CatalogSnapshot, error) {
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	byKey := make(map[string]ToolManifest)
	for _, result := range results {
		for _, manifest := range result.Manifests {
			if err := manifest.Validate(); err != nil {
				return CatalogSnapshot{}, fmt.Errorf("discoverer %s: %w", result.Discoverer, err)
			}
			if manifest.SourceDiscoverer == "" {
				manifest.SourceDiscoverer = result.Discoverer
			}
			byKey[manifest.Key()] = manifest
		}
	}

	byAction := make(map[string][]ToolManifest)
	for _, manifest := range byKey {
		byAction[manifest.ActionName] = append(byAction[manifest.ActionName], manifest)
	}
	for _, manifests := range byAction {
		sortManifests(manifests)
	}

	return CatalogSnapshot{
		Revision: revision,
		BuiltAt:  builtAt,
		byAction: byAction,
	}, nil
}

// Lookup returns all manifests for an action name in tier priority
// order. An unknown action returns an empty list, never an error.
func (s CatalogSnapshot) Lookup(actionName string) []ToolManifest {
	manifests, ok := s.byAction[actionName]
	if !ok {
		return nil
	}
	out := make([]ToolManifest, len(manifests))
	copy(out, manifests)
	return out
}

// Actions returns all resolvable action names, sorted.
func (s CatalogSnapshot) Actions() []string {
	names := make([]string, 0, len(s.byAction))
	for name := range s.byAction {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of manifests in the snapshot.
func (s CatalogSnapshot) Len() int {
	total := 0
	for _, manifests := range s.byAction {
		total += len(manifests)
	}
	return total
}

// WithManifest returns a copy of the snapshot with one manifest added
// or replaced (same action and kind). Used for cache promotion.
func (s CatalogSnapshot) WithManifest(manifest ToolManifest, revision uint64, builtAt time.Time) CatalogSnapshot {
	next := s.clone(revision, builtAt)
	list := next.byAction[manifest.ActionName]
	replaced := false
	for i, existing := range list {
		if existing.Kind == manifest.Kind {
			list[i] = manifest
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, manifest)
	}
	sortManifests(list)
	next.byAction[manifest.ActionName] = list
	return next
}

// WithoutManifest returns a copy of the snapshot with the manifest for
// (actionName, kind) removed, if present.
func (s CatalogSnapshot) WithoutManifest(actionName string, kind ToolKind, revision uint64, builtAt time.Time) CatalogSnapshot {
	next := s.clone(revision, builtAt)
	list := next.byAction[actionName]
	filtered := list[:0]
	for _, existing := range list {
		if existing.Kind != kind {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == 0 {
		delete(next.byAction, actionName)
	} else {
		next.byAction[actionName] = filtered
	}
	return next
}

func (s CatalogSnapshot) clone(revision uint64, builtAt time.Time) CatalogSnapshot {
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	byAction := make(map[string][]ToolManifest, len(s.byAction))
	for name, manifests := range s.byAction {
		copied := make([]ToolManifest, len(manifests))
		copy(copied, manifests)
		byAction[name] = copied
	}
	return CatalogSnapshot{
		Revision: revision,
		BuiltAt:  builtAt,
		byAction: byAction,
	}
}

func sortManifests(manifests []ToolManifest) {
	sort.SliceStable(manifests, func(i, j int) bool {
		if manifests[i].Kind.Priority() != manifests[j].Kind.Priority() {
			return manifests[i].Kind.Priority() < manifests[j].Kind.Priority()
		}
		return manifests[i].ActionName < manifests[j].ActionName
	})
}
