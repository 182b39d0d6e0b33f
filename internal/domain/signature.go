package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ActionSignature is the normalized key identifying one capability
// need: the same action with the same parameter-name set on the same
// platform shares a signature regardless of argument values.
type ActionSignature string

// NewActionSignature derives the signature for an action request.
// Normalization: the action name is lowercased and trimmed, parameter
// names are lowercased and sorted, and the platform string is
// lowercased. The components are NUL-joined before hashing so that
// name boundaries cannot collide.
func NewActionSignature(actionName string, parameters map[string]any, platform string) ActionSignature {
	names := make([]string, 0, len(parameters))
	for name := range parameters {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(actionName)))
	for _, name := range names {
		b.WriteByte(0)
		b.WriteString(name)
	}
	b.WriteByte(0)
	b.WriteString(strings.ToLower(strings.TrimSpace(platform)))

	sum := sha256.Sum256([]byte(b.String()))
	return ActionSignature(hex.EncodeToString(sum[:]))
}

func (s ActionSignature) String() string {
	return string(s)
}
