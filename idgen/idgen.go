// Package idgen generates the identifiers carried by notifications and
// queued commands: RFC 9562 UUID v7 strings, time-sortable so a log or an
// inbox listing sorts in creation order.
package idgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID from gen ("cmd_", "ntf_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the generator behind New. Tests may swap it for a
// deterministic one.
var Default Generator = UUIDv7()

// New produces an ID using Default.
func New() string {
	return Default()
}

// Parse validates id, ignoring a "<prefix>_" head, and returns it unchanged.
func Parse(id string) (string, error) {
	raw := id
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		raw = id[i+1:]
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", id, err)
	}
	return id, nil
}
