package core

import (
	"sort"
	"strings"
)

// DefaultRCSMultiplier is used for tags missing from the table.
const DefaultRCSMultiplier = 0.3

// RCSTable maps a target tag to its cross-section threat multiplier. It is
// built once from configuration and never mutated afterwards, so it can be
// shared freely. Tags are case-insensitive.
type RCSTable struct {
	entries map[string]float64
}

// NewRCSTable copies entries into an immutable table.
func NewRCSTable(entries map[string]float64) *RCSTable {
	t := &RCSTable{entries: make(map[string]float64, len(entries))}
	for tag, mult := range entries {
		t.entries[NormalizeTag(tag)] = mult
	}
	return t
}

// Lookup returns the multiplier for tag and whether the tag was known.
// Unknown tags resolve to DefaultRCSMultiplier.
func (t *RCSTable) Lookup(tag string) (float64, bool) {
	if t != nil {
		if m, ok := t.entries[NormalizeTag(tag)]; ok {
			return m, true
		}
	}
	return DefaultRCSMultiplier, false
}

// Tags returns the known tags in sorted order.
func (t *RCSTable) Tags() []string {
	if t == nil {
		return nil
	}
	tags := make([]string, 0, len(t.entries))
	for tag := range t.entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Len returns the number of entries.
func (t *RCSTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// NormalizeTag canonicalises a tag for comparisons.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
