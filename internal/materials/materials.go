package materials

import (
	"sort"
	"strings"
)

const Namespace = "minecraft:"

var defaultWords = map[string]string{
	"glass":       "minecraft:glass",
	"glass_pane":  "minecraft:glass_pane",
	"iron":        "minecraft:iron_block",
	"brick":       "minecraft:bricks",
	"bricks":      "minecraft:bricks",
	"stone":       "minecraft:stone",
	"cobblestone": "minecraft:cobblestone",
	"air":         "minecraft:air",
	"dirt":        "minecraft:dirt",
	"sand":        "minecraft:sand",
	"grass":       "minecraft:grass_block",
	"tnt":         "minecraft:tnt",
	"lava":        "minecraft:lava",
	"water":       "minecraft:water",
	"obsidian":    "minecraft:obsidian",
	"wood":        "minecraft:oak_planks",
	"planks":      "minecraft:oak_planks",
}

var nonSolid = map[string]struct{}{
	"":                         {},
	"minecraft:air":            {},
	"minecraft:cave_air":       {},
	"minecraft:void_air":       {},
	"minecraft:water":          {},
	"minecraft:lava":           {},
	"minecraft:light":          {},
	"minecraft:structure_void": {},
}

// Table maps bare material words to canonical namespaced identifiers.
// A Table is immutable once built; lookups are exact-match on the lowercased word.
type Table struct {
	words map[string]string
}

// Default returns the built-in table.
func Default() *Table {
	t, _ := NewTable(nil)
	return t
}

// NewTable builds a table from the defaults plus extra words. Extra entries never
// override a built-in word; the rejected keys are returned sorted.
func NewTable(extra map[string]string) (*Table, []string) {
	words := make(map[string]string, len(defaultWords)+len(extra))
	for k, v := range defaultWords {
		words[k] = v
	}
	var rejected []string
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" || strings.Contains(k, ":") {
			rejected = append(rejected, k)
			continue
		}
		if _, exists := words[k]; exists {
			rejected = append(rejected, k)
			continue
		}
		words[k] = Canonical(v)
	}
	sort.Strings(rejected)
	return &Table{words: words}, rejected
}

// Resolve returns the canonical identifier for word, or word unchanged when it is
// not a known bare material.
func (t *Table) Resolve(word string) string {
	if t == nil {
		return word
	}
	if v, ok := t.words[strings.ToLower(word)]; ok {
		return v
	}
	return word
}

// Known reports whether word is a bare material in the table.
func (t *Table) Known(word string) bool {
	if t == nil {
		return false
	}
	_, ok := t.words[strings.ToLower(word)]
	return ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.words)
}

// Canonical namespaces a material id. Bare words not in any table are namespaced
// as-is, so "oak_log" becomes "minecraft:oak_log".
func Canonical(id string) string {
	id = CollapseNamespace(strings.TrimSpace(id))
	if id == "" || strings.Contains(id, ":") {
		return id
	}
	return Namespace + strings.ToLower(id)
}

// CollapseNamespace rewrites repeated "minecraft:" prefixes to a single one.
func CollapseNamespace(s string) string {
	doubled := Namespace + Namespace
	for strings.Contains(s, doubled) {
		s = strings.ReplaceAll(s, doubled, Namespace)
	}
	return s
}

// Solid reports whether a block id occupies its cell for surface detection.
func Solid(id string) bool {
	_, soft := nonSolid[Canonical(id)]
	return !soft
}
