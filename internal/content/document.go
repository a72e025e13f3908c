// Package content loads the leveled character lists.
//
// Each level is one YAML document, contents_{level}.yaml, mapping unit
// names to characters, and each character to its words (词) and example
// sentence (句). Document order is significant and preserved.
package content

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shizi-app/shizi/internal/apperr"
)

// Document keys.
const (
	keyWords    = "词"
	keySentence = "句"
)

// Entry is one character with its practice material.
type Entry struct {
	Char     string   `json:"char"`
	Words    []string `json:"words"`
	Sentence string   `json:"sentence,omitempty"`
}

// Unit is a named, ordered list of characters.
type Unit struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Entry returns the entry for char.
func (u *Unit) Entry(char string) (Entry, bool) {
	for _, e := range u.Entries {
		if e.Char == char {
			return e, true
		}
	}
	return Entry{}, false
}

// Level is a parsed level document.
type Level struct {
	Name  string `json:"name"`
	Units []Unit `json:"units"`
}

// UnitNames returns the unit names in document order.
func (l *Level) UnitNames() []string {
	names := make([]string, len(l.Units))
	for i, u := range l.Units {
		names[i] = u.Name
	}
	return names
}

// Unit returns the unit with the given display name.
func (l *Level) Unit(name string) (*Unit, bool) {
	for i := range l.Units {
		if l.Units[i].Name == name {
			return &l.Units[i], true
		}
	}
	return nil, false
}

// CharCount returns the number of characters across all units.
func (l *Level) CharCount() int {
	n := 0
	for _, u := range l.Units {
		n += len(u.Entries)
	}
	return n
}

// DocumentName returns the file name of a level document.
func DocumentName(level string) string {
	return "contents_" + level + ".yaml"
}

// Parse decodes a level document.
func Parse(level string, data []byte) (*Level, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, malformed(level, err)
	}

	lvl := &Level{Name: level}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return lvl, nil
	}
	root := doc.Content[0]
	if isNull(root) {
		return lvl, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, malformed(level, fmt.Errorf("line %d: expected a mapping of units", root.Line))
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		unit := Unit{Name: strings.TrimSpace(root.Content[i].Value)}
		chars := root.Content[i+1]
		if !isNull(chars) {
			if chars.Kind != yaml.MappingNode {
				return nil, malformed(level, fmt.Errorf("line %d: unit %q: expected a mapping of characters", chars.Line, unit.Name))
			}
			for j := 0; j+1 < len(chars.Content); j += 2 {
				entry, err := parseEntry(chars.Content[j], chars.Content[j+1])
				if err != nil {
					return nil, malformed(level, fmt.Errorf("unit %q: %w", unit.Name, err))
				}
				unit.Entries = append(unit.Entries, entry)
			}
		}
		lvl.Units = append(lvl.Units, unit)
	}
	return lvl, nil
}

func parseEntry(key, value *yaml.Node) (Entry, error) {
	entry := Entry{Char: strings.TrimSpace(key.Value)}
	if entry.Char == "" {
		return entry, fmt.Errorf("line %d: empty character", key.Line)
	}
	if isNull(value) {
		return entry, nil
	}
	if value.Kind != yaml.MappingNode {
		return entry, fmt.Errorf("line %d: character %q: expected a mapping", value.Line, entry.Char)
	}

	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i].Value, value.Content[i+1]
		switch k {
		case keyWords:
			words, err := parseWords(v)
			if err != nil {
				return entry, fmt.Errorf("character %q: %w", entry.Char, err)
			}
			entry.Words = words
		case keySentence:
			if !isNull(v) {
				if v.Kind != yaml.ScalarNode {
					return entry, fmt.Errorf("line %d: character %q: sentence must be text", v.Line, entry.Char)
				}
				entry.Sentence = strings.TrimSpace(v.Value)
			}
		}
	}
	return entry, nil
}

func parseWords(n *yaml.Node) ([]string, error) {
	switch {
	case isNull(n):
		return nil, nil
	case n.Kind == yaml.ScalarNode:
		if w := strings.TrimSpace(n.Value); w != "" {
			return []string{w}, nil
		}
		return nil, nil
	case n.Kind == yaml.SequenceNode:
		var words []string
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: words must be text", item.Line)
			}
			if w := strings.TrimSpace(item.Value); w != "" {
				words = append(words, w)
			}
		}
		return words, nil
	}
	return nil, errors.New("words must be a list")
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func malformed(level string, err error) error {
	return apperr.Malformed("content.parse", err).With("level", level)
}
