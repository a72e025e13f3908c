// Package batch runs whole units: playing every item in order and
// recording then uploading every item.
package batch

import (
	"github.com/shizi-app/shizi/internal/assetpath"
	"github.com/shizi-app/shizi/internal/content"
)

// Resolver derives asset paths.
type Resolver interface {
	Resolve(level, unit string, item assetpath.Item) assetpath.Path
}

// Items lists a unit's audio items: each character, then its words in
// order, then its sentence.
func Items(unit content.Unit) []assetpath.Item {
	var items []assetpath.Item
	for _, e := range unit.Entries {
		items = append(items, assetpath.CharItem(e.Char))
		for i, w := range e.Words {
			items = append(items, assetpath.WordItem(e.Char, w, i))
		}
		if e.Sentence != "" {
			items = append(items, assetpath.SentenceItem(e.Char, e.Sentence))
		}
	}
	return items
}

// Paths resolves every item of a unit.
func Paths(r Resolver, level, unit string, items []assetpath.Item) []assetpath.Path {
	paths := make([]assetpath.Path, len(items))
	for i, it := range items {
		paths[i] = r.Resolve(level, unit, it)
	}
	return paths
}
