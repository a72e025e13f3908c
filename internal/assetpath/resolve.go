package assetpath

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// NoIndex marks an item without an ordinal position.
const NoIndex = -1

// Item identifies one recordable piece of text under a root character.
type Item struct {
	RootChar string
	Text     string
	Kind     Kind
	Index    int // ordinal of a word within its character entry, or NoIndex
}

// CharItem returns the item for the root character itself.
func CharItem(char string) Item {
	return Item{RootChar: char, Text: char, Kind: KindCharacter, Index: NoIndex}
}

// WordItem returns the item for the index-th word of char.
func WordItem(char, word string, index int) Item {
	return Item{RootChar: char, Text: word, Kind: KindWord, Index: index}
}

// SentenceItem returns the item for the example sentence of char.
func SentenceItem(char, sentence string) Item {
	return Item{RootChar: char, Text: sentence, Kind: KindSentence, Index: NoIndex}
}

// Path is a storage path of the form {level}/{unitToken}/{romanized}/{file}.
type Path string

// String implements fmt.Stringer.
func (p Path) String() string { return string(p) }

// Segments returns the four decoded path segments.
func (p Path) Segments() []string {
	parts := strings.Split(string(p), "/")
	for i, s := range parts {
		if u, err := url.PathUnescape(s); err == nil {
			parts[i] = u
		}
	}
	return parts
}

// Resolver derives asset paths.
type Resolver struct {
	romanizer Romanizer
}

// NewResolver returns a Resolver that romanizes with r. A nil r keeps
// characters as they are.
func NewResolver(r Romanizer) *Resolver {
	return &Resolver{romanizer: r}
}

// Resolve returns the storage path for item within the given level and
// unit. The result depends only on the arguments.
func (r *Resolver) Resolve(level, unit string, item Item) Path {
	segments := []string{
		EscapeComponent(level),
		EscapeComponent(UnitToken(unit)),
		EscapeComponent(r.romanize(item.RootChar)),
		Filename(item),
	}
	return Path(strings.Join(segments, "/"))
}

func (r *Resolver) romanize(char string) string {
	if r.romanizer == nil {
		return char
	}
	if s := r.romanizer.Romanize(char); s != "" {
		return s
	}
	return char
}

// UnitToken returns the path token for a unit display name.
func UnitToken(unit string) string {
	return "Unit_" + UnitCode(unit)
}

// Filename returns the file name for item.
func Filename(item Item) string {
	switch item.Kind {
	case KindCharacter:
		return "char.mp3"
	case KindSentence:
		return "sentence.mp3"
	case KindWord:
		if item.Index >= 0 {
			return "word_" + strconv.Itoa(item.Index+1) + ".mp3"
		}
		return "word_" + TextHash(item.Text) + ".mp3"
	}
	return TextHash(item.Text) + ".mp3"
}

// TextHash returns the hex MD5 digest of the trimmed text.
func TextHash(text string) string {
	sum := md5.Sum([]byte(strings.TrimSpace(text))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// EscapeComponent percent-encodes s the way browsers encode a URI
// component, leaving only A-Z a-z 0-9 and -_.!~*'() unescaped.
func EscapeComponent(s string) string {
	escaped := url.QueryEscape(s)
	return componentFixups.Replace(escaped)
}

var componentFixups = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%2A", "*",
	"%27", "'",
	"%28", "(",
	"%29", ")",
)
