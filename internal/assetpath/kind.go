package assetpath

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind is the type of an audio item.
type Kind string

const (
	KindCharacter Kind = "char"
	KindWord      Kind = "word"
	KindSentence  Kind = "sentence"
)

// ParseKind parses the wire name of a kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCharacter, KindWord, KindSentence:
		return k, nil
	case "character":
		return KindCharacter, nil
	}
	return "", fmt.Errorf("unknown item kind %q", s)
}

// InferKind guesses the kind of text recorded under rootChar when the
// caller did not say: the root itself is a character, a multi-rune run
// without spaces is a word and anything else is a sentence.
func InferKind(rootChar, text string) Kind {
	switch {
	case text == rootChar:
		return KindCharacter
	case utf8.RuneCountInString(text) > 1 && !strings.Contains(text, " "):
		return KindWord
	}
	return KindSentence
}

// Label returns the short Chinese label used in listings.
func (k Kind) Label() string {
	switch k {
	case KindCharacter:
		return "字"
	case KindWord:
		return "词"
	case KindSentence:
		return "句"
	}
	return string(k)
}
