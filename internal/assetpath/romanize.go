package assetpath

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

// Romanizer converts a Chinese character to a tone-less romanization.
// An empty result means the character could not be romanized.
type Romanizer interface {
	Romanize(s string) string
}

// RomanizerFunc adapts a function to the Romanizer interface.
type RomanizerFunc func(string) string

// Romanize calls f(s).
func (f RomanizerFunc) Romanize(s string) string { return f(s) }

// PinyinRomanizer romanizes with pinyin, dropping tones. Runs of non-Han
// characters are kept together as written.
type PinyinRomanizer struct {
	args pinyin.Args
}

// NewPinyinRomanizer returns a Romanizer backed by go-pinyin.
func NewPinyinRomanizer() *PinyinRomanizer {
	args := pinyin.NewArgs()
	args.Style = pinyin.Normal
	return &PinyinRomanizer{args: args}
}

// Romanize implements Romanizer.
func (p *PinyinRomanizer) Romanize(s string) string {
	var b strings.Builder
	var plain []rune
	flush := func() {
		b.WriteString(string(plain))
		plain = plain[:0]
	}
	for _, r := range s {
		if !unicode.Is(unicode.Han, r) {
			plain = append(plain, r)
			continue
		}
		flush()
		syllables := pinyin.SinglePinyin(r, p.args)
		if len(syllables) == 0 {
			b.WriteRune(r)
			continue
		}
		b.WriteString(syllables[0])
	}
	flush()
	return normalizeRomanization(b.String())
}

// normalizeRomanization strips whitespace and spells ü as v, which keeps
// the result safe for object keys.
func normalizeRomanization(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.ReplaceAll(s, "ü", "v")
}
