package assetpath

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var (
	chineseDigits = map[rune]int{
		'零': 0, '〇': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
		'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
	}
	chineseMagnitudes = map[rune]int{'十': 10, '百': 100, '千': 1000}

	asciiDigits    = regexp.MustCompile(`[0-9]+`)
	numeralPattern = `[零〇一二两三四五六七八九十百千]+`
	ordinalUnit    = regexp.MustCompile(`第(` + numeralPattern + `)[单元课章]`)
	anyNumeral     = regexp.MustCompile(numeralPattern)
)

// UnitCode normalizes a unit display name to the code used in asset paths.
//
// Full-width digits are folded first. An ASCII digit run is used as is,
// otherwise a Chinese numeral is parsed ("第二十三单元" is "23"). Names with
// no number at all are returned trimmed.
func UnitCode(name string) string {
	folded := strings.TrimSpace(width.Fold.String(name))

	if d := asciiDigits.FindString(folded); d != "" {
		return d
	}

	numeral := ""
	if m := ordinalUnit.FindStringSubmatch(folded); m != nil {
		numeral = m[1]
	} else {
		numeral = anyNumeral.FindString(folded)
	}
	if n, ok := ParseChineseNumeral(numeral); ok {
		return strconv.Itoa(n)
	}
	return folded
}

// ParseChineseNumeral parses a Chinese numeral such as "十一", "二十三" or
// "一百零五". A leading 十 counts as 10. A run of bare digits ("二〇二四") is
// read positionally.
func ParseChineseNumeral(s string) (int, bool) {
	if s == "" {
		return 0, false
	}

	positional := true
	for _, r := range s {
		if _, ok := chineseMagnitudes[r]; ok {
			positional = false
			break
		}
	}

	total, digit := 0, -1
	for _, r := range s {
		if d, ok := chineseDigits[r]; ok {
			if positional && digit >= 0 {
				total = total*10 + digit
			}
			digit = d
			continue
		}
		mag, ok := chineseMagnitudes[r]
		if !ok {
			return 0, false
		}
		if digit < 0 {
			digit = 1
		}
		total += digit * mag
		digit = -1
	}
	if digit >= 0 {
		if positional {
			total = total*10 + digit
		} else {
			total += digit
		}
	}
	return total, true
}
