package timerange

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

var cnDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9, '十': 10,
}

var enNumbers = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "a": 1, "an": 1,
}

// ParseNumeral resolves a count token: ASCII digits, a single Chinese numeral
// (零 through 十), a compound around 十 such as 十二, 二十 or 三十五, or an
// English number word. The text before the first 十 and the text between it
// and the next 十 must each be one numeral from the same table; anything
// after a second 十 is ignored, so 十十 is 10 and 零十 is 0.
func ParseNumeral(token string) (int, bool) {
	s := strings.TrimSpace(token)
	if s == "" {
		return 0, false
	}
	if isASCIIDigits(s) {
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	if n, ok := enNumbers[strings.ToLower(s)]; ok {
		return n, true
	}
	if utf8.RuneCountInString(s) == 1 {
		n, ok := cnDigits[[]rune(s)[0]]
		return n, ok
	}

	parts := strings.Split(s, "十")
	if len(parts) < 2 {
		return 0, false
	}
	tens := 1
	if left := strings.TrimSpace(parts[0]); left != "" {
		d, ok := numeral(left)
		if !ok {
			return 0, false
		}
		tens = d
	}
	ones := 0
	if right := strings.TrimSpace(parts[1]); right != "" {
		d, ok := numeral(right)
		if !ok {
			return 0, false
		}
		ones = d
	}
	return tens*10 + ones, true
}

// numeral resolves one Chinese numeral character.
func numeral(s string) (int, bool) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, false
	}
	n, ok := cnDigits[[]rune(s)[0]]
	return n, ok
}

func isASCIIDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
