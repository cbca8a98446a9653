package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinTextLen is the rune length under which a filler message is dropped.
const MinTextLen = 4

var fillerWords = map[string]struct{}{
	"嗯": {}, "好的": {}, "哈哈": {}, "ok": {}, "OK": {}, "好": {},
	"收到": {}, "行": {}, "可以": {}, "没问题": {}, "thanks": {}, "thx": {},
}

const punctOnlyChars = "😂🤣….,!?，。！？"

// infoDenseRe matches amounts, dates, clock times, hashtags and mentions.
// A message containing any of them is kept even when it is short.
var infoDenseRe = regexp.MustCompile(
	`\d{1,4}(\.\d+)?\s*(万|w|k|K|元|块|美元|\$|¥)` +
		`|\d{4}[-/]\d{1,2}[-/]\d{1,2}` +
		`|\d{1,2}:\d{2}` +
		`|[#@][\p{L}\p{N}_]+`)

// IsNoise reports whether a message carries no retrievable information.
// text is expected to be normalized already.
func IsNoise(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if isPunctOnly(t) {
		return true
	}
	if infoDenseRe.MatchString(t) {
		return false
	}
	// Short texts survive unless they are filler; longer ones are dropped
	// only on an exact filler match.
	_, filler := fillerWords[t]
	if utf8.RuneCountInString(t) < MinTextLen && !filler {
		return false
	}
	return filler
}

func isPunctOnly(t string) bool {
	for _, r := range t {
		if r == ' ' {
			continue
		}
		if !strings.ContainsRune(punctOnlyChars, r) {
			return false
		}
	}
	return true
}
