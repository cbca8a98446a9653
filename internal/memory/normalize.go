package memory

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var zeroWidthReplacer = strings.NewReplacer("\u200b", "", "\ufeff", "")

var lineEndingReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// repeatable marks are collapsed to at most two in a row.
const repeatableMarks = "!?！？。,.，…"

// Normalize canonicalizes text for both indexing and querying: it strips
// zero-width marks, applies NFKC, unifies line endings, collapses whitespace
// runs to a single space and shortens runs of 3+ identical marks to 2.
//
// Normalize is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	t := zeroWidthReplacer.Replace(text)
	t = norm.NFKC.String(t)
	t = lineEndingReplacer.Replace(t)
	t = strings.Join(strings.Fields(t), " ")
	return collapseRepeatedMarks(t)
}

func collapseRepeatedMarks(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	run := 0
	for _, r := range s {
		if r == prev && strings.ContainsRune(repeatableMarks, r) {
			run++
			if run > 2 {
				continue
			}
		} else {
			prev = r
			run = 1
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	cnPhoneRe = regexp.MustCompile(`\b1[3-9]\d{9}\b`)
	usPhoneRe = regexp.MustCompile(`\b\d{3}[- ]?\d{3}[- ]?\d{4}\b`)
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// MaskPII hides phone numbers and e-mail addresses for display. It never
// touches what is indexed.
func MaskPII(text string) string {
	t := cnPhoneRe.ReplaceAllString(text, "[PHONE]")
	t = usPhoneRe.ReplaceAllString(t, "[PHONE]")
	return emailRe.ReplaceAllString(t, "[EMAIL]")
}
