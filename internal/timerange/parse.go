// Package timerange infers a concrete time window from relative date phrases
// in a question, e.g. 三天前, 最近一周, yesterday, last month.
package timerange

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Outcome tells apart "no date phrase present" from "a date phrase was
// present but not understood". Both leave the range unbounded.
type Outcome int

const (
	// OutcomeNone means the text carries no temporal cue.
	OutcomeNone Outcome = iota
	// OutcomeMatched means a rule resolved the range.
	OutcomeMatched
	// OutcomeUnrecognized means a temporal cue is present but no rule
	// resolved it.
	OutcomeUnrecognized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeUnrecognized:
		return "unrecognized"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Rule names reported in Result.Rule.
const (
	RuleDaysAgo            = "days_ago"
	RuleRecentDays         = "recent_days"
	RuleRecentWeeks        = "recent_weeks"
	RuleHoursAgo           = "hours_ago"
	RuleYesterday          = "yesterday"
	RuleDayBeforeYesterday = "day_before_yesterday"
	RuleLastWeek           = "last_week"
	RuleThisWeek           = "this_week"
	RuleThisMonth          = "this_month"
	RuleLastMonth          = "last_month"
)

// Result is the outcome of Parse. Start and End are nil unless Outcome is
// OutcomeMatched.
type Result struct {
	Start   *time.Time `json:"start,omitempty"`
	End     *time.Time `json:"end,omitempty"`
	Outcome Outcome    `json:"outcome"`
	Rule    string     `json:"rule,omitempty"`
	Phrase  string     `json:"phrase,omitempty"`
}

// Bounded reports whether the result constrains time at all.
func (r Result) Bounded() bool {
	return r.Start != nil || r.End != nil
}

const (
	cnNum = `[零一二两三四五六七八九十\d]+`
	enNum = `(?:\d+|zero|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|an?)`
)

type rule struct {
	name string
	re   *regexp.Regexp
	// resolve receives the first non-empty capture group (the count, for
	// counted rules) and returns the range.
	resolve func(count string, now time.Time) (time.Time, time.Time, bool)
}

// rules are evaluated in order; the first whose pattern matches and resolves
// wins. A pattern that matches but fails to resolve moves on to the next rule.
var rules = []rule{
	{
		name: RuleDaysAgo,
		re: regexp.MustCompile(`(` + cnNum + `)\s*天\s*(?:以前|前)` +
			`|(` + cnNum + `)\s*日\s*前` +
			`|\b(` + enNum + `)\s+days?\s+ago\b`),
		resolve: func(count string, now time.Time) (time.Time, time.Time, bool) {
			n, ok := ParseNumeral(count)
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			start, end := dayRange(now.AddDate(0, 0, -n))
			return start, end, true
		},
	},
	{
		name: RuleRecentDays,
		re: regexp.MustCompile(`(?:最近|近)\s*(` + cnNum + `)\s*天` +
			`|(` + cnNum + `)\s*天\s*内` +
			`|\b(?:last|past)\s+(` + enNum + `)\s+days?\b` +
			`|\bwithin\s+(?:the\s+)?(?:(?:last|past)\s+)?(` + enNum + `)\s+days?\b`),
		resolve: func(count string, now time.Time) (time.Time, time.Time, bool) {
			n, ok := ParseNumeral(count)
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			return startOfDay(now.AddDate(0, 0, -n)), now, true
		},
	},
	{
		name: RuleRecentWeeks,
		re: regexp.MustCompile(`(?:最近|近)\s*(` + cnNum + `)\s*个?\s*(?:周|星期|礼拜)` +
			`|(` + cnNum + `)\s*个?\s*(?:周|星期|礼拜)\s*内` +
			`|\b(?:last|past)\s+(` + enNum + `)\s+weeks?\b` +
			`|\bwithin\s+(?:the\s+)?(?:(?:last|past)\s+)?(` + enNum + `)\s+weeks?\b`),
		resolve: func(count string, now time.Time) (time.Time, time.Time, bool) {
			n, ok := ParseNumeral(count)
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			return startOfDay(now.AddDate(0, 0, -7*n)), now, true
		},
	},
	{
		name: RuleHoursAgo,
		re:   regexp.MustCompile(`(` + cnNum + `)\s*小\s*时\s*前|\b(` + enNum + `)\s+hours?\s+ago\b`),
		resolve: func(count string, now time.Time) (time.Time, time.Time, bool) {
			n, ok := ParseNumeral(count)
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			return now.Add(-time.Duration(n) * time.Hour), now, true
		},
	},
	{
		name:    RuleYesterday,
		re:      regexp.MustCompile(`昨天|昨日`),
		resolve: daysBack(1),
	},
	{
		name:    RuleDayBeforeYesterday,
		re:      regexp.MustCompile(`前天|\bday before yesterday\b`),
		resolve: daysBack(2),
	},
	{
		name:    RuleYesterday,
		re:      regexp.MustCompile(`\byesterday\b`),
		resolve: daysBack(1),
	},
	{
		name: RuleLastWeek,
		re:   regexp.MustCompile(`上周|\blast week\b`),
		resolve: func(_ string, now time.Time) (time.Time, time.Time, bool) {
			thisMonday := weekStart(now)
			return thisMonday.AddDate(0, 0, -7), thisMonday.Add(-time.Second), true
		},
	},
	{
		name: RuleThisWeek,
		re:   regexp.MustCompile(`本周|这周|\bthis week\b`),
		resolve: func(_ string, now time.Time) (time.Time, time.Time, bool) {
			return weekStart(now), now, true
		},
	},
	{
		name: RuleThisMonth,
		re:   regexp.MustCompile(`本月|这个月|\bthis month\b`),
		resolve: func(_ string, now time.Time) (time.Time, time.Time, bool) {
			return monthStart(now), now, true
		},
	},
	{
		name: RuleLastMonth,
		re:   regexp.MustCompile(`上个月|\blast month\b`),
		resolve: func(_ string, now time.Time) (time.Time, time.Time, bool) {
			end := monthStart(now).Add(-time.Second)
			return monthStart(end), end, true
		},
	},
}

// temporalCueRe flags text that refers to time somehow, so that a miss can be
// reported as unrecognized rather than absent.
var temporalCueRe = regexp.MustCompile(
	`天前|日前|小时前|分钟前|昨|前天|前几天|那天|今天|今早|今晚|刚才|最近|近期` +
		`|[上下本这]个?(?:周|星期|礼拜|月)|去年|今年|前年|星期|礼拜|周[一二三四五六日天末]` +
		`|\d{1,2}月\d{1,2}[日号]|\d{4}年` +
		`|\b(?:ago|yesterday|today|tonight|recently|weekend)\b` +
		`|\b(?:last|past|next|this)\s+(?:\w+\s+)?(?:days?|weeks?|months?|years?|night|morning)\b` +
		`|\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

// Parse infers the time window referred to by text, relative to now. Day
// boundaries are taken in now's location and weeks start on Monday.
func Parse(text string, now time.Time) Result {
	t := strings.ToLower(norm.NFKC.String(text))

	for _, r := range rules {
		m := r.re.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		start, end, ok := r.resolve(firstGroup(m), now)
		if !ok {
			continue
		}
		return Result{Start: &start, End: &end, Outcome: OutcomeMatched, Rule: r.name, Phrase: m[0]}
	}

	if cue := temporalCueRe.FindString(t); cue != "" {
		return Result{Outcome: OutcomeUnrecognized, Phrase: cue}
	}
	return Result{Outcome: OutcomeNone}
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func daysBack(n int) func(string, time.Time) (time.Time, time.Time, bool) {
	return func(_ string, now time.Time) (time.Time, time.Time, bool) {
		start, end := dayRange(now.AddDate(0, 0, -n))
		return start, end, true
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dayRange returns [00:00:00, 23:59:59] of t's calendar day.
func dayRange(t time.Time) (time.Time, time.Time) {
	return startOfDay(t), time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// weekStart returns Monday 00:00 of t's week.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t.AddDate(0, 0, -offset))
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
