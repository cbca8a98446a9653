// Package convmatch resolves which conversation a question is about from
// titles and participant names mentioned in it.
package convmatch

import (
	"regexp"
	"strings"
)

// Conversation is the metadata the matcher needs about one conversation.
type Conversation struct {
	ConvID       string
	Title        string
	Participants []string
}

// Outcome tells apart "no conversation mentioned" from "a conversation seems
// to be mentioned but none matched".
type Outcome int

const (
	// OutcomeNone means the query carries no conversation cue.
	OutcomeNone Outcome = iota
	// OutcomeMatched means a rule identified the conversation.
	OutcomeMatched
	// OutcomeUnrecognized means the query mentions a conversation or a
	// person that no rule could resolve.
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

// Rule names reported in Match.Rule.
const (
	RuleTitleKeyword  = "title_keyword"
	RuleTitleFragment = "title_fragment"
	RuleParticipant   = "participant"
)

// ReasonUnrecognized is the reason given when nothing matched.
const ReasonUnrecognized = "unrecognized"

// Match is the matcher's verdict. ConvID is empty unless Outcome is
// OutcomeMatched.
type Match struct {
	ConvID  string  `json:"conv_id,omitempty"`
	Reason  string  `json:"reason"`
	Rule    string  `json:"rule,omitempty"`
	Outcome Outcome `json:"outcome"`
}

// titleSeparators split a title into its primary keyword and a subtitle,
// e.g. "客户A - 合同与报价".
var titleSeparators = []string{" - ", " – ", " — "}

var (
	titleHanRe   = regexp.MustCompile(`\p{Han}{2,6}`)
	titleWordRe  = regexp.MustCompile(`[A-Za-z0-9_]{2,20}`)
	queryTokenRe = regexp.MustCompile(`[A-Za-z0-9_]+|\p{Han}{1,6}`)
)

// mentionCueRe flags queries that point at a conversation or person.
var mentionCueRe = regexp.MustCompile(
	`@\S+|群|会话|聊天|对话|私聊|和\p{Han}{1,4}(?:聊|说)|跟\p{Han}{1,4}(?:聊|说)` +
		`|(?i)\b(?:chat|group|conversation|thread|channel|dm)\b|(?i)\bwith\s+\w+`)

// Find returns the first conversation the query refers to. Rules are tried in
// priority order, each across all conversations in the given order:
//
//  1. the title's primary keyword (before " - ") appears in the query;
//  2. a short Han or word fragment of the title appears in the query;
//  3. a participant name equals one of the query's tokens.
func Find(query string, convs []Conversation) Match {
	q := strings.TrimSpace(query)
	if q == "" {
		return Match{Reason: ReasonUnrecognized, Outcome: OutcomeNone}
	}

	for _, c := range convs {
		key := primaryKeyword(c.Title)
		if key != "" && strings.Contains(q, key) {
			return matched(c.ConvID, RuleTitleKeyword, "title keyword: "+key)
		}
	}

	for _, c := range convs {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			continue
		}
		fragments := append(titleHanRe.FindAllString(title, -1), titleWordRe.FindAllString(title, -1)...)
		for _, frag := range fragments {
			if strings.Contains(q, frag) {
				return matched(c.ConvID, RuleTitleFragment, "title fragment: "+frag)
			}
		}
	}

	tokens := make(map[string]struct{})
	for _, tok := range queryTokenRe.FindAllString(q, -1) {
		tokens[tok] = struct{}{}
	}
	for _, c := range convs {
		for _, p := range c.Participants {
			p = strings.TrimSpace(p)
			if _, ok := tokens[p]; ok && p != "" {
				return matched(c.ConvID, RuleParticipant, "participant: "+p)
			}
		}
	}

	if mentionCueRe.MatchString(q) {
		return Match{Reason: ReasonUnrecognized, Outcome: OutcomeUnrecognized}
	}
	return Match{Reason: ReasonUnrecognized, Outcome: OutcomeNone}
}

func primaryKeyword(title string) string {
	key := title
	for _, sep := range titleSeparators {
		if before, _, ok := strings.Cut(key, sep); ok {
			key = before
		}
	}
	return strings.TrimSpace(key)
}

func matched(convID, rule, reason string) Match {
	return Match{ConvID: convID, Reason: reason, Rule: rule, Outcome: OutcomeMatched}
}
