package convmatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var convs = []Conversation{
	{ConvID: "c1", Title: "客户A - 合同与报价", Participants: []string{"张三", "李四"}},
	{ConvID: "c2", Title: "产品评审 – Q3 roadmap", Participants: []string{"alice", "bob"}},
	{ConvID: "c3", Title: "", Participants: []string{"王五"}},
}

func TestFind(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		convID  string
		rule    string
		reason  string
		outcome Outcome
	}{
		{"title keyword", "客户A那边的报价怎么说", "c1", RuleTitleKeyword, "title keyword: 客户A", OutcomeMatched},
		{"en dash separator", "产品评审的结论", "c2", RuleTitleKeyword, "title keyword: 产品评审", OutcomeMatched},
		{"han fragment", "合同与报价进展如何", "c1", RuleTitleFragment, "title fragment: 合同与报价", OutcomeMatched},
		{"word fragment", "roadmap 有更新吗", "c2", RuleTitleFragment, "title fragment: roadmap", OutcomeMatched},
		{"participant word", "bob 提了什么", "c2", RuleParticipant, "participant: bob", OutcomeMatched},
		{"participant han", "王五 说了什么", "c3", RuleParticipant, "participant: 王五", OutcomeMatched},
		{"participant glued to text", "王五说了什么", "", "", ReasonUnrecognized, OutcomeNone},
		{"cue without match", "和赵六聊的那次", "", "", ReasonUnrecognized, OutcomeUnrecognized},
		{"group cue", "那个群里定了什么", "", "", ReasonUnrecognized, OutcomeUnrecognized},
		{"english cue", "what did we decide in the chat", "", "", ReasonUnrecognized, OutcomeUnrecognized},
		{"mention", "@carol said what", "", "", ReasonUnrecognized, OutcomeUnrecognized},
		{"no cue", "预算是多少", "", "", ReasonUnrecognized, OutcomeNone},
		{"blank", "   ", "", "", ReasonUnrecognized, OutcomeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Find(tt.query, convs)
			assert.Equal(t, tt.outcome, m.Outcome)
			assert.Equal(t, tt.convID, m.ConvID)
			assert.Equal(t, tt.rule, m.Rule)
			assert.Equal(t, tt.reason, m.Reason)
		})
	}
}

func TestFind_RulePriorityAcrossConversations(t *testing.T) {
	// c1 has a matching fragment and comes first, but c2's keyword wins
	// because keyword matching runs over every conversation first.
	m := Find("产品评审里的合同与报价", convs)
	require.Equal(t, OutcomeMatched, m.Outcome)
	assert.Equal(t, "c2", m.ConvID)
	assert.Equal(t, RuleTitleKeyword, m.Rule)
}

func TestFind_FirstConversationWinsWithinRule(t *testing.T) {
	dup := []Conversation{
		{ConvID: "x", Title: "周会"},
		{ConvID: "y", Title: "周会 - 第二季度"},
	}
	m := Find("周会上说了啥", dup)
	assert.Equal(t, "x", m.ConvID)
}

func TestFind_NoConversations(t *testing.T) {
	m := Find("客户A", nil)
	assert.Equal(t, OutcomeNone, m.Outcome)
	assert.Empty(t, m.ConvID)
}

func TestMatch_JSON(t *testing.T) {
	b, err := json.Marshal(Find("bob 提了什么", convs))
	require.NoError(t, err)
	assert.JSONEq(t, `{"conv_id":"c2","reason":"participant: bob","rule":"participant","outcome":"matched"}`, string(b))
}
