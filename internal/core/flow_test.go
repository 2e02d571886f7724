package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-triage/pkg"
)

var distinctQuestions = []string{
	"Do you have a fever?",
	"Is there any vomiting?",
	"Any chest tightness today?",
	"Have you traveled recently abroad?",
	"Does light bother your eyes?",
	"Are you taking painkillers currently?",
	"Did anyone at home get sick?",
}

func newQuestion(text string) *pkg.Question {
	return &pkg.Question{Text: text, Options: pkg.OptionsFromLabels([]string{"Yes", "No"})}
}

func answerStatic(t *testing.T, f *Flow) Step {
	t.Helper()
	var step Step
	for i, c := range StaticCatalog() {
		require.NotNil(t, f.Pending(), "catalog question %d should be pending", i)
		assert.Equal(t, c.Text, f.Pending().Text)
		step = f.Answer(c.Options[0].Value)
	}
	return step
}

func TestFlowStaticThenDynamic(t *testing.T) {
	f := NewFlow(DefaultFlowConfig(), StaticCatalog())
	assert.Equal(t, StageStatic, f.Stage())

	step := f.Begin("I have a headache")
	require.Equal(t, EffectAsk, step.Effect)
	assert.Equal(t, "How long have you had these symptoms?", step.Question.Text)
	assert.Equal(t, "I have a headache", f.Complaint())

	step = answerStatic(t, f)
	assert.Equal(t, EffectRequestQuestion, step.Effect)
	assert.Equal(t, StageDynamic, f.Stage())
	assert.Len(t, f.Answers(), 4)
	assert.Equal(t, "less_than_24h", f.Answers()[0].Value)

	req := f.FollowUpRequest()
	assert.Equal(t, "I have a headache", req.Complaint)
	assert.Len(t, req.Asked, 4)
	assert.Equal(t, 10, req.MaxQuestions)
}

func TestFlowSufficiencyEndsInterview(t *testing.T) {
	f := NewFlow(DefaultFlowConfig(), StaticCatalog())
	f.Begin("fever")
	answerStatic(t, f)

	step := f.Offer(nil)
	assert.Equal(t, EffectSummarize, step.Effect)
	assert.Equal(t, StageSummary, f.Stage())

	assert.Equal(t, EffectNone, f.Offer(newQuestion("Another?")).Effect)
	assert.Equal(t, EffectNone, f.Begin("more text").Effect)
	assert.Equal(t, EffectNone, f.Answer("x").Effect)
}

func TestFlowDuplicateRetriesForceSummary(t *testing.T) {
	f := NewFlow(DefaultFlowConfig(), StaticCatalog())
	f.Begin("fever")
	answerStatic(t, f)

	dup := newQuestion("How severe are your symptoms?")
	for i := 0; i < 4; i++ {
		step := f.Offer(dup)
		assert.Equal(t, EffectRequestQuestion, step.Effect)
		assert.True(t, step.Duplicate)
	}
	assert.Equal(t, EffectSummarize, f.Offer(dup).Effect)
	assert.Len(t, f.Asked(), 4)
}

func TestFlowDuplicateCounterResetsAfterAcceptedQuestion(t *testing.T) {
	f := NewFlow(DefaultFlowConfig(), StaticCatalog())
	f.Begin("fever")
	answerStatic(t, f)

	dup := newQuestion("How severe are your symptoms?")
	for i := 0; i < 4; i++ {
		f.Offer(dup)
	}
	require.Equal(t, EffectAsk, f.Offer(newQuestion(distinctQuestions[0])).Effect)
	require.Equal(t, EffectRequestQuestion, f.Answer("yes").Effect)

	step := f.Offer(dup)
	assert.Equal(t, EffectRequestQuestion, step.Effect)
	assert.Equal(t, StageDynamic, f.Stage())
}

func TestFlowQuestionCap(t *testing.T) {
	f := NewFlow(DefaultFlowConfig(), StaticCatalog())
	f.Begin("fever")
	step := answerStatic(t, f)

	for i := 0; i < 6; i++ {
		require.Equal(t, EffectRequestQuestion, step.Effect)
		require.Equal(t, EffectAsk, f.Offer(newQuestion(distinctQuestions[i])).Effect)
		step = f.Answer("yes")
	}
	assert.Equal(t, EffectSummarize, step.Effect)
	assert.Len(t, f.Asked(), 10)
	assert.Len(t, f.Answers(), 10)
}

func TestFlowCapBelowCatalogSize(t *testing.T) {
	f := NewFlow(FlowConfig{MaxQuestions: 2, MaxDuplicateRetries: 5}, StaticCatalog())
	f.Begin("rash")
	f.Answer("mild")
	step := f.Answer("mild")
	assert.Equal(t, EffectSummarize, step.Effect)
	assert.Len(t, f.Asked(), 2)
}

func TestFlowExtraFreeTextIsKept(t *testing.T) {
	g := NewFlow(DefaultFlowConfig(), nil)
	step := g.Begin("cough")
	assert.Equal(t, EffectRequestQuestion, step.Effect)
	g.Begin("worse at night")
	g.Begin("and dry")
	answers := g.Answers()
	require.Len(t, answers, 1)
	assert.Equal(t, pkg.Answer{Question: "Additional details", Value: "worse at night; and dry"}, answers[0])
}

func TestFlowAnswerWithoutPendingIsIgnored(t *testing.T) {
	f := NewFlow(DefaultFlowConfig(), StaticCatalog())
	assert.Equal(t, EffectNone, f.Answer("mild").Effect)
	assert.Empty(t, f.Answers())
}

func interactive(question, selected string) pkg.Message {
	return pkg.Message{
		Role:           pkg.RoleAssistant,
		Question:       question,
		Options:        pkg.OptionsFromLabels([]string{"Yes", "No"}),
		SelectedOption: selected,
	}
}

func TestRestoreFlowMidStatic(t *testing.T) {
	catalog := StaticCatalog()
	msgs := []pkg.Message{
		{Role: pkg.RoleAssistant, Text: Greeting},
		{Role: pkg.RoleUser, Text: "stomach ache"},
		interactive(catalog[0].Text, "1_3_days"),
		{Role: pkg.RoleUser, Text: "1-3 days"},
		interactive(catalog[1].Text, ""),
	}
	f := RestoreFlow(DefaultFlowConfig(), catalog, StageStatic, msgs)

	assert.Equal(t, StageStatic, f.Stage())
	assert.Equal(t, "stomach ache", f.Complaint())
	require.NotNil(t, f.Pending())
	assert.Equal(t, catalog[1].Text, f.Pending().Text)

	step := f.Answer("severe")
	require.Equal(t, EffectAsk, step.Effect)
	assert.Equal(t, catalog[2].Text, step.Question.Text)
	assert.Equal(t, []pkg.Answer{
		{Question: catalog[0].Text, Value: "1_3_days"},
		{Question: catalog[1].Text, Value: "severe"},
	}, f.Answers())
}

func TestRestoreFlowSkipsAlreadyAskedCatalogQuestions(t *testing.T) {
	catalog := StaticCatalog()
	msgs := []pkg.Message{
		{Role: pkg.RoleUser, Text: "back pain"},
		interactive(catalog[1].Text, "mild"),
		{Role: pkg.RoleUser, Text: "Mild"},
	}
	f := RestoreFlow(DefaultFlowConfig(), catalog, StageStatic, msgs)
	require.Equal(t, StageStatic, f.Stage())

	step := f.Begin("still hurts")
	require.Equal(t, EffectAsk, step.Effect)
	assert.Equal(t, catalog[0].Text, step.Question.Text)

	step = f.Answer("4_7_days")
	require.Equal(t, EffectAsk, step.Effect)
	assert.Equal(t, catalog[2].Text, step.Question.Text)
}

func TestRestoreFlowDynamicAndSummary(t *testing.T) {
	catalog := StaticCatalog()
	msgs := []pkg.Message{
		{Role: pkg.RoleUser, Text: "fever"},
		interactive(catalog[0].Text, "mild"),
		interactive("Do you have chills?", ""),
	}
	f := RestoreFlow(DefaultFlowConfig(), catalog, StageStatic, msgs)
	assert.Equal(t, StageDynamic, f.Stage())
	require.NotNil(t, f.Pending())
	assert.Equal(t, EffectRequestQuestion, f.Answer("yes").Effect)

	msgs = append(msgs, pkg.Message{Role: pkg.RoleAssistant, SummaryType: "URGENCY LEVEL", Summary: "Low"})
	f = RestoreFlow(DefaultFlowConfig(), catalog, StageStatic, msgs)
	assert.Equal(t, StageSummary, f.Stage())
	assert.True(t, f.Summarized())
	assert.Equal(t, EffectNone, f.Begin("hello").Effect)
}

func TestRestoreFlowSummaryStageStaysClosed(t *testing.T) {
	catalog := StaticCatalog()
	msgs := []pkg.Message{
		{Role: pkg.RoleAssistant, Text: Greeting},
		{Role: pkg.RoleUser, Text: "fever"},
		interactive(catalog[0].Text, "mild"),
		{Role: pkg.RoleUser, Text: "Mild"},
		{Role: pkg.RoleAssistant, Text: Apology(ErrNoSections)},
	}
	f := RestoreFlow(DefaultFlowConfig(), catalog, StageSummary, msgs)
	assert.Equal(t, StageSummary, f.Stage())
	assert.True(t, f.Summarized())
	assert.Nil(t, f.Pending())
	assert.Equal(t, EffectNone, f.Begin("still feverish").Effect)
}

func TestRestoreFlowKeepsAdditionalDetails(t *testing.T) {
	msgs := []pkg.Message{
		{Role: pkg.RoleAssistant, Text: Greeting},
		{Role: pkg.RoleUser, Text: "cough"},
		{Role: pkg.RoleUser, Text: "worse at night"},
		interactive("Do you have chills?", "yes"),
		{Role: pkg.RoleUser, Text: "Yes"},
		{Role: pkg.RoleUser, Text: "and dry"},
	}
	f := RestoreFlow(DefaultFlowConfig(), nil, StageDynamic, msgs)
	assert.Equal(t, "cough", f.Complaint())
	assert.Equal(t, []pkg.Answer{
		{Question: "Additional details", Value: "worse at night; and dry"},
		{Question: "Do you have chills?", Value: "yes"},
	}, f.Answers())
}
