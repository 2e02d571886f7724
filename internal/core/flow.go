package core

import "symptom-triage/pkg"

// Stage is the coarse position of a conversation.
type Stage string

const (
	StageStatic  Stage = "static"
	StageDynamic Stage = "dynamic"
	StageSummary Stage = "summary"
)

// Effect tells the caller what to do after a flow step.
type Effect int

const (
	// EffectNone means nothing further happens for this input.
	EffectNone Effect = iota
	// EffectAsk means Step.Question must be posted to the user.
	EffectAsk
	// EffectRequestQuestion means a follow-up must be generated and handed
	// back through Offer.
	EffectRequestQuestion
	// EffectSummarize means the single summarization request must be made.
	EffectSummarize
)

// Step is the outcome of feeding an event into a Flow.
type Step struct {
	Effect   Effect
	Question *pkg.Question
	// Duplicate is set when a generated question was rejected.
	Duplicate bool
}

// FlowConfig bounds the interview.
type FlowConfig struct {
	MaxQuestions        int
	MaxDuplicateRetries int
}

// DefaultFlowConfig allows ten questions and five duplicate rejections.
func DefaultFlowConfig() FlowConfig {
	return FlowConfig{MaxQuestions: 10, MaxDuplicateRetries: 5}
}

const additionalDetails = "Additional details"

// Flow is the interview state machine.  It performs no I/O: every event
// returns a Step describing the side effect the caller must carry out.
// A Flow is not safe for concurrent use.
type Flow struct {
	cfg     FlowConfig
	catalog []pkg.Question

	stage      Stage
	index      int
	asked      []string
	answers    []pkg.Answer
	pending    *pkg.Question
	complaint  string
	rejections int
	summarized bool
}

// NewFlow starts a flow at the first catalog question.
func NewFlow(cfg FlowConfig, catalog []pkg.Question) *Flow {
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = DefaultFlowConfig().MaxQuestions
	}
	if cfg.MaxDuplicateRetries <= 0 {
		cfg.MaxDuplicateRetries = DefaultFlowConfig().MaxDuplicateRetries
	}
	return &Flow{cfg: cfg, catalog: catalog, stage: StageStatic}
}

// Stage reports where the interview is.
func (f *Flow) Stage() Stage {
	return f.stage
}

// Complaint is the first free-text message of the session.
func (f *Flow) Complaint() string {
	return f.complaint
}

// Pending is the question awaiting an answer, if any.
func (f *Flow) Pending() *pkg.Question {
	return f.pending
}

// Summarized reports whether the single summary request has been made.
func (f *Flow) Summarized() bool {
	return f.summarized
}

// Asked returns the verbatim questions posed so far, in order.
func (f *Flow) Asked() []string {
	out := make([]string, len(f.asked))
	copy(out, f.asked)
	return out
}

// Answers returns the recorded answers in the order they were first given.
func (f *Flow) Answers() []pkg.Answer {
	out := make([]pkg.Answer, len(f.answers))
	copy(out, f.answers)
	return out
}

// FollowUpRequest snapshots what the model needs to pick a question.
func (f *Flow) FollowUpRequest() FollowUpRequest {
	return FollowUpRequest{
		Complaint:    f.complaint,
		Answers:      f.Answers(),
		Asked:        f.Asked(),
		MaxQuestions: f.cfg.MaxQuestions,
	}
}

// Begin handles free text typed while no question is open.  The first such
// text becomes the main complaint; later ones are kept as additional detail.
func (f *Flow) Begin(text string) Step {
	if f.stage == StageSummary {
		return Step{}
	}
	if f.complaint == "" {
		f.complaint = text
	} else {
		f.appendDetail(text)
	}
	return f.next()
}

// Answer records value for the open question and moves on.
func (f *Flow) Answer(value string) Step {
	if f.stage == StageSummary || f.pending == nil {
		return Step{}
	}
	f.record(f.pending.Text, value)
	f.pending = nil
	if f.stage == StageStatic {
		f.index++
	}
	return f.next()
}

// Offer hands a generated question back to the flow.  A nil question means
// the model has enough information or the generation failed; both end the
// interview.
func (f *Flow) Offer(q *pkg.Question) Step {
	if f.stage != StageDynamic {
		return Step{}
	}
	if q == nil || q.Text == "" || f.capReached() {
		return f.summarize()
	}
	if AskedBefore(q.Text, f.asked) {
		f.rejections++
		if f.rejections >= f.cfg.MaxDuplicateRetries {
			return f.summarize()
		}
		return Step{Effect: EffectRequestQuestion, Duplicate: true}
	}
	f.ask(q)
	return Step{Effect: EffectAsk, Question: q}
}

func (f *Flow) next() Step {
	if f.stage == StageStatic {
		for f.index < len(f.catalog) && f.askedExactly(f.catalog[f.index].Text) {
			f.index++
		}
		if f.index < len(f.catalog) {
			if f.capReached() {
				return f.summarize()
			}
			q := f.catalog[f.index]
			f.ask(&q)
			return Step{Effect: EffectAsk, Question: &q}
		}
		f.stage = StageDynamic
	}
	if f.capReached() {
		return f.summarize()
	}
	f.rejections = 0
	return Step{Effect: EffectRequestQuestion}
}

func (f *Flow) summarize() Step {
	f.stage = StageSummary
	f.pending = nil
	if f.summarized {
		return Step{}
	}
	f.summarized = true
	return Step{Effect: EffectSummarize}
}

func (f *Flow) capReached() bool {
	return len(f.asked) >= f.cfg.MaxQuestions
}

func (f *Flow) ask(q *pkg.Question) {
	f.asked = append(f.asked, q.Text)
	f.pending = q
}

func (f *Flow) askedExactly(q string) bool {
	n := NormalizeQuestion(q)
	for _, a := range f.asked {
		if NormalizeQuestion(a) == n {
			return true
		}
	}
	return false
}

func (f *Flow) record(question, value string) {
	for i := range f.answers {
		if f.answers[i].Question == question {
			f.answers[i].Value = value
			return
		}
	}
	f.answers = append(f.answers, pkg.Answer{Question: question, Value: value})
}

func (f *Flow) appendDetail(text string) {
	for i := range f.answers {
		if f.answers[i].Question == additionalDetails {
			f.answers[i].Value += "; " + text
			return
		}
	}
	f.answers = append(f.answers, pkg.Answer{Question: additionalDetails, Value: text})
}

// RestoreFlow rebuilds a flow from a persisted stage and message history.
// A session saved in the summary stage stays closed even when its history
// holds no assessment, as after a failed summary.
func RestoreFlow(cfg FlowConfig, catalog []pkg.Question, stage Stage, msgs []pkg.Message) *Flow {
	f := NewFlow(cfg, catalog)
	f.summarized = stage == StageSummary
	sawDynamic := false
	// open is set while the latest question still waits for its user reply.
	open := false

	for _, m := range msgs {
		switch {
		case m.SummaryType != "" || m.ShowHospitals:
			f.summarized = true
		case m.IsInteractive():
			f.asked = append(f.asked, m.Question)
			if m.SelectedOption != "" {
				f.record(m.Question, m.SelectedOption)
			}
			if catalogIndex(catalog, m.Question) < 0 {
				sawDynamic = true
			}
			open = true
		case m.Role == pkg.RoleUser && open:
			open = false
		case m.Role == pkg.RoleUser && f.complaint == "":
			f.complaint = m.Text
		case m.Role == pkg.RoleUser:
			f.appendDetail(m.Text)
		}
	}

	if f.summarized {
		f.stage = StageSummary
		return f
	}

	if n := len(msgs); n > 0 && msgs[n-1].IsInteractive() && msgs[n-1].SelectedOption == "" {
		last := msgs[n-1]
		f.pending = &pkg.Question{Text: last.Question, Options: last.Options}
	}

	if sawDynamic {
		f.stage = StageDynamic
		return f
	}
	if f.pending != nil {
		if i := catalogIndex(catalog, f.pending.Text); i >= 0 {
			f.index = i
			f.pending.Static = true
			return f
		}
	}
	for f.index < len(catalog) && f.askedExactly(catalog[f.index].Text) {
		f.index++
	}
	if f.index >= len(catalog) {
		f.stage = StageDynamic
	}
	return f
}

func catalogIndex(catalog []pkg.Question, q string) int {
	n := NormalizeQuestion(q)
	for i, c := range catalog {
		if NormalizeQuestion(c.Text) == n {
			return i
		}
	}
	return -1
}
