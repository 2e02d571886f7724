package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"symptom-triage/internal/metrics"
	"symptom-triage/pkg"
)

// ErrEmptyMessage is returned for blank user input.
var ErrEmptyMessage = errors.New("message is empty")

// SessionStore persists sessions.  Lookups return nil, nil when nothing
// matches.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*pkg.Session, error)
	LatestSession(ctx context.Context, userID string) (*pkg.Session, error)
	SaveSession(ctx context.Context, s *pkg.Session) error
}

// QuestionSource generates follow-up questions.  Gateway implements it.
type QuestionSource interface {
	GenerateFollowUpQuestion(ctx context.Context, req FollowUpRequest) (*pkg.Question, error)
}

// HospitalFinder looks up hospitals for a specialty around a location.
type HospitalFinder interface {
	Search(ctx context.Context, loc pkg.LatLng, specialty string, radiusMeters float64) []pkg.Hospital
}

type conversation struct {
	mu      sync.Mutex
	session *pkg.Session
	flow    *Flow
}

// ChatService runs triage conversations.  Each session is processed by one
// request at a time; different sessions proceed in parallel.
type ChatService struct {
	store      SessionStore
	questions  QuestionSource
	summarizer *Summarizer
	hospitals  HospitalFinder
	saver      *Debouncer
	catalog    []pkg.Question
	cfg        FlowConfig
	log        *zap.Logger
	onSaved    func(sessionID string)
	now        func() time.Time

	mu    sync.Mutex
	convs map[string]*conversation
}

// ChatOption customises a ChatService.
type ChatOption func(*ChatService)

// WithSaveDebounce sets the quiet period before a session is written.
func WithSaveDebounce(d time.Duration) ChatOption {
	return func(s *ChatService) { s.saver = NewDebouncer(d) }
}

// WithSavedHook registers fn to run after every successful save.
func WithSavedHook(fn func(sessionID string)) ChatOption {
	return func(s *ChatService) { s.onSaved = fn }
}

// WithHospitalFinder enables hospital lookups for summarized sessions.
func WithHospitalFinder(f HospitalFinder) ChatOption {
	return func(s *ChatService) { s.hospitals = f }
}

// WithCatalog replaces the static question catalog.
func WithCatalog(c []pkg.Question) ChatOption {
	return func(s *ChatService) { s.catalog = c }
}

// NewChatService wires the conversation engine.  A nil store keeps sessions
// in memory only.
func NewChatService(store SessionStore, questions QuestionSource, summarizer *Summarizer, cfg FlowConfig, log *zap.Logger, opts ...ChatOption) *ChatService {
	if store == nil {
		store = NewMemorySessionStore()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &ChatService{
		store:      store,
		questions:  questions,
		summarizer: summarizer,
		saver:      NewDebouncer(time.Second),
		catalog:    StaticCatalog(),
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		convs:      make(map[string]*conversation),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *ChatService) newSession(id, userID string) *pkg.Session {
	now := s.now()
	return &pkg.Session{
		ID:        id,
		UserID:    userID,
		Stage:     string(StageStatic),
		CreatedAt: now,
		UpdatedAt: now,
		Messages: []pkg.Message{{
			ID:        uuid.NewString(),
			Role:      pkg.RoleAssistant,
			Text:      Greeting,
			CreatedAt: now,
		}},
	}
}

// Create starts a new session for userID with the greeting message.
func (s *ChatService) Create(ctx context.Context, userID string) (*pkg.Session, error) {
	conv := &conversation{
		session: s.newSession(uuid.NewString(), userID),
		flow:    NewFlow(s.cfg, s.catalog),
	}
	s.mu.Lock()
	s.convs[conv.session.ID] = conv
	s.mu.Unlock()

	snapshot := conv.session.Clone()
	s.save(ctx, snapshot)
	return snapshot, nil
}

// Latest returns the user's most recent session, starting a new one when the
// user has none or it cannot be read.
func (s *ChatService) Latest(ctx context.Context, userID string) (*pkg.Session, error) {
	stored, err := s.store.LatestSession(ctx, userID)
	if err != nil {
		s.log.Error("load latest session", zap.String("user", userID), zap.Error(err))
	}
	if stored == nil {
		return s.Create(ctx, userID)
	}
	return s.Load(ctx, userID, stored.ID)
}

// Load returns the current state of a session.
func (s *ChatService) Load(ctx context.Context, userID, id string) (*pkg.Session, error) {
	conv, err := s.conversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.session.Clone(), nil
}

func (s *ChatService) conversation(ctx context.Context, userID, id string) (*conversation, error) {
	s.mu.Lock()
	conv, ok := s.convs[id]
	s.mu.Unlock()
	if ok {
		if conv.session.UserID != userID {
			return nil, ErrSessionNotFound
		}
		return conv, nil
	}

	stored, err := s.store.GetSession(ctx, id)
	switch {
	case err != nil:
		s.log.Error("load session", zap.String("session", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	case stored == nil:
		return nil, ErrSessionNotFound
	case stored.UserID != userID:
		return nil, ErrSessionNotFound
	}
	conv = &conversation{
		session: stored,
		flow:    RestoreFlow(s.cfg, s.catalog, Stage(stored.Stage), stored.Messages),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.convs[id]; ok {
		return existing, nil
	}
	s.convs[id] = conv
	return conv, nil
}

// Snapshot reads the persisted copy of a session, bypassing the in-process
// cache, so saves made by other processes are visible.
func (s *ChatService) Snapshot(ctx context.Context, userID, id string) (*pkg.Session, error) {
	stored, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return stored, nil
}

// SendMessage handles free text.  While a question is open the text is taken
// as a custom answer to it.  The returned slice holds every message appended
// by this call.
func (s *ChatService) SendMessage(ctx context.Context, userID, id, text string) ([]pkg.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	conv, err := s.conversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.flow.Summarized() {
		return nil, ErrConversationComplete
	}

	start := len(conv.session.Messages)
	s.appendMessage(conv, pkg.Message{Role: pkg.RoleUser, Text: text})

	var step Step
	if conv.flow.Pending() != nil {
		markSelected(conv.session, text)
		step = conv.flow.Answer(text)
	} else {
		step = conv.flow.Begin(text)
	}
	s.run(ctx, conv, step)
	return s.commit(conv, start), nil
}

// SelectOption answers the open question with one of its options, matched by
// id or value.
func (s *ChatService) SelectOption(ctx context.Context, userID, id, option string) ([]pkg.Message, error) {
	conv, err := s.conversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.flow.Summarized() {
		return nil, ErrConversationComplete
	}
	pending := conv.flow.Pending()
	if pending == nil {
		return nil, ErrNoPendingQuestion
	}
	var chosen *pkg.Option
	for i := range pending.Options {
		if pending.Options[i].ID == option || pending.Options[i].Value == option {
			chosen = &pending.Options[i]
			break
		}
	}
	if chosen == nil {
		return nil, ErrUnknownOption
	}

	start := len(conv.session.Messages)
	s.appendMessage(conv, pkg.Message{Role: pkg.RoleUser, Text: chosen.Label})
	markSelected(conv.session, chosen.Value)
	s.run(ctx, conv, conv.flow.Answer(chosen.Value))
	return s.commit(conv, start), nil
}

// run carries out flow effects until the flow waits for the user again.
func (s *ChatService) run(ctx context.Context, conv *conversation, step Step) {
	log := s.log.With(zap.String("session", conv.session.ID))
	for {
		switch step.Effect {
		case EffectAsk:
			metrics.FlowTransitions.WithLabelValues(string(conv.flow.Stage())).Inc()
			s.appendMessage(conv, pkg.Message{
				Role:     pkg.RoleAssistant,
				Question: step.Question.Text,
				Options:  step.Question.Options,
			})
			return

		case EffectRequestQuestion:
			if step.Duplicate {
				metrics.DuplicateQuestions.Inc()
				log.Debug("generated question rejected as duplicate")
			}
			q, err := s.questions.GenerateFollowUpQuestion(ctx, conv.flow.FollowUpRequest())
			if err != nil {
				log.Warn("follow-up generation failed, summarizing", zap.Error(err))
				q = nil
			}
			step = conv.flow.Offer(q)

		case EffectSummarize:
			metrics.FlowTransitions.WithLabelValues(string(StageSummary)).Inc()
			s.summarize(ctx, conv, log)
			return

		default:
			return
		}
	}
}

func (s *ChatService) summarize(ctx context.Context, conv *conversation, log *zap.Logger) {
	summary, err := s.summarizer.Summarize(ctx, conv.flow.Complaint(), conv.flow.Answers())
	if err != nil {
		log.Error("summarize session", zap.Error(err))
		s.appendMessage(conv, pkg.Message{Role: pkg.RoleAssistant, Text: Apology(err)})
		return
	}
	for _, sec := range summary.Sections {
		s.appendMessage(conv, pkg.Message{
			Role:        pkg.RoleAssistant,
			SummaryType: sec.Name,
			Summary:     sec.Content,
		})
	}
	s.appendMessage(conv, pkg.Message{
		Role:          pkg.RoleAssistant,
		Text:          HospitalPrompt,
		ShowHospitals: true,
		Specialty:     SpecialtyName(summary.Specialties[0]),
		Specialties:   summary.Specialties,
	})
}

func (s *ChatService) appendMessage(conv *conversation, m pkg.Message) {
	m.ID = uuid.NewString()
	m.CreatedAt = s.now()
	conv.session.Messages = append(conv.session.Messages, m)
}

// markSelected attaches value to the most recent unanswered question.
func markSelected(sess *pkg.Session, value string) {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		m := &sess.Messages[i]
		if m.IsInteractive() && m.SelectedOption == "" {
			m.SelectedOption = value
			return
		}
	}
}

// commit schedules a save and returns the messages appended since start.
func (s *ChatService) commit(conv *conversation, start int) []pkg.Message {
	conv.session.Stage = string(conv.flow.Stage())
	conv.session.UpdatedAt = s.now()
	snapshot := conv.session.Clone()
	s.saver.Schedule(snapshot.ID, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.save(ctx, snapshot)
	})

	out := make([]pkg.Message, len(conv.session.Messages)-start)
	copy(out, conv.session.Messages[start:])
	return out
}

func (s *ChatService) save(ctx context.Context, sess *pkg.Session) {
	if err := s.store.SaveSession(ctx, sess); err != nil {
		metrics.SessionSaves.WithLabelValues("error").Inc()
		s.log.Error("save session", zap.String("session", sess.ID), zap.Error(err))
		return
	}
	metrics.SessionSaves.WithLabelValues("ok").Inc()
	if s.onSaved != nil {
		s.onSaved(sess.ID)
	}
}

// Flush writes every session with a pending save.
func (s *ChatService) Flush() {
	s.saver.Flush()
}

// Hospitals finds hospitals for the specialty recommended in the session's
// assessment.  Before an assessment exists no specialty filter is applied.
func (s *ChatService) Hospitals(ctx context.Context, userID, id string, loc pkg.LatLng, radiusMeters float64) ([]pkg.Hospital, error) {
	conv, err := s.conversation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if s.hospitals == nil {
		return []pkg.Hospital{}, nil
	}
	conv.mu.Lock()
	specialty := ""
	for i := len(conv.session.Messages) - 1; i >= 0; i-- {
		if m := conv.session.Messages[i]; m.ShowHospitals {
			specialty = m.Specialty
			break
		}
	}
	conv.mu.Unlock()
	return s.hospitals.Search(ctx, loc, specialty, radiusMeters), nil
}

// Flash produces a one-shot assessment without an interview.
func (s *ChatService) Flash(ctx context.Context, text string) (*pkg.Summary, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	return s.summarizer.Flash(ctx, text)
}
