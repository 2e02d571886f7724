package pkg

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Role describes who authored a message.  The triage conversation only has
// two participants: the person describing symptoms and the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Option is one selectable answer of an interactive question.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// OptionsFromLabels numbers plain labels starting at 1 and derives each value
// from the lowercased label with whitespace runs replaced by underscores.
func OptionsFromLabels(labels []string) []Option {
	out := make([]Option, 0, len(labels))
	for i, l := range labels {
		out = append(out, Option{
			ID:    strconv.Itoa(i + 1),
			Label: l,
			Value: whitespaceRun.ReplaceAllString(strings.ToLower(l), "_"),
		})
	}
	return out
}

// Message is one turn of a triage session.  Messages are append-only; the
// only field written after creation is SelectedOption, once the user answers
// an interactive prompt.
type Message struct {
	ID             string    `json:"id"`
	Role           Role      `json:"sender"`
	Text           string    `json:"text,omitempty"`
	Question       string    `json:"question,omitempty"`
	Options        []Option  `json:"options,omitempty"`
	SelectedOption string    `json:"selectedOption,omitempty"`
	SummaryType    string    `json:"summaryType,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	ShowHospitals  bool      `json:"showHospitals,omitempty"`
	Specialty      string    `json:"specialty,omitempty"`
	Specialties    []string  `json:"specialties,omitempty"`
	CreatedAt      time.Time `json:"timestamp"`
}

// IsInteractive reports whether the message poses a question with options.
func (m Message) IsInteractive() bool {
	return m.Question != "" && len(m.Options) > 0
}

// Session is a single triage conversation owned by one authenticated user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy whose message slice can be persisted while the
// original keeps growing.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}

// Question is either a catalog entry or a follow-up produced by the model.
type Question struct {
	Text    string   `json:"question"`
	Options []Option `json:"options"`
	Static  bool     `json:"static,omitempty"`
}

// Answer pairs an asked question with the value the user chose or typed.
type Answer struct {
	Question string `json:"question"`
	Value    string `json:"value"`
}

// Section is one labelled block of a model-generated summary.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Summary is the parsed result of a summarization request.
type Summary struct {
	Raw         string    `json:"raw"`
	Sections    []Section `json:"sections"`
	Specialties []string  `json:"specialties"`
	CreatedAt   time.Time `json:"created_at"`
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HospitalSource records which backend produced a hospital entry.
type HospitalSource string

const (
	SourceDatabase HospitalSource = "database"
	SourcePlaces   HospitalSource = "places"
)

// Hospital is a search result.  It is recomputed per search and never
// persisted.
type Hospital struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Address      string         `json:"address"`
	Phone        string         `json:"phone"`
	Rating       float64        `json:"rating"`
	OpeningHours string         `json:"opening_hours"`
	Specialty    []string       `json:"specialty"`
	Location     *LatLng        `json:"location,omitempty"`
	Distance     string         `json:"distance"`
	Source       HospitalSource `json:"source"`
}

// HospitalRecord is a row of the hospitals table.  Coordinates may be stored
// as separate columns, as a POINT(lng lat) text, or both.
type HospitalRecord struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone"`
	Rating       float64  `json:"rating"`
	Specialty    []string `json:"specialty"`
	OpeningHours string   `json:"opening_hours"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Point        string   `json:"location,omitempty"`
}

// NewHospital is the payload for adding a hospital to the store.
type NewHospital struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Phone        string   `json:"phone"`
	Specialty    []string `json:"specialty"`
	OpeningHours string   `json:"opening_hours"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Rating       float64  `json:"rating,omitempty"`
}

// MessageRequest carries free text typed by the user.
type MessageRequest struct {
	Text string `json:"text"`
}

// AnswerRequest selects an option of the open question by id or value.
type AnswerRequest struct {
	Option string `json:"option"`
}

// MessagesResponse lists the messages appended by one request.
type MessagesResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// FlashRequest asks for a one-shot assessment.
type FlashRequest struct {
	Text string `json:"text"`
}

// HospitalsResponse is the result of a hospital search.
type HospitalsResponse struct {
	Specialty string     `json:"specialty,omitempty"`
	Hospitals []Hospital `json:"hospitals"`
}

// KeysRequest replaces the API key pool.
type KeysRequest struct {
	Keys []string `json:"keys"`
}

// KeysStatus reports the pool without revealing keys.
type KeysStatus struct {
	Count int `json:"count"`
	Index int `json:"index"`
}
