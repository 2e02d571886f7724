package core

// prompts.go holds every piece of fixed text the assistant sends or asks the
// model with.  Keeping it apart from the flow makes wording changes safe.

import (
	"errors"
	"fmt"
	"strings"

	"symptom-triage/internal/llm"
	"symptom-triage/pkg"
)

const (
	// Greeting opens every new session and asks for the main complaint.
	Greeting = "Hello! I'm your virtual medical assistant. I'll help you assess your symptoms and point you to the right kind of care. What symptoms are you experiencing?"

	// HospitalPrompt accompanies the hospital lookup message.
	HospitalPrompt = "Here are hospitals near you that can help with this."

	// CompleteMessage is returned when a user writes into a finished session.
	CompleteMessage = "This assessment is complete. Please start a new session to describe new symptoms."

	fallbackQuestionText = "Can you provide more details about your symptoms?"
)

var fallbackOptionLabels = []string{"Yes", "No", "Not sure", "Need to clarify"}

// FallbackQuestion is asked when the model's reply cannot be used.
func FallbackQuestion() *pkg.Question {
	return &pkg.Question{Text: fallbackQuestionText, Options: pkg.OptionsFromLabels(fallbackOptionLabels)}
}

// StaticCatalog returns the fixed questions asked before any generated ones.
func StaticCatalog() []pkg.Question {
	return []pkg.Question{
		{
			Text:   "How long have you had these symptoms?",
			Static: true,
			Options: []pkg.Option{
				{ID: "1", Label: "Less than 24 hours", Value: "less_than_24h"},
				{ID: "2", Label: "1-3 days", Value: "1_3_days"},
				{ID: "3", Label: "4-7 days", Value: "4_7_days"},
				{ID: "4", Label: "More than a week", Value: "more_than_week"},
			},
		},
		{
			Text:   "How severe are your symptoms?",
			Static: true,
			Options: []pkg.Option{
				{ID: "1", Label: "Mild", Value: "mild"},
				{ID: "2", Label: "Moderate", Value: "moderate"},
				{ID: "3", Label: "Severe", Value: "severe"},
			},
		},
		{
			Text:   "What event or situation might have caused these symptoms?",
			Static: true,
			Options: []pkg.Option{
				{ID: "1", Label: "Recent illness or infection", Value: "recent_illness"},
				{ID: "2", Label: "Missed regular medication", Value: "missed_medication"},
				{ID: "3", Label: "Smoking or alcohol habit", Value: "smoking_alcohol_habit"},
				{ID: "4", Label: "Food and diet changes", Value: "food_diet_changes"},
			},
		},
		{
			Text:   "Do you have any previous medical history?",
			Static: true,
			Options: []pkg.Option{
				{ID: "1", Label: "Hypertension", Value: "hypertension"},
				{ID: "2", Label: "Diabetes", Value: "diabetes"},
				{ID: "3", Label: "Thyroid disease", Value: "thyroid_disease"},
				{ID: "4", Label: "Lung diseases", Value: "lung_diseases"},
				{ID: "5", Label: "Asthma", Value: "asthma"},
				{ID: "6", Label: "No significant history", Value: "none"},
			},
		},
	}
}

const sectionFormat = `**SUMMARY OF CASE:**
[%s]
**URGENCY LEVEL:**
[%s]
**RECOMMENDED SPECIALTY:**
[%s]
**FIRST AID RECOMMENDATIONS:**
[%s]
**ADDITIONAL INVESTIGATIONS NEEDED:**
[%s]
Use exactly these headings, in this order, written with double asterisks and a trailing colon. Do not rename, add or number sections.`

// SummaryPrompt asks for the five-section assessment of a finished interview.
func SummaryPrompt(complaint string, answers []pkg.Answer) string {
	var b strings.Builder
	b.WriteString("You are an experienced medical professional trained in emergency medicine and first aid. ")
	b.WriteString("Using the patient's main complaint and every answer below, write a clear and concise assessment in this format:\n")
	b.WriteString(fmt.Sprintf(sectionFormat,
		"Open with the main complaint. Summarize duration, severity and relevant history, then the most likely condition in plain words.",
		"High, Medium or Low, the main reason for it, and one warning sign that needs immediate care.",
		"Only the specialties relevant to this complaint. Prefer General Medicine or Emergency Medicine when unsure.",
		"Two or three first aid steps following WHO or Red Cross guidance, including when to call emergency services.",
		"Two or three key tests and what each would show.",
	))
	b.WriteString("\n\nPatient Details:\n")
	b.WriteString("Main complaint: " + complaint + "\n")
	for _, a := range answers {
		b.WriteString(a.Question + ": " + a.Value + "\n")
	}
	return b.String()
}

// FlashPrompt asks for the same assessment from one emergency description,
// without any interview.
func FlashPrompt(text string) string {
	var b strings.Builder
	b.WriteString("You are an experienced emergency medical professional. The user is in a hurry and described their emergency in one message. ")
	b.WriteString("Do not ask follow-up questions. Respond immediately in this format:\n")
	b.WriteString(fmt.Sprintf(sectionFormat,
		"The main complaint and the likely diagnosis.",
		"High, Medium or Low and the main reason.",
		"The single most relevant specialty.",
		"Two or three critical first aid steps.",
		"Two or three important tests.",
	))
	b.WriteString("\n\nEmergency description: " + text)
	return b.String()
}

// FollowUpRequest is everything the model needs to pick the next question.
type FollowUpRequest struct {
	Complaint    string
	Answers      []pkg.Answer
	Asked        []string
	MaxQuestions int
}

// FollowUpPrompt asks for one new question or the ENOUGH_INFO marker.
func FollowUpPrompt(req FollowUpRequest) string {
	remaining := req.MaxQuestions - len(req.Asked)
	if remaining < 0 {
		remaining = 0
	}
	var b strings.Builder
	b.WriteString("You are an experienced medical professional interviewing a patient. Your goal is to gather enough information for an evaluation and to decide which medical specialty fits best.\n\n")
	b.WriteString("GUIDELINES:\n")
	b.WriteString("- Ask ONE short, relevant follow-up question based on the symptoms and answers so far\n")
	b.WriteString("- Use plain language without medical jargon\n")
	b.WriteString("- Never repeat or rephrase a previous question\n")
	b.WriteString("- Offer 3 or 4 clear answer options\n")
	b.WriteString("- Focus on severity, timing and related factors that change the diagnosis\n")
	b.WriteString("- If you already have enough information, respond with ENOUGH_INFO\n\n")
	b.WriteString("Assessment status:\n")
	fmt.Fprintf(&b, "- Questions asked so far: %d/%d\n", len(req.Asked), req.MaxQuestions)
	fmt.Fprintf(&b, "- Remaining questions available: %d\n", remaining)
	fmt.Fprintf(&b, "- Main complaint: %s\n\n", req.Complaint)
	b.WriteString("Previous responses:\n")
	for _, a := range req.Answers {
		b.WriteString(a.Question + ": " + a.Value + "\n")
	}
	b.WriteString("\nPrevious questions (do not repeat or rephrase):\n")
	b.WriteString(strings.Join(req.Asked, "; "))
	b.WriteString("\n\nIf the information is sufficient, respond with exactly: ENOUGH_INFO\n")
	b.WriteString("Otherwise respond exactly like this:\nQuestion: [your question]\n1. [first option]\n2. [second option]\n3. [third option]\n4. [fourth option]")
	return b.String()
}

// Apology turns a generation failure into text the user can act on.
func Apology(err error) string {
	var se *llm.StatusError
	switch {
	case errors.Is(err, ErrNoSections):
		return "I'm sorry, I couldn't put together a structured assessment this time. Please try again."
	case errors.Is(err, llm.ErrPoolExhausted):
		return "I'm sorry, the AI service has reached its usage limit. Please try again in a few minutes."
	case errors.Is(err, llm.ErrEmptyPool):
		return "The AI service is not configured yet. Please ask an administrator to add API keys."
	case errors.As(err, &se):
		switch se.Code {
		case 400:
			return "I'm sorry, there was a problem with the request format. Please try again."
		case 401:
			return "I'm sorry, the AI service rejected our credentials. Please check the API key configuration."
		case 403:
			return "I'm sorry, access to the AI service is currently restricted. Please try again later."
		}
		return "I'm sorry, the AI service returned an error. Please try again."
	}
	return "I'm having trouble reaching the AI service. Please check your connection and try again."
}
