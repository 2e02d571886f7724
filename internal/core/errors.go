package core

import "errors"

var (
	// ErrNoSections means the model answered without any recognisable
	// section markers.
	ErrNoSections = errors.New("summary has no sections")
	// ErrSessionNotFound is returned for unknown session ids and for sessions
	// owned by another user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionUnavailable is returned when the session store could not be
	// read.  Nothing is cached, so a later call retries the store.
	ErrSessionUnavailable = errors.New("session store unavailable")
	// ErrConversationComplete is returned when input arrives after the
	// assessment was produced.
	ErrConversationComplete = errors.New("conversation already summarized")
	// ErrNoPendingQuestion is returned when an option is chosen while no
	// interactive question is open.
	ErrNoPendingQuestion = errors.New("no question awaiting an answer")
	// ErrUnknownOption is returned when the chosen option is not offered by
	// the pending question.
	ErrUnknownOption = errors.New("option not offered by the current question")
)
