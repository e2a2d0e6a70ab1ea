// Package conversation manages recommendation sessions: message history,
// user feedback and the preference signals extracted from it. Sessions are
// persisted in PostgreSQL so both the API and web processes share them.
package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coursemate/coursemate/internal/ai"
)

// Feedback kinds a user can give on a recommendation.
const (
	FeedbackDissatisfied       = "dissatisfied"
	FeedbackPartiallySatisfied = "partially_satisfied"
	FeedbackSatisfied          = "satisfied"
)

var (
	// ErrSessionNotFound indicates the session ID has no stored session.
	ErrSessionNotFound = errors.New("conversation: session not found")

	// ErrInvalidFeedbackKind indicates an unknown feedback kind.
	ErrInvalidFeedbackKind = errors.New("conversation: invalid feedback kind")
)

// Message is one stored turn of a session.
type Message struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Role      ai.Role   `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Feedback is one stored feedback event.
type Feedback struct {
	ID              uuid.UUID `json:"id"`
	SessionID       uuid.UUID `json:"session_id"`
	Kind            string    `json:"kind"`
	Detail          string    `json:"detail"`
	RejectedCourses []string  `json:"rejected_courses,omitempty"`
	Reasons         []string  `json:"reasons,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Preferences are the sensitivity flags extracted from feedback reasons.
// Stored as JSONB on the session row.
type Preferences struct {
	TimeSensitive       bool `json:"time_sensitive,omitempty"`
	PriceSensitive      bool `json:"price_sensitive,omitempty"`
	DifficultySensitive bool `json:"difficulty_sensitive,omitempty"`
	LocationSensitive   bool `json:"location_sensitive,omitempty"`
	InstructorSensitive bool `json:"instructor_sensitive,omitempty"`
}

// Count returns how many preference flags are set.
func (p Preferences) Count() int {
	n := 0
	for _, set := range []bool{
		p.TimeSensitive, p.PriceSensitive, p.DifficultySensitive,
		p.LocationSensitive, p.InstructorSensitive,
	} {
		if set {
			n++
		}
	}
	return n
}

// Context is the view of a session used to steer retrieval and prompting:
// the most recent messages plus the accumulated feedback signals.
type Context struct {
	Messages        []Message   `json:"messages"`
	Preferences     Preferences `json:"user_preferences"`
	RejectedCourses []string    `json:"rejected_courses"`
	FeedbackCount   int         `json:"feedback_count"`
}

// Stats summarizes one session.
type Stats struct {
	TotalMessages        int       `json:"total_messages"`
	FeedbackCount        int       `json:"feedback_count"`
	RejectedCoursesCount int       `json:"rejected_courses_count"`
	PreferencesCount     int       `json:"preferences_count"`
	CreatedAt            time.Time `json:"created_at"`
}

// validFeedbackKind reports whether kind is one of the known values.
func validFeedbackKind(kind string) bool {
	switch kind {
	case FeedbackDissatisfied, FeedbackPartiallySatisfied, FeedbackSatisfied:
		return true
	}
	return false
}
