package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coursemate/coursemate/internal/ai"
	"github.com/coursemate/coursemate/internal/log"
)

// contextMessageLimit caps how much history feeds back into prompting.
const contextMessageLimit = 10

// Querier is the database surface Store needs; *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists sessions, messages and feedback. Safe for concurrent use.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(db Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Create starts a new session and returns its ID.
func (s *Store) Create(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx, `INSERT INTO sessions (id) VALUES ($1)`, id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Debug("session created", "session_id", id)
	return id, nil
}

// ensure creates the session row if it does not exist yet. Messages may
// arrive with a caller-chosen session ID before Create was ever called.
func (s *Store) ensure(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return fmt.Errorf("ensuring session %s: %w", id, err)
	}
	return nil
}

// AddMessage appends a message to the session, creating the session row
// on first use.
func (s *Store) AddMessage(ctx context.Context, sessionID uuid.UUID, role ai.Role, content string) error {
	if err := s.ensure(ctx, sessionID); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (session_id, role, content) VALUES ($1, $2, $3)`,
		sessionID, string(role), content)
	if err != nil {
		return fmt.Errorf("adding message to session %s: %w", sessionID, err)
	}
	_, err = s.db.Exec(ctx, `UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("touching session %s: %w", sessionID, err)
	}
	return nil
}

// AddFeedback records a feedback event and folds its reasons into the
// session's preference flags. Returns ErrSessionNotFound for unknown
// sessions and ErrInvalidFeedbackKind for unknown kinds.
func (s *Store) AddFeedback(ctx context.Context, sessionID uuid.UUID, kind, detail string, rejectedCourses, reasons []string) error {
	if !validFeedbackKind(kind) {
		return fmt.Errorf("%w: %q", ErrInvalidFeedbackKind, kind)
	}

	prefs, err := s.preferences(ctx, sessionID)
	if err != nil {
		return err
	}

	if rejectedCourses == nil {
		rejectedCourses = []string{}
	}
	if reasons == nil {
		reasons = []string{}
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO feedback (session_id, kind, detail, rejected_courses, reasons)
		VALUES ($1, $2, $3, $4, $5)`,
		sessionID, kind, detail, rejectedCourses, reasons)
	if err != nil {
		return fmt.Errorf("adding feedback to session %s: %w", sessionID, err)
	}

	updated := applyReasons(prefs, reasons)
	if updated != prefs {
		prefsJSON, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encoding preferences: %w", err)
		}
		_, err = s.db.Exec(ctx, `
			UPDATE sessions SET preferences = $1, updated_at = now() WHERE id = $2`,
			prefsJSON, sessionID)
		if err != nil {
			return fmt.Errorf("updating preferences for session %s: %w", sessionID, err)
		}
	}

	s.logger.Debug("feedback recorded",
		"session_id", sessionID, "kind", kind, "rejected", len(rejectedCourses))
	return nil
}

func (s *Store) preferences(ctx context.Context, sessionID uuid.UUID) (Preferences, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT preferences FROM sessions WHERE id = $1`, sessionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("reading session %s: %w", sessionID, err)
	}

	var prefs Preferences
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return Preferences{}, fmt.Errorf("decoding preferences for session %s: %w", sessionID, err)
		}
	}
	return prefs, nil
}

// Context assembles the session view used for prompting: the last ten
// messages in chronological order, preference flags and the union of
// rejected course IDs.
func (s *Store) Context(ctx context.Context, sessionID uuid.UUID) (Context, error) {
	prefs, err := s.preferences(ctx, sessionID)
	if err != nil {
		return Context{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM messages WHERE session_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		sessionID, contextMessageLimit)
	if err != nil {
		return Context{}, fmt.Errorf("reading messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return Context{}, fmt.Errorf("reading messages for session %s: %w", sessionID, err)
		}
		m.Role = ai.Role(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return Context{}, fmt.Errorf("reading messages for session %s: %w", sessionID, err)
	}
	slices.Reverse(messages)

	var rejected []string
	var feedbackCount int
	err = s.db.QueryRow(ctx, `
		SELECT coalesce(array_agg(DISTINCT c) FILTER (WHERE c IS NOT NULL), '{}'), count(DISTINCT f.id)
		FROM feedback f
		LEFT JOIN LATERAL unnest(f.rejected_courses) AS c ON true
		WHERE f.session_id = $1`,
		sessionID).Scan(&rejected, &feedbackCount)
	if err != nil {
		return Context{}, fmt.Errorf("reading feedback for session %s: %w", sessionID, err)
	}

	return Context{
		Messages:        messages,
		Preferences:     prefs,
		RejectedCourses: rejected,
		FeedbackCount:   feedbackCount,
	}, nil
}

// ShouldAskFollowup reports whether the assistant should ask clarifying
// questions: true when the latest feedback was anything short of
// satisfied, false when there is no feedback at all.
func (s *Store) ShouldAskFollowup(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	var kind string
	err := s.db.QueryRow(ctx, `
		SELECT kind FROM feedback WHERE session_id = $1
		ORDER BY created_at DESC LIMIT 1`,
		sessionID).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading latest feedback for session %s: %w", sessionID, err)
	}
	return kind == FeedbackDissatisfied || kind == FeedbackPartiallySatisfied, nil
}

// SessionStats summarizes a session's activity.
func (s *Store) SessionStats(ctx context.Context, sessionID uuid.UUID) (Stats, error) {
	var stats Stats
	var prefsRaw []byte
	err := s.db.QueryRow(ctx, `
		SELECT s.created_at,
		       s.preferences,
		       (SELECT count(*) FROM messages m WHERE m.session_id = s.id),
		       (SELECT count(*) FROM feedback f WHERE f.session_id = s.id),
		       (SELECT count(DISTINCT c) FROM feedback f, unnest(f.rejected_courses) AS c
		        WHERE f.session_id = s.id)
		FROM sessions s WHERE s.id = $1`,
		sessionID).Scan(&stats.CreatedAt, &prefsRaw,
		&stats.TotalMessages, &stats.FeedbackCount, &stats.RejectedCoursesCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stats{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Stats{}, fmt.Errorf("reading stats for session %s: %w", sessionID, err)
	}

	var prefs Preferences
	if len(prefsRaw) > 0 {
		if err := json.Unmarshal(prefsRaw, &prefs); err != nil {
			return Stats{}, fmt.Errorf("decoding preferences for session %s: %w", sessionID, err)
		}
	}
	stats.PreferencesCount = prefs.Count()
	return stats, nil
}

// Delete removes a session and, via cascade, its messages and feedback.
func (s *Store) Delete(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// Sessions lists all session IDs, newest first.
func (s *Store) Sessions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return ids, nil
}
