// Package remote is the multi-tenant progress store shared by every device of
// an authenticated user.
//
// Three tables hold the records: user_notes (one row per user and task, with
// completion folded into note_content by schema.EncodeNote),
// onboarding_profiles (one row per user) and guide_progress (one row per user
// and guide). Every statement is scoped by user_id. Writes are single
// INSERT ... ON CONFLICT DO UPDATE upserts that refresh updated_at, so
// concurrent writers resolve last-write-wins.
//
// Every failure is returned wrapped in schema.ErrRemoteUnavailable so the
// caller can decide to fall back. A missing row is not an error.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blogpad/launchpad/internal/progress/schema"
)

// DefaultTimeout bounds each remote call.
const DefaultTimeout = 10 * time.Second

// Config selects and tunes the backend.
type Config struct {
	// Driver is one of Drivers(): "postgres", "sqlite", or "libsql" in
	// builds tagged libsql.
	Driver string
	DSN    string
	// Timeout bounds each call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Store is the remote progress store.
type Store struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
	logger  *zap.Logger
}

// Open connects to the configured backend. The schema is not created; call
// EnsureSchema for that. When the backend cannot be reached Open returns the
// store together with an error wrapping schema.ErrRemoteUnavailable; the
// caller may keep the store and run degraded.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("remote dsn is required for driver %q", cfg.Driver)
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote store: %w", err)
	}

	s := newStore(db, d, cfg.Timeout, logger)

	pingCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		// the pool reconnects on later calls, so the store stays usable
		return s, fmt.Errorf("%w: ping: %w", schema.ErrRemoteUnavailable, err)
	}

	for _, stmt := range d.setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	return s, nil
}

func newStore(db *sql.DB, d dialect, timeout time.Duration, logger *zap.Logger) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: d, timeout: timeout, logger: logger}
}

// Driver returns the dialect name in use.
func (s *Store) Driver() string {
	return s.dialect.name
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close remote store: %w", err)
	}
	return nil
}

// EnsureSchema creates the progress tables if they do not exist. It is
// idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	for _, stmt := range s.dialect.ddl() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return unavailable("ensure schema", err)
		}
	}
	return nil
}

// LoadNotes returns every task note of the user. A user without notes gets an
// empty set.
func (s *Store) LoadNotes(ctx context.Context, userID string) (schema.NoteSet, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		s.dialect.rebind(`SELECT task_id, note_content FROM user_notes WHERE user_id = ?`), userID)
	if err != nil {
		return nil, unavailable("load notes", err)
	}
	defer rows.Close()

	notes := make(schema.NoteSet)
	for rows.Next() {
		var taskID, content string
		if err := rows.Scan(&taskID, &content); err != nil {
			return nil, unavailable("scan note", err)
		}
		notes[taskID] = schema.DecodeNote(content)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("load notes", err)
	}
	return notes, nil
}

// UpsertNote writes one task note.
func (s *Store) UpsertNote(ctx context.Context, userID, taskID string, rec schema.NoteRecord) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	q := `
	INSERT INTO user_notes (user_id, task_id, note_content, updated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (user_id, task_id) DO UPDATE SET
		note_content = excluded.note_content,
		updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(q), userID, taskID, schema.EncodeNote(rec)); err != nil {
		return unavailable("upsert note", err)
	}
	return nil
}

// DeleteNotes removes every task note of the user.
func (s *Store) DeleteNotes(ctx context.Context, userID string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM user_notes WHERE user_id = ?`), userID); err != nil {
		return unavailable("delete notes", err)
	}
	return nil
}

// LoadOnboarding returns the user's onboarding profile, or nil if none was
// ever saved.
func (s *Store) LoadOnboarding(ctx context.Context, userID string) (*schema.OnboardingRecord, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	q := fmt.Sprintf(`SELECT %s FROM onboarding_profiles WHERE user_id = ?`,
		strings.Join(schema.OnboardingFields, ", "))

	var rec schema.OnboardingRecord
	dest := make([]any, len(schema.OnboardingFields))
	for i, name := range schema.OnboardingFields {
		dest[i] = rec.Field(name)
	}

	err := s.db.QueryRowContext(ctx, s.dialect.rebind(q), userID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("load onboarding", err)
	}
	return &rec, nil
}

// UpsertOnboarding merges the answered fields of patch into the user's
// profile, creating it on first save. Unanswered fields keep their stored
// value.
func (s *Store) UpsertOnboarding(ctx context.Context, userID string, patch schema.OnboardingRecord) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %w", schema.ErrValidationFailed, err)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	fields := schema.OnboardingFields
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(fields)), ", ")
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%[1]s = COALESCE(excluded.%[1]s, onboarding_profiles.%[1]s)", f)
	}

	q := fmt.Sprintf(`
	INSERT INTO onboarding_profiles (user_id, %s, updated_at)
	VALUES (?, %s, CURRENT_TIMESTAMP)
	ON CONFLICT (user_id) DO UPDATE SET
		%s,
		updated_at = CURRENT_TIMESTAMP`,
		strings.Join(fields, ", "), placeholders, strings.Join(sets, ",\n\t\t"))

	args := make([]any, 0, len(fields)+1)
	args = append(args, userID)
	for _, f := range fields {
		args = append(args, *patch.Field(f))
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(q), args...); err != nil {
		return unavailable("upsert onboarding", err)
	}
	return nil
}

// DeleteOnboarding removes the user's onboarding profile.
func (s *Store) DeleteOnboarding(ctx context.Context, userID string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM onboarding_profiles WHERE user_id = ?`), userID); err != nil {
		return unavailable("delete onboarding", err)
	}
	return nil
}

// LoadGuide returns the user's progress through a guide, or nil if none was
// ever saved.
func (s *Store) LoadGuide(ctx context.Context, userID, guideID string) (*schema.GuideProgress, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	var responses, unlocked string
	err := s.db.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT responses, unlocked_sections FROM guide_progress WHERE user_id = ? AND guide_id = ?`),
		userID, guideID).Scan(&responses, &unlocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("load guide", err)
	}

	p := schema.NewGuideProgress()
	if err := json.Unmarshal([]byte(responses), &p.Responses); err != nil {
		return nil, unavailable("decode guide responses", fmt.Errorf("%w: %w", schema.ErrSerialization, err))
	}
	if err := json.Unmarshal([]byte(unlocked), &p.UnlockedSections); err != nil {
		return nil, unavailable("decode unlocked sections", fmt.Errorf("%w: %w", schema.ErrSerialization, err))
	}
	if p.Responses == nil {
		p.Responses = map[string]string{}
	}
	return &p, nil
}

// UpsertGuide writes the full progress of one guide.
func (s *Store) UpsertGuide(ctx context.Context, userID, guideID string, p schema.GuideProgress) error {
	responses := p.Responses
	if responses == nil {
		responses = map[string]string{}
	}
	respJSON, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("%w: %w", schema.ErrSerialization, err)
	}
	unlockedJSON, err := json.Marshal(p.UnlockedSections)
	if err != nil {
		return fmt.Errorf("%w: %w", schema.ErrSerialization, err)
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	q := `
	INSERT INTO guide_progress (user_id, guide_id, responses, unlocked_sections, updated_at)
	VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT (user_id, guide_id) DO UPDATE SET
		responses = excluded.responses,
		unlocked_sections = excluded.unlocked_sections,
		updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, s.dialect.rebind(q), userID, guideID, string(respJSON), string(unlockedJSON)); err != nil {
		return unavailable("upsert guide", err)
	}
	return nil
}

// DeleteGuide removes the user's progress through a guide.
func (s *Store) DeleteGuide(ctx context.Context, userID, guideID string) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		s.dialect.rebind(`DELETE FROM guide_progress WHERE user_id = ? AND guide_id = ?`), userID, guideID); err != nil {
		return unavailable("delete guide", err)
	}
	return nil
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", schema.ErrRemoteUnavailable, op, err)
}
