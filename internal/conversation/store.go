package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boganlabs/bogan/internal/log"
)

// DB is the subset of pgxpool.Pool the store needs. Defined here so
// tests can substitute a transaction or a mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// Store persists sessions, turns, profiles, findings, and diagnoses.
// Safe for concurrent use.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a Store.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// CreateSession creates a new interview session in the given language.
func (s *Store) CreateSession(ctx context.Context, title, language string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx,
		`INSERT INTO sessions (title, language)
		 VALUES ($1, $2)
		 RETURNING id, title, language, completed, assessment, assessment_citations, created_at`,
		title, language,
	).Scan(&sess.ID, &sess.Title, &sess.Language, &sess.Completed,
		&sess.Assessment, &citationsScanner{&sess.AssessmentCitations}, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &sess, nil
}

// Session fetches a session by ID.
func (s *Store) Session(ctx context.Context, id uuid.UUID) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx,
		`SELECT id, title, language, completed, assessment, assessment_citations, created_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Title, &sess.Language, &sess.Completed,
		&sess.Assessment, &citationsScanner{&sess.AssessmentCitations}, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, limit, offset int32) ([]*Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, language, completed, assessment, assessment_citations, created_at
		 FROM sessions ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Language, &sess.Completed,
			&sess.Assessment, &citationsScanner{&sess.AssessmentCitations}, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// MarkCompleted flips the session's terminal flag.
func (s *Store) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE sessions SET completed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking session completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetAssessment stores the synthesized assessment and its citations.
func (s *Store) SetAssessment(ctx context.Context, id uuid.UUID, assessment string, citations []Citation) error {
	data, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("encoding citations: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE sessions SET assessment = $2, assessment_citations = $3 WHERE id = $1`,
		id, assessment, data)
	if err != nil {
		return fmt.Errorf("storing assessment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendTurns appends turns to a session with monotonically increasing
// sequence numbers. The session row is locked for the duration of the
// transaction so concurrent appends cannot collide on sequence numbers.
func (s *Store) AppendTurns(ctx context.Context, sessionID uuid.UUID, turns []*Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	// Lock the session row to serialize sequence number assignment.
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("locking session: %w", err)
	}

	var maxSeq int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM turns WHERE session_id = $1`,
		sessionID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading max sequence number: %w", err)
	}

	for i, turn := range turns {
		content, err := json.Marshal(turn.Blocks)
		if err != nil {
			return fmt.Errorf("encoding turn content at index %d: %w", i, err)
		}
		seq := maxSeq + int64(i) + 1
		err = tx.QueryRow(ctx,
			`INSERT INTO turns (session_id, role, content, original_content, original_language, sequence_number)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at`,
			sessionID, turn.Role, content, turn.OriginalContent, turn.OriginalLanguage, seq,
		).Scan(&turn.ID, &turn.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting turn %d: %w", i, err)
		}
		turn.SessionID = sessionID
		turn.SequenceNumber = seq
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("appended turns", "session_id", sessionID, "count", len(turns))
	return nil
}

// Turns returns all turns of a session in sequence order.
func (s *Store) Turns(ctx context.Context, sessionID uuid.UUID) ([]*Turn, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, role, content, original_content, original_language, sequence_number, created_at
		 FROM turns WHERE session_id = $1 ORDER BY sequence_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetching turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var (
			turn    Turn
			content []byte
		)
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Role, &content,
			&turn.OriginalContent, &turn.OriginalLanguage, &turn.SequenceNumber, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal(content, &turn.Blocks); err != nil {
			return nil, fmt.Errorf("decoding turn content: %w", err)
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

// LastAssistantTurn returns the most recent assistant turn, or nil if
// the session has none.
func (s *Store) LastAssistantTurn(ctx context.Context, sessionID uuid.UUID) (*Turn, error) {
	var (
		turn    Turn
		content []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, session_id, role, content, original_content, original_language, sequence_number, created_at
		 FROM turns WHERE session_id = $1 AND role = 'assistant'
		 ORDER BY sequence_number DESC LIMIT 1`, sessionID,
	).Scan(&turn.ID, &turn.SessionID, &turn.Role, &content,
		&turn.OriginalContent, &turn.OriginalLanguage, &turn.SequenceNumber, &turn.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching last assistant turn: %w", err)
	}
	if err := json.Unmarshal(content, &turn.Blocks); err != nil {
		return nil, fmt.Errorf("decoding turn content: %w", err)
	}
	return &turn, nil
}

// CreateProfile stores the session's demographics. Returns
// ErrProfileExists if demographics were already collected.
func (s *Store) CreateProfile(ctx context.Context, p *Profile) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO profiles (session_id, age, biological_sex)
		 VALUES ($1, $2, $3) RETURNING created_at`,
		p.SessionID, p.Age, p.BiologicalSex,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return ErrProfileExists
			case pgerrcode.ForeignKeyViolation:
				return ErrSessionNotFound
			}
		}
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// Profile fetches the session's demographics.
func (s *Store) Profile(ctx context.Context, sessionID uuid.UUID) (*Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx,
		`SELECT session_id, age, biological_sex, created_at FROM profiles WHERE session_id = $1`,
		sessionID,
	).Scan(&p.SessionID, &p.Age, &p.BiologicalSex, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return &p, nil
}

// AddFindings inserts extracted findings for a session.
func (s *Store) AddFindings(ctx context.Context, sessionID uuid.UUID, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	for i := range findings {
		f := &findings[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO findings (session_id, category, value)
			 VALUES ($1, $2, $3) RETURNING id, created_at`,
			sessionID, f.Category, f.Value,
		).Scan(&f.ID, &f.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting finding %d: %w", i, err)
		}
		f.SessionID = sessionID
	}
	return tx.Commit(ctx)
}

// Findings returns the session's findings in insertion order.
func (s *Store) Findings(ctx context.Context, sessionID uuid.UUID) ([]Finding, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, category, value, created_at
		 FROM findings WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetching findings: %w", err)
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var f Finding
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Category, &f.Value, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// AddDiagnoses records the ranked differentials for a session. A
// session receives diagnoses exactly once; a second attempt returns
// ErrDiagnosesExist.
func (s *Store) AddDiagnoses(ctx context.Context, sessionID uuid.UUID, diagnoses []Diagnosis) error {
	if len(diagnoses) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM diagnoses WHERE session_id = $1`, sessionID).Scan(&count); err != nil {
		return fmt.Errorf("checking existing diagnoses: %w", err)
	}
	if count > 0 {
		return ErrDiagnosesExist
	}

	for i := range diagnoses {
		d := &diagnoses[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO diagnoses (session_id, condition, confidence, position)
			 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
			sessionID, d.Condition, d.Confidence, i,
		).Scan(&d.ID, &d.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting diagnosis %d: %w", i, err)
		}
		d.SessionID = sessionID
		d.Position = i
	}
	return tx.Commit(ctx)
}

// Diagnoses returns the session's differentials in ranked order.
func (s *Store) Diagnoses(ctx context.Context, sessionID uuid.UUID) ([]Diagnosis, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, condition, confidence, position, created_at
		 FROM diagnoses WHERE session_id = $1 ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetching diagnoses: %w", err)
	}
	defer rows.Close()

	var diagnoses []Diagnosis
	for rows.Next() {
		var d Diagnosis
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Condition, &d.Confidence, &d.Position, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning diagnosis: %w", err)
		}
		diagnoses = append(diagnoses, d)
	}
	return diagnoses, rows.Err()
}

// citationsScanner scans a nullable JSONB citations column.
type citationsScanner struct {
	dest *[]Citation
}

func (c *citationsScanner) Scan(src any) error {
	if src == nil {
		*c.dest = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c.dest)
	case string:
		return json.Unmarshal([]byte(v), c.dest)
	default:
		return fmt.Errorf("unsupported citations type %T", src)
	}
}
