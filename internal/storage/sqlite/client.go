package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/notes"
	"github.com/ddx-dashboard/backend/internal/storage/models"
	"github.com/ddx-dashboard/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles(role);

	CREATE TABLE IF NOT EXISTS cases (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		differential_answer_key TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS case_submissions (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('draft', 'submitted', 'resubmitted')),
		diagnoses TEXT NOT NULL DEFAULT '[]',
		feedback TEXT,
		updated_at INTEGER NOT NULL,
		UNIQUE (case_id, user_id),
		FOREIGN KEY (case_id) REFERENCES cases(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_case ON case_submissions(case_id, status);

	CREATE TABLE IF NOT EXISTS case_notes (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_sent_to_instructor INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (case_id) REFERENCES cases(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_notes_case ON case_notes(case_id, is_sent_to_instructor);

	CREATE TABLE IF NOT EXISTS case_sentiments (
		case_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		sentiment TEXT NOT NULL CHECK (sentiment IN ('confident', 'uncertain', 'lost')),
		PRIMARY KEY (case_id, user_id),
		FOREIGN KEY (case_id) REFERENCES cases(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS session_captures (
		case_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		takeaway TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (case_id, user_id),
		FOREIGN KEY (case_id) REFERENCES cases(id) ON DELETE CASCADE
	);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertProfile(ctx context.Context, id, role string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO profiles (id, role, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role
	`, id, role, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (c *Client) UpsertCase(ctx context.Context, cs *models.Case) error {
	key, err := json.Marshal(orEmpty(cs.AnswerKey))
	if err != nil {
		return fmt.Errorf("failed to marshal answer key: %w", err)
	}

	created := cs.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cases (id, title, differential_answer_key, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			differential_answer_key = excluded.differential_answer_key
	`, cs.ID.String(), cs.Title, string(key), created.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert case: %w", err)
	}

	logger.Debug("Case upserted", zap.String("case_id", cs.ID.String()), zap.Int("answer_key_size", len(cs.AnswerKey)))
	return nil
}

func (c *Client) UpsertSubmission(ctx context.Context, sub *models.Submission) error {
	diagnoses, err := json.Marshal(orEmpty(sub.Diagnoses))
	if err != nil {
		return fmt.Errorf("failed to marshal diagnoses: %w", err)
	}

	var feedback sql.NullString
	if sub.Feedback != nil {
		raw, err := json.Marshal(sub.Feedback)
		if err != nil {
			return fmt.Errorf("failed to marshal feedback: %w", err)
		}
		feedback = sql.NullString{String: string(raw), Valid: true}
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	updated := sub.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO case_submissions (id, case_id, user_id, status, diagnoses, feedback, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, user_id) DO UPDATE SET
			status = excluded.status,
			diagnoses = excluded.diagnoses,
			feedback = excluded.feedback,
			updated_at = excluded.updated_at
	`, sub.ID.String(), sub.CaseID.String(), sub.UserID, string(sub.Status), string(diagnoses), feedback, updated.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	return nil
}

func (c *Client) InsertNote(ctx context.Context, n *models.Note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO case_notes (id, case_id, user_id, content, is_sent_to_instructor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.ID.String(), n.CaseID.String(), n.UserID, notes.Content(*n), boolToInt(n.SentToInstructor), created.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

func (c *Client) UpsertSentiment(ctx context.Context, s *models.Sentiment) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO case_sentiments (case_id, user_id, sentiment) VALUES (?, ?, ?)
		ON CONFLICT(case_id, user_id) DO UPDATE SET sentiment = excluded.sentiment
	`, s.CaseID.String(), s.UserID, string(s.Value))
	if err != nil {
		return fmt.Errorf("failed to upsert sentiment: %w", err)
	}
	return nil
}

func (c *Client) UpsertSessionCapture(ctx context.Context, sc *models.SessionCapture) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO session_captures (case_id, user_id, takeaway, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(case_id, user_id) DO UPDATE SET takeaway = excluded.takeaway
	`, sc.CaseID.String(), sc.UserID, sc.Takeaway, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert session capture: %w", err)
	}
	return nil
}

func (c *Client) GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	var (
		cs        models.Case
		rawID     string
		rawKey    string
		createdAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT id, title, differential_answer_key, created_at FROM cases WHERE id = ?`, id.String(),
	).Scan(&rawID, &cs.Title, &rawKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	cs.ID = id
	cs.CreatedAt = time.Unix(createdAt, 0)
	if err := json.Unmarshal([]byte(rawKey), &cs.AnswerKey); err != nil {
		logger.Warn("Unreadable answer key, treating as empty",
			zap.String("case_id", rawID), zap.Error(err))
		cs.AnswerKey = nil
	}
	return &cs, nil
}

// ListSubmissions returns every submission for the case in creation order,
// drafts included.
func (c *Client) ListSubmissions(ctx context.Context, caseID uuid.UUID) ([]models.Submission, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, status, diagnoses, feedback, updated_at
		FROM case_submissions
		WHERE case_id = ?
		ORDER BY rowid
	`, caseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		var (
			s         models.Submission
			rawID     string
			status    string
			diagnoses string
			feedback  sql.NullString
			updatedAt int64
		)
		if err := rows.Scan(&rawID, &s.UserID, &status, &diagnoses, &feedback, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		s.ID, _ = uuid.Parse(rawID)
		s.CaseID = caseID
		s.Status = models.SubmissionStatus(status)
		s.UpdatedAt = time.Unix(updatedAt, 0)
		decodeSubmissionJSON(&s, diagnoses, feedback.String, feedback.Valid)
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return subs, nil
}

func (c *Client) CountStudents(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles WHERE role = 'student'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return n, nil
}

// ListInstructorNotes returns decoded notes flagged for the instructor.
func (c *Client) ListInstructorNotes(ctx context.Context, caseID uuid.UUID) ([]models.Note, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, user_id, content, created_at
		FROM case_notes
		WHERE case_id = ? AND is_sent_to_instructor = 1
		ORDER BY created_at, rowid
	`, caseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		var (
			n         models.Note
			rawID     string
			content   string
			createdAt int64
		)
		if err := rows.Scan(&rawID, &n.UserID, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.ID, _ = uuid.Parse(rawID)
		n.CaseID = caseID
		n.SentToInstructor = true
		n.CreatedAt = time.Unix(createdAt, 0)
		notes.Apply(&n, content)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return out, nil
}

func (c *Client) ListSentiments(ctx context.Context, caseID uuid.UUID) ([]models.Sentiment, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT user_id, sentiment FROM case_sentiments WHERE case_id = ? ORDER BY rowid`, caseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list sentiments: %w", err)
	}
	defer rows.Close()

	var out []models.Sentiment
	for rows.Next() {
		s := models.Sentiment{CaseID: caseID}
		var value string
		if err := rows.Scan(&s.UserID, &value); err != nil {
			return nil, fmt.Errorf("failed to scan sentiment: %w", err)
		}
		s.Value = models.SentimentValue(value)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Client) ListSessionCaptures(ctx context.Context, caseID uuid.UUID) ([]models.SessionCapture, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT user_id, takeaway FROM session_captures WHERE case_id = ? ORDER BY created_at, rowid`, caseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list session captures: %w", err)
	}
	defer rows.Close()

	var out []models.SessionCapture
	for rows.Next() {
		sc := models.SessionCapture{CaseID: caseID}
		if err := rows.Scan(&sc.UserID, &sc.Takeaway); err != nil {
			return nil, fmt.Errorf("failed to scan session capture: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// decodeSubmissionJSON fills diagnoses and feedback. Unreadable JSON degrades
// to an empty differential rather than failing the whole report.
func decodeSubmissionJSON(s *models.Submission, diagnoses, feedback string, hasFeedback bool) {
	if err := json.Unmarshal([]byte(diagnoses), &s.Diagnoses); err != nil {
		logger.Warn("Unreadable submission diagnoses",
			zap.String("submission_id", s.ID.String()), zap.Error(err))
		s.Diagnoses = nil
	}
	if !hasFeedback {
		return
	}
	var fb models.Feedback
	if err := json.Unmarshal([]byte(feedback), &fb); err != nil {
		logger.Warn("Unreadable submission feedback",
			zap.String("submission_id", s.ID.String()), zap.Error(err))
		return
	}
	s.Feedback = &fb
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
