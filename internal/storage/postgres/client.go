package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/notes"
	"github.com/ddx-dashboard/backend/internal/storage/models"
	"github.com/ddx-dashboard/backend/pkg/logger"
)

// Client reads dashboard data from the hosted Postgres schema.
type Client struct {
	pool *pgxpool.Pool
}

func NewClient(ctx context.Context, connString string, maxConns int32) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Postgres client initialized", zap.Int32("max_conns", cfg.MaxConns))
	return &Client{pool: pool}, nil
}

func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS cases (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		differential_answer_key JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS case_submissions (
		id UUID PRIMARY KEY,
		case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('draft', 'submitted', 'resubmitted')),
		diagnoses JSONB NOT NULL DEFAULT '[]',
		feedback JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (case_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS case_notes (
		id UUID PRIMARY KEY,
		case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_sent_to_instructor BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS case_sentiments (
		case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		sentiment TEXT NOT NULL CHECK (sentiment IN ('confident', 'uncertain', 'lost')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (case_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS session_captures (
		case_id UUID NOT NULL REFERENCES cases(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		takeaway TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (case_id, user_id)
	);
	`
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (c *Client) UpsertProfile(ctx context.Context, id, role string) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO profiles (id, role) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role
	`, id, role)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (c *Client) UpsertCase(ctx context.Context, cs *models.Case) error {
	key := cs.AnswerKey
	if key == nil {
		key = []models.AnswerKeyEntry{}
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("failed to marshal answer key: %w", err)
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO cases (id, title, differential_answer_key) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			differential_answer_key = EXCLUDED.differential_answer_key
	`, cs.ID.String(), cs.Title, raw)
	if err != nil {
		return fmt.Errorf("failed to upsert case: %w", err)
	}
	return nil
}

func (c *Client) UpsertSubmission(ctx context.Context, sub *models.Submission) error {
	diagnoses := sub.Diagnoses
	if diagnoses == nil {
		diagnoses = []models.DiagnosisEntry{}
	}
	rawDiagnoses, err := json.Marshal(diagnoses)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnoses: %w", err)
	}

	var rawFeedback []byte
	if sub.Feedback != nil {
		if rawFeedback, err = json.Marshal(sub.Feedback); err != nil {
			return fmt.Errorf("failed to marshal feedback: %w", err)
		}
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO case_submissions (id, case_id, user_id, status, diagnoses, feedback)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (case_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			diagnoses = EXCLUDED.diagnoses,
			feedback = EXCLUDED.feedback,
			updated_at = now()
	`, sub.ID.String(), sub.CaseID.String(), sub.UserID, string(sub.Status), rawDiagnoses, rawFeedback)
	if err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	return nil
}

func (c *Client) InsertNote(ctx context.Context, n *models.Note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO case_notes (id, case_id, user_id, content, is_sent_to_instructor)
		VALUES ($1, $2, $3, $4, $5)
	`, n.ID.String(), n.CaseID.String(), n.UserID, notes.Content(*n), n.SentToInstructor)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

func (c *Client) UpsertSentiment(ctx context.Context, s *models.Sentiment) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO case_sentiments (case_id, user_id, sentiment) VALUES ($1, $2, $3)
		ON CONFLICT (case_id, user_id) DO UPDATE SET sentiment = EXCLUDED.sentiment
	`, s.CaseID.String(), s.UserID, string(s.Value))
	if err != nil {
		return fmt.Errorf("failed to upsert sentiment: %w", err)
	}
	return nil
}

func (c *Client) UpsertSessionCapture(ctx context.Context, sc *models.SessionCapture) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO session_captures (case_id, user_id, takeaway) VALUES ($1, $2, $3)
		ON CONFLICT (case_id, user_id) DO UPDATE SET takeaway = EXCLUDED.takeaway
	`, sc.CaseID.String(), sc.UserID, sc.Takeaway)
	if err != nil {
		return fmt.Errorf("failed to upsert session capture: %w", err)
	}
	return nil
}

func (c *Client) GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	cs := models.Case{ID: id}
	var rawKey []byte
	err := c.pool.QueryRow(ctx, `
		SELECT title, differential_answer_key, created_at FROM cases WHERE id = $1
	`, id.String()).Scan(&cs.Title, &rawKey, &cs.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	if err := json.Unmarshal(rawKey, &cs.AnswerKey); err != nil {
		logger.Warn("Unreadable answer key, treating as empty", zap.String("case_id", id.String()), zap.Error(err))
		cs.AnswerKey = nil
	}
	return &cs, nil
}

func (c *Client) ListSubmissions(ctx context.Context, caseID uuid.UUID) ([]models.Submission, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id::text, user_id, status, diagnoses, feedback, updated_at
		FROM case_submissions
		WHERE case_id = $1
		ORDER BY created_at, id
	`, caseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		var (
			s           models.Submission
			rawID       string
			status      string
			rawDiag     []byte
			rawFeedback []byte
		)
		if err := rows.Scan(&rawID, &s.UserID, &status, &rawDiag, &rawFeedback, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		s.ID, _ = uuid.Parse(rawID)
		s.CaseID = caseID
		s.Status = models.SubmissionStatus(status)

		if err := json.Unmarshal(rawDiag, &s.Diagnoses); err != nil {
			logger.Warn("Unreadable submission diagnoses", zap.String("submission_id", rawID), zap.Error(err))
			s.Diagnoses = nil
		}
		if len(rawFeedback) > 0 {
			var fb models.Feedback
			if err := json.Unmarshal(rawFeedback, &fb); err == nil {
				s.Feedback = &fb
			}
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submissions: %w", err)
	}
	return subs, nil
}

func (c *Client) CountStudents(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles WHERE role = 'student'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return n, nil
}

func (c *Client) ListInstructorNotes(ctx context.Context, caseID uuid.UUID) ([]models.Note, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id::text, user_id, content, created_at
		FROM case_notes
		WHERE case_id = $1 AND is_sent_to_instructor
		ORDER BY created_at, id
	`, caseID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var out []models.Note
	for rows.Next() {
		n := models.Note{CaseID: caseID, SentToInstructor: true}
		var rawID, content string
		if err := rows.Scan(&rawID, &n.UserID, &content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		n.ID, _ = uuid.Parse(rawID)
		notes.Apply(&n, content)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return out, nil
}

func (c *Client) ListSentiments(ctx context.Context, caseID uuid.UUID) ([]models.Sentiment, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT user_id, sentiment FROM case_sentiments WHERE case_id = $1 ORDER BY created_at, user_id
	`, caseID.String())
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
	rows, err := c.pool.Query(ctx, `
		SELECT user_id, takeaway FROM session_captures WHERE case_id = $1 ORDER BY created_at, user_id
	`, caseID.String())
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
