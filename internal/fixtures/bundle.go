// Package fixtures loads case bundles, a YAML description of one case and its
// cohort activity, and seeds them into a store.
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ddx-dashboard/backend/internal/notes"
	"github.com/ddx-dashboard/backend/internal/storage/models"
)

type Bundle struct {
	Case            CaseFixture         `yaml:"case" validate:"required"`
	Profiles        []ProfileFixture    `yaml:"profiles" validate:"dive"`
	Submissions     []SubmissionFixture `yaml:"submissions" validate:"dive"`
	Notes           []NoteFixture       `yaml:"notes" validate:"dive"`
	Sentiments      []SentimentFixture  `yaml:"sentiments" validate:"dive"`
	SessionCaptures []CaptureFixture    `yaml:"session_captures" validate:"dive"`
}

type CaseFixture struct {
	ID        string                  `yaml:"id" validate:"required,uuid"`
	Title     string                  `yaml:"title"`
	AnswerKey []models.AnswerKeyEntry `yaml:"answer_key" validate:"dive"`
}

type ProfileFixture struct {
	ID   string `yaml:"id" validate:"required"`
	Role string `yaml:"role" validate:"omitempty,oneof=student instructor admin"`
}

type SubmissionFixture struct {
	UserID    string                  `yaml:"user_id" validate:"required"`
	Status    models.SubmissionStatus `yaml:"status" validate:"required,oneof=draft submitted resubmitted"`
	Diagnoses []models.DiagnosisEntry `yaml:"diagnoses"`
	Feedback  *models.Feedback        `yaml:"feedback"`
}

// NoteFixture is either raw stored Content or a topic vote given as Topics.
type NoteFixture struct {
	UserID           string   `yaml:"user_id" validate:"required"`
	SentToInstructor bool     `yaml:"sent_to_instructor"`
	Content          string   `yaml:"content" validate:"required_without=Topics"`
	Topics           []string `yaml:"topics"`
	FreeText         string   `yaml:"free_text"`
}

type SentimentFixture struct {
	UserID string                `yaml:"user_id" validate:"required"`
	Value  models.SentimentValue `yaml:"value" validate:"required,oneof=confident uncertain lost"`
}

type CaptureFixture struct {
	UserID   string `yaml:"user_id" validate:"required"`
	Takeaway string `yaml:"takeaway"`
}

var validate = validator.New()

func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a bundle. Unknown keys are rejected so typos in
// hand-written fixtures surface early.
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}

	if err := validate.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("invalid bundle: %s failed %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("invalid bundle: %w", err)
	}
	return &b, nil
}

// CaseID returns the parsed case id. Parse has already validated it.
func (b *Bundle) CaseID() uuid.UUID {
	return uuid.MustParse(b.Case.ID)
}

// Store is the write side the seeder needs.
type Store interface {
	UpsertProfile(ctx context.Context, id, role string) error
	UpsertCase(ctx context.Context, cs *models.Case) error
	UpsertSubmission(ctx context.Context, sub *models.Submission) error
	InsertNote(ctx context.Context, n *models.Note) error
	UpsertSentiment(ctx context.Context, s *models.Sentiment) error
	UpsertSessionCapture(ctx context.Context, sc *models.SessionCapture) error
}

type SeedStats struct {
	Profiles        int
	Submissions     int
	Notes           int
	Sentiments      int
	SessionCaptures int
}

// Seed writes the bundle into store. Re-seeding the same bundle updates rows
// in place, except notes which are appended.
func Seed(ctx context.Context, store Store, b *Bundle) (SeedStats, error) {
	var stats SeedStats
	caseID := b.CaseID()

	if err := store.UpsertCase(ctx, &models.Case{ID: caseID, Title: b.Case.Title, AnswerKey: b.Case.AnswerKey}); err != nil {
		return stats, err
	}

	for _, p := range b.Profiles {
		role := p.Role
		if role == "" {
			role = "student"
		}
		if err := store.UpsertProfile(ctx, p.ID, role); err != nil {
			return stats, err
		}
		stats.Profiles++
	}

	for _, s := range b.Submissions {
		sub := &models.Submission{
			CaseID:    caseID,
			UserID:    s.UserID,
			Status:    s.Status,
			Diagnoses: s.Diagnoses,
			Feedback:  s.Feedback,
		}
		if err := store.UpsertSubmission(ctx, sub); err != nil {
			return stats, err
		}
		stats.Submissions++
	}

	for _, n := range b.Notes {
		note := &models.Note{CaseID: caseID, UserID: n.UserID, SentToInstructor: n.SentToInstructor}
		content := n.Content
		if len(n.Topics) > 0 {
			content = notes.EncodeTopicVote(n.Topics, n.FreeText)
		}
		notes.Apply(note, content)
		if err := store.InsertNote(ctx, note); err != nil {
			return stats, err
		}
		stats.Notes++
	}

	for _, s := range b.Sentiments {
		if err := store.UpsertSentiment(ctx, &models.Sentiment{CaseID: caseID, UserID: s.UserID, Value: s.Value}); err != nil {
			return stats, err
		}
		stats.Sentiments++
	}

	for _, c := range b.SessionCaptures {
		if err := store.UpsertSessionCapture(ctx, &models.SessionCapture{CaseID: caseID, UserID: c.UserID, Takeaway: c.Takeaway}); err != nil {
			return stats, err
		}
		stats.SessionCaptures++
	}

	return stats, nil
}
