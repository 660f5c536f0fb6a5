package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// Category is one VINDICATE etiology symbol.
type Category string

const (
	CategoryVascular     Category = "V"
	CategoryInfectious   Category = "I"
	CategoryNeoplastic   Category = "N"
	CategoryDegenerative Category = "D"
	CategoryIatrogenic   Category = "I2"
	CategoryCongenital   Category = "C"
	CategoryAutoimmune   Category = "A"
	CategoryTraumatic    Category = "T"
	CategoryEndocrine    Category = "E"
)

// Categories lists the VINDICATE symbols in mnemonic order. Every ordered
// output over categories iterates this slice.
var Categories = []Category{
	CategoryVascular,
	CategoryInfectious,
	CategoryNeoplastic,
	CategoryDegenerative,
	CategoryIatrogenic,
	CategoryCongenital,
	CategoryAutoimmune,
	CategoryTraumatic,
	CategoryEndocrine,
}

var categoryNames = map[Category]string{
	CategoryVascular:     "Vascular",
	CategoryInfectious:   "Infectious",
	CategoryNeoplastic:   "Neoplastic",
	CategoryDegenerative: "Degenerative",
	CategoryIatrogenic:   "Iatrogenic/Intoxication",
	CategoryCongenital:   "Congenital",
	CategoryAutoimmune:   "Autoimmune/Allergic",
	CategoryTraumatic:    "Traumatic",
	CategoryEndocrine:    "Endocrine/Metabolic",
}

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// FullName returns the mnemonic label, or the raw symbol when unknown.
func (c Category) FullName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

type Tier string

const (
	TierMostLikely        Tier = "most_likely"
	TierModerate          Tier = "moderate"
	TierLessLikely        Tier = "less_likely"
	TierUnlikelyImportant Tier = "unlikely_important"
)

var Tiers = []Tier{TierMostLikely, TierModerate, TierLessLikely, TierUnlikelyImportant}

func (t Tier) Valid() bool {
	switch t {
	case TierMostLikely, TierModerate, TierLessLikely, TierUnlikelyImportant:
		return true
	}
	return false
}

type SubmissionStatus string

const (
	StatusDraft       SubmissionStatus = "draft"
	StatusSubmitted   SubmissionStatus = "submitted"
	StatusResubmitted SubmissionStatus = "resubmitted"
)

// Eligible reports whether a submission in this status counts toward
// cohort analytics.
func (s SubmissionStatus) Eligible() bool {
	return s == StatusSubmitted || s == StatusResubmitted
}

type SentimentValue string

const (
	SentimentConfident SentimentValue = "confident"
	SentimentUncertain SentimentValue = "uncertain"
	SentimentLost      SentimentValue = "lost"
)

type NoteKind string

const (
	NoteKindQuestion  NoteKind = "question"
	NoteKindTopicVote NoteKind = "topic_vote"
)

type DiagnosisEntry struct {
	Diagnosis  string     `json:"diagnosis" yaml:"diagnosis"`
	Categories []Category `json:"categories,omitempty" yaml:"categories"`
	// Category is the legacy single-tag field; only read when Categories is empty.
	Category   Category `json:"category,omitempty" yaml:"category"`
	Confidence *int     `json:"confidence,omitempty" yaml:"confidence"`
}

// Tags returns the effective category tags of the entry.
func (d DiagnosisEntry) Tags() []Category {
	if len(d.Categories) > 0 {
		return d.Categories
	}
	if d.Category != "" {
		return []Category{d.Category}
	}
	return nil
}

type AnswerKeyEntry struct {
	Diagnosis string   `json:"diagnosis" yaml:"diagnosis" validate:"required"`
	Aliases   []string `json:"aliases,omitempty" yaml:"aliases"`
	Tier      Tier     `json:"tier" yaml:"tier" validate:"required,oneof=most_likely moderate less_likely unlikely_important"`
	Category  Category `json:"category" yaml:"category" validate:"omitempty,oneof=V I N D I2 C A T E"`
	CantMiss  bool     `json:"cant_miss" yaml:"cant_miss"`
}

type Case struct {
	ID        uuid.UUID
	Title     string
	AnswerKey []AnswerKeyEntry
	CreatedAt time.Time
}

// Feedback is the cached result of the upstream feedback generator. Only the
// can't-miss lists are read here.
type Feedback struct {
	CantMissHit    []string `json:"cant_miss_hit" yaml:"cant_miss_hit"`
	CantMissMissed []string `json:"cant_miss_missed" yaml:"cant_miss_missed"`
}

type Submission struct {
	ID        uuid.UUID
	CaseID    uuid.UUID
	UserID    string
	Status    SubmissionStatus
	Diagnoses []DiagnosisEntry
	Feedback  *Feedback
	UpdatedAt time.Time
}

// Note is a decoded student note. Kind selects which of Text (question) or
// Topics/FreeText (topic vote) is populated.
type Note struct {
	ID               uuid.UUID
	CaseID           uuid.UUID
	UserID           string
	SentToInstructor bool
	Kind             NoteKind
	Text             string
	Topics           []string
	FreeText         string
	CreatedAt        time.Time
}

type Sentiment struct {
	CaseID uuid.UUID
	UserID string
	Value  SentimentValue
}

type SessionCapture struct {
	CaseID   uuid.UUID
	UserID   string
	Takeaway string
}
