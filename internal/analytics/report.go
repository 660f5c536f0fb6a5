package analytics

import (
	"strings"

	"github.com/ddx-dashboard/backend/internal/storage/models"
)

// Input is everything the report needs for one case, already fetched.
type Input struct {
	AnswerKey       []models.AnswerKeyEntry
	Submissions     []models.Submission
	TotalStudents   int
	Notes           []models.Note
	Sentiments      []models.Sentiment
	SessionCaptures []models.SessionCapture
}

type SentimentSummary struct {
	Confident int `json:"confident"`
	Uncertain int `json:"uncertain"`
	Lost      int `json:"lost"`
}

// Report is the dashboard payload. Collections always encode as [] or {};
// CantMissRate is the only nullable field.
type Report struct {
	SubmissionCount       int                             `json:"submission_count"`
	TotalStudents         int                             `json:"total_students"`
	DiagnosisFrequency    []DiagnosisCount                `json:"diagnosis_frequency"`
	VindicateCoverage     map[models.Category]int         `json:"vindicate_coverage"`
	CantMissRate          *int                            `json:"cant_miss_rate"`
	CantMissDetails       []DiagnosisHits                 `json:"cant_miss_details"`
	VindicateGaps         []models.Category               `json:"vindicate_gaps"`
	DiagnosisByTier       map[models.Tier][]DiagnosisHits `json:"diagnosis_by_tier"`
	SentimentSummary      SentimentSummary                `json:"sentiment_summary"`
	SuggestedFocus        []string                        `json:"suggested_focus"`
	SessionCaptures       []string                        `json:"session_captures"`
	FlaggedQuestions      []FlaggedQuestion               `json:"flagged_questions"`
	TopicVotes            map[string]int                  `json:"topic_votes"`
	ConfidenceCalibration []CalibrationPoint              `json:"confidence_calibration"`

	// KeyCollisions is diagnostic output for the caller, not part of the payload.
	KeyCollisions []KeyCollision `json:"-"`
}

// Build runs the whole pipeline. It never fails: missing or malformed
// optional data contributes nothing.
func Build(in Input) *Report {
	idx := BuildIndex(in.AnswerKey)
	cov, eligible := Aggregate(in.AnswerKey, idx, in.Submissions)
	tally, questions := TallyNotes(in.Notes)

	return &Report{
		SubmissionCount:       eligible,
		TotalStudents:         in.TotalStudents,
		DiagnosisFrequency:    cov.Frequency,
		VindicateCoverage:     cov.Categories,
		CantMissRate:          cov.CantMissPct,
		CantMissDetails:       cov.CantMiss,
		VindicateGaps:         cov.Gaps,
		DiagnosisByTier:       cov.ByTier,
		SentimentSummary:      summarizeSentiments(in.Sentiments),
		SuggestedFocus:        SuggestFocus(cov.CantMiss, cov.Gaps, tally),
		SessionCaptures:       takeaways(in.SessionCaptures),
		FlaggedQuestions:      questions,
		TopicVotes:            tally.Counts(),
		ConfidenceCalibration: cov.Calibration,
		KeyCollisions:         idx.Collisions(),
	}
}

func summarizeSentiments(rows []models.Sentiment) SentimentSummary {
	var s SentimentSummary
	for _, r := range rows {
		switch r.Value {
		case models.SentimentConfident:
			s.Confident++
		case models.SentimentUncertain:
			s.Uncertain++
		case models.SentimentLost:
			s.Lost++
		}
	}
	return s
}

// takeaways strips author identity and drops blank captures.
func takeaways(rows []models.SessionCapture) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if t := strings.TrimSpace(r.Takeaway); t != "" {
			out = append(out, t)
		}
	}
	return out
}
