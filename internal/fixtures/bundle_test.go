package fixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-dashboard/backend/internal/analytics"
	"github.com/ddx-dashboard/backend/internal/storage/models"
	"github.com/ddx-dashboard/backend/internal/storage/sqlite"
)

func TestLoadFile(t *testing.T) {
	b, err := LoadFile("testdata/chest_pain.yaml")
	require.NoError(t, err)

	assert.Equal(t, "5b7e2a52-3c1e-4f4e-9a57-0f3b1c2d9e10", b.CaseID().String())
	require.Len(t, b.Case.AnswerKey, 4)
	assert.Equal(t, []string{"ACS", "myocardial infarction", "MI"}, b.Case.AnswerKey[0].Aliases)
	assert.Equal(t, models.TierUnlikelyImportant, b.Case.AnswerKey[2].Tier)
	require.Len(t, b.Submissions, 3)
	require.NotNil(t, b.Submissions[0].Diagnoses[0].Confidence)
	assert.Equal(t, 4, *b.Submissions[0].Diagnoses[0].Confidence)
	assert.Equal(t, models.CategoryVascular, b.Submissions[1].Diagnoses[0].Category)
}

func TestParseRejectsInvalidBundles(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad case id", "case:\n  id: nope\n"},
		{"bad tier", "case:\n  id: 5b7e2a52-3c1e-4f4e-9a57-0f3b1c2d9e10\n  answer_key:\n    - diagnosis: X\n      tier: sometimes\n"},
		{"bad status", "case:\n  id: 5b7e2a52-3c1e-4f4e-9a57-0f3b1c2d9e10\nsubmissions:\n  - user_id: s1\n    status: final\n"},
		{"unknown key", "case:\n  id: 5b7e2a52-3c1e-4f4e-9a57-0f3b1c2d9e10\nstudents: []\n"},
		{"empty note", "case:\n  id: 5b7e2a52-3c1e-4f4e-9a57-0f3b1c2d9e10\nnotes:\n  - user_id: s1\n"},
		{"bad sentiment", "case:\n  id: 5b7e2a52-3c1e-4f4e-9a57-0f3b1c2d9e10\nsentiments:\n  - user_id: s1\n    value: meh\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSeedAndReport(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.InitSchema(ctx))

	b, err := LoadFile("testdata/chest_pain.yaml")
	require.NoError(t, err)

	stats, err := Seed(ctx, store, b)
	require.NoError(t, err)
	assert.Equal(t, SeedStats{Profiles: 4, Submissions: 3, Notes: 4, Sentiments: 2, SessionCaptures: 2}, stats)

	caseID := b.CaseID()
	cs, err := store.GetCase(ctx, caseID)
	require.NoError(t, err)
	subs, err := store.ListSubmissions(ctx, caseID)
	require.NoError(t, err)
	students, err := store.CountStudents(ctx)
	require.NoError(t, err)
	notes, err := store.ListInstructorNotes(ctx, caseID)
	require.NoError(t, err)
	sentiments, err := store.ListSentiments(ctx, caseID)
	require.NoError(t, err)
	captures, err := store.ListSessionCaptures(ctx, caseID)
	require.NoError(t, err)

	r := analytics.Build(analytics.Input{
		AnswerKey:       cs.AnswerKey,
		Submissions:     subs,
		TotalStudents:   students,
		Notes:           notes,
		Sentiments:      sentiments,
		SessionCaptures: captures,
	})

	assert.Equal(t, 2, r.SubmissionCount)
	assert.Equal(t, 3, r.TotalStudents)
	require.NotNil(t, r.CantMissRate)
	assert.Equal(t, 50, *r.CantMissRate)

	assert.Equal(t, []analytics.DiagnosisHits{
		{Diagnosis: "Acute coronary syndrome", HitCount: 2, Total: 2},
		{Diagnosis: "Pulmonary embolism", HitCount: 1, Total: 2},
		{Diagnosis: "Aortic dissection", HitCount: 0, Total: 2},
	}, r.CantMissDetails)

	assert.Equal(t, map[models.Category]int{models.CategoryVascular: 2, models.CategoryDegenerative: 1}, r.VindicateCoverage)
	assert.Equal(t, []string{
		"Review Aortic dissection — missed by 2 of 2 students",
		"No one considered Infectious causes",
		"No one considered Neoplastic causes",
	}, r.SuggestedFocus)

	assert.Equal(t, map[string]int{"Aortic dissection": 2, "ECG reading": 1}, r.TopicVotes)
	assert.Equal(t, []analytics.FlaggedQuestion{
		{Content: "Why is troponin repeated at 3 hours?", Student: "Anonymous"},
	}, r.FlaggedQuestions)
	assert.Equal(t, []string{"Dissection can mimic MI; check both arms."}, r.SessionCaptures)
	assert.Equal(t, analytics.SentimentSummary{Confident: 1, Uncertain: 1}, r.SentimentSummary)
	assert.Len(t, r.ConfidenceCalibration, 4)
}
