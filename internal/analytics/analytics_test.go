package analytics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddx-dashboard/backend/internal/notes"
	"github.com/ddx-dashboard/backend/internal/storage/models"
)

func conf(n int) *int { return &n }

func submitted(user string, dx ...models.DiagnosisEntry) models.Submission {
	return models.Submission{UserID: user, Status: models.StatusSubmitted, Diagnoses: dx}
}

func dx(name string, cats ...models.Category) models.DiagnosisEntry {
	return models.DiagnosisEntry{Diagnosis: name, Categories: cats}
}

func instructorNote(content string) models.Note {
	n := models.Note{UserID: "u-secret", SentToInstructor: true}
	notes.Apply(&n, content)
	return n
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" Pneumonia ", "pneumonia"},
		{"pneumonia", "pneumonia"},
		{"\tACUTE  MI\n", "acute  mi"},
		{"", ""},
		{"Crohn's-disease", "crohn's-disease"},
	}
	for _, tt := range tests {
		got := Normalize(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, Normalize(got), "normalize must be idempotent")
	}
	assert.Equal(t, Normalize(" Pneumonia "), Normalize("pneumonia"))
}

func TestBuildIndex(t *testing.T) {
	key := []models.AnswerKeyEntry{
		{Diagnosis: "Acute Coronary Syndrome", Aliases: []string{"ACS", " acs "}, Tier: models.TierMostLikely},
		{Diagnosis: "Pulmonary Embolism", Aliases: []string{"PE", ""}, Tier: models.TierModerate},
	}
	idx := BuildIndex(key)

	e, ok := idx.entries["acs"]
	require.True(t, ok)
	assert.Equal(t, "Acute Coronary Syndrome", e.Diagnosis)
	assert.True(t, idx.Contains("  pulmonary embolism"))
	assert.False(t, idx.Contains(""))
	assert.Len(t, idx.entries, 4)
	assert.Empty(t, idx.Collisions(), "duplicate alias within one entry is not a collision")
}

func TestBuildIndexLastWriteWins(t *testing.T) {
	key := []models.AnswerKeyEntry{
		{Diagnosis: "Myocardial Infarction", Aliases: []string{"MI"}},
		{Diagnosis: "Mitral Insufficiency", Aliases: []string{"mi"}},
	}
	idx := BuildIndex(key)

	e, ok := idx.entries["mi"]
	require.True(t, ok)
	assert.Equal(t, "Mitral Insufficiency", e.Diagnosis)
	require.Len(t, idx.Collisions(), 1)
	assert.Equal(t, KeyCollision{Key: "mi", Previous: "Myocardial Infarction", Winner: "Mitral Insufficiency"}, idx.Collisions()[0])
}

func TestMatchSubmissionAliasAttribution(t *testing.T) {
	key := []models.AnswerKeyEntry{
		{Diagnosis: "Acute Coronary Syndrome", Aliases: []string{"ACS"}, Tier: models.TierMostLikely, CantMiss: true},
		{Diagnosis: "GERD", Tier: models.TierLessLikely},
	}
	idx := BuildIndex(key)
	sub := submitted("s1",
		models.DiagnosisEntry{Diagnosis: "acs", Confidence: conf(5)},
		models.DiagnosisEntry{Diagnosis: "Costochondritis", Confidence: conf(2)},
		models.DiagnosisEntry{Diagnosis: "Anxiety", Confidence: conf(0)},
	)

	m := MatchSubmission(sub, key, idx)
	assert.Equal(t, []Hit{{Diagnosis: "Acute Coronary Syndrome", CantMiss: true}}, m.Hits)
	assert.Equal(t, []CalibrationPoint{
		{Label: "acs", Confidence: 5, WasCorrect: true},
		{Label: "Costochondritis", Confidence: 2, WasCorrect: false},
	}, m.Calibration)
}

func TestMatchSubmissionCategories(t *testing.T) {
	sub := submitted("s1",
		dx("Aortic dissection", models.CategoryVascular),
		dx("Stroke", models.CategoryVascular, models.CategoryVascular),
		models.DiagnosisEntry{Diagnosis: "Lupus", Category: models.CategoryAutoimmune},
		dx("Mystery", models.Category("X")),
		dx("Untagged"),
	)
	m := MatchSubmission(sub, nil, BuildIndex(nil))
	assert.Equal(t, []models.Category{models.CategoryVascular, models.CategoryAutoimmune}, m.Categories)
	assert.Empty(t, m.Hits)
}

func TestAggregateStudentDedup(t *testing.T) {
	subs := []models.Submission{
		submitted("s1", dx("A", models.CategoryVascular), dx("B", models.CategoryVascular), dx("a")),
		submitted("s2", dx("A", models.CategoryInfectious)),
		{UserID: "s3", Status: models.StatusDraft, Diagnoses: []models.DiagnosisEntry{dx("A", models.CategoryVascular)}},
	}
	cov, eligible := Aggregate(nil, BuildIndex(nil), subs)

	assert.Equal(t, 2, eligible)
	assert.Equal(t, 1, cov.Categories[models.CategoryVascular])
	assert.Equal(t, 1, cov.Categories[models.CategoryInfectious])
	assert.Equal(t, []DiagnosisCount{{Diagnosis: "a", Count: 2}, {Diagnosis: "b", Count: 1}}, cov.Frequency)
}

func TestAggregateFrequencyStableSort(t *testing.T) {
	subs := []models.Submission{
		submitted("s1", dx("Zeta"), dx("Alpha"), dx("Mid")),
		submitted("s2", dx("Mid")),
		submitted("s3", dx("Alpha")),
	}
	cov, _ := Aggregate(nil, BuildIndex(nil), subs)
	assert.Equal(t, []DiagnosisCount{
		{Diagnosis: "alpha", Count: 2},
		{Diagnosis: "mid", Count: 2},
		{Diagnosis: "zeta", Count: 1},
	}, cov.Frequency)
}

func TestGapComplement(t *testing.T) {
	subs := []models.Submission{
		submitted("s1", dx("A", models.CategoryNeoplastic, models.CategoryEndocrine)),
		submitted("s2", dx("B", models.CategoryIatrogenic)),
	}
	cov, _ := Aggregate(nil, BuildIndex(nil), subs)

	for _, c := range models.Categories {
		_, covered := cov.Categories[c]
		assert.Equal(t, !covered, containsCategory(cov.Gaps, c), "category %s", c)
	}
	assert.Equal(t, []models.Category{
		models.CategoryVascular, models.CategoryInfectious, models.CategoryDegenerative,
		models.CategoryCongenital, models.CategoryAutoimmune, models.CategoryTraumatic,
	}, cov.Gaps)
}

func containsCategory(list []models.Category, c models.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

func TestCantMissRate(t *testing.T) {
	tests := []struct {
		name string
		subs []models.Submission
		want *int
	}{
		{name: "no submissions", subs: nil, want: nil},
		{name: "no cached feedback", subs: []models.Submission{submitted("s1", dx("A"))}, want: nil},
		{
			name: "empty cached lists",
			subs: []models.Submission{{UserID: "s1", Status: models.StatusSubmitted, Feedback: &models.Feedback{}}},
			want: nil,
		},
		{
			name: "rounded",
			subs: []models.Submission{
				{UserID: "s1", Status: models.StatusSubmitted, Feedback: &models.Feedback{CantMissHit: []string{"PE"}, CantMissMissed: []string{"AD"}}},
				{UserID: "s2", Status: models.StatusResubmitted, Feedback: &models.Feedback{CantMissMissed: []string{"PE"}}},
			},
			want: conf(33),
		},
		{
			name: "draft ignored",
			subs: []models.Submission{
				{UserID: "s1", Status: models.StatusSubmitted, Feedback: &models.Feedback{CantMissHit: []string{"PE"}}},
				{UserID: "s2", Status: models.StatusDraft, Feedback: &models.Feedback{CantMissMissed: []string{"PE"}}},
			},
			want: conf(100),
		},
		{
			name: "zero percent is not null",
			subs: []models.Submission{{UserID: "s1", Status: models.StatusSubmitted, Feedback: &models.Feedback{CantMissMissed: []string{"PE"}}}},
			want: conf(0),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cov, _ := Aggregate(nil, BuildIndex(nil), tt.subs)
			assert.Equal(t, tt.want, cov.CantMissPct)
		})
	}
}

func TestTierAndCantMissTables(t *testing.T) {
	key := []models.AnswerKeyEntry{
		{Diagnosis: "Appendicitis", Tier: models.TierMostLikely, CantMiss: true},
		{Diagnosis: "Ectopic pregnancy", Aliases: []string{"ectopic"}, Tier: models.TierUnlikelyImportant, CantMiss: true},
		{Diagnosis: "Gastroenteritis", Tier: models.TierMostLikely},
		{Diagnosis: "Ovarian torsion", Tier: models.Tier("bogus")},
	}
	subs := []models.Submission{
		submitted("s1", dx("appendicitis"), dx("Ectopic")),
		submitted("s2", dx("Appendicitis ")),
	}
	cov, _ := Aggregate(key, BuildIndex(key), subs)

	assert.Equal(t, []DiagnosisHits{
		{Diagnosis: "Appendicitis", HitCount: 2, Total: 2},
		{Diagnosis: "Gastroenteritis", HitCount: 0, Total: 2},
	}, cov.ByTier[models.TierMostLikely])
	assert.Empty(t, cov.ByTier[models.TierModerate])
	assert.NotNil(t, cov.ByTier[models.TierModerate])
	assert.Len(t, cov.ByTier, 4)
	assert.Equal(t, []DiagnosisHits{
		{Diagnosis: "Appendicitis", HitCount: 2, Total: 2},
		{Diagnosis: "Ectopic pregnancy", HitCount: 1, Total: 2},
	}, cov.CantMiss)
}

func TestTallyNotes(t *testing.T) {
	in := []models.Note{
		instructorNote(`[TOPIC VOTE] Cardiology, Renal | Free text: "ECG basics"`),
		instructorNote("[TOPIC VOTE] Renal"),
		instructorNote("What dose of heparin?"),
		{UserID: "u2", SentToInstructor: false, Kind: models.NoteKindQuestion, Text: "private"},
	}
	tally, questions := TallyNotes(in)

	assert.Equal(t, map[string]int{"Cardiology": 1, "Renal": 2}, tally.Counts())
	assert.Equal(t, []FlaggedQuestion{{Content: "What dose of heparin?", Student: "Anonymous"}}, questions)

	top, ok := tally.Leader()
	require.True(t, ok)
	assert.Equal(t, TopicCount{Topic: "Renal", Votes: 2}, top)
}

func TestTopicLeaderTieKeepsFirstSeen(t *testing.T) {
	tally, _ := TallyNotes([]models.Note{
		instructorNote("[TOPIC VOTE] Sepsis, Shock"),
		instructorNote("[TOPIC VOTE] Shock, Sepsis"),
	})
	top, ok := tally.Leader()
	require.True(t, ok)
	assert.Equal(t, "Sepsis", top.Topic)

	_, ok = TopicTally{}.Leader()
	assert.False(t, ok)
}

func TestSuggestFocusPriorityAndCap(t *testing.T) {
	cantMiss := []DiagnosisHits{
		{Diagnosis: "PE", HitCount: 0, Total: 10},
		{Diagnosis: "AD", HitCount: 1, Total: 10},
		{Diagnosis: "MI", HitCount: 9, Total: 10},
		{Diagnosis: "SAH", HitCount: 4, Total: 10},
		{Diagnosis: "Tamponade", HitCount: 2, Total: 10},
	}
	gaps := []models.Category{models.CategoryCongenital, models.CategoryTraumatic}
	var votes TopicTally
	for i := 0; i < 5; i++ {
		votes.add("Renal")
	}

	got := SuggestFocus(cantMiss, gaps, votes)
	assert.Equal(t, []string{
		"Review PE — missed by 10 of 10 students",
		"Review AD — missed by 9 of 10 students",
		"Review SAH — missed by 6 of 10 students",
	}, got)
}

func TestSuggestFocusFallsThrough(t *testing.T) {
	var votes TopicTally
	votes.add("Renal")
	votes.add("Renal")

	got := SuggestFocus(
		[]DiagnosisHits{{Diagnosis: "PE", HitCount: 5, Total: 10}, {Diagnosis: "AD", HitCount: 0, Total: 0}},
		[]models.Category{models.CategoryIatrogenic},
		votes,
	)
	assert.Equal(t, []string{
		"No one considered Iatrogenic/Intoxication causes",
		"Students want to discuss Renal",
	}, got)

	var single TopicTally
	single.add("Renal")
	assert.Empty(t, SuggestFocus(nil, nil, single))
}

func TestBuildEndToEnd(t *testing.T) {
	report := Build(Input{
		AnswerKey: []models.AnswerKeyEntry{{
			Diagnosis: "MI",
			Aliases:   []string{"myocardial infarction"},
			Tier:      models.TierMostLikely,
			CantMiss:  true,
			Category:  models.CategoryVascular,
		}},
		Submissions: []models.Submission{
			submitted("s1", models.DiagnosisEntry{
				Diagnosis:  "Myocardial Infarction",
				Categories: []models.Category{models.CategoryVascular},
				Confidence: conf(4),
			}),
			submitted("s2"),
		},
		TotalStudents: 10,
	})

	assert.Equal(t, 2, report.SubmissionCount)
	assert.Equal(t, 10, report.TotalStudents)
	assert.Equal(t, []DiagnosisCount{{Diagnosis: "myocardial infarction", Count: 1}}, report.DiagnosisFrequency)
	assert.Equal(t, []DiagnosisHits{{Diagnosis: "MI", HitCount: 1, Total: 2}}, report.CantMissDetails)
	assert.Equal(t, map[models.Category]int{models.CategoryVascular: 1}, report.VindicateCoverage)
	assert.Len(t, report.VindicateGaps, 8)
	assert.NotContains(t, report.VindicateGaps, models.CategoryVascular)
	assert.Nil(t, report.CantMissRate)
	assert.Equal(t, []CalibrationPoint{{Label: "Myocardial Infarction", Confidence: 4, WasCorrect: true}}, report.ConfidenceCalibration)
	assert.Len(t, report.SuggestedFocus, 3)
	assert.Equal(t, "No one considered Infectious causes", report.SuggestedFocus[0])
}

func TestBuildEmptyInputEncodesNoNulls(t *testing.T) {
	report := Build(Input{})
	raw, err := json.Marshal(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	for k, v := range decoded {
		if k == "cant_miss_rate" {
			assert.Nil(t, v)
			continue
		}
		assert.NotNil(t, v, "field %s", k)
	}
	assert.Len(t, decoded, 14)
	assert.NotContains(t, decoded, "KeyCollisions")
}

func TestBuildSentimentsCapturesAndAnonymity(t *testing.T) {
	report := Build(Input{
		Notes: []models.Note{instructorNote("Is the ECG normal?")},
		Sentiments: []models.Sentiment{
			{UserID: "s1", Value: models.SentimentLost},
			{UserID: "s2", Value: models.SentimentConfident},
			{UserID: "s3", Value: models.SentimentLost},
			{UserID: "s4", Value: models.SentimentValue("meh")},
		},
		SessionCaptures: []models.SessionCapture{
			{UserID: "s1", Takeaway: "Check troponin twice"},
			{UserID: "s2", Takeaway: "   "},
		},
	})

	assert.Equal(t, SentimentSummary{Confident: 1, Uncertain: 0, Lost: 2}, report.SentimentSummary)
	assert.Equal(t, []string{"Check troponin twice"}, report.SessionCaptures)

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "u-secret")
	assert.NotContains(t, string(raw), `"s1"`)
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	key := []models.AnswerKeyEntry{{Diagnosis: " MI ", Aliases: []string{"ACS"}, Tier: models.TierMostLikely}}
	subs := []models.Submission{submitted("s1", dx(" Mi "))}
	Build(Input{AnswerKey: key, Submissions: subs})

	assert.Equal(t, " MI ", key[0].Diagnosis)
	assert.Equal(t, []string{"ACS"}, key[0].Aliases)
	assert.Equal(t, " Mi ", subs[0].Diagnoses[0].Diagnosis)
}
