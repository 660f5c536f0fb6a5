package analytics

import "github.com/ddx-dashboard/backend/internal/storage/models"

// CalibrationPoint pairs a stated confidence with whether the diagnosis
// matched any accepted answer-key name.
type CalibrationPoint struct {
	Label      string `json:"label"`
	Confidence int    `json:"confidence"`
	WasCorrect bool   `json:"wasCorrect"`
}

// Hit is an answer-key entry found in a submission, named canonically.
type Hit struct {
	Diagnosis string
	CantMiss  bool
}

// Match is the per-submission matcher output.
type Match struct {
	UserID      string
	Names       []string // normalized, deduplicated, first-seen order
	Hits        []Hit
	Categories  []models.Category
	Calibration []CalibrationPoint
}

// MatchSubmission compares one submission against the answer key.
func MatchSubmission(sub models.Submission, key []models.AnswerKeyEntry, idx *Index) Match {
	m := Match{UserID: sub.UserID}

	present := make(map[string]struct{}, len(sub.Diagnoses))
	for _, d := range sub.Diagnoses {
		n := Normalize(d.Diagnosis)
		if n == "" {
			continue
		}
		if _, seen := present[n]; !seen {
			present[n] = struct{}{}
			m.Names = append(m.Names, n)
		}
	}

	for _, entry := range key {
		for _, name := range entryNames(entry) {
			if _, ok := present[name]; ok {
				m.Hits = append(m.Hits, Hit{Diagnosis: entry.Diagnosis, CantMiss: entry.CantMiss})
				break
			}
		}
	}

	tagged := make(map[models.Category]struct{})
	for _, d := range sub.Diagnoses {
		for _, c := range d.Tags() {
			if !c.Valid() {
				continue
			}
			if _, seen := tagged[c]; !seen {
				tagged[c] = struct{}{}
				m.Categories = append(m.Categories, c)
			}
		}
	}

	for _, d := range sub.Diagnoses {
		if d.Confidence == nil || *d.Confidence < 1 {
			continue
		}
		m.Calibration = append(m.Calibration, CalibrationPoint{
			Label:      d.Diagnosis,
			Confidence: *d.Confidence,
			WasCorrect: idx.Contains(d.Diagnosis),
		})
	}

	return m
}
