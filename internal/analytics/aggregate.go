package analytics

import (
	"sort"
	"strconv"

	"github.com/ddx-dashboard/backend/internal/storage/models"
)

type DiagnosisCount struct {
	Diagnosis string `json:"diagnosis"`
	Count     int    `json:"count"`
}

// DiagnosisHits is a hit tally for one answer-key entry. Total is the number
// of eligible submissions.
type DiagnosisHits struct {
	Diagnosis string `json:"diagnosis"`
	HitCount  int    `json:"hit_count"`
	Total     int    `json:"total"`
}

// Coverage holds the cohort-wide tallies.
type Coverage struct {
	Frequency   []DiagnosisCount
	Categories  map[models.Category]int
	Gaps        []models.Category
	ByTier      map[models.Tier][]DiagnosisHits
	CantMiss    []DiagnosisHits
	CantMissPct *int
	Calibration []CalibrationPoint
}

// studentSet counts distinct students.
type studentSet map[string]struct{}

func (s studentSet) add(id string) { s[id] = struct{}{} }

type aggregator struct {
	total int

	freqOrder []string
	freq      map[string]studentSet
	cats      map[models.Category]studentSet
	hits      map[string]studentSet

	cachedHit   int
	cachedTotal int
	calibration []CalibrationPoint
}

func newAggregator(total int) *aggregator {
	return &aggregator{
		total:       total,
		freq:        make(map[string]studentSet),
		cats:        make(map[models.Category]studentSet),
		hits:        make(map[string]studentSet),
		calibration: make([]CalibrationPoint, 0),
	}
}

// add folds one submission and its match. seq disambiguates submissions that
// carry no user id.
func (a *aggregator) add(seq int, sub models.Submission, m Match) {
	student := m.UserID
	if student == "" {
		student = "#" + strconv.Itoa(seq)
	}

	for _, n := range m.Names {
		set, ok := a.freq[n]
		if !ok {
			set = make(studentSet)
			a.freq[n] = set
			a.freqOrder = append(a.freqOrder, n)
		}
		set.add(student)
	}

	for _, c := range m.Categories {
		set, ok := a.cats[c]
		if !ok {
			set = make(studentSet)
			a.cats[c] = set
		}
		set.add(student)
	}

	for _, h := range m.Hits {
		set, ok := a.hits[h.Diagnosis]
		if !ok {
			set = make(studentSet)
			a.hits[h.Diagnosis] = set
		}
		set.add(student)
	}

	if sub.Feedback != nil {
		a.cachedHit += len(sub.Feedback.CantMissHit)
		a.cachedTotal += len(sub.Feedback.CantMissHit) + len(sub.Feedback.CantMissMissed)
	}

	a.calibration = append(a.calibration, m.Calibration...)
}

func (a *aggregator) result(key []models.AnswerKeyEntry) Coverage {
	cov := Coverage{
		Frequency:   make([]DiagnosisCount, 0, len(a.freqOrder)),
		Categories:  make(map[models.Category]int),
		Gaps:        make([]models.Category, 0),
		ByTier:      make(map[models.Tier][]DiagnosisHits, len(models.Tiers)),
		CantMiss:    make([]DiagnosisHits, 0),
		CantMissPct: percent(a.cachedHit, a.cachedTotal),
		Calibration: a.calibration,
	}

	for _, n := range a.freqOrder {
		cov.Frequency = append(cov.Frequency, DiagnosisCount{Diagnosis: n, Count: len(a.freq[n])})
	}
	sort.SliceStable(cov.Frequency, func(i, j int) bool {
		return cov.Frequency[i].Count > cov.Frequency[j].Count
	})

	for _, c := range models.Categories {
		if n := len(a.cats[c]); n > 0 {
			cov.Categories[c] = n
		} else {
			cov.Gaps = append(cov.Gaps, c)
		}
	}

	for _, t := range models.Tiers {
		cov.ByTier[t] = make([]DiagnosisHits, 0)
	}
	for _, e := range key {
		row := DiagnosisHits{Diagnosis: e.Diagnosis, HitCount: len(a.hits[e.Diagnosis]), Total: a.total}
		if e.Tier.Valid() {
			cov.ByTier[e.Tier] = append(cov.ByTier[e.Tier], row)
		}
		if e.CantMiss {
			cov.CantMiss = append(cov.CantMiss, row)
		}
	}

	return cov
}

// Aggregate matches every eligible submission and folds the results.
// Ineligible submissions are skipped.
func Aggregate(key []models.AnswerKeyEntry, idx *Index, subs []models.Submission) (Coverage, int) {
	eligible := make([]models.Submission, 0, len(subs))
	for _, s := range subs {
		if s.Status.Eligible() {
			eligible = append(eligible, s)
		}
	}

	agg := newAggregator(len(eligible))
	for i, s := range eligible {
		agg.add(i, s, MatchSubmission(s, key, idx))
	}
	return agg.result(key), len(eligible)
}
