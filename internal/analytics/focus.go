package analytics

import (
	"fmt"

	"github.com/ddx-dashboard/backend/internal/storage/models"
)

const (
	maxFocusItems = 3
	minTopicVotes = 2
)

// SuggestFocus ranks discussion topics: weak can't-miss diagnoses first, then
// untouched categories, then the leading student vote. At most three items.
func SuggestFocus(cantMiss []DiagnosisHits, gaps []models.Category, votes TopicTally) []string {
	focus := make([]string, 0, maxFocusItems)

	for _, d := range cantMiss {
		if len(focus) == maxFocusItems {
			return focus
		}
		if d.Total > 0 && d.HitCount*2 < d.Total {
			focus = append(focus, fmt.Sprintf("Review %s — missed by %d of %d students",
				d.Diagnosis, d.Total-d.HitCount, d.Total))
		}
	}

	for _, c := range gaps {
		if len(focus) == maxFocusItems {
			return focus
		}
		focus = append(focus, fmt.Sprintf("No one considered %s causes", c.FullName()))
	}

	if len(focus) < maxFocusItems {
		if top, ok := votes.Leader(); ok && top.Votes >= minTopicVotes {
			focus = append(focus, fmt.Sprintf("Students want to discuss %s", top.Topic))
		}
	}
	return focus
}
