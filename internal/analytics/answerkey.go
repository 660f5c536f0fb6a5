package analytics

import "github.com/ddx-dashboard/backend/internal/storage/models"

// KeyCollision records a normalized name claimed by more than one answer-key
// entry. The later entry wins the lookup.
type KeyCollision struct {
	Key      string `json:"key"`
	Previous string `json:"previous"`
	Winner   string `json:"winner"`
}

// Index resolves any accepted spelling (canonical name or alias) to its
// answer-key entry.
type Index struct {
	entries    map[string]*models.AnswerKeyEntry
	collisions []KeyCollision
}

// BuildIndex indexes the canonical name and every alias of each entry.
// Collisions resolve last-write-wins in list order.
func BuildIndex(key []models.AnswerKeyEntry) *Index {
	idx := &Index{entries: make(map[string]*models.AnswerKeyEntry)}
	for i := range key {
		entry := &key[i]
		for _, name := range entryNames(*entry) {
			if prev, ok := idx.entries[name]; ok && prev != entry {
				idx.collisions = append(idx.collisions, KeyCollision{
					Key:      name,
					Previous: prev.Diagnosis,
					Winner:   entry.Diagnosis,
				})
			}
			idx.entries[name] = entry
		}
	}
	return idx
}

// entryNames returns the normalized canonical name and aliases of e, without
// empties.
func entryNames(e models.AnswerKeyEntry) []string {
	names := make([]string, 0, len(e.Aliases)+1)
	if n := Normalize(e.Diagnosis); n != "" {
		names = append(names, n)
	}
	for _, a := range e.Aliases {
		if n := Normalize(a); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func (idx *Index) Contains(name string) bool {
	_, ok := idx.entries[Normalize(name)]
	return ok
}

func (idx *Index) Collisions() []KeyCollision {
	return idx.collisions
}
