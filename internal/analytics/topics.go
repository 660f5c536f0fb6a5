package analytics

import "github.com/ddx-dashboard/backend/internal/storage/models"

const anonymousStudent = "Anonymous"

type FlaggedQuestion struct {
	Content string `json:"content"`
	Student string `json:"student"`
}

type TopicCount struct {
	Topic string
	Votes int
}

// TopicTally counts votes per topic and remembers first-seen order so ties
// resolve the same way on every run.
type TopicTally struct {
	order  []string
	counts map[string]int
}

func (t *TopicTally) add(topic string) {
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	if _, ok := t.counts[topic]; !ok {
		t.order = append(t.order, topic)
	}
	t.counts[topic]++
}

// Counts returns a copy of the tally, never nil.
func (t TopicTally) Counts() map[string]int {
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Leader returns the most-voted topic, first seen on ties.
func (t TopicTally) Leader() (TopicCount, bool) {
	var best TopicCount
	found := false
	for _, topic := range t.order {
		if n := t.counts[topic]; !found || n > best.Votes {
			best = TopicCount{Topic: topic, Votes: n}
			found = true
		}
	}
	return best, found
}

// TallyNotes splits instructor-directed notes into topic votes and
// anonymized questions. Author ids are never copied into the output.
func TallyNotes(notes []models.Note) (TopicTally, []FlaggedQuestion) {
	var tally TopicTally
	questions := make([]FlaggedQuestion, 0)

	for _, n := range notes {
		if !n.SentToInstructor {
			continue
		}
		switch n.Kind {
		case models.NoteKindTopicVote:
			for _, topic := range n.Topics {
				tally.add(topic)
			}
		default:
			questions = append(questions, FlaggedQuestion{Content: n.Text, Student: anonymousStudent})
		}
	}
	return tally, questions
}
