// Package notes converts between stored note content and the decoded
// models.Note variant. Topic votes share the free-text note column with
// ordinary questions and are told apart only by the TopicVoteMarker prefix.
package notes

import (
	"strings"

	"github.com/ddx-dashboard/backend/internal/storage/models"
)

const (
	TopicVoteMarker = "[TOPIC VOTE]"
	freeTextLabel   = "Free text:"
)

// Decoded is the result of decoding one note body.
type Decoded struct {
	Kind     models.NoteKind
	Text     string
	Topics   []string
	FreeText string
}

// Decode classifies content by prefix. Content without the marker is a
// question and is returned verbatim.
func Decode(content string) Decoded {
	if !strings.HasPrefix(content, TopicVoteMarker) {
		return Decoded{Kind: models.NoteKindQuestion, Text: content}
	}

	rest := content[len(TopicVoteMarker):]
	list, free, _ := strings.Cut(rest, "|")

	topics := make([]string, 0)
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	return Decoded{
		Kind:     models.NoteKindTopicVote,
		Topics:   topics,
		FreeText: parseFreeText(free),
	}
}

func parseFreeText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, freeTextLabel))
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return s
}

// EncodeTopicVote renders topics and an optional free-text comment in the
// stored wire form, e.g. `[TOPIC VOTE] Cardiology, Renal | Free text: "ECG basics"`.
func EncodeTopicVote(topics []string, freeText string) string {
	clean := make([]string, 0, len(topics))
	for _, t := range topics {
		// Commas and pipes are separators on the wire.
		t = strings.NewReplacer(",", " ", "|", " ").Replace(t)
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}

	var b strings.Builder
	b.WriteString(TopicVoteMarker)
	b.WriteString(" ")
	b.WriteString(strings.Join(clean, ", "))
	if freeText = strings.TrimSpace(freeText); freeText != "" {
		b.WriteString(` | `)
		b.WriteString(freeTextLabel)
		b.WriteString(` "`)
		b.WriteString(freeText)
		b.WriteString(`"`)
	}
	return b.String()
}

// Apply fills the decoded fields of n from content.
func Apply(n *models.Note, content string) {
	d := Decode(content)
	n.Kind = d.Kind
	n.Text = d.Text
	n.Topics = d.Topics
	n.FreeText = d.FreeText
}

// Content is the inverse of Apply, used when writing notes back to storage.
func Content(n models.Note) string {
	if n.Kind == models.NoteKindTopicVote {
		return EncodeTopicVote(n.Topics, n.FreeText)
	}
	return n.Text
}
