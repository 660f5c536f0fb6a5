package notes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ddx-dashboard/backend/internal/storage/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		kind     models.NoteKind
		topics   []string
		freeText string
		text     string
	}{
		{
			name:     "vote with free text",
			content:  `[TOPIC VOTE] Cardiology, Renal | Free text: "ECG basics"`,
			kind:     models.NoteKindTopicVote,
			topics:   []string{"Cardiology", "Renal"},
			freeText: "ECG basics",
		},
		{
			name:    "vote without free text",
			content: "[TOPIC VOTE] Sepsis",
			kind:    models.NoteKindTopicVote,
			topics:  []string{"Sepsis"},
		},
		{
			name:    "empty topics dropped",
			content: "[TOPIC VOTE] , Renal ,, ",
			kind:    models.NoteKindTopicVote,
			topics:  []string{"Renal"},
		},
		{
			name:    "marker not at start is a question",
			content: "Can we revisit [TOPIC VOTE] Renal?",
			kind:    models.NoteKindQuestion,
			text:    "Can we revisit [TOPIC VOTE] Renal?",
		},
		{
			name:    "plain question kept verbatim",
			content: "  Why is troponin delayed? ",
			kind:    models.NoteKindQuestion,
			text:    "  Why is troponin delayed? ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.content)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.freeText, got.FreeText)
			if tt.kind == models.NoteKindTopicVote {
				assert.Equal(t, tt.topics, got.Topics)
			} else {
				assert.Empty(t, got.Topics)
			}
		})
	}
}

func TestEncodeTopicVoteRoundTrip(t *testing.T) {
	content := EncodeTopicVote([]string{"Cardiology", " Renal "}, "ECG basics")
	assert.Equal(t, `[TOPIC VOTE] Cardiology, Renal | Free text: "ECG basics"`, content)

	got := Decode(content)
	assert.Equal(t, models.NoteKindTopicVote, got.Kind)
	assert.Equal(t, []string{"Cardiology", "Renal"}, got.Topics)
	assert.Equal(t, "ECG basics", got.FreeText)
}

func TestEncodeTopicVoteStripsSeparators(t *testing.T) {
	got := Decode(EncodeTopicVote([]string{"Acid, base", "a|b"}, ""))
	assert.Equal(t, []string{"Acid  base", "a b"}, got.Topics)
}

func TestApplyAndContent(t *testing.T) {
	var n models.Note
	Apply(&n, "[TOPIC VOTE] Renal")
	assert.Equal(t, models.NoteKindTopicVote, n.Kind)
	assert.Equal(t, "[TOPIC VOTE] Renal", Content(n))

	Apply(&n, "hello")
	assert.Equal(t, models.NoteKindQuestion, n.Kind)
	assert.Nil(t, n.Topics)
	assert.Equal(t, "hello", Content(n))
}
