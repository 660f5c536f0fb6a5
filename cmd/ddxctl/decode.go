package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ddx-dashboard/backend/internal/notes"
	"github.com/ddx-dashboard/backend/internal/storage/models"
)

func newDecodeNoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-note <content>",
		Short: "Show how stored note content is classified",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := notes.Decode(args[0])

			out := map[string]interface{}{"kind": d.Kind}
			if d.Kind == models.NoteKindTopicVote {
				out["topics"] = d.Topics
				out["free_text"] = d.FreeText
			} else {
				out["text"] = d.Text
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
