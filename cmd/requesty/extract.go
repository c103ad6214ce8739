package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
	"github.com/skosovsky/requesty/schema"
)

// Contact is the record extracted from free text.
type Contact struct {
	Name    string `json:"name" jsonschema:"description=Full name"`
	Email   string `json:"email" jsonschema:"description=Email address, empty if absent"`
	Company string `json:"company" jsonschema:"description=Employer or organization, empty if absent"`
}

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract [text...]",
		Short: "Extract a contact record as schema-validated JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs := []requesty.ChatMessage{
				requesty.NewMessage(requesty.RoleSystem, "Extract the contact described by the user. Reply with JSON only."),
				requesty.NewMessage(requesty.RoleUser, strings.Join(args, " ")),
			}
			params := requesty.NewChatParams(msgs, requesty.WithResponseFormat(requesty.SchemaOf[Contact]("contact")))
			resp, err := a.llm.Chat(cmd.Context(), params)
			if err != nil {
				return err
			}
			text := strings.TrimSpace(adapter.TextFromParts(resp.Message.Content))
			contact, err := schema.Decode[Contact]([]byte(text))
			if err != nil {
				return fmt.Errorf("reply does not match the contact schema: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(contact)
		},
	}
}
