package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
)

func newChatCmd(a *app) *cobra.Command {
	var system string
	var stream bool
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Send one prompt and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var msgs []requesty.ChatMessage
			if system != "" {
				msgs = append(msgs, requesty.NewMessage(requesty.RoleSystem, system))
			}
			msgs = append(msgs, requesty.NewMessage(requesty.RoleUser, strings.Join(args, " ")))
			a.warnIfOverWindow(msgs)

			params := requesty.NewChatParams(msgs, requesty.WithTools(a.configTools()...))
			reply, err := exchange(cmd.Context(), a.llm, params, stream, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			for _, call := range reply.ToolCalls {
				args, _ := call.ArgumentsJSON()
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tool call %s %s(%s)\n", call.ID, call.Name, args)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&system, "system", "s", "", "system prompt")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the reply as it arrives")
	return cmd
}

// warnIfOverWindow logs when the estimated prompt size exceeds the model's context window.
func (a *app) warnIfOverWindow(msgs []requesty.ChatMessage) {
	md := a.llm.Metadata()
	n, err := requesty.CountMessages(md.Tokenizer, msgs)
	if err != nil || md.ContextWindow <= 0 {
		return
	}
	if n > md.ContextWindow {
		a.logger.Warn("prompt may exceed the context window", "estimated_tokens", n, "context_window", md.ContextWindow)
	}
}

// exchange runs one request and returns the assistant message. With stream set, text deltas are
// written to out as they arrive; otherwise the whole reply is written at the end.
func exchange(ctx context.Context, llm requesty.LLM, params requesty.ChatParams, stream bool, out io.Writer) (requesty.ChatMessage, error) {
	if !stream {
		resp, err := llm.Chat(ctx, params)
		if err != nil {
			return requesty.ChatMessage{}, err
		}
		if text := adapter.TextFromParts(resp.Message.Content); text != "" {
			_, _ = fmt.Fprintln(out, text)
		}
		return resp.Message, nil
	}

	seq, err := llm.Stream(ctx, params)
	if err != nil {
		return requesty.ChatMessage{}, err
	}
	var text strings.Builder
	var calls []requesty.ToolCall
	for chunk, err := range seq {
		if err != nil {
			return requesty.ChatMessage{}, err
		}
		if chunk.Delta != "" {
			text.WriteString(chunk.Delta)
			_, _ = io.WriteString(out, chunk.Delta)
		}
		if chunk.HasToolCall() {
			calls = append(calls, *chunk.ToolCall)
		}
	}
	if text.Len() > 0 {
		_, _ = fmt.Fprintln(out)
	}
	msg := requesty.NewMessage(requesty.RoleAssistant, text.String())
	msg.ToolCalls = calls
	return msg, nil
}
