package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
)

func newBatchCmd(a *app) *cobra.Command {
	var concurrency int
	var failFast bool
	cmd := &cobra.Command{
		Use:   "batch [prompt...]",
		Short: "Send independent prompts concurrently over one shared session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answers := make([]string, len(args))
			errs := make([]error, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(concurrency, 1))
			for i, prompt := range args {
				g.Go(func() error {
					params := requesty.NewChatParams([]requesty.ChatMessage{requesty.NewMessage(requesty.RoleUser, prompt)})
					resp, err := a.llm.Chat(ctx, params)
					if err != nil {
						errs[i] = err
						if failFast {
							return err
						}
						return nil
					}
					answers[i] = adapter.TextFromParts(resp.Message.Content)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := 0
			for i := range args {
				if errs[i] != nil {
					failed++
					_, _ = fmt.Fprintf(out, "[%d] error: %v\n", i+1, errs[i])
					continue
				}
				_, _ = fmt.Fprintf(out, "[%d] %s\n", i+1, answers[i])
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d prompts failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "maximum requests in flight")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "cancel remaining prompts after the first failure")
	return cmd
}
