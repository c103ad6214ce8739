package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter"
)

var errDivideByZero = errors.New("division by zero")

var calculatorTool = requesty.ToolDefinition{
	Name:        "calculator",
	Description: "Evaluates a binary arithmetic operation on two numbers.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op": map[string]any{"type": "string", "enum": []string{"add", "sub", "mul", "div"}},
			"a":  map[string]any{"type": "number"},
			"b":  map[string]any{"type": "number"},
		},
		"required":             []string{"op", "a", "b"},
		"additionalProperties": false,
	},
}

type calcArgs struct {
	Op string  `json:"op"`
	A  float64 `json:"a"`
	B  float64 `json:"b"`
}

func calculate(call requesty.ToolCall) (string, error) {
	raw, err := call.ArgumentsJSON()
	if err != nil {
		return "", err
	}
	var args calcArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("calculator: %w", err)
	}
	var v float64
	switch args.Op {
	case "add":
		v = args.A + args.B
	case "sub":
		v = args.A - args.B
	case "mul":
		v = args.A * args.B
	case "div":
		if args.B == 0 {
			return "", errDivideByZero
		}
		v = args.A / args.B
	default:
		return "", fmt.Errorf("calculator: unknown op %q", args.Op)
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

func newToolsCmd(a *app) *cobra.Command {
	var stream bool
	var maxRounds int
	cmd := &cobra.Command{
		Use:   "tools [prompt...]",
		Short: "Answer with a local calculator tool the model can call",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			msgs := []requesty.ChatMessage{
				requesty.NewMessage(requesty.RoleSystem, "Use the calculator tool for every arithmetic step."),
				requesty.NewMessage(requesty.RoleUser, strings.Join(args, " ")),
			}
			for round := range maxRounds {
				params := requesty.NewChatParams(msgs, requesty.WithTools(calculatorTool))
				reply, err := exchange(cmd.Context(), a.llm, params, stream, out)
				if err != nil {
					return err
				}
				if len(reply.ToolCalls) == 0 {
					return nil
				}
				msgs = append(msgs, reply)
				for _, call := range reply.ToolCalls {
					result, err := calculate(call)
					res := requesty.NewToolResultMessage(call.ID, result)
					if err != nil {
						res = requesty.NewToolResultMessage(call.ID, "error: "+err.Error())
						res.ToolResult.IsError = true
					}
					a.logger.Info("tool call", "round", round, "id", call.ID, "result", adapter.TextFromParts(res.Content))
					msgs = append(msgs, res)
				}
			}
			return fmt.Errorf("no final answer after %d rounds", maxRounds)
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "stream replies and assemble tool calls incrementally")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 5, "maximum request/tool rounds")
	return cmd
}
