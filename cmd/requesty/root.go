package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skosovsky/requesty"
	"github.com/skosovsky/requesty/adapter/openai"
	"github.com/skosovsky/requesty/config"
	"github.com/skosovsky/requesty/ext/otelrequesty"
)

// llmFactory builds the model used by every command.
type llmFactory func(opts []openai.Option) requesty.ToolCallLLM

func newRouterLLM(opts []openai.Option) requesty.ToolCallLLM {
	return otelrequesty.Wrap(openai.New(opts...))
}

// app carries flags and the model shared by subcommands.
type app struct {
	configPath string
	profile    string
	profileEnv string
	profileDir string
	model      string
	envFile    string
	logLevel   string

	factory llmFactory
	logger  *slog.Logger
	cfg     *config.Config
	llm     requesty.ToolCallLLM
}

func newRootCmd(factory llmFactory) *cobra.Command {
	a := &app{factory: factory}
	root := &cobra.Command{
		Use:           "requesty",
		Short:         "Chat with models behind the Requesty router",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context(), cmd.ErrOrStderr())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML config file (model, model_config, session)")
	pf.StringVarP(&a.profile, "profile", "p", "", "named profile resolved from --profile-dir")
	pf.StringVar(&a.profileEnv, "env", "", "profile environment, e.g. prod selects <profile>.prod.yaml")
	pf.StringVar(&a.profileDir, "profile-dir", "profiles", "directory holding profile files")
	pf.StringVarP(&a.model, "model", "m", "", "model override, e.g. openai/gpt-4o-mini")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (default $LOG_LEVEL or warn)")

	root.MarkFlagsMutuallyExclusive("config", "profile")

	root.AddCommand(
		newChatCmd(a),
		newToolsCmd(a),
		newExtractCmd(a),
		newBatchCmd(a),
	)
	return root
}

func (a *app) setup(ctx context.Context, stderr io.Writer) error {
	if err := loadDotEnv(a.envFile); err != nil {
		return fmt.Errorf("load %s: %w", a.envFile, err)
	}
	level, err := parseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var opts []openai.Option
	switch {
	case a.configPath != "":
		cfg, err := config.ParseFile(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	case a.profile != "":
		cfg, err := config.NewRegistry(os.DirFS(a.profileDir), ".").Get(ctx, a.profile, a.profileEnv)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.cfg != nil {
		opts = append(opts, a.cfg.Options()...)
	}
	if a.model != "" {
		opts = append(opts, openai.WithModel(a.model))
	}
	opts = append(opts, openai.WithLogger(a.logger))
	a.llm = a.factory(opts)
	return nil
}

// configTools returns tools declared in the config file, if any.
func (a *app) configTools() []requesty.ToolDefinition {
	if a.cfg == nil {
		return nil
	}
	return a.cfg.Tools
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		s = os.Getenv("LOG_LEVEL")
	}
	if s == "" {
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
