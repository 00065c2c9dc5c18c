package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i5heu/maelstrom-node/internal/config"
	"github.com/i5heu/maelstrom-node/internal/handlers"
	"github.com/i5heu/maelstrom-node/internal/transport"
	"github.com/i5heu/maelstrom-node/pkg/logging"
	"github.com/i5heu/maelstrom-node/pkg/node"
)

const (
	logKeyHandlers     = "handlers"
	logKeyKinds        = "kinds"
	logKeyMaxLineBytes = "maxLineBytes"
	logKeySignal       = "signal"
	logKeyError        = "error"
	logKeyComponent    = "component"
)

func main() { // A
	cmd := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cliFlags holds the raw command line values.
type cliFlags struct { // A
	configPath   string
	envFile      string
	logLevel     string
	logFormat    string
	handlers     string
	maxLineBytes int
}

func newRootCmd( // A
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
) *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:   "maelnode",
		Short: "maelnode - line-oriented JSON message node",
		Long: `maelnode reads one JSON envelope per line from stdin, runs the
init handshake, dispatches every other message to the enabled handlers
and writes the resulting envelopes to stdout, one per line. Logs go to
stderr.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(
				cmd.Context(),
				syscall.SIGINT,
				syscall.SIGTERM,
			)
			defer stop()
			return run(ctx, cfg, stdin, stdout, stderr)
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "YAML config file")
	f.StringVar(&flags.envFile, "env-file", ".env", "optional .env file")
	f.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&flags.logFormat, "log-format", "", "tint, text or json")
	f.StringVar(&flags.handlers, "handlers", "",
		"comma list of echo, unique-ids, counter-ids")
	f.IntVar(&flags.maxLineBytes, "max-line-bytes", 0,
		"drop inbound lines longer than this")
	return cmd
}

// resolveConfig layers file, .env, environment and flags,
// in that order.
func resolveConfig( // A
	cmd *cobra.Command,
	flags cliFlags,
) (config.Config, error) {
	if err := config.LoadEnvFile(flags.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if f.Changed("log-format") {
		cfg.LogFormat = flags.logFormat
	}
	if f.Changed("handlers") {
		cfg.Handlers = config.SplitList(flags.handlers)
	}
	if f.Changed("max-line-bytes") {
		cfg.MaxLineBytes = flags.maxLineBytes
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run( // A
	ctx context.Context,
	cfg config.Config,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger, err := logging.New(stderr, logging.Options{
		Level:  level,
		Format: cfg.LogFormat,
	})
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg.Handlers)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting node",
		logKeyHandlers, cfg.Handlers,
		logKeyKinds, registry.Kinds(),
		logKeyMaxLineBytes, cfg.MaxLineBytes)

	svc := node.NewService(registry, logger.With(logKeyComponent, "service"))
	tr := transport.NewLineTransport(stdin, stdout, transport.Config{
		MaxLineBytes: cfg.MaxLineBytes,
		Logger:       logger.With(logKeyComponent, "transport"),
	})

	if err := tr.Run(ctx, svc); err != nil {
		if ctx.Err() != nil {
			logger.InfoContext(context.Background(), "shutting down",
				logKeySignal, context.Cause(ctx).Error())
			return nil
		}
		logger.ErrorContext(context.Background(), "node stopped",
			logKeyError, err.Error())
		return err
	}
	return nil
}

// buildRegistry registers the named handlers in the
// given order.
func buildRegistry(names []string) (*node.Registry, error) { // A
	registry := node.NewRegistry()
	for _, name := range names {
		var h node.Handler
		switch name {
		case config.HandlerEcho:
			h = handlers.NewEcho()
		case config.HandlerUniqueIDs:
			h = handlers.NewUniqueID()
		case config.HandlerCounterIDs:
			h = handlers.NewCounterID()
		default:
			return nil, fmt.Errorf("unknown handler %q", name)
		}
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
	}
	return registry, nil
}
