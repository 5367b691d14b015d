// main.go
// In main.go we wire everything together: logging, configuration, and the
// cobra commands. `serve` runs the relay; `connect` is a small terminal client
// for poking at a running relay.

package main

import (
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel string
	debug    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("relay exited")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Real-time WebSocket message relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadDotEnv(); err != nil {
				return err
			}
			return setupLogging(cmd.ErrOrStderr(), opts.logLevel, opts.debug)
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "verbose per-message logging")

	root.AddCommand(newServeCommand(opts), newConnectCommand())
	return root
}

// setupLogging installs the global console logger. debug forces the debug
// level regardless of level.
func setupLogging(w io.Writer, level string, debug bool) error {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return errors.Wrapf(err, "parse log level %q", level)
		}
		lvl = parsed
	}
	if debug {
		lvl = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).
		With().
		Timestamp().
		Logger()
	return nil
}

type serveOptions struct {
	configPath     string
	port           string
	path           string
	closePolicy    string
	allowedOrigins []string
}

func newServeCommand(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if root.logLevel != "" {
				cfg.LogLevel = root.logLevel
			}
			if root.debug {
				cfg.Debug = true
			}
			if err := cfg.Validate(); err != nil {
				return errors.Wrap(err, "validate config")
			}
			if err := setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.Debug); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return NewServer(cfg).Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&opts.port, "port", "", "listen port (default $PORT or "+DefaultPort+")")
	f.StringVar(&opts.path, "path", "", "websocket route (default "+DefaultPath+")")
	f.StringVar(&opts.closePolicy, "close-policy", "", "registry effect of a closing connection: reset-all or remove-self")
	f.StringSliceVar(&opts.allowedOrigins, "allowed-origins", nil, "allowed websocket origins (empty allows all)")
	return cmd
}

// apply overrides cfg with flags the operator set explicitly.
func (o *serveOptions) apply(cmd *cobra.Command, cfg *Config) {
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.Port = o.port
	}
	if f.Changed("path") {
		cfg.Path = o.path
	}
	if f.Changed("close-policy") {
		cfg.ClosePolicy = ClosePolicy(o.closePolicy)
	}
	if f.Changed("allowed-origins") {
		cfg.AllowedOrigins = o.allowedOrigins
	}
}
