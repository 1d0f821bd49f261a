// Package cli wires the pf-casino commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MJE43/pf-casino/internal/api"
	"github.com/MJE43/pf-casino/internal/config"
	"github.com/MJE43/pf-casino/internal/games"
	"github.com/MJE43/pf-casino/internal/logging"
	"github.com/MJE43/pf-casino/internal/settle"
	"github.com/MJE43/pf-casino/internal/store"
)

// app is the state shared by the subcommands once the root command has
// loaded the configuration.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	flags struct {
		dbPath    string
		logLevel  string
		logFormat string
		rng       string
	}
}

// NewRootCmd returns the pf-casino command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pf-casino",
		Short:         "Provably fair casino server and tools",
		Version:       fmt.Sprintf("%s (%s, built %s)", api.Version, api.GitCommit, api.BuildTime),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.dbPath, "db", "", "SQLite database path (overrides "+config.Prefix+"DB_PATH)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (overrides "+config.Prefix+"LOG_LEVEL)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "console or json (overrides "+config.Prefix+"LOG_FORMAT)")
	pf.StringVar(&a.flags.rng, "rng", "", "legacy or hmac (overrides "+config.Prefix+"RNG)")

	root.AddCommand(
		newServeCmd(a),
		newVerifyCmd(a),
		newAutobetCmd(a),
		newSessionsCmd(a),
	)
	return root
}

// load reads the environment and applies the flags that were set.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = a.flags.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.flags.logFormat
	}
	if flags.Changed("rng") {
		cfg.RNG = a.flags.rng
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// services are the pieces every command builds on.
type services struct {
	db      *store.Store
	engine  *games.Engine
	settler *settle.Settler
}

func (a *app) open(ctx context.Context) (*services, error) {
	drawer, err := a.cfg.Drawer()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, a.cfg.DBPath, a.logger)
	if err != nil {
		return nil, err
	}
	return &services{
		db:      db,
		engine:  games.NewEngine(drawer),
		settler: settle.New(db, db, settle.WithLogger(a.logger)),
	}, nil
}

func (s *services) Close() error {
	return s.db.Close()
}
