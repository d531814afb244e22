// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/a1s/gridsource/internal/config"
	"github.com/a1s/gridsource/internal/config/data"
	"github.com/a1s/gridsource/internal/dao"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/a1s/gridsource/internal/view"
)

const (
	appName    = "gridsource"
	appVersion = "0.1.0"
)

var (
	gridFlags *data.Flags
	rootCmd   = &cobra.Command{
		Use:   appName + " [location|alias]",
		Short: "A terminal grid over pluggable data sources",
		Long: `gridsource shows the records of a data source in a terminal grid and
follows its changes. Sources are addressed by location, e.g.
file:///tmp/colors.json, bolt:///tmp/grid.db?table=colors,
postgres://user@host/db?table=users or cloudcontrol://AWS::EC2::VPC.`,
		Args: cobra.MaximumNArgs(1),
		RunE: run,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, appVersion)
		},
	}
)

func init() {
	gridFlags = config.NewFlags()
	initGridFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(versionCmd, eventsCmd)
}

func initGridFlags(ff *pflag.FlagSet) {
	ff.StringVar(gridFlags.ConfigFile, "config", "", "Config file path")
	ff.StringVarP(gridFlags.Table, "table", "t", "", "Table, bucket prefix or resource type to show")
	ff.StringVarP(gridFlags.Key, "key", "k", config.DefaultKey, "Record field holding the id")
	ff.IntVar(gridFlags.PageSize, "page-size", config.DefaultPageSize, "Records fetched per backend page")
	ff.Float32VarP(gridFlags.RefreshRate, "refresh", "r", config.DefaultRefreshRate, "Refresh rate in seconds, 0 disables watching")
	ff.StringVar(gridFlags.RangePolicy, "range-policy", config.DefaultRangePolicy, "Out of bounds range handling (strict, clamp)")
	ff.BoolVar(gridFlags.ReadOnly, "readonly", false, "Enable read-only mode")
	ff.BoolVar(gridFlags.Write, "write", false, "Enable write mode (overrides readonly)")
	ff.StringVarP(gridFlags.LogLevel, "logLevel", "l", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	ff.StringVar(gridFlags.LogFile, "logFile", "", "Log file path")

	// AWS-specific flags
	ff.StringVar(gridFlags.Profile, "profile", "", "AWS profile to use")
	ff.StringVar(gridFlags.Region, "region", "", "AWS region to use")
}

// changedFlags returns the flags given on the command line, the others nil.
func changedFlags(cmd *cobra.Command) *data.Flags {
	ff := cmd.Flags()
	set := func(name string) bool { return ff.Changed(name) }

	f := data.Flags{ConfigFile: gridFlags.ConfigFile}
	if set("table") {
		f.Table = gridFlags.Table
	}
	if set("key") {
		f.Key = gridFlags.Key
	}
	if set("page-size") {
		f.PageSize = gridFlags.PageSize
	}
	if set("refresh") {
		f.RefreshRate = gridFlags.RefreshRate
	}
	if set("range-policy") {
		f.RangePolicy = gridFlags.RangePolicy
	}
	if set("readonly") {
		f.ReadOnly = gridFlags.ReadOnly
	}
	if set("write") {
		f.Write = gridFlags.Write
	}
	if set("logLevel") {
		f.LogLevel = gridFlags.LogLevel
	}
	if set("logFile") {
		f.LogFile = gridFlags.LogFile
	}
	if set("profile") {
		f.Profile = gridFlags.Profile
	}
	if set("region") {
		f.Region = gridFlags.Region
	}

	return &f
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session is a loaded configuration along with the source it designates.
type session struct {
	cfg      *config.Config
	location string
	src      dao.Source
}

// openSession resolves the configuration and opens the requested source.
// logFile is used when neither the config nor the flags name one.
func openSession(ctx context.Context, cmd *cobra.Command, args []string, logFile string) (*session, error) {
	if err := config.InitLocs(); err != nil {
		return nil, fmt.Errorf("failed to initialize locations: %w", err)
	}

	flags := changedFlags(cmd)
	path := config.AppConfigFile
	if config.IsStringSet(flags.ConfigFile) {
		path = *flags.ConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Override(flags)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.LogFile == "" {
		cfg.LogFile = logFile
	}
	if err := config.InitLogLoc(cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to initialize log location: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, err
	}

	aliases := config.NewAliases()
	if err := aliases.Load(); err != nil {
		logger.Warn("Cannot load aliases", zap.String("path", config.AppAliasesFile), zap.Error(err))
	}
	location := cfg.Source
	if len(args) > 0 {
		location = args[0]
	}
	if location == "" {
		return nil, errors.New("no source location given")
	}
	location = aliases.Resolve(location)

	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	logger.Info("Opening data source", zap.String("location", location), zap.Bool("readOnly", opts.ReadOnly))
	src, err := dao.NewFactory(opts).Open(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}

	return &session{cfg: cfg, location: location, src: src}, nil
}

func (s *session) Close() {
	if err := s.src.Close(); err != nil {
		logger.Warn("Cannot close data source", zap.String("location", s.location), zap.Error(err))
	}
	_ = logger.Sync()
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(ctx, cmd, args, config.AppLogFile)
	if err != nil {
		return err
	}
	defer s.Close()

	app := view.NewApp(s.location, s.src, view.AppOptions{Watch: s.cfg.RefreshRate > 0})
	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	go func() {
		<-ctx.Done()
		app.Stop()
	}()

	return app.Run()
}
