package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nongbuhae/cropdoc/cmd/migrate"
	"github.com/nongbuhae/cropdoc/cmd/notify"
	"github.com/nongbuhae/cropdoc/cmd/seed"
	"github.com/nongbuhae/cropdoc/cmd/serve"
	"github.com/nongbuhae/cropdoc/cmd/token"
	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/errors"
	"github.com/nongbuhae/cropdoc/internal/logger"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string
	BuildDate string
}

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, info BuildInfo) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "cropdoc",
		Short:         "Crop disease diagnosis service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		migrate.Command(settings),
		seed.Command(settings),
		token.Command(settings),
		notify.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := conf.LoadFrom(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		settings.Version = info.Version
		settings.BuildDate = info.BuildDate
		return initialize(settings)
	}

	return rootCmd
}

// initialize sets up logging and error telemetry once the settings are
// known.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if _, err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, settings.Version); err != nil {
		// telemetry is optional
		cl.Module("main").Warn("sentry disabled", logger.Error(err))
	}
	return nil
}
