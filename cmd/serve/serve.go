// Package serve runs the diagnosis API server.
package serve

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nongbuhae/cropdoc/internal/api"
	"github.com/nongbuhae/cropdoc/internal/auth"
	"github.com/nongbuhae/cropdoc/internal/classifier"
	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/datastore"
	"github.com/nongbuhae/cropdoc/internal/diagnosis"
	"github.com/nongbuhae/cropdoc/internal/disease"
	"github.com/nongbuhae/cropdoc/internal/logger"
	"github.com/nongbuhae/cropdoc/internal/ncpms"
	"github.com/nongbuhae/cropdoc/internal/notification"
	"github.com/nongbuhae/cropdoc/internal/observability"
	"github.com/nongbuhae/cropdoc/internal/storage"
)

const shutdownTimeout = 30 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the diagnosis API server",
		Long:  "Start the HTTP API and serve until SIGINT or SIGTERM, then drain in-flight requests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Run(ctx, settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}
	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("port", viper.GetString("webserver.port"), "Port to listen on")
	cmd.Flags().Bool("metrics", viper.GetBool("webserver.metrics"), "Expose Prometheus metrics on /metrics")

	if err := viper.BindPFlag("webserver.port", cmd.Flags().Lookup("port")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("webserver.metrics", cmd.Flags().Lookup("metrics")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

// Run wires every component from settings and serves until ctx is done.
func Run(ctx context.Context, settings *conf.Settings) error {
	log := logger.Global().Module("main")
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	store, err := datastore.New(settings)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("error closing database", logger.Error(err))
		}
	}()

	reference, err := ncpms.NewClient(NCPMSConfig(&settings.NCPMS))
	if err != nil {
		return err
	}
	reference.SetMetrics(m.NCPMS)
	resolver := disease.NewResolver(disease.NewLocalStore(store), reference, settings.Resolver.CacheTTL)

	// SIGHUP after a reseed makes new reference rows visible at once.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go FlushOnSignal(ctx, hup, resolver)

	objects, err := storage.New(ctx, &settings.Storage)
	if err != nil {
		return err
	}
	if c, ok := objects.(io.Closer); ok {
		defer c.Close()
	}

	model, err := classifier.New(&settings.Classifier)
	if err != nil {
		return err
	}
	defer model.Close()

	dispatcher, err := notification.NewDispatcherFromConfig(&settings.Notification, m.Notification)
	if err != nil {
		return err
	}

	svc, err := diagnosis.NewService(diagnosis.ConfigFromSettings(settings), diagnosis.Deps{
		Users:      store,
		Records:    store,
		Storage:    objects,
		Classifier: model,
		Resolver:   resolver,
		Notifier:   dispatcher,
		Metrics:    m.Diagnosis,
	})
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(&settings.Auth)
	if err != nil {
		return err
	}

	server, err := api.New(settings,
		api.WithDiagnosisService(svc),
		api.WithTokenValidator(tokens),
		api.WithMetrics(m),
		api.WithHealthCheck("database", func(ctx context.Context) error {
			_, err := store.CountDiseases(ctx)
			return err
		}),
	)
	if err != nil {
		return err
	}

	server.Start()
	log.Info("cropdoc started",
		logger.String("version", settings.Version),
		logger.String("database", settings.Database.Type),
		logger.String("storage", settings.Storage.Backend),
		logger.String("classifier", settings.Classifier.Backend),
		logger.Any("notifiers", dispatcher.Providers()))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case serveErr = <-server.Errors():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Warn("notifications still pending at shutdown", logger.Error(err))
	}
	return serveErr
}

// Flusher drops cached state.
type Flusher interface {
	Flush()
}

// FlushOnSignal flushes c every time sig fires, until ctx is done.
func FlushOnSignal(ctx context.Context, sig <-chan os.Signal, c Flusher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			c.Flush()
		}
	}
}

// NCPMSConfig maps settings onto the client defaults. An empty base URL and
// zero timeout or burst keep the defaults; a zero rate limit disables
// limiting.
func NCPMSConfig(s *conf.NCPMSSettings) ncpms.Config {
	cfg := ncpms.DefaultConfig()
	cfg.APIKey = s.APIKey
	cfg.RateLimit = s.RateLimit
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout
	}
	if s.Burst > 0 {
		cfg.Burst = s.Burst
	}
	return cfg
}
