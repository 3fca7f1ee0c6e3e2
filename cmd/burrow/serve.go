package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/audit"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/db"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/i18n"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/migrate"
	"github.com/cuemby/burrow/pkg/model"
	"github.com/cuemby/burrow/pkg/router"
	"github.com/cuemby/burrow/pkg/schema"
	"github.com/cuemby/burrow/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Burrow runtime",
	Long: `Start the HTTP listener and the event bus. Tenant namespaces are
created and migrated on first contact; scheduled events persisted by a
previous run are restored before serving.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		return serve(cmd.Context(), configFile)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
}

func serve(ctx context.Context, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel)})
	metrics.SetVersion(Version)

	if err := model.RegisterAll(schema.Default); err != nil {
		return fmt.Errorf("failed to register models: %w", err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	catalogue, err := i18n.Load(cfg.I18nDir, cfg.DefaultLanguage)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.EventsFile)
	bus.Register(events.AuditEventName, audit.NewListener(pool))

	runner := migrate.NewRunner(pool, cfg.MigrationsDir)
	srv := server.New(cfg, pool, bus, runner, catalogue, rootRouter())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithComponent("main").Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// rootRouter serves the runtime's own surface. Applications embedding burrow
// register their routers alongside it.
func rootRouter() *router.Router {
	r := router.New("")
	r.Get("/", func(_ context.Context, _ *http.Request, _ router.Params) ([]byte, error) {
		return json.Marshal(map[string]string{"service": "burrow", "version": Version})
	})
	return r
}
