package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"labreader/internal/api"
	"labreader/internal/janitor"
	"labreader/internal/logger"
	"labreader/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Example: `  # Serve with config.json from the working directory
  labreader serve

  # Serve with a YAML config on a different port
  LABREADER_ADDR=:8080 labreader serve -c config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("serve")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	janitor.New(a.store, time.Duration(cfg.BasicConfig.TempFileTTL)*time.Minute, logger.WithComponent("janitor")).
		Start(ctx, time.Duration(cfg.BasicConfig.TempCleanInterval)*time.Minute)

	switch strings.ToLower(cfg.BasicConfig.Mode) {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(strings.ToLower(cfg.BasicConfig.Mode))
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	var counter middleware.Counter
	if a.cache != nil {
		counter = a.cache
	}
	handler, err := api.NewHandler(cfg, a.pipeline, a.store, counter, logger.WithComponent("http"))
	if err != nil {
		return err
	}
	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		return err
	}
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
