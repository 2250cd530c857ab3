package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceproc/internal/config"
	"github.com/kozaktomas/faceproc/internal/facematch"
	"github.com/kozaktomas/faceproc/internal/logger"
	"github.com/kozaktomas/faceproc/internal/web"
	"github.com/kozaktomas/faceproc/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the faceproc HTTP API.

The API decodes raw detector outputs, runs non-maximum suppression and
matches descriptors against the gallery. Enrollment needs DATABASE_URL;
a GALLERY_PATH gallery is served read-only.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8085)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
}

// loadServeIndex loads the persisted HNSW index of the gallery, rebuilding it when
// the file does not match.
func loadServeIndex(gallery *handlers.Gallery, path string, log *zap.Logger) {
	if path == "" {
		return
	}
	idx, err := facematch.LoadIndex(path, gallery.Matcher())
	if err != nil {
		log.Warn("failed to load HNSW index, rebuilding", zap.String("path", path), zap.Error(err))
		idx = facematch.BuildIndex(gallery.Matcher())
	}
	gallery.UseIndex(idx)
	log.Info("HNSW index ready", zap.String("path", path), zap.Int("descriptors", idx.Len()))
}

// resolveServeHostPort applies the command line overrides to the web config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	log := logger.Get()
	defer log.Sync() //nolint:errcheck // stdout sync fails on some terminals

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, err := openGallery(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open gallery: %w", err)
	}
	defer g.Close()

	gallery := handlers.NewGallery(g.matcher, g.store)
	loadServeIndex(gallery, cfg.Matcher.IndexPath, log)
	resolveServeHostPort(cmd, cfg)

	server := web.NewServer(cfg, gallery, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		if cfg.Matcher.IndexPath != "" {
			if err := gallery.Index().Save(cfg.Matcher.IndexPath); err != nil {
				log.Warn("failed to save HNSW index", zap.Error(err))
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting faceproc API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
