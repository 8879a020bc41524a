package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/chrysalis/internal/config"
	"github.com/lazypower/chrysalis/internal/engine"
	"github.com/lazypower/chrysalis/internal/logging"
	"github.com/lazypower/chrysalis/internal/metrics"
	"github.com/lazypower/chrysalis/internal/server"
	"github.com/lazypower/chrysalis/internal/store"
)

const (
	ollamaDims      = 768
	shutdownTimeout = 5 * time.Second
)

var (
	serveBind string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "listen address (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveBind != "" {
		cfg.Server.Bind = serveBind
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(db, log, metrics.NewCollector("chrysalis"))
	eng.SetOptions(engineOptions(cfg))

	emb, err := selectEmbedder(ctx, cfg.Embedding, db, log)
	if err != nil {
		log.Warn("embedder unavailable, echoes disabled", zap.Error(err))
	} else if emb != nil {
		eng.SetEmbedder(emb)
		log.Info("embedder ready", zap.String("model", emb.Model()))
		go embedMissing(eng, owner(cfg))
	}

	watchDone := watchConfig(ctx, eng, log)

	srv := server.New(eng, server.Options{
		Version:     VersionString(),
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("chrysalis serving",
			zap.String("addr", httpServer.Addr),
			zap.String("db", db.Path),
			zap.String("version", VersionString()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	err = g.Wait()
	stop()
	if watchDone != nil {
		<-watchDone
	}
	return err
}

// engineOptions maps config onto the orchestrator's runtime options.
func engineOptions(cfg config.Config) engine.Options {
	return engine.Options{
		Detect:       cfg.Detect,
		AutoConfirm:  cfg.Orchestrator.AutoConfirm,
		MessageLimit: cfg.Orchestrator.MessageLimit,
	}
}

// selectEmbedder builds the configured embedder. "auto" prefers Ollama and
// falls back to TF-IDF over the stored essences. Network embedders sit
// behind a circuit breaker.
func selectEmbedder(ctx context.Context, cfg config.EmbeddingConfig, db *store.DB, log *zap.Logger) (engine.Embedder, error) {
	ollama := func() engine.Embedder {
		return engine.NewBreakerEmbedder(
			engine.NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, ollamaDims),
			engine.DefaultBreakerSettings(), log)
	}

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "ollama":
		return ollama(), nil
	case "tfidf":
		return engine.NewTFIDFEmbedder(ctx, db, cfg.MaxTerms)
	default:
		if engine.OllamaReachable(ctx, cfg.OllamaURL, cfg.Model) {
			return ollama(), nil
		}
		log.Info("ollama not reachable, using tfidf", zap.String("url", cfg.OllamaURL))
		return engine.NewTFIDFEmbedder(ctx, db, cfg.MaxTerms)
	}
}

func embedMissing(eng *engine.Engine, ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	n, err := eng.EmbedMissing(ctx, ownerID)
	if err != nil {
		eng.Log.Warn("embed missing", zap.Error(err))
		return
	}
	if n > 0 {
		eng.Log.Info("embedded missing essences", zap.Int("count", n), zap.String("owner", ownerID))
	}
}

// watchConfig hot-reloads orchestrator options. It returns nil when the
// config file can't be watched.
func watchConfig(ctx context.Context, eng *engine.Engine, log *zap.Logger) <-chan struct{} {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil
		}
	}
	done, err := config.Watch(ctx, path, log, func(c config.Config) {
		eng.SetOptions(engineOptions(c))
		log.Info("config reloaded",
			zap.Float64("micro_intensity", c.Detect.MicroIntensity),
			zap.Float64("evolution_delta", c.Detect.EvolutionDelta),
			zap.Bool("auto_confirm", c.Orchestrator.AutoConfirm))
	})
	if err != nil {
		log.Debug("config watch disabled", zap.String("path", path), zap.Error(err))
		return nil
	}
	return done
}
