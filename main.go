package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duumgate/internal/api"
	"duumgate/internal/cache"
	"duumgate/internal/config"
	"duumgate/internal/duum"
	"duumgate/internal/llm"
	"duumgate/internal/pipeline"
	"duumgate/internal/proposal"
	"duumgate/internal/vision"
	"duumgate/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("DUUM_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := cache.Open(ctx, cfg)
	defer store.Close()
	log.Printf("cache backend: %s (available=%t)", cfg.Cache.Backend, store.Available())

	keyEnv := config.ProviderKeyEnv(cfg.Vision.Provider)
	backend, err := llm.New(ctx, cfg)
	switch {
	case errors.Is(err, llm.ErrNoCredential):
		log.Printf("vision provider %s: %s is not set, extraction will report it", cfg.Vision.Provider, keyEnv)
		backend = nil
	case err != nil:
		log.Fatalf("init vision provider: %v", err)
	}

	extractor, err := vision.NewClient(backend, vision.Options{
		KeyEnv:          keyEnv,
		Model:           cfg.Vision.Model,
		MaxOutputTokens: cfg.Vision.MaxOutputTokens,
	})
	if err != nil {
		log.Fatalf("init extraction client: %v", err)
	}
	dispatcher := worker.NewDispatcher(extractor, cfg.BasicConfig.MaxWorkers, cfg.BasicConfig.QueueSize)

	engine := pipeline.NewEngine(store, dispatcher, pipeline.Options{
		VisionEnabled: cfg.BasicConfig.VisionEnabled,
		MaxBatchSize:  cfg.Vision.MaxBatchSize,
		TTL:           cfg.CacheTTL(),
	})

	proposals := proposal.NewService(backend, duum.NewClient(cfg.Duum.BaseURL, cfg.Duum.Token, nil), proposal.Options{
		SystemPrompt:    cfg.Duum.SystemPrompt,
		Model:           cfg.Vision.ProposalModel,
		MaxOutputTokens: cfg.Vision.ProposalMaxOutputTokens,
		KeyEnv:          keyEnv,
	})

	handlers := api.NewHandler(engine, proposals, api.Options{
		MaxFiles:       cfg.BasicConfig.MaxFiles,
		MaxUploadBytes: int64(cfg.BasicConfig.MaxUploadMB) << 20,
		AllowedOrigins: cfg.BasicConfig.AllowedOrigins,
	})

	router := gin.New()
	router.Use(gin.Logger())
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.BasicConfig.ServerAddress,
		Handler: router,
	}
	go func() {
		log.Printf("listening on %s (vision_enabled=%t)", srv.Addr, cfg.BasicConfig.VisionEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	dispatcher.Close()
	engine.Flush()
}
