package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"image-similarity/config"
	"image-similarity/internal/api/rest"
	"image-similarity/internal/api/telegram"
	app "image-similarity/internal/application"
	"image-similarity/internal/container"
	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
	"image-similarity/internal/infrastructure/features"
	"image-similarity/internal/infrastructure/storage"
	"image-similarity/internal/infrastructure/vision"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Модели загружаются один раз и дальше только читаются
	registry, err := features.LoadRegistry(map[entity.ModelKind]features.ModelSpec{
		entity.ModelResNet50:  {Path: cfg.ResNet50Model, OutputLayer: cfg.ResNet50Output},
		entity.ModelMobileNet: {Path: cfg.MobileNetModel, OutputLayer: cfg.MobileNetOutput},
	})
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}
	defer registry.Close()

	matcher, err := newMatcher(cfg)
	if err != nil {
		log.Fatalf("Failed to create matcher: %v", err)
	}

	appContainer := container.New(storage.NewMemoryUserRepository(), container.Components{
		Normalizer: vision.NewNormalizer(cfg.CanvasWidth, cfg.CanvasHeight, cfg.MaxUploadBytes, cfg.MaxPixels),
		Extractors: registry,
		Semantic:   features.NewCosineScorer(),
		Structural: vision.NewSSIMScorer(cfg.SSIMWindow, cfg.SSIMStride),
		Matcher:    matcher,
		Renderer:   vision.NewRenderer(cfg.HeatmapAlpha),
	}, app.ComparisonConfig{
		DefaultExtractor:  cfg.Extractor(),
		DefaultPolicy:     cfg.ResizePolicy(),
		DefaultMaxMatches: cfg.DefaultMaxMatches,
		MaxMatchesCeiling: cfg.MaxMatchesCeiling,
		MaxBytes:          cfg.MaxUploadBytes,
		Timeout:           cfg.RequestTimeout,
	})

	// Бот запускается, только если задан токен
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, appContainer, cfg.MaxUploadBytes)
		if err != nil {
			log.Fatalf("Failed to create bot: %v", err)
		}
		go func() {
			log.Println("Bot is running...")
			if err := bot.Run(ctx); err != nil {
				log.Printf("Bot error: %v", err)
			}
		}()
	}

	handler := rest.NewHandler(appContainer.ComparisonService, registry, cfg.MaxUploadBytes)
	// Два файла плюс поля формы
	server := rest.NewApp(handler, int(2*cfg.MaxUploadBytes+1<<20))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
	if err := server.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}

func newMatcher(cfg *config.Config) (port.KeypointMatcher, error) {
	if cfg.MatcherBackend == config.MatcherGoCV {
		m, err := vision.NewGoCVMatcher(cfg.ORBFeatures, cfg.ORBRatio)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return vision.NewORBMatcher(cfg.ORBFeatures, cfg.ORBRatio), nil
}
