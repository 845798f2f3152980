package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"wisefido-hrv/common/logger"
	"wisefido-hrv/internal/config"
	"wisefido-hrv/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-hrv")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting wisefido-hrv service",
		zap.String("sample_source", cfg.Sampler.Source),
		zap.Int("sample_rate", cfg.Sampler.Rate),
		zap.Duration("session_duration", cfg.Session.Duration),
		zap.String("publish_topic", cfg.Publish.Topic),
		zap.Bool("kubios_enabled", cfg.Kubios.Enabled),
	)

	// 创建服务
	hrvService, err := service.NewHRVService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create HRV service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := hrvService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start HRV service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	if err := hrvService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
