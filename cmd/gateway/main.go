// Package main is the composition root for the gateway server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"

	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/files"
	"gateway/internal/gateway"
	httpserver "gateway/internal/http"
	"gateway/internal/kb"
	"gateway/internal/provider"
	"gateway/internal/resilience"
	"gateway/internal/routing"
	"gateway/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file (optional)")
	flag.Parse()

	cfg := config.LoadOrDefault(*configPath)

	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	retry := resilience.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		WaitMin:     cfg.Retry.WaitMin(),
		WaitMax:     cfg.Retry.WaitMax(),
	}

	clients := map[domain.Provider]provider.Client{}
	if cfg.OpenAI.APIKey != "" {
		clients[domain.ProviderOpenAI] = provider.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, retry)
		logger.Info("registered provider client", "provider", domain.ProviderOpenAI)
	}

	bedrockClient, err := provider.NewBedrockClient(ctx, cfg.Region, provider.BedrockCredentials{
		StaticAccessKeyID:     cfg.Bedrock.StaticAccessKeyID,
		StaticSecretAccessKey: cfg.Bedrock.StaticSecretAccessKey,
		StaticSessionToken:    cfg.Bedrock.StaticSessionToken,
		ProfileName:           cfg.Bedrock.ProfileName,
		AssumeRoleARN:         cfg.Bedrock.AssumeRoleARN,
		AssumeRoleExternalID:  cfg.Bedrock.AssumeRoleExternalID,
		AssumeRoleSessionName: cfg.Bedrock.AssumeRoleSessionName,
		WebIdentityTokenFile:  cfg.Bedrock.WebIdentityTokenFile,
		WebIdentityRoleARN:    cfg.Bedrock.WebIdentityRoleARN,
	}, retry)
	if err != nil {
		logger.Error("failed to construct bedrock client", "error", err)
		os.Exit(1)
	}
	clients[domain.ProviderBedrock] = bedrockClient
	logger.Info("registered provider client", "provider", domain.ProviderBedrock)

	router := routing.NewRouter(512)

	var injector *files.Injector
	var store files.Store
	if cfg.FilesBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			logger.Error("failed to load AWS config for files store", "error", err)
			os.Exit(1)
		}
		var rootSecret []byte
		if cfg.Files.RootSecret != "" {
			rootSecret = []byte(cfg.Files.RootSecret)
		}
		s3Store := files.NewS3Store(s3.NewFromConfig(awsCfg), cfg.FilesBucket, rootSecret)
		store = s3Store
		injector = files.NewInjector(s3Store, files.InjectorConfig{
			MaxFileBytes:    cfg.Files.MaxFileBytes,
			MaxContextBytes: cfg.Files.MaxContextBytes,
		})
		logger.Info("files subsystem enabled", "bucket", cfg.FilesBucket)
	} else {
		logger.Warn("FILES_BUCKET not configured, files subsystem disabled")
	}

	var retriever *kb.Retriever
	var catalog *kb.Catalog
	var models *provider.ModelCatalog
	if cfg.Region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			logger.Error("failed to load AWS config for kb retriever", "error", err)
			os.Exit(1)
		}
		var cache *kb.SnippetCache
		if cfg.KB.PostgresDSN != "" {
			cache, err = kb.NewSnippetCache(ctx, cfg.KB.PostgresDSN)
			if err != nil {
				logger.Warn("kb snippet cache disabled", "error", err)
				cache = nil
			}
		}
		retriever = kb.NewRetriever(bedrockagentruntime.NewFromConfig(awsCfg), cache)
		catalog = kb.NewCatalog(nil)
		models = provider.NewModelCatalog(bedrock.NewFromConfig(awsCfg))
		logger.Info("kb subsystem enabled")
	} else {
		models = provider.NewModelCatalog(nil)
	}

	svc := &gateway.Service{
		Clients:   clients,
		Router:    router,
		Injector:  injector,
		Retriever: retriever,
		DefaultMaxTokens: gateway.DefaultMaxTokens{
			OpenAI:    cfg.DefaultMaxTokens.OpenAI,
			Anthropic: cfg.DefaultMaxTokens.Anthropic,
			Titan:     cfg.DefaultMaxTokens.Titan,
		},
		Metrics: metrics,
		Logger:  logger,
	}

	server := httpserver.NewServer(cfg, svc, store, catalog, retriever, models)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("gateway listening", "addr", cfg.ListenAddr)
	if err := server.Start(sigCtx, cfg.ListenAddr); err != nil {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}
