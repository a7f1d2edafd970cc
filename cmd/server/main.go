package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chat-agent/handler"
	"chat-agent/internal/boltstore"
	"chat-agent/internal/config"
	"chat-agent/internal/integrations/openai"
	"chat-agent/internal/integrations/paramstore"
	"chat-agent/internal/logger"
	"chat-agent/internal/metrics"
	"chat-agent/internal/repository"
	"chat-agent/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type chatStore interface {
	usecase.ConversationStore
	usecase.MessageStore
}

func main() {
	loadEnvFiles()
	bootLog := zerolog.New(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	log, err := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to build logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, keys, closeStore, err := buildBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := openai.NewClient(keys,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithModel(cfg.OpenAIModel),
		openai.WithTimeout(cfg.CompletionTimeout),
	)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chat, err := usecase.NewChatService(store, store, gateway,
		usecase.WithLogger(log),
		usecase.WithHistoryWindow(cfg.HistoryWindow),
		usecase.WithMaxMessageLength(cfg.MaxMessageLength),
		usecase.WithTurnObserver(metrics.NewRecorder(reg)),
	)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router, err := handler.NewRouter(chat, log)
	if err != nil {
		return err
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("backend", cfg.StoreBackend).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildBackends opens the configured store and picks the API key source. AWS
// configuration is only loaded when DynamoDB or SSM is actually used.
func buildBackends(ctx context.Context, cfg *config.Config) (chatStore, openai.KeySource, func(), error) {
	var keys openai.KeySource = openai.StaticKey(cfg.OpenAIAPIKey)
	needAWS := cfg.StoreBackend == config.BackendDynamoDB || cfg.OpenAIAPIKey == ""

	var awsSSM *awsssm.Client
	var awsDynamo *awsdynamodb.Client
	if needAWS {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		awsSSM = awsssm.NewFromConfig(awsCfg)
		awsDynamo = awsdynamodb.NewFromConfig(awsCfg)
	}

	if cfg.OpenAIAPIKey == "" {
		ssmClient, err := paramstore.New(awsSSM)
		if err != nil {
			return nil, nil, nil, err
		}
		if keys, err = paramstore.NewTokenSource(ssmClient, cfg.ParamPrefix); err != nil {
			return nil, nil, nil, err
		}
	}

	if cfg.StoreBackend == config.BackendBolt {
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, keys, func() { _ = db.Close() }, nil
	}

	repo, err := repository.New(awsDynamo, cfg.StateTable)
	if err != nil {
		return nil, nil, nil, err
	}
	return repo, keys, func() {}, nil
}

// loadEnvFiles loads .env files for local runs. File values override the
// process environment.
func loadEnvFiles() {
	for _, path := range []string{".env", "../.env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
	}
}
