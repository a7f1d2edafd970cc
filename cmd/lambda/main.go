package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"chat-agent/handler"
	"chat-agent/internal/config"
	"chat-agent/internal/integrations/openai"
	"chat-agent/internal/integrations/paramstore"
	"chat-agent/internal/logger"
	"chat-agent/internal/repository"
	"chat-agent/internal/usecase"
)

func main() {
	ctx := context.Background()
	bootLog := zerolog.New(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	if cfg.StoreBackend != config.BackendDynamoDB {
		bootLog.Fatal().Str("backend", cfg.StoreBackend).Msg("the lambda function only supports the dynamodb backend")
	}

	log, err := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("failed to build logger")
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}

	// ---- Clients ----
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create state client")
	}

	var keys openai.KeySource = openai.StaticKey(cfg.OpenAIAPIKey)
	if cfg.OpenAIAPIKey == "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create SSM client")
		}
		keys, err = paramstore.NewTokenSource(ssmClient, cfg.ParamPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create token source")
		}
	}

	gateway, err := openai.NewClient(keys,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithModel(cfg.OpenAIModel),
		openai.WithTimeout(cfg.CompletionTimeout),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create completion client")
	}

	// ---- Handler ----
	chat, err := usecase.NewChatService(store, store, gateway,
		usecase.WithLogger(log),
		usecase.WithHistoryWindow(cfg.HistoryWindow),
		usecase.WithMaxMessageLength(cfg.MaxMessageLength),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chat service")
	}

	h, err := handler.NewHandler(chat, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create handler")
	}

	lambda.Start(h.Handle)
}
