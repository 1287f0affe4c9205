package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"parts-order-bot/handler"
	"parts-order-bot/internal/integrations/openai"
	"parts-order-bot/internal/integrations/paramstore"
	"parts-order-bot/internal/metrics"
	"parts-order-bot/internal/nlu"
	"parts-order-bot/internal/repository"
	"parts-order-bot/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	orderTable := mustEnv("ORDER_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	nluTimeout := time.Duration(envInt("NLU_TIMEOUT_SECONDS", 15)) * time.Second
	nluAttempts := envInt("NLU_MAX_ATTEMPTS", 2)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 1000)
	listLimit := envInt("ORDER_LIST_LIMIT", 50)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	orderStore, err := repository.New(awsdynamodb.NewFromConfig(cfg), orderTable)
	if err != nil {
		slog.Error("failed to create order store", "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(ssmClient, paramPrefix,
		openai.WithTemperature(0),
		openai.WithJSONSchema(nlu.SchemaName, nlu.Schema),
	)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}

	extractor, err := nlu.New(openaiClient, ssmClient, paramPrefix,
		nlu.WithTimeout(nluTimeout),
		nlu.WithMaxAttempts(nluAttempts),
	)
	if err != nil {
		slog.Error("failed to create NLU adapter", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	dialogService, err := usecase.NewDialogService(extractor, orderStore,
		usecase.WithMetrics(metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)),
		usecase.WithLogger(logger),
		usecase.WithMaxMessageLength(maxMessageLen),
	)
	if err != nil {
		slog.Error("failed to create dialog service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(dialogService,
		handler.WithGatherer(prometheus.DefaultGatherer),
		handler.WithLogger(logger),
		handler.WithListLimit(listLimit),
	)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
