package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"parts-order-bot/internal/integrations/openai"
	"parts-order-bot/internal/integrations/paramstore"
	"parts-order-bot/internal/metrics"
	"parts-order-bot/internal/nlu"
	"parts-order-bot/internal/repository"
	"parts-order-bot/internal/usecase"
)

const localParamPrefix = "/orderbot/local"

var (
	dbPath     string
	modelName  string
	promptFile string
	openaiURL  string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "orderbot",
	Short: "Run the parts order dialog locally",
	Long: `orderbot runs the order dialog engine on your machine against a SQLite
order store. The OpenAI key is read from OPENAI_API_KEY.

Commands:
  chat   talk to the bot in the terminal
  serve  expose the HTTP API on a local port`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "SQLite database file")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "gpt-4o-mini", "OpenAI model used for slot extraction")
	rootCmd.PersistentFlags().StringVar(&promptFile, "prompt-file", "", "File with custom extraction rules")
	rootCmd.PersistentFlags().StringVar(&openaiURL, "openai-url", "", "Override the OpenAI API base URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "orderbot.db"
	}
	return filepath.Join(home, ".orderbot", "orders.db")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// localParams builds the parameters that SSM provides in the cloud.
func localParams() (paramstore.Static, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	token, err := json.Marshal(map[string]string{"token": key})
	if err != nil {
		return nil, fmt.Errorf("encode token: %w", err)
	}
	params := paramstore.Static{
		localParamPrefix + "/open-ai-token":       string(token),
		localParamPrefix + "/config/openai_model": modelName,
	}
	if promptFile != "" {
		rules, err := os.ReadFile(promptFile)
		if err != nil {
			return nil, fmt.Errorf("read prompt file: %w", err)
		}
		params[localParamPrefix+"/prompts/nlu"] = string(rules)
	}
	return params, nil
}

type app struct {
	service  *usecase.DialogService
	store    *repository.SQLiteStore
	registry *prometheus.Registry
	logger   *slog.Logger
}

func (a *app) Close() error {
	return a.store.Close()
}

func newApp() (*app, error) {
	logger := newLogger()

	params, err := localParams()
	if err != nil {
		return nil, err
	}

	var opts []openai.Option
	opts = append(opts, openai.WithTemperature(0), openai.WithJSONSchema(nlu.SchemaName, nlu.Schema))
	if openaiURL != "" {
		opts = append(opts, openai.WithBaseURL(openaiURL))
	}
	llm, err := openai.NewClient(params, localParamPrefix, opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	extractor, err := nlu.New(llm, params, localParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("create nlu adapter: %w", err)
	}

	store, err := repository.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open order store: %w", err)
	}

	registry := prometheus.NewRegistry()
	service, err := usecase.NewDialogService(extractor, store,
		usecase.WithMetrics(metrics.NewPrometheusRecorder(registry)),
		usecase.WithLogger(logger),
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create dialog service: %w", err)
	}
	logger.Debug("order store ready", "path", store.Path())
	return &app{service: service, store: store, registry: registry, logger: logger}, nil
}
