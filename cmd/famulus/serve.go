package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zoobzio/famulus"
	"github.com/zoobzio/zyn"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat pipeline HTTP server",
	Long: `Starts the HTTP server exposing POST /v1/chat. Configuration comes from
famulus.yaml (or the file named by --config), with FAMULUS_* environment
variables taking precedence.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "path to the config file")
}

func loadSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("database.url", "postgres://localhost/famulus?sslmode=disable")

	v.SetEnvPrefix("FAMULUS")
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("famulus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/famulus")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	unhook := bridgeSignals(logger)
	defer unhook()

	db, err := sqlx.Connect("postgres", settings.GetString("database.url"))
	if err != nil {
		return err
	}

	store, err := famulus.NewPgStore(db)
	if err != nil {
		return err
	}
	defer store.Close()

	providers := famulus.NewRegistry()
	if err := registerProviders(providers, settings); err != nil {
		return err
	}
	logger.Info("providers registered", zap.Strings("names", providers.Names()))

	pipeline := famulus.New(store, store, providers)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", chatHandler(pipeline, logger))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         settings.GetString("server.addr"),
		Handler:      mux,
		ReadTimeout:  settings.GetDuration("server.read_timeout"),
		WriteTimeout: settings.GetDuration("server.write_timeout"),
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// chatRequest is the HTTP payload for POST /v1/chat.
type chatRequest struct {
	SubjectID      string            `json:"subjectId"`
	Message        string            `json:"message"`
	ConversationID string            `json:"conversationId,omitempty"`
	SessionID      string            `json:"sessionId,omitempty"`
	History        []chatMessage     `json:"history,omitempty"`
	Profile        map[string]string `json:"profile,omitempty"`
	Provider       string            `json:"provider,omitempty"`
	Model          string            `json:"model,omitempty"`
	Debug          bool              `json:"debug,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatHandler(pipeline *famulus.Pipeline, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
			return
		}

		resp := pipeline.Chat(r.Context(), req.toInput())

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Warn("failed to write response", zap.Error(err))
		}
	}
}

func (r chatRequest) toInput() famulus.Input {
	input := famulus.Input{
		SubjectID:      r.SubjectID,
		Message:        r.Message,
		ConversationID: r.ConversationID,
		SessionID:      r.SessionID,
		Profile:        r.Profile,
		Provider:       r.Provider,
		Model:          r.Model,
		Debug:          r.Debug,
	}
	for _, m := range r.History {
		input.History = append(input.History, zyn.Message{Role: m.Role, Content: m.Content})
	}
	return input
}
