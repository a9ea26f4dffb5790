// Command onid runs the oni orchestration daemon: the HTTP API the desktop
// shell talks to for turns, memories, knowledge, conversations, and auth.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	oni "github.com/onios/oni"
	"github.com/onios/oni/auth"
	"github.com/onios/oni/convo"
	"github.com/onios/oni/internal/app"
	"github.com/onios/oni/internal/config"
	"github.com/onios/oni/knowledge"
	"github.com/onios/oni/memory"
	"github.com/onios/oni/observer"
	"github.com/onios/oni/provider/chatcompat"
	"github.com/onios/oni/provider/openaiembed"
	"github.com/onios/oni/provider/responses"
	"github.com/onios/oni/store/jsonfile"
	"github.com/onios/oni/store/postgres"
	"github.com/onios/oni/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load(os.Getenv("ONI_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable store backend
	records, err := newRecordStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("oni: store init: %v", err)
	}
	defer records.Close()

	// Observability
	var inst *observer.Instruments
	var tracer oni.Tracer
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			log.Fatalf("oni: observer init: %v", err)
		}
		defer func() {
			sdCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sdCtx)
		}()
		tracer = observer.NewTracer()
	}

	// Embedding (optional; nil degrades memory search to keyword overlap)
	var embedding oni.EmbeddingProvider
	if p := openaiembed.New(cfg.Embedding.APIKey); p != nil {
		embedding = p
		if inst != nil {
			embedding = observer.WrapEmbedding(embedding, inst)
		}
	}

	// Stores
	memOpts := []memory.Option{memory.WithLogger(logger)}
	if embedding != nil {
		memOpts = append(memOpts, memory.WithEmbedding(embedding))
	}
	memStore := memory.New(records, memOpts...)
	knowStore := knowledge.New(records)
	convoStore := convo.New(records)

	// Credentials
	creds := auth.New(records, auth.Endpoints{
		AuthorizeURL: cfg.OAuth.AuthorizeURL,
		TokenURL:     cfg.OAuth.TokenURL,
		ClientID:     cfg.OAuth.ClientID,
		RedirectURI:  cfg.OAuth.RedirectURI,
		Scopes:       cfg.OAuth.Scopes,
	}, auth.WithLogger(logger))

	// Protocol adapters, one per credential type
	var apikeyProvider oni.Provider = chatcompat.New(cfg.LLM.Model, cfg.LLM.APIKeyBaseURL, chatcompat.WithLogger(logger))
	var oauthProvider oni.Provider = responses.New(cfg.LLM.Model, cfg.LLM.OAuthBaseURL, responses.WithLogger(logger))
	if inst != nil {
		apikeyProvider = observer.WrapProvider(apikeyProvider, inst)
		oauthProvider = observer.WrapProvider(oauthProvider, inst)
	}

	engineOpts := []oni.EngineOption{
		oni.WithConversations(convoStore),
		oni.WithMemory(memStore),
		oni.WithKnowledge(knowStore),
		oni.WithCredentials(creds),
		oni.WithProvider(oni.CredentialAPIKey, apikeyProvider),
		oni.WithProvider(oni.CredentialOAuth, oauthProvider),
		oni.WithLogger(logger),
		oni.WithMemoryTopK(cfg.Engine.MemoryTopK),
		oni.WithTurnTimeout(time.Duration(cfg.Engine.TurnTimeoutSeconds) * time.Second),
	}
	if tracer != nil {
		engineOpts = append(engineOpts, oni.WithTracer(tracer))
	}
	engine := oni.NewEngine(engineOpts...)

	server := app.New(app.Deps{
		Engine:        engine,
		Memory:        memStore,
		Knowledge:     knowStore,
		Conversations: convoStore,
		Auth:          creds,
		Logger:        logger,
	})

	if err := server.Run(ctx, cfg.Server.Listen); err != nil {
		log.Fatalf("oni: server: %v", err)
	}
}

// newRecordStore builds the configured durable store backend.
func newRecordStore(ctx context.Context, cfg config.StoreConfig) (oni.RecordStore, error) {
	switch cfg.Backend {
	case "sqlite":
		s := sqlite.New(cfg.SQLitePath)
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return jsonfile.New(cfg.Dir)
	}
}
