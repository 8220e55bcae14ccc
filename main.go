package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"

	"llmgate/internal/auth"
	"llmgate/internal/codec"
	"llmgate/internal/config"
	"llmgate/internal/limits"
	"llmgate/internal/pipeline"
	"llmgate/internal/provider"
	"llmgate/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "Path to the gateway config file")
	host := flag.String("host", "", "Bind host (overrides config)")
	port := flag.Int("port", 0, "Listen port (overrides config)")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		return 1
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *verbose {
		cfg.Server.Verbose = true
	}
	if cfg.Server.Verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	tracker := limits.NewTracker()
	adapters, err := buildAdapters(cfg, tracker)
	if err != nil {
		slog.Error("failed to build providers", "error", err)
		return 1
	}

	specs, err := buildChainSpecs(cfg, adapters)
	if err != nil {
		slog.Error("failed to build pipelines", "error", err)
		return 1
	}

	manager := pipeline.NewManager(codec.NewRegistry(), specs)
	srv := server.New(cfg, manager, tracker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("llmgate starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"pipelines", len(cfg.Pipelines),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return 1
	}
	return 0
}

// buildAdapters turns provider configs into upstream adapters with their
// credential sources attached.
func buildAdapters(cfg *config.Config, tracker *limits.Tracker) (map[string]provider.Adapter, error) {
	adapters := make(map[string]provider.Adapter, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		tokens, err := tokenSourceFor(name, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		switch pc.Type {
		case "antigravity":
			adapters[name] = provider.NewAntigravity(name, pc.BaseURL, tokens)
		case "openai":
			adapter := provider.NewOpenAICompatible(name, pc.BaseURL, pc.Endpoint, pc.Protocol, tokens)
			adapter.TrackLimits(tracker)
			adapters[name] = adapter
		default:
			return nil, fmt.Errorf("provider %s: unknown type %q", name, pc.Type)
		}
	}
	return adapters, nil
}

// tokenSourceFor picks the credential strategy: an environment API key when
// one is named, otherwise stored OAuth credentials with refresh when the
// provider has a client id, otherwise the stored access token as-is.
func tokenSourceFor(name string, pc config.ProviderConfig) (auth.TokenSource, error) {
	if pc.APIKeyEnv != "" {
		return auth.EnvTokenSource(pc.APIKeyEnv), nil
	}

	creds, err := auth.ReadCredentialFile(name)
	if err != nil {
		return nil, err
	}
	if pc.OAuthClientID != "" && creds.RefreshToken != "" {
		conf := &oauth2.Config{
			ClientID: pc.OAuthClientID,
			Endpoint: oauth2.Endpoint{TokenURL: pc.OAuthTokenURL},
		}
		return auth.NewOAuthTokenSource(conf, creds), nil
	}
	if creds.AccessToken == "" {
		return nil, auth.ErrNoCredentials
	}
	return auth.StaticTokenSource(creds.AccessToken), nil
}

func buildChainSpecs(cfg *config.Config, adapters map[string]provider.Adapter) ([]pipeline.ChainSpec, error) {
	specs := make([]pipeline.ChainSpec, 0, len(cfg.Pipelines))
	for _, pl := range cfg.Pipelines {
		adapter, ok := adapters[pl.Provider]
		if !ok {
			return nil, fmt.Errorf("pipeline %s: unknown provider %q", pl.ID, pl.Provider)
		}
		specs = append(specs, pipeline.ChainSpec{
			PipelineID:        pl.ID,
			Incoming:          pl.Entry,
			Provider:          adapter,
			ModelID:           pl.Model,
			KeyID:             pl.KeyID,
			ForceNonStreaming: pl.ForceNonStreaming,
			RequestPatches:    pl.RequestPatches,
			ResponsePatches:   pl.ResponsePatches,
		})
	}
	return specs, nil
}
