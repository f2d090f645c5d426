// agentdeck-server serves prompt-wrapper agents over the run protocol.
//
// Usage:
//
//	AGENTDECK_PROVIDER=openai OPENAI_API_KEY=... go run ./cmd/agentdeck-server
//
// Agents:
//
//	assistant   - general assistant using AGENTDECK_INSTRUCTION
//	summarizer  - condenses its input
//	translator  - translates its input to English
//	sequential  - workflow agent chaining the agents above
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

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentdeck/agent"
	"github.com/hupe1980/agentdeck/agentserver"
	"github.com/hupe1980/agentdeck/compose"
	"github.com/hupe1980/agentdeck/config"
	"github.com/hupe1980/agentdeck/logging"
	"github.com/hupe1980/agentdeck/model"
	"github.com/hupe1980/agentdeck/model/anthropic"
	"github.com/hupe1980/agentdeck/model/gemini"
	"github.com/hupe1980/agentdeck/model/openai"
	"github.com/hupe1980/agentdeck/runner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentdeck-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Output:    os.Stderr,
		Component: "agentdeck-server",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, err := newModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s model: %w", cfg.Provider, err)
	}
	info := llm.Info()
	logger.Info("model ready", "provider", info.Provider, "model", info.Name)

	registry, err := newRegistry(cfg, llm)
	if err != nil {
		return err
	}

	r := runner.New(registry, func(o *runner.Options) {
		o.Logger = logger.WithComponent("runner")
	})
	srv := agentserver.New(r, func(o *agentserver.Options) {
		o.AllowedOrigin = cfg.AllowedOrigin
		o.Logger = logger.WithComponent("agentserver")
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runs did not stop in time", "error", err)
	}
	return httpServer.Shutdown(shutdownCtx)
}

func newModel(ctx context.Context, cfg *config.Config) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			o.BaseURL = cfg.OpenAIBaseURL
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.ModelName != "" {
				o.Model = anthropicsdk.Model(cfg.ModelName)
			}
		}), nil
	case config.ProviderGemini:
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			o.APIKey = cfg.GeminiAPIKey
			o.Grounding = cfg.Grounding
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		})
	default:
		name := cfg.ModelName
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, "mock"), nil
	}
}

func newRegistry(cfg *config.Config, llm model.Model) (*agent.Registry, error) {
	registry, err := agent.NewRegistry(
		agent.NewModelAgent("assistant", llm, func(o *agent.ModelAgentOptions) {
			o.Instruction = agent.NewInstructionFromText(cfg.Instruction)
			o.Description = "General purpose assistant"
		}),
		agent.NewModelAgent("summarizer", llm, func(o *agent.ModelAgentOptions) {
			o.Instruction = agent.NewInstructionFromText("Summarize the user's text in at most three sentences.")
			o.Description = "Condenses text"
		}),
		agent.NewModelAgent("translator", llm, func(o *agent.ModelAgentOptions) {
			o.Instruction = agent.NewInstructionFromText("Translate the user's text to English. Reply with the translation only.")
			o.Description = "Translates text to English"
		}),
	)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(agent.NewSequentialAgent(compose.DefaultWorkflowAgent, registry)); err != nil {
		return nil, err
	}
	return registry, nil
}
