package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/handbook-assistant/server/internal/api"
	logx "github.com/handbook-assistant/server/pkg/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over HTTP",
	Long: `Starts the HTTP API:

  POST /ask     {"question": "...", "thread_id": "..."}
  GET  /health  {"status": "ok", "agent_ready": true}

The listener comes up immediately; /ask answers 503 until the agent is built.
A failed build is retried with exponential backoff (AGENT_BUILD_*); once the
retries run out the command exits with the build error.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
}

// AgentBuildConfig controls how serve retries building the agent.
type AgentBuildConfig struct {
	Backoff    time.Duration `envconfig:"AGENT_BUILD_BACKOFF" default:"2s"`
	MaxBackoff time.Duration `envconfig:"AGENT_BUILD_MAX_BACKOFF" default:"1m"`
	// MaxRetries of zero retries until the command is stopped.
	MaxRetries uint64 `envconfig:"AGENT_BUILD_MAX_RETRIES" default:"10"`
}

type agentBuilder func(ctx context.Context) (*agent, error)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := appCfg
	if serveAddr != "" {
		cfg.HTTP.Addr = serveAddr
	}
	return serveAgent(cmd.Context(), api.NewServer(cfg.HTTP), cfg.AgentBuild, func(ctx context.Context) (*agent, error) {
		return buildAgent(ctx, cfg, false)
	})
}

// serveAgent serves srv while the agent is built in the background. A build
// that never succeeds stops the server and is returned.
func serveAgent(ctx context.Context, srv *api.Server, cfg AgentBuildConfig, build agentBuilder) error {
	serveCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		a        *agent
		buildErr error
		done     = make(chan struct{})
	)
	go func() {
		defer close(done)
		a, buildErr = buildWithRetry(serveCtx, cfg, build)
		if buildErr != nil {
			if serveCtx.Err() == nil {
				logx.Error().Err(buildErr).Msg("giving up on agent initialisation")
				stop()
			}
			return
		}
		srv.SetRunner(a.Runner)
	}()

	err := srv.ListenAndServe(serveCtx)
	stop()
	<-done
	if a != nil {
		_ = a.Close()
	}
	if err != nil {
		return err
	}
	if buildErr != nil && ctx.Err() == nil {
		return fmt.Errorf("initialise agent: %w", buildErr)
	}
	return nil
}

// buildWithRetry runs build until it succeeds, the retries run out or ctx is done.
func buildWithRetry(ctx context.Context, cfg AgentBuildConfig, build agentBuilder) (*agent, error) {
	base := cfg.Backoff
	if base <= 0 {
		base = time.Second
	}
	backoff := retry.NewExponential(base)
	if cfg.MaxBackoff > 0 {
		backoff = retry.WithCappedDuration(cfg.MaxBackoff, backoff)
	}
	if cfg.MaxRetries > 0 {
		backoff = retry.WithMaxRetries(cfg.MaxRetries, backoff)
	}

	var a *agent
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		built, err := build(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logx.Warn().Err(err).Int("attempt", attempt).Msg("failed to initialise agent")
			return retry.RetryableError(err)
		}
		a = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	logx.Info().Int("attempts", attempt).Msg("agent ready")
	return a, nil
}
