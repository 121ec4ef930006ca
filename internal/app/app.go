// Package app wires all maxassist subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// shared collaborators, Run warms the generative model and blocks until the
// context ends, and Shutdown closes every live session before tearing the
// collaborators down in order.
//
// For testing, inject doubles via functional options (WithArchive,
// WithWeather, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/internal/generate"
	"github.com/MrWong99/maxassist/internal/health"
	"github.com/MrWong99/maxassist/internal/lookup"
	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/internal/respond"
	"github.com/MrWong99/maxassist/internal/session"
	"github.com/MrWong99/maxassist/internal/speak"
	"github.com/MrWong99/maxassist/pkg/memory"
	"github.com/MrWong99/maxassist/pkg/memory/postgres"
	"github.com/MrWong99/maxassist/pkg/memory/redis"
	"github.com/MrWong99/maxassist/pkg/provider/llm"
	"github.com/MrWong99/maxassist/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	// Shared collaborators, initialised in New and torn down in Shutdown.
	archive    memory.ExchangeStore
	weather    lookup.WeatherSource
	directions lookup.DirectionsSource
	model      *generate.Model
	resolver   atomic.Pointer[respond.Resolver]
	speaker    *speak.Speaker
	sessions   *SessionManager

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithArchive injects an exchange archive instead of creating one from
// memory.backend.
func WithArchive(s memory.ExchangeStore) Option {
	return func(a *App) { a.archive = s }
}

// WithWeather injects a weather source instead of creating one from
// lookup.weather.
func WithWeather(s lookup.WeatherSource) Option {
	return func(a *App) { a.weather = s }
}

// WithDirections injects a directions source instead of creating one from
// lookup.directions.
func WithDirections(s lookup.DirectionsSource) Option {
	return func(a *App) { a.directions = s }
}

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New connects the exchange archive and the MCP lookup server synchronously.
// The generative model is warmed up by Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Exchange archive ──────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 2. Lookup sources ────────────────────────────────────────────────
	if err := a.initLookup(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init lookup: %w", err)
	}

	// ── 3. Generative model ──────────────────────────────────────────────
	a.initModel()

	// ── 4. Resolver ──────────────────────────────────────────────────────
	a.resolver.Store(a.buildResolver(cfg))

	// ── 5. Speaker ───────────────────────────────────────────────────────
	a.initSpeaker()

	// ── 6. Session registry ──────────────────────────────────────────────
	a.sessions = NewSessionManager(SessionManagerConfig{
		Config:   cfg,
		Resolver: a.resolver.Load,
		Archive:  a.archive,
		Warmer:   a.warmer(),
		Speaker:  a.speaker,
		Metrics:  a.metrics,
	})

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initArchive connects the configured exchange archive unless one was
// injected. The "none" backend leaves the archive nil.
func (a *App) initArchive(ctx context.Context) error {
	if a.archive != nil {
		return nil
	}

	switch a.cfg.Memory.Backend {
	case config.StorePostgres:
		if a.cfg.Memory.PostgresDSN == "" {
			return errors.New("memory.postgres_dsn is required for the postgres backend")
		}
		store, err := postgres.NewStore(ctx, a.cfg.Memory.PostgresDSN)
		if err != nil {
			return err
		}
		a.archive = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
		slog.Info("exchange archive connected", "backend", "postgres")

	case config.StoreRedis:
		if a.cfg.Memory.RedisURL == "" {
			return errors.New("memory.redis_url is required for the redis backend")
		}
		store, err := redis.New(ctx, a.cfg.Memory.RedisURL, redis.WithRetention(a.cfg.Memory.Retention))
		if err != nil {
			return err
		}
		a.archive = store
		a.closers = append(a.closers, store.Close)
		slog.Info("exchange archive connected", "backend", "redis")

	default:
		slog.Info("exchange archive disabled")
	}
	return nil
}

// initLookup creates the weather and directions sources. Both MCP-backed
// sources share one server connection.
func (a *App) initLookup(ctx context.Context) error {
	needMCP := (a.weather == nil && a.cfg.Lookup.Weather == config.SourceMCP) ||
		(a.directions == nil && a.cfg.Lookup.Directions == config.SourceMCP)

	var src *lookup.MCPSource
	if needMCP {
		var err error
		src, err = lookup.DialMCP(ctx, a.cfg.Lookup.MCP)
		if err != nil {
			return fmt.Errorf("dial mcp server %q: %w", a.cfg.Lookup.MCP.Name, err)
		}
		a.closers = append(a.closers, src.Close)
		slog.Info("connected MCP lookup server", "name", a.cfg.Lookup.MCP.Name)
	}

	var sim *lookup.Simulator
	simulator := func() *lookup.Simulator {
		if sim == nil {
			sim = lookup.NewSimulator()
		}
		return sim
	}

	if a.weather == nil {
		if a.cfg.Lookup.Weather == config.SourceMCP {
			a.weather = src
		} else {
			a.weather = simulator()
		}
	}
	if a.directions == nil {
		if a.cfg.Lookup.Directions == config.SourceMCP {
			a.directions = src
		} else {
			a.directions = simulator()
		}
	}
	return nil
}

// initModel wraps the LLM provider in a generative model. Without an LLM
// provider the model stays nil and escalation degrades to canned replies.
func (a *App) initModel() {
	if a.providers.LLM == nil {
		slog.Warn("no LLM provider configured, generated replies disabled")
		return
	}
	name := a.cfg.Providers.LLM.Name
	if name == "" {
		name = "canned"
	}
	g := a.cfg.Generation
	a.model = generate.New(a.providers.LLM,
		generate.WithSystemPrompt(g.SystemPrompt),
		generate.WithMaxTokens(g.MaxTokens),
		generate.WithMaxChars(g.MaxChars),
		generate.WithTimeout(g.Timeout),
		generate.WithMetrics(a.metrics),
		generate.WithProviderName(name),
	)
}

// buildResolver constructs a resolver for cfg around the shared
// collaborators.
func (a *App) buildResolver(cfg *config.Config) *respond.Resolver {
	opts := []respond.Option{
		respond.WithWeather(a.weather),
		respond.WithDirections(a.directions),
		respond.WithMetrics(a.metrics),
	}
	if a.model != nil {
		opts = append(opts, respond.WithGenerator(a.model))
	}
	return respond.New(respond.ConfigFrom(cfg), opts...)
}

// initSpeaker creates the speaker when a TTS provider is configured.
func (a *App) initSpeaker() {
	if a.providers.TTS == nil {
		slog.Info("no TTS provider configured, replies are text only")
		return
	}
	a.speaker = speak.New(a.providers.TTS,
		speak.WithVoice(tts.Voice{ID: a.cfg.Speech.VoiceID, Provider: a.cfg.Providers.TTS.Name}),
		speak.WithTimeout(a.cfg.Speech.Timeout),
		speak.WithMetrics(a.metrics),
	)
}

// warmer returns the model as a session warmer, or nil without a model.
func (a *App) warmer() session.Warmer {
	if a.model == nil {
		return nil
	}
	return a.model
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the session registry.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Resolver returns the current resolver.
func (a *App) Resolver() *respond.Resolver { return a.resolver.Load() }

// Checkers returns the readiness checks for the collaborators in use.
func (a *App) Checkers() []health.Checker {
	var checks []health.Checker
	if a.model != nil {
		checks = append(checks, health.ModelCheck(a.model))
	}
	if p, ok := a.archive.(memory.Pinger); ok {
		checks = append(checks, health.ArchiveCheck(p))
	}
	return checks
}

// Reload applies the hot-reloadable parts of next. Listening tunables reach
// every live session; generation tunables apply to sessions opened from now
// on.
func (a *App) Reload(prev, next *config.Config) {
	d := config.Diff(prev, next)
	if d.ListenChanged || d.WakePhrasesChanged {
		n := a.sessions.SetConfig(next)
		slog.Info("listening config reloaded", "sessions", n)
	}
	if d.GenerationChanged {
		a.resolver.Store(a.buildResolver(next))
		slog.Info("generation config reloaded",
			"enabled", next.Generation.IsEnabled(),
			"escalation_threshold", next.Generation.EscalationThreshold,
		)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run warms the generative model (when enabled) and blocks until ctx is
// cancelled. A failed warm-up is not fatal: the model reports its error on
// /readyz and the "advanced mode" command retries it.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.model != nil && a.cfg.Generation.IsEnabled() && a.cfg.Generation.WarmupEnabled() {
		g.Go(func() error {
			// The outcome is reported through the model's status.
			_ = a.model.Warmup(ctx)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	slog.Info("app running",
		"generation", a.model != nil && a.cfg.Generation.IsEnabled(),
		"speech", a.speaker != nil,
		"archive", a.archive != nil,
	)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown closes every live session, then tears down the shared
// collaborators in init order. It respects the context deadline: if ctx
// expires, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", len(a.sessions.List()), "closers", len(a.closers))

		if err := a.sessions.CloseAll(ctx); err != nil {
			slog.Warn("sessions did not stop in time", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll runs the closers registered so far. Used when New fails halfway.
func (a *App) closeAll() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
