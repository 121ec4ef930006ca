// Command maxassist is the main entry point for the MAX voice assistant
// server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/maxassist/internal/app"
	"github.com/MrWong99/maxassist/internal/config"
	"github.com/MrWong99/maxassist/internal/gateway"
	"github.com/MrWong99/maxassist/internal/health"
	"github.com/MrWong99/maxassist/internal/observe"
	"github.com/MrWong99/maxassist/internal/resilience"
	"github.com/MrWong99/maxassist/internal/session"
	"github.com/MrWong99/maxassist/pkg/provider/llm"
	"github.com/MrWong99/maxassist/pkg/provider/llm/anyllm"
	"github.com/MrWong99/maxassist/pkg/provider/llm/canned"
	oaillm "github.com/MrWong99/maxassist/pkg/provider/llm/openai"
	"github.com/MrWong99/maxassist/pkg/provider/stt/console"
	"github.com/MrWong99/maxassist/pkg/provider/tts"
	"github.com/MrWong99/maxassist/pkg/provider/tts/elevenlabs"
)

const defaultConfigPath = "config.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	flags := pflag.NewFlagSet("maxassist", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", defaultConfigPath, "path to the YAML configuration file")
	consoleMode := flags.Bool("console", false, "talk to the assistant from the terminal; each line is a recognised utterance")
	typed := flags.Bool("typed", false, "with --console, submit each line directly without wake-word gating")
	listenAddr := flags.String("listen", "", "override server.listen_addr")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "maxassist: %v\n", err)
		return 2
	}

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "maxassist: load .env: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, watchable, err := loadConfig(*configPath, flags.Changed("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "maxassist: %v\n", err)
		return 1
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(&level))

	slog.Info("maxassist starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"console", *consoleMode,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "maxassist"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(application.Checkers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	gateway.New(application.Sessions()).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return application.Run(gctx) })

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// ── Config hot reload ─────────────────────────────────────────────────────
	if watchable {
		w, err := config.NewWatcher(*configPath, func(prev, next *config.Config) {
			if *listenAddr != "" {
				next.Server.ListenAddr = *listenAddr
			}
			if d := config.Diff(prev, next); d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.Reload(prev, next)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Console ───────────────────────────────────────────────────────────────
	if *consoleMode {
		g.Go(func() error {
			err := runConsole(gctx, application.Sessions(), os.Stdin, os.Stdout, *typed)
			stop()
			return err
		})
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	exit := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		exit = 1
	}
	slog.Info("goodbye")
	return exit
}

// loadConfig loads path. A missing default config file yields the built-in
// defaults; the returned bool reports whether the file exists and can be
// watched.
func loadConfig(path string, explicit bool) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
	}
	return nil, false, err
}

// ── Console ───────────────────────────────────────────────────────────────────

// runConsole runs one session on the terminal. In typed mode every line is
// submitted directly; otherwise lines are recognition results that go
// through wake-word gating.
func runConsole(ctx context.Context, sessions *app.SessionManager, in io.Reader, out io.Writer, typed bool) error {
	req := app.OpenRequest{}
	if !typed {
		req.Recognizer = console.New(in)
	}
	sess, err := sessions.Open(req)
	if err != nil {
		return fmt.Errorf("console: open session: %w", err)
	}
	defer sessions.Close(sess.ID())

	fmt.Fprintf(out, "Session %s. ", sess.ID())
	if typed {
		fmt.Fprintln(out, "Type to talk, Ctrl+D to quit.")
	} else {
		fmt.Fprintln(out, `Say "hey max" to wake me, Ctrl+D to quit.`)
	}

	printed := make(chan struct{})
	recognitionStopped := make(chan struct{})
	go func() {
		defer close(printed)
		stopped := false
		for ev := range sess.Events() {
			printEvent(out, ev)
			if ev.Kind == session.EventStopped && !stopped {
				stopped = true
				close(recognitionStopped)
			}
		}
	}()

	if typed {
		lines := make(chan string)
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(in)
			for sc.Scan() {
				select {
				case lines <- sc.Text():
				case <-ctx.Done():
					return
				}
			}
		}()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case line, ok := <-lines:
				if !ok {
					break loop
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				if _, err := sess.Submit(ctx, line); err != nil {
					break loop
				}
			}
		}
	} else {
		// Recognition stops for good once the input is exhausted.
		select {
		case <-ctx.Done():
		case <-sess.Done():
		case <-recognitionStopped:
		}
	}

	sessions.Close(sess.ID())
	<-printed
	return nil
}

func printEvent(w io.Writer, ev session.Event) {
	switch ev.Kind {
	case session.EventReply:
		fmt.Fprintf(w, "MAX: %s\n", ev.Text)
	case session.EventReminder:
		fmt.Fprintf(w, "MAX (reminder): %s\n", ev.Text)
	case session.EventWake:
		fmt.Fprintln(w, "* listening")
	case session.EventTimeout:
		fmt.Fprintln(w, "* stopped listening")
	case session.EventStopped:
		fmt.Fprintf(w, "* recognition stopped: %v\n", ev.Err)
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyLLMProviders are served through any-llm-go.
var anyLLMProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("canned", func(config.ProviderEntry) (llm.Provider, error) {
		return canned.New(), nil
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyLLMProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	slog.Debug("registered providers", "llm", reg.LLMNames())
}

// buildProviders instantiates the providers named in cfg, wrapping each
// primary with its fallbacks. Without a configured LLM the offline canned
// model is used.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, from, to resilience.State) {
					slog.Warn("circuit breaker state change", "provider", name, "from", from, "to", to)
					metrics.RecordBreakerTransition(context.Background(), name, to.String())
				},
			},
			OnFailure: func(name string, _ error) {
				metrics.RecordProviderError(context.Background(), name, kind)
			},
		}
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	primary := cfg.Providers.LLM
	if primary.Name == "" {
		primary = config.ProviderEntry{Name: "canned"}
	}
	p, err := reg.CreateLLM(primary)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", primary.Name, "model", primary.Model)
	if len(cfg.Providers.LLMFallbacks) == 0 {
		ps.LLM = p
	} else {
		fb := resilience.NewLLMFallback(p, primary.Name, fbCfg("llm"))
		for _, entry := range cfg.Providers.LLMFallbacks {
			fp, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, fp)
		}
		slog.Info("llm failover enabled", "order", fb.Names())
		ps.LLM = fb
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	if name := cfg.Providers.TTS.Name; name != "" {
		tp, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		slog.Info("provider created", "kind", "tts", "name", name)
		if len(cfg.Providers.TTSFallbacks) == 0 {
			ps.TTS = tp
		} else {
			fb := resilience.NewTTSFallback(tp, name, fbCfg("tts"))
			for _, entry := range cfg.Providers.TTSFallbacks {
				fp, err := reg.CreateTTS(entry)
				if err != nil {
					return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
				}
				fb.AddFallback(entry.Name, fp)
			}
			ps.TTS = fb
		}
	}

	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
