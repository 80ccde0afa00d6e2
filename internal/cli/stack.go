package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aretw0/tutorgraph"
	"github.com/aretw0/tutorgraph/internal/config"
	"github.com/aretw0/tutorgraph/internal/logging"
	"github.com/aretw0/tutorgraph/internal/tracing"
	"github.com/aretw0/tutorgraph/pkg/adapters/anthropic"
	"github.com/aretw0/tutorgraph/pkg/adapters/file"
	"github.com/aretw0/tutorgraph/pkg/adapters/memory"
	"github.com/aretw0/tutorgraph/pkg/adapters/redis"
	"github.com/aretw0/tutorgraph/pkg/adapters/rules"
	"github.com/aretw0/tutorgraph/pkg/adapters/tavily"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/history"
	"github.com/aretw0/tutorgraph/pkg/observability"
	"github.com/aretw0/tutorgraph/pkg/persistence/middleware"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/aretw0/tutorgraph/pkg/search"
	"github.com/aretw0/tutorgraph/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Options adjusts how a Stack is assembled from the configuration.
type Options struct {
	// Offline replaces the model and search with the keyword rules.
	Offline bool
	Logger  *slog.Logger
	// Hooks are merged after the metrics and logging hooks.
	Hooks   []domain.LifecycleHooks
	Version string
	// Getenv reads API keys. Defaults to os.Getenv.
	Getenv func(string) string
}

// Stack is everything a host needs: the engine plus the resources it owns.
type Stack struct {
	Engine   *tutorgraph.Engine
	Sessions *session.Manager
	Registry *prometheus.Registry
	Tracing  *tracing.Provider
	Logger   *slog.Logger

	closers []func() error
}

// Build assembles the engine and its adapters from cfg.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Stack, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	logger := opts.Logger
	s := &Stack{Logger: logger, Registry: prometheus.NewRegistry()}

	decider, responder, err := newDelegates(cfg.Model, opts)
	if err != nil {
		return nil, err
	}

	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(s.Registry)
	if err != nil {
		return nil, err
	}

	s.Tracing, err = tracing.NewProvider(ctx, tracing.Config{
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	}, opts.Version, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() error { return s.Tracing.Shutdown(context.Background()) })

	engineOpts := []tutorgraph.Option{
		tutorgraph.WithLogger(logger),
		tutorgraph.WithTracer(s.Tracing.Tracer()),
		tutorgraph.WithMaxSteps(cfg.Engine.MaxSteps),
		tutorgraph.WithPrompts(cfg.PromptOverrides()),
		tutorgraph.WithTrimmer(newTrimmer(cfg.History, opts.Offline)),
		tutorgraph.WithLifecycleHooks(metrics.Hooks()),
		tutorgraph.WithLifecycleHooks(observability.LoggingHooks(logger)),
	}
	for _, h := range opts.Hooks {
		engineOpts = append(engineOpts, tutorgraph.WithLifecycleHooks(h))
	}

	if !opts.Offline {
		tool, closeCache, err := newSearchTool(cfg.Search, opts.Getenv, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if closeCache != nil {
			s.closers = append(s.closers, closeCache)
		}
		if tool != nil {
			engineOpts = append(engineOpts, tutorgraph.WithLessonTools(tool))
		}
	}

	sessions, closeStore, err := NewSessions(cfg.Session, opts.Getenv, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Sessions = sessions
	if closeStore != nil {
		s.closers = append(s.closers, closeStore)
	}

	s.Engine, err = tutorgraph.New(decider, responder, engineOpts...)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return s, nil
}

// Close releases caches, stores and the tracer provider.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewSessions opens the configured session store behind its redaction and encryption
// middleware. Redis stores also lock sessions across processes. The returned func, if any, closes the store.
func NewSessions(cfg config.SessionConfig, getenv func(string) string, logger *slog.Logger) (*session.Manager, func() error, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	mgrOpts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.LockTTL.Std()),
	}

	var (
		store  ports.StateStore
		closer func() error
	)
	if cfg.Backend == config.CacheRedis {
		st := redis.NewStore(cfg.Addr,
			redis.WithSessionPrefix(cfg.Prefix),
			redis.WithSessionTTL(cfg.TTL.Std()),
		)
		store, closer = st, st.Close
		mgrOpts = append(mgrOpts, session.WithLocker(st.Locker()))
	} else {
		store = file.New(cfg.Dir)
	}

	mws, err := storeMiddleware(cfg, getenv)
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, nil, err
	}
	return session.NewManager(middleware.Chain(store, mws...), mgrOpts...), closer, nil
}

// storeMiddleware redacts before encrypting so that ciphertext never holds masked values.
func storeMiddleware(cfg config.SessionConfig, getenv func(string) string) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.Redact) > 0 {
		mw, err := middleware.NewRedactMiddleware(cfg.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}

	if cfg.EncryptionKeyEnv == "" {
		return mws, nil
	}
	active, err := readKey(getenv, cfg.EncryptionKeyEnv)
	if err != nil {
		return nil, err
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, name := range cfg.FallbackKeyEnvs {
		key, err := readKey(getenv, name)
		if err != nil {
			return nil, err
		}
		enc.FallbackKeys = append(enc.FallbackKeys, key)
	}
	mw, err := middleware.NewEncryptionMiddleware(enc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.EncryptionKeyEnv, err)
	}
	return append(mws, mw), nil
}

func readKey(getenv func(string) string, name string) ([]byte, error) {
	raw := strings.TrimSpace(getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", name)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must hold a hex-encoded key: %w", name, err)
	}
	return key, nil
}

func newDelegates(cfg config.ModelConfig, opts Options) (ports.Decider, ports.Responder, error) {
	if opts.Offline || cfg.Provider == config.ProviderRules {
		r := rules.New(rules.WithLogger(opts.Logger))
		return r, r, nil
	}

	key := opts.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, nil, fmt.Errorf("%s is not set (use --offline for the rule-based tutor)", cfg.APIKeyEnv)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	c := anthropic.New(reqOpts,
		anthropic.WithModel(cfg.Name),
		anthropic.WithMaxTokens(cfg.MaxTokens),
		anthropic.WithMaxToolRounds(cfg.MaxToolRounds),
		anthropic.WithLogger(opts.Logger),
	)
	return c, c, nil
}

// newTrimmer never uses tiktoken offline: its encodings are downloaded on first use.
func newTrimmer(cfg config.HistoryConfig, offline bool) *history.Trimmer {
	var counter history.Counter = history.EstimateCounter{}
	if cfg.Counter == config.CounterTiktoken && !offline {
		counter = history.NewTiktokenCounter(cfg.Encoding)
	}
	return history.New(
		history.WithMaxTokens(cfg.MaxTokens),
		history.WithIncludeSystem(cfg.IncludeSystem),
		history.WithCounter(counter),
	)
}

func newSearchTool(cfg config.SearchConfig, getenv func(string) string, logger *slog.Logger) (ports.Tool, func() error, error) {
	if cfg.Provider != config.ProviderTavily {
		return nil, nil, nil
	}
	key := getenv(cfg.APIKeyEnv)
	if key == "" {
		logger.Info("search tool disabled", "reason", cfg.APIKeyEnv+" not set")
		return nil, nil, nil
	}

	var tavilyOpts []tavily.Option
	if cfg.BaseURL != "" {
		tavilyOpts = append(tavilyOpts, tavily.WithBaseURL(cfg.BaseURL))
	}
	client, err := tavily.New(key, tavilyOpts...)
	if err != nil {
		return nil, nil, err
	}

	var searcher ports.Searcher = client
	var closer func() error
	switch cfg.Cache.Backend {
	case config.CacheMemory:
		searcher = search.NewCached(client, memory.NewCache(
			memory.WithSize(cfg.Cache.Size),
			memory.WithTTL(cfg.Cache.TTL.Std()),
		), logger)
	case config.CacheRedis:
		cache := redis.New(cfg.Cache.Addr,
			redis.WithPrefix(cfg.Cache.Prefix),
			redis.WithTTL(cfg.Cache.TTL.Std()),
		)
		searcher = search.NewCached(client, cache, logger)
		closer = cache.Close
	}

	return search.NewTool(searcher, cfg.MaxResults, search.WithLogger(logger)), closer, nil
}
