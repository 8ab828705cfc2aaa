package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/librarian/callbacks"
	"github.com/effective-security/librarian/catalog"
	"github.com/effective-security/librarian/chat"
	"github.com/effective-security/librarian/config"
	"github.com/effective-security/librarian/pkg/llmfactory"
	"github.com/effective-security/librarian/pkg/llms"
	"github.com/effective-security/librarian/store"
	"github.com/effective-security/librarian/tools"
	"github.com/effective-security/librarian/tools/catalogtools"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// runtime wires the components of a command.
type runtime struct {
	cfg       *config.Config
	catalog   *catalog.Store
	registry  *tools.Registry
	history   store.MessageStoreManager
	stats     *callbacks.Stats
	assistant *chat.Assistant

	closers []func() error
}

// newRuntime builds the catalog, the tools and the chat history,
// the assistant is nil when no LLM provider is configured.
func newRuntime(ctx context.Context, cfg *config.Config, dir string, printer callbacks.Handler) (*runtime, error) {
	rt := &runtime{
		cfg:   cfg,
		stats: callbacks.NewStats(),
		catalog: catalog.New(
			catalog.WithDefaultLoanDays(cfg.LoanDays),
		),
	}
	if cfg.SeedSample {
		catalog.SeedSample(rt.catalog)
	}
	if cfg.FakeBooks > 0 {
		catalog.SeedFake(rt.catalog, cfg.FakeBooks)
	}

	handlers := []callbacks.Handler{
		callbacks.NewPackageLogger(logger),
		rt.stats,
	}
	if printer != nil {
		handlers = append(handlers, printer)
	}
	cb := callbacks.NewFanout(handlers...)

	rt.registry = catalogtools.NewRegistry(rt.catalog, tools.WithCallback(cb))

	history, err := rt.newHistory(ctx)
	if err != nil {
		return nil, err
	}
	rt.history = history

	model, err := newModel(cfg, dir)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if model != nil {
		opts := []chat.Option{
			chat.WithStore(rt.history),
			chat.WithCallback(cb),
			chat.WithMaxToolCalls(cfg.Chat.MaxToolCalls),
			chat.WithMaxMessages(cfg.Chat.MaxMessages),
			chat.WithPromptInput(map[string]any{"loan_days": cfg.LoanDays}),
		}
		if cfg.Chat.Temperature > 0 {
			opts = append(opts, chat.WithCallOptions(llms.WithTemperature(cfg.Chat.Temperature)))
		}
		rt.assistant, err = chat.New(model, rt.registry, opts...)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) newHistory(ctx context.Context) (store.MessageStoreManager, error) {
	if rt.cfg.Redis.URL == "" {
		return store.NewMemoryStore(rt.cfg.Redis.HistoryLimit), nil
	}

	opts, err := redis.ParseURL(rt.cfg.Redis.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", opts.Addr)
	}
	rt.closers = append(rt.closers, client.Close)

	ttl, err := rt.cfg.Redis.TTLDuration()
	if err != nil {
		return nil, err
	}
	logger.KV(xlog.INFO, "status", "redis_history", "addr", opts.Addr, "ttl", ttl)

	return store.NewRedisStore(client, store.RedisOptions{
		Prefix:       rt.cfg.Redis.Prefix,
		HistoryLimit: rt.cfg.Redis.HistoryLimit,
		TTL:          ttl,
	}), nil
}

// newModel returns the chat model, nil if no providers are configured.
func newModel(cfg *config.Config, dir string) (llms.Model, error) {
	llmCfg, err := cfg.LoadLLM(dir)
	if err != nil {
		return nil, err
	}
	if llmCfg == nil || len(llmCfg.Providers) == 0 {
		return nil, nil
	}
	if cfg.Chat.Provider != "" {
		llmCfg.DefaultProvider = cfg.Chat.Provider
	}

	f := llmfactory.New(llmCfg)
	if cfg.Chat.Model != "" {
		return f.ModelByName(cfg.Chat.Model)
	}
	return f.DefaultModel()
}

// Close releases the connections.
func (rt *runtime) Close() error {
	var errs error
	for _, closer := range rt.closers {
		errs = errors.CombineErrors(errs, closer())
	}
	rt.closers = nil
	return errs
}
