package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/emberfall/reckoner/internal/cache"
	"github.com/emberfall/reckoner/internal/effect"
	"github.com/emberfall/reckoner/internal/eval"
	"github.com/emberfall/reckoner/internal/evalctx"
	"github.com/emberfall/reckoner/internal/store"
)

// Engine coordinates evaluation, dependency graphs, cache invalidation,
// and effect execution for campaign state.
type Engine struct {
	store  store.Store
	cache  cache.Cache
	reg    *eval.Registry
	ctxb   *evalctx.Builder
	runner *effect.Runner
	wl     effect.Whitelist
	logger *slog.Logger
	ttl    time.Duration

	// graphs maps campaign "/" branch to *graph.Graph. Entries are
	// rebuilt whole and swapped; a stale read is safe.
	graphs sync.Map
}

// Option adjusts engine construction.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	reg        *eval.Registry
	ttl        time.Duration
	whitelist  effect.Whitelist
	runnerOpts []effect.Option
}

// WithLogger sets the logger for the engine and its components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry replaces the default domain-operator registry.
func WithRegistry(reg *eval.Registry) Option {
	return func(o *options) { o.reg = reg }
}

// WithCacheTTL bounds cached computed values. Zero (the default) keeps
// entries until invalidation removes them.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithWhitelist replaces the patch whitelist used for both authoring
// validation and execution.
func WithWhitelist(w effect.Whitelist) Option {
	return func(o *options) { o.whitelist = w }
}

// WithRunnerOptions forwards options to the effect runner, e.g. a fixed
// ID generator.
func WithRunnerOptions(opts ...effect.Option) Option {
	return func(o *options) { o.runnerOpts = append(o.runnerOpts, opts...) }
}

// New creates an engine over a store and a cache.
func New(s store.Store, c cache.Cache, opts ...Option) *Engine {
	o := &options{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.reg == nil {
		o.reg = evalctx.DefaultRegistry(s)
	}
	if o.whitelist == nil {
		o.whitelist = effect.DefaultWhitelist()
	}

	runnerOpts := append([]effect.Option{
		effect.WithLogger(o.logger),
		effect.WithWhitelist(o.whitelist),
	}, o.runnerOpts...)
	return &Engine{
		store:  s,
		cache:  c,
		reg:    o.reg,
		ctxb:   evalctx.NewBuilder(s, s, o.reg, o.logger),
		runner: effect.NewRunner(s, s, s, runnerOpts...),
		wl:     o.whitelist,
		logger: o.logger,
		ttl:    o.ttl,
	}
}

// Registry exposes the domain-operator registry, for callers that run
// static dependency extraction themselves.
func (e *Engine) Registry() *eval.Registry { return e.reg }
