// Package workflow is the execution pipeline shared by the CLI, the HTTP
// server and the MCP server: parse, rewrite, run, publish.
package workflow

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/deixis/scriptconsole/internal/cache"
	"github.com/deixis/scriptconsole/internal/config"
	"github.com/deixis/scriptconsole/internal/console"
	"github.com/deixis/scriptconsole/internal/jsengine"
	"github.com/deixis/scriptconsole/internal/repo"
	"github.com/deixis/scriptconsole/internal/report"
	"github.com/deixis/scriptconsole/internal/source"
	"github.com/deixis/scriptconsole/internal/tmplengine"
	"github.com/deixis/scriptconsole/internal/txn"
)

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config   *config.Config
	Rewriter *source.Rewriter
	Console  *console.Orchestrator
	Outputs  cache.Store // output chunks
	Channels *report.Channels
	Logger   *slog.Logger
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// Services are the collaborators New wires into an Engine.
type Services struct {
	Repository *repo.Repository
	Redis      redis.UniversalClient // nil unless the redis backend is used
}

// Close releases connections held by the services.
func (s *Services) Close() error {
	if s.Redis != nil {
		return s.Redis.Close()
	}
	return nil
}

// New wires an Engine from cfg: the JavaScript and template engines, the
// in-memory repository with its transaction manager, and the output and
// result caches. A missing pre-roll or post-roll resource is fatal.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, *Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	resources := source.Resources()
	if cfg.Scripts.Dir != "" {
		resources = os.DirFS(cfg.Scripts.Dir)
	}
	js := jsengine.New(resources)
	rewriter, err := source.New(source.Options{
		Resources: resources,
		PreRoll:   cfg.Scripts.PreRoll,
		PostRoll:  cfg.Scripts.PostRoll,
		Resolver:  js,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}

	svc := &Services{Repository: repo.New(logger)}
	for _, user := range cfg.Users {
		svc.Repository.AddUser(user)
	}

	if cfg.CacheBackend() == cache.BackendRedis {
		svc.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
	}
	outputs, err := openStore(cfg, svc.Redis, "output")
	if err != nil {
		return nil, nil, errors.Join(err, svc.Close())
	}
	results, err := openStore(cfg, svc.Redis, "result")
	if err != nil {
		return nil, nil, errors.Join(err, svc.Close())
	}

	r := svc.Repository
	orch := &console.Orchestrator{
		Store: r,
		Tx: &txn.Manager{
			Resource:    r,
			MaxAttempts: cfg.MaxAttempts(),
			Backoff:     cfg.Backoff(),
			Logger:      logger,
		},
		Auth:     r,
		Script:   js,
		Template: tmplengine.New(),
		Dump:     r.Dump,
		Bindings: r.Bindings,
		Logger:   logger,
	}
	if err := orch.Validate(); err != nil {
		return nil, nil, errors.Join(err, svc.Close())
	}

	return &Engine{
		Config:   cfg,
		Rewriter: rewriter,
		Console:  orch,
		Outputs:  outputs,
		Channels: report.NewChannels(results),
		Logger:   logger,
	}, svc, nil
}

func openStore(cfg *config.Config, client redis.UniversalClient, name string) (cache.Store, error) {
	s, err := cache.Open(cache.Options{
		Backend:  cfg.CacheBackend(),
		Capacity: cfg.CacheCapacity(),
		TTL:      cfg.CacheTTL(),
		Prefix:   cfg.RedisPrefix(),
		Client:   client,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", name, err)
	}
	return s, nil
}
