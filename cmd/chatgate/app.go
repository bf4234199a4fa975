package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pario-ai/chatgate/pkg/audit"
	"github.com/pario-ai/chatgate/pkg/cache"
	cachepkg "github.com/pario-ai/chatgate/pkg/cache/sqlite"
	"github.com/pario-ai/chatgate/pkg/config"
	"github.com/pario-ai/chatgate/pkg/gateway"
	"github.com/pario-ai/chatgate/pkg/history"
	"github.com/pario-ai/chatgate/pkg/provider"
	"github.com/pario-ai/chatgate/pkg/ratelimit"
	"github.com/pario-ai/chatgate/pkg/registry"
	"github.com/pario-ai/chatgate/pkg/retry"
)

// app is a fully wired session plus the stores it opened.
type app struct {
	cfg     *config.Config
	session *gateway.Session
	auditor *audit.Logger
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("close: %v", err)
		}
	}
}

// loadConfig reads path, falling back to defaults when the default config
// file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if path == "" || path == config.DefaultPath {
		return config.LoadOrDefault(config.DefaultPath)
	}
	return config.Load(path)
}

func newApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	// --log-level wins over the config file.
	if logLevel == "" && cfg.LogLevel != "" {
		if err := setLogLevel(cfg.LogLevel); err != nil {
			return nil, errors.Wrap(err, "log_level")
		}
	}

	a := &app{cfg: cfg}
	opts, err := a.clientOptions()
	if err != nil {
		a.Close()
		return nil, err
	}

	transport := provider.New(cfg.BaseURL, cfg.APIKey, provider.WithTimeout(cfg.RequestTimeout))
	if cfg.APIKey == "" {
		log.Warn("no API key configured; set api_key or HF_API_KEY")
	} else {
		log.Debugf("using API key %s", transport.KeyFingerprint())
	}

	client := gateway.New(registry.New(cfg.ModelDescriptors()), transport, opts...)

	var sessOpts []gateway.SessionOption
	if cfg.History.Enabled {
		store, err := history.New(cfg.History.DBPath)
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "init history")
		}
		a.closers = append(a.closers, store.Close)
		sessOpts = append(sessOpts, gateway.WithHistory(store))
	}

	a.session = gateway.NewSession(client, sessOpts...)
	return a, nil
}

func (a *app) clientOptions() ([]gateway.Option, error) {
	cfg := a.cfg
	opts := []gateway.Option{
		gateway.WithLimiter(ratelimit.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)),
		gateway.WithRetry(retry.New(retry.Policy{
			MaxRetries:      cfg.Retry.MaxRetries,
			BackoffBase:     cfg.Retry.BackoffBase,
			MaxDelay:        cfg.Retry.MaxDelay,
			HonorRetryAfter: cfg.Retry.HonorRetryAfter,
		})),
	}

	switch {
	case !cfg.Cache.Enabled:
		opts = append(opts, gateway.WithCache(nil))
	case cfg.Cache.Backend == "sqlite":
		c, err := cachepkg.New(cfg.Cache.DBPath, cfg.Cache.TTL)
		if err != nil {
			return nil, errors.Wrap(err, "init cache")
		}
		a.closers = append(a.closers, c.Close)
		opts = append(opts, gateway.WithCache(c))
	default:
		opts = append(opts, gateway.WithCache(cache.NewMemory(cfg.Cache.TTL, cfg.Cache.MaxEntries)))
	}

	if cfg.Audit.Enabled {
		l, err := audit.New(cfg.Audit)
		if err != nil {
			return nil, errors.Wrap(err, "init audit")
		}
		a.auditor = l
		a.closers = append(a.closers, l.Close)
		opts = append(opts, gateway.WithRecorder(l))
	}
	return opts, nil
}
