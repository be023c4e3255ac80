package bootstrap

import (
	"log/slog"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/adapters/browser"
	"github.com/target/mmk-crawlsync/internal/adapters/formclient"
	"github.com/target/mmk-crawlsync/internal/core"
)

// TargetFactory is a core.TargetFactory that owns resources released on shutdown.
type TargetFactory interface {
	core.TargetFactory
	Close() error
}

// NewTargetFactory picks the automation backend configured by BROWSER_BACKEND.
//
//nolint:ireturn // the backend is chosen at runtime.
func NewTargetFactory(cfg config.BrowserConfig, logger *slog.Logger) TargetFactory {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case config.BrowserHTTP:
		logger.Info("automation backend selected", "backend", string(cfg.Backend),
			"cloudflare_bypass", cfg.CloudflareBypass)
		return &formFactory{formclient.New(formclient.Options{
			UserAgent:        cfg.UserAgent,
			Timeout:          cfg.RequestTimeout,
			CloudflareBypass: cfg.CloudflareBypass,
			Logger:           logger,
		})}
	default:
		logger.Info("automation backend selected", "backend", string(config.BrowserRod),
			"remote", cfg.ControlURL != "", "stealth", cfg.Stealth)
		return browser.New(browser.Options{
			ControlURL: cfg.ControlURL,
			Headless:   cfg.Headless,
			Stealth:    cfg.Stealth,
			UserAgent:  cfg.UserAgent,
			Logger:     logger,
		})
	}
}

// formFactory gives the stateless form client a Close.
type formFactory struct {
	*formclient.Factory
}

func (formFactory) Close() error { return nil }
