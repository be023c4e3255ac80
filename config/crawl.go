package config

import (
	"strings"
	"time"
)

// Guardrails for crawl settings.
const (
	DefaultPolitenessDelay = 2 * time.Second
	DefaultRetryBaseDelay  = time.Second
	DefaultRetryMaxDelay   = 30 * time.Second
	DefaultMaxAttempts     = 3
	MaxAttemptsCeiling     = 10
	DefaultBatchSize       = 50
	MaxBatchSize           = 500
	DefaultMaxSpanDays     = 100
	DefaultMaxTargets      = 20
	DefaultMaxErrors       = 10
	DefaultJobConcurrency  = 2
)

// CrawlConfig holds job limits, pacing and retry settings.
type CrawlConfig struct {
	PolitenessDelay time.Duration `env:"POLITENESS_DELAY" envDefault:"2s"`
	RetryBaseDelay  time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	RetryMaxDelay   time.Duration `env:"RETRY_MAX_DELAY"  envDefault:"30s"`
	// MaxAttempts counts total attempts per work item, the first included.
	MaxAttempts    int    `env:"MAX_ATTEMPTS"    envDefault:"3"`
	BatchSize      int    `env:"BATCH_SIZE"      envDefault:"50"`
	MaxSpanDays    int    `env:"MAX_SPAN_DAYS"   envDefault:"100"`
	MaxTargets     int    `env:"MAX_TARGETS"     envDefault:"20"`
	MaxErrors      int    `env:"MAX_ERRORS"      envDefault:"10"`
	JobConcurrency int    `env:"JOB_CONCURRENCY" envDefault:"2"`
	DefaultSource  string `env:"DEFAULT_SOURCE"  envDefault:"shareholding"`
}

// Sanitize clamps crawl settings into safe ranges.
func (c *CrawlConfig) Sanitize() {
	if c.PolitenessDelay < 0 {
		c.PolitenessDelay = DefaultPolitenessDelay
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = max(c.RetryBaseDelay, DefaultRetryMaxDelay)
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	c.MaxAttempts = min(c.MaxAttempts, MaxAttemptsCeiling)
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	c.BatchSize = min(c.BatchSize, MaxBatchSize)
	if c.MaxSpanDays <= 0 {
		c.MaxSpanDays = DefaultMaxSpanDays
	}
	if c.MaxTargets <= 0 {
		c.MaxTargets = DefaultMaxTargets
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = DefaultMaxErrors
	}
	if c.JobConcurrency <= 0 {
		c.JobConcurrency = DefaultJobConcurrency
	}
	c.DefaultSource = strings.TrimSpace(c.DefaultSource)
}

// BrowserBackend selects the automation backend.
type BrowserBackend string

const (
	// BrowserRod drives headless Chromium through go-rod.
	BrowserRod BrowserBackend = "rod"
	// BrowserHTTP submits forms over plain HTTP.
	BrowserHTTP BrowserBackend = "http"
)

// BrowserConfig configures the automation backend.
type BrowserConfig struct {
	Backend BrowserBackend `env:"BACKEND" envDefault:"rod"`
	// ControlURL is the DevTools websocket of a remote Chrome. Empty launches a local one.
	ControlURL       string        `env:"CONTROL_URL"`
	Headless         bool          `env:"HEADLESS"          envDefault:"true"`
	Stealth          bool          `env:"STEALTH"           envDefault:"true"`
	UserAgent        string        `env:"USER_AGENT"`
	CloudflareBypass bool          `env:"CLOUDFLARE_BYPASS" envDefault:"false"`
	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT"   envDefault:"30s"`
}

// Sanitize falls back to the rod backend and a 30 second request timeout.
func (b *BrowserConfig) Sanitize() {
	b.Backend = BrowserBackend(strings.ToLower(strings.TrimSpace(string(b.Backend))))
	if b.Backend != BrowserHTTP {
		b.Backend = BrowserRod
	}
	b.ControlURL = strings.TrimSpace(b.ControlURL)
	b.UserAgent = strings.TrimSpace(b.UserAgent)
	if b.RequestTimeout <= 0 {
		b.RequestTimeout = 30 * time.Second
	}
}

// SourcesConfig points at an optional YAML file replacing the built-in sources.
type SourcesConfig struct {
	File string `env:"SOURCES_FILE"`
}
