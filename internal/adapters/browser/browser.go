// Package browser is the headless Chromium automation backend built on go-rod.
// One browser process is shared; every session runs in its own incognito context.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

// DefaultSettle is the DOM quiet period used when a source sets none.
const DefaultSettle = 500 * time.Millisecond

var errClosed = errors.New("browser: factory is closed")

// Options configures the browser factory.
type Options struct {
	// ControlURL is the DevTools websocket of an external Chrome. Empty launches a local one.
	ControlURL string
	Headless   bool
	Stealth    bool
	UserAgent  string
	Logger     *slog.Logger
}

// Factory opens rod sessions against a lazily started browser.
type Factory struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

var _ core.TargetFactory = (*Factory)(nil)

// New creates a Factory. The browser starts on the first Open.
func New(opts Options) *Factory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{opts: opts, logger: logger.With("component", "browser")}
}

// Open creates an incognito page for one work item.
func (f *Factory) Open(ctx context.Context, nav model.NavigationSpec) (core.AutomationTarget, error) {
	b, err := f.connect(ctx)
	if err != nil {
		return nil, err
	}
	incognito, err := b.Incognito()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientNetwork, "open incognito context")
	}

	var page *rod.Page
	if f.opts.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientNetwork, "create page")
	}
	if f.opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.opts.UserAgent}); err != nil {
			f.logger.Warn("set user agent failed", "error", err)
		}
	}
	return &session{ctx: incognito, page: page, nav: nav, logger: f.logger}, nil
}

// Close shuts down the browser and any launched process.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Cleanup()
		f.lnch = nil
	}
	return err
}

func (f *Factory) connect(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errClosed
	}
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(f.opts.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeMissingConfiguration, "launch local chrome")
		}
		controlURL = u
		f.lnch = l
		f.logger.Info("launched local chrome", "url", controlURL, "headless", f.opts.Headless)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransientNetwork, "connect to chrome")
	}
	f.browser = b
	return b, nil
}

type session struct {
	ctx    *rod.Browser
	page   *rod.Page
	nav    model.NavigationSpec
	logger *slog.Logger
	once   sync.Once
}

func (s *session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	status := 0
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status = e.Response.Status
		return true
	})
	if err := p.Navigate(url); err != nil {
		return classify(err, "navigate "+url)
	}
	wait()
	if err := apperrors.FromHTTPStatus(status, url); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		return classify(err, "load "+url)
	}
	return nil
}

func (s *session) FillField(ctx context.Context, selector, value string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return classify(err, "find "+selector)
	}
	if err := el.SelectAllText(); err != nil {
		return classify(err, "select "+selector)
	}
	if err := el.Input(value); err != nil {
		return classify(err, "input "+selector)
	}
	return nil
}

func (s *session) Submit(ctx context.Context) error {
	el, err := s.page.Context(ctx).Element(s.nav.Submit)
	if err != nil {
		return classify(err, "find "+s.nav.Submit)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return classify(err, "click "+s.nav.Submit)
	}
	return nil
}

// WaitForStable waits for the post-submit load and then for the DOM to stop changing.
func (s *session) WaitForStable(ctx context.Context, timeout time.Duration) error {
	p := s.page.Context(ctx).Timeout(timeout)
	if err := p.WaitLoad(); err != nil {
		return classify(err, "wait for load")
	}
	settle := s.nav.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	if err := p.WaitDOMStable(settle, 0); err != nil {
		return classify(err, "wait for stable DOM")
	}
	return nil
}

// ReadContent returns the page markup, or the body text when the response was
// not a markup document (a JSON body is otherwise wrapped in the viewer's HTML).
func (s *session) ReadContent(ctx context.Context) (string, error) {
	page := s.page.Context(ctx)
	res, err := page.Eval(`() => document.contentType`)
	if err != nil {
		return "", classify(err, "read content type")
	}
	if ct := res.Value.Str(); !isMarkup(ct) {
		body, err := page.Element("body")
		if err != nil {
			return "", classify(err, "read body")
		}
		text, err := body.Text()
		if err != nil {
			return "", classify(err, "read body text")
		}
		return text, nil
	}
	html, err := page.HTML()
	if err != nil {
		return "", classify(err, "read content")
	}
	return html, nil
}

func isMarkup(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" || strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		if perr := s.page.Close(); perr != nil {
			s.logger.Debug("close page", "error", perr)
		}
		err = s.ctx.Close()
	})
	return err
}

// classify maps rod failures onto the pipeline error codes.
func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.FromTransport(err, op)
	}
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		if transientReason(navErr.Reason) {
			return apperrors.Wrapf(err, apperrors.ErrCodeTransientNetwork, "%s", op)
		}
		return apperrors.Wrapf(err, apperrors.ErrCodeNavigationError, "%s", op)
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return apperrors.Wrapf(err, apperrors.ErrCodeNavigationError, "%s", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func transientReason(reason string) bool {
	for _, r := range []string{"ERR_CONNECTION", "ERR_TIMED_OUT", "ERR_NETWORK_CHANGED", "ERR_EMPTY_RESPONSE", "ERR_INTERNET_DISCONNECTED"} {
		if strings.Contains(reason, r) {
			return true
		}
	}
	return false
}
