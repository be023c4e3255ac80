// Package formclient is an HTTP automation backend for targets whose search form
// works without JavaScript. Each session GETs the form page, fills the parsed
// form fields and POSTs them back.
package formclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

const (
	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
)

var errNoPage = errors.New("no page loaded")

// Options configures the form client factory.
type Options struct {
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Factory opens form sessions. Each session has its own cookie jar.
type Factory struct {
	opts   Options
	logger *slog.Logger
}

var _ core.TargetFactory = (*Factory)(nil)

// New creates a Factory.
func New(opts Options) *Factory {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{opts: opts, logger: logger.With("component", "formclient")}
}

// Open starts a fresh session for one work item.
func (f *Factory) Open(_ context.Context, nav model.NavigationSpec) (core.AutomationTarget, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := resty.New().
		SetCookieJar(jar).
		SetTimeout(f.opts.Timeout).
		SetHeader("User-Agent", f.opts.UserAgent)
	if f.opts.Transport != nil {
		client.SetTransport(f.opts.Transport)
	}
	if f.opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	return &session{client: client, nav: nav, logger: f.logger}, nil
}

type session struct {
	client *resty.Client
	nav    model.NavigationSpec
	logger *slog.Logger

	page    *url.URL
	doc     *goquery.Document
	form    *form
	content string
}

func (s *session) Navigate(ctx context.Context, rawURL string) error {
	res, err := s.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return apperrors.FromTransport(err, "get "+rawURL)
	}
	return s.load(res)
}

func (s *session) FillField(_ context.Context, selector, value string) error {
	if s.form == nil {
		return apperrors.Newf(apperrors.ErrCodeNavigationError, "fill %s: %v", selector, errNoPage)
	}
	name := s.doc.Find(selector).First().AttrOr("name", "")
	if name == "" {
		return apperrors.Newf(apperrors.ErrCodeNavigationError, "field %s not found", selector)
	}
	s.form.values.Set(name, value)
	return nil
}

func (s *session) Submit(ctx context.Context) error {
	if s.form == nil {
		return apperrors.Newf(apperrors.ErrCodeNavigationError, "submit: %v", errNoPage)
	}
	values := cloneValues(s.form.values)
	if s.nav.Submit == "" {
		return apperrors.New(apperrors.ErrCodeNavigationError, "submit selector is not configured")
	}
	if btn := s.doc.Find(s.nav.Submit).First(); btn.Length() > 0 {
		if name := btn.AttrOr("name", ""); name != "" {
			values.Set(name, btn.AttrOr("value", ""))
		}
	}
	action := s.page.ResolveReference(s.form.action)

	req := s.client.R().SetContext(ctx).SetHeader("Referer", s.page.String())
	var (
		res *resty.Response
		err error
	)
	if s.form.method == http.MethodGet {
		action.RawQuery = values.Encode()
		res, err = req.Get(action.String())
	} else {
		res, err = req.SetFormDataFromValues(values).Post(action.String())
	}
	if err != nil {
		return apperrors.FromTransport(err, "submit "+action.String())
	}
	return s.load(res)
}

// WaitForStable has nothing to wait for once a response body is read. It only
// confirms the result selector when the page is not a no-data page.
func (s *session) WaitForStable(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.doc == nil || s.nav.ResultSelector == "" {
		return nil
	}
	if s.doc.Find(s.nav.ResultSelector).Length() == 0 {
		s.logger.Debug("result selector absent", "selector", s.nav.ResultSelector, "url", s.page.String())
	}
	return nil
}

func (s *session) ReadContent(context.Context) (string, error) {
	if s.doc == nil {
		return "", apperrors.Newf(apperrors.ErrCodeNavigationError, "read content: %v", errNoPage)
	}
	return s.content, nil
}

func (s *session) Close() error {
	s.doc, s.form = nil, nil
	return nil
}

func (s *session) load(res *resty.Response) error {
	target := res.Request.URL
	if err := apperrors.FromHTTPStatus(res.StatusCode(), target); err != nil {
		return err
	}
	page, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse page url: %w", err)
	}
	if raw := res.RawResponse; raw != nil && raw.Request != nil {
		page = raw.Request.URL
	}
	body := res.Body()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeExtractionFailure, "parse %s", target)
	}
	s.page, s.doc, s.content = page, doc, string(body)
	s.form = parseForm(doc, s.nav.FormSelector)
	return nil
}

type form struct {
	action *url.URL
	method string
	values url.Values
}

// parseForm collects the successful controls of the selected form, or the first
// form on the page. Submit buttons are left out; Submit adds the one clicked.
func parseForm(doc *goquery.Document, selector string) *form {
	sel := doc.Find("form").First()
	if selector != "" {
		sel = doc.Find(selector).First()
	}
	if sel.Length() == 0 {
		return nil
	}
	action, err := url.Parse(strings.TrimSpace(sel.AttrOr("action", "")))
	if err != nil {
		action = &url.URL{}
	}
	f := &form{
		action: action,
		method: strings.ToUpper(sel.AttrOr("method", http.MethodPost)),
		values: url.Values{},
	}
	if f.method != http.MethodGet {
		f.method = http.MethodPost
	}

	sel.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if _, checked := in.Attr("checked"); !checked {
				return
			}
			f.values.Add(in.AttrOr("name", ""), in.AttrOr("value", "on"))
		default:
			f.values.Add(in.AttrOr("name", ""), in.AttrOr("value", ""))
		}
	})
	sel.Find("textarea[name]").Each(func(_ int, ta *goquery.Selection) {
		f.values.Add(ta.AttrOr("name", ""), ta.Text())
	})
	sel.Find("select[name]").Each(func(_ int, s *goquery.Selection) {
		opt := s.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = s.Find("option").First()
		}
		if opt.Length() == 0 {
			return
		}
		f.values.Add(s.AttrOr("name", ""), opt.AttrOr("value", strings.TrimSpace(opt.Text())))
	})
	return f
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
