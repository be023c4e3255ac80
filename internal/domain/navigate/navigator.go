// Package navigate drives one work item through a target's form:
// Init → Loaded → FormFilled → Submitted → {Extracted | EmptyResult | Errored}.
package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/extract"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

// State is a navigator state.
type State string

const (
	// StateInit is the state before the target page is requested.
	StateInit State = "init"
	// StateLoaded means the target page has loaded.
	StateLoaded State = "loaded"
	// StateFormFilled means the target and period inputs are filled.
	StateFormFilled State = "form_filled"
	// StateSubmitted means the form was submitted and the result has settled.
	StateSubmitted State = "submitted"
	// StateExtracted means records were extracted from the result.
	StateExtracted State = "extracted"
	// StateEmptyResult means the result held no data.
	StateEmptyResult State = "empty_result"
	// StateErrored means a step failed.
	StateErrored State = "errored"
)

const (
	// DefaultTimeout bounds each remote step when the source sets none.
	DefaultTimeout = 30 * time.Second

	// DetailTargetNoData is the outcome detail for the target's own no-data marker.
	DetailTargetNoData = "target reported no data"
)

// Result is the outcome of one work item plus the states it passed through.
type Result struct {
	Outcome model.Outcome
	States  []State
}

// Final returns the terminal state.
func (r Result) Final() State {
	if len(r.States) == 0 {
		return StateInit
	}
	return r.States[len(r.States)-1]
}

// Options configures a Navigator.
type Options struct {
	Targets   core.TargetFactory
	Extractor *extract.Extractor
	Logger    *slog.Logger
}

// Navigator runs the per-work-item state machine. It holds no per-item state.
type Navigator struct {
	targets   core.TargetFactory
	extractor *extract.Extractor
	logger    *slog.Logger
}

// New creates a Navigator.
func New(opts Options) (*Navigator, error) {
	if opts.Targets == nil {
		return nil, errors.New("target factory is required")
	}
	if opts.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		targets:   opts.Targets,
		extractor: opts.Extractor,
		logger:    logger.With("component", "navigator"),
	}, nil
}

// run carries the state of one work item.
type run struct {
	nav    model.NavigationSpec
	item   model.WorkItem
	states []State
}

func (r *run) to(s State) { r.states = append(r.states, s) }

func (r *run) fail(err error) Result {
	r.to(StateErrored)
	return Result{
		Outcome: model.Outcome{Status: model.OutcomeError, Detail: err.Error(), Err: err},
		States:  r.states,
	}
}

// Run processes item. The automation session is opened here and closed on every exit path.
func (n *Navigator) Run(ctx context.Context, item model.WorkItem, schema *extract.Schema) Result {
	def := schema.Definition()
	r := &run{nav: def.Navigation, item: item, states: []State{StateInit}}
	timeout := r.nav.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	session, err := n.targets.Open(ctx, r.nav)
	if err != nil {
		return r.fail(classify(err, "open session"))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			n.logger.Warn("close automation session", "item", item.String(), "error", cerr)
		}
	}()

	if err := step(ctx, timeout, func(ctx context.Context) error {
		return session.Navigate(ctx, expandURL(r.nav.URL, item, r.nav.PeriodLayout))
	}); err != nil {
		return r.fail(classify(err, "load target"))
	}
	r.to(StateLoaded)

	if err := n.fill(ctx, session, r, timeout); err != nil {
		return r.fail(classify(err, "fill form"))
	}
	r.to(StateFormFilled)

	if r.nav.Submit != "" {
		if err := step(ctx, timeout, session.Submit); err != nil {
			return r.fail(classify(err, "submit form"))
		}
	}
	if err := step(ctx, 2*timeout, func(ctx context.Context) error {
		return session.WaitForStable(ctx, timeout)
	}); err != nil {
		return r.fail(classify(err, "wait for result"))
	}
	r.to(StateSubmitted)

	var content string
	if err := step(ctx, timeout, func(ctx context.Context) error {
		var rerr error
		content, rerr = session.ReadContent(ctx)
		return rerr
	}); err != nil {
		return r.fail(classify(err, "read content"))
	}

	if marker, ok := containsAny(content, r.nav.ErrorMarkers); ok {
		return r.fail(apperrors.Newf(apperrors.ErrCodeNavigationError, "target reported error %q", marker))
	}
	if _, ok := containsAny(content, r.nav.NoDataMarkers); ok {
		r.to(StateEmptyResult)
		return Result{
			Outcome: model.Outcome{Status: model.OutcomeNoData, Detail: DetailTargetNoData},
			States:  r.states,
		}
	}

	out := n.extractor.Extract(extract.Input{Content: content, Schema: schema, Item: item})
	if out.Status == model.OutcomeError {
		r.to(StateErrored)
	} else {
		r.to(StateExtracted)
	}
	n.logger.Debug("work item extracted",
		"source", def.Name, "item", item.String(), "status", out.Status,
		"records", len(out.Records), "dropped", out.Dropped)
	return Result{Outcome: out, States: r.states}
}

func (n *Navigator) fill(ctx context.Context, session core.AutomationTarget, r *run, timeout time.Duration) error {
	fields := [][2]string{}
	if r.nav.TargetInput != "" {
		fields = append(fields, [2]string{r.nav.TargetInput, r.item.TargetKey})
	}
	if r.nav.PeriodInput != "" {
		fields = append(fields, [2]string{r.nav.PeriodInput, FormatPeriod(r.item, r.nav.PeriodLayout)})
	}
	for _, f := range fields {
		if err := step(ctx, timeout, func(ctx context.Context) error {
			return session.FillField(ctx, f[0], f[1])
		}); err != nil {
			return fmt.Errorf("field %s: %w", f[0], err)
		}
	}
	return nil
}

// FormatPeriod renders the work item period in the target's layout.
func FormatPeriod(item model.WorkItem, layout string) string {
	if layout == "" || item.Period.IsZero() {
		return item.PeriodKey
	}
	return item.Period.Format(layout)
}

// expandURL substitutes {target} and {period} placeholders.
func expandURL(raw string, item model.WorkItem, layout string) string {
	return strings.NewReplacer(
		"{target}", url.QueryEscape(item.TargetKey),
		"{period}", url.QueryEscape(FormatPeriod(item, layout)),
	).Replace(raw)
}

func step(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// classify keeps codes assigned by the backend and maps the rest to navigation errors.
func classify(err error, phase string) error {
	if apperrors.GetCode(err) != "" {
		return fmt.Errorf("%s: %w", phase, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrapf(err, apperrors.ErrCodeNavigationTimeout, "%s timed out", phase)
	}
	return apperrors.Wrapf(err, apperrors.ErrCodeNavigationError, "%s", phase)
}

func containsAny(content string, markers []string) (string, bool) {
	for _, m := range markers {
		if m != "" && strings.Contains(content, m) {
			return m, true
		}
	}
	return "", false
}
