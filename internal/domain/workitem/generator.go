// Package workitem expands a job request into the ordered target × date work units of a job.
package workitem

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

const (
	// DefaultMaxSpanDays bounds the inclusive date range of one job.
	DefaultMaxSpanDays = 100
	// DefaultMaxTargets bounds the number of targets of one job.
	DefaultMaxTargets = 20
	// DefaultTargetWidth is the zero-padded width of numeric target codes.
	DefaultTargetWidth = 5

	// latestLookback limits how far latest-only mode walks back to find a trading day.
	latestLookback = 14
)

var (
	reDigits = regexp.MustCompile(`^[0-9]+$`)
	reTarget = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]*$`)
)

// Request is the generator input derived from a job request.
type Request struct {
	Targets    []string
	DateFrom   time.Time
	DateTo     time.Time
	LatestOnly bool
}

// Options configures a Generator.
type Options struct {
	MaxSpanDays int
	MaxTargets  int
	TargetWidth int
	Calendar    Calendar
}

// Generator produces work items. It performs no I/O.
type Generator struct {
	maxSpanDays int
	maxTargets  int
	width       int
	calendar    Calendar
}

// NewGenerator creates a Generator, applying defaults for unset options.
func NewGenerator(opts Options) *Generator {
	g := &Generator{
		maxSpanDays: opts.MaxSpanDays,
		maxTargets:  opts.MaxTargets,
		width:       opts.TargetWidth,
		calendar:    opts.Calendar,
	}
	if g.maxSpanDays <= 0 {
		g.maxSpanDays = DefaultMaxSpanDays
	}
	if g.maxTargets <= 0 {
		g.maxTargets = DefaultMaxTargets
	}
	if g.width <= 0 {
		g.width = DefaultTargetWidth
	}
	if g.calendar == nil {
		g.calendar = (*TradingCalendar)(nil)
	}
	return g
}

// NormalizeTarget trims and upper-cases a target identifier and zero-pads numeric codes to width.
func NormalizeTarget(raw string, width int) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	if reDigits.MatchString(t) && len(t) < width {
		t = strings.Repeat("0", width-len(t)) + t
	}
	return t
}

// Generate returns targets × dates, targets in the outer loop. now supplies "today" for latest-only requests.
func (g *Generator) Generate(req Request, now time.Time) ([]model.WorkItem, error) {
	targets, err := g.targets(req.Targets)
	if err != nil {
		return nil, err
	}

	dates, err := g.dates(req, now)
	if err != nil {
		return nil, err
	}

	items := make([]model.WorkItem, 0, len(targets)*len(dates))
	for _, t := range targets {
		for _, d := range dates {
			items = append(items, model.WorkItem{
				TargetKey: t,
				PeriodKey: d.Format(model.DateLayout),
				Period:    d,
			})
		}
	}
	return items, nil
}

func (g *Generator) targets(raw []string) ([]string, error) {
	if len(raw) == 0 || len(raw) > g.maxTargets {
		return nil, apperrors.ValidationField("targets",
			fmt.Sprintf("between 1 and %d targets are required", g.maxTargets))
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := NormalizeTarget(r, g.width)
		if !reTarget.MatchString(t) {
			return nil, apperrors.ValidationField("targets", fmt.Sprintf("invalid target identifier %q", r))
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

func (g *Generator) dates(req Request, now time.Time) ([]time.Time, error) {
	if req.LatestOnly {
		return []time.Time{g.latest(now)}, nil
	}
	switch {
	case req.DateFrom.IsZero() && req.DateTo.IsZero():
		return nil, apperrors.ValidationField("date_from", "date_from or date_to is required unless latest_only is set")
	case req.DateTo.IsZero():
		req.DateTo = req.DateFrom
	case req.DateFrom.IsZero():
		req.DateFrom = req.DateTo
	}

	from, to := dayOf(req.DateFrom), dayOf(req.DateTo)
	if to.Before(from) {
		return nil, apperrors.ValidationField("date_to", "date_to must not be before date_from")
	}
	span := int(to.Sub(from).Hours()/24) + 1
	if span > g.maxSpanDays {
		return nil, apperrors.RangeTooLargef("date range of %d days exceeds the %d day limit", span, g.maxSpanDays)
	}

	out := make([]time.Time, 0, span)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if g.calendar.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// latest is today, rolled back to the most recent trading day.
func (g *Generator) latest(now time.Time) time.Time {
	today := dayOf(now)
	for i := 0; i < latestLookback; i++ {
		d := today.AddDate(0, 0, -i)
		if g.calendar.IsTradingDay(d) {
			return d
		}
	}
	return today
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
