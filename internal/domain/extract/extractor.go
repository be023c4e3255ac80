// Package extract turns rendered target content into records, defensively.
//
// Strategies are tried in order: JSON rows (when the content, or a lone <pre>
// block such as a browser's JSON viewer, decodes as JSON), the first HTML table
// whose header satisfies the schema, and a pattern scan over the page text. A page matching none of them is reported as no data with a
// schema-not-matched detail, which is distinct from the target's own no-data marker.
package extract

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

const (
	// DefaultFuzzyThreshold is the minimum Jaro-Winkler similarity for a header label match.
	DefaultFuzzyThreshold = 0.92

	// DetailSchemaNotMatched is the outcome detail when nothing matched the schema.
	DetailSchemaNotMatched = "schema not matched"
	// DetailNoRows is the outcome detail when a matching structure held no valid rows.
	DetailNoRows = "no valid rows"
)

// Options configures an Extractor.
type Options struct {
	Logger         *slog.Logger
	FuzzyThreshold float64
	Now            func() time.Time
}

// Extractor is stateless apart from its options and safe for concurrent use.
type Extractor struct {
	logger    *slog.Logger
	threshold float64
	now       func() time.Time
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	e := &Extractor{logger: opts.Logger, threshold: opts.FuzzyThreshold, now: opts.Now}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "extractor")
	if e.threshold <= 0 || e.threshold > 1 {
		e.threshold = DefaultFuzzyThreshold
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Input is one extraction call.
type Input struct {
	Content string
	Schema  *Schema
	Item    model.WorkItem
}

// scan is the intermediate result of one strategy.
type scan struct {
	matched bool
	records []model.Record
	dropped int
}

// Extract runs the strategies and classifies the result.
func (e *Extractor) Extract(in Input) model.Outcome {
	content := strings.TrimSpace(in.Content)
	observed := e.now().UTC()

	if looksLikeJSON(content) {
		if out, ok := e.extractJSON(content, in, observed); ok {
			return out
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return failure(apperrors.Wrap(err, apperrors.ErrCodeExtractionFailure, "parse html"))
	}
	if payload, ok := wrappedJSON(doc); ok {
		if out, ok := e.extractJSON(payload, in, observed); ok {
			return out
		}
	}

	table := e.scanTables(doc, in, observed)
	if len(table.records) > 0 {
		return e.classify(in, table, scan{})
	}
	fallback := e.scanText(visibleText(doc.Selection), in, observed)
	return e.classify(in, table, fallback)
}

// extractJSON reports false when content does not decode, leaving the markup
// strategies to run. Decoded content without rows still gets the pattern scan.
func (e *Extractor) extractJSON(content string, in Input, observed time.Time) (model.Outcome, bool) {
	res, err := e.scanJSON(content, in, observed)
	if errors.Is(err, errNotJSON) {
		e.logger.Debug("content is not json, scanning markup",
			"source", in.Schema.def.Name, "item", in.Item.String(), "error", err)
		return model.Outcome{}, false
	}
	if err != nil {
		return failure(err), true
	}
	if len(res.records) > 0 {
		return e.classify(in, res, scan{}), true
	}
	return e.classify(in, res, e.scanText(content, in, observed)), true
}

func (e *Extractor) classify(in Input, primary, fallback scan) model.Outcome {
	dropped := primary.dropped + fallback.dropped
	switch {
	case len(primary.records) > 0:
		return model.Outcome{Status: model.OutcomeSuccess, Records: primary.records, Dropped: dropped}
	case len(fallback.records) > 0:
		e.logger.Debug("primary scan empty, fallback pattern matched",
			"source", in.Schema.def.Name, "item", in.Item.String(), "records", len(fallback.records))
		return model.Outcome{Status: model.OutcomeSuccess, Records: fallback.records, Dropped: dropped}
	case primary.matched || fallback.matched:
		return model.Outcome{Status: model.OutcomeNoData, Dropped: dropped, Detail: DetailNoRows}
	default:
		e.logger.Info("content did not match schema", "source", in.Schema.def.Name, "item", in.Item.String())
		return model.Outcome{
			Status:  model.OutcomeNoData,
			Dropped: dropped,
			Detail:  DetailSchemaNotMatched,
			Err: apperrors.Newf(apperrors.ErrCodeSchemaNotMatched,
				"no table or pattern matched schema %s", in.Schema.def.Name),
		}
	}
}

func failure(err error) model.Outcome {
	return model.Outcome{Status: model.OutcomeError, Detail: err.Error(), Err: err}
}

// rowBuilder assembles one record from located cells.
type rowBuilder struct {
	schema *Schema
	item   model.WorkItem
	rec    model.Record
	bad    bool
}

func newRow(s *Schema, item model.WorkItem, observed time.Time) *rowBuilder {
	return &rowBuilder{schema: s, item: item, rec: model.NewRecord(observed)}
}

// set parses a cell for column ci. Failures on strict fields mark the row bad.
func (b *rowBuilder) set(ci int, raw any) {
	c := b.schema.columns[ci]
	text, isText := raw.(string)
	if isText {
		text = stripLabelPrefix(cleanText(text), c)
		raw = text
	}
	if c.pattern != nil && isText && !blanks[strings.ToLower(text)] && !c.pattern.MatchString(text) {
		b.reject(c)
		return
	}
	v, err := convertScalar(raw, c.spec)
	if err != nil {
		b.reject(c)
		return
	}
	b.rec.Set(c.spec.Field, v)
}

func (b *rowBuilder) reject(c column) {
	if b.schema.strict[c.spec.Field] {
		b.bad = true
		return
	}
	b.rec.Set(c.spec.Field, model.Null())
}

// finish applies work item context and the identity check.
func (b *rowBuilder) finish() (model.Record, bool) {
	def := b.schema.def
	if def.TargetField != "" {
		b.rec.Set(def.TargetField, model.String(b.item.TargetKey))
	}
	if def.PeriodField != "" {
		b.rec.Set(def.PeriodField, model.String(b.item.PeriodKey))
	}
	if b.bad {
		return b.rec, false
	}
	for field := range b.schema.strict {
		if b.rec.Get(field).Empty() {
			return b.rec, false
		}
	}
	if _, missing := b.rec.MissingIdentity(def.Identity); missing {
		return b.rec, false
	}
	return b.rec, true
}

// stripLabelPrefix removes a "Label: " prefix some responsive tables repeat in each cell.
func stripLabelPrefix(text string, c column) string {
	idx := strings.IndexAny(text, ":：")
	if idx <= 0 {
		return text
	}
	head := normalizeLabel(text[:idx])
	for _, l := range c.labels {
		if head == l {
			return strings.TrimSpace(strings.TrimLeft(text[idx:], ":："))
		}
	}
	return text
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// wrappedJSON returns the text of a table-less page whose only <pre> holds JSON,
// which is how browsers render a JSON response.
func wrappedJSON(doc *goquery.Document) (string, bool) {
	if doc.Find("table").Length() > 0 {
		return "", false
	}
	pre := doc.Find("body pre")
	if pre.Length() != 1 {
		return "", false
	}
	text := strings.TrimSpace(pre.Text())
	return text, looksLikeJSON(text)
}
