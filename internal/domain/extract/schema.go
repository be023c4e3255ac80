package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// Schema is a source definition compiled for extraction.
type Schema struct {
	def      *model.SourceDefinition
	columns  []column
	fallback *regexp.Regexp
	// strict holds fields whose parse or format failure drops the whole row.
	strict map[string]bool
}

type column struct {
	spec    model.ColumnSpec
	labels  []string
	pattern *regexp.Regexp
}

// NewSchema validates and compiles def.
func NewSchema(def *model.SourceDefinition) (*Schema, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if def.JSONRows != "" {
		if _, err := jmespath.Compile(def.JSONRows); err != nil {
			return nil, fmt.Errorf("%w: %s: json_rows: %w", model.ErrInvalidSource, def.Name, err)
		}
	}

	s := &Schema{def: def, strict: make(map[string]bool)}
	for _, f := range def.Identity {
		s.strict[f] = true
	}
	for _, spec := range def.Columns {
		c := column{spec: spec}
		labels := append([]string{spec.Field}, spec.Labels...)
		for _, l := range labels {
			if n := normalizeLabel(l); n != "" {
				c.labels = append(c.labels, n)
			}
		}
		if spec.Pattern != "" {
			c.pattern = regexp.MustCompile(spec.Pattern)
		}
		if spec.Required {
			s.strict[spec.Field] = true
		}
		s.columns = append(s.columns, c)
	}
	if def.Fallback.Pattern != "" {
		s.fallback = regexp.MustCompile(def.Fallback.Pattern)
	}
	return s, nil
}

// Definition returns the source definition the schema was compiled from.
func (s *Schema) Definition() *model.SourceDefinition { return s.def }

// headerSatisfied reports whether the resolved columns are enough to read rows.
// Every required column must be present; without required columns every identity
// column must be present.
func (s *Schema) headerSatisfied(resolved map[int]int) bool {
	found := make(map[string]bool, len(resolved))
	for _, ci := range resolved {
		found[s.columns[ci].spec.Field] = true
	}
	if len(found) == 0 {
		return false
	}
	anyRequired := false
	for _, c := range s.columns {
		if c.spec.Required {
			anyRequired = true
			if !found[c.spec.Field] {
				return false
			}
		}
	}
	if anyRequired {
		return true
	}
	for _, c := range s.columns {
		if s.def.IsIdentity(c.spec.Field) && !found[c.spec.Field] {
			return false
		}
	}
	return true
}

// normalizeLabel lowercases, turns punctuation into spaces and collapses whitespace.
func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '%':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
