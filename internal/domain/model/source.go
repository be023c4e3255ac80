package model

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// ColumnType controls how a cell is parsed.
type ColumnType string

const (
	// ColumnText keeps the trimmed cell text.
	ColumnText ColumnType = "text"
	// ColumnInteger parses a whole number, stripping thousands separators.
	ColumnInteger ColumnType = "integer"
	// ColumnDecimal parses a decimal number; parentheses denote a negative value.
	ColumnDecimal ColumnType = "decimal"
	// ColumnPercent parses "12.5%" as 12.5.
	ColumnPercent ColumnType = "percent"
	// ColumnDate normalizes a date cell to YYYY-MM-DD using the column layout.
	ColumnDate ColumnType = "date"
)

// Valid reports whether t is a known column type.
func (t ColumnType) Valid() bool {
	switch t {
	case ColumnText, ColumnInteger, ColumnDecimal, ColumnPercent, ColumnDate:
		return true
	}
	return false
}

// ColumnSpec declares one output field and how to find and parse it.
type ColumnSpec struct {
	Field  string     `yaml:"field"  json:"field"`
	Labels []string   `yaml:"labels" json:"labels"`
	Type   ColumnType `yaml:"type"   json:"type"`
	// Layout is the Go time layout for date columns.
	Layout   string `yaml:"layout,omitempty"   json:"layout,omitempty"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Positive bool   `yaml:"positive,omitempty" json:"positive,omitempty"`
	// Pattern is a format check applied to the cleaned text before parsing.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// FallbackSpec is the secondary, pattern-based scan over unstructured text.
// Named groups in Pattern map to column fields.
type FallbackSpec struct {
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// NavigationSpec tells the navigator how to reach the results for one work item.
type NavigationSpec struct {
	URL            string        `yaml:"url"                       json:"url"`
	FormSelector   string        `yaml:"form_selector,omitempty"   json:"form_selector,omitempty"`
	TargetInput    string        `yaml:"target_input"              json:"target_input"`
	PeriodInput    string        `yaml:"period_input,omitempty"    json:"period_input,omitempty"`
	PeriodLayout   string        `yaml:"period_layout,omitempty"   json:"period_layout,omitempty"`
	Submit         string        `yaml:"submit"                    json:"submit"`
	ResultSelector string        `yaml:"result_selector,omitempty" json:"result_selector,omitempty"`
	NoDataMarkers  []string      `yaml:"no_data_markers,omitempty" json:"no_data_markers,omitempty"`
	ErrorMarkers   []string      `yaml:"error_markers,omitempty"   json:"error_markers,omitempty"`
	Settle         time.Duration `yaml:"settle,omitempty"          json:"settle,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"         json:"timeout,omitempty"`
}

// SourceDefinition is the declarative description of one crawlable source.
type SourceDefinition struct {
	Name        string          `yaml:"name"                  json:"name"`
	Description string          `yaml:"description,omitempty" json:"description,omitempty"`
	Mode        FingerprintMode `yaml:"mode"                  json:"mode"`
	TargetWidth int             `yaml:"target_width"          json:"target_width"`
	TargetField string          `yaml:"target_field"          json:"target_field"`
	PeriodField string          `yaml:"period_field"          json:"period_field"`
	Identity    []string        `yaml:"identity"              json:"identity"`
	Columns     []ColumnSpec    `yaml:"columns"               json:"columns"`
	Fallback    FallbackSpec    `yaml:"fallback,omitempty"    json:"fallback,omitempty"`
	// JSONRows is a JMESPath expression selecting the row objects of JSON content.
	JSONRows   string         `yaml:"json_rows,omitempty" json:"json_rows,omitempty"`
	Navigation NavigationSpec `yaml:"navigation"          json:"navigation"`
	Holidays   []string       `yaml:"holidays,omitempty"  json:"holidays,omitempty"`
}

// ErrInvalidSource wraps every source definition validation failure.
var ErrInvalidSource = errors.New("invalid source definition")

// Validate checks the definition is internally consistent.
func (d *SourceDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSource)
	}
	if !d.Mode.Valid() {
		return fmt.Errorf("%w: %s: mode must be identity or content", ErrInvalidSource, d.Name)
	}
	if len(d.Identity) == 0 {
		return fmt.Errorf("%w: %s: at least one identity field is required", ErrInvalidSource, d.Name)
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("%w: %s: at least one column is required", ErrInvalidSource, d.Name)
	}

	known := map[string]bool{}
	if d.TargetField != "" {
		known[d.TargetField] = true
	}
	if d.PeriodField != "" {
		known[d.PeriodField] = true
	}
	for _, c := range d.Columns {
		if c.Field == "" {
			return fmt.Errorf("%w: %s: column without field", ErrInvalidSource, d.Name)
		}
		if !c.Type.Valid() {
			return fmt.Errorf("%w: %s: column %s has unknown type %q", ErrInvalidSource, d.Name, c.Field, c.Type)
		}
		if c.Pattern != "" {
			if _, err := regexp.Compile(c.Pattern); err != nil {
				return fmt.Errorf("%w: %s: column %s pattern: %w", ErrInvalidSource, d.Name, c.Field, err)
			}
		}
		known[c.Field] = true
	}
	for _, f := range d.Identity {
		if !known[f] {
			return fmt.Errorf("%w: %s: identity field %s is not produced by any column", ErrInvalidSource, d.Name, f)
		}
	}
	if d.Fallback.Pattern != "" {
		if _, err := regexp.Compile(d.Fallback.Pattern); err != nil {
			return fmt.Errorf("%w: %s: fallback pattern: %w", ErrInvalidSource, d.Name, err)
		}
	}
	for _, h := range d.Holidays {
		if _, err := time.Parse(DateLayout, h); err != nil {
			return fmt.Errorf("%w: %s: holiday %q: %w", ErrInvalidSource, d.Name, h, err)
		}
	}
	return nil
}

// IsIdentity reports whether field participates in the identity key.
func (d *SourceDefinition) IsIdentity(field string) bool {
	return slices.Contains(d.Identity, field)
}

// ConflictKey returns the store conflict columns for the definition's mode.
func (d *SourceDefinition) ConflictKey() []string {
	if d.Mode == ModeContent {
		return []string{"source", "natural_key", "version"}
	}
	return []string{"source", "fingerprint"}
}
