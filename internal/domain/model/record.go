package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is one extracted row: field name to value, plus the time it was observed.
type Record struct {
	Fields     map[string]Value `json:"fields"`
	ObservedAt time.Time        `json:"observed_at"`
}

// NewRecord returns an empty record observed at t.
func NewRecord(observedAt time.Time) Record {
	return Record{Fields: make(map[string]Value), ObservedAt: observedAt}
}

// Get returns the named field, or null when absent.
func (r Record) Get(field string) Value {
	if r.Fields == nil {
		return Null()
	}
	return r.Fields[field]
}

// Set assigns a field, allocating the map on first use.
func (r *Record) Set(field string, v Value) {
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.Fields[field] = v
}

// FieldNames returns the field names in sorted order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MissingIdentity returns the first identity field that is absent or blank.
func (r Record) MissingIdentity(identity []string) (string, bool) {
	for _, f := range identity {
		if r.Get(f).Empty() {
			return f, true
		}
	}
	return "", false
}

// WorkItem is one target/period pair. PeriodKey is formatted YYYY-MM-DD.
type WorkItem struct {
	TargetKey string    `json:"target_key"`
	PeriodKey string    `json:"period_key"`
	Period    time.Time `json:"-"`
}

func (w WorkItem) String() string { return w.TargetKey + "@" + w.PeriodKey }

// OutcomeStatus is the result class of one work item.
type OutcomeStatus string

const (
	// OutcomeSuccess means records were extracted.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeNoData means the target reported no data, or nothing matched the schema.
	OutcomeNoData OutcomeStatus = "no_data"
	// OutcomeError means the work item failed.
	OutcomeError OutcomeStatus = "error"
)

// Outcome is what navigation and extraction produce for one work item. It is never persisted.
type Outcome struct {
	Status  OutcomeStatus
	Records []Record
	// Dropped counts rows discarded because identity fields were missing or malformed.
	Dropped int
	Detail  string
	// Err is set when Status is OutcomeError, and for schema mismatches reported as no data.
	Err error
}

// FingerprintMode selects how a record's dedup key is derived.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type FingerprintMode string

const (
	// ModeIdentity keys records by identity fields; content changes update in place.
	ModeIdentity FingerprintMode = "identity"
	// ModeContent keys records by payload hash; content changes add a new version row.
	ModeContent FingerprintMode = "content"
)

// Valid reports whether m is a known mode.
func (m FingerprintMode) Valid() bool {
	return m == ModeIdentity || m == ModeContent
}

// SyncRecord is the persisted form of a record.
type SyncRecord struct {
	Source      string           `json:"source"       db:"source"`
	Fingerprint string           `json:"fingerprint"  db:"fingerprint"`
	NaturalKey  string           `json:"natural_key"  db:"natural_key"`
	ContentHash string           `json:"content_hash" db:"content_hash"`
	Payload     map[string]Value `json:"payload"      db:"payload"`
	FirstSeen   time.Time        `json:"first_seen"   db:"first_seen"`
	LastSeen    time.Time        `json:"last_seen"    db:"last_seen"`
	Version     int              `json:"version"      db:"version"`
}

// UpsertResult reports what a store write did.
type UpsertResult struct {
	Inserted int
	Updated  int
	Errors   []error
}

// SyncCounts are the decisions made by the sync engine for one batch or work item.
type SyncCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Add folds o into c.
func (c *SyncCounts) Add(o SyncCounts) {
	c.Inserted += o.Inserted
	c.Updated += o.Updated
	c.Skipped += o.Skipped
	c.Failed += o.Failed
}

// UnmarshalText implements encoding.TextUnmarshaler so modes can be read from YAML and env.
func (m *FingerprintMode) UnmarshalText(text []byte) error {
	v := FingerprintMode(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid fingerprint mode: %q", v)
	}
	*m = v
	return nil
}
