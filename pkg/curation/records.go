package curation

import (
	"strings"
	"time"
)

// Quality grades a configured source.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

func (q Quality) Valid() bool {
	switch q {
	case QualityHigh, QualityMedium, QualityLow:
		return true
	}
	return false
}

// Value is a nullable scalar observed for one asset field. Empty strings are
// canonicalized to null at assembly time so downstream filters only ever
// check for null.
type Value struct {
	Text *string
	Date *time.Time
}

func NullValue() Value {
	return Value{}
}

func TextValue(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}
	}
	return Value{Text: &s}
}

func DateValue(t time.Time) Value {
	return Value{Date: &t}
}

func (v Value) IsNull() bool {
	return v.Text == nil && v.Date == nil
}

// String renders the value for conflict comparison and reporting. Dates
// render as yyyy-mm-dd so the same calendar date from two sources compares
// equal regardless of wall-clock components.
func (v Value) String() string {
	if v.Date != nil {
		return v.Date.UTC().Format("2006-01-02")
	}
	if v.Text != nil {
		return *v.Text
	}
	return ""
}

// LongFormatRecord is one observation of one asset for one patient from one
// source.
type LongFormatRecord struct {
	PatientID         string
	SourceName        string
	SourcePriority    int
	SourceQuality     Quality
	SourceCoverage    float64
	SourceLastUpdated time.Time
	Values            map[string]Value
}

func (r LongFormatRecord) Value(field string) Value {
	if r.Values == nil {
		return Value{}
	}
	return r.Values[field]
}

// Table is an asset's long-format collection: zero or more rows per patient.
// Demographic assets carry at most one row per (patient, source) pair; event
// assets may carry many.
type Table struct {
	Asset   string
	Records []LongFormatRecord
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// PatientIDs returns distinct patient identifiers in first-appearance order.
func (t *Table) PatientIDs() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(t.Records))
	ids := make([]string, 0, len(t.Records))
	for _, rec := range t.Records {
		if _, ok := seen[rec.PatientID]; ok {
			continue
		}
		seen[rec.PatientID] = struct{}{}
		ids = append(ids, rec.PatientID)
	}
	return ids
}
