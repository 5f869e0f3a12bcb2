package curation

import (
	"sort"

	"github.com/cohortforge/platform/pkg/report"
)

// Resolve collapses a long-format table to one row per patient by picking the
// row with the numerically lowest source priority. Ties on priority are broken
// by lexicographically smallest source name so resolution never depends on
// input row order. Output rows keep the first-appearance order of patients in
// the input.
func Resolve(table *Table) *Table {
	if table == nil {
		return nil
	}
	best := make(map[string]LongFormatRecord, len(table.Records))
	order := make([]string, 0, len(table.Records))
	for _, rec := range table.Records {
		current, ok := best[rec.PatientID]
		if !ok {
			best[rec.PatientID] = rec
			order = append(order, rec.PatientID)
			continue
		}
		if rec.SourcePriority < current.SourcePriority ||
			(rec.SourcePriority == current.SourcePriority && rec.SourceName < current.SourceName) {
			best[rec.PatientID] = rec
		}
	}

	resolved := &Table{Asset: table.Asset, Records: make([]LongFormatRecord, 0, len(order))}
	for _, patientID := range order {
		resolved.Records = append(resolved.Records, best[patientID])
	}
	return resolved
}

// CheckConflicts flags patients whose sources report more than one distinct
// non-null value for the given column. It returns nil when no patient
// conflicts, so callers can distinguish "checked, clean" from an empty
// conflict list.
func CheckConflicts(table *Table, column string) *report.ConflictReport {
	if table == nil {
		return nil
	}

	type observation struct {
		source string
		value  string
	}
	byPatient := make(map[string][]observation)
	order := make([]string, 0)
	for _, rec := range table.Records {
		value := rec.Value(column)
		if value.IsNull() {
			continue
		}
		if _, ok := byPatient[rec.PatientID]; !ok {
			order = append(order, rec.PatientID)
		}
		byPatient[rec.PatientID] = append(byPatient[rec.PatientID], observation{
			source: rec.SourceName,
			value:  value.String(),
		})
	}

	var conflicts []report.PatientConflict
	for _, patientID := range order {
		obs := byPatient[patientID]
		distinct := make(map[string]struct{}, len(obs))
		for _, o := range obs {
			distinct[o.value] = struct{}{}
		}
		if len(distinct) < 2 {
			continue
		}
		values := make([]report.ConflictValue, 0, len(obs))
		for _, o := range obs {
			values = append(values, report.ConflictValue{Source: o.source, Value: o.value})
		}
		sort.SliceStable(values, func(i, j int) bool { return values[i].Source < values[j].Source })
		conflicts = append(conflicts, report.PatientConflict{PatientID: patientID, Values: values})
	}

	if len(conflicts) == 0 {
		return nil
	}
	return &report.ConflictReport{Asset: table.Asset, Column: column, Patients: conflicts}
}
