package temporal

import (
	"fmt"
	"sort"
	"time"

	"github.com/cohortforge/platform/pkg/cohort"
	"github.com/cohortforge/platform/pkg/report"
)

// SelectionMethod picks which qualifying event represents a patient.
type SelectionMethod string

const (
	SelectEarliest SelectionMethod = "min"
	SelectLatest   SelectionMethod = "max"
)

func ParseSelectionMethod(s string) (SelectionMethod, error) {
	switch SelectionMethod(s) {
	case SelectEarliest, SelectLatest:
		return SelectionMethod(s), nil
	}
	return "", fmt.Errorf("unknown selection method %q (want min or max)", s)
}

// Result is one cohort member's covariate or outcome row. Every cohort member
// gets exactly one: members with no qualifying event carry Flag false and nil
// date/offset.
type Result struct {
	PatientID  string
	IndexDate  time.Time
	Flag       bool
	EventDate  *time.Time
	DaysOffset *int
}

// GenerateCovariate flags each cohort member that has a qualifying event in
// the lookback window before their index date. Day offsets are negative.
// The code set is resolved by the caller; an empty set produces all-false
// flags rather than an error.
func GenerateCovariate(events []ClinicalEvent, members []cohort.Member, codes map[string]struct{}, name string, window Lookback, method SelectionMethod) ([]Result, *report.CoverageReport, error) {
	if err := window.Validate(); err != nil {
		return nil, nil, fmt.Errorf("covariate %s: %w", name, err)
	}
	if _, err := ParseSelectionMethod(string(method)); err != nil {
		return nil, nil, fmt.Errorf("covariate %s: %w", name, err)
	}
	return generate(events, members, codes, name, window.contains, method)
}

// GenerateOutcome flags each cohort member that has a qualifying event in the
// follow-up window after their index date. Day offsets are positive.
func GenerateOutcome(events []ClinicalEvent, members []cohort.Member, codes map[string]struct{}, name string, window FollowUp, method SelectionMethod) ([]Result, *report.CoverageReport, error) {
	if err := window.Validate(); err != nil {
		return nil, nil, fmt.Errorf("outcome %s: %w", name, err)
	}
	if _, err := ParseSelectionMethod(string(method)); err != nil {
		return nil, nil, fmt.Errorf("outcome %s: %w", name, err)
	}
	return generate(events, members, codes, name, window.contains, method)
}

func generate(events []ClinicalEvent, members []cohort.Member, codes map[string]struct{}, name string, inWindow func(int) bool, method SelectionMethod) ([]Result, *report.CoverageReport, error) {
	matched := make([]ClinicalEvent, 0, len(events))
	for _, event := range events {
		if _, ok := codes[event.Code]; ok {
			matched = append(matched, event)
		}
	}

	indexByPatient := make(map[string]time.Time, len(members))
	for _, m := range members {
		indexByPatient[m.PatientID] = m.IndexDate
	}

	rep := assessCoverage(name, matched, indexByPatient, len(members))

	// Inner join on the cohort, then window filter on the signed day offset.
	selected := make(map[string]ClinicalEvent, len(members))
	for _, event := range matched {
		indexDate, ok := indexByPatient[event.PatientID]
		if !ok {
			continue
		}
		if !inWindow(daysBetween(indexDate, event.EventDate)) {
			continue
		}
		current, ok := selected[event.PatientID]
		if !ok || prefer(event, current, method) {
			selected[event.PatientID] = event
		}
	}

	results := make([]Result, 0, len(members))
	for _, m := range members {
		result := Result{PatientID: m.PatientID, IndexDate: m.IndexDate}
		if event, ok := selected[m.PatientID]; ok {
			date := event.EventDate
			offset := daysBetween(m.IndexDate, event.EventDate)
			result.Flag = true
			result.EventDate = &date
			result.DaysOffset = &offset
		}
		results = append(results, result)
	}
	return results, rep, nil
}

// prefer reports whether candidate should replace current under the selection
// method. Ties on the event date fall back to code then terminology so the
// selection never depends on input row order.
func prefer(candidate, current ClinicalEvent, method SelectionMethod) bool {
	if !candidate.EventDate.Equal(current.EventDate) {
		if method == SelectLatest {
			return candidate.EventDate.After(current.EventDate)
		}
		return candidate.EventDate.Before(current.EventDate)
	}
	if candidate.Code != current.Code {
		return candidate.Code < current.Code
	}
	return candidate.Terminology < current.Terminology
}

func assessCoverage(name string, matched []ClinicalEvent, indexByPatient map[string]time.Time, cohortSize int) *report.CoverageReport {
	rep := &report.CoverageReport{
		Name:       name,
		CohortSize: cohortSize,
		EventCount: len(matched),
	}

	cohortPatients := make(map[string]struct{})
	type codeTally struct {
		events   int
		patients map[string]struct{}
	}
	byCode := make(map[string]*codeTally)
	for _, event := range matched {
		if _, ok := indexByPatient[event.PatientID]; ok {
			cohortPatients[event.PatientID] = struct{}{}
		}
		tally, ok := byCode[event.Code]
		if !ok {
			tally = &codeTally{patients: make(map[string]struct{})}
			byCode[event.Code] = tally
		}
		tally.events++
		tally.patients[event.PatientID] = struct{}{}

		if rep.EarliestEvent == nil || event.EventDate.Before(*rep.EarliestEvent) {
			date := event.EventDate
			rep.EarliestEvent = &date
		}
		if rep.LatestEvent == nil || event.EventDate.After(*rep.LatestEvent) {
			date := event.EventDate
			rep.LatestEvent = &date
		}
	}

	rep.PatientsWithEvent = len(cohortPatients)
	if cohortSize > 0 {
		rep.Coverage = float64(len(cohortPatients)) / float64(cohortSize)
	}

	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		tally := byCode[code]
		rep.Codes = append(rep.Codes, report.CodeCount{
			Code:     code,
			Events:   tally.events,
			Patients: len(tally.patients),
		})
	}
	return rep
}

// daysBetween returns the signed whole-day difference between two calendar
// dates, ignoring time-of-day and zone.
func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
