package report

import "time"

// Stage identifiers carried on reporter events.
const (
	StageAssembly  = "assembly"
	StageConflicts = "conflicts"
	StageCohort    = "cohort"
	StageCovariate = "covariate"
	StageOutcome   = "outcome"
	StageRun       = "run"
)

// SourceOutcome records what a single configured source contributed to an
// asset's long-format table.
type SourceOutcome struct {
	Source  string `json:"source"`
	Rows    int    `json:"rows"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}

type AssemblyReport struct {
	Asset    string          `json:"asset"`
	Sources  []SourceOutcome `json:"sources"`
	RowCount int             `json:"row_count"`
	Patients int             `json:"patients"`
}

type ConflictValue struct {
	Source string `json:"source"`
	Value  string `json:"value"`
}

type PatientConflict struct {
	PatientID string          `json:"patient_id"`
	Values    []ConflictValue `json:"values"`
}

// ConflictReport lists patients whose sources disagree on a value column.
// A nil report means no conflicts were found.
type ConflictReport struct {
	Asset    string            `json:"asset"`
	Column   string            `json:"column"`
	Patients []PatientConflict `json:"patients"`
}

type ExclusionStep struct {
	Step      string `json:"step"`
	Excluded  int    `json:"excluded"`
	Remaining int    `json:"remaining"`
}

type CohortReport struct {
	StartingPatients int             `json:"starting_patients"`
	Steps            []ExclusionStep `json:"steps"`
	FinalSize        int             `json:"final_size"`
}

type CodeCount struct {
	Code     string `json:"code"`
	Events   int    `json:"events"`
	Patients int    `json:"patients"`
}

// CoverageReport summarizes how well a named covariate or outcome is
// represented in the cohort. It is informational only and never affects the
// generated results.
type CoverageReport struct {
	Name              string      `json:"name"`
	CohortSize        int         `json:"cohort_size"`
	PatientsWithEvent int         `json:"patients_with_event"`
	Coverage          float64     `json:"coverage"`
	EventCount        int         `json:"event_count"`
	EarliestEvent     *time.Time  `json:"earliest_event,omitempty"`
	LatestEvent       *time.Time  `json:"latest_event,omitempty"`
	Codes             []CodeCount `json:"codes,omitempty"`
}

// RunReport aggregates every stage report produced by one pipeline run.
type RunReport struct {
	Study      string            `json:"study"`
	Assemblies []AssemblyReport  `json:"assemblies,omitempty"`
	Conflicts  []*ConflictReport `json:"conflicts,omitempty"`
	Cohort     *CohortReport     `json:"cohort,omitempty"`
	Covariates []CoverageReport  `json:"covariates,omitempty"`
	Outcomes   []CoverageReport  `json:"outcomes,omitempty"`
}
