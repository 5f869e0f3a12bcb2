package dataset

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cohortforge/platform/pkg/cohort"
	"github.com/cohortforge/platform/pkg/temporal"
)

func member(patientID string) cohort.Member {
	sex := "F"
	return cohort.Member{
		PatientID:   patientID,
		IndexDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateOfBirth: time.Date(1950, 5, 15, 0, 0, 0, 0, time.UTC),
		AgeAtIndex:  73.63,
		Sex:         &sex,
	}
}

func flaggedResult(patientID string, offset int) temporal.Result {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	return temporal.Result{
		PatientID:  patientID,
		IndexDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Flag:       true,
		EventDate:  &date,
		DaysOffset: &offset,
	}
}

func TestCombineRowCountEqualsCohortSize(t *testing.T) {
	members := []cohort.Member{member("P1"), member("P2"), member("P3")}
	covariates := []NamedResult{{
		Name:    "diabetes",
		Results: []temporal.Result{flaggedResult("P1", -100)},
	}}
	outcomes := []NamedResult{{
		Name:    "mi",
		Results: []temporal.Result{flaggedResult("P2", 74)},
	}}

	table, err := Combine(members, covariates, outcomes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 3 {
		t.Fatalf("row count %d, want cohort size 3", len(table.Rows))
	}
	if !table.Rows[0].Covariates["diabetes"].Flag {
		t.Fatal("P1 diabetes flag lost in combination")
	}
	if table.Rows[1].Covariates["diabetes"].Flag {
		t.Fatal("P2 must carry an explicit false diabetes result")
	}
	if !table.Rows[1].Outcomes["mi"].Flag {
		t.Fatal("P2 mi flag lost in combination")
	}
}

func TestCombineRejectsDuplicateNames(t *testing.T) {
	members := []cohort.Member{member("P1")}
	covariates := []NamedResult{{Name: "diabetes"}, {Name: "diabetes"}}
	if _, err := Combine(members, covariates, nil); err == nil {
		t.Fatal("expected error for duplicate covariate names")
	}

	if _, err := Combine(members, []NamedResult{{Name: "x"}}, []NamedResult{{Name: "x"}}); err == nil {
		t.Fatal("expected error for name shared between covariates and outcomes")
	}
}

func TestWriteCSV(t *testing.T) {
	members := []cohort.Member{member("P1"), member("P2")}
	covariates := []NamedResult{{
		Name:    "diabetes",
		Results: []temporal.Result{flaggedResult("P1", -657)},
	}}

	table, err := Combine(members, covariates, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	header := lines[0]
	for _, column := range []string{"patient_id", "diabetes_flag", "diabetes_date", "diabetes_days_to_index"} {
		if !strings.Contains(header, column) {
			t.Fatalf("header missing %s: %s", column, header)
		}
	}
	if !strings.Contains(lines[1], "true") || !strings.Contains(lines[1], "-657") {
		t.Fatalf("P1 row wrong: %s", lines[1])
	}
	if !strings.Contains(lines[2], "false") {
		t.Fatalf("P2 row must carry explicit false flag: %s", lines[2])
	}
}
