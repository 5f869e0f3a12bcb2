package curation

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cohortforge/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

type fakeFetcher struct {
	rows map[string][]map[string]interface{}
	errs map[string]error
}

func (f *fakeFetcher) Fetch(ctx context.Context, table string, columns map[string]string, patientIDs []string) ([]map[string]interface{}, error) {
	if err, ok := f.errs[table]; ok {
		return nil, err
	}
	return f.rows[table], nil
}

func testAsset() AssetConfig {
	return AssetConfig{
		Name: "date_of_birth",
		Kind: AssetKindDemographic,
		Sources: []SourceConfig{
			{Name: "primary_care", Table: "pc_patients", Priority: 1, Quality: QualityHigh, Coverage: 0.95, Columns: map[string]string{"patient_id": "nhs_number", "date_of_birth": "dob"}},
			{Name: "hospital", Table: "hes_patients", Priority: 2, Quality: QualityMedium, Coverage: 0.80, Columns: map[string]string{"patient_id": "person_id", "date_of_birth": "birth_date"}},
		},
	}
}

func TestAssembleMergesSources(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]map[string]interface{}{
		"pc_patients": {
			{"patient_id": "P1", "date_of_birth": "1950-05-15"},
			{"patient_id": "P2", "date_of_birth": "1960-01-01"},
		},
		"hes_patients": {
			{"patient_id": "P1", "date_of_birth": "1950-05-15"},
		},
	}}

	table, rep, err := NewAssembler(fetcher).Assemble(context.Background(), testAsset(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 long-format rows, got %d", table.Len())
	}
	if rep.RowCount != 3 || rep.Patients != 2 {
		t.Fatalf("report says %d rows / %d patients, want 3 / 2", rep.RowCount, rep.Patients)
	}
	for _, rec := range table.Records {
		if rec.SourceName == "" || rec.SourcePriority == 0 {
			t.Fatalf("row missing source metadata: %+v", rec)
		}
	}
	if v := table.Records[0].Value("date_of_birth"); v.Date == nil {
		t.Fatalf("expected date value, got %+v", v)
	}
}

func TestAssembleSkipsFailingSource(t *testing.T) {
	fetcher := &fakeFetcher{
		rows: map[string][]map[string]interface{}{
			"pc_patients": {{"patient_id": "P1", "date_of_birth": "1950-05-15"}},
		},
		errs: map[string]error{"hes_patients": fmt.Errorf("connection refused")},
	}

	table, rep, err := NewAssembler(fetcher).Assemble(context.Background(), testAsset(), nil)
	if err != nil {
		t.Fatalf("partial source failure must not fail the asset: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", table.Len())
	}
	skipped := 0
	for _, outcome := range rep.Sources {
		if outcome.Skipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped source in report, got %d", skipped)
	}
}

func TestAssembleFailsWhenEverySourceFails(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{
		"pc_patients":  fmt.Errorf("connection refused"),
		"hes_patients": fmt.Errorf("connection refused"),
	}}

	_, _, err := NewAssembler(fetcher).Assemble(context.Background(), testAsset(), nil)
	if err == nil {
		t.Fatal("expected error when every source fails")
	}
}

func TestAssembleCanonicalizesEmptyStrings(t *testing.T) {
	asset := AssetConfig{
		Name: "sex",
		Kind: AssetKindDemographic,
		Sources: []SourceConfig{
			{Name: "primary_care", Table: "pc_patients", Priority: 1, Quality: QualityHigh, Columns: map[string]string{"patient_id": "id", "sex_code": "sex"}},
		},
	}
	fetcher := &fakeFetcher{rows: map[string][]map[string]interface{}{
		"pc_patients": {
			{"patient_id": "P1", "sex_code": ""},
			{"patient_id": "P2", "sex_code": "F"},
		},
	}}

	table, _, err := NewAssembler(fetcher).Assemble(context.Background(), asset, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !table.Records[0].Value("sex_code").IsNull() {
		t.Fatal("empty string should canonicalize to null")
	}
	if table.Records[1].Value("sex_code").IsNull() {
		t.Fatal("non-empty value should survive assembly")
	}
}

func TestAssembleKeepsFirstRowPerPatientSource(t *testing.T) {
	asset := AssetConfig{
		Name: "sex",
		Kind: AssetKindDemographic,
		Sources: []SourceConfig{
			{Name: "primary_care", Table: "pc_patients", Priority: 1, Quality: QualityHigh, Columns: map[string]string{"patient_id": "id", "sex_code": "sex"}},
		},
	}
	fetcher := &fakeFetcher{rows: map[string][]map[string]interface{}{
		"pc_patients": {
			{"patient_id": "P1", "sex_code": "F"},
			{"patient_id": "P1", "sex_code": "M"},
		},
	}}

	table, _, err := NewAssembler(fetcher).Assemble(context.Background(), asset, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected duplicate (patient, source) row to be dropped, got %d rows", table.Len())
	}
	if got := table.Records[0].Value("sex_code").String(); got != "F" {
		t.Fatalf("expected first row kept, got %s", got)
	}
}

func TestAssembleKeepsAllEventRows(t *testing.T) {
	asset := AssetConfig{
		Name: "hospital_admissions",
		Kind: AssetKindEvent,
		Sources: []SourceConfig{
			{Name: "hes", Table: "hes_events", Priority: 1, Quality: QualityHigh, Columns: map[string]string{"patient_id": "id", "event_date": "admidate", "code": "diag"}},
		},
	}
	fetcher := &fakeFetcher{rows: map[string][]map[string]interface{}{
		"hes_events": {
			{"patient_id": "P1", "event_date": "2022-03-15", "code": "E11"},
			{"patient_id": "P1", "event_date": "2023-07-22", "code": "E11"},
		},
	}}

	table, _, err := NewAssembler(fetcher).Assemble(context.Background(), asset, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("event asset must keep every row per patient, got %d", table.Len())
	}
}

func TestAsValueParsesTimeTypes(t *testing.T) {
	ts := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	if v := asValue(ts); v.Date == nil || !v.Date.Equal(ts) {
		t.Fatalf("time.Time not preserved: %+v", v)
	}
	if v := asValue("2020-06-01"); v.Date == nil {
		t.Fatalf("date string not parsed: %+v", v)
	}
	if v := asValue("white british"); v.Text == nil {
		t.Fatalf("plain text misparsed: %+v", v)
	}
	if v := asValue(nil); !v.IsNull() {
		t.Fatalf("nil should be null: %+v", v)
	}
}
