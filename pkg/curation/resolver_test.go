package curation

import "testing"

func record(patientID, source string, priority int, field, value string) LongFormatRecord {
	return LongFormatRecord{
		PatientID:      patientID,
		SourceName:     source,
		SourcePriority: priority,
		SourceQuality:  QualityHigh,
		Values:         map[string]Value{field: TextValue(value)},
	}
}

func TestResolvePicksLowestPriority(t *testing.T) {
	table := &Table{Asset: "sex", Records: []LongFormatRecord{
		record("P1", "sourceB", 2, "sex_code", "F"),
		record("P1", "sourceA", 1, "sex_code", "M"),
		record("P2", "sourceB", 2, "sex_code", "F"),
	}}

	resolved := Resolve(table)
	if len(resolved.Records) != 2 {
		t.Fatalf("expected one row per patient, got %d", len(resolved.Records))
	}
	for _, rec := range resolved.Records {
		switch rec.PatientID {
		case "P1":
			if rec.SourceName != "sourceA" || rec.SourcePriority != 1 {
				t.Fatalf("P1 resolved to %s (priority %d), want sourceA", rec.SourceName, rec.SourcePriority)
			}
		case "P2":
			if rec.SourceName != "sourceB" {
				t.Fatalf("P2 resolved to %s, want sourceB", rec.SourceName)
			}
		}
	}
}

func TestResolveTieBreakBySourceName(t *testing.T) {
	forward := &Table{Asset: "sex", Records: []LongFormatRecord{
		record("P1", "zeta", 1, "sex_code", "M"),
		record("P1", "alpha", 1, "sex_code", "F"),
	}}
	backward := &Table{Asset: "sex", Records: []LongFormatRecord{
		record("P1", "alpha", 1, "sex_code", "F"),
		record("P1", "zeta", 1, "sex_code", "M"),
	}}

	for _, table := range []*Table{forward, backward} {
		resolved := Resolve(table)
		if len(resolved.Records) != 1 {
			t.Fatalf("expected 1 row, got %d", len(resolved.Records))
		}
		if resolved.Records[0].SourceName != "alpha" {
			t.Fatalf("tie-break picked %s, want alpha", resolved.Records[0].SourceName)
		}
	}
}

func TestResolveKeepsFirstAppearanceOrder(t *testing.T) {
	table := &Table{Asset: "sex", Records: []LongFormatRecord{
		record("P3", "sourceA", 1, "sex_code", "M"),
		record("P1", "sourceA", 1, "sex_code", "F"),
		record("P3", "sourceB", 2, "sex_code", "M"),
		record("P2", "sourceA", 1, "sex_code", "F"),
	}}

	resolved := Resolve(table)
	want := []string{"P3", "P1", "P2"}
	for i, rec := range resolved.Records {
		if rec.PatientID != want[i] {
			t.Fatalf("row %d is %s, want %s", i, rec.PatientID, want[i])
		}
	}
}

func TestCheckConflictsFlagsDistinctValues(t *testing.T) {
	table := &Table{Asset: "sex", Records: []LongFormatRecord{
		record("P1", "sourceA", 1, "val", "W"),
		record("P1", "sourceB", 2, "val", "W"),
		record("P2", "sourceA", 1, "val", "X"),
		record("P2", "sourceB", 2, "val", "Y"),
	}}

	rep := CheckConflicts(table, "val")
	if rep == nil {
		t.Fatal("expected a conflict report")
	}
	if len(rep.Patients) != 1 {
		t.Fatalf("expected 1 conflicting patient, got %d", len(rep.Patients))
	}
	if rep.Patients[0].PatientID != "P2" {
		t.Fatalf("conflicting patient is %s, want P2", rep.Patients[0].PatientID)
	}
	if len(rep.Patients[0].Values) != 2 {
		t.Fatalf("expected both source values reported, got %d", len(rep.Patients[0].Values))
	}
}

func TestCheckConflictsCleanTableReturnsNil(t *testing.T) {
	table := &Table{Asset: "sex", Records: []LongFormatRecord{
		record("P1", "sourceA", 1, "val", "W"),
		record("P1", "sourceB", 2, "val", "W"),
		record("P2", "sourceA", 1, "val", "X"),
	}}

	if rep := CheckConflicts(table, "val"); rep != nil {
		t.Fatalf("expected nil report for clean table, got %+v", rep)
	}
}

func TestCheckConflictsIgnoresNullValues(t *testing.T) {
	table := &Table{Asset: "sex", Records: []LongFormatRecord{
		record("P1", "sourceA", 1, "val", "W"),
		{PatientID: "P1", SourceName: "sourceB", SourcePriority: 2, Values: map[string]Value{"val": NullValue()}},
	}}

	if rep := CheckConflicts(table, "val"); rep != nil {
		t.Fatalf("null values must not count as conflicting, got %+v", rep)
	}
}
