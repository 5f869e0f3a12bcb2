package temporal

import (
	"time"

	"github.com/cohortforge/platform/pkg/curation"
)

// Internal field names carried by event asset tables.
const (
	FieldEventDate   = "event_date"
	FieldCode        = "code"
	FieldTerminology = "terminology"
)

// ClinicalEvent is one dated clinical fact for one patient.
type ClinicalEvent struct {
	PatientID   string
	EventDate   time.Time
	Code        string
	Terminology string
}

// EventsFromTable converts an assembled event asset into clinical events.
// Rows without a parseable event date or a code are dropped: an undated or
// uncoded event can never qualify for a window.
func EventsFromTable(table *curation.Table) []ClinicalEvent {
	if table == nil {
		return nil
	}
	events := make([]ClinicalEvent, 0, len(table.Records))
	for _, rec := range table.Records {
		date := rec.Value(FieldEventDate)
		code := rec.Value(FieldCode)
		if date.Date == nil || code.IsNull() {
			continue
		}
		events = append(events, ClinicalEvent{
			PatientID:   rec.PatientID,
			EventDate:   *date.Date,
			Code:        code.String(),
			Terminology: rec.Value(FieldTerminology).String(),
		})
	}
	return events
}
