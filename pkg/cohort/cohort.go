package cohort

import (
	"fmt"
	"time"

	"github.com/cohortforge/platform/pkg/report"
)

const daysPerYear = 365.25

// IndexDates supplies the anchor date per patient: either one calendar date
// broadcast to every patient, or a one-to-one map by patient identity.
type IndexDates struct {
	fixed      *time.Time
	perPatient map[string]time.Time
}

func FixedIndexDate(date time.Time) IndexDates {
	return IndexDates{fixed: &date}
}

func PerPatientIndexDates(dates map[string]time.Time) IndexDates {
	return IndexDates{perPatient: dates}
}

func (d IndexDates) Defined() bool {
	return d.fixed != nil || d.perPatient != nil
}

func (d IndexDates) Lookup(patientID string) (time.Time, bool) {
	if d.fixed != nil {
		return *d.fixed, true
	}
	date, ok := d.perPatient[patientID]
	return date, ok
}

// Restrictions are the eligibility predicates applied while generating a
// cohort. Age bounds are inclusive and expressed in years.
type Restrictions struct {
	MinAge                *float64
	MaxAge                *float64
	RequireKnownSex       bool
	RequireKnownEthnicity bool
	RequireLSOA           bool
}

// Member is one eligible patient. Immutable once generated.
type Member struct {
	PatientID   string
	IndexDate   time.Time
	DateOfBirth time.Time
	AgeAtIndex  float64
	Sex         *string
	Ethnicity   *string
	LSOA        *string
}

// Generate applies index-date attachment, age computation and each active
// restriction in a fixed order, recording the number of patients excluded at
// every step. Patients with a null date of birth cannot compute an age and
// are always excluded, whether or not an age bound is active.
func Generate(demographics []Demographics, index IndexDates, r Restrictions) ([]Member, *report.CohortReport, error) {
	if !index.Defined() {
		return nil, nil, fmt.Errorf("cohort generation requires an index date")
	}

	rep := &report.CohortReport{StartingPatients: len(demographics)}

	members := make([]Member, 0, len(demographics))
	missingIndex := 0
	missingDOB := 0
	for _, demo := range demographics {
		indexDate, ok := index.Lookup(demo.PatientID)
		if !ok {
			missingIndex++
			continue
		}
		if demo.DateOfBirth == nil {
			missingDOB++
			continue
		}
		members = append(members, Member{
			PatientID:   demo.PatientID,
			IndexDate:   indexDate,
			DateOfBirth: *demo.DateOfBirth,
			AgeAtIndex:  ageYears(*demo.DateOfBirth, indexDate),
			Sex:         demo.Sex,
			Ethnicity:   demo.Ethnicity,
			LSOA:        demo.LSOA,
		})
	}
	rep.Steps = append(rep.Steps,
		report.ExclusionStep{Step: "index_date", Excluded: missingIndex, Remaining: len(demographics) - missingIndex},
		report.ExclusionStep{Step: "date_of_birth_known", Excluded: missingDOB, Remaining: len(members)},
	)

	if r.MinAge != nil {
		members = filterStep(rep, "min_age", members, func(m Member) bool {
			return m.AgeAtIndex >= *r.MinAge
		})
	}
	if r.MaxAge != nil {
		members = filterStep(rep, "max_age", members, func(m Member) bool {
			return m.AgeAtIndex <= *r.MaxAge
		})
	}
	if r.RequireKnownSex {
		members = filterStep(rep, "sex_known", members, func(m Member) bool {
			return known(m.Sex)
		})
	}
	if r.RequireKnownEthnicity {
		members = filterStep(rep, "ethnicity_known", members, func(m Member) bool {
			return known(m.Ethnicity)
		})
	}
	if r.RequireLSOA {
		members = filterStep(rep, "lsoa_known", members, func(m Member) bool {
			return known(m.LSOA)
		})
	}

	rep.FinalSize = len(members)
	return members, rep, nil
}

func filterStep(rep *report.CohortReport, step string, members []Member, keep func(Member) bool) []Member {
	kept := members[:0:len(members)]
	for _, m := range members {
		if keep(m) {
			kept = append(kept, m)
		}
	}
	rep.Steps = append(rep.Steps, report.ExclusionStep{
		Step:      step,
		Excluded:  len(members) - len(kept),
		Remaining: len(kept),
	})
	return kept
}

func known(v *string) bool {
	return v != nil && *v != ""
}

func ageYears(dateOfBirth, indexDate time.Time) float64 {
	return indexDate.Sub(dateOfBirth).Hours() / 24 / daysPerYear
}
