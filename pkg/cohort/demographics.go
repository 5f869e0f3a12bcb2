package cohort

import (
	"time"

	"github.com/cohortforge/platform/pkg/curation"
)

// Internal field names carried by demographic asset tables.
const (
	FieldDateOfBirth = "date_of_birth"
	FieldSex         = "sex_code"
	FieldEthnicity   = "ethnicity_code"
	FieldLSOA        = "lsoa_code"
)

// Demographics is the per-patient merge of resolved demographic assets.
type Demographics struct {
	PatientID   string
	DateOfBirth *time.Time
	Sex         *string
	Ethnicity   *string
	LSOA        *string
}

// CombineDemographics left-joins resolved single-asset tables on patient
// identity, anchored on the date-of-birth table: patients absent from the DOB
// table are dropped. The ethnicity and LSOA tables are optional; nil skips
// the join.
func CombineDemographics(dob, sex, ethnicity, lsoa *curation.Table) []Demographics {
	if dob == nil {
		return nil
	}

	sexByPatient := textByPatient(sex, FieldSex)
	ethnicityByPatient := textByPatient(ethnicity, FieldEthnicity)
	lsoaByPatient := textByPatient(lsoa, FieldLSOA)

	combined := make([]Demographics, 0, len(dob.Records))
	for _, rec := range dob.Records {
		demo := Demographics{PatientID: rec.PatientID}
		if v := rec.Value(FieldDateOfBirth); v.Date != nil {
			d := *v.Date
			demo.DateOfBirth = &d
		}
		demo.Sex = sexByPatient[rec.PatientID]
		demo.Ethnicity = ethnicityByPatient[rec.PatientID]
		demo.LSOA = lsoaByPatient[rec.PatientID]
		combined = append(combined, demo)
	}
	return combined
}

func textByPatient(table *curation.Table, field string) map[string]*string {
	if table == nil {
		return nil
	}
	byPatient := make(map[string]*string, len(table.Records))
	for _, rec := range table.Records {
		if _, ok := byPatient[rec.PatientID]; ok {
			continue
		}
		v := rec.Value(field)
		if v.IsNull() {
			continue
		}
		text := v.String()
		byPatient[rec.PatientID] = &text
	}
	return byPatient
}
