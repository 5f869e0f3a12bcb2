package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/cohortforge/platform/pkg/temporal"
)

const dateLayout = "2006-01-02"

// WriteCSV serializes the analysis table. Each covariate contributes flag,
// date and days_to_index columns; each outcome flag, date and days_from_index.
func WriteCSV(w io.Writer, table *AnalysisTable) error {
	if table == nil {
		return fmt.Errorf("nil analysis table")
	}

	writer := csv.NewWriter(w)
	header := []string{"patient_id", "index_date", "date_of_birth", "age_at_index", "sex", "ethnicity", "lsoa"}
	for _, name := range table.CovariateNames {
		header = append(header, name+"_flag", name+"_date", name+"_days_to_index")
	}
	for _, name := range table.OutcomeNames {
		header = append(header, name+"_flag", name+"_date", name+"_days_from_index")
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range table.Rows {
		record := []string{
			row.Member.PatientID,
			row.Member.IndexDate.Format(dateLayout),
			row.Member.DateOfBirth.Format(dateLayout),
			strconv.FormatFloat(row.Member.AgeAtIndex, 'f', 2, 64),
			textOrEmpty(row.Member.Sex),
			textOrEmpty(row.Member.Ethnicity),
			textOrEmpty(row.Member.LSOA),
		}
		for _, name := range table.CovariateNames {
			record = append(record, resultColumns(row.Covariates[name])...)
		}
		for _, name := range table.OutcomeNames {
			record = append(record, resultColumns(row.Outcomes[name])...)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func resultColumns(result temporal.Result) []string {
	flag := "false"
	if result.Flag {
		flag = "true"
	}
	return []string{flag, dateOrEmpty(result.EventDate), intOrEmpty(result.DaysOffset)}
}

func textOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func dateOrEmpty(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.Format(dateLayout)
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
